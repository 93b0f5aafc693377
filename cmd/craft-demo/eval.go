package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ironsheep/craft-text-demo/internal/config"
	"github.com/ironsheep/craft-text-demo/internal/dataset"
	"github.com/ironsheep/craft-text-demo/internal/eval"
	"github.com/ironsheep/craft-text-demo/internal/queue"
	"github.com/ironsheep/craft-text-demo/internal/results"
)

var evalCMD = &cobra.Command{
	Use:   "eval",
	Short: "Run the CRAFT detector on an image",
	Long: `Loads the experiment named by --yaml, runs the detector on --img_path and
prints the detected boxes as JSON. With vis_opt set the boxed image and the
heatmap composite are written to exp/custom_data_train/<experiment>-ic15-iou,
where <experiment> is the config file name without its extension.

--dataset evaluates every image of the experiment's test_data_dir against its
ICDAR-2015 ground truth instead and prints precision, recall and hmean.

--distributed fans the image out to "craft-demo worker" processes through
Redis and returns the workers' boxes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		name, _ := cmd.Flags().GetString("yaml")
		imgPath, _ := cmd.Flags().GetString("img_path")
		exp, err := config.LoadExperiment(rt.settings.ConfigDir, name)
		if err != nil {
			return err
		}
		dirFlag, _ := cmd.Flags().GetString("result_dir")
		resultDir := resultDirFor(dirFlag, exp)
		var pubs results.Multi
		if dir, _ := cmd.Flags().GetString("publish_dir"); dir != "" {
			pubs = append(pubs, &results.LocalDir{Dir: dir})
		}
		mirror, err := rt.publisher()
		if err != nil {
			return err
		}
		if mirror != nil {
			pubs = append(pubs, mirror)
		}
		var pub results.Publisher
		if len(pubs) > 0 {
			pub = pubs
		}

		out := json.NewEncoder(os.Stdout)
		out.SetIndent("", "  ")

		if all, _ := cmd.Flags().GetBool("dataset"); all {
			params, err := rt.params(exp)
			if err != nil {
				return err
			}
			gt, err := dataset.Resolve(dataset.CustomData, params.TestDataDir)
			if err != nil {
				return err
			}
			net, err := rt.network(exp, params)
			if err != nil {
				return err
			}
			defer net.Close()

			workers, _ := cmd.Flags().GetInt("workers")
			report, err := eval.EvaluateDataset(ctx, net, gt, eval.Options{
				ResultDir: resultDir,
				Params:    params,
				Publisher: pub,
				Logger:    rt.log,
			}, workers)
			if err != nil {
				return err
			}
			return out.Encode(report.Summary)
		}

		if distributed, _ := cmd.Flags().GetBool("distributed"); distributed {
			if rt.settings.RedisURL == "" {
				return errors.New("--distributed needs CRAFT_DEMO_REDIS_URL")
			}
			params, err := rt.params(exp)
			if err != nil {
				return err
			}
			dispatcher, err := queue.NewDispatcher(rt.settings.RedisURL, rt.settings.QueueName, rt.log)
			if err != nil {
				return err
			}
			defer dispatcher.Close()
			if err := dispatcher.Ping(ctx); err != nil {
				return err
			}

			net, err := rt.network(exp, params)
			if err != nil {
				return err
			}
			defer net.Close()

			run := dispatcher.Prepare([]string{imgPath})
			defer run.Delete(context.WithoutCancel(ctx))
			res, err := eval.WarmEvaluate(ctx, eval.WarmRequest{
				Options: eval.Options{
					ImagePath: imgPath,
					ResultDir: resultDir,
					Params:    params,
					Publisher: pub,
					Logger:    rt.log.WithField("run_id", run.RunID()),
				},
				Network:     net,
				Buffer:      run,
				WaitTimeout: rt.settings.BufferTimeout,
			})
			if err != nil {
				return err
			}
			return out.Encode(res)
		}

		res, err := eval.Run(ctx, exp, imgPath, eval.RunOptions{
			ResultDir: resultDir,
			Loader:    rt.loader(exp),
			Publisher: pub,
			Logger:    rt.log,
		})
		if err != nil {
			return err
		}
		return out.Encode(res)
	},
}

func init() {
	evalCMD.Flags().String("yaml", "custom_data_train", "Experiment configuration name under the config directory")
	evalCMD.Flags().String("img_path", "custom_data_train.png", "Image to run the detector on")
	evalCMD.Flags().String("result_dir", "", "Result directory (default exp/custom_data_train/<experiment>-ic15-iou)")
	evalCMD.Flags().String("publish_dir", "", "Also copy result images into this directory")
	evalCMD.Flags().Bool("dataset", false, "Evaluate the whole test dataset against its ground truth")
	evalCMD.Flags().Int("workers", 2, "Images evaluated at once with --dataset")
	evalCMD.Flags().Bool("distributed", false, "Hand the image to worker processes through Redis")
	evalCMD.MarkFlagsMutuallyExclusive("dataset", "distributed")

	evalCMD.Flags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "yaml_file_name" {
			name = "yaml"
		}
		return pflag.NormalizedName(name)
	})
}
