package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ironsheep/craft-text-demo/internal/queue"
)

var workerCMD = &cobra.Command{
	Use:   "worker",
	Short: "Process distributed detection tasks",
	Long: `Loads the CRAFT network of --yaml and runs craft:detect tasks from the
CRAFT_DEMO_QUEUE queue, writing boxes back to the run's Redis buffer. Stops
on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		if rt.settings.RedisURL == "" {
			return errors.New("worker needs CRAFT_DEMO_REDIS_URL")
		}

		name, _ := cmd.Flags().GetString("yaml")
		exp, params, err := rt.experiment(name)
		if err != nil {
			return err
		}
		net, err := rt.network(exp, params)
		if err != nil {
			return err
		}
		defer net.Close()

		concurrency, _ := cmd.Flags().GetInt("concurrency")
		w, err := queue.NewWorker(queue.WorkerConfig{
			RedisURL:    rt.settings.RedisURL,
			QueueName:   rt.settings.QueueName,
			Concurrency: concurrency,
			Network:     net,
			Logger:      rt.log,
		})
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return w.Run(ctx)
	},
}

func init() {
	workerCMD.Flags().String("yaml", "custom_data_train", "Experiment configuration name under the config directory")
	workerCMD.Flags().Int("concurrency", 1, "Tasks processed at once")
}
