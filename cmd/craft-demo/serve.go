package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ironsheep/craft-text-demo/internal/ocr"
	"github.com/ironsheep/craft-text-demo/internal/server"
	"github.com/ironsheep/craft-text-demo/internal/store"
)

var serveCMD = &cobra.Command{
	Use:   "serve",
	Short: "Start the OCR demo web server",
	Long: `Serves the upload form on CRAFT_DEMO_LISTEN (default 0.0.0.0:7860).

The records page needs CRAFT_DEMO_DATABASE_URL; the extracted_data table is
created on start. With --detector the CRAFT network of --yaml also runs on
every upload.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tessdata, _ := cmd.Flags().GetString("tessdata")
		pool := ocr.NewTesseractPool(ocr.PoolConfig{
			Size:           rt.settings.OCRPoolSize,
			Binarize:       rt.settings.OCRBinarize,
			TessdataPrefix: tessdata,
		})
		if info := ocr.GetInfo(); !info.Available || len(info.Missing) > 0 {
			rt.log.WithField("missing", info.Missing).Warn("Tesseract language data incomplete")
		}

		uploadDir, _ := cmd.Flags().GetString("upload-dir")
		boxColor, _ := cmd.Flags().GetString("box-color")
		cfg := server.Config{
			Recognizer: pool,
			Flags:      server.NewFlagLog(rt.settings.FlagDir),
			UploadDir:  uploadDir,
			BoxColor:   boxColor,
			Logger:     rt.log,
		}

		if rt.settings.DatabaseURL != "" {
			st, err := store.Open(ctx, rt.settings.DatabaseURL,
				store.WithDatabaseSchema(rt.settings.DatabaseSchema),
				store.WithTablePrefix(rt.settings.TablePrefix),
			)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Install(ctx); err != nil {
				return err
			}
			cfg.Records = st
			cfg.Writer = st
		} else {
			rt.log.Warn("CRAFT_DEMO_DATABASE_URL not set, records page disabled")
		}

		if withDetector, _ := cmd.Flags().GetBool("detector"); withDetector {
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
			cfg.Detector = net
		}

		srv, err := server.New(cfg)
		if err != nil {
			return err
		}
		return srv.Run(ctx, rt.settings.ListenAddr)
	},
}

func init() {
	serveCMD.Flags().String("upload-dir", "uploads", "Directory for uploads and annotated results")
	serveCMD.Flags().String("tessdata", "", "Tesseract language data directory (default: TESSDATA_PREFIX)")
	serveCMD.Flags().String("box-color", "yellow", "Word box colour on result images, a name or #RRGGBB[AA]")
	serveCMD.Flags().Bool("detector", false, "Also run the CRAFT detector on every upload")
	serveCMD.Flags().String("yaml", "custom_data_train", "Experiment configuration for --detector")
}
