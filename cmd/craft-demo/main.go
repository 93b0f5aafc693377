package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var mainCMD = &cobra.Command{
	Use:   "craft-demo",
	Short: "CRAFT text detection and OCR demo",
	Long: `Runs the CRAFT text detector over images and serves a small OCR demo.

Environment variables:
  CRAFT_DEMO_LOG_LEVEL=debug       Enable debug logging
  CRAFT_DEMO_CONFIG_DIR            Directory of experiment YAML files (default config)
  CRAFT_DEMO_DATABASE_URL          Postgres URL for the records page
  CRAFT_DEMO_REDIS_URL             Redis URL for distributed evaluation
  CRAFT_DEMO_S3_BUCKET             Mirror result images to this bucket

A .env file in the working directory is read as well.`,
	Version:      Version,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	mainCMD.SetVersionTemplate("craft-demo {{.Version}}\n  Build time: " + BuildTime + "\n  Git commit: " + GitCommit + "\n")
	mainCMD.AddCommand(evalCMD, serveCMD, workerCMD, migrateCMD)
}

func main() {
	if err := mainCMD.Execute(); err != nil {
		os.Exit(1)
	}
}
