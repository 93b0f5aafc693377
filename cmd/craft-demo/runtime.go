package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/craft-text-demo/internal/config"
	"github.com/ironsheep/craft-text-demo/internal/dataset"
	"github.com/ironsheep/craft-text-demo/internal/detection"
	"github.com/ironsheep/craft-text-demo/internal/eval"
	"github.com/ironsheep/craft-text-demo/internal/logging"
	"github.com/ironsheep/craft-text-demo/internal/results"
)

// runtime bundles what every subcommand loads first.
type runtime struct {
	settings *config.Settings
	log      *logrus.Logger
}

func loadRuntime() (*runtime, error) {
	log := logging.New(os.Stderr)
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"version": Version,
		"commit":  GitCommit,
	}).Debug("craft-demo starting")
	return &runtime{settings: settings, log: log}, nil
}

// experiment loads a named experiment and its custom_data parameters.
func (r *runtime) experiment(name string) (*config.Experiment, config.TestParams, error) {
	exp, err := config.LoadExperiment(r.settings.ConfigDir, name)
	if err != nil {
		return nil, config.TestParams{}, err
	}
	params, err := r.params(exp)
	if err != nil {
		return nil, config.TestParams{}, err
	}
	return exp, params, nil
}

// params returns the custom_data block of a loaded experiment.
func (r *runtime) params(exp *config.Experiment) (config.TestParams, error) {
	params, ok := exp.Params(dataset.CustomData)
	if !ok {
		return config.TestParams{}, fmt.Errorf("%s has no test.%s section", exp.Name, dataset.CustomData)
	}
	if exp.WandbOpt {
		eval.LogExperiment(r.log, exp)
	}
	return params, nil
}

// resultDirFor returns the --result_dir flag, or the default directory named
// after the loaded experiment.
func resultDirFor(flag string, exp *config.Experiment) string {
	if flag != "" {
		return flag
	}
	return eval.DefaultResultDir(exp.Name)
}

func (r *runtime) loader(exp *config.Experiment) detection.Loader {
	return detection.ONNXLoader(detection.ONNXOptions{
		LibraryPath: exp.ONNX.LibraryPath,
		InputName:   exp.ONNX.InputName,
		OutputName:  exp.ONNX.OutputName,
		Threads:     exp.ONNX.Threads,
	})
}

// network loads the experiment's checkpoint for long-lived use.
func (r *runtime) network(exp *config.Experiment, params config.TestParams) (detection.Network, error) {
	if exp.Train.Backbone != eval.SupportedBackbone {
		return nil, &eval.UnsupportedArchitectureError{Backbone: exp.Train.Backbone}
	}
	r.log.WithField("checkpoint", exp.Test.TrainedModel).Info("Loading weights from checkpoint")
	net, err := r.loader(exp)(exp.Test.TrainedModel, eval.DetectionParams(params))
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", exp.Test.TrainedModel, err)
	}
	return net, nil
}

// publisher returns the S3 mirror when a bucket is configured, nil
// otherwise. Results always stay in the local result directory.
func (r *runtime) publisher() (results.Publisher, error) {
	if r.settings.S3Bucket == "" {
		return nil, nil
	}
	mirror, err := results.NewS3Mirror(r.settings.S3Bucket, r.settings.S3Region, r.settings.S3Prefix)
	if err != nil {
		return nil, err
	}
	r.log.WithField("bucket", r.settings.S3Bucket).Info("Mirroring results to S3")
	return mirror, nil
}
