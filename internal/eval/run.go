package eval

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/craft-text-demo/internal/config"
	"github.com/ironsheep/craft-text-demo/internal/dataset"
	"github.com/ironsheep/craft-text-demo/internal/detection"
	"github.com/ironsheep/craft-text-demo/internal/imaging"
	"github.com/ironsheep/craft-text-demo/internal/metrics"
	"github.com/ironsheep/craft-text-demo/internal/results"
)

// IoUEval is the only evaluation option.
const IoUEval = "iou_eval"

// DefaultResultDir returns exp/custom_data_train/<configName>-ic15-iou.
func DefaultResultDir(configName string) string {
	return filepath.Join("exp", "custom_data_train", configName+"-ic15-iou")
}

// RunOptions configure Run.
type RunOptions struct {
	// Evaluation defaults to IoUEval.
	Evaluation string
	// Dataset selects the test parameter block, default custom_data.
	Dataset string
	// ResultDir defaults to DefaultResultDir(exp.Name).
	ResultDir string

	Loader    detection.Loader
	Publisher results.Publisher
	Logger    logrus.FieldLogger
}

// Run evaluates a single image with the experiment's trained model.
func Run(ctx context.Context, exp *config.Experiment, imagePath string, opts RunOptions) (Result, error) {
	evaluation := opts.Evaluation
	if evaluation == "" {
		evaluation = IoUEval
	}
	if evaluation != IoUEval {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvaluation, evaluation)
	}

	name := opts.Dataset
	if name == "" {
		name = dataset.CustomData
	}
	params, ok := exp.Params(name)
	if !ok {
		return nil, fmt.Errorf("no test parameters for dataset %q", name)
	}

	resultDir := opts.ResultDir
	if resultDir == "" {
		resultDir = DefaultResultDir(exp.Name)
	}

	log := opts.Logger
	if log == nil {
		log = loggerOf(Options{})
	}
	if exp.WandbOpt {
		LogExperiment(log, exp)
	}

	return ColdEvaluate(ctx, ColdRequest{
		Options: Options{
			ImagePath: imagePath,
			ResultDir: resultDir,
			Params:    params,
			Publisher: opts.Publisher,
			Logger:    log,
		},
		Checkpoint: exp.Test.TrainedModel,
		Backbone:   exp.Train.Backbone,
		Loader:     opts.Loader,
	})
}

// LogExperiment records the experiment configuration as structured fields.
func LogExperiment(log logrus.FieldLogger, exp *config.Experiment) {
	fields := logrus.Fields{
		"experiment":    exp.Name,
		"backbone":      exp.Train.Backbone,
		"trained_model": exp.Test.TrainedModel,
	}
	for name, p := range exp.Test.Datasets {
		fields[name] = fmt.Sprintf("%+v", p)
	}
	log.WithFields(fields).Info("experiment config")
}

// DatasetReport is the outcome of EvaluateDataset.
type DatasetReport struct {
	Images  []string              `json:"images"`
	Results []metrics.ImageResult `json:"results"`
	Summary metrics.Summary       `json:"summary"`
}

// EvaluateDataset runs net on every image of gt with up to workers images
// in flight and scores the boxes.
func EvaluateDataset(ctx context.Context, net detection.Network, gt *dataset.GroundTruth, opts Options, workers int) (*DatasetReport, error) {
	if workers < 1 {
		workers = 1
	}
	log := loggerOf(opts)

	report := &DatasetReport{
		Images:  gt.Images,
		Results: make([]metrics.ImageResult, gt.Len()),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range gt.Images {
		g.Go(func() error {
			img, err := imaging.Open(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			o := opts
			o.ImagePath = path
			o.GroundTruth = gt.Boxes[i]
			pred, err := detectImage(ctx, net, img, o, log.WithField("image", path))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			report.Results[i] = metrics.EvaluateImage(gt.Boxes[i], pred)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Summary = metrics.Combine(report.Results)
	log.WithFields(logrus.Fields{
		"images":    gt.Len(),
		"precision": report.Summary.Precision,
		"recall":    report.Summary.Recall,
		"hmean":     report.Summary.Hmean,
	}).Info("Dataset evaluated")
	return report, nil
}

// relName names a result file by its result directory and base name.
func relName(dir, path string) string {
	return filepath.Join(filepath.Base(dir), filepath.Base(path))
}
