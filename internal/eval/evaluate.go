// Package eval runs the CRAFT detector over an image and collects its boxes.
//
// There are two entry points. ColdEvaluate loads a checkpoint, runs once
// and releases the model; it is what the command line uses. WarmEvaluate
// reuses a live detector, for example in the middle of a training or
// serving process, and can hand over to a ResultBuffer that other workers
// fill during distributed evaluation.
package eval

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/craft-text-demo/internal/config"
	"github.com/ironsheep/craft-text-demo/internal/dataset"
	"github.com/ironsheep/craft-text-demo/internal/detection"
	"github.com/ironsheep/craft-text-demo/internal/imaging"
	"github.com/ironsheep/craft-text-demo/internal/logging"
	"github.com/ironsheep/craft-text-demo/internal/results"
)

// SupportedBackbone is the only network architecture that can be loaded.
const SupportedBackbone = "vgg"

// DefaultWaitTimeout bounds a buffer wait when the request sets none.
const DefaultWaitTimeout = 5 * time.Minute

// UnlabeledText is the text of every detected box.
const UnlabeledText = dataset.UnlabeledText

// BoxRecord is one detected or annotated box.
type BoxRecord = dataset.BoxRecord

// Result holds the boxes of each evaluated image.
type Result [][]BoxRecord

// Options are shared by both entry points.
type Options struct {
	ImagePath string
	ResultDir string
	Params    config.TestParams

	// GroundTruth is drawn on the boxed result image when set.
	GroundTruth []BoxRecord

	// Publisher receives both result images after they are written.
	Publisher results.Publisher
	Logger    logrus.FieldLogger
}

// ColdRequest evaluates with a freshly loaded checkpoint.
type ColdRequest struct {
	Options
	Checkpoint string
	Backbone   string
	Loader     detection.Loader
}

// WarmRequest evaluates with an already loaded network.
type WarmRequest struct {
	Options
	Network detection.Network

	// Buffer, when set, must be empty on entry. Its contents replace the
	// local result once every slot is filled.
	Buffer      ResultBuffer
	WaitTimeout time.Duration
}

// ColdEvaluate loads the checkpoint, evaluates one image and closes the
// network again.
//
// Parameters:
//   - ctx: Cancels detection and publishing
//   - req: The image, parameters and checkpoint; Loader must be set
//
// Returns:
//   - Result: One entry holding this image's boxes, all labelled UnlabeledText
//   - error: *UnsupportedArchitectureError for any backbone but vgg, a load
//     failure, or a detection failure
//
// # Result Images
//
// With Params.VisOpt set the boxed image and the heat map composite are
// written to ResultDir and handed to Publisher.
func ColdEvaluate(ctx context.Context, req ColdRequest) (Result, error) {
	if err := os.MkdirAll(req.ResultDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create result directory: %w", err)
	}
	if req.Backbone != SupportedBackbone {
		return nil, &UnsupportedArchitectureError{Backbone: req.Backbone}
	}
	if req.Loader == nil {
		return nil, errors.New("no detector loader configured")
	}

	log := loggerOf(req.Options)
	log.WithField("checkpoint", req.Checkpoint).Info("Loading weights from checkpoint")

	net, err := req.Loader(req.Checkpoint, DetectionParams(req.Params))
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", req.Checkpoint, err)
	}
	defer net.Close()

	return evaluate(ctx, net, req.Options)
}

// WarmEvaluate evaluates one image with a live network. A non-empty buffer
// is rejected before anything runs.
//
// Parameters:
//   - ctx: Cancels detection and the buffer wait
//   - req: The image, parameters, network and optional result buffer
//
// Returns:
//   - Result: The local boxes, or the buffer's slots when a buffer is set
//   - error: ErrBufferNotEmpty, a detection failure, or a buffer wait error
//     wrapping ErrBufferTimeout
//
// # Distributed Evaluation
//
// The buffer is checked before detection and waited on after it, so a
// queue-backed buffer may start its workers on the first Wait.
func WarmEvaluate(ctx context.Context, req WarmRequest) (Result, error) {
	if err := os.MkdirAll(req.ResultDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create result directory: %w", err)
	}
	if req.Network == nil {
		return nil, errors.New("no network supplied")
	}
	if req.Buffer != nil {
		filled, err := req.Buffer.AnyFilled(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect result buffer: %w", err)
		}
		if filled {
			return nil, ErrBufferNotEmpty
		}
	}
	local, err := evaluate(ctx, req.Network, req.Options)
	if err != nil || req.Buffer == nil {
		return local, err
	}

	timeout := req.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	loggerOf(req.Options).WithField("slots", req.Buffer.Len()).Debug("Waiting for result buffer")
	return req.Buffer.Wait(ctx, timeout)
}

// evaluate runs one detection and returns only its own boxes.
func evaluate(ctx context.Context, net detection.Network, opts Options) (Result, error) {
	log := loggerOf(opts).WithField("image", opts.ImagePath)

	img, err := imaging.Open(opts.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	boxes, err := detectImage(ctx, net, img, opts, log)
	if err != nil {
		return nil, err
	}
	log.WithField("boxes", len(boxes)).Info("Detection finished")
	return Result{boxes}, nil
}

// detectImage runs the network on img and writes the visualization when
// vis_opt is set.
func detectImage(ctx context.Context, net detection.Network, img image.Image, opts Options, log logrus.FieldLogger) ([]BoxRecord, error) {
	res, err := net.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	boxes := make([]BoxRecord, 0, len(res.Boxes))
	for _, b := range res.Boxes {
		boxes = append(boxes, BoxRecord{Points: b, Text: UnlabeledText, Ignore: false})
	}

	if opts.Params.VisOpt {
		if err := visualize(ctx, img, res, opts); err != nil {
			return nil, err
		}
		log.WithField("dir", opts.ResultDir).Info("visualized")
	}
	return boxes, nil
}

func visualize(ctx context.Context, img image.Image, res *detection.Result, opts Options) error {
	ann := imaging.Annotations{Predicted: res.Polys}
	for _, g := range opts.GroundTruth {
		if g.Text == UnlabeledText {
			ann.Ignored = append(ann.Ignored, g.Points)
		} else {
			ann.GroundTruth = append(ann.GroundTruth, g.Points)
		}
	}

	var region, affinity image.Image
	if res.Maps != nil {
		region, affinity = res.Maps.RegionHeatmap(), res.Maps.AffinityHeatmap()
	}

	paths, err := imaging.SaveResult(opts.ResultDir, opts.ImagePath, img, region, affinity, ann, loggerOf(opts))
	if err != nil {
		return err
	}

	if opts.Publisher == nil {
		return nil
	}
	for _, p := range []string{paths.Boxed, paths.Composite} {
		if err := opts.Publisher.Publish(ctx, relName(opts.ResultDir, p), p); err != nil {
			return fmt.Errorf("failed to publish result: %w", err)
		}
	}
	return nil
}

// DetectionParams converts experiment parameters for the detector.
func DetectionParams(p config.TestParams) detection.Params {
	return detection.Params{
		TextThreshold: p.TextThreshold,
		LinkThreshold: p.LinkThreshold,
		LowText:       p.LowText,
		CUDA:          p.Cuda,
		Poly:          p.Poly,
		CanvasSize:    p.CanvasSize,
		MagRatio:      p.MagRatio,
	}
}

func loggerOf(opts Options) logrus.FieldLogger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return logging.Discard()
}
