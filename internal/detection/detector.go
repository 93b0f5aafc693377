package detection

import (
	"context"
	"fmt"
	"image"

	"github.com/ironsheep/craft-text-demo/internal/geometry"
	"github.com/ironsheep/craft-text-demo/internal/imaging"
)

// Tensor is a normalized 3-channel image in CHW layout.
type Tensor struct {
	Data   []float32
	Width  int
	Height int
}

// ScoreMaps are the region and affinity score maps of one forward pass,
// row-major, Width*Height values each.
type ScoreMaps struct {
	Region   []float32
	Affinity []float32
	Width    int
	Height   int
}

// Crop returns the top-left w x h window of both maps.
func (m *ScoreMaps) Crop(w, h int) *ScoreMaps {
	if w > m.Width {
		w = m.Width
	}
	if h > m.Height {
		h = m.Height
	}
	out := &ScoreMaps{
		Region:   make([]float32, 0, w*h),
		Affinity: make([]float32, 0, w*h),
		Width:    w,
		Height:   h,
	}
	for y := 0; y < h; y++ {
		row := y * m.Width
		out.Region = append(out.Region, m.Region[row:row+w]...)
		out.Affinity = append(out.Affinity, m.Affinity[row:row+w]...)
	}
	return out
}

// RegionHeatmap renders the region map with the JET colour map.
func (m *ScoreMaps) RegionHeatmap() image.Image {
	return imaging.Heatmap(m.Region, m.Width, m.Height)
}

// AffinityHeatmap renders the affinity map with the JET colour map.
func (m *ScoreMaps) AffinityHeatmap() image.Image {
	return imaging.Heatmap(m.Affinity, m.Width, m.Height)
}

// Model is a CRAFT forward pass.
type Model interface {
	Forward(ctx context.Context, in *Tensor) (*ScoreMaps, error)
	Close() error
}

// Params are the detection thresholds and resize settings.
type Params struct {
	TextThreshold float64
	LinkThreshold float64
	LowText       float64
	CUDA          bool
	Poly          bool
	CanvasSize    int
	MagRatio      float64
}

// Result is the output of one detection call.
type Result struct {
	// Boxes are the detected quads in source image coordinates.
	Boxes []geometry.Quad
	// Polys mirror Boxes; polygon refinement is not performed.
	Polys []geometry.Quad
	// Maps are the score maps cropped to the unpadded area.
	Maps *ScoreMaps
}

// Detect preprocesses img, runs the model once and extracts boxes.
func Detect(ctx context.Context, m Model, img image.Image, p Params) (*Result, error) {
	if p.CanvasSize <= 0 || p.MagRatio <= 0 {
		return nil, fmt.Errorf("invalid resize settings: canvas_size=%d mag_ratio=%v", p.CanvasSize, p.MagRatio)
	}

	in, ratio, heatmapSize := Preprocess(img, p.CanvasSize, p.MagRatio)

	maps, err := m.Forward(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("forward pass failed: %w", err)
	}
	if maps.Width*maps.Height != len(maps.Region) || len(maps.Region) != len(maps.Affinity) {
		return nil, fmt.Errorf("score maps have inconsistent size: %dx%d with %d/%d values",
			maps.Width, maps.Height, len(maps.Region), len(maps.Affinity))
	}

	boxes := DetectBoxes(maps, p.TextThreshold, p.LinkThreshold, p.LowText)

	// map stride is 2; the resize ratio maps back to the source image
	scale := 2 / ratio
	origin := img.Bounds().Min
	for i := range boxes {
		boxes[i] = boxes[i].Scale(scale, scale)
		for j := range boxes[i] {
			boxes[i][j].X += float64(origin.X)
			boxes[i][j].Y += float64(origin.Y)
		}
	}

	polys := make([]geometry.Quad, len(boxes))
	copy(polys, boxes)

	return &Result{
		Boxes: boxes,
		Polys: polys,
		Maps:  maps.Crop(heatmapSize.X, heatmapSize.Y),
	}, nil
}

// Network detects text in a whole image.
type Network interface {
	Detect(ctx context.Context, img image.Image) (*Result, error)
	Close() error
}

// Loader opens a Network from a checkpoint.
type Loader func(checkpoint string, p Params) (Network, error)

// Detector binds a Model to fixed detection parameters.
type Detector struct {
	Model  Model
	Params Params
}

// NewDetector returns a Network running m with p.
func NewDetector(m Model, p Params) *Detector {
	return &Detector{Model: m, Params: p}
}

// Detect runs the full pipeline on img.
func (d *Detector) Detect(ctx context.Context, img image.Image) (*Result, error) {
	return Detect(ctx, d.Model, img, d.Params)
}

// Close releases the underlying model.
func (d *Detector) Close() error {
	return d.Model.Close()
}
