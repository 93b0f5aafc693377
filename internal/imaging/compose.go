package imaging

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blend"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/craft-text-demo/internal/geometry"
)

const (
	originalWeight = 0.4
	heatmapWeight  = 0.6
	blendOffset    = 5
)

// Overlay blends a heat map onto img: 0.4*img + 0.6*heat + 5, clamped to
// the byte range. The heat map is resized to img's size with a linear
// filter first; a missing heat map counts as black.
func Overlay(img image.Image, heat image.Image) *image.RGBA {
	base := imaging.Clone(img)
	w, h := base.Bounds().Dx(), base.Bounds().Dy()
	if heat == nil || heat.Bounds().Empty() {
		heat = imaging.New(w, h, color.Black)
	}
	resized := imaging.Resize(heat, w, h, imaging.Linear)

	blended := blend.Opacity(base, resized, heatmapWeight)
	return adjust.Apply(blended, func(c color.RGBA) color.RGBA {
		return color.RGBA{
			R: addClamp(c.R, blendOffset),
			G: addClamp(c.G, blendOffset),
			B: addClamp(c.B, blendOffset),
			A: c.A,
		}
	})
}

// Compose builds the 2x2 debugging composite: the original and the original
// with predicted boxes on the top row, the region and affinity overlays on
// the bottom row. The result is exactly twice the width and height of img.
// Boxes that cannot be drawn are reported to log at debug level.
func Compose(img image.Image, region, affinity image.Image, boxes []geometry.Quad, log logrus.FieldLogger) *image.NRGBA {
	base := imaging.Clone(img)
	w, h := base.Bounds().Dx(), base.Bounds().Dy()

	boxed := DrawBoxes(base, boxes, PredictedColor, 3, log)
	regionOverlay := Overlay(base, region)
	affinityOverlay := Overlay(base, affinity)

	canvas := imaging.New(2*w, 2*h, color.Black)
	canvas = imaging.Paste(canvas, base, image.Pt(0, 0))
	canvas = imaging.Paste(canvas, boxed, image.Pt(w, 0))
	canvas = imaging.Paste(canvas, regionOverlay, image.Pt(0, h))
	canvas = imaging.Paste(canvas, affinityOverlay, image.Pt(w, h))
	return canvas
}

// Annotations are the boxes drawn on the boxed result image.
type Annotations struct {
	Predicted   []geometry.Quad
	GroundTruth []geometry.Quad
	Ignored     []geometry.Quad
}

// ResultPaths are the files written by SaveResult.
type ResultPaths struct {
	Boxed     string `json:"boxed"`
	Composite string `json:"composite"`
}

// ResultNames returns the boxed and composite file names for an image path:
// res_<stem>.jpg and res_<stem>_box.jpg.
func ResultNames(imagePath string) (boxed, composite string) {
	stem := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	return "res_" + stem + ".jpg", "res_" + stem + "_box.jpg"
}

// SaveResult writes the two result JPEGs for one image into dir:
//
//   - res_<stem>.jpg: predicted boxes in green, ground truth in red and
//     ignored ground truth in gray, all two pixels wide
//   - res_<stem>_box.jpg: the Compose output
//
// The directory is created if it does not exist.
//
// Parameters:
//   - dir: Result directory
//   - imagePath: Path of the evaluated image; only its stem is used
//   - img: The decoded image
//   - region, affinity: Heat maps at any size; nil counts as black
//   - ann: Boxes to draw on res_<stem>.jpg
//   - log: Receives skipped-box entries; nil discards
//
// Returns:
//   - *ResultPaths: Paths of both written files
//   - error: Directory creation or encoding failure
func SaveResult(dir, imagePath string, img, region, affinity image.Image, ann Annotations, log logrus.FieldLogger) (*ResultPaths, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create result directory: %w", err)
	}

	boxed := DrawBoxes(img, ann.Predicted, PredictedColor, 2, log)
	boxed = DrawBoxes(boxed, ann.GroundTruth, GroundTruthColor, 2, log)
	boxed = DrawBoxes(boxed, ann.Ignored, IgnoredColor, 2, log)

	composite := Compose(img, region, affinity, ann.Predicted, log)

	boxedName, compositeName := ResultNames(imagePath)
	paths := &ResultPaths{
		Boxed:     filepath.Join(dir, boxedName),
		Composite: filepath.Join(dir, compositeName),
	}

	if err := Save(boxed, paths.Boxed); err != nil {
		return nil, fmt.Errorf("failed to save boxed image: %w", err)
	}
	if err := Save(composite, paths.Composite); err != nil {
		return nil, fmt.Errorf("failed to save composite image: %w", err)
	}
	return paths, nil
}

// Save encodes img in the format named by path's extension. JPEGs use
// quality 95.
func Save(img image.Image, path string) error {
	return imaging.Save(img, path, imaging.JPEGQuality(95))
}

func addClamp(v uint8, d int) uint8 {
	s := int(v) + d
	if s > 255 {
		return 255
	}
	return uint8(s)
}
