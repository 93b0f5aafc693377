package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/craft-text-demo/internal/geometry"
	"github.com/ironsheep/craft-text-demo/internal/logging"
)

// Box colours used by the result writers.
var (
	PredictedColor   = color.RGBA{0, 255, 0, 255}
	GroundTruthColor = color.RGBA{255, 0, 0, 255}
	IgnoredColor     = color.RGBA{128, 128, 128, 255}
	OCRColor         = color.RGBA{255, 255, 0, 255}
)

var namedColors = map[string]color.RGBA{
	"yellow": {255, 255, 0, 255},
	"green":  {0, 255, 0, 255},
	"red":    {255, 0, 0, 255},
	"blue":   {0, 0, 255, 255},
	"gray":   {128, 128, 128, 255},
	"grey":   {128, 128, 128, 255},
	"white":  {255, 255, 255, 255},
	"black":  {0, 0, 0, 255},
	"orange": {255, 165, 0, 255},
	"cyan":   {0, 255, 255, 255},
}

// ParseColor parses a colour name ("yellow", "green", ...) or a hex string
// like "#FF0000" or "#FF000080".
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if c, ok := namedColors[s]; ok {
		return c, nil
	}

	hex := strings.TrimPrefix(s, "#")
	var alpha uint8 = 255
	switch len(hex) {
	case 6:
	case 8:
		a, err := strconv.ParseUint(hex[6:], 16, 8)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("invalid alpha in %q: %w", s, err)
		}
		alpha = uint8(a)
		hex = hex[:6]
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	c, err := colorful.Hex("#" + hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: alpha}, nil
}

// DrawBoxes draws each quad as a closed polyline on a copy of img and
// returns the copy. The source image is never modified.
//
// Strokes are width pixels thick; even widths put the extra pixel on the
// +x/+y side. A box that cannot be drawn (non-finite coordinates or a panic
// while rasterizing) is skipped and the remaining boxes are still drawn.
//
// Parameters:
//   - img: Source image, left untouched
//   - boxes: Quads in img's pixel coordinates
//   - c: Stroke colour
//   - width: Stroke width in pixels, at least 1
//   - log: Receives a debug entry per skipped box; nil discards
//
// Returns:
//   - *image.RGBA: A copy of img with the boxes drawn
func DrawBoxes(img image.Image, boxes []geometry.Quad, c color.Color, width int, log logrus.FieldLogger) *image.RGBA {
	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	if width < 1 {
		width = 1
	}
	if log == nil {
		log = logging.Discard()
	}
	for i, box := range boxes {
		if err := drawQuadSafe(result, box, c, width); err != nil {
			log.WithError(err).WithField("box", i).Debug("Skipping box")
		}
	}
	return result
}

// drawQuadSafe draws one closed quad, turning a panic into an error.
func drawQuadSafe(dst *image.RGBA, box geometry.Quad, c color.Color, width int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("draw failed: %v", r)
		}
	}()

	if !box.IsFinite() {
		return fmt.Errorf("box has non-finite coordinates")
	}
	for i := 0; i < 4; i++ {
		p0 := box[i]
		p1 := box[(i+1)%4]
		drawSegment(dst, p0.X, p0.Y, p1.X, p1.Y, c, width)
	}
	return nil
}

// drawSegment rasterizes a thick line with Bresenham's algorithm. The
// segment is clipped to the image (plus stroke margin) first so absurd
// coordinates cannot make the loop run for long.
func drawSegment(dst *image.RGBA, x0, y0, x1, y1 float64, c color.Color, width int) {
	b := dst.Bounds()
	margin := float64(width)
	clip := [4]float64{float64(b.Min.X) - margin, float64(b.Min.Y) - margin, float64(b.Max.X) + margin, float64(b.Max.Y) + margin}

	x0, y0, x1, y1, ok := clipSegment(x0, y0, x1, y1, clip)
	if !ok {
		return
	}

	ix0, iy0 := int(math.Round(x0)), int(math.Round(y0))
	ix1, iy1 := int(math.Round(x1)), int(math.Round(y1))

	dx := absInt(ix1 - ix0)
	dy := -absInt(iy1 - iy0)
	sx, sy := 1, 1
	if ix0 > ix1 {
		sx = -1
	}
	if iy0 > iy1 {
		sy = -1
	}
	e := dx + dy

	lo := -(width - 1) / 2
	hi := lo + width - 1
	for {
		for oy := lo; oy <= hi; oy++ {
			for ox := lo; ox <= hi; ox++ {
				px, py := ix0+ox, iy0+oy
				if px >= b.Min.X && px < b.Max.X && py >= b.Min.Y && py < b.Max.Y {
					dst.Set(px, py, c)
				}
			}
		}
		if ix0 == ix1 && iy0 == iy1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			ix0 += sx
		}
		if e2 <= dx {
			e += dx
			iy0 += sy
		}
	}
}

// clipSegment clips a segment to the rectangle {minX, minY, maxX, maxY}
// (Liang-Barsky).
func clipSegment(x0, y0, x1, y1 float64, r [4]float64) (float64, float64, float64, float64, bool) {
	dx, dy := x1-x0, y1-y0
	t0, t1 := 0.0, 1.0
	p := [4]float64{-dx, dx, -dy, dy}
	q := [4]float64{x0 - r[0], r[2] - x0, y0 - r[1], r[3] - y0}

	for i := 0; i < 4; i++ {
		if p[i] == 0 {
			if q[i] < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		t := q[i] / p[i]
		if p[i] < 0 {
			if t > t1 {
				return 0, 0, 0, 0, false
			}
			if t > t0 {
				t0 = t
			}
		} else {
			if t < t0 {
				return 0, 0, 0, 0, false
			}
			if t < t1 {
				t1 = t
			}
		}
	}
	return x0 + t0*dx, y0 + t0*dy, x0 + t1*dx, y0 + t1*dy, true
}

// DrawIndexLabels writes the 1-based index of each box next to its first
// corner so rows in a result table can be matched to boxes.
func DrawIndexLabels(img *image.RGBA, boxes []geometry.Quad, fg, bg color.RGBA) {
	for i, box := range boxes {
		if !box.IsFinite() {
			continue
		}
		x := int(box[0].X)
		y := int(box[0].Y) - 8
		if y < img.Bounds().Min.Y {
			y = int(box[0].Y) + 2
		}
		drawLabel(img, x, y, strconv.Itoa(i+1), fg, bg)
	}
}

// drawLabel draws text with a 3x5 pixel digit font on a filled background.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
	}

	bounds := img.Bounds()
	const charWidth = 4
	labelWidth := len(text) * charWidth
	const labelHeight = 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			if image.Pt(x+dx, y+dy).In(bounds) {
				img.Set(x+dx, y+dy, bg)
			}
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' && image.Pt(cx+col, y+row).In(bounds) {
					img.Set(cx+col, y+row, fg)
				}
			}
		}
		cx += charWidth
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
