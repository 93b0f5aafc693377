package detection

import (
	"math"

	"github.com/ironsheep/craft-text-demo/internal/geometry"
)

const (
	// minComponentSize is the smallest component that can become a box.
	minComponentSize = 10
	squareTolerance  = 0.1
)

// component is one 4-connected group of candidate pixels in the score maps.
type component struct {
	pixels []int // linear indices into the map
	minX   int
	minY   int
	maxX   int
	maxY   int
}

func (c *component) width() int  { return c.maxX - c.minX + 1 }
func (c *component) height() int { return c.maxY - c.minY + 1 }

// DetectBoxes extracts text boxes from the score maps, in map coordinates.
func DetectBoxes(maps *ScoreMaps, textThreshold, linkThreshold, lowText float64) []geometry.Quad {
	w, h := maps.Width, maps.Height
	if w == 0 || h == 0 {
		return nil
	}

	text := make([]bool, w*h)
	link := make([]bool, w*h)
	combined := make([]bool, w*h)
	for i := range combined {
		text[i] = float64(maps.Region[i]) > lowText
		link[i] = float64(maps.Affinity[i]) > linkThreshold
		combined[i] = text[i] || link[i]
	}

	var boxes []geometry.Quad
	for _, c := range labelComponents(combined, w, h) {
		if len(c.pixels) < minComponentSize {
			continue
		}

		peak := float32(math.Inf(-1))
		for _, idx := range c.pixels {
			if maps.Region[idx] > peak {
				peak = maps.Region[idx]
			}
		}
		if float64(peak) < textThreshold {
			continue
		}

		box, ok := componentBox(c, text, link, w, h)
		if !ok {
			continue
		}
		boxes = append(boxes, box)
	}
	return boxes
}

// componentBox dilates a component's segmentation mask and fits a
// rotated rectangle around it.
func componentBox(c component, text, link []bool, w, h int) (geometry.Quad, bool) {
	cw, ch := c.width(), c.height()
	niter := int(math.Sqrt(float64(len(c.pixels))*float64(minInt(cw, ch))/float64(cw*ch)) * 2)

	sx, sy := maxInt(c.minX-niter, 0), maxInt(c.minY-niter, 0)
	ex, ey := minInt(c.minX+cw+niter+1, w), minInt(c.minY+ch+niter+1, h)
	ww, wh := ex-sx, ey-sy

	// link-only pixels are excluded so neighbouring words stay apart
	seg := make([]bool, ww*wh)
	for _, idx := range c.pixels {
		if link[idx] && !text[idx] {
			continue
		}
		x, y := idx%w, idx/w
		seg[(y-sy)*ww+(x-sx)] = true
	}

	seg = dilate(seg, ww, wh, niter+1)

	var pts []geometry.Point
	for y := 0; y < wh; y++ {
		for x := 0; x < ww; x++ {
			if seg[y*ww+x] {
				pts = append(pts, geometry.Point{X: float64(x + sx), Y: float64(y + sy)})
			}
		}
	}
	if len(pts) == 0 {
		return geometry.Quad{}, false
	}

	box := geometry.MinAreaRect(pts)

	bw := math.Hypot(box[0].X-box[1].X, box[0].Y-box[1].Y)
	bh := math.Hypot(box[1].X-box[2].X, box[1].Y-box[2].Y)
	if math.Abs(1-math.Max(bw, bh)/(math.Min(bw, bh)+1e-5)) <= squareTolerance {
		l, r := math.Inf(1), math.Inf(-1)
		t, b := math.Inf(1), math.Inf(-1)
		for _, p := range pts {
			l, r = math.Min(l, p.X), math.Max(r, p.X)
			t, b = math.Min(t, p.Y), math.Max(b, p.Y)
		}
		box = geometry.Quad{{X: l, Y: t}, {X: r, Y: t}, {X: r, Y: b}, {X: l, Y: b}}
	}

	return geometry.OrderClockwise(box), true
}

// labelComponents groups set pixels into 4-connected components using an
// explicit stack rather than recursion.
func labelComponents(mask []bool, w, h int) []component {
	visited := make([]bool, len(mask))
	var comps []component

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}

		c := component{minX: w, minY: h, maxX: -1, maxY: -1}
		stack := []int{start}
		visited[start] = true

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			x, y := idx%w, idx/w
			c.pixels = append(c.pixels, idx)
			c.minX, c.maxX = minInt(c.minX, x), maxInt(c.maxX, x)
			c.minY, c.maxY = minInt(c.minY, y), maxInt(c.maxY, y)

			// 4-connected neighbours
			neighbours := [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}}
			for _, n := range neighbours {
				nx, ny := n[0], n[1]
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				ni := ny*w + nx
				if mask[ni] && !visited[ni] {
					visited[ni] = true
					stack = append(stack, ni)
				}
			}
		}
		comps = append(comps, c)
	}
	return comps
}

// dilate grows mask with a k x k rectangular structuring element anchored at
// its centre (k/2).
func dilate(mask []bool, w, h, k int) []bool {
	if k <= 1 {
		return mask
	}
	lo := -(k / 2)
	hi := lo + k - 1

	// separable: rows first, then columns
	rows := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for d := lo; d <= hi; d++ {
				xx := x + d
				if xx >= 0 && xx < w && mask[y*w+xx] {
					rows[y*w+x] = true
					break
				}
			}
		}
	}

	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for d := lo; d <= hi; d++ {
				yy := y + d
				if yy >= 0 && yy < h && rows[yy*w+x] {
					out[y*w+x] = true
					break
				}
			}
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
