package geometry

import (
	"image"
	"math"
)

// Point is a 2D point in image pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Quad is a quadrilateral text box: exactly four points, usually clockwise
// starting at the top-left corner. Coordinates are not range-checked.
type Quad [4]Point

// QuadFromInts builds a Quad from eight integer coordinates
// x1,y1,x2,y2,x3,y3,x4,y4.
func QuadFromInts(c [8]int) Quad {
	var q Quad
	for i := 0; i < 4; i++ {
		q[i] = Point{X: float64(c[2*i]), Y: float64(c[2*i+1])}
	}
	return q
}

// QuadFromRect returns the corners of r clockwise from the top-left.
func QuadFromRect(r image.Rectangle) Quad {
	return QuadFromInts([8]int{r.Min.X, r.Min.Y, r.Max.X, r.Min.Y, r.Max.X, r.Max.Y, r.Min.X, r.Max.Y})
}

// Points returns the corners as a slice.
func (q Quad) Points() []Point {
	return []Point{q[0], q[1], q[2], q[3]}
}

// Scale multiplies every coordinate by sx and sy.
func (q Quad) Scale(sx, sy float64) Quad {
	var out Quad
	for i, p := range q {
		out[i] = Point{X: p.X * sx, Y: p.Y * sy}
	}
	return out
}

// Area returns the unsigned area of the quad (shoelace formula).
func (q Quad) Area() float64 {
	return math.Abs(SignedArea(q.Points()))
}

// Bounds returns the smallest integer rectangle containing the quad.
func (q Quad) Bounds() image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range q {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}

// IsFinite reports whether every coordinate is a finite number.
func (q Quad) IsFinite() bool {
	for _, p := range q {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return false
		}
	}
	return true
}

// SignedArea returns the signed polygon area. Positive means counter-clockwise
// in a y-up frame, which is clockwise on screen (y-down).
func SignedArea(poly []Point) float64 {
	n := len(poly)
	if n < 3 {
		return 0
	}
	var s float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		s += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return s / 2
}

// OrderClockwise arranges four corners clockwise on screen, starting from
// the corner with the smallest x+y. Near-square boxes rotated around 45
// degrees fall back to the axis-aligned bounding box, which keeps the start
// corner stable.
func OrderClockwise(box Quad) Quad {
	w := dist(box[0], box[1])
	h := dist(box[1], box[2])
	ratio := math.Max(w, h) / (math.Min(w, h) + 1e-5)
	if math.Abs(1-ratio) <= 0.1 {
		minX, minY := math.Inf(1), math.Inf(1)
		maxX, maxY := math.Inf(-1), math.Inf(-1)
		for _, p := range box {
			minX = math.Min(minX, p.X)
			minY = math.Min(minY, p.Y)
			maxX = math.Max(maxX, p.X)
			maxY = math.Max(maxY, p.Y)
		}
		return Quad{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}}
	}

	// clockwise on screen is positive signed area in y-down coordinates
	if SignedArea(box.Points()) < 0 {
		box = Quad{box[0], box[3], box[2], box[1]}
	}

	start := 0
	best := math.Inf(1)
	for i, p := range box {
		if s := p.X + p.Y; s < best {
			best = s
			start = i
		}
	}
	var out Quad
	for i := 0; i < 4; i++ {
		out[i] = box[(start+i)%4]
	}
	return out
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
