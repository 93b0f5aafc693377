package geometry

import (
	"math"
	"sort"
)

// ConvexHull returns the convex hull of pts using the monotone chain
// algorithm. The hull is returned with positive SignedArea and without
// collinear points.
func ConvexHull(pts []Point) []Point {
	if len(pts) < 3 {
		out := make([]Point, len(pts))
		copy(out, pts)
		return out
	}

	sorted := make([]Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	hull := make([]Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// MinAreaRect returns the four corners of the minimum-area enclosing
// rectangle of pts. One side of the optimal rectangle is always collinear
// with a hull edge, so every hull edge direction is tried.
func MinAreaRect(pts []Point) Quad {
	hull := ConvexHull(pts)
	switch len(hull) {
	case 0:
		return Quad{}
	case 1:
		p := hull[0]
		return Quad{p, p, p, p}
	case 2:
		a, b := hull[0], hull[1]
		return Quad{a, b, b, a}
	}

	bestArea := math.Inf(1)
	var best Quad
	for i := range hull {
		a := hull[i]
		b := hull[(i+1)%len(hull)]
		edge := math.Hypot(b.X-a.X, b.Y-a.Y)
		if edge == 0 {
			continue
		}
		ux, uy := (b.X-a.X)/edge, (b.Y-a.Y)/edge
		vx, vy := -uy, ux

		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			du := (p.X-a.X)*ux + (p.Y-a.Y)*uy
			dv := (p.X-a.X)*vx + (p.Y-a.Y)*vy
			minU = math.Min(minU, du)
			maxU = math.Max(maxU, du)
			minV = math.Min(minV, dv)
			maxV = math.Max(maxV, dv)
		}

		area := (maxU - minU) * (maxV - minV)
		if area < bestArea {
			bestArea = area
			corner := func(u, v float64) Point {
				return Point{X: a.X + u*ux + v*vx, Y: a.Y + u*uy + v*vy}
			}
			best = Quad{corner(minU, minV), corner(maxU, minV), corner(maxU, maxV), corner(minU, maxV)}
		}
	}
	return best
}

// ClipPolygon clips subject against a convex clip polygon
// (Sutherland-Hodgman). Both polygons must have positive SignedArea.
func ClipPolygon(subject, clip []Point) []Point {
	output := subject
	for i := range clip {
		if len(output) == 0 {
			break
		}
		a := clip[i]
		b := clip[(i+1)%len(clip)]
		input := output
		output = make([]Point, 0, len(input)+2)

		for j := range input {
			cur := input[j]
			prev := input[(j+len(input)-1)%len(input)]
			curIn := cross(a, b, cur) >= 0
			prevIn := cross(a, b, prev) >= 0
			if curIn {
				if !prevIn {
					output = append(output, intersect(prev, cur, a, b))
				}
				output = append(output, cur)
			} else if prevIn {
				output = append(output, intersect(prev, cur, a, b))
			}
		}
	}
	return output
}

// IntersectionArea returns the overlapping area of two quads. Non-convex
// quads are clipped against their convex hull.
func IntersectionArea(a, b Quad) float64 {
	pa := positive(a.Points())
	pb := ConvexHull(b.Points())
	if len(pb) < 3 {
		return 0
	}
	return math.Abs(SignedArea(ClipPolygon(pa, pb)))
}

// IoU returns intersection over union of two quads, 0 when the union is empty.
func IoU(a, b Quad) float64 {
	inter := IntersectionArea(a, b)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func positive(poly []Point) []Point {
	if SignedArea(poly) >= 0 {
		return poly
	}
	out := make([]Point, len(poly))
	for i, p := range poly {
		out[len(poly)-1-i] = p
	}
	return out
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func intersect(p1, p2, a, b Point) Point {
	dx1, dy1 := p2.X-p1.X, p2.Y-p1.Y
	dx2, dy2 := b.X-a.X, b.Y-a.Y
	den := dx1*dy2 - dy1*dx2
	if den == 0 {
		return p2
	}
	t := ((a.X-p1.X)*dy2 - (a.Y-p1.Y)*dx2) / den
	return Point{X: p1.X + t*dx1, Y: p1.Y + t*dy1}
}
