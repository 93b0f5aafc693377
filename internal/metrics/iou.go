// Package metrics scores detected text boxes against ground truth using
// the ICDAR IoU protocol.
//
// A detection matches a ground-truth box when their IoU exceeds 0.5 and
// neither has been matched before; matching is one-to-one and greedy in
// input order. Ignored ("###") ground-truth boxes do not count, and neither
// do detections that lie more than half inside an ignored box.
package metrics

import (
	"github.com/ironsheep/craft-text-demo/internal/dataset"
	"github.com/ironsheep/craft-text-demo/internal/geometry"
)

const (
	// IoUConstraint is the minimum IoU for a match.
	IoUConstraint = 0.5
	// AreaPrecisionConstraint is the share of a detection that must fall
	// inside an ignored box for the detection to be ignored too.
	AreaPrecisionConstraint = 0.5
)

// ImageResult is the score of one image.
type ImageResult struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Hmean     float64 `json:"hmean"`

	Matched int `json:"matched"`
	GtCare  int `json:"gt_care"`
	DetCare int `json:"det_care"`

	// Pairs lists matched (gt, det) indices into the valid boxes.
	Pairs [][2]int `json:"pairs,omitempty"`
}

// Summary is the score of a whole dataset.
type Summary struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Hmean     float64 `json:"hmean"`
}

// EvaluateImage scores pred against gt for a single image.
func EvaluateImage(gt, pred []dataset.BoxRecord) ImageResult {
	var gtPols []geometry.Quad
	gtDontCare := map[int]bool{}
	for _, b := range gt {
		if !validQuad(b.Points) {
			continue
		}
		if b.Ignore {
			gtDontCare[len(gtPols)] = true
		}
		gtPols = append(gtPols, b.Points)
	}

	var detPols []geometry.Quad
	detDontCare := map[int]bool{}
	for _, b := range pred {
		if !validQuad(b.Points) {
			continue
		}
		idx := len(detPols)
		detPols = append(detPols, b.Points)

		area := b.Points.Area()
		for g := range gtDontCare {
			if geometry.IntersectionArea(gtPols[g], b.Points)/area > AreaPrecisionConstraint {
				detDontCare[idx] = true
				break
			}
		}
	}

	res := ImageResult{}
	if len(gtPols) > 0 && len(detPols) > 0 {
		gtTaken := make([]bool, len(gtPols))
		detTaken := make([]bool, len(detPols))
		for g := range gtPols {
			for d := range detPols {
				if gtTaken[g] || detTaken[d] || gtDontCare[g] || detDontCare[d] {
					continue
				}
				if geometry.IoU(gtPols[g], detPols[d]) > IoUConstraint {
					gtTaken[g] = true
					detTaken[d] = true
					res.Matched++
					res.Pairs = append(res.Pairs, [2]int{g, d})
				}
			}
		}
	}

	res.GtCare = len(gtPols) - len(gtDontCare)
	res.DetCare = len(detPols) - len(detDontCare)
	if res.GtCare == 0 {
		res.Recall = 1
		if res.DetCare > 0 {
			res.Precision = 0
		} else {
			res.Precision = 1
		}
	} else {
		res.Recall = float64(res.Matched) / float64(res.GtCare)
		if res.DetCare > 0 {
			res.Precision = float64(res.Matched) / float64(res.DetCare)
		}
	}
	res.Hmean = hmean(res.Precision, res.Recall)
	return res
}

// Combine aggregates per-image results over a dataset.
func Combine(results []ImageResult) Summary {
	var matched, gtCare, detCare int
	for _, r := range results {
		matched += r.Matched
		gtCare += r.GtCare
		detCare += r.DetCare
	}

	s := Summary{}
	if gtCare > 0 {
		s.Recall = float64(matched) / float64(gtCare)
	}
	if detCare > 0 {
		s.Precision = float64(matched) / float64(detCare)
	}
	s.Hmean = hmean(s.Precision, s.Recall)
	return s
}

func hmean(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func validQuad(q geometry.Quad) bool {
	return q.IsFinite() && q.Area() > 0
}
