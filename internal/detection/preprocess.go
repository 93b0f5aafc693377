package detection

import (
	"image"

	"github.com/disintegration/imaging"
)

// ImageNet statistics in 0-255 units.
var (
	channelMean = [3]float32{0.485 * 255, 0.456 * 255, 0.406 * 255}
	channelStd  = [3]float32{0.229 * 255, 0.224 * 255, 0.225 * 255}
)

// Preprocess resizes img for the network and normalizes it.
//
// The long side becomes magRatio times its size, capped at canvasSize. The
// resized image is placed at the top-left of a zero canvas whose sides are
// rounded up to a multiple of 32. ratio is the applied scale and
// heatmapSize the unpadded size of the score maps (half the resized size).
func Preprocess(img image.Image, canvasSize int, magRatio float64) (in *Tensor, ratio float64, heatmapSize image.Point) {
	resized, ratio := ResizeAspectRatio(img, canvasSize, magRatio)
	w, h := resized.Bounds().Dx(), resized.Bounds().Dy()

	padW, padH := roundUp32(w), roundUp32(h)
	in = Normalize(resized, padW, padH)
	return in, ratio, image.Pt(w/2, h/2)
}

// ResizeAspectRatio scales img so the long side is magRatio times larger,
// never exceeding canvasSize, and returns the resized image and the scale.
func ResizeAspectRatio(img image.Image, canvasSize int, magRatio float64) (*image.NRGBA, float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	long := w
	if h > long {
		long = h
	}

	target := magRatio * float64(long)
	if target > float64(canvasSize) {
		target = float64(canvasSize)
	}
	ratio := target / float64(long)

	tw, th := int(float64(w)*ratio), int(float64(h)*ratio)
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return imaging.Resize(img, tw, th, imaging.Linear), ratio
}

// Normalize converts img into a CHW tensor of size padW x padH. Pixels
// outside img stay zero, matching a zero-padded canvas before
// normalization is applied to the image area.
func Normalize(img *image.NRGBA, padW, padH int) *Tensor {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	plane := padW * padH
	data := make([]float32, 3*plane)

	for c := 0; c < 3; c++ {
		fill := -channelMean[c] / channelStd[c]
		base := c * plane
		for i := 0; i < plane; i++ {
			data[base+i] = fill
		}
	}

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			idx := y*padW + x
			for c := 0; c < 3; c++ {
				data[c*plane+idx] = (float32(px[c]) - channelMean[c]) / channelStd[c]
			}
		}
	}

	return &Tensor{Data: data, Width: padW, Height: padH}
}

func roundUp32(v int) int {
	if v%32 == 0 {
		return v
	}
	return v + 32 - v%32
}
