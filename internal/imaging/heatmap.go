package imaging

import (
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// jetStops are the control points of the JET colour map.
var jetStops = []struct {
	pos float64
	hex string
}{
	{0.0, "#00007f"},
	{0.125, "#0000ff"},
	{0.375, "#00ffff"},
	{0.625, "#ffff00"},
	{0.875, "#ff0000"},
	{1.0, "#7f0000"},
}

// jetLUT maps a byte score to its JET colour.
var jetLUT = buildJetLUT()

func buildJetLUT() [256]color.RGBA {
	var lut [256]color.RGBA
	for i := range lut {
		t := float64(i) / 255
		var c colorful.Color
		for s := 0; s < len(jetStops)-1; s++ {
			a, b := jetStops[s], jetStops[s+1]
			if t >= a.pos && t <= b.pos {
				ca, _ := colorful.Hex(a.hex)
				cb, _ := colorful.Hex(b.hex)
				c = ca.BlendRgb(cb, (t-a.pos)/(b.pos-a.pos))
				break
			}
		}
		r, g, bl := c.Clamped().RGB255()
		lut[i] = color.RGBA{R: r, G: g, B: bl, A: 255}
	}
	return lut
}

// JetColor returns the JET colour for a score in [0,1]. Scores outside the
// range are clamped.
func JetColor(score float64) color.RGBA {
	return jetLUT[scoreToByte(score)]
}

// Heatmap renders a row-major score map of width*height values as a JET
// coloured image. Scores are clipped to [0,1] before colouring.
func Heatmap(scores []float32, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if i >= len(scores) {
				return img
			}
			img.SetRGBA(x, y, jetLUT[scoreToByte(float64(scores[i]))])
		}
	}
	return img
}

func scoreToByte(v float64) uint8 {
	switch {
	case v <= 0 || v != v:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v * 255)
}
