package dvbsub

import (
	"image/color"
	"math"
)

// defaultColors returns the 4-entry default table extended to 256 entries:
// index 0 fully transparent, 1 white, 2 black, 3 gray. Undefined entries are
// transparent.
func defaultColors() [256]color.NRGBA {
	var colors [256]color.NRGBA
	colors[1] = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	colors[2] = color.NRGBA{R: 0, G: 0, B: 0, A: 255}
	colors[3] = color.NRGBA{R: 127, G: 127, B: 127, A: 255}
	return colors
}

var defaultCLUT = defaultColors()

// clutColors resolves a CLUT id to its color table, falling back to the
// default table when the id was never defined.
func (d *Decoder) clutColors(id int) *[256]color.NRGBA {
	if cl, ok := d.cluts[id]; ok {
		return &cl.colors
	}
	return &defaultCLUT
}

// ycbcrToNRGBA converts a CLUT entry's Y/Cr/Cb/T values to RGBA using the
// BT.601 coefficients. T is transparency, so alpha is its complement.
func ycbcrToNRGBA(y, cr, cb, t uint8) color.NRGBA {
	yf := float64(y)
	crf := float64(cr) - 128
	cbf := float64(cb) - 128

	return color.NRGBA{
		R: clamp255(yf + 1.402*crf),
		G: clamp255(yf - 0.344136*cbf - 0.714136*crf),
		B: clamp255(yf + 1.772*cbf),
		A: 255 - t,
	}
}

func clamp255(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
