package decay

import (
	"image"
	"image/draw"
)

// ToRGB returns an opaque NRGBA copy of img. Alpha is discarded rather than
// composited, so colour channels keep their straight values.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()*4], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
	default:
		draw.Draw(out, b, img, b.Min, draw.Src)
	}

	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}
