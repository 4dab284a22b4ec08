package decay

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	glitchMinIntensity = 0.3
	glitchMinScale     = 0.1
	glitchScaleSlope   = 0.8
)

// Resizer is the resize primitive the glitch stage samples through.
type Resizer interface {
	Resize(img image.Image, width, height int) *image.NRGBA
}

// NearestResizer resamples with nearest-neighbour filtering.
type NearestResizer struct{}

func (NearestResizer) Resize(img image.Image, width, height int) *image.NRGBA {
	return imaging.Resize(img, width, height, imaging.NearestNeighbor)
}

// ScaleFactor is the intermediate size ratio used by Glitch.
func ScaleFactor(intensity float64) float64 {
	return math.Max(glitchMinScale, 1-intensity*glitchScaleSlope)
}

// GlitchSize returns the downscaled dimensions for a w x h image. Each side
// is at least one pixel.
func GlitchSize(w, h int, intensity float64) (int, int) {
	scale := ScaleFactor(intensity)
	return max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
}

// Glitch pixelates img by scaling it down and back up with nearest
// sampling. Intensities below 0.3 leave the image untouched.
func Glitch(img image.Image, intensity float64, r Resizer) image.Image {
	if intensity < glitchMinIntensity {
		return img
	}
	if r == nil {
		r = NearestResizer{}
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return img
	}

	smallW, smallH := GlitchSize(w, h, intensity)
	small := r.Resize(img, smallW, smallH)
	out := r.Resize(small, w, h)
	if b.Min != (image.Point{}) {
		out.Rect = out.Rect.Add(b.Min)
	}
	return out
}
