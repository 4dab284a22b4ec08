package decay

import (
	"image"
	"math"
)

// Grain adds zero-mean gaussian noise with standard deviation
// intensity*255/2 to every colour channel of every pixel. Results are
// clipped to [0,255] and truncated. Intensity <= 0 returns img as is.
func Grain(img image.Image, intensity float64, noise Noise) image.Image {
	if intensity <= 0 || noise == nil {
		return img
	}

	out := ToRGB(img)
	sigma := intensity * 255 / 2
	for y := 0; y < out.Rect.Dy(); y++ {
		row := out.Pix[y*out.Stride : y*out.Stride+out.Rect.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			row[i] = perturb(row[i], sigma, noise)
			row[i+1] = perturb(row[i+1], sigma, noise)
			row[i+2] = perturb(row[i+2], sigma, noise)
		}
	}
	return out
}

func perturb(v uint8, sigma float64, noise Noise) uint8 {
	f := float64(v) + noise.NormFloat64()*sigma
	return uint8(math.Max(0, math.Min(255, f)))
}
