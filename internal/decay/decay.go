// Package decay simulates digital image rot: pixelation, grain and
// integrity-proportional JPEG compression.
package decay

import (
	"image"
	"math"
	"math/rand/v2"
)

const (
	// DefaultIntegrity is used by callers that do not pick a level.
	DefaultIntegrity = 0.9

	glitchIntegrityGate     = 0.5
	desaturateIntegrityGate = 0.8
	grainDamageRatio        = 0.5
)

// Noise yields standard normal samples.
type Noise interface {
	NormFloat64() float64
}

// Transform is the two-stage decay transform. The zero configuration from
// NewTransform is safe for concurrent use: every Apply call draws from its
// own noise source.
type Transform struct {
	resizer  Resizer
	newNoise func() Noise
}

type Option func(t *Transform)

func WithResizer(r Resizer) Option {
	return func(t *Transform) {
		if r != nil {
			t.resizer = r
		}
	}
}

// WithSeed makes every Apply call draw the same noise sequence.
func WithSeed(seed uint64) Option {
	return func(t *Transform) {
		t.newNoise = func() Noise {
			return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		}
	}
}

// WithNoise installs a noise factory. It is invoked once per Apply call.
func WithNoise(factory func() Noise) Option {
	return func(t *Transform) {
		if factory != nil {
			t.newNoise = factory
		}
	}
}

func NewTransform(opts ...Option) *Transform {
	t := &Transform{
		resizer: NearestResizer{},
		newNoise: func() Noise {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var defaultTransform = NewTransform()

// Degrade applies the default transform.
func Degrade(img image.Image, integrity float64) image.Image {
	return defaultTransform.Apply(img, integrity)
}

// Apply returns a decayed copy of img with identical bounds. Integrity is
// clamped to [0,1]; at 1 the input is returned as is. The input is never
// written to.
func (t *Transform) Apply(img image.Image, integrity float64) image.Image {
	integrity = Clamp(integrity)
	if integrity >= 1 {
		return img
	}

	damage := Damage(integrity)
	out := img

	if integrity < glitchIntegrityGate {
		out = Glitch(out, damage, t.resizer)
	}

	out = Grain(out, damage*grainDamageRatio, t.newNoise())

	if integrity < desaturateIntegrityGate {
		// Colour fading is not applied; the stage only pins RGB output.
		out = ToRGB(out)
	}

	return out
}

// Clamp bounds integrity to [0,1]. NaN is treated as fully decayed.
func Clamp(integrity float64) float64 {
	if math.IsNaN(integrity) {
		return 0
	}
	return math.Max(0, math.Min(1, integrity))
}

// Damage is 1 - Clamp(integrity).
func Damage(integrity float64) float64 {
	return 1 - Clamp(integrity)
}

// Quality maps integrity to a JPEG quality in [1,95].
func Quality(integrity float64) int {
	q := int(Clamp(integrity) * 95)
	if q < 1 {
		return 1
	}
	return q
}
