package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/dunamismax/bitrot/internal/decay"
	"github.com/dunamismax/bitrot/internal/domain"
)

// Rendition is one decayed output image.
type Rendition struct {
	Data      []byte
	Width     int
	Height    int
	Integrity float64
	Quality   int
}

type Transformer interface {
	Transform(ctx context.Context, input []byte, step domain.PipelineStep) (Rendition, error)
}

// decayTransformer treats any decay failure as a step failure. The
// original-bytes fallback of decay.Adapter is not emitted as a rendition.
type decayTransformer struct {
	logger    *log.Logger
	codec     decay.Codec
	maxPixels int64
	shared    *decay.Adapter
}

func newDecayTransformer(logger *log.Logger, maxPixels int64) decayTransformer {
	codec := decay.NewCodec()
	return decayTransformer{
		logger:    logger,
		codec:     codec,
		maxPixels: maxPixels,
		shared:    decay.NewAdapter(decay.WithLogger(logger), decay.WithCodec(codec), decay.WithMaxPixels(maxPixels)),
	}
}

func (t decayTransformer) Transform(ctx context.Context, input []byte, step domain.PipelineStep) (Rendition, error) {
	if err := ctx.Err(); err != nil {
		return Rendition{}, err
	}

	adapter := t.shared
	if step.Seed != nil {
		adapter = decay.NewAdapter(
			decay.WithLogger(t.logger),
			decay.WithCodec(t.codec),
			decay.WithMaxPixels(t.maxPixels),
			decay.WithTransform(decay.NewTransform(decay.WithSeed(*step.Seed))),
		)
	}

	res := adapter.Bytes(input, step.IntegrityValue())
	if !res.OK() {
		return Rendition{}, fmt.Errorf("decay integrity=%.3f: %w", step.IntegrityValue(), res.Err)
	}

	return Rendition{
		Data:      res.Data,
		Width:     res.Width,
		Height:    res.Height,
		Integrity: res.Integrity,
		Quality:   res.Quality,
	}, nil
}
