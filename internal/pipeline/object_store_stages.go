package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dunamismax/bitrot/internal/domain"
)

const defaultOutputPrefix = "outputs"

// ObjectStore is the subset of storage.Client the object-store stages use.
type ObjectStore interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

type ObjectStoreFetcher struct {
	Storage ObjectStore
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Storage.ReadObject(ctx, req.ObjectKey)
}

type ObjectStoreEmitter struct {
	Storage      ObjectStore
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, step domain.PipelineStep, r Rendition) (Output, error) {
	if e.Storage == nil {
		return Output{}, errors.New("storage client is required")
	}
	if strings.TrimSpace(step.ID) == "" {
		return Output{}, errors.New("pipeline step id is required")
	}

	prefix := strings.TrimSpace(e.OutputPrefix)
	if prefix == "" {
		prefix = defaultOutputPrefix
	}
	objectKey := path.Join(prefix, sanitizePathToken(req.JobID), outputName(step))

	if err := e.Storage.WriteObject(ctx, objectKey, r.Data, outputContentType); err != nil {
		return Output{}, err
	}
	return newOutput(step, r, objectKey), nil
}

func NewObjectStoreProcessor(fetcher ObjectStoreFetcher, emitter ObjectStoreEmitter, opts ...Option) (*Processor, error) {
	if fetcher.Storage == nil || emitter.Storage == nil {
		return nil, errors.New("object-store processor requires storage")
	}
	o := buildOptions(opts)

	return &Processor{
		fetcher:     fetcher,
		transformer: newDecayTransformer(o.logger, o.maxPixels),
		emitter:     emitter,
	}, nil
}
