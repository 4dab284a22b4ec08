package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/dunamismax/bitrot/internal/decay"
	"github.com/dunamismax/bitrot/internal/domain"
	"github.com/spf13/afero"
)

const (
	SourceTypeLocalFile = domain.SourceTypeLocalFile

	outputExtension   = "jpg"
	outputContentType = "image/jpeg"
)

var (
	ErrUnsupportedSourceType = errors.New("unsupported source_type")
	ErrFetch                 = errors.New("fetch stage")
	ErrEmit                  = errors.New("emit stage")
)

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	Pipeline   []domain.PipelineStep
}

type Output struct {
	StepID    string  `json:"step_id"`
	Integrity float64 `json:"integrity"`
	Quality   int     `json:"quality"`
	Path      string  `json:"path"`
	Bytes     int     `json:"bytes"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

type Result struct {
	SourceBytes int
	Outputs     []Output
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, step domain.PipelineStep, r Rendition) (Output, error)
}

type Processor struct {
	fetcher     Fetcher
	transformer Transformer
	emitter     Emitter
}

type Option func(o *options)

type options struct {
	fs        afero.Fs
	logger    *log.Logger
	maxPixels int64
}

func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		if fs != nil {
			o.fs = fs
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMaxPixels caps source width*height. Zero keeps the default and a
// negative value disables the check.
func WithMaxPixels(n int64) Option {
	return func(o *options) {
		if n != 0 {
			o.maxPixels = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		fs:        afero.NewOsFs(),
		logger:    log.New(io.Discard, "", 0),
		maxPixels: decay.DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewLocalProcessor(outputDir string, opts ...Option) (*Processor, error) {
	if strings.TrimSpace(outputDir) == "" {
		return nil, errors.New("output directory is required")
	}
	o := buildOptions(opts)

	return &Processor{
		fetcher:     LocalFileFetcher{Fs: o.fs},
		transformer: newDecayTransformer(o.logger, o.maxPixels),
		emitter:     LocalFileEmitter{Fs: o.fs, OutputDir: outputDir},
	}, nil
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if len(req.Pipeline) == 0 {
		return Result{}, errors.New("pipeline must contain at least one step")
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	out := Result{
		SourceBytes: len(sourceBytes),
		Outputs:     make([]Output, 0, len(req.Pipeline)),
	}
	for _, step := range req.Pipeline {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		rendition, err := p.transformer.Transform(ctx, sourceBytes, step)
		if err != nil {
			return Result{}, fmt.Errorf("decay stage step=%s: %w", step.ID, err)
		}

		written, err := p.emitter.Emit(ctx, req, step, rendition)
		if err != nil {
			return Result{}, fmt.Errorf("%w step=%s: %w", ErrEmit, step.ID, err)
		}
		out.Outputs = append(out.Outputs, written)
	}

	return out, nil
}

type LocalFileFetcher struct {
	Fs afero.Fs
}

func (f LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(f.Fs, req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	Fs        afero.Fs
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, step domain.PipelineStep, r Rendition) (Output, error) {
	if strings.TrimSpace(step.ID) == "" {
		return Output{}, errors.New("pipeline step id is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := e.Fs.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, outputName(step))
	if err := afero.WriteFile(e.Fs, fullPath, r.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return newOutput(step, r, fullPath), nil
}

func newOutput(step domain.PipelineStep, r Rendition, path string) Output {
	return Output{
		StepID:    step.ID,
		Integrity: r.Integrity,
		Quality:   r.Quality,
		Path:      path,
		Bytes:     len(r.Data),
		Width:     r.Width,
		Height:    r.Height,
	}
}

func outputName(step domain.PipelineStep) string {
	return fmt.Sprintf("%s.%s", sanitizePathToken(step.ID), outputExtension)
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, in)
}
