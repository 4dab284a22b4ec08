package decay

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/afero"
)

var (
	ErrRead      = errors.New("read source")
	ErrDecode    = errors.New("decode source")
	ErrTransform = errors.New("apply decay")
	ErrEncode    = errors.New("encode output")
	ErrWrite     = errors.New("write output")

	// ErrTooManyPixels is wrapped together with ErrDecode.
	ErrTooManyPixels = errors.New("image exceeds pixel limit")
)

// DefaultMaxPixels bounds decoded sources at roughly a 7000x7000 image.
const DefaultMaxPixels = 50_000_000

// Result is the outcome of one adapter call. On failure Err wraps exactly
// one stage sentinel, ErrRead through ErrWrite.
type Result struct {
	Data      []byte
	Format    string
	Width     int
	Height    int
	Integrity float64
	Quality   int
	Fallback  bool
	Err       error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Reason names the failed stage, or "" on success.
func (r Result) Reason() string {
	for _, s := range []struct {
		err  error
		name string
	}{
		{ErrRead, "read"},
		{ErrDecode, "decode"},
		{ErrTransform, "transform"},
		{ErrEncode, "encode"},
		{ErrWrite, "write"},
	} {
		if errors.Is(r.Err, s.err) {
			return s.name
		}
	}
	if r.Err != nil {
		return "unknown"
	}
	return ""
}

// Adapter runs decode -> decay -> JPEG encode over byte buffers and files.
type Adapter struct {
	logger    *log.Logger
	fs        afero.Fs
	codec     Codec
	transform *Transform
	maxPixels int64
}

type AdapterOption func(a *Adapter)

func WithLogger(logger *log.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithFs(fs afero.Fs) AdapterOption {
	return func(a *Adapter) {
		if fs != nil {
			a.fs = fs
		}
	}
}

func WithCodec(c Codec) AdapterOption {
	return func(a *Adapter) {
		if c != nil {
			a.codec = c
		}
	}
}

func WithTransform(t *Transform) AdapterOption {
	return func(a *Adapter) {
		if t != nil {
			a.transform = t
		}
	}
}

// WithMaxPixels caps width*height of accepted sources. Zero or less
// disables the check.
func WithMaxPixels(n int64) AdapterOption {
	return func(a *Adapter) {
		a.maxPixels = n
	}
}

func NewAdapter(opts ...AdapterOption) *Adapter {
	a := &Adapter{
		logger:    log.New(os.Stdout, "[bitrot] ", log.Lmsgprefix),
		fs:        afero.NewOsFs(),
		codec:     NewCodec(),
		transform: defaultTransform,
		maxPixels: DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Bytes decays an encoded image held in memory. On failure Data is the
// untouched input and Fallback is set.
func (a *Adapter) Bytes(data []byte, integrity float64) Result {
	res := a.render(data, integrity)
	if res.Err != nil {
		a.logger.Printf("error stage=%s err=%v", res.Reason(), res.Err)
		res.Data = data
		res.Fallback = true
	}
	return res
}

// File decays inputPath into a JPEG at outputPath. Nothing is written
// when any stage fails.
func (a *Adapter) File(inputPath, outputPath string, integrity float64) Result {
	data, err := afero.ReadFile(a.fs, inputPath)
	if err != nil {
		res := Result{Integrity: Clamp(integrity), Err: fmt.Errorf("%w: %w", ErrRead, err)}
		a.logger.Printf("error stage=%s err=%v", res.Reason(), res.Err)
		return res
	}

	res := a.render(data, integrity)
	if res.Err == nil {
		if err := afero.WriteFile(a.fs, outputPath, res.Data, 0o644); err != nil {
			res.Err = fmt.Errorf("%w: %s: %w", ErrWrite, outputPath, err)
		}
	}
	if res.Err != nil {
		a.logger.Printf("error stage=%s err=%v", res.Reason(), res.Err)
		return res
	}

	a.logger.Printf("saved to %s health=%d%%", outputPath, int(res.Integrity*100))
	return res
}

// render never panics: a panic in any stage becomes that stage's error.
func (a *Adapter) render(data []byte, integrity float64) (res Result) {
	res = Result{Integrity: Clamp(integrity), Quality: Quality(integrity)}

	stage := ErrDecode
	defer func() {
		if r := recover(); r != nil {
			res.Data = nil
			res.Err = fmt.Errorf("%w: panic: %v", stage, r)
		}
	}()

	if err := a.checkPixels(data); err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrDecode, err)
		return res
	}
	src, format, err := a.codec.Decode(data)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrDecode, err)
		return res
	}
	res.Format = format

	stage = ErrTransform
	out := a.transform.Apply(ToRGB(src), integrity)

	stage = ErrEncode
	encoded, err := a.codec.EncodeJPEG(out, res.Quality)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrEncode, err)
		return res
	}

	b := out.Bounds()
	res.Data = encoded
	res.Width = b.Dx()
	res.Height = b.Dy()
	return res
}

// checkPixels reads only the image header.
func (a *Adapter) checkPixels(data []byte) error {
	if a.maxPixels <= 0 {
		return nil
	}
	cfg, _, err := a.codec.DecodeConfig(data)
	if err != nil {
		return err
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > a.maxPixels {
		return fmt.Errorf("%w: %dx%d is over %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, a.maxPixels)
	}
	return nil
}

var defaultAdapter = NewAdapter()

// DecayBytes never fails: it returns the decayed JPEG or, on any error,
// the original data.
func DecayBytes(data []byte, integrity float64) []byte {
	return defaultAdapter.Bytes(data, integrity).Data
}

// DecayFile writes a decayed JPEG of inputPath to outputPath. Failures are
// logged and otherwise ignored.
func DecayFile(inputPath, outputPath string, integrity float64) {
	defaultAdapter.File(inputPath, outputPath, integrity)
}
