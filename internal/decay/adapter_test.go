package decay

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

type captureCodec struct {
	Codec
	quality int
	failEnc bool
}

func (c *captureCodec) EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	c.quality = quality
	if c.failEnc {
		return nil, errors.New("disk full")
	}
	return c.Codec.EncodeJPEG(img, quality)
}

type panicCodec struct {
	Codec
	stage string
}

func (c panicCodec) DecodeConfig(data []byte) (image.Config, string, error) {
	if c.stage == "header" {
		panic(errors.New("header reader index out of range"))
	}
	return c.Codec.DecodeConfig(data)
}

func (c panicCodec) Decode(data []byte) (image.Image, string, error) {
	if c.stage == "decode" {
		panic("decoder index out of range")
	}
	return c.Codec.Decode(data)
}

func (c panicCodec) EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if c.stage == "encode" {
		panic("encoder blew up")
	}
	return c.Codec.EncodeJPEG(img, quality)
}

type panicResizer struct{}

func (panicResizer) Resize(image.Image, int, int) *image.NRGBA {
	panic("resize exploded")
}

func newTestAdapter(t *testing.T, opts ...AdapterOption) (*Adapter, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	base := []AdapterOption{
		WithLogger(log.New(&logs, "", 0)),
		WithFs(afero.NewMemMapFs()),
		WithTransform(NewTransform(WithSeed(5))),
	}
	return NewAdapter(append(base, opts...)...), &logs
}

func TestAdapterBytesEncodesJPEG(t *testing.T) {
	a, _ := newTestAdapter(t)
	src := encodePNG(t, 120, 80)

	res := a.Bytes(src, 0.4)
	if !res.OK() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Fallback {
		t.Fatal("expected no fallback")
	}
	if res.Format != "png" {
		t.Fatalf("expected source format png, got %s", res.Format)
	}
	if res.Quality != 38 {
		t.Fatalf("expected quality 38, got %d", res.Quality)
	}

	img, err := jpeg.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode output jpeg: %v", err)
	}
	if img.Bounds().Dx() != 120 || img.Bounds().Dy() != 80 {
		t.Fatalf("expected 120x80 output, got %v", img.Bounds())
	}
	if res.Width != 120 || res.Height != 80 {
		t.Fatalf("expected result dims 120x80, got %dx%d", res.Width, res.Height)
	}
}

func TestAdapterBytesFallsBackOnMalformedInput(t *testing.T) {
	a, logs := newTestAdapter(t)
	garbage := []byte("definitely not an image")

	res := a.Bytes(garbage, 0.3)
	if !errors.Is(res.Err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", res.Err)
	}
	if !res.Fallback {
		t.Fatal("expected fallback flag")
	}
	if !bytes.Equal(res.Data, garbage) {
		t.Fatal("expected original bytes back")
	}
	if res.Reason() != "decode" {
		t.Fatalf("expected reason decode, got %q", res.Reason())
	}
	if !strings.Contains(logs.String(), "stage=decode") {
		t.Fatalf("expected diagnostic line, got %q", logs.String())
	}
}

func TestAdapterBytesFallsBackOnEncodeFailure(t *testing.T) {
	codec := &captureCodec{Codec: NewCodec(), failEnc: true}
	a, _ := newTestAdapter(t, WithCodec(codec))
	src := encodePNG(t, 16, 16)

	res := a.Bytes(src, 0.9)
	if !errors.Is(res.Err, ErrEncode) {
		t.Fatalf("expected ErrEncode, got %v", res.Err)
	}
	if !bytes.Equal(res.Data, src) {
		t.Fatal("expected original bytes back")
	}
}

func TestAdapterBytesRecoversTransformPanic(t *testing.T) {
	a, _ := newTestAdapter(t, WithTransform(NewTransform(WithResizer(panicResizer{}))))
	src := encodePNG(t, 16, 16)

	res := a.Bytes(src, 0.1)
	if !errors.Is(res.Err, ErrTransform) {
		t.Fatalf("expected ErrTransform, got %v", res.Err)
	}
	if !bytes.Equal(res.Data, src) {
		t.Fatal("expected original bytes back")
	}
}

func TestAdapterBytesRecoversCodecPanics(t *testing.T) {
	cases := []struct {
		stage string
		want  error
	}{
		{stage: "header", want: ErrDecode},
		{stage: "decode", want: ErrDecode},
		{stage: "encode", want: ErrEncode},
	}

	for _, tc := range cases {
		a, logs := newTestAdapter(t, WithCodec(panicCodec{Codec: NewCodec(), stage: tc.stage}))
		src := encodePNG(t, 16, 16)

		res := a.Bytes(src, 0.3)
		if !errors.Is(res.Err, tc.want) {
			t.Fatalf("stage=%s: expected %v, got %v", tc.stage, tc.want, res.Err)
		}
		if !res.Fallback || !bytes.Equal(res.Data, src) {
			t.Fatalf("stage=%s: expected original bytes with fallback", tc.stage)
		}
		if !strings.Contains(logs.String(), "panic") {
			t.Fatalf("stage=%s: expected panic in diagnostic, got %q", tc.stage, logs.String())
		}
	}
}

func TestAdapterFileRecoversEncodePanic(t *testing.T) {
	a, _ := newTestAdapter(t, WithCodec(panicCodec{Codec: NewCodec(), stage: "encode"}))
	if err := afero.WriteFile(a.fs, "/in.png", encodePNG(t, 8, 8), 0o644); err != nil {
		t.Fatalf("seed input: %v", err)
	}

	res := a.File("/in.png", "/out.jpg", 0.5)
	if !errors.Is(res.Err, ErrEncode) {
		t.Fatalf("expected ErrEncode, got %v", res.Err)
	}
	if exists, _ := afero.Exists(a.fs, "/out.jpg"); exists {
		t.Fatal("expected no output file")
	}
}

func TestAdapterBytesRejectsOversizedHeader(t *testing.T) {
	a, _ := newTestAdapter(t)
	src := pngWithDimensions(t, 60000, 60000)

	res := a.Bytes(src, 0.5)
	if !errors.Is(res.Err, ErrDecode) || !errors.Is(res.Err, ErrTooManyPixels) {
		t.Fatalf("expected ErrDecode and ErrTooManyPixels, got %v", res.Err)
	}
	if res.Reason() != "decode" {
		t.Fatalf("expected reason decode, got %q", res.Reason())
	}
	if !res.Fallback || !bytes.Equal(res.Data, src) {
		t.Fatal("expected original bytes with fallback")
	}
}

func TestAdapterMaxPixelsOption(t *testing.T) {
	src := encodePNG(t, 20, 20)

	limited, _ := newTestAdapter(t, WithMaxPixels(399))
	if res := limited.Bytes(src, 0.5); !errors.Is(res.Err, ErrTooManyPixels) {
		t.Fatalf("expected ErrTooManyPixels for 400 pixels over a 399 limit, got %v", res.Err)
	}

	exact, _ := newTestAdapter(t, WithMaxPixels(400))
	if res := exact.Bytes(src, 0.5); !res.OK() {
		t.Fatalf("expected 400 pixels to pass a 400 limit, got %v", res.Err)
	}

	unlimited, _ := newTestAdapter(t, WithMaxPixels(0))
	if res := unlimited.Bytes(src, 0.5); !res.OK() {
		t.Fatalf("expected success with the limit disabled, got %v", res.Err)
	}
}

func TestAdapterFileWritesJPEG(t *testing.T) {
	codec := &captureCodec{Codec: NewCodec()}
	a, logs := newTestAdapter(t, WithCodec(codec))
	if err := afero.WriteFile(a.fs, "/in/photo.png", encodePNG(t, 64, 48), 0o644); err != nil {
		t.Fatalf("seed input: %v", err)
	}

	res := a.File("/in/photo.png", "/photo.jpg", DefaultIntegrity)
	if !res.OK() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if codec.quality != 85 {
		t.Fatalf("expected encoder quality 85, got %d", codec.quality)
	}

	data, err := afero.ReadFile(a.fs, "/photo.jpg")
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output config: %v", err)
	}
	if format != "jpeg" || cfg.Width != 64 || cfg.Height != 48 {
		t.Fatalf("expected 64x48 jpeg, got %s %dx%d", format, cfg.Width, cfg.Height)
	}
	if !strings.Contains(logs.String(), "saved to /photo.jpg health=90%") {
		t.Fatalf("expected success diagnostic, got %q", logs.String())
	}
}

func TestAdapterFileMissingInput(t *testing.T) {
	a, logs := newTestAdapter(t)

	res := a.File("/nope.png", "/out.jpg", 0.5)
	if !errors.Is(res.Err, ErrRead) {
		t.Fatalf("expected ErrRead, got %v", res.Err)
	}
	if exists, _ := afero.Exists(a.fs, "/out.jpg"); exists {
		t.Fatal("expected no output file")
	}
	if !strings.Contains(logs.String(), "stage=read") {
		t.Fatalf("expected diagnostic line, got %q", logs.String())
	}
}

func TestAdapterFileReadOnlyOutput(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := afero.WriteFile(base, "/in.png", encodePNG(t, 8, 8), 0o644); err != nil {
		t.Fatalf("seed input: %v", err)
	}
	a, _ := newTestAdapter(t, WithFs(afero.NewReadOnlyFs(base)))

	res := a.File("/in.png", "/out.jpg", 0.7)
	if !errors.Is(res.Err, ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", res.Err)
	}
}

func TestDecayBytesReturnsOriginalOnGarbage(t *testing.T) {
	garbage := []byte{0xde, 0xad, 0xbe, 0xef}
	if got := DecayBytes(garbage, 0.2); !bytes.Equal(got, garbage) {
		t.Fatalf("expected original bytes, got %v", got)
	}
}

// pngWithDimensions rewrites the IHDR of a 1x1 PNG, so the header claims
// w x h while the body stays tiny.
func pngWithDimensions(t *testing.T, w, h uint32) []byte {
	t.Helper()

	data := encodePNG(t, 1, 1)
	if string(data[12:16]) != "IHDR" {
		t.Fatalf("expected IHDR chunk first, got %q", data[12:16])
	}
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}
