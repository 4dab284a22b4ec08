package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestRunSeedZeroIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	input := writePNG(t, dir, 48, 32)
	first := filepath.Join(dir, "first.jpg")
	second := filepath.Join(dir, "second.jpg")

	for _, out := range []string{first, second} {
		if code := run([]string{"-i", input, "-o", out, "-n", "0.3", "--seed", "0"}, io.Discard); code != 0 {
			t.Fatalf("expected exit 0, got %d", code)
		}
	}

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read first output: %v", err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("read second output: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("expected identical output for --seed 0")
	}
}

func TestRunUnseededVaries(t *testing.T) {
	dir := t.TempDir()
	input := writePNG(t, dir, 48, 32)
	first := filepath.Join(dir, "first.jpg")
	second := filepath.Join(dir, "second.jpg")

	for _, out := range []string{first, second} {
		if code := run([]string{"-i", input, "-o", out, "-n", "0.3", "--strict"}, io.Discard); code != 0 {
			t.Fatalf("expected exit 0, got %d", code)
		}
	}

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if bytes.Equal(a, b) {
		t.Fatal("expected different grain without --seed")
	}
}

func TestRunExitCodes(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.png")
	out := filepath.Join(dir, "out.jpg")

	cases := []struct {
		name string
		args []string
		want int
	}{
		{name: "no paths", args: nil, want: 2},
		{name: "unknown flag", args: []string{"--bogus"}, want: 2},
		{name: "missing input", args: []string{"-i", missing, "-o", out}, want: 0},
		{name: "missing input strict", args: []string{"-i", missing, "-o", out, "--strict"}, want: 1},
	}
	for _, tc := range cases {
		if got := run(tc.args, io.Discard); got != tc.want {
			t.Fatalf("%s: expected exit %d, got %d", tc.name, tc.want, got)
		}
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("expected no output file, got err=%v", err)
	}
}

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 5), G: uint8(y * 7), B: 128, A: 255})
		}
	}

	path := filepath.Join(dir, "input.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create input: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode input: %v", err)
	}
	return path
}
