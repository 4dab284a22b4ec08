//go:build govips && cgo

package decay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
)

// govipsCodec decodes anything libvips understands (HEIF, AVIF, TIFF, ...)
// and encodes JPEG through libvips.
type govipsCodec struct{}

// DecodeConfig relies on libvips loading lazily: only the header is read.
func (govipsCodec) DecodeConfig(data []byte) (image.Config, string, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return image.Config{}, "", fmt.Errorf("decode source header: %w", err)
	}
	defer ref.Close()

	return image.Config{
		ColorModel: color.NRGBAModel,
		Width:      ref.Width(),
		Height:     ref.Height(),
	}, formatName(vips.DetermineImageType(data)), nil
}

func (govipsCodec) Decode(data []byte) (image.Image, string, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, "", fmt.Errorf("decode source image: %w", err)
	}
	defer ref.Close()

	img, err := ref.ToImage(nil)
	if err != nil {
		return nil, "", fmt.Errorf("convert source image: %w", err)
	}
	return img, formatName(vips.DetermineImageType(data)), nil
}

func (govipsCodec) EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var raw bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.NoCompression}
	if err := encoder.Encode(&raw, img); err != nil {
		return nil, fmt.Errorf("stage raster: %w", err)
	}

	ref, err := vips.NewImageFromBuffer(raw.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load raster: %w", err)
	}
	defer ref.Close()

	params := vips.NewJpegExportParams()
	params.Quality = quality
	data, _, err := ref.ExportJpeg(params)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return data, nil
}

func formatName(t vips.ImageType) string {
	switch t {
	case vips.ImageTypeJPEG:
		return "jpeg"
	case vips.ImageTypePNG:
		return "png"
	case vips.ImageTypeWEBP:
		return "webp"
	case vips.ImageTypeGIF:
		return "gif"
	case vips.ImageTypeTIFF:
		return "tiff"
	case vips.ImageTypeHEIF:
		return "heif"
	case vips.ImageTypeAVIF:
		return "avif"
	default:
		return "unknown"
	}
}
