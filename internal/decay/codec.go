package decay

import "image"

// Codec is the image decode/encode boundary.
type Codec interface {
	DecodeConfig(data []byte) (cfg image.Config, format string, err error)
	Decode(data []byte) (img image.Image, format string, err error)
	EncodeJPEG(img image.Image, quality int) ([]byte, error)
}

// NewCodec returns the codec selected at build time.
func NewCodec() Codec {
	return newCodec()
}
