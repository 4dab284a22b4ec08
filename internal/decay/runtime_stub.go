//go:build !govips || !cgo

package decay

func Startup() error {
	return nil
}

func Shutdown() {}

func newCodec() Codec {
	return stdCodec{}
}
