//go:build !govips || !cgo

package engine

func Startup() error {
	return nil
}

func Shutdown() {}

func newEngine() (Engine, error) {
	return pureEngine{}, nil
}
