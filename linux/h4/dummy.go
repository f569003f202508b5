//go:build !linux
// +build !linux

package h4

import (
	"os"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
)

// OpenSerial is a dummy function for non-Linux platform.
func OpenSerial(opts serial.OpenOptions) (*os.File, error) {
	return nil, errors.New("only available on linux")
}

// Dial is a dummy function for non-Linux platform.
func Dial(addr string, timeout time.Duration) (*os.File, error) {
	return nil, errors.New("only available on linux")
}
