package h4hal

import "github.com/pkg/errors"

// ErrClosed is returned by operations on a device that has been closed.
var ErrClosed = errors.New("h4hal: closed")
