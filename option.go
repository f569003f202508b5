package h4hal

import (
	"time"

	"github.com/jacobsa/go-serial/serial"
)

// DeviceOption is an interface which the device should implement to allow using configuration options
type DeviceOption interface {
	SetErrorHandler(handler func(error)) error
	SetReadBufferSize(n int) error
	SetIdleTimeout(d time.Duration, f func()) error

	SetTransportHCISocket(id int) error
	SetTransportH4Socket(addr string, timeout time.Duration) error
	SetTransportH4Uart(path string) error
	SetTransportH4UartOptions(opts serial.OpenOptions) error
	SetTransportFd(fd int) error
}

// An Option is a configuration function, which configures the device.
type Option func(DeviceOption) error

// OptErrorHandler sets the handler for fatal transport errors.
func OptErrorHandler(handler func(error)) Option {
	return func(opt DeviceOption) error {
		return opt.SetErrorHandler(handler)
	}
}

// OptReadBufferSize sets the size of the buffer used for each read of the channel.
func OptReadBufferSize(n int) Option {
	return func(opt DeviceOption) error {
		return opt.SetReadBufferSize(n)
	}
}

// OptIdleTimeout invokes f whenever the channel has been idle for d.
func OptIdleTimeout(d time.Duration, f func()) Option {
	return func(opt DeviceOption) error {
		return opt.SetIdleTimeout(d, f)
	}
}

// OptTransportHCISocket set hci socket transport
func OptTransportHCISocket(id int) Option {
	return func(opt DeviceOption) error {
		return opt.SetTransportHCISocket(id)
	}
}

// OptTransportH4Socket set h4 socket transport
func OptTransportH4Socket(addr string, timeout time.Duration) Option {
	return func(opt DeviceOption) error {
		return opt.SetTransportH4Socket(addr, timeout)
	}
}

// OptTransportH4Uart set h4 uart transport
func OptTransportH4Uart(path string) Option {
	return func(opt DeviceOption) error {
		return opt.SetTransportH4Uart(path)
	}
}

// OptTransportH4UartOptions set h4 uart transport with explicit serial settings
func OptTransportH4UartOptions(opts serial.OpenOptions) Option {
	return func(opt DeviceOption) error {
		return opt.SetTransportH4UartOptions(opts)
	}
}

// OptTransportFd uses an already open and configured descriptor.
// The device takes ownership and closes it on Close.
func OptTransportFd(fd int) Option {
	return func(opt DeviceOption) error {
		return opt.SetTransportFd(fd)
	}
}
