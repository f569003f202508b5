//go:build linux
// +build linux

package linux

import (
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"github.com/rigado/h4hal"
	"github.com/rigado/h4hal/linux/h4"
)

var errOpen = errors.New("transport can't change once the device is open")

// Option sets the options specified.
func (d *Device) Option(opts ...h4hal.Option) error {
	var err error
	for _, opt := range opts {
		err = opt(d)
		if err != nil {
			return err
		}
	}
	return nil
}

// SetErrorHandler sets the handler for fatal transport errors.
func (d *Device) SetErrorHandler(handler func(error)) error {
	d.errorHandler = handler
	return nil
}

// SetReadBufferSize sets the read buffer size of the protocol.
func (d *Device) SetReadBufferSize(n int) error {
	if n <= 0 {
		return errors.Errorf("invalid read buffer size %d", n)
	}
	d.readBufSize = n
	return nil
}

// SetIdleTimeout configures the idle timer. On an open device it takes
// effect on the next wait of the watcher.
func (d *Device) SetIdleTimeout(t time.Duration, f func()) error {
	if t < 0 {
		return errors.Errorf("invalid idle timeout %v", t)
	}
	d.idleTimeout, d.onIdle = t, f
	if d.watcher != nil {
		d.watcher.SetTimeout(t, f)
	}
	return nil
}

// SetTransportHCISocket sets HCI device for hci socket
func (d *Device) SetTransportHCISocket(id int) error {
	return d.setTransport(transport{hci: &transportHci{id}})
}

// SetTransportH4Socket sets h4 socket server
func (d *Device) SetTransportH4Socket(addr string, timeout time.Duration) error {
	return d.setTransport(transport{h4socket: &transportH4Socket{addr, timeout}})
}

// SetTransportH4Uart sets h4 uart path
func (d *Device) SetTransportH4Uart(path string) error {
	so := h4.DefaultSerialOptions()
	so.PortName = path
	return d.SetTransportH4UartOptions(so)
}

// SetTransportH4UartOptions sets h4 uart with explicit serial settings
func (d *Device) SetTransportH4UartOptions(opts serial.OpenOptions) error {
	return d.setTransport(transport{h4uart: &transportH4Uart{opts}})
}

// SetTransportFd uses an already open descriptor
func (d *Device) SetTransportFd(fd int) error {
	if fd < 0 {
		return errors.Errorf("invalid descriptor %d", fd)
	}
	return d.setTransport(transport{fd: &transportFd{fd}})
}

func (d *Device) setTransport(t transport) error {
	if d.proto != nil {
		return errOpen
	}
	d.transport = t
	return nil
}
