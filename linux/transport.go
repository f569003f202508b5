//go:build linux
// +build linux

package linux

import (
	"fmt"
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/rigado/h4hal/linux/h4"
	"github.com/rigado/h4hal/linux/socket"
	"golang.org/x/sys/unix"
)

type transportHci struct {
	id int
}

type transportH4Socket struct {
	addr    string
	timeout time.Duration
}

type transportH4Uart struct {
	opts serial.OpenOptions
}

type transportFd struct {
	fd int
}

type transport struct {
	hci      *transportHci
	h4uart   *transportH4Uart
	h4socket *transportH4Socket
	fd       *transportFd
}

func (t transport) String() string {
	switch {
	case t.hci != nil:
		return fmt.Sprintf("hci%d user channel", t.hci.id)
	case t.h4socket != nil:
		return "h4 tcp " + t.h4socket.addr
	case t.h4uart != nil:
		return "h4 uart " + t.h4uart.opts.PortName
	case t.fd != nil:
		return fmt.Sprintf("fd %d", t.fd.fd)
	default:
		return "none"
	}
}

// fdCloser owns a bare descriptor handed in by the caller.
type fdCloser int

func (f fdCloser) Close() error {
	return unix.Close(int(f))
}

// getTransport opens the configured channel and returns its descriptor
// along with the closer that owns it.
func getTransport(t transport) (io.Closer, int, error) {
	switch {
	case t.hci != nil:
		s, err := socket.NewSocket(t.hci.id)
		if err != nil {
			return nil, -1, err
		}
		return s, s.Fd(), nil

	case t.h4socket != nil:
		f, err := h4.Dial(t.h4socket.addr, t.h4socket.timeout)
		if err != nil {
			return nil, -1, err
		}
		return f, int(f.Fd()), nil

	case t.h4uart != nil:
		f, err := h4.OpenSerial(t.h4uart.opts)
		if err != nil {
			return nil, -1, err
		}
		return f, int(f.Fd()), nil

	case t.fd != nil:
		return fdCloser(t.fd.fd), t.fd.fd, nil

	default:
		return nil, -1, fmt.Errorf("no valid transport found")
	}
}
