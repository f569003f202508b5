//go:build linux
// +build linux

package socket

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/rigado/h4hal"
	"golang.org/x/sys/unix"
)

func ioR(t, nr, size uintptr) uintptr {
	return (2 << 30) | (t << 8) | nr | (size << 16)
}

func ioW(t, nr, size uintptr) uintptr {
	return (1 << 30) | (t << 8) | nr | (size << 16)
}

func ioctl(fd, op, arg uintptr) error {
	if _, _, ep := unix.Syscall(unix.SYS_IOCTL, fd, op, arg); ep != 0 {
		return ep
	}
	return nil
}

const (
	ioctlSize     = 4
	hciMaxDevices = 16
	typHCI        = 72 // 'H'
	openRetry     = 60 * time.Second
)

var (
	hciDownDevice    = ioW(typHCI, 202, ioctlSize) // HCIDEVDOWN
	hciGetDeviceList = ioR(typHCI, 210, ioctlSize) // HCIGETDEVLIST
)

type devListRequest struct {
	devNum     uint16
	devRequest [hciMaxDevices]struct {
		id  uint16
		opt uint32
	}
}

// Socket is a HCI User Channel. Packets on it carry the same type
// indicator as H4, so its descriptor can be driven by h4.Protocol.
type Socket struct {
	fd  int
	dev int

	cmu    sync.Mutex
	closed bool
}

// NewSocket returns a HCI User Channel of specified device id.
// If id is -1, the first available HCI device is returned.
func NewSocket(id int) (*Socket, error) {
	logger := h4hal.PkgLogger("socket")

	if id != -1 {
		// the device may still be held by bluetoothd for a moment
		to := time.Now().Add(openRetry)
		var err error
		var s *Socket
		for time.Now().Before(to) {
			s, err = open(id)
			if err == nil {
				return s, nil
			}
			logger.Debugf("hci%d: %v, retrying", id, err)
			<-time.After(time.Second)
		}
		return nil, err
	}

	fd, err := newRawSocket()
	if err != nil {
		return nil, err
	}
	req := devListRequest{devNum: hciMaxDevices}
	err = ioctl(uintptr(fd), hciGetDeviceList, uintptr(unsafe.Pointer(&req)))
	unix.Close(fd)
	if err != nil {
		return nil, errors.Wrap(err, "can't get device list")
	}

	var msg string
	for i := 0; i < int(req.devNum); i++ {
		id := int(req.devRequest[i].id)
		s, err := open(id)
		if err == nil {
			return s, nil
		}
		msg = msg + fmt.Sprintf("(hci%d: %s)", id, err)
	}
	return nil, errors.Errorf("no devices available: %s", msg)
}

func newRawSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return -1, errors.Wrap(err, "can't create socket")
	}
	return fd, nil
}

func open(id int) (*Socket, error) {
	fd, err := newRawSocket()
	if err != nil {
		return nil, err
	}

	// HCI User Channel requires exclusive access to the device.
	// The device has to be down at the time of binding.
	if err := ioctl(uintptr(fd), hciDownDevice, uintptr(id)); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "can't down device")
	}

	// Bind the RAW socket to HCI User Channel
	sa := unix.SockaddrHCI{Dev: uint16(id), Channel: unix.HCI_CHANNEL_USER}
	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "can't bind socket to hci user channel")
	}

	return &Socket{fd: fd, dev: id}, nil
}

// Fd returns the socket descriptor.
func (s *Socket) Fd() int {
	return s.fd
}

func (s *Socket) String() string {
	return fmt.Sprintf("hci%d", s.dev)
}

func (s *Socket) Close() error {
	s.cmu.Lock()
	defer s.cmu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Wrap(unix.Close(s.fd), "can't close hci socket")
}
