//go:build linux
// +build linux

package h4

import (
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Dial connects to an H4 stream served over TCP, e.g. by a controller
// emulator, and returns a file holding a duplicate of the connection's
// descriptor. The original connection is closed.
func Dial(addr string, timeout time.Duration) (*os.File, error) {
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "can't dial %s", addr)
	}
	defer c.Close()

	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil, errors.Errorf("unexpected connection type %T", c)
	}
	if err := tc.SetNoDelay(true); err != nil {
		return nil, errors.Wrap(err, "can't set TCP_NODELAY")
	}

	f, err := tc.File()
	if err != nil {
		return nil, errors.Wrap(err, "can't get connection descriptor")
	}
	return f, nil
}
