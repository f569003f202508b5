//go:build linux
// +build linux

package h4

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rigado/h4hal"
	"github.com/rigado/h4hal/hci"
	"golang.org/x/sys/unix"
)

const defaultReadBufferSize = 64 * 1024

var (
	// ErrProtocol reports a type indicator that is not one of the five H4
	// packet types. Framing can't be recovered after it.
	ErrProtocol = errors.New("h4: invalid packet type indicator")

	// ErrShortWrite reports a write that made no progress without an error.
	ErrShortWrite = errors.New("h4: zero bytes written")

	// ErrInvalidPacketType is returned by Send for types that can't go on the wire.
	ErrInvalidPacketType = errors.New("h4: invalid packet type")
)

// Handlers receive inbound packets, header included and type indicator
// excluded. All of them run on the goroutine calling OnDataReady. A nil
// handler drops packets of its type.
type Handlers struct {
	OnCommand    func(b []byte)
	OnAcl        func(b []byte)
	OnSco        func(b []byte)
	OnEvent      func(b []byte)
	OnIso        func(b []byte)
	OnDisconnect func()
}

// Protocol speaks H4 over a byte stream descriptor.
type Protocol struct {
	fd     int
	h      Handlers
	logger h4hal.Logger

	errorHandler func(error)

	// read side, only touched by the goroutine calling OnDataReady
	buf          []byte
	typ          hci.PacketType
	packetizer   hci.Packetizer
	disconnected int32

	errMu sync.Mutex
	err   error

	wmu sync.Mutex

	stats stats
}

// New returns a Protocol over fd. fd must be open and configured; Protocol
// never closes it.
func New(fd int, h Handlers, opts ...Option) *Protocol {
	p := &Protocol{
		fd:     fd,
		h:      h,
		logger: h4hal.PkgLogger("h4"),
		typ:    hci.Unknown,
	}
	for _, o := range opts {
		o(p)
	}
	if p.buf == nil {
		p.buf = make([]byte, defaultReadBufferSize)
	}
	return p
}

// Send writes the type indicator and b in one vectored write, retrying
// partial writes. It returns the number of bytes written, which is len(b)+1
// on success.
func (p *Protocol) Send(t hci.PacketType, b []byte) (int, error) {
	if !t.Valid() {
		return 0, errors.Wrapf(ErrInvalidPacketType, "can't send %v", t)
	}

	p.wmu.Lock()
	written, err := p.writev([][]byte{{byte(t)}, b})
	p.wmu.Unlock()

	// report outside the lock, the error handler may wait on a handler
	// that is itself sending
	if err != nil {
		p.stats.addWrite(written, false)
		return written, p.fatal(err)
	}

	p.stats.addWrite(written, true)
	p.logger.Debugf("tx %v [% x]", t, b)
	return written, nil
}

func (p *Protocol) writev(iov [][]byte) (int, error) {
	total := 0
	for _, v := range iov {
		total += len(v)
	}

	written := 0
	for written < total {
		n, err := unix.Writev(p.fd, iov)
		switch {
		case err == unix.EAGAIN || err == unix.EINTR:
			continue
		case err != nil:
			return written, errors.Wrap(err, "can't write h4")
		case n == 0:
			return written, ErrShortWrite
		}

		written += n
		iov = advance(iov, n)
	}
	return written, nil
}

// advance drops n written bytes from the front of iov.
func advance(iov [][]byte, n int) [][]byte {
	for n > 0 && len(iov) > 0 {
		if n < len(iov[0]) {
			iov[0] = iov[0][n:]
			return iov
		}
		n -= len(iov[0])
		iov = iov[1:]
	}
	// skip empty segments so writev always has something to do
	for len(iov) > 0 && len(iov[0]) == 0 {
		iov = iov[1:]
	}
	return iov
}

// OnDataReady reads once from the descriptor and dispatches every packet the
// read completes. It must only be called from one goroutine at a time,
// normally the FdWatcher loop.
//
// After a disconnect it does nothing. After a fatal error it returns that
// error again without reading.
func (p *Protocol) OnDataReady() error {
	if p.Disconnected() {
		return nil
	}
	if err := p.Err(); err != nil {
		return err
	}

	var n int
	var err error
	for {
		n, err = unix.Read(p.fd, p.buf)
		if err != unix.EINTR {
			break
		}
	}

	switch {
	case err == unix.EAGAIN:
		return nil
	case err != nil:
		return p.fatal(errors.Wrap(err, "can't read h4"))
	case n == 0:
		p.disconnect()
		return nil
	}

	p.stats.addRead(n)
	return p.process(p.buf[:n])
}

func (p *Protocol) process(b []byte) error {
	off := 0
	for off < len(b) {
		if p.typ == hci.Unknown {
			t := hci.PacketType(b[off])
			if !t.Valid() {
				return p.fatal(errors.Wrapf(ErrProtocol, "got 0x%02x at offset %d", b[off], off))
			}
			p.typ = t
			off++
			continue
		}

		var done bool
		off, done = p.packetizer.Feed(p.typ, b, off)
		if done {
			p.dispatch(p.typ, p.packetizer.Packet())
			p.typ = hci.Unknown
		}
	}
	return nil
}

func (p *Protocol) dispatch(t hci.PacketType, b []byte) {
	p.stats.addPacket(t)

	var f func([]byte)
	switch t {
	case hci.Command:
		f = p.h.OnCommand
	case hci.AclData:
		f = p.h.OnAcl
	case hci.ScoData:
		f = p.h.OnSco
	case hci.Event:
		f = p.h.OnEvent
	case hci.IsoData:
		f = p.h.OnIso
	}

	if f == nil {
		p.logger.Debugf("no handler, dropping %v [% x]", t, b)
		return
	}
	f(b)
}

func (p *Protocol) disconnect() {
	if !atomic.CompareAndSwapInt32(&p.disconnected, 0, 1) {
		return
	}
	p.logger.Info("h4 peer disconnected")
	if p.h.OnDisconnect != nil {
		p.h.OnDisconnect()
	}
}

// fatal records the first fatal error and reports it to the error handler.
func (p *Protocol) fatal(err error) error {
	p.errMu.Lock()
	first := p.err == nil
	if first {
		p.err = err
	}
	p.errMu.Unlock()

	if !first {
		return err
	}
	p.logger.Errorf("h4 fatal: %v", err)
	if p.errorHandler != nil {
		p.errorHandler(err)
	}
	return err
}

// Disconnected reports whether the peer closed the channel.
func (p *Protocol) Disconnected() bool {
	return atomic.LoadInt32(&p.disconnected) == 1
}

// Err returns the first fatal error, if any.
func (p *Protocol) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Stats returns a snapshot of the traffic counters.
func (p *Protocol) Stats() Stats {
	return p.stats.snapshot()
}
