//go:build linux
// +build linux

package linux

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/h4hal"
	"github.com/rigado/h4hal/hci"
	"github.com/rigado/h4hal/linux/async"
	"github.com/rigado/h4hal/linux/h4"
)

// Device owns one H4 channel: the descriptor, the Protocol speaking on it,
// and the watcher goroutine that feeds it.
type Device struct {
	logger h4hal.Logger

	transport    transport
	errorHandler func(error)
	readBufSize  int
	idleTimeout  time.Duration
	onIdle       func()

	ch      io.Closer
	fd      int
	proto   *h4.Protocol
	watcher *async.FdWatcher

	done     chan struct{}
	doneOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	errMu sync.Mutex
	err   error
}

// NewDevice opens the channel selected by opts and starts delivering
// packets to h. Handlers run on the watcher goroutine.
func NewDevice(h h4.Handlers, opts ...h4hal.Option) (*Device, error) {
	d := &Device{
		logger: h4hal.PkgLogger("device"),
		fd:     -1,
		done:   make(chan struct{}),
	}
	if err := d.Option(opts...); err != nil {
		return nil, errors.Wrap(err, "can't set options")
	}

	ch, fd, err := getTransport(d.transport)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %v", d.transport)
	}
	d.ch, d.fd = ch, fd

	onDisconnect := h.OnDisconnect
	h.OnDisconnect = func() {
		d.shutdown(io.EOF)
		if onDisconnect != nil {
			onDisconnect()
		}
	}

	popts := []h4.Option{
		h4.OptLogger(d.logger.ChildLogger(map[string]interface{}{"transport": d.transport.String()})),
		h4.OptErrorHandler(d.onFatal),
	}
	if d.readBufSize > 0 {
		popts = append(popts, h4.OptReadBufferSize(d.readBufSize))
	}
	d.proto = h4.New(fd, h, popts...)

	d.watcher = async.New(async.OptLogger(d.logger))
	if d.idleTimeout > 0 {
		d.watcher.SetTimeout(d.idleTimeout, d.onIdle)
	}
	if err := d.watcher.Watch(fd, func(int) { d.proto.OnDataReady() }); err != nil {
		ch.Close()
		return nil, errors.Wrap(err, "can't watch transport")
	}

	d.logger.Infof("opened %v", d.transport)
	return d, nil
}

// Send writes one packet to the controller.
func (d *Device) Send(t hci.PacketType, b []byte) (int, error) {
	select {
	case <-d.done:
		if err := d.Err(); err != nil {
			return 0, err
		}
		return 0, h4hal.ErrClosed
	default:
	}
	return d.proto.Send(t, b)
}

// Stats returns the protocol traffic counters.
func (d *Device) Stats() h4.Stats {
	return d.proto.Stats()
}

// Done is closed once the device stops delivering packets: after a
// disconnect, a fatal error, or Close.
func (d *Device) Done() <-chan struct{} {
	return d.done
}

// Err returns why the device stopped: io.EOF on disconnect, the fatal
// error, or h4hal.ErrClosed.
func (d *Device) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.err
}

// Close stops the watcher and closes the channel.
func (d *Device) Close() error {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	d.shutdown(h4hal.ErrClosed)
	d.watcher.Stop()
	return errors.Wrap(d.ch.Close(), "can't close transport")
}

func (d *Device) onFatal(err error) {
	d.shutdown(err)
	if d.errorHandler != nil {
		d.errorHandler(err)
	}
}

// shutdown records why the device stopped and stops the watcher. It may
// run on the watcher goroutine.
func (d *Device) shutdown(err error) {
	d.doneOnce.Do(func() {
		d.errMu.Lock()
		d.err = err
		d.errMu.Unlock()

		d.watcher.Stop()
		close(d.done)
	})
}
