//go:build linux
// +build linux

package async

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/h4hal"
	"golang.org/x/sys/unix"
)

const (
	pollReadable = int16(unix.POLLIN | unix.POLLHUP | unix.POLLERR)
	pollInvalid  = int16(unix.POLLNVAL)
)

// Option configures a FdWatcher.
type Option func(*FdWatcher)

// OptLogger sets the logger used by the watcher loop.
func OptLogger(l h4hal.Logger) Option {
	return func(w *FdWatcher) {
		w.logger = l
	}
}

// FdWatcher runs a goroutine that waits for one descriptor to become
// readable, with an optional idle timeout. Callbacks run on that goroutine,
// one at a time. Registrations may be changed from any goroutine, including
// from inside a callback.
type FdWatcher struct {
	logger h4hal.Logger

	running int32

	// serializes start and stop
	lifeMu sync.Mutex
	cur    *loopRun
	last   *loopRun

	fdMu   sync.Mutex
	fd     int
	onRead func(fd int)

	timeoutMu sync.Mutex
	timeout   time.Duration
	onTimeout func()
}

// New returns a stopped watcher.
func New(opts ...Option) *FdWatcher {
	w := &FdWatcher{
		logger: h4hal.PkgLogger("async"),
		fd:     -1,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Watch registers fd and its read callback, replacing any previous one, and
// starts the loop if it is not running.
func (w *FdWatcher) Watch(fd int, f func(fd int)) error {
	w.fdMu.Lock()
	w.fd = fd
	w.onRead = f
	w.fdMu.Unlock()

	if err := w.start(); err != nil {
		w.fdMu.Lock()
		w.fd, w.onRead = -1, nil
		w.fdMu.Unlock()
		return err
	}

	w.notify()
	return nil
}

// SetTimeout replaces the idle timeout. f runs each time d passes without
// the watched descriptor becoming readable. Zero disables the timeout.
func (w *FdWatcher) SetTimeout(d time.Duration, f func()) {
	w.timeoutMu.Lock()
	w.timeout = d
	w.onTimeout = f
	w.timeoutMu.Unlock()

	w.notify()
}

// Running reports whether the loop goroutine is active.
func (w *FdWatcher) Running() bool {
	return atomic.LoadInt32(&w.running) == 1
}

// Stop ends the loop and clears all registrations. Once Stop returns no
// callback is running or will run, unless Stop was called from a callback,
// in which case the loop exits as soon as that callback returns.
func (w *FdWatcher) Stop() {
	w.lifeMu.Lock()
	r := w.cur
	if r != nil {
		w.cur = nil
		atomic.StoreInt32(&w.running, 0)
		close(r.stop)
		signal(r.wake)
		unix.Close(r.wake)
	} else {
		// a concurrent Stop may still be joining
		r = w.last
	}
	w.lifeMu.Unlock()

	if r != nil && curGoroutineID() != r.id {
		<-r.done
	}

	w.fdMu.Lock()
	w.fd, w.onRead = -1, nil
	w.fdMu.Unlock()

	w.timeoutMu.Lock()
	w.timeout, w.onTimeout = 0, nil
	w.timeoutMu.Unlock()
}

func (w *FdWatcher) start() error {
	w.lifeMu.Lock()
	defer w.lifeMu.Unlock()

	if w.cur != nil {
		return nil
	}

	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return errors.Wrap(err, "can't create wakeup pipe")
	}

	r := &loopRun{
		wake: p[1],
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	started := make(chan uint64)
	go w.loop(r, p[0], started)
	r.id = <-started

	w.cur, w.last = r, r
	atomic.StoreInt32(&w.running, 1)
	return nil
}

func (w *FdWatcher) notify() {
	w.lifeMu.Lock()
	if w.cur != nil {
		signal(w.cur.wake)
	}
	w.lifeMu.Unlock()
}

func signal(fd int) {
	for {
		_, err := unix.Write(fd, []byte{0})
		if err != unix.EINTR {
			// EAGAIN means the pipe already holds a pending wakeup
			return
		}
	}
}

// loopRun is one Running period of a watcher. The loop goroutine owns the
// read end of the pipe; Stop closes the write end.
type loopRun struct {
	wake int
	id   uint64
	stop chan struct{}
	done chan struct{}
}

func (r *loopRun) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (w *FdWatcher) loop(r *loopRun, wakeR int, started chan<- uint64) {
	defer close(r.done)
	defer unix.Close(wakeR)

	started <- curGoroutineID()

	pfds := make([]unix.PollFd, 2)
	for !r.stopped() {
		w.fdMu.Lock()
		fd := w.fd
		w.fdMu.Unlock()

		w.timeoutMu.Lock()
		timeout := w.timeout
		w.timeoutMu.Unlock()

		pfds = pfds[:1]
		pfds[0] = unix.PollFd{Fd: int32(wakeR), Events: unix.POLLIN}
		if fd >= 0 {
			pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		}

		ms := -1
		if timeout > 0 {
			ms = int(timeout / time.Millisecond)
			if ms == 0 {
				ms = 1
			}
		}

		n, err := unix.Poll(pfds, ms)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			w.logger.Errorf("poll error: %v", err)
			continue
		case n == 0:
			w.fireTimeout(r)
			continue
		}

		if pfds[0].Revents != 0 {
			drain(wakeR)
			continue
		}

		if len(pfds) > 1 {
			rev := pfds[1].Revents
			switch {
			case rev&pollInvalid != 0:
				w.logger.Warnf("fd %d is not open, no longer watching it", fd)
				w.unwatch(fd)
			case rev&pollReadable != 0:
				w.fireRead(r, fd)
			}
		}
	}
}

func (w *FdWatcher) fireTimeout(r *loopRun) {
	w.timeoutMu.Lock()
	d, f := w.timeout, w.onTimeout
	w.timeoutMu.Unlock()

	if d > 0 && f != nil && !r.stopped() {
		f()
	}
}

func (w *FdWatcher) fireRead(r *loopRun, fd int) {
	w.fdMu.Lock()
	cur, f := w.fd, w.onRead
	w.fdMu.Unlock()

	// registration replaced while polling
	if cur != fd || f == nil || r.stopped() {
		return
	}
	f(fd)
}

func (w *FdWatcher) unwatch(fd int) {
	w.fdMu.Lock()
	if w.fd == fd {
		w.fd, w.onRead = -1, nil
	}
	w.fdMu.Unlock()
}

func drain(fd int) {
	var b [64]byte
	for {
		n, err := unix.Read(fd, b[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < len(b) {
			return
		}
	}
}
