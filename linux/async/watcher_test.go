//go:build linux
// +build linux

package async

import (
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// mkpipe returns the read and write ends of a pipe that are closed when the
// test finishes.
func mkpipe(t *testing.T) (int, int) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe failed: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(p[0])
		unix.Close(p[1])
	})
	return p[0], p[1]
}

func consume(fd int) {
	var b [16]byte
	unix.Read(fd, b[:])
}

func waitFor(t *testing.T, what string, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWatchReadable(t *testing.T) {
	r, wr := mkpipe(t)
	w := New()
	defer w.Stop()

	got := make(chan int, 1)
	if err := w.Watch(r, func(fd int) {
		consume(fd)
		got <- fd
	}); err != nil {
		t.Fatal(err)
	}
	if !w.Running() {
		t.Fatal("watcher not running after Watch")
	}

	unix.Write(wr, []byte("x"))
	select {
	case fd := <-got:
		if fd != r {
			t.Fatalf("callback got fd %d, want %d", fd, r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("read callback not invoked")
	}
}

func TestWatchReplacesRegistration(t *testing.T) {
	r1, w1 := mkpipe(t)
	r2, w2 := mkpipe(t)
	w := New()
	defer w.Stop()

	var first, second int32
	if err := w.Watch(r1, func(fd int) { consume(fd); atomic.AddInt32(&first, 1) }); err != nil {
		t.Fatal(err)
	}
	if err := w.Watch(r2, func(fd int) { consume(fd); atomic.AddInt32(&second, 1) }); err != nil {
		t.Fatal(err)
	}

	unix.Write(w1, []byte("x"))
	unix.Write(w2, []byte("x"))
	waitFor(t, "second callback", func() bool { return atomic.LoadInt32(&second) == 1 })
	time.Sleep(20 * time.Millisecond)
	if n := atomic.LoadInt32(&first); n != 0 {
		t.Fatalf("replaced callback fired %d times", n)
	}
}

func TestTimeout(t *testing.T) {
	r, _ := mkpipe(t)
	w := New()
	defer w.Stop()

	if err := w.Watch(r, func(fd int) { consume(fd) }); err != nil {
		t.Fatal(err)
	}

	var fired int32
	w.SetTimeout(100*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	time.Sleep(150 * time.Millisecond)
	n := atomic.LoadInt32(&fired)
	if n < 1 {
		t.Fatal("timeout callback did not fire")
	}

	w.SetTimeout(0, func() { t.Error("zero timeout fired") })
	// a firing that raced with SetTimeout may still land
	time.Sleep(10 * time.Millisecond)
	n = atomic.LoadInt32(&fired)
	time.Sleep(150 * time.Millisecond)
	if m := atomic.LoadInt32(&fired); m != n {
		t.Fatalf("timeout fired %d more times after being disabled", m-n)
	}
}

func TestTimeoutIsIdleTimer(t *testing.T) {
	r, wr := mkpipe(t)
	w := New()
	defer w.Stop()

	if err := w.Watch(r, func(fd int) { consume(fd) }); err != nil {
		t.Fatal(err)
	}

	var fired int32
	w.SetTimeout(80*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	// keep the descriptor busy for longer than the timeout
	for i := 0; i < 10; i++ {
		unix.Write(wr, []byte("x"))
		time.Sleep(20 * time.Millisecond)
	}
	if n := atomic.LoadInt32(&fired); n != 0 {
		t.Fatalf("timeout fired %d times while the descriptor was active", n)
	}
	waitFor(t, "idle timeout", func() bool { return atomic.LoadInt32(&fired) > 0 })
}

func TestStopIdempotent(t *testing.T) {
	r, wr := mkpipe(t)
	w := New()

	var calls int32
	if err := w.Watch(r, func(fd int) { consume(fd); atomic.AddInt32(&calls, 1) }); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
	if w.Running() {
		t.Fatal("watcher running after Stop")
	}

	unix.Write(wr, []byte("x"))
	time.Sleep(20 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("callback invoked %d times after Stop", n)
	}
}

func TestStopFromCallback(t *testing.T) {
	r, wr := mkpipe(t)
	w := New()

	returned := make(chan struct{})
	if err := w.Watch(r, func(fd int) {
		consume(fd)
		w.Stop()
		close(returned)
	}); err != nil {
		t.Fatal(err)
	}

	unix.Write(wr, []byte("x"))
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop from the loop goroutine deadlocked")
	}
	if w.Running() {
		t.Fatal("watcher running after Stop")
	}
	// join from another goroutine once the loop has exited
	w.Stop()
}

func TestStopFromTimeout(t *testing.T) {
	r, _ := mkpipe(t)
	w := New()

	if err := w.Watch(r, func(fd int) { consume(fd) }); err != nil {
		t.Fatal(err)
	}
	var fired int32
	w.SetTimeout(10*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
		w.Stop()
	})
	waitFor(t, "timeout", func() bool { return !w.Running() })
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Fatalf("timeout fired %d times, want 1", n)
	}
}

func TestRestartAfterStop(t *testing.T) {
	r, wr := mkpipe(t)
	w := New()
	defer w.Stop()

	if err := w.Watch(r, func(fd int) { consume(fd) }); err != nil {
		t.Fatal(err)
	}
	w.Stop()

	got := make(chan struct{}, 1)
	if err := w.Watch(r, func(fd int) {
		consume(fd)
		got <- struct{}{}
	}); err != nil {
		t.Fatal(err)
	}
	unix.Write(wr, []byte("x"))
	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("restarted watcher did not deliver")
	}
}

func TestSetTimeoutWakesBlockedLoop(t *testing.T) {
	r, _ := mkpipe(t)
	w := New()
	defer w.Stop()

	if err := w.Watch(r, func(fd int) { consume(fd) }); err != nil {
		t.Fatal(err)
	}
	// the loop is now blocked without a timeout
	time.Sleep(20 * time.Millisecond)

	fired := make(chan time.Time, 1)
	start := time.Now()
	w.SetTimeout(30*time.Millisecond, func() {
		select {
		case fired <- time.Now():
		default:
		}
	})
	select {
	case at := <-fired:
		if el := at.Sub(start); el < 30*time.Millisecond {
			t.Fatalf("timeout fired after %v", el)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("new timeout not picked up by blocked loop")
	}
}

func TestInvalidFdUnwatched(t *testing.T) {
	r, _ := mkpipe(t)
	w := New()
	defer w.Stop()
	// start the loop first so its wakeup pipe can't reuse the closed descriptor
	if err := w.Watch(r, func(fd int) { consume(fd) }); err != nil {
		t.Fatal(err)
	}

	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		t.Fatal(err)
	}
	unix.Close(p[0])
	unix.Close(p[1])

	if err := w.Watch(p[0], func(fd int) { t.Error("callback for closed fd") }); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "unwatch", func() bool {
		w.fdMu.Lock()
		defer w.fdMu.Unlock()
		return w.fd == -1
	})
	if !w.Running() {
		t.Fatal("loop exited on invalid descriptor")
	}
}

func TestCurGoroutineID(t *testing.T) {
	id := curGoroutineID()
	other := make(chan uint64)
	go func() { other <- curGoroutineID() }()
	if id == 0 || id == <-other {
		t.Fatalf("goroutine ids not distinct: %d", id)
	}
	if curGoroutineID() != id {
		t.Fatal("goroutine id not stable")
	}
}
