package async

import (
	"bytes"
	"runtime"
	"strconv"
)

var goroutineSpace = []byte("goroutine ")

// curGoroutineID parses the id out of the first line of the current
// goroutine's stack trace. Only Stop uses it, to tell whether it is running
// on the loop goroutine.
func curGoroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, goroutineSpace)
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		panic("async: can't parse goroutine id from " + strconv.Quote(string(b)))
	}
	n, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		panic("async: can't parse goroutine id: " + err.Error())
	}
	return n
}
