package sse

import "io"

// newSlowPipe returns a reader that never yields data until the writer is
// closed, used to exercise the idle-timeout watchdog deterministically.
func newSlowPipe() (io.ReadCloser, io.WriteCloser) {
	r, w := io.Pipe()
	return r, w
}
