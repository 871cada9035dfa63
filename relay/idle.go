package relay

import (
	"context"
	"io"
	"time"
)

// idleReader cancels a context when no bytes arrive from the wrapped reader
// for longer than timeout. The cancellation aborts the in-flight upstream
// read, which then surfaces as a transport failure with ErrIdleTimeout as the
// context cause.
type idleReader struct {
	r       io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
}

func newIdleReader(r io.ReadCloser, timeout time.Duration, cancel context.CancelCauseFunc) io.ReadCloser {
	if timeout <= 0 {
		return r
	}
	return &idleReader{
		r:       r,
		timeout: timeout,
		timer:   time.AfterFunc(timeout, func() { cancel(ErrIdleTimeout) }),
	}
}

func (i *idleReader) Read(p []byte) (int, error) {
	n, err := i.r.Read(p)
	if n > 0 {
		i.timer.Reset(i.timeout)
	}
	return n, err
}

func (i *idleReader) Close() error {
	i.timer.Stop()
	return i.r.Close()
}
