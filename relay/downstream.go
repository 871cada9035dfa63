package relay

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/papercomputeco/genrelay/pkg/sse"
)

// syncWriter serializes writes from the session and the keep-alive loop onto
// one response pipe. Each sse.Writer frame is a single Write, so frames never
// interleave.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// consumerBody is the response body stream handed to fasthttp. fasthttp closes
// the body stream once it stops writing the response, either at the end of
// the stream or because the connection failed; both cancel the session with
// ErrDownstreamGone so a blocked upstream read is released at once. After a
// clean end the session has already finished and the cancel is a no-op.
type consumerBody struct {
	pr     *io.PipeReader
	cancel context.CancelCauseFunc
}

func newConsumerBody(pr *io.PipeReader, cancel context.CancelCauseFunc) *consumerBody {
	return &consumerBody{pr: pr, cancel: cancel}
}

func (b *consumerBody) Read(p []byte) (int, error) {
	return b.pr.Read(p)
}

func (b *consumerBody) Close() error {
	b.cancel(ErrDownstreamGone)
	return b.pr.Close()
}

// CloseWithError is preferred by fasthttp over Close when present.
func (b *consumerBody) CloseWithError(err error) error {
	b.cancel(ErrDownstreamGone)
	if err == nil {
		return b.pr.Close()
	}
	return b.pr.CloseWithError(err)
}

// keepAlive writes a comment frame to w every interval until the returned
// stop func is called. When a write fails the consumer is gone: gone is
// called and the loop exits. stop waits for the loop to exit.
func keepAlive(w io.Writer, interval time.Duration, gone func()) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	writer := sse.NewWriter(w)

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := writer.WriteComment("keep-alive"); err != nil {
					gone()
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-stopped
	}
}
