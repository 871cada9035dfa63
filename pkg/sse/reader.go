package sse

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

const readBufferSize = 32 * 1024

// ErrDestinationWrite wraps failures writing teed bytes to the destination.
// Callers use it to tell a gone downstream apart from a broken upstream.
var ErrDestinationWrite = errors.New("sse: destination write failed")

// Reader reads SSE frames from a source io.Reader, one chunk at a time.
// When constructed with a destination (see NewTeeReader) it also writes every
// raw byte verbatim to that destination before the frames it completes are
// returned.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌───────────────────────┐
// │  Reader.Next()   │──▶│ destination io.Writer │
// └──────────────────┘   └───────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Frame       │
// └──────────────────┘
type Reader struct {
	src      io.Reader
	dest     io.Writer
	splitter *Splitter
	buf      []byte

	queue []Frame
	done  bool
	err   error
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMaxFrameSize bounds the size of a single frame.
func WithMaxFrameSize(n int) ReaderOption {
	return func(r *Reader) {
		r.splitter = NewSplitter(n)
	}
}

// withTee writes all raw source bytes to dest.
func withTee(dest io.Writer) ReaderOption {
	return func(r *Reader) {
		r.dest = dest
	}
}

// NewReader returns a Reader that parses frames from src.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:      src,
		splitter: NewSplitter(DefaultMaxFrameSize),
		buf:      make([]byte, readBufferSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewTeeReader returns a Reader that parses frames from src and writes all raw
// bytes through to dest. The dest writer typically backs an io.Pipe connected
// to the downstream HTTP response.
func NewTeeReader(src io.Reader, dest io.Writer, opts ...ReaderOption) *Reader {
	return NewReader(src, append(opts, withTee(dest))...)
}

// Next returns the next complete frame. It blocks until a frame is available.
// Next returns nil, nil when the source is exhausted; any leftover partial
// frame is yielded first. Frames completed before a read error are returned
// before the error.
func (r *Reader) Next() (*Frame, error) {
	for len(r.queue) == 0 {
		if r.done {
			return nil, r.err
		}
		r.fill()
	}

	f := r.queue[0]
	r.queue = r.queue[1:]
	return &f, nil
}

// Frames returns a lazy, ordered sequence of frames. It is not restartable:
// frames consumed by the sequence are gone. An error is yielded at most once,
// as the last element.
func (r *Reader) Frames() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			f, err := r.Next()
			if err != nil {
				yield(Frame{}, err)
				return
			}
			if f == nil {
				return
			}
			if !yield(*f, nil) {
				return
			}
		}
	}
}

// fill performs one read from the source and queues completed frames.
func (r *Reader) fill() {
	n, err := r.src.Read(r.buf)
	if n > 0 {
		chunk := r.buf[:n]

		if r.dest != nil {
			if _, werr := r.dest.Write(chunk); werr != nil {
				r.finish(fmt.Errorf("%w: %w", ErrDestinationWrite, werr))
				return
			}
		}

		frames, perr := r.splitter.Push(chunk)
		r.queue = append(r.queue, frames...)
		if perr != nil {
			r.finish(perr)
			return
		}
	}

	switch {
	case errors.Is(err, io.EOF):
		if f, ok := r.splitter.Flush(); ok {
			r.queue = append(r.queue, f)
		}
		r.finish(nil)
	case err != nil:
		r.finish(err)
	}
}

func (r *Reader) finish(err error) {
	r.done = true
	r.err = err
}
