package sse

import (
	"bytes"
	"errors"
)

// DefaultMaxFrameSize bounds the pending partial frame held between chunks.
const DefaultMaxFrameSize = 1024 * 1024

// ErrFrameTooLarge is returned when a frame grows beyond the configured
// maximum without a delimiter.
var ErrFrameTooLarge = errors.New("sse: frame exceeds maximum size")

var delimiter = []byte("\n\n")

// Splitter turns a sequence of arbitrarily sized chunks into complete frames.
//
// Chunks may split a frame anywhere, including inside the delimiter or inside
// a multi-byte UTF-8 sequence: the splitter works on raw bytes and only
// converts a block to a string once its delimiter has arrived. CRLF and lone
// CR line endings are rewritten to LF on the way in, so CRLF and CR-only
// streams frame the same as LF streams regardless of where a chunk boundary
// falls.
type Splitter struct {
	pending []byte
	maxSize int

	// afterCR is set when the last byte seen was a CR, so an LF starting the
	// next chunk completes a CRLF instead of ending another line.
	afterCR bool
}

// NewSplitter creates a Splitter. A maxSize of zero or less uses
// DefaultMaxFrameSize.
func NewSplitter(maxSize int) *Splitter {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Splitter{maxSize: maxSize}
}

// Push appends chunk to the pending tail and returns every frame completed by
// it, in order. Empty frames are filtered. The final, possibly partial, piece
// is retained for the next call.
func (s *Splitter) Push(chunk []byte) ([]Frame, error) {
	for _, b := range chunk {
		if s.afterCR {
			s.afterCR = false
			if b == '\n' {
				continue
			}
		}
		if b == '\r' {
			s.afterCR = true
			b = '\n'
		}
		s.pending = append(s.pending, b)
	}

	var frames []Frame
	rest := s.pending
	for {
		idx := bytes.Index(rest, delimiter)
		if idx < 0 {
			break
		}
		if f, ok := parseFrame(string(rest[:idx])); ok {
			frames = append(frames, f)
		}
		rest = rest[idx+len(delimiter):]
	}

	if len(rest) != len(s.pending) {
		s.pending = append(s.pending[:0:0], rest...)
	}

	if len(s.pending) > s.maxSize {
		s.pending = nil
		return frames, ErrFrameTooLarge
	}

	return frames, nil
}

// Flush returns the leftover tail as a final frame, if it carries any field.
// The splitter is empty afterwards.
func (s *Splitter) Flush() (Frame, bool) {
	tail := s.pending
	s.pending = nil
	s.afterCR = false
	if len(tail) == 0 {
		return Frame{}, false
	}
	return parseFrame(string(tail))
}
