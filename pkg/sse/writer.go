package sse

import (
	"bytes"
	"io"
)

// Writer serializes outbound frames. Each frame is written with a single
// Write call so a consumer never observes a half-written frame between
// successful writes.
type Writer struct {
	w io.Writer
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteData writes one "data:" frame. Payloads containing newlines are split
// over multiple data lines, which readers join back with "\n".
func (w *Writer) WriteData(payload []byte) error {
	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)

	for line := range bytes.SplitSeq(payload, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(bytes.TrimSuffix(line, []byte("\r")))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return err
	}

	return w.flush()
}

// WriteComment writes a comment frame, used for keep-alives.
func (w *Writer) WriteComment(text string) error {
	if _, err := io.WriteString(w.w, ": "+text+"\n\n"); err != nil {
		return err
	}
	return w.flush()
}

func (w *Writer) flush() error {
	switch f := w.w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case interface{ Flush() }:
		f.Flush()
	}
	return nil
}
