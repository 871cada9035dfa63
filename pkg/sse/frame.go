// Package sse provides the event stream framing used by the genrelay relay.
//
// Upstream bytes arrive in arbitrarily sized chunks. The Splitter holds back a
// partial tail between chunks and yields only complete, blank-line delimited
// frames. The Reader drives a Splitter from an io.Reader, optionally teeing
// every raw byte to a destination writer (pass-through mode). The Writer
// serializes outbound frames for the downstream consumer.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import "strings"

// Frame represents a single parsed SSE frame, delimited by a blank line in
// the upstream byte stream.
type Frame struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Type string

	// Data is the concatenated contents of all "data:" lines for this frame,
	// joined with "\n".
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string

	// HasData reports whether at least one "data:" line was present.
	HasData bool
}

// parseFrame parses one delimited block. It returns false for blocks that
// carry no fields at all (blank lines, keep-alive comments).
func parseFrame(block string) (Frame, bool) {
	var (
		f       Frame
		nonzero bool
	)

	for line := range strings.SplitSeq(block, "\n") {
		if line == "" {
			continue
		}

		// Lines starting with ':' are comments.
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if ok {
			// Strip a single leading space after the colon, as the SSE format requires.
			value = strings.TrimPrefix(value, " ")
		} else {
			field = line
			value = ""
		}

		switch field {
		case "data":
			if f.HasData {
				f.Data += "\n"
			}
			f.Data += value
			f.HasData = true
			nonzero = true
		case "event":
			f.Type = value
			nonzero = true
		case "id":
			f.ID = value
			nonzero = true
		default:
			// "retry" and unknown fields are ignored.
		}
	}

	return f, nonzero
}
