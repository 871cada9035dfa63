// Package media accumulates streamed content and locates the generated media
// URL in it once the stream has ended.
package media

import "strings"

// Accumulator is an append-only buffer of content fragments. It is owned by a
// single session and is not safe for concurrent use.
type Accumulator struct {
	fragments []string
	size      int
}

// Append adds a fragment verbatim.
func (a *Accumulator) Append(fragment string) {
	if fragment == "" {
		return
	}
	a.fragments = append(a.fragments, fragment)
	a.size += len(fragment)
}

// Len returns the accumulated size in bytes.
func (a *Accumulator) Len() int {
	return a.size
}

// Fragments returns the fragments in arrival order.
func (a *Accumulator) Fragments() []string {
	return append([]string(nil), a.fragments...)
}

// Document joins every fragment into a single document.
func (a *Accumulator) Document() string {
	var b strings.Builder
	b.Grow(a.size)
	for _, f := range a.fragments {
		b.WriteString(f)
	}
	return b.String()
}
