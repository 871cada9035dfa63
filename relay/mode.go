package relay

import (
	"fmt"
	"strings"
)

// Mode selects how a session's upstream stream reaches the consumer.
type Mode string

const (
	// ModeTranslate re-emits normalized progress/result/error frames.
	ModeTranslate Mode = "translate"

	// ModePassthrough forwards upstream status, headers and bytes verbatim
	// while the relay still parses frames for its session summary.
	ModePassthrough Mode = "passthrough"

	// ModeBuffered runs the session to completion and answers with a single
	// JSON document.
	ModeBuffered Mode = "buffered"
)

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeTranslate, ModePassthrough, ModeBuffered:
		return m, nil
	default:
		return "", fmt.Errorf("unknown relay mode %q (available: translate, passthrough, buffered)", s)
	}
}
