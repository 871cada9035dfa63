// Package delta classifies upstream chat-completion stream frames.
//
// Each frame is one of: noise to ignore, a malformed payload to skip, the
// terminal sentinel, or a data delta carrying a progress percentage and/or a
// content fragment.
package delta

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/papercomputeco/genrelay/pkg/sse"
)

// Sentinel is the payload of the upstream's end-of-stream frame.
const Sentinel = "[DONE]"

// Kind classifies a frame.
type Kind int

const (
	// KindIgnored is a frame with no data line.
	KindIgnored Kind = iota

	// KindMalformed is a data frame whose payload is not valid JSON.
	KindMalformed

	// KindTerminal is the "[DONE]" sentinel frame.
	KindTerminal

	// KindData is a parsed chunk. It may still carry neither progress nor
	// content (role-only or finish_reason chunks).
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindIgnored:
		return "ignored"
	case KindMalformed:
		return "malformed"
	case KindTerminal:
		return "terminal"
	case KindData:
		return "data"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Delta is the interpretation of one frame.
type Delta struct {
	Kind Kind

	// Percent is valid when HasProgress is set.
	Percent     int
	HasProgress bool

	// Content is valid when HasContent is set.
	Content    string
	HasContent bool

	// Err holds the decode error for KindMalformed frames.
	Err error
}

// chunk is the subset of a streaming chat completion chunk the relay reads.
type chunk struct {
	Choices []struct {
		Delta struct {
			ReasoningContent *string `json:"reasoning_content"`
			Content          *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// progressPattern matches a decimal percentage, optionally introduced by a
// "progress" label, as in "**Video Generation Progress**: 42% (running)" or
// "...: 42% (running)".
//
// This is a heuristic coupled to how the upstream happens to word its
// reasoning stream. An upstream that stops writing percentages will simply
// stop producing progress events.
var progressPattern = regexp.MustCompile(`(?i)(?:progress[^0-9\n]*?)?(\d+(?:\.\d+)?)\s*%`)

// Interpret classifies a single frame.
func Interpret(f sse.Frame) Delta {
	if !f.HasData {
		return Delta{Kind: KindIgnored}
	}

	payload := strings.TrimSpace(f.Data)
	if payload == Sentinel {
		return Delta{Kind: KindTerminal}
	}

	var c chunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Delta{Kind: KindMalformed, Err: err}
	}

	d := Delta{Kind: KindData}
	if len(c.Choices) == 0 {
		return d
	}

	delta := c.Choices[0].Delta
	if delta.ReasoningContent != nil {
		d.Percent, d.HasProgress = ParseProgress(*delta.ReasoningContent)
	}
	if delta.Content != nil && *delta.Content != "" {
		d.Content = *delta.Content
		d.HasContent = true
	}

	return d
}

// ParseProgress extracts the last progress percentage in text, truncated to
// an integer and clamped to 0..100.
func ParseProgress(text string) (int, bool) {
	matches := progressPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, false
	}

	value, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil {
		return 0, false
	}

	percent := int(math.Trunc(value))
	return min(max(percent, 0), 100), true
}
