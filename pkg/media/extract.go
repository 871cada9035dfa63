package media

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNotFound is returned by ExtractURL when the document has no usable URL.
var ErrNotFound = errors.New("no resolvable result")

const fence = "```"

var (
	// tagPattern matches the src attribute of a media-bearing tag.
	tagPattern = regexp.MustCompile(`(?is)<(?:video|source|img|audio|iframe|embed)\b[^>]*?\bsrc\s*=\s*["']([^"']+)["']`)

	// urlPattern matches a bare http(s) URL up to whitespace, a quote or a
	// bracket. Trailing punctuation is kept.
	urlPattern = regexp.MustCompile(`https?://[^\s"'<>()\[\]{}]+`)
)

// ExtractURL locates the media URL in an accumulated content document.
//
// A media tag's src attribute takes precedence over a bare URL, since
// explanatory text ahead of the markup may itself contain links. Both patterns
// are heuristics tied to how the upstream formats its answer.
func ExtractURL(doc string) (string, error) {
	doc = stripFence(strings.TrimSpace(doc))

	if m := tagPattern.FindStringSubmatch(doc); m != nil {
		return strings.TrimSpace(m[1]), nil
	}

	if u := urlPattern.FindString(doc); u != "" {
		return u, nil
	}

	return "", ErrNotFound
}

// stripFence removes a wrapping fenced code block: the opening fence line
// (with any language tag) and a trailing fence marker.
func stripFence(doc string) string {
	if !strings.HasPrefix(doc, fence) {
		return doc
	}

	_, body, ok := strings.Cut(doc, "\n")
	if !ok {
		return doc
	}

	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, fence)
	return strings.TrimSpace(body)
}
