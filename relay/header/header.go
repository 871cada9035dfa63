// Package header provides header handling for the genrelay server.
//
// The relay sits between a consumer and an upstream generation API:
//
//	Consumer <--> Relay <--> Upstream
//
// Each leg negotiates hops and encoding independently, so upstream response
// headers are filtered before they are replayed downstream in pass-through
// mode, and the relay sets its own headers for translated event streams.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SessionIDHeader carries the relay session id on every generate response.
const SessionIDHeader = "X-Relay-Session-Id"

// Handler manages headers between relay connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipResponse is the set of upstream response headers (consumer <-- relay <-- upstream)
// that are not copied back to the consumer.
var skipResponse = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},

	// fasthttp manages chunked transfer encoding for the consumer-facing
	// response independently.
	"Transfer-Encoding": {},

	// Go's http.Transport strips Content-Encoding after auto-decompression,
	// so the relayed body never carries the upstream encoding.
	"Content-Encoding": {},

	// The upstream length describes the upstream body, not the relayed one.
	"Content-Length": {},
}

// SetClientResponseHeaders copies response headers from the upstream
// http.Response to the Fiber context, filtering headers that the relay should
// not forward back down to the consumer.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		if _, skip := skipResponse[http.CanonicalHeaderKey(k)]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}

// SetEventStreamHeaders marks the response as an unbuffered event stream.
func (h *Handler) SetEventStreamHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("X-Accel-Buffering", "no")
}

// SetSessionID tags the response with the relay session id.
func (h *Handler) SetSessionID(c *fiber.Ctx, id string) {
	c.Set(SessionIDHeader, id)
}
