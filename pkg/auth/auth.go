// Package auth gates relay requests behind a shared secret.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
)

// DefaultHeader carries the caller's credential.
const DefaultHeader = "X-Relay-Key"

// Authorizer decides whether a caller-provided credential is accepted.
type Authorizer interface {
	Authorize(credential string) bool
}

// SharedSecret accepts exactly one secret. The secret can be replaced while
// requests are in flight. An empty secret disables the gate.
type SharedSecret struct {
	secret atomic.Pointer[string]
}

// NewSharedSecret creates a SharedSecret holding secret.
func NewSharedSecret(secret string) *SharedSecret {
	s := &SharedSecret{}
	s.Set(secret)
	return s
}

// Set replaces the secret.
func (s *SharedSecret) Set(secret string) {
	s.secret.Store(&secret)
}

// Enabled reports whether a secret is configured.
func (s *SharedSecret) Enabled() bool {
	p := s.secret.Load()
	return p != nil && *p != ""
}

// Authorize compares credential against the secret in constant time.
func (s *SharedSecret) Authorize(credential string) bool {
	p := s.secret.Load()
	if p == nil || *p == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(*p)) == 1
}

// Middleware rejects requests whose header value is not authorized with 401
// and {"error":"unauthorized"}.
func Middleware(a Authorizer, header string, log *slog.Logger) fiber.Handler {
	if header == "" {
		header = DefaultHeader
	}

	return func(c *fiber.Ctx) error {
		if a.Authorize(c.Get(header)) {
			return c.Next()
		}

		log.Warn("rejected unauthorized request",
			"path", c.Path(),
			"remote", c.IP(),
		)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
}
