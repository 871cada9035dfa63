package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/papercomputeco/genrelay/pkg/auth"
	"github.com/papercomputeco/genrelay/pkg/eventstream"
	"github.com/papercomputeco/genrelay/pkg/upstream"
)

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Mode is the default relay mode when a request does not pick one.
	Mode Mode

	// AuthHeader names the request header carrying the relay credential.
	AuthHeader string

	// Authorizer gates /v1 routes. If nil, every request is accepted.
	Authorizer auth.Authorizer

	// MaxDuration bounds a whole session, zero disables the bound.
	MaxDuration time.Duration

	// IdleTimeout bounds the gap between upstream chunks, zero disables it.
	IdleTimeout time.Duration

	// KeepAlive is the interval between comment frames written to translated
	// streams. A write that fails marks the consumer as gone even while the
	// upstream produces nothing worth emitting. Zero uses DefaultKeepAlive,
	// a negative value disables keep-alives.
	KeepAlive time.Duration

	// MaxFrameBytes bounds a single upstream frame.
	MaxFrameBytes int

	// Publisher receives a summary of every finished session.
	// If nil, summaries are not published.
	Publisher eventstream.Publisher

	// Version is reported as the event source version.
	Version string
}

// DefaultKeepAlive is the keep-alive interval used when Config.KeepAlive is zero.
const DefaultKeepAlive = 15 * time.Second

// Opener starts streaming generation requests against the upstream.
// *upstream.Client is the production implementation.
type Opener interface {
	Open(ctx context.Context, req upstream.Request) (*http.Response, error)
	Endpoint() string
	Model() string
}

var _ Opener = (*upstream.Client)(nil)
