package config

const (
	defaultListen = ":8080"
	defaultMode   = "translate"

	defaultUpstreamURL  = "https://api.openai.com"
	defaultUpstreamPath = "/v1/chat/completions"

	defaultAuthHeader = "X-Relay-Key"

	defaultMaxDuration   = "10m"
	defaultIdleTimeout   = "2m"
	defaultKeepAlive     = "15s"
	defaultMaxFrameBytes = 1 << 20

	defaultEventStreamProvider = "nop"
	defaultEventStreamTopic    = "genrelay.sessions"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Relay: RelayConfig{
			Listen: defaultListen,
			Mode:   defaultMode,
		},
		Upstream: UpstreamConfig{
			URL:  defaultUpstreamURL,
			Path: defaultUpstreamPath,
		},
		Auth: AuthConfig{
			Header: defaultAuthHeader,
		},
		Session: SessionConfig{
			MaxDuration:   defaultMaxDuration,
			IdleTimeout:   defaultIdleTimeout,
			KeepAlive:     defaultKeepAlive,
			MaxFrameBytes: defaultMaxFrameBytes,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
