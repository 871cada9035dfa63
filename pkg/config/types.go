package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent genrelay configuration stored as
// config.toml in the .genrelay/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Relay       RelayConfig       `toml:"relay"`
	Upstream    UpstreamConfig    `toml:"upstream"`
	Auth        AuthConfig        `toml:"auth"`
	Session     SessionConfig     `toml:"session"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// RelayConfig holds the downstream server settings.
type RelayConfig struct {
	Listen string `toml:"listen,omitempty"`

	// Mode is the default relay mode: translate, passthrough or buffered.
	Mode string `toml:"mode,omitempty"`
}

// UpstreamConfig holds the generation backend settings.
type UpstreamConfig struct {
	URL    string `toml:"url,omitempty"`
	Path   string `toml:"path,omitempty"`
	APIKey string `toml:"api_key,omitempty"`
	Model  string `toml:"model,omitempty"`
}

// AuthConfig holds the shared-secret gate settings. An empty secret disables
// the gate.
type AuthConfig struct {
	Header string `toml:"header,omitempty"`
	Secret string `toml:"secret,omitempty"`
}

// SessionConfig bounds the resources one relay session may hold.
// Durations use time.ParseDuration syntax ("10m", "90s").
type SessionConfig struct {
	MaxDuration   string `toml:"max_duration,omitempty"`
	IdleTimeout   string `toml:"idle_timeout,omitempty"`
	KeepAlive     string `toml:"keep_alive,omitempty"`
	MaxFrameBytes uint   `toml:"max_frame_bytes,omitempty"`
}

// EventStreamConfig selects where session summaries are published.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated list of host:port pairs.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// Relay modes accepted by relay.mode.
var validModes = []string{"translate", "passthrough", "buffered"}

// Event stream providers accepted by eventstream.provider.
var validEventStreamProviders = []string{"nop", "kafka"}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"relay.listen": {
		get: func(c *Config) string { return c.Relay.Listen },
		set: func(c *Config, v string) error { c.Relay.Listen = v; return nil },
	},
	"relay.mode": {
		get: func(c *Config) string { return c.Relay.Mode },
		set: func(c *Config, v string) error {
			v = strings.ToLower(v)
			if !slices.Contains(validModes, v) {
				return fmt.Errorf("invalid value for relay.mode: %q (available: %s)", v, strings.Join(validModes, ", "))
			}
			c.Relay.Mode = v
			return nil
		},
	},
	"upstream.url": {
		get: func(c *Config) string { return c.Upstream.URL },
		set: func(c *Config, v string) error { c.Upstream.URL = v; return nil },
	},
	"upstream.path": {
		get: func(c *Config) string { return c.Upstream.Path },
		set: func(c *Config, v string) error { c.Upstream.Path = v; return nil },
	},
	"upstream.api_key": {
		get: func(c *Config) string { return c.Upstream.APIKey },
		set: func(c *Config, v string) error { c.Upstream.APIKey = v; return nil },
	},
	"upstream.model": {
		get: func(c *Config) string { return c.Upstream.Model },
		set: func(c *Config, v string) error { c.Upstream.Model = v; return nil },
	},
	"auth.header": {
		get: func(c *Config) string { return c.Auth.Header },
		set: func(c *Config, v string) error { c.Auth.Header = v; return nil },
	},
	"auth.secret": {
		get: func(c *Config) string { return c.Auth.Secret },
		set: func(c *Config, v string) error { c.Auth.Secret = v; return nil },
	},
	"session.max_duration": {
		get: func(c *Config) string { return c.Session.MaxDuration },
		set: func(c *Config, v string) error {
			if err := validateDuration("session.max_duration", v); err != nil {
				return err
			}
			c.Session.MaxDuration = v
			return nil
		},
	},
	"session.idle_timeout": {
		get: func(c *Config) string { return c.Session.IdleTimeout },
		set: func(c *Config, v string) error {
			if err := validateDuration("session.idle_timeout", v); err != nil {
				return err
			}
			c.Session.IdleTimeout = v
			return nil
		},
	},
	"session.keep_alive": {
		get: func(c *Config) string { return c.Session.KeepAlive },
		set: func(c *Config, v string) error {
			if err := validateDuration("session.keep_alive", v); err != nil {
				return err
			}
			c.Session.KeepAlive = v
			return nil
		},
	},
	"session.max_frame_bytes": {
		get: func(c *Config) string {
			if c.Session.MaxFrameBytes == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Session.MaxFrameBytes), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for session.max_frame_bytes: %w", err)
			}
			if n == 0 {
				return mustBePositive("session.max_frame_bytes")
			}
			c.Session.MaxFrameBytes = uint(n)
			return nil
		},
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			v = strings.ToLower(v)
			if !slices.Contains(validEventStreamProviders, v) {
				return fmt.Errorf("invalid value for eventstream.provider: %q (available: %s)", v, strings.Join(validEventStreamProviders, ", "))
			}
			c.EventStream.Provider = v
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return c.EventStream.Brokers },
		set: func(c *Config, v string) error { c.EventStream.Brokers = strings.Join(SplitList(v), ","); return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
}

func validateDuration(key, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if d <= 0 {
		return mustBePositive(key)
	}
	return nil
}

func mustBePositive(key string) error {
	return fmt.Errorf("invalid value for %s: must be greater than zero", key)
}

// SplitList splits a comma separated value, trimming whitespace and dropping
// empty entries.
func SplitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
