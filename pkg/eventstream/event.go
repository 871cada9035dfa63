package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeSessionCompleted is emitted after a relay session ends.
	EventTypeSessionCompleted = "genrelay.session.completed"
)

// SessionCompletedEvent is a transport-neutral summary of one finished relay
// session. It carries counters and the outcome only, never content.
type SessionCompletedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Session       SessionMeta `json:"session"`
	Stream        StreamStats `json:"stream"`
}

// EventSource identifies the relay instance that ran the session.
type EventSource struct {
	Service  string `json:"service"`
	Version  string `json:"version,omitempty"`
	Upstream string `json:"upstream,omitempty"`
}

// SessionMeta captures the session lifecycle.
type SessionMeta struct {
	ID          string    `json:"id"`
	Mode        string    `json:"mode"`
	Model       string    `json:"model,omitempty"`
	Outcome     string    `json:"outcome"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Message     string    `json:"message,omitempty"`
	URL         string    `json:"url,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// StreamStats counts what the session read from the upstream.
type StreamStats struct {
	Frames          int `json:"frames"`
	MalformedFrames int `json:"malformed_frames"`
	ProgressEvents  int `json:"progress_events"`
	LastPercent     int `json:"last_percent"`
	ContentBytes    int `json:"content_bytes"`
}
