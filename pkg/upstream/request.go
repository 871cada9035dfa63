package upstream

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is wrapped by validation failures on a Request.
var ErrInvalidRequest = errors.New("invalid generation request")

// Attachment kinds accepted from downstream callers.
const (
	KindImage = "image"
	KindVideo = "video"
)

// Attachment is a media payload that has already been base64 encoded by the
// caller. The relay forwards it as a data URI and never decodes it further.
type Attachment struct {
	Kind     string `json:"kind"`
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Validate checks the kind, the MIME type and that Data is standard base64.
func (a Attachment) Validate() error {
	switch a.Kind {
	case KindImage, KindVideo:
	default:
		return fmt.Errorf("%w: unsupported attachment kind %q", ErrInvalidRequest, a.Kind)
	}

	if a.MIMEType == "" || !strings.Contains(a.MIMEType, "/") {
		return fmt.Errorf("%w: attachment mime type %q", ErrInvalidRequest, a.MIMEType)
	}

	if a.Data == "" {
		return fmt.Errorf("%w: empty %s attachment", ErrInvalidRequest, a.Kind)
	}
	if _, err := base64.StdEncoding.DecodeString(a.Data); err != nil {
		return fmt.Errorf("%w: attachment data is not base64: %w", ErrInvalidRequest, err)
	}

	return nil
}

// DataURI wraps the payload as "data:<mime>;base64,<data>".
func (a Attachment) DataURI() string {
	return "data:" + a.MIMEType + ";base64," + a.Data
}

// Request is one generation request to forward upstream.
type Request struct {
	// Model overrides the client's default model when set.
	Model       string
	Prompt      string
	Attachments []Attachment
}

// Validate checks that the request carries a prompt and that every
// attachment is well formed.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	for i, a := range r.Attachments {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("attachment %d: %w", i, err)
		}
	}
	return nil
}

// chatRequest is the upstream chat completion request body.
type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role string `json:"role"`

	// Content is either a string or a []contentPart.
	Content any `json:"content"`
}

type contentPart struct {
	Type     string   `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL *partURL `json:"image_url,omitempty"`
	VideoURL *partURL `json:"video_url,omitempty"`
}

type partURL struct {
	URL string `json:"url"`
}

// body builds the upstream request body. Media parts precede the text part;
// without attachments the content is the plain prompt string.
func (r Request) body(model string) chatRequest {
	msg := chatMessage{Role: "user", Content: r.Prompt}

	if len(r.Attachments) > 0 {
		parts := make([]contentPart, 0, len(r.Attachments)+1)
		for _, a := range r.Attachments {
			u := &partURL{URL: a.DataURI()}
			switch a.Kind {
			case KindVideo:
				parts = append(parts, contentPart{Type: "video_url", VideoURL: u})
			default:
				parts = append(parts, contentPart{Type: "image_url", ImageURL: u})
			}
		}
		parts = append(parts, contentPart{Type: "text", Text: r.Prompt})
		msg.Content = parts
	}

	return chatRequest{
		Model:    model,
		Stream:   true,
		Messages: []chatMessage{msg},
	}
}
