// Package bridge is the local HTTP intake for transcripts produced by an
// external transcription tool. Transcripts are validated, de-duplicated and
// routed to whichever ritual session is listening for them.
package bridge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// ProtocolVersion identifies the bridge contract exposed via /health.
	ProtocolVersion = "1.0.0"
	// TranscriptSchemaVersion is the supported inbound payload version.
	TranscriptSchemaVersion = 1
	// MaxTextBytes bounds a single transcript.
	MaxTextBytes = 64 << 10
)

// ErrDuplicate is returned by processors for an event_id seen recently.
var ErrDuplicate = errors.New("bridge: duplicate transcript")

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxTextBytes
	})
}

// Transcript is one utterance recognized by the transcription tool.
type Transcript struct {
	Version    int       `json:"version" validate:"eq=1"`
	EventID    string    `json:"event_id" validate:"required,max=128"`
	SessionID  string    `json:"session_id" validate:"required,max=128"`
	BlockID    string    `json:"block_id,omitempty" validate:"omitempty,max=128"`
	Text       string    `json:"text" validate:"omitempty,maxbytes"`
	Language   string    `json:"language,omitempty" validate:"omitempty,max=35"`
	ClientTime time.Time `json:"client_time"`
	ServerTime time.Time `json:"server_time"`
}

// Normalize applies defaults and trims identifiers before validation.
func (t *Transcript) Normalize() {
	if t == nil {
		return
	}
	if t.Version == 0 {
		t.Version = TranscriptSchemaVersion
	}
	t.EventID = strings.TrimSpace(t.EventID)
	t.SessionID = strings.TrimSpace(t.SessionID)
	t.BlockID = strings.TrimSpace(t.BlockID)
	t.Language = strings.TrimSpace(t.Language)
	t.Text = strings.TrimSpace(t.Text)
}

// StampServerTime overwrites ServerTime with the supplied clock reading (UTC).
func (t *Transcript) StampServerTime(now time.Time) {
	if t == nil {
		return
	}
	if now.IsZero() {
		now = time.Now()
	}
	t.ServerTime = now.UTC()
}

// Validate enforces the payload schema and reports the first offending field.
func (t Transcript) Validate() error {
	err := validate.Struct(t)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		f := fields[0]
		if f.Field() == "Version" {
			return fmt.Errorf("version %d not supported", t.Version)
		}
		return fmt.Errorf("%s failed %q", jsonName(f.Field()), f.Tag())
	}
	return err
}

func jsonName(field string) string {
	switch field {
	case "EventID":
		return "event_id"
	case "SessionID":
		return "session_id"
	case "BlockID":
		return "block_id"
	default:
		return strings.ToLower(field)
	}
}

// Processor consumes validated transcripts.
type Processor interface {
	HandleTranscript(Transcript) error
}

// ProcessorFunc adapts a function into a Processor.
type ProcessorFunc func(Transcript) error

// HandleTranscript executes f(t).
func (f ProcessorFunc) HandleTranscript(t Transcript) error {
	if f == nil {
		return nil
	}
	return f(t)
}

type healthResponse struct {
	State         string `json:"state"`
	Protocol      string `json:"protocol"`
	Schema        int    `json:"schema"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type transcriptResponse struct {
	Status     string     `json:"status"`
	ServerTime *time.Time `json:"server_time,omitempty"`
	Error      string     `json:"error,omitempty"`
}
