package ritual

import (
	"time"

	"github.com/kingrea/linaje/internal/voice"
)

const (
	MinIntensity = 1
	MaxIntensity = 10
)

// BlockRecord keeps the latest validation of one block.
type BlockRecord struct {
	Phase      State            `json:"phase"`
	BlockID    string           `json:"block_id"`
	Validation voice.Validation `json:"validation"`
	Attempts   int              `json:"attempts"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// Session is the persisted state of one ritual run.
type Session struct {
	ID              string        `json:"id"`
	RitualID        string        `json:"ritual_id"`
	Kind            Kind          `json:"kind"`
	State           State         `json:"state"`
	Records         []BlockRecord `json:"records,omitempty"`
	Vow             *Vow          `json:"vow,omitempty"`
	IntensityBefore *int          `json:"intensity_before,omitempty"`
	IntensityAfter  *int          `json:"intensity_after,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	// AbandonedAt is the phase the session was in when it was abandoned.
	AbandonedAt State `json:"abandoned_at,omitempty"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	if s.Records != nil {
		out.Records = make([]BlockRecord, len(s.Records))
		for i, rec := range s.Records {
			out.Records[i] = rec
			out.Records[i].Validation = cloneValidation(rec.Validation)
		}
	}
	if s.Vow != nil {
		v := *s.Vow
		out.Vow = &v
	}
	out.IntensityBefore = cloneInt(s.IntensityBefore)
	out.IntensityAfter = cloneInt(s.IntensityAfter)
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// IsFinalized reports whether the session reached a terminal state.
func (s Session) IsFinalized() bool {
	return s.State.IsTerminal()
}

// Record returns the record for a block of a phase.
func (s Session) Record(phase State, blockID string) (BlockRecord, bool) {
	for _, rec := range s.Records {
		if rec.Phase == phase && rec.BlockID == blockID {
			return rec, true
		}
	}
	return BlockRecord{}, false
}

// Passed reports whether the latest attempt at a block succeeded.
func (s Session) Passed(phase State, blockID string) bool {
	rec, ok := s.Record(phase, blockID)
	return ok && rec.Validation.Success
}

// CloneSessions deep-copies a session list.
func CloneSessions(sessions []Session) []Session {
	if sessions == nil {
		return nil
	}
	out := make([]Session, len(sessions))
	for i, s := range sessions {
		out[i] = s.Clone()
	}
	return out
}

func cloneValidation(v voice.Validation) voice.Validation {
	out := v
	out.TargetAnchors = cloneStrings(v.TargetAnchors)
	out.MatchedAnchors = cloneStrings(v.MatchedAnchors)
	out.MissingPhrases = cloneStrings(v.MissingPhrases)
	return out
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append(make([]string, 0, len(values)), values...)
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
