package ritual

import "errors"

// ErrSessionNotFound is returned when a session ID is unknown.
var ErrSessionNotFound = errors.New("ritual: session not found")

// SessionStore persists finalized sessions. Load returns an empty list when
// nothing has been saved yet.
type SessionStore interface {
	LoadSessions() ([]Session, error)
	SaveSessions([]Session) error
}

// upsertSession replaces the session with the same ID or appends it.
func upsertSession(sessions []Session, s Session) []Session {
	out := CloneSessions(sessions)
	for i := range out {
		if out[i].ID == s.ID {
			out[i] = s.Clone()
			return out
		}
	}
	return append(out, s.Clone())
}
