package ritual

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/linaje/internal/voice"
)

// Journal receives human-readable progress lines.
type Journal interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// Metrics records machine activity.
type Metrics interface {
	ObserveTransition(from, to string, accepted bool)
	ObserveValidation(success bool)
}

// Service starts machines from the definition library, keeps the active
// ones addressable by session ID and persists them once finalized.
type Service struct {
	library   *Library
	store     SessionStore
	validator voice.Validator
	journal   Journal
	metrics   Metrics
	logger    *zap.Logger
	clock     func() time.Time

	mu     sync.Mutex
	active map[string]*Machine
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceValidator sets the validator handed to new machines.
func WithServiceValidator(v voice.Validator) ServiceOption {
	return func(s *Service) { s.validator = v }
}

// WithJournal attaches the transition journal.
func WithJournal(j Journal) ServiceOption {
	return func(s *Service) { s.journal = j }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServiceClock injects a deterministic clock into new machines.
func WithServiceClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService wires the ritual service.
func NewService(library *Library, store SessionStore, opts ...ServiceOption) (*Service, error) {
	if library == nil {
		return nil, fmt.Errorf("ritual: service requires a definition library")
	}
	if store == nil {
		return nil, fmt.Errorf("ritual: service requires a session store")
	}
	s := &Service{
		library:   library,
		store:     store,
		validator: voice.NewValidator(voice.DefaultRequirement()),
		logger:    zap.NewNop(),
		clock:     time.Now,
		active:    map[string]*Machine{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Library returns the definitions the service can start.
func (s *Service) Library() *Library {
	return s.library
}

// Start creates an idle machine for the ritual.
func (s *Service) Start(ritualID string) (*Machine, error) {
	def, ok := s.library.Get(ritualID)
	if !ok {
		return nil, fmt.Errorf("ritual: unknown ritual %q", ritualID)
	}
	m, err := NewMachine(def, WithValidator(s.validator), WithClock(s.clock), WithObserver(s.observe))
	if err != nil {
		return nil, err
	}
	session := m.Session()
	s.mu.Lock()
	s.active[session.ID] = m
	s.mu.Unlock()
	s.logger.Info("ritual started", zap.String("session", session.ID), zap.String("ritual", def.ID))
	if s.journal != nil {
		s.journal.Info("ritual %s started (session %s)", def.ID, session.ID)
	}
	return m, nil
}

// Get returns an active machine.
func (s *Service) Get(sessionID string) (*Machine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.active[sessionID]
	return m, ok
}

// Finish persists a finalized session and forgets the machine.
func (s *Service) Finish(m *Machine) (Session, error) {
	if m == nil {
		return Session{}, fmt.Errorf("ritual: finish requires a machine")
	}
	session := m.Session()
	if !session.IsFinalized() {
		return Session{}, fmt.Errorf("ritual: session %s is still %s", session.ID, session.State)
	}
	existing, err := s.store.LoadSessions()
	if err != nil {
		return Session{}, fmt.Errorf("ritual: load sessions: %w", err)
	}
	if err := s.store.SaveSessions(upsertSession(existing, session)); err != nil {
		return Session{}, fmt.Errorf("ritual: save sessions: %w", err)
	}
	s.mu.Lock()
	delete(s.active, session.ID)
	s.mu.Unlock()
	s.logger.Info("ritual session saved",
		zap.String("session", session.ID),
		zap.String("state", string(session.State)),
		zap.Int("records", len(session.Records)),
	)
	return session, nil
}

// History returns persisted sessions, newest first.
func (s *Service) History() ([]Session, error) {
	sessions, err := s.store.LoadSessions()
	if err != nil {
		return nil, err
	}
	out := CloneSessions(sessions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// Session looks up a persisted session by ID.
func (s *Service) Session(id string) (Session, error) {
	sessions, err := s.store.LoadSessions()
	if err != nil {
		return Session{}, err
	}
	for _, session := range sessions {
		if session.ID == id {
			return session.Clone(), nil
		}
	}
	return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

func (s *Service) observe(ev Event) {
	if ev.Validation != nil {
		if s.metrics != nil {
			s.metrics.ObserveValidation(ev.Validation.Success)
		}
		s.logger.Debug("ritual block validated",
			zap.String("session", ev.SessionID),
			zap.String("block", ev.BlockID),
			zap.Float64("percentage", ev.Validation.Percentage),
			zap.Bool("success", ev.Validation.Success),
		)
		if s.journal != nil && !ev.Validation.Success {
			s.journal.Warn("session %s block %s: missing %v", ev.SessionID, ev.BlockID, ev.Validation.MissingPhrases)
		}
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(ev.From), string(ev.To), ev.Accepted)
	}
	if s.journal == nil {
		return
	}
	if ev.Accepted {
		s.journal.Info("session %s: %s -> %s", ev.SessionID, ev.From, ev.To)
		return
	}
	if len(ev.FailedBlocks) > 0 {
		s.journal.Warn("session %s: %s -> %s blocked by %v", ev.SessionID, ev.From, ev.To, ev.FailedBlocks)
		return
	}
	s.journal.Warn("session %s: %s -> %s rejected", ev.SessionID, ev.From, ev.To)
}

// IsRecoverable reports whether err leaves the session usable, so the caller
// may retry after correcting the input.
func IsRecoverable(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrSessionFinalized):
		return false
	default:
		return errors.Is(err, ErrInvalidTransition) ||
			errors.Is(err, ErrStaleRequest) ||
			errors.Is(err, ErrGuardFailed) ||
			errors.Is(err, ErrVowRequired) ||
			errors.Is(err, ErrInvalidVow) ||
			errors.Is(err, ErrBlockNotFound) ||
			errors.Is(err, ErrInvalidIntensity)
	}
}
