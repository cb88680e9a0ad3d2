package ritual

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/linaje/internal/voice"
)

var (
	// ErrInvalidTransition rejects skips, backward moves and actions that do
	// not belong to the current phase. The session is left unchanged.
	ErrInvalidTransition = errors.New("ritual: invalid transition")
	// ErrStaleRequest rejects a transition whose From no longer matches the
	// session state.
	ErrStaleRequest = errors.New("ritual: stale transition request")
	// ErrGuardFailed is returned when blocks of the current phase have not
	// been validated yet.
	ErrGuardFailed = errors.New("ritual: phase blocks not validated")
	// ErrSessionFinalized rejects every mutation after completion or
	// abandonment.
	ErrSessionFinalized = errors.New("ritual: session finalized")
	// ErrVowRequired blocks completion until renewal records a vow.
	ErrVowRequired = errors.New("ritual: vow required to complete")
	// ErrInvalidVow rejects malformed vows.
	ErrInvalidVow = errors.New("ritual: invalid vow")
	// ErrBlockNotFound is returned when submitting to a block outside the
	// current phase.
	ErrBlockNotFound = errors.New("ritual: block not found in current phase")
	// ErrInvalidIntensity rejects ratings outside [1,10].
	ErrInvalidIntensity = errors.New("ritual: intensity must be between 1 and 10")
)

// TransitionRequest asks to move the session from From to To.
type TransitionRequest struct {
	From State
	To   State
}

// Result describes the outcome of a transition attempt.
type Result struct {
	From         State
	To           State
	Accepted     bool
	FailedBlocks []string
}

// Event is reported to the observer for every transition attempt and every
// block submission.
type Event struct {
	SessionID string
	RitualID  string
	From      State
	To        State
	Accepted  bool
	// BlockID is set for submissions; Validation carries their outcome.
	BlockID      string
	Validation   *voice.Validation
	FailedBlocks []string
	At           time.Time
}

// Machine drives one session. All methods are serialized by a mutex; a
// request built against an outdated state is rejected instead of applied.
type Machine struct {
	mu        sync.Mutex
	def       Definition
	session   Session
	validator voice.Validator
	clock     func() time.Time
	observe   func(Event)
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithClock injects a deterministic clock.
func WithClock(clock func() time.Time) MachineOption {
	return func(m *Machine) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithValidator sets the validator used for block submissions.
func WithValidator(v voice.Validator) MachineOption {
	return func(m *Machine) {
		m.validator = v
	}
}

// WithObserver installs a callback invoked after every attempt. It runs
// while the machine lock is held and must not call back into the machine.
func WithObserver(fn func(Event)) MachineOption {
	return func(m *Machine) {
		m.observe = fn
	}
}

// WithSessionID fixes the session ID instead of generating one.
func WithSessionID(id string) MachineOption {
	return func(m *Machine) {
		if id != "" {
			m.session.ID = id
		}
	}
}

// NewMachine starts an idle session for the definition.
func NewMachine(def Definition, opts ...MachineOption) (*Machine, error) {
	normalized, err := def.Normalized()
	if err != nil {
		return nil, err
	}
	m := &Machine{
		def:       normalized,
		validator: voice.NewValidator(voice.DefaultRequirement()),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.session.ID == "" {
		m.session.ID = uuid.NewString()
	}
	now := m.now()
	m.session.RitualID = normalized.ID
	m.session.Kind = normalized.Kind
	m.session.State = StateIdle
	m.session.StartedAt = now
	m.session.UpdatedAt = now
	return m, nil
}

// ResumeMachine rebuilds a machine around a persisted, unfinished session.
func ResumeMachine(def Definition, session Session, opts ...MachineOption) (*Machine, error) {
	if session.IsFinalized() {
		return nil, fmt.Errorf("%w: %s", ErrSessionFinalized, session.ID)
	}
	if !session.State.Valid() {
		return nil, fmt.Errorf("ritual: session %s has unknown state %q", session.ID, session.State)
	}
	m, err := NewMachine(def, append(opts, WithSessionID(session.ID))...)
	if err != nil {
		return nil, err
	}
	if session.RitualID != m.def.ID {
		return nil, fmt.Errorf("ritual: session %s belongs to %s, not %s", session.ID, session.RitualID, m.def.ID)
	}
	m.session = session.Clone()
	return m, nil
}

// Definition returns the ritual being run.
func (m *Machine) Definition() Definition {
	return m.def.Clone()
}

// Session returns a deep copy of the current session.
func (m *Machine) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// State returns the current phase.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.State
}

// PendingBlocks lists blocks of the current phase without a successful
// validation.
func (m *Machine) PendingBlocks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failedBlocks(m.session.State)
}

// Begin moves an idle session into preparation, optionally recording the
// starting intensity (0 means not rated).
func (m *Machine) Begin(intensityBefore int) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.IsFinalized() {
		return m.rejectFinal(StatePreparation)
	}
	if m.session.State != StateIdle {
		return m.reject(StatePreparation, nil, fmt.Errorf("%w: session already began (%s)", ErrInvalidTransition, m.session.State))
	}
	rating, err := intensity(intensityBefore)
	if err != nil {
		return Result{From: StateIdle, To: StatePreparation}, err
	}
	m.session.IntensityBefore = rating
	return m.transition(StatePreparation), nil
}

// Submit validates a transcript for a block of the current phase and
// records the outcome. Failed attempts are recorded too, so the caller can
// show the missing phrases and retry.
func (m *Machine) Submit(blockID, candidate string) (voice.Validation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.IsFinalized() {
		return voice.Validation{}, fmt.Errorf("%w: %s", ErrSessionFinalized, m.session.State)
	}
	phase := m.session.State
	block, ok := m.def.Block(phase, blockID)
	if !ok {
		return voice.Validation{}, fmt.Errorf("%w: %q in %s", ErrBlockNotFound, blockID, phase)
	}
	validation := m.validator.Validate(block.Anchors, candidate, block.Requirement)
	now := m.now()
	m.record(phase, blockID, validation, now)
	m.session.UpdatedAt = now
	m.emit(Event{
		From:       phase,
		To:         phase,
		Accepted:   validation.Success,
		BlockID:    blockID,
		Validation: &validation,
		At:         now,
	})
	return validation, nil
}

// Transition applies an explicit request. Only the next state or abandoned
// may be requested, and From must equal the current state.
func (m *Machine) Transition(req TransitionRequest) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.IsFinalized() {
		return m.rejectFinal(req.To)
	}
	if req.From != m.session.State {
		return m.reject(req.To, nil, fmt.Errorf("%w: requested from %s but session is in %s", ErrStaleRequest, req.From, m.session.State))
	}
	return m.advanceTo(req.To)
}

// Advance moves to the next state.
func (m *Machine) Advance() (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.IsFinalized() {
		return m.rejectFinal("")
	}
	next, _ := m.session.State.Next()
	return m.advanceTo(next)
}

// RecordVow stores the renewal commitment. It may be replaced until the
// session completes.
func (m *Machine) RecordVow(v Vow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.IsFinalized() {
		return fmt.Errorf("%w: %s", ErrSessionFinalized, m.session.State)
	}
	if m.session.State != StateRenewal {
		return fmt.Errorf("%w: vows are recorded during %s, session is in %s", ErrInvalidTransition, StateRenewal, m.session.State)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	m.session.Vow = &v
	m.session.UpdatedAt = m.now()
	return nil
}

// Complete finishes a renewal session that has a vow, recording the closing
// intensity (0 means not rated).
func (m *Machine) Complete(intensityAfter int) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.IsFinalized() {
		return m.rejectFinal(StateCompleted)
	}
	if m.session.State != StateRenewal {
		return m.reject(StateCompleted, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.session.State, StateCompleted))
	}
	rating, err := intensity(intensityAfter)
	if err != nil {
		return Result{From: m.session.State, To: StateCompleted}, err
	}
	res, err := m.advanceTo(StateCompleted)
	if err != nil {
		return res, err
	}
	m.session.IntensityAfter = rating
	return res, nil
}

// Abandon freezes the session. Recorded validations are kept.
func (m *Machine) Abandon() (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.IsFinalized() {
		return m.rejectFinal(StateAbandoned)
	}
	return m.advanceTo(StateAbandoned)
}

func (m *Machine) advanceTo(to State) (Result, error) {
	from := m.session.State
	if to == StateAbandoned {
		m.session.AbandonedAt = from
		return m.transition(StateAbandoned), nil
	}
	next, ok := m.session.State.Next()
	if !ok || to != next {
		return m.reject(to, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to))
	}
	if from == StateIdle {
		return m.transition(to), nil
	}
	if failed := m.failedBlocks(from); len(failed) > 0 {
		return m.reject(to, failed, fmt.Errorf("%w: %s", ErrGuardFailed, strings.Join(failed, ", ")))
	}
	if to == StateCompleted && m.session.Vow == nil {
		return m.reject(to, nil, ErrVowRequired)
	}
	return m.transition(to), nil
}

func (m *Machine) transition(to State) Result {
	from := m.session.State
	now := m.now()
	m.session.State = to
	m.session.UpdatedAt = now
	if to.IsTerminal() {
		m.session.FinishedAt = &now
	}
	m.emit(Event{From: from, To: to, Accepted: true, At: now})
	return Result{From: from, To: to, Accepted: true}
}

func (m *Machine) reject(to State, failed []string, err error) (Result, error) {
	from := m.session.State
	m.emit(Event{From: from, To: to, FailedBlocks: failed, At: m.now()})
	return Result{From: from, To: to, FailedBlocks: failed}, err
}

func (m *Machine) rejectFinal(to State) (Result, error) {
	return Result{From: m.session.State, To: to}, fmt.Errorf("%w: %s", ErrSessionFinalized, m.session.State)
}

func (m *Machine) failedBlocks(phase State) []string {
	var failed []string
	for _, b := range m.def.Phases[phase] {
		if !m.session.Passed(phase, b.ID) {
			failed = append(failed, b.ID)
		}
	}
	return failed
}

func (m *Machine) record(phase State, blockID string, v voice.Validation, at time.Time) {
	for i := range m.session.Records {
		rec := &m.session.Records[i]
		if rec.Phase == phase && rec.BlockID == blockID {
			rec.Validation = v
			rec.Attempts++
			rec.RecordedAt = at
			return
		}
	}
	m.session.Records = append(m.session.Records, BlockRecord{
		Phase:      phase,
		BlockID:    blockID,
		Validation: v,
		Attempts:   1,
		RecordedAt: at,
	})
}

func (m *Machine) emit(ev Event) {
	if m.observe == nil {
		return
	}
	ev.SessionID = m.session.ID
	ev.RitualID = m.session.RitualID
	m.observe(ev)
}

func (m *Machine) now() time.Time {
	return m.clock().UTC()
}

func intensity(value int) (*int, error) {
	if value == 0 {
		return nil, nil
	}
	if value < MinIntensity || value > MaxIntensity {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidIntensity, value)
	}
	return &value, nil
}
