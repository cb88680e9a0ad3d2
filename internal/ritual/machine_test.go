package ritual

import (
	"errors"
	"sync"
	"testing"
	"time"
)

const testDefinition = `
id: test-letter
kind: liberation-letter
name: Test letter
phases:
  verbalization:
    - id: recognition
      anchors: ["reconozco lo que pasó", "me afectó", "hoy decido mirarlo de frente"]
    - id: liberation
      anchors: ["te libero", "me libero", "no me pertenece"]
  sealing:
    - id: seal
      anchors: ["así queda sellado"]
`

func TestMachineWalksEveryPhase(t *testing.T) {
	m := newTestMachine(t)
	mustStep(t, func() (Result, error) { return m.Begin(7) })
	mustStep(t, m.Advance) // preparation has no blocks

	if _, err := m.Advance(); !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("expected guard failure before validating blocks, got %v", err)
	}
	mustSubmit(t, m, "recognition", "Hoy reconozco lo que pasó y cómo me afectó profundamente", true)
	mustSubmit(t, m, "liberation", "te libero y me libero", true)
	mustStep(t, m.Advance) // -> liberation
	mustStep(t, m.Advance) // -> sealing
	mustSubmit(t, m, "seal", "así queda sellado", true)
	mustStep(t, m.Advance) // -> renewal

	if _, err := m.Complete(3); !errors.Is(err, ErrVowRequired) {
		t.Fatalf("expected vow requirement, got %v", err)
	}
	if err := m.RecordVow(Vow{Description: "Llamar a mis hijos cada domingo", DurationDays: 30, Category: VowPresence}); err != nil {
		t.Fatalf("record vow: %v", err)
	}
	res, err := m.Complete(3)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !res.Accepted || res.To != StateCompleted {
		t.Fatalf("unexpected completion result: %+v", res)
	}
	session := m.Session()
	if session.State != StateCompleted || session.FinishedAt == nil {
		t.Fatalf("session not finalized: %+v", session)
	}
	if *session.IntensityBefore != 7 || *session.IntensityAfter != 3 {
		t.Fatalf("intensity not recorded: %v/%v", session.IntensityBefore, session.IntensityAfter)
	}
	if len(session.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(session.Records))
	}
}

func TestMachineGuardReportsFailedBlocks(t *testing.T) {
	m := newTestMachine(t)
	mustStep(t, func() (Result, error) { return m.Begin(0) })
	mustStep(t, m.Advance)
	mustSubmit(t, m, "recognition", "reconozco lo que pasó y me afectó", true)
	mustSubmit(t, m, "liberation", "te libero", false)

	res, err := m.Transition(TransitionRequest{From: StateVerbalization, To: StateLiberation})
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("expected ErrGuardFailed, got %v", err)
	}
	if res.Accepted || len(res.FailedBlocks) != 1 || res.FailedBlocks[0] != "liberation" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if m.State() != StateVerbalization {
		t.Fatalf("state changed after rejected transition: %s", m.State())
	}
	rec, _ := m.Session().Record(StateVerbalization, "liberation")
	if len(rec.Validation.MissingPhrases) != 2 {
		t.Fatalf("missing phrases not recorded: %+v", rec.Validation)
	}

	mustSubmit(t, m, "liberation", "te libero, me libero", true)
	rec, _ = m.Session().Record(StateVerbalization, "liberation")
	if rec.Attempts != 2 || !rec.Validation.Success {
		t.Fatalf("latest attempt not kept: %+v", rec)
	}
	mustStep(t, func() (Result, error) {
		return m.Transition(TransitionRequest{From: StateVerbalization, To: StateLiberation})
	})
}

func TestMachineRejectsSkipsAndStaleRequests(t *testing.T) {
	m := newTestMachine(t)
	mustStep(t, func() (Result, error) { return m.Begin(0) })

	if _, err := m.Transition(TransitionRequest{From: StatePreparation, To: StateSealing}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for skip, got %v", err)
	}
	if _, err := m.Transition(TransitionRequest{From: StatePreparation, To: StateIdle}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for backward move, got %v", err)
	}
	if _, err := m.Transition(TransitionRequest{From: StateIdle, To: StatePreparation}); !errors.Is(err, ErrStaleRequest) {
		t.Fatalf("expected stale request, got %v", err)
	}
	if _, err := m.Begin(0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected second Begin to fail, got %v", err)
	}
	if err := m.RecordVow(Vow{Description: "x", DurationDays: 1, Category: VowCustom}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("vow outside renewal must fail, got %v", err)
	}
	if _, err := m.Submit("seal", "así queda sellado"); !errors.Is(err, ErrBlockNotFound) {
		t.Fatalf("expected block outside current phase to be rejected, got %v", err)
	}
	if m.State() != StatePreparation {
		t.Fatalf("rejected calls changed state to %s", m.State())
	}
}

func TestMachineConcurrentTransitionsApplyOnce(t *testing.T) {
	m := newTestMachine(t)
	mustStep(t, func() (Result, error) { return m.Begin(0) })

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Transition(TransitionRequest{From: StatePreparation, To: StateVerbalization})
			if err == nil && res.Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrStaleRequest) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if accepted != 1 {
		t.Fatalf("accepted = %d, want exactly 1", accepted)
	}
	if m.State() != StateVerbalization {
		t.Fatalf("state = %s", m.State())
	}
}

func TestMachineAbandonKeepsRecordsAndFreezes(t *testing.T) {
	m := newTestMachine(t)
	mustStep(t, func() (Result, error) { return m.Begin(5) })
	mustStep(t, m.Advance)
	mustSubmit(t, m, "recognition", "reconozco lo que pasó, me afectó", true)

	mustStep(t, m.Abandon)
	session := m.Session()
	if session.State != StateAbandoned || session.AbandonedAt != StateVerbalization {
		t.Fatalf("unexpected abandoned session: %+v", session)
	}
	if len(session.Records) != 1 {
		t.Fatalf("abandon discarded records")
	}

	checks := map[string]func() error{
		"advance": func() error { _, err := m.Advance(); return err },
		"abandon": func() error { _, err := m.Abandon(); return err },
		"transition": func() error {
			_, err := m.Transition(TransitionRequest{From: StateAbandoned, To: StateCompleted})
			return err
		},
		"submit":   func() error { _, err := m.Submit("recognition", "x"); return err },
		"vow":      func() error { return m.RecordVow(Vow{Description: "x", DurationDays: 1, Category: VowCustom}) },
		"complete": func() error { _, err := m.Complete(0); return err },
		"begin":    func() error { _, err := m.Begin(0); return err },
	}
	for name, call := range checks {
		if err := call(); !errors.Is(err, ErrSessionFinalized) {
			t.Fatalf("%s after abandon: expected ErrSessionFinalized, got %v", name, err)
		}
	}
	if m.State() != StateAbandoned {
		t.Fatalf("terminal state changed to %s", m.State())
	}
}

func TestVowValidation(t *testing.T) {
	cases := []Vow{
		{Description: "   ", DurationDays: 10, Category: VowCustom},
		{Description: "ok", DurationDays: 0, Category: VowPresence},
		{Description: "ok", DurationDays: 5, Category: "spiritual"},
	}
	for _, v := range cases {
		if err := v.Validate(); !errors.Is(err, ErrInvalidVow) {
			t.Fatalf("vow %+v: expected ErrInvalidVow, got %v", v, err)
		}
	}
	if err := (Vow{Description: "Cuidar mi descanso", DurationDays: 21, Category: VowSelfCare}).Validate(); err != nil {
		t.Fatalf("valid vow rejected: %v", err)
	}
}

func TestMachineRejectsOutOfRangeIntensity(t *testing.T) {
	m := newTestMachine(t)
	if _, err := m.Begin(11); !errors.Is(err, ErrInvalidIntensity) {
		t.Fatalf("expected ErrInvalidIntensity, got %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("invalid intensity must not begin the session")
	}
}

func TestResumeMachineContinuesSession(t *testing.T) {
	m := newTestMachine(t)
	mustStep(t, func() (Result, error) { return m.Begin(0) })
	mustStep(t, m.Advance)
	mustSubmit(t, m, "recognition", "reconozco lo que pasó, me afectó", true)

	resumed, err := ResumeMachine(m.Definition(), m.Session())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Session().ID != m.Session().ID || resumed.State() != StateVerbalization {
		t.Fatalf("resume lost state: %+v", resumed.Session())
	}
	if pending := resumed.PendingBlocks(); len(pending) != 1 || pending[0] != "liberation" {
		t.Fatalf("pending blocks = %v", pending)
	}
}

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	def, err := ParseDefinitionYAML([]byte(testDefinition))
	if err != nil {
		t.Fatalf("parse definition: %v", err)
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m, err := NewMachine(def, WithClock(func() time.Time { return now }), WithSessionID("session-1"))
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return m
}

func mustStep(t *testing.T, step func() (Result, error)) {
	t.Helper()
	res, err := step()
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("step not accepted: %+v", res)
	}
}

func mustSubmit(t *testing.T, m *Machine, block, text string, wantSuccess bool) {
	t.Helper()
	v, err := m.Submit(block, text)
	if err != nil {
		t.Fatalf("submit %s: %v", block, err)
	}
	if v.Success != wantSuccess {
		t.Fatalf("submit %s success = %v, want %v (missing %v)", block, v.Success, wantSuccess, v.MissingPhrases)
	}
}
