package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/linaje/internal/bridge"
	"github.com/kingrea/linaje/internal/ritual"
)

const runnerDefinition = `
id: test-letter
kind: liberation-letter
name: Carta de prueba
phases:
  verbalization:
    - id: reconocimiento
      title: Reconocimiento
      anchors: ["reconozco lo que pasó", "me afectó", "hoy decido mirarlo de frente"]
    - id: liberacion
      title: Liberación
      anchors: ["te libero", "me libero", "no me pertenece"]
  sealing:
    - id: sello
      title: Sello
      anchors: ["así queda sellado"]
`

func newTestRunner(t *testing.T, opts ...RunnerOption) *Runner {
	t.Helper()
	def, err := ritual.ParseDefinitionYAML([]byte(runnerDefinition))
	if err != nil {
		t.Fatalf("parse definition: %v", err)
	}
	m, err := ritual.NewMachine(def, ritual.WithSessionID("sess-1"))
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return NewRunner(m, opts...)
}

func typeLine(r *Runner, text string) {
	r.input.SetValue(text)
	r.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func TestRunnerWalksWholeRitual(t *testing.T) {
	var finished []ritual.Session
	r := newTestRunner(t, WithFinisher(func(m *ritual.Machine) (ritual.Session, error) {
		s := m.Session()
		finished = append(finished, s)
		return s, nil
	}))
	if r.mode != modeIntensityBefore {
		t.Fatalf("expected intensity prompt first, got mode %d", r.mode)
	}
	typeLine(r, "8")
	if got := r.machine.State(); got != ritual.StatePreparation {
		t.Fatalf("expected preparation, got %s", got)
	}
	typeLine(r, "") // preparation has no blocks
	if got := r.machine.State(); got != ritual.StateVerbalization {
		t.Fatalf("expected verbalization, got %s", got)
	}

	typeLine(r, "Te libero.")
	if r.last == nil || r.last.Success {
		t.Fatalf("expected failed attempt on first block, got %+v", r.last)
	}
	if !strings.Contains(r.View(), "Faltó decir") {
		t.Fatalf("missing phrases not rendered:\n%s", r.View())
	}

	typeLine(r, "reconozco lo que pasó y me afectó")
	if r.currentBlockID() != "liberacion" {
		t.Fatalf("expected selection to move to the pending block, got %s", r.currentBlockID())
	}
	typeLine(r, "te libero, me libero")
	if got := r.machine.State(); got != ritual.StateLiberation {
		t.Fatalf("expected auto-advance to liberation, got %s", got)
	}
	typeLine(r, "")
	typeLine(r, "así queda sellado")
	if got := r.machine.State(); got != ritual.StateRenewal {
		t.Fatalf("expected renewal, got %s", got)
	}
	if r.mode != modeVowDescription {
		t.Fatalf("expected vow prompt in renewal, got mode %d", r.mode)
	}
	typeLine(r, "Llamar a mis hijos cada domingo")
	typeLine(r, "cero")
	if r.err == nil || r.mode != modeVowDuration {
		t.Fatalf("expected invalid duration to be rejected")
	}
	typeLine(r, "30")
	typeLine(r, "presencia")
	typeLine(r, "3")

	if r.mode != modeDone {
		t.Fatalf("expected done, got mode %d (err %v)", r.mode, r.err)
	}
	if len(finished) != 1 || finished[0].State != ritual.StateCompleted {
		t.Fatalf("finisher not called with completed session: %+v", finished)
	}
	saved, ok := r.Session()
	if !ok || saved.Vow == nil || saved.Vow.Category != ritual.VowPresence {
		t.Fatalf("vow not recorded: %+v", saved.Vow)
	}
	if !strings.Contains(r.View(), "Intensidad: 8 → 3") {
		t.Fatalf("summary missing intensity:\n%s", r.View())
	}
}

func TestRunnerRejectsOutOfRangeIntensity(t *testing.T) {
	r := newTestRunner(t)
	typeLine(r, "11")
	if r.err == nil {
		t.Fatalf("expected error for intensity 11")
	}
	if r.machine.State() != ritual.StateIdle {
		t.Fatalf("machine must stay idle")
	}
}

func TestRunnerAdvanceShowsFailedBlocks(t *testing.T) {
	r := newTestRunner(t)
	typeLine(r, "")
	typeLine(r, "")
	r.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	if r.err == nil || !strings.Contains(r.err.Error(), "reconocimiento") {
		t.Fatalf("expected guard error naming the pending blocks, got %v", r.err)
	}
	if r.machine.State() != ritual.StateVerbalization {
		t.Fatalf("guard must keep the phase")
	}
}

func TestRunnerAbandonKeepsRecords(t *testing.T) {
	r := newTestRunner(t)
	typeLine(r, "")
	typeLine(r, "")
	typeLine(r, "reconozco lo que pasó y me afectó")
	r.Update(tea.KeyMsg{Type: tea.KeyCtrlX})
	saved, ok := r.Session()
	if !ok {
		t.Fatalf("expected session after abandon")
	}
	if saved.State != ritual.StateAbandoned || saved.AbandonedAt != ritual.StateVerbalization {
		t.Fatalf("unexpected abandoned session: %s at %s", saved.State, saved.AbandonedAt)
	}
	if !saved.Passed(ritual.StateVerbalization, "reconocimiento") {
		t.Fatalf("validated block lost on abandon")
	}
}

func TestRunnerConsumesBridgeTranscripts(t *testing.T) {
	ch := make(chan bridge.Transcript, 1)
	r := newTestRunner(t, WithTranscripts(ch))
	typeLine(r, "")
	typeLine(r, "")

	ch <- bridge.Transcript{EventID: "e1", SessionID: "sess-1", BlockID: "liberacion", Text: "te libero y no me pertenece"}
	msg := r.waitTranscript()()
	_, cmd := r.Update(msg)
	if cmd == nil {
		t.Fatalf("runner must keep listening after a transcript")
	}
	if !r.machine.Session().Passed(ritual.StateVerbalization, "liberacion") {
		t.Fatalf("bridge transcript not submitted to its block")
	}
}
