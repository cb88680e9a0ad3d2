package ritual

// State is a phase of a ritual session.
type State string

const (
	StateIdle          State = "idle"
	StatePreparation   State = "preparation"
	StateVerbalization State = "verbalization"
	StateLiberation    State = "liberation"
	StateSealing       State = "sealing"
	StateRenewal       State = "renewal"
	StateCompleted     State = "completed"
	StateAbandoned     State = "abandoned"
)

var order = []State{
	StateIdle,
	StatePreparation,
	StateVerbalization,
	StateLiberation,
	StateSealing,
	StateRenewal,
	StateCompleted,
}

// PhaseStates lists the states that may carry spoken blocks.
func PhaseStates() []State {
	return []State{StatePreparation, StateVerbalization, StateLiberation, StateSealing, StateRenewal}
}

// IsPhase reports whether blocks may be declared for s.
func (s State) IsPhase() bool {
	for _, phase := range PhaseStates() {
		if s == phase {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s == StateAbandoned || s.index() >= 0
}

// IsTerminal reports whether the session is finalized in this state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

// Next returns the only state reachable by a forward transition. Terminal
// states have no successor.
func (s State) Next() (State, bool) {
	idx := s.index()
	if idx < 0 || idx+1 >= len(order) {
		return "", false
	}
	return order[idx+1], true
}

// Label is the Spanish name shown to the user.
func (s State) Label() string {
	switch s {
	case StateIdle:
		return "Inicio"
	case StatePreparation:
		return "Preparación"
	case StateVerbalization:
		return "Verbalización"
	case StateLiberation:
		return "Liberación"
	case StateSealing:
		return "Sellado"
	case StateRenewal:
		return "Renovación"
	case StateCompleted:
		return "Completado"
	case StateAbandoned:
		return "Abandonado"
	}
	return string(s)
}

func (s State) index() int {
	for i, st := range order {
		if st == s {
			return i
		}
	}
	return -1
}
