package genealogy

import "strings"

// Sex is recorded so ancestor walks can tell paternal from maternal lines.
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// ParseSex maps loose user input onto a Sex value.
func ParseSex(value string) Sex {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "male", "m", "hombre", "masculino":
		return SexMale
	case "female", "f", "mujer", "femenino":
		return SexFemale
	default:
		return SexUnknown
	}
}

// Lineage identifies the side of the family a member or event belongs to.
type Lineage string

const (
	LineageUnknown  Lineage = "unknown"
	LineagePaternal Lineage = "paternal"
	LineageMaternal Lineage = "maternal"
	LineageBoth     Lineage = "both"
)

// Valid reports whether the lineage is one of the known values.
func (l Lineage) Valid() bool {
	switch l {
	case LineageUnknown, LineagePaternal, LineageMaternal, LineageBoth:
		return true
	}
	return false
}

// Merge combines two lineages reached through different paths.
func (l Lineage) Merge(other Lineage) Lineage {
	switch {
	case l == other:
		return l
	case l == "" || l == LineageUnknown:
		return other
	case other == "" || other == LineageUnknown:
		return l
	default:
		return LineageBoth
	}
}

// Covers reports whether an event scoped to l applies to a member on side.
func (l Lineage) Covers(side Lineage) bool {
	if l == LineageBoth {
		return side == LineagePaternal || side == LineageMaternal || side == LineageBoth
	}
	if side == LineageBoth {
		return l == LineagePaternal || l == LineageMaternal
	}
	return l == side && l != LineageUnknown
}

// RelationshipType is the tag of a directed family edge.
type RelationshipType string

const (
	RelationParent      RelationshipType = "parent"
	RelationGrandparent RelationshipType = "grandparent"
	RelationSibling     RelationshipType = "sibling"
	RelationHalfSibling RelationshipType = "half-sibling"
	RelationPartner     RelationshipType = "partner"
	RelationExPartner   RelationshipType = "ex-partner"
)

var relationshipTypes = []RelationshipType{
	RelationParent,
	RelationGrandparent,
	RelationSibling,
	RelationHalfSibling,
	RelationPartner,
	RelationExPartner,
}

// RelationshipTypes lists every known relationship tag.
func RelationshipTypes() []RelationshipType {
	return append([]RelationshipType(nil), relationshipTypes...)
}

// Valid reports whether t is a known relationship type.
func (t RelationshipType) Valid() bool {
	for _, known := range relationshipTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Generations is how many generations the edge climbs from To up to From.
// Non-lineal edges return zero.
func (t RelationshipType) Generations() int {
	switch t {
	case RelationParent:
		return 1
	case RelationGrandparent:
		return 2
	default:
		return 0
	}
}

// IsLineal reports whether the edge links ancestors to descendants.
func (t RelationshipType) IsLineal() bool {
	return t.Generations() > 0
}

// IsLateral reports whether the edge links members of the same generation
// through shared parents.
func (t RelationshipType) IsLateral() bool {
	return t == RelationSibling || t == RelationHalfSibling
}

// IsPartnership reports whether the edge is a couple bond, current or past.
func (t RelationshipType) IsPartnership() bool {
	return t == RelationPartner || t == RelationExPartner
}

// IsSymmetric reports whether From and To are interchangeable.
func (t RelationshipType) IsSymmetric() bool {
	return t.IsLateral() || t.IsPartnership()
}

// EventKind tags a family event.
type EventKind string

const (
	EventDivorce       EventKind = "divorce"
	EventSeparation    EventKind = "separation"
	EventAbsence       EventKind = "absence"
	EventAbandonment   EventKind = "abandonment"
	EventAddiction     EventKind = "addiction"
	EventSecret        EventKind = "secret"
	EventTrauma        EventKind = "trauma"
	EventViolence      EventKind = "violence"
	EventEarlyDeath    EventKind = "early-death"
	EventIllness       EventKind = "illness"
	EventMigration     EventKind = "migration"
	EventFinancialRuin EventKind = "financial-ruin"
)

type eventKindInfo struct {
	severity  int
	traumatic bool
}

var eventKinds = map[EventKind]eventKindInfo{
	EventDivorce:       {severity: 3, traumatic: false},
	EventSeparation:    {severity: 2, traumatic: false},
	EventAbsence:       {severity: 3, traumatic: false},
	EventAbandonment:   {severity: 4, traumatic: true},
	EventAddiction:     {severity: 4, traumatic: true},
	EventSecret:        {severity: 3, traumatic: false},
	EventTrauma:        {severity: 5, traumatic: true},
	EventViolence:      {severity: 5, traumatic: true},
	EventEarlyDeath:    {severity: 4, traumatic: true},
	EventIllness:       {severity: 2, traumatic: false},
	EventMigration:     {severity: 2, traumatic: false},
	EventFinancialRuin: {severity: 3, traumatic: false},
}

// EventKinds lists every known event kind in a stable order.
func EventKinds() []EventKind {
	return []EventKind{
		EventDivorce, EventSeparation, EventAbsence, EventAbandonment,
		EventAddiction, EventSecret, EventTrauma, EventViolence,
		EventEarlyDeath, EventIllness, EventMigration, EventFinancialRuin,
	}
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	_, ok := eventKinds[k]
	return ok
}

// DefaultSeverity is the weight class used when the caller gives none.
func (k EventKind) DefaultSeverity() int {
	if info, ok := eventKinds[k]; ok {
		return info.severity
	}
	return MinSeverity
}

// IsTraumatic reports whether the kind is considered a traumatic event.
func (k EventKind) IsTraumatic() bool {
	return eventKinds[k].traumatic
}

const (
	MinSeverity = 1
	MaxSeverity = 5
)

// ClampSeverity forces a severity into [MinSeverity, MaxSeverity].
func ClampSeverity(value int) int {
	if value < MinSeverity {
		return MinSeverity
	}
	if value > MaxSeverity {
		return MaxSeverity
	}
	return value
}
