package genealogy

import (
	"strings"
	"time"
)

// MemberID identifies a family member.
type MemberID string

// RelationshipID identifies a relationship edge.
type RelationshipID string

// EventID identifies a family event.
type EventID string

const unnamedMember = "Sin nombre"

// FamilyMember is a person in the family graph.
type FamilyMember struct {
	ID         MemberID   `json:"id"`
	GivenName  string     `json:"given_name"`
	FamilyName string     `json:"family_name,omitempty"`
	Sex        Sex        `json:"sex"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	DeathDate  *time.Time `json:"death_date,omitempty"`
	IsAlive    bool       `json:"is_alive"`
	BirthPlace string     `json:"birth_place,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// DisplayName is derived from the given and family names.
func (m FamilyMember) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(m.GivenName) + " " + strings.TrimSpace(m.FamilyName))
	if name == "" {
		return unnamedMember
	}
	return name
}

// Clone returns a deep copy of the member.
func (m FamilyMember) Clone() FamilyMember {
	out := m
	out.BirthDate = cloneTime(m.BirthDate)
	out.DeathDate = cloneTime(m.DeathDate)
	out.Tags = cloneStrings(m.Tags)
	return out
}

func (m *FamilyMember) normalize() {
	m.ID = MemberID(strings.TrimSpace(string(m.ID)))
	m.GivenName = strings.TrimSpace(m.GivenName)
	m.FamilyName = strings.TrimSpace(m.FamilyName)
	m.BirthPlace = strings.TrimSpace(m.BirthPlace)
	if m.Sex == "" {
		m.Sex = SexUnknown
	}
	if m.DeathDate != nil {
		m.IsAlive = false
	}
	m.Tags = normalizeTags(m.Tags)
}

// Relationship is a directed, typed edge between two members. For lineal
// types From is the elder and To the descendant.
type Relationship struct {
	ID        RelationshipID   `json:"id"`
	Type      RelationshipType `json:"type"`
	From      MemberID         `json:"from"`
	To        MemberID         `json:"to"`
	StartDate *time.Time       `json:"start_date,omitempty"`
	EndDate   *time.Time       `json:"end_date,omitempty"`
	Notes     string           `json:"notes,omitempty"`
}

// Clone returns a deep copy of the relationship.
func (r Relationship) Clone() Relationship {
	out := r
	out.StartDate = cloneTime(r.StartDate)
	out.EndDate = cloneTime(r.EndDate)
	return out
}

// Touches reports whether the relationship references the member.
func (r Relationship) Touches(id MemberID) bool {
	return r.From == id || r.To == id
}

// SameEdge reports whether o links the same members with the same type.
// Direction is ignored for symmetric types.
func (r Relationship) SameEdge(o Relationship) bool {
	if r.Type != o.Type {
		return false
	}
	if r.From == o.From && r.To == o.To {
		return true
	}
	return r.Type.IsSymmetric() && r.From == o.To && r.To == o.From
}

// Other returns the endpoint opposite to id.
func (r Relationship) Other(id MemberID) MemberID {
	if r.From == id {
		return r.To
	}
	return r.From
}

// FamilyEvent is a dated life event attached to a member or, when MemberID
// is empty, to a whole lineage.
type FamilyEvent struct {
	ID       EventID    `json:"id"`
	MemberID MemberID   `json:"member_id,omitempty"`
	Lineage  Lineage    `json:"lineage,omitempty"`
	Kind     EventKind  `json:"kind"`
	Severity int        `json:"severity"`
	IsSecret bool       `json:"is_secret,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	Location string     `json:"location,omitempty"`
	Notes    string     `json:"notes,omitempty"`
}

// Clone returns a deep copy of the event.
func (e FamilyEvent) Clone() FamilyEvent {
	out := e
	out.Date = cloneTime(e.Date)
	return out
}

// IsLineageWide reports whether the event applies to a lineage rather than a
// single member.
func (e FamilyEvent) IsLineageWide() bool {
	return e.MemberID == ""
}

func (e *FamilyEvent) normalize() {
	e.ID = EventID(strings.TrimSpace(string(e.ID)))
	e.MemberID = MemberID(strings.TrimSpace(string(e.MemberID)))
	if e.Severity == 0 {
		e.Severity = e.Kind.DefaultSeverity()
	}
	e.Severity = ClampSeverity(e.Severity)
	if e.Lineage == "" {
		e.Lineage = LineageUnknown
	}
	e.Location = strings.TrimSpace(e.Location)
}

// Snapshot is a value copy of the whole graph.
type Snapshot struct {
	Members       []FamilyMember `json:"members"`
	Relationships []Relationship `json:"relationships"`
	Events        []FamilyEvent  `json:"events"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Members:       make([]FamilyMember, len(s.Members)),
		Relationships: make([]Relationship, len(s.Relationships)),
		Events:        make([]FamilyEvent, len(s.Events)),
	}
	for i, m := range s.Members {
		out.Members[i] = m.Clone()
	}
	for i, r := range s.Relationships {
		out.Relationships[i] = r.Clone()
	}
	for i, e := range s.Events {
		out.Events[i] = e.Clone()
	}
	return out
}

// IsEmpty reports whether the snapshot holds no records at all.
func (s Snapshot) IsEmpty() bool {
	return len(s.Members) == 0 && len(s.Relationships) == 0 && len(s.Events) == 0
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
