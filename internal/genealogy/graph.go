package genealogy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

var (
	// ErrMemberNotFound is returned when a mutation references an unknown member.
	ErrMemberNotFound = errors.New("genealogy: member not found")
	// ErrDuplicateID is returned when an explicit ID is already in use.
	ErrDuplicateID = errors.New("genealogy: duplicate id")
	// ErrSelfRelationship rejects edges whose endpoints are the same member.
	ErrSelfRelationship = errors.New("genealogy: relationship endpoints must differ")
	// ErrUnknownType rejects relationship types or event kinds outside the catalog.
	ErrUnknownType = errors.New("genealogy: unknown type")
	// ErrEventNotFound is returned when updating an unknown event.
	ErrEventNotFound = errors.New("genealogy: event not found")
	// ErrLineageRequired rejects lineage-wide events without a usable lineage.
	ErrLineageRequired = errors.New("genealogy: lineage-wide events need a lineage")
	// ErrDuplicateEdge rejects a second edge of the same type between the
	// same members.
	ErrDuplicateEdge = errors.New("genealogy: relationship already exists")
)

// Graph is the in-memory family model. It is not safe for concurrent use;
// the owning service serializes access.
type Graph struct {
	members       map[MemberID]FamilyMember
	relationships map[RelationshipID]Relationship
	events        map[EventID]FamilyEvent
	newID         func() string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		members:       map[MemberID]FamilyMember{},
		relationships: map[RelationshipID]Relationship{},
		events:        map[EventID]FamilyEvent{},
		newID:         uuid.NewString,
	}
}

// FromSnapshot rebuilds a graph from a snapshot. Records that would break the
// graph invariants (self edges, dangling references, unknown tags) are dropped.
func FromSnapshot(s Snapshot) *Graph {
	g := NewGraph()
	for _, m := range s.Members {
		m = m.Clone()
		m.normalize()
		if m.ID == "" {
			continue
		}
		g.members[m.ID] = m
	}
	for _, r := range s.Relationships {
		if r.ID == "" || !r.Type.Valid() || r.From == r.To {
			continue
		}
		if !g.hasMember(r.From) || !g.hasMember(r.To) {
			continue
		}
		g.relationships[r.ID] = r.Clone()
	}
	for _, e := range s.Events {
		e = e.Clone()
		e.normalize()
		if e.ID == "" || !e.Kind.Valid() {
			continue
		}
		if e.MemberID != "" && !g.hasMember(e.MemberID) {
			continue
		}
		g.events[e.ID] = e
	}
	return g
}

// Snapshot copies the graph into an immutable value, sorted by ID.
func (g *Graph) Snapshot() Snapshot {
	return Snapshot{
		Members:       g.Members(),
		Relationships: g.Relationships(),
		Events:        g.Events(),
	}
}

// AddMember inserts a member, assigning an ID when none is given.
func (g *Graph) AddMember(m FamilyMember) (FamilyMember, error) {
	m = m.Clone()
	m.normalize()
	if m.ID == "" {
		m.ID = MemberID(g.newID())
	}
	if g.hasMember(m.ID) {
		return FamilyMember{}, fmt.Errorf("%w: member %s", ErrDuplicateID, m.ID)
	}
	g.members[m.ID] = m
	return m.Clone(), nil
}

// UpdateMember replaces an existing member in place.
func (g *Graph) UpdateMember(m FamilyMember) error {
	m = m.Clone()
	m.normalize()
	if !g.hasMember(m.ID) {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, m.ID)
	}
	g.members[m.ID] = m
	return nil
}

// RemovalReport lists everything a member removal took with it.
type RemovalReport struct {
	Member        MemberID         `json:"member,omitempty"`
	Relationships []RelationshipID `json:"relationships,omitempty"`
	Events        []EventID        `json:"events,omitempty"`
}

// Removed reports whether anything was deleted.
func (r RemovalReport) Removed() bool {
	return r.Member != ""
}

// RemoveMember deletes the member after cascading every relationship and
// event that references it. Unknown IDs yield an empty report.
func (g *Graph) RemoveMember(id MemberID) RemovalReport {
	if !g.hasMember(id) {
		return RemovalReport{}
	}
	report := RemovalReport{Member: id}
	for relID, rel := range g.relationships {
		if rel.Touches(id) {
			delete(g.relationships, relID)
			report.Relationships = append(report.Relationships, relID)
		}
	}
	for eventID, event := range g.events {
		if event.MemberID == id {
			delete(g.events, eventID)
			report.Events = append(report.Events, eventID)
		}
	}
	delete(g.members, id)
	sort.Slice(report.Relationships, func(i, j int) bool { return report.Relationships[i] < report.Relationships[j] })
	sort.Slice(report.Events, func(i, j int) bool { return report.Events[i] < report.Events[j] })
	return report
}

// Member looks up a member by ID.
func (g *Graph) Member(id MemberID) (FamilyMember, bool) {
	m, ok := g.members[id]
	if !ok {
		return FamilyMember{}, false
	}
	return m.Clone(), true
}

// Members returns every member sorted by ID.
func (g *Graph) Members() []FamilyMember {
	out := make([]FamilyMember, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddRelationship inserts a typed edge between two existing members.
func (g *Graph) AddRelationship(r Relationship) (Relationship, error) {
	r = r.Clone()
	if !r.Type.Valid() {
		return Relationship{}, fmt.Errorf("%w: relationship %q", ErrUnknownType, r.Type)
	}
	if r.From == r.To {
		return Relationship{}, ErrSelfRelationship
	}
	if !g.hasMember(r.From) {
		return Relationship{}, fmt.Errorf("%w: %s", ErrMemberNotFound, r.From)
	}
	if !g.hasMember(r.To) {
		return Relationship{}, fmt.Errorf("%w: %s", ErrMemberNotFound, r.To)
	}
	for _, existing := range g.relationships {
		if existing.SameEdge(r) {
			return Relationship{}, fmt.Errorf("%w: %s %s -> %s", ErrDuplicateEdge, r.Type, r.From, r.To)
		}
	}
	if r.ID == "" {
		r.ID = RelationshipID(g.newID())
	}
	if _, exists := g.relationships[r.ID]; exists {
		return Relationship{}, fmt.Errorf("%w: relationship %s", ErrDuplicateID, r.ID)
	}
	g.relationships[r.ID] = r
	return r.Clone(), nil
}

// RemoveRelationship deletes an edge and reports whether it existed.
func (g *Graph) RemoveRelationship(id RelationshipID) bool {
	if _, ok := g.relationships[id]; !ok {
		return false
	}
	delete(g.relationships, id)
	return true
}

// Relationship looks up an edge by ID.
func (g *Graph) Relationship(id RelationshipID) (Relationship, bool) {
	r, ok := g.relationships[id]
	if !ok {
		return Relationship{}, false
	}
	return r.Clone(), true
}

// Relationships returns every edge sorted by ID.
func (g *Graph) Relationships() []Relationship {
	out := make([]Relationship, 0, len(g.relationships))
	for _, r := range g.relationships {
		out = append(out, r.Clone())
	}
	sortRelationships(out)
	return out
}

// RelationshipsOf returns every edge touching the member, sorted by ID.
func (g *Graph) RelationshipsOf(id MemberID) []Relationship {
	var out []Relationship
	for _, r := range g.relationships {
		if r.Touches(id) {
			out = append(out, r.Clone())
		}
	}
	sortRelationships(out)
	return out
}

// AddEvent inserts an event. Severity is clamped into [1,5]; zero picks the
// kind's default weight class.
func (g *Graph) AddEvent(e FamilyEvent) (FamilyEvent, error) {
	e = e.Clone()
	if err := g.checkEvent(&e); err != nil {
		return FamilyEvent{}, err
	}
	if e.ID == "" {
		e.ID = EventID(g.newID())
	}
	if _, exists := g.events[e.ID]; exists {
		return FamilyEvent{}, fmt.Errorf("%w: event %s", ErrDuplicateID, e.ID)
	}
	g.events[e.ID] = e
	return e.Clone(), nil
}

// UpdateEvent replaces an existing event.
func (g *Graph) UpdateEvent(e FamilyEvent) error {
	e = e.Clone()
	if _, ok := g.events[e.ID]; !ok || e.ID == "" {
		return fmt.Errorf("%w: %s", ErrEventNotFound, e.ID)
	}
	if err := g.checkEvent(&e); err != nil {
		return err
	}
	g.events[e.ID] = e
	return nil
}

// RemoveEvent deletes an event and reports whether it existed.
func (g *Graph) RemoveEvent(id EventID) bool {
	if _, ok := g.events[id]; !ok {
		return false
	}
	delete(g.events, id)
	return true
}

// Event looks up an event by ID.
func (g *Graph) Event(id EventID) (FamilyEvent, bool) {
	e, ok := g.events[id]
	if !ok {
		return FamilyEvent{}, false
	}
	return e.Clone(), true
}

// Events returns every event sorted by ID.
func (g *Graph) Events() []FamilyEvent {
	out := make([]FamilyEvent, 0, len(g.events))
	for _, e := range g.events {
		out = append(out, e.Clone())
	}
	sortEvents(out)
	return out
}

// EventsOf returns the events attached to a member.
func (g *Graph) EventsOf(id MemberID) []FamilyEvent {
	var out []FamilyEvent
	for _, e := range g.events {
		if e.MemberID == id && id != "" {
			out = append(out, e.Clone())
		}
	}
	sortEvents(out)
	return out
}

// LineageEvents returns lineage-wide events that apply to the given side.
func (g *Graph) LineageEvents(side Lineage) []FamilyEvent {
	var out []FamilyEvent
	for _, e := range g.events {
		if e.IsLineageWide() && e.Lineage.Covers(side) {
			out = append(out, e.Clone())
		}
	}
	sortEvents(out)
	return out
}

func (g *Graph) checkEvent(e *FamilyEvent) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: event kind %q", ErrUnknownType, e.Kind)
	}
	e.normalize()
	if e.MemberID != "" {
		if !g.hasMember(e.MemberID) {
			return fmt.Errorf("%w: %s", ErrMemberNotFound, e.MemberID)
		}
		return nil
	}
	if !e.Lineage.Valid() || e.Lineage == LineageUnknown {
		return ErrLineageRequired
	}
	return nil
}

func (g *Graph) hasMember(id MemberID) bool {
	_, ok := g.members[id]
	return ok
}

func sortRelationships(values []Relationship) {
	sort.Slice(values, func(i, j int) bool { return values[i].ID < values[j].ID })
}

func sortEvents(values []FamilyEvent) {
	sort.Slice(values, func(i, j int) bool { return values[i].ID < values[j].ID })
}
