package pattern

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/linaje/internal/genealogy"
)

const (
	// DefaultMaxDepth is how many generations above the root are inspected.
	DefaultMaxDepth = 4
	// GenerationDecay multiplies the weight once per generation of distance.
	GenerationDecay = 0.7
	// LateralFactor discounts evidence found on siblings.
	LateralFactor = 0.8
	// RelationshipSeverity is the weight class of relationship evidence.
	RelationshipSeverity = 3
	// LineageEventGeneration is the distance assigned to lineage-wide events.
	LineageEventGeneration = 1
)

// Weight is the contribution of one evidence item:
// (severity/5) * 0.7^generation, times 0.8 when lateral, rounded to four
// decimals. It decreases with distance and increases with severity.
func Weight(severity, generation int, lateral bool) float64 {
	severity = genealogy.ClampSeverity(severity)
	if generation < 0 {
		generation = 0
	}
	w := float64(severity) / float64(genealogy.MaxSeverity) * math.Pow(GenerationDecay, float64(generation))
	if lateral {
		w *= LateralFactor
	}
	return round(w, 4)
}

// Score maps summed weights onto [0,100] against the rule's saturation.
func Score(weights []float64, saturation float64) float64 {
	if saturation <= 0 {
		saturation = DefaultSaturation
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	return round(math.Min(100, 100*sum/saturation), 2)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Engine runs the catalog against genealogy snapshots. It keeps no state
// between calls.
type Engine struct {
	catalog  Catalog
	maxDepth int
	clock    func() time.Time
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the detection timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithMaxDepth sets the default walk depth used when a request has none.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithLogger attaches a logger for skipped records.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine builds an engine over the catalog.
func NewEngine(catalog Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog:  catalog,
		maxDepth: DefaultMaxDepth,
		clock:    time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the rules the engine evaluates.
func (e *Engine) Catalog() Catalog {
	return e.catalog
}

// DetectRequest is one detection pass.
type DetectRequest struct {
	Snapshot genealogy.Snapshot
	RootID   genealogy.MemberID
	// MaxDepth <= 0 uses the engine default.
	MaxDepth int
}

// Result is the output of a detection pass.
type Result struct {
	Patterns []Pattern
	// Visited counts the members the walk inspected, root included.
	Visited int
	// Skipped counts malformed events left out of evidence collection.
	Skipped int
}

type visit struct {
	member     genealogy.FamilyMember
	generation int
	lineage    genealogy.Lineage
	lateral    bool
}

// Detect evaluates every rule against the snapshot. A root that is not in
// the snapshot yields an empty result. Malformed events are skipped and
// counted; they never fail the pass.
func (e *Engine) Detect(req DetectRequest) Result {
	depth := req.MaxDepth
	if depth <= 0 {
		depth = e.maxDepth
	}
	graph := genealogy.FromSnapshot(req.Snapshot)
	if _, ok := graph.Member(req.RootID); !ok {
		return Result{}
	}
	visits := e.visits(graph, req.RootID, depth)
	events, lineageEvents, skipped := e.indexEvents(graph, req.Snapshot.Events)
	relationships := graph.Relationships()

	sides := map[genealogy.Lineage]bool{}
	for _, v := range visits {
		if v.lineage == genealogy.LineagePaternal || v.lineage == genealogy.LineageMaternal {
			sides[v.lineage] = true
		} else if v.lineage == genealogy.LineageBoth {
			sides[genealogy.LineagePaternal] = true
			sides[genealogy.LineageMaternal] = true
		}
	}

	now := e.clock().UTC()
	var patterns []Pattern
	for _, rule := range e.catalog.Rules {
		evidence := collect(rule, visits, events, lineageEvents, relationships, sides)
		if len(evidence) == 0 || len(evidence) < rule.MinEvidence {
			continue
		}
		sortEvidence(evidence)
		weights := make([]float64, len(evidence))
		for i, ev := range evidence {
			weights[i] = ev.Weight
		}
		patterns = append(patterns, Pattern{
			Name:            rule.Name,
			Type:            rule.Type,
			Description:     rule.Description,
			Evidence:        evidence,
			Score:           Score(weights, rule.Saturation),
			Lineage:         dominantLineage(evidence),
			Recommendations: append([]string(nil), rule.Recommendations...),
			DetectedAt:      now,
		})
	}
	if skipped > 0 {
		e.logger.Warn("pattern: skipped malformed events", zap.Int("count", skipped))
	}
	return Result{Patterns: patterns, Visited: len(visits), Skipped: skipped}
}

// visits lists the root, its ancestors and the siblings of each, in a fixed
// order. A member keeps its first placement.
func (e *Engine) visits(g *genealogy.Graph, root genealogy.MemberID, depth int) []visit {
	seen := map[genealogy.MemberID]struct{}{}
	var out []visit
	add := func(id genealogy.MemberID, generation int, lineage genealogy.Lineage, lateral bool) {
		if _, dup := seen[id]; dup {
			return
		}
		member, ok := g.Member(id)
		if !ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, visit{member: member, generation: generation, lineage: lineage, lateral: lateral})
	}
	add(root, 0, genealogy.LineageUnknown, false)
	ancestors := g.Ancestors(root, depth)
	for _, ref := range ancestors {
		add(ref.ID, ref.Generation, ref.Lineage, false)
	}
	for _, sib := range g.Siblings(root) {
		add(sib, 0, genealogy.LineageUnknown, true)
	}
	for _, ref := range ancestors {
		for _, sib := range g.Siblings(ref.ID) {
			add(sib, ref.Generation, ref.Lineage, true)
		}
	}
	return out
}

// indexEvents groups well-formed events by member and counts the rest.
func (e *Engine) indexEvents(g *genealogy.Graph, raw []genealogy.FamilyEvent) (map[genealogy.MemberID][]genealogy.FamilyEvent, []genealogy.FamilyEvent, int) {
	byMember := map[genealogy.MemberID][]genealogy.FamilyEvent{}
	var lineage []genealogy.FamilyEvent
	skipped := 0
	for _, ev := range raw {
		switch {
		case ev.ID == "" || !ev.Kind.Valid():
			skipped++
		case ev.Severity < genealogy.MinSeverity || ev.Severity > genealogy.MaxSeverity:
			skipped++
		case ev.IsLineageWide():
			if ev.Lineage != genealogy.LineagePaternal && ev.Lineage != genealogy.LineageMaternal && ev.Lineage != genealogy.LineageBoth {
				skipped++
				continue
			}
			lineage = append(lineage, ev)
		default:
			if _, ok := g.Member(ev.MemberID); !ok {
				skipped++
				continue
			}
			byMember[ev.MemberID] = append(byMember[ev.MemberID], ev)
		}
	}
	return byMember, lineage, skipped
}

func collect(
	rule Rule,
	visits []visit,
	events map[genealogy.MemberID][]genealogy.FamilyEvent,
	lineageEvents []genealogy.FamilyEvent,
	relationships []genealogy.Relationship,
	sides map[genealogy.Lineage]bool,
) []Evidence {
	var out []Evidence
	for _, v := range visits {
		for _, ev := range events[v.member.ID] {
			if !rule.matchesEvent(ev) {
				continue
			}
			out = append(out, Evidence{
				Type:       EvidenceEvent,
				MemberID:   v.member.ID,
				EventID:    ev.ID,
				Generation: v.generation,
				Lateral:    v.lateral,
				Lineage:    v.lineage,
				Severity:   ev.Severity,
				Weight:     Weight(ev.Severity, v.generation, v.lateral),
				Note:       fmt.Sprintf("%s: %s", v.member.DisplayName(), ev.Kind),
			})
		}
	}
	for _, ev := range lineageEvents {
		if !rule.matchesEvent(ev) || !coversVisited(ev.Lineage, sides) {
			continue
		}
		out = append(out, Evidence{
			Type:       EvidenceLineageEvent,
			EventID:    ev.ID,
			Generation: LineageEventGeneration,
			Lineage:    ev.Lineage,
			Severity:   ev.Severity,
			Weight:     Weight(ev.Severity, LineageEventGeneration, false),
			Note:       fmt.Sprintf("linaje %s: %s", ev.Lineage, ev.Kind),
		})
	}
	if len(rule.RelationshipTypes) > 0 {
		at := make(map[genealogy.MemberID]int, len(visits))
		for i, v := range visits {
			at[v.member.ID] = i
		}
		for _, rel := range relationships {
			if !rule.matchesRelationship(rel.Type) {
				continue
			}
			// Attribute the edge once, to whichever endpoint was visited first.
			fromIdx, fromOK := at[rel.From]
			toIdx, toOK := at[rel.To]
			if !fromOK && !toOK {
				continue
			}
			idx := fromIdx
			if !fromOK || (toOK && toIdx < fromIdx) {
				idx = toIdx
			}
			v := visits[idx]
			out = append(out, Evidence{
				Type:           EvidenceRelationship,
				MemberID:       v.member.ID,
				RelationshipID: rel.ID,
				Generation:     v.generation,
				Lateral:        v.lateral,
				Lineage:        v.lineage,
				Severity:       RelationshipSeverity,
				Weight:         Weight(RelationshipSeverity, v.generation, v.lateral),
				Note:           fmt.Sprintf("%s: %s", v.member.DisplayName(), rel.Type),
			})
		}
	}
	return out
}

func coversVisited(l genealogy.Lineage, sides map[genealogy.Lineage]bool) bool {
	for side := range sides {
		if l.Covers(side) {
			return true
		}
	}
	return false
}

// dominantLineage picks the side carrying the larger share of weight.
func dominantLineage(evidence []Evidence) genealogy.Lineage {
	var paternal, maternal float64
	for _, ev := range evidence {
		switch ev.Lineage {
		case genealogy.LineagePaternal:
			paternal += ev.Weight
		case genealogy.LineageMaternal:
			maternal += ev.Weight
		case genealogy.LineageBoth:
			paternal += ev.Weight / 2
			maternal += ev.Weight / 2
		}
	}
	switch {
	case paternal == 0 && maternal == 0:
		return genealogy.LineageUnknown
	case math.Abs(paternal-maternal) < 1e-9:
		return genealogy.LineageBoth
	case paternal > maternal:
		return genealogy.LineagePaternal
	default:
		return genealogy.LineageMaternal
	}
}

func sortEvidence(evidence []Evidence) {
	sort.SliceStable(evidence, func(i, j int) bool {
		a, b := evidence[i], evidence[j]
		if a.Generation != b.Generation {
			return a.Generation < b.Generation
		}
		if a.MemberID != b.MemberID {
			return a.MemberID < b.MemberID
		}
		if a.EventID != b.EventID {
			return a.EventID < b.EventID
		}
		return a.RelationshipID < b.RelationshipID
	})
}
