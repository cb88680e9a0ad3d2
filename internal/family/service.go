// Package family owns the live family graph. It persists every edit,
// schedules debounced pattern detection and keeps the resolved flag of
// patterns across re-detections.
package family

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/linaje/internal/export"
	"github.com/kingrea/linaje/internal/genealogy"
	"github.com/kingrea/linaje/internal/metrics"
	"github.com/kingrea/linaje/internal/pattern"
	"github.com/kingrea/linaje/internal/ritual"
)

var (
	// ErrPatternNotFound is returned when resolving an unknown pattern name.
	ErrPatternNotFound = errors.New("family: pattern not found")
	// ErrNoRoot is returned by detection when no root member is set.
	ErrNoRoot = errors.New("family: no root member selected")
)

// staleRetries bounds how many times DetectNow retries a pass that was
// overtaken by edits.
const staleRetries = 3

// Journal receives human-readable progress lines.
type Journal interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// Metrics records detection activity.
type Metrics interface {
	ObserveDetection(outcome string)
	SetActivePatterns(n int)
}

// Service serializes access to the graph and the detected patterns.
type Service struct {
	graphs   GraphStore
	patterns PatternStore
	engine   *pattern.Engine
	sched    *pattern.Scheduler
	journal  Journal
	metrics  Metrics
	logger   *zap.Logger
	clock    func() time.Time
	debounce time.Duration
	maxDepth int

	mu       sync.Mutex
	graph    *genealogy.Graph
	root     genealogy.MemberID
	current  []pattern.Pattern
	applyErr error
}

// Option configures a Service.
type Option func(*Service)

// WithRoot selects the member detection walks from.
func WithRoot(id genealogy.MemberID) Option {
	return func(s *Service) { s.root = id }
}

// WithMaxDepth bounds the ancestor walk. Non-positive values keep the
// engine default.
func WithMaxDepth(depth int) Option {
	return func(s *Service) { s.maxDepth = depth }
}

// WithDebounce sets the quiet period before a scheduled detection.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) { s.debounce = d }
}

// WithJournal attaches the human-readable journal.
func WithJournal(j Journal) Option {
	return func(s *Service) { s.journal = j }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects the clock used for export timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New loads the stored graph and patterns and starts the detection
// scheduler. Close must be called to stop it.
func New(graphs GraphStore, patterns PatternStore, engine *pattern.Engine, opts ...Option) (*Service, error) {
	if graphs == nil || patterns == nil {
		return nil, fmt.Errorf("family: service requires graph and pattern stores")
	}
	if engine == nil {
		return nil, fmt.Errorf("family: service requires a detection engine")
	}
	s := &Service{
		graphs:   graphs,
		patterns: patterns,
		engine:   engine,
		logger:   zap.NewNop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	snap, err := graphs.LoadGraph()
	if err != nil {
		return nil, fmt.Errorf("family: load graph: %w", err)
	}
	if snap != nil {
		s.graph = genealogy.FromSnapshot(*snap)
	} else {
		s.graph = genealogy.NewGraph()
	}
	stored, err := patterns.LoadPatterns()
	if err != nil {
		return nil, fmt.Errorf("family: load patterns: %w", err)
	}
	s.current = pattern.ClonePatterns(stored)

	s.sched = pattern.NewScheduler(s.detect,
		pattern.WithDebounce(s.debounce),
		pattern.WithSchedulerLogger(s.logger),
		pattern.WithHooks(pattern.Hooks{OnResult: s.apply, OnError: s.failed}),
	)
	return s, nil
}

// Close stops scheduled detection and waits for a running pass.
func (s *Service) Close() {
	s.sched.Close()
}

// Root returns the selected root member.
func (s *Service) Root() genealogy.MemberID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// SetRoot selects the member detection walks from and schedules a pass.
func (s *Service) SetRoot(id genealogy.MemberID) error {
	s.mu.Lock()
	if _, ok := s.graph.Member(id); !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", genealogy.ErrMemberNotFound, id)
	}
	s.root = id
	s.mu.Unlock()
	s.sched.Trigger()
	return nil
}

// Snapshot returns a copy of the graph.
func (s *Service) Snapshot() genealogy.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Snapshot()
}

// AddMember inserts a member and persists the graph.
func (s *Service) AddMember(m genealogy.FamilyMember) (genealogy.FamilyMember, error) {
	var added genealogy.FamilyMember
	err := s.mutate(func(g *genealogy.Graph) error {
		var err error
		added, err = g.AddMember(m)
		return err
	})
	return added, err
}

// UpdateMember replaces a member and persists the graph.
func (s *Service) UpdateMember(m genealogy.FamilyMember) error {
	return s.mutate(func(g *genealogy.Graph) error { return g.UpdateMember(m) })
}

// RemoveMember deletes a member with everything that references it. When
// the root is removed the selection and the detected patterns are cleared.
func (s *Service) RemoveMember(id genealogy.MemberID) (genealogy.RemovalReport, error) {
	var report genealogy.RemovalReport
	err := s.mutate(func(g *genealogy.Graph) error {
		report = g.RemoveMember(id)
		if !report.Removed() {
			return fmt.Errorf("%w: %s", genealogy.ErrMemberNotFound, id)
		}
		return nil
	})
	if err != nil {
		return genealogy.RemovalReport{}, err
	}
	s.mu.Lock()
	if s.root == id {
		s.root = ""
		if err := s.dropPatterns(); err != nil {
			s.mu.Unlock()
			return report, err
		}
	}
	s.mu.Unlock()
	if s.journal != nil {
		s.journal.Info("Miembro %s eliminado con %d relaciones y %d eventos", id, len(report.Relationships), len(report.Events))
	}
	return report, nil
}

// AddRelationship inserts an edge and persists the graph.
func (s *Service) AddRelationship(r genealogy.Relationship) (genealogy.Relationship, error) {
	var added genealogy.Relationship
	err := s.mutate(func(g *genealogy.Graph) error {
		var err error
		added, err = g.AddRelationship(r)
		return err
	})
	return added, err
}

// RemoveRelationship deletes an edge and persists the graph.
func (s *Service) RemoveRelationship(id genealogy.RelationshipID) error {
	return s.mutate(func(g *genealogy.Graph) error {
		if !g.RemoveRelationship(id) {
			return fmt.Errorf("family: relationship %s not found", id)
		}
		return nil
	})
}

// AddEvent inserts an event and persists the graph.
func (s *Service) AddEvent(e genealogy.FamilyEvent) (genealogy.FamilyEvent, error) {
	var added genealogy.FamilyEvent
	err := s.mutate(func(g *genealogy.Graph) error {
		var err error
		added, err = g.AddEvent(e)
		return err
	})
	return added, err
}

// UpdateEvent replaces an event and persists the graph.
func (s *Service) UpdateEvent(e genealogy.FamilyEvent) error {
	return s.mutate(func(g *genealogy.Graph) error { return g.UpdateEvent(e) })
}

// RemoveEvent deletes an event and persists the graph.
func (s *Service) RemoveEvent(id genealogy.EventID) error {
	return s.mutate(func(g *genealogy.Graph) error {
		if !g.RemoveEvent(id) {
			return fmt.Errorf("%w: %s", genealogy.ErrEventNotFound, id)
		}
		return nil
	})
}

// Member looks up a single member.
func (s *Service) Member(id genealogy.MemberID) (genealogy.FamilyMember, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Member(id)
}

// Members lists every member sorted by ID.
func (s *Service) Members() []genealogy.FamilyMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Members()
}

// FindMembers fuzzy-matches members by name.
func (s *Service) FindMembers(query string, limit int) []genealogy.FamilyMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.FindMembers(query, limit)
}

// AncestorPath lists the ancestors of id, closest generation first.
func (s *Service) AncestorPath(id genealogy.MemberID, maxDepth int) []genealogy.MemberID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.AncestorPath(id, maxDepth)
}

// Ancestors walks up from id.
func (s *Service) Ancestors(id genealogy.MemberID, maxDepth int) []genealogy.AncestorRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Ancestors(id, maxDepth)
}

// EventsOf lists the events attached to a member.
func (s *Service) EventsOf(id genealogy.MemberID) []genealogy.FamilyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.EventsOf(id)
}

// RelationshipsOf lists the edges touching a member.
func (s *Service) RelationshipsOf(id genealogy.MemberID) []genealogy.Relationship {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.RelationshipsOf(id)
}

// Patterns returns the patterns of the latest accepted detection.
func (s *Service) Patterns() []pattern.Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pattern.ClonePatterns(s.current)
}

// ResolvePattern marks a pattern as worked through. The flag survives later
// detections for as long as the pattern keeps being detected.
func (s *Service) ResolvePattern(name string, resolved bool) (pattern.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := pattern.ClonePatterns(s.current)
	idx := -1
	for i := range next {
		if next[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return pattern.Pattern{}, fmt.Errorf("%w: %q", ErrPatternNotFound, name)
	}
	next[idx].IsResolved = resolved
	if err := s.patterns.SavePatterns(next); err != nil {
		return pattern.Pattern{}, fmt.Errorf("family: save patterns: %w", err)
	}
	s.current = next
	s.reportActive(next)
	return next[idx].Clone(), nil
}

// Trigger schedules a debounced detection pass.
func (s *Service) Trigger() {
	s.sched.Trigger()
}

// DetectNow runs detection immediately and returns the accepted patterns.
// A pass overtaken by an edit is retried.
func (s *Service) DetectNow(ctx context.Context) ([]pattern.Pattern, error) {
	if s.Root() == "" {
		return nil, ErrNoRoot
	}
	for attempt := 0; attempt < staleRetries; attempt++ {
		run, err := s.sched.RunNow(ctx)
		if err != nil {
			return nil, err
		}
		if !run.Stale {
			s.mu.Lock()
			err, s.applyErr = s.applyErr, nil
			s.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return s.Patterns(), nil
		}
		s.observe(metrics.OutcomeStale)
	}
	return s.Patterns(), nil
}

// Export assembles a backup bundle from the graph, patterns and sessions.
func (s *Service) Export(sessions []ritual.Session) export.Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return export.New(s.graph.Snapshot(), s.current, sessions, s.clock())
}

// Import replaces the graph and patterns with the bundle contents. Sessions
// are left to the caller.
func (s *Service) Import(b export.Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	g := genealogy.FromSnapshot(b.Snapshot())
	s.mu.Lock()
	root := s.root
	if _, ok := g.Member(root); !ok {
		root = ""
	}
	// A bundle that drops the selected root leaves nothing to walk from.
	incoming := pattern.ClonePatterns(b.Patterns)
	if s.root != "" && root == "" {
		incoming = []pattern.Pattern{}
	}
	if err := s.graphs.SaveGraph(g.Snapshot()); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("family: save graph: %w", err)
	}
	if err := s.patterns.SavePatterns(incoming); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("family: save patterns: %w", err)
	}
	s.graph = g
	s.current = incoming
	s.root = root
	s.reportActive(s.current)
	s.mu.Unlock()
	s.logger.Info("bundle imported",
		zap.Int("members", len(b.Members)),
		zap.Int("patterns", len(incoming)))
	s.sched.Trigger()
	return nil
}

// mutate applies fn to a working copy, persists it and swaps it in only
// when the save succeeded.
func (s *Service) mutate(fn func(*genealogy.Graph) error) error {
	s.mu.Lock()
	working := genealogy.FromSnapshot(s.graph.Snapshot())
	if err := fn(working); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.graphs.SaveGraph(working.Snapshot()); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("family: save graph: %w", err)
	}
	s.graph = working
	s.mu.Unlock()
	s.sched.Trigger()
	return nil
}

// dropPatterns replaces the current patterns with an empty list once no
// root is selected. Callers hold s.mu.
func (s *Service) dropPatterns() error {
	empty := []pattern.Pattern{}
	if err := s.patterns.SavePatterns(empty); err != nil {
		return fmt.Errorf("family: save patterns: %w", err)
	}
	s.current = empty
	s.reportActive(empty)
	return nil
}

func (s *Service) detect(ctx context.Context) (pattern.Result, error) {
	s.mu.Lock()
	req := pattern.DetectRequest{Snapshot: s.graph.Snapshot(), RootID: s.root, MaxDepth: s.maxDepth}
	s.mu.Unlock()
	if req.RootID == "" {
		return pattern.Result{}, ErrNoRoot
	}
	if err := ctx.Err(); err != nil {
		return pattern.Result{}, err
	}
	return s.engine.Detect(req), nil
}

func (s *Service) apply(run pattern.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := pattern.CarryResolved(s.current, run.Result.Patterns)
	if err := s.patterns.SavePatterns(next); err != nil {
		s.applyErr = fmt.Errorf("family: save patterns: %w", err)
		s.observe(metrics.OutcomeError)
		s.logger.Error("persisting detected patterns failed", zap.Error(err))
		return
	}
	s.current = next
	s.applyErr = nil
	s.observe(metrics.OutcomeOK)
	s.reportActive(next)
	s.logger.Info("patterns detected",
		zap.Int("patterns", len(next)),
		zap.Int("visited", run.Result.Visited),
		zap.Int("skipped", run.Result.Skipped),
		zap.Duration("took", run.Duration))
	if s.journal != nil {
		s.journal.Info("Detección completada: %d patrones sobre %d miembros", len(next), run.Result.Visited)
		if run.Result.Skipped > 0 {
			s.journal.Warn("Se omitieron %d eventos mal formados", run.Result.Skipped)
		}
	}
}

func (s *Service) failed(err error) {
	if errors.Is(err, ErrNoRoot) || errors.Is(err, context.Canceled) {
		s.logger.Debug("detection skipped", zap.Error(err))
		return
	}
	s.observe(metrics.OutcomeError)
	s.logger.Warn("detection failed", zap.Error(err))
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveDetection(outcome)
	}
}

func (s *Service) reportActive(patterns []pattern.Pattern) {
	if s.metrics == nil {
		return
	}
	active := 0
	for _, p := range patterns {
		if !p.IsResolved {
			active++
		}
	}
	s.metrics.SetActivePatterns(active)
}
