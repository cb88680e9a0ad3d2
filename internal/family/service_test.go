package family

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kingrea/linaje/internal/genealogy"
	"github.com/kingrea/linaje/internal/pattern"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const divorceCycle = "Ciclo de divorcios"

type memoryStore struct {
	mu        sync.Mutex
	graph     *genealogy.Snapshot
	patterns  []pattern.Pattern
	failGraph bool
	saves     int
}

func (m *memoryStore) LoadGraph() (*genealogy.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.graph == nil {
		return nil, nil
	}
	snap := m.graph.Clone()
	return &snap, nil
}

func (m *memoryStore) SaveGraph(s genealogy.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGraph {
		return errors.New("disk full")
	}
	snap := s.Clone()
	m.graph = &snap
	m.saves++
	return nil
}

func (m *memoryStore) LoadPatterns() ([]pattern.Pattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pattern.ClonePatterns(m.patterns), nil
}

func (m *memoryStore) SavePatterns(p []pattern.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = pattern.ClonePatterns(p)
	return nil
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	active   int
}

func (c *countingMetrics) ObserveDetection(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[outcome]++
}

func (c *countingMetrics) SetActivePatterns(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = n
}

func newService(t *testing.T, store *memoryStore, opts ...Option) *Service {
	t.Helper()
	engine := pattern.NewEngine(pattern.MustDefaultCatalog())
	opts = append([]Option{WithDebounce(time.Hour)}, opts...)
	svc, err := New(store, store, engine, opts...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func seedFamily(t *testing.T, svc *Service) {
	t.Helper()
	for _, m := range []genealogy.FamilyMember{
		{ID: "root", GivenName: "Ana", Sex: genealogy.SexFemale},
		{ID: "dad", GivenName: "Luis", Sex: genealogy.SexMale},
		{ID: "grandpa", GivenName: "Jose", Sex: genealogy.SexMale},
	} {
		_, err := svc.AddMember(m)
		require.NoError(t, err)
	}
	for _, r := range []genealogy.Relationship{
		{ID: "r1", Type: genealogy.RelationParent, From: "dad", To: "root"},
		{ID: "r2", Type: genealogy.RelationParent, From: "grandpa", To: "dad"},
	} {
		_, err := svc.AddRelationship(r)
		require.NoError(t, err)
	}
	_, err := svc.AddEvent(genealogy.FamilyEvent{ID: "e1", MemberID: "dad", Kind: genealogy.EventDivorce, Severity: 4})
	require.NoError(t, err)
	require.NoError(t, svc.SetRoot("root"))
}

func findPattern(patterns []pattern.Pattern, name string) (pattern.Pattern, bool) {
	for _, p := range patterns {
		if p.Name == name {
			return p, true
		}
	}
	return pattern.Pattern{}, false
}

func TestDetectNowRequiresRoot(t *testing.T) {
	svc := newService(t, &memoryStore{})
	_, err := svc.DetectNow(context.Background())
	if !errors.Is(err, ErrNoRoot) {
		t.Fatalf("expected ErrNoRoot, got %v", err)
	}
}

func TestSetRootRejectsUnknownMember(t *testing.T) {
	svc := newService(t, &memoryStore{})
	err := svc.SetRoot("ghost")
	if !errors.Is(err, genealogy.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestDetectNowPersistsPatterns(t *testing.T) {
	store := &memoryStore{}
	metrics := &countingMetrics{}
	svc := newService(t, store, WithMetrics(metrics))
	seedFamily(t, svc)

	patterns, err := svc.DetectNow(context.Background())
	require.NoError(t, err)
	divorce, ok := findPattern(patterns, divorceCycle)
	require.True(t, ok, "divorce cycle not detected: %+v", patterns)
	assert.InDelta(t, 18.67, divorce.Score, 0.001)

	stored, _ := store.LoadPatterns()
	assert.Len(t, stored, len(patterns))
	assert.Equal(t, 1, metrics.outcomes["ok"])
	assert.Equal(t, len(patterns), metrics.active)
}

func TestResolvedFlagSurvivesRedetection(t *testing.T) {
	store := &memoryStore{}
	metrics := &countingMetrics{}
	svc := newService(t, store, WithMetrics(metrics))
	seedFamily(t, svc)
	_, err := svc.DetectNow(context.Background())
	require.NoError(t, err)

	resolved, err := svc.ResolvePattern(divorceCycle, true)
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)

	_, err = svc.AddEvent(genealogy.FamilyEvent{ID: "e2", MemberID: "grandpa", Kind: genealogy.EventDivorce, Severity: 5})
	require.NoError(t, err)
	patterns, err := svc.DetectNow(context.Background())
	require.NoError(t, err)

	divorce, ok := findPattern(patterns, divorceCycle)
	require.True(t, ok)
	assert.True(t, divorce.IsResolved, "resolution lost on re-detection")
	assert.Len(t, divorce.Evidence, 2)
	assert.Equal(t, len(patterns)-1, metrics.active)
}

func TestResolveUnknownPattern(t *testing.T) {
	svc := newService(t, &memoryStore{})
	_, err := svc.ResolvePattern("nope", true)
	if !errors.Is(err, ErrPatternNotFound) {
		t.Fatalf("expected ErrPatternNotFound, got %v", err)
	}
}

func TestFailedSaveLeavesGraphUntouched(t *testing.T) {
	store := &memoryStore{}
	svc := newService(t, store)
	_, err := svc.AddMember(genealogy.FamilyMember{ID: "a", GivenName: "Ana"})
	require.NoError(t, err)

	store.failGraph = true
	_, err = svc.AddMember(genealogy.FamilyMember{ID: "b", GivenName: "Bea"})
	require.Error(t, err)

	_, ok := svc.Member("b")
	assert.False(t, ok, "member kept after failed save")
	assert.Len(t, svc.Members(), 1)
}

func TestRemoveRootClearsSelection(t *testing.T) {
	svc := newService(t, &memoryStore{})
	seedFamily(t, svc)

	report, err := svc.RemoveMember("root")
	require.NoError(t, err)
	assert.Equal(t, []genealogy.RelationshipID{"r1"}, report.Relationships)
	assert.Equal(t, genealogy.MemberID(""), svc.Root())

	_, err = svc.RemoveMember("root")
	if !errors.Is(err, genealogy.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound on second removal, got %v", err)
	}
}

func TestRemovingRootDropsPatterns(t *testing.T) {
	store := &memoryStore{}
	metrics := &countingMetrics{}
	svc := newService(t, store, WithMetrics(metrics))
	seedFamily(t, svc)
	patterns, err := svc.DetectNow(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, patterns)

	_, err = svc.RemoveMember("root")
	require.NoError(t, err)
	_, err = svc.RemoveMember("dad")
	require.NoError(t, err)

	assert.Empty(t, svc.Patterns())
	stored, _ := store.LoadPatterns()
	assert.Empty(t, stored)
	assert.Equal(t, 0, metrics.active)
	_, err = svc.DetectNow(context.Background())
	assert.ErrorIs(t, err, ErrNoRoot)
	assert.Empty(t, svc.Patterns())
}

func TestImportWithoutRootDropsPatterns(t *testing.T) {
	source := newService(t, &memoryStore{})
	seedFamily(t, source)
	_, err := source.DetectNow(context.Background())
	require.NoError(t, err)
	bundle := source.Export(nil)
	require.NotEmpty(t, bundle.Patterns)

	store := &memoryStore{}
	svc := newService(t, store)
	_, err = svc.AddMember(genealogy.FamilyMember{ID: "solo", GivenName: "Sol"})
	require.NoError(t, err)
	require.NoError(t, svc.SetRoot("solo"))

	require.NoError(t, svc.Import(bundle))
	assert.Equal(t, genealogy.MemberID(""), svc.Root())
	assert.Len(t, svc.Members(), 3)
	assert.Empty(t, svc.Patterns())
	stored, _ := store.LoadPatterns()
	assert.Empty(t, stored)
}

func TestUpdateEventChangesScore(t *testing.T) {
	svc := newService(t, &memoryStore{})
	seedFamily(t, svc)
	patterns, err := svc.DetectNow(context.Background())
	require.NoError(t, err)
	before, ok := findPattern(patterns, divorceCycle)
	require.True(t, ok)
	assert.InDelta(t, 18.67, before.Score, 0.001)

	ev := svc.EventsOf("dad")[0]
	ev.Severity = 1
	require.NoError(t, svc.UpdateEvent(ev))
	patterns, err = svc.DetectNow(context.Background())
	require.NoError(t, err)
	after, ok := findPattern(patterns, divorceCycle)
	require.True(t, ok)
	assert.InDelta(t, 4.67, after.Score, 0.001)

	ev.MemberID = "ghost"
	assert.ErrorIs(t, svc.UpdateEvent(ev), genealogy.ErrMemberNotFound)
	assert.Equal(t, genealogy.MemberID("dad"), svc.EventsOf("dad")[0].MemberID)
}

func TestUpdateMemberKeepsWorkingCopyOnFailure(t *testing.T) {
	store := &memoryStore{}
	svc := newService(t, store)
	seedFamily(t, svc)

	dad, _ := svc.Member("dad")
	dad.GivenName = "Lucas"
	require.NoError(t, svc.UpdateMember(dad))
	got, _ := svc.Member("dad")
	assert.Equal(t, "Lucas", got.GivenName)

	store.failGraph = true
	dad.GivenName = "Mario"
	require.Error(t, svc.UpdateMember(dad))
	got, _ = svc.Member("dad")
	assert.Equal(t, "Lucas", got.GivenName, "failed save must not change the graph")

	store.failGraph = false
	assert.ErrorIs(t, svc.UpdateMember(genealogy.FamilyMember{ID: "ghost"}), genealogy.ErrMemberNotFound)
}

func TestServiceReloadsStoredGraph(t *testing.T) {
	store := &memoryStore{}
	first := newService(t, store)
	seedFamily(t, first)

	second := newService(t, store, WithRoot("root"))
	assert.Len(t, second.Members(), 3)
	assert.Len(t, second.Ancestors("root", 4), 2)
}

func TestDebouncedDetectionRunsAfterEdits(t *testing.T) {
	store := &memoryStore{}
	engine := pattern.NewEngine(pattern.MustDefaultCatalog())
	svc, err := New(store, store, engine, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer svc.Close()
	seedFamily(t, svc)

	require.Eventually(t, func() bool {
		_, ok := findPattern(svc.Patterns(), divorceCycle)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestExportImportRoundTrip(t *testing.T) {
	svc := newService(t, &memoryStore{})
	seedFamily(t, svc)
	_, err := svc.DetectNow(context.Background())
	require.NoError(t, err)
	_, err = svc.ResolvePattern(divorceCycle, true)
	require.NoError(t, err)
	bundle := svc.Export(nil)

	other := newService(t, &memoryStore{})
	require.NoError(t, other.Import(bundle))
	assert.Len(t, other.Members(), 3)
	divorce, ok := findPattern(other.Patterns(), divorceCycle)
	require.True(t, ok)
	assert.True(t, divorce.IsResolved)
}

func TestAncestorPathFollowsParents(t *testing.T) {
	svc := newService(t, &memoryStore{})
	seedFamily(t, svc)
	assert.Equal(t, []genealogy.MemberID{"dad", "grandpa"}, svc.AncestorPath("root", 4))
	assert.Equal(t, []genealogy.MemberID{"dad"}, svc.AncestorPath("root", 1))
	assert.Nil(t, svc.AncestorPath("nobody", 4))
}
