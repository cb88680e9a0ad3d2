package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/linaje/internal/config"
	"github.com/kingrea/linaje/internal/genealogy"
	"github.com/kingrea/linaje/internal/pattern"
	"github.com/kingrea/linaje/internal/ritual"
)

var stamp = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	file, err := NewFileStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	out := map[string]Store{
		"file":   file,
		"sqlite": db,
		"memory": NewMemoryStore(),
	}
	t.Cleanup(func() {
		for _, s := range out {
			_ = s.Close()
		}
	})
	return out
}

func sampleSnapshot() genealogy.Snapshot {
	return genealogy.Snapshot{
		Members: []genealogy.FamilyMember{
			{ID: "dad", GivenName: "Luis", Sex: genealogy.SexMale, Tags: []string{"padre"}},
			{ID: "root", GivenName: "Ana", Sex: genealogy.SexFemale, IsAlive: true},
		},
		Relationships: []genealogy.Relationship{
			{ID: "r1", Type: genealogy.RelationParent, From: "dad", To: "root"},
		},
		Events: []genealogy.FamilyEvent{
			{ID: "e1", MemberID: "dad", Kind: genealogy.EventDivorce, Severity: 4},
			{ID: "e2", Lineage: genealogy.LineagePaternal, Kind: genealogy.EventMigration, Severity: 2},
		},
	}
}

func TestEmptyStoresLoadNothing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			snap, err := s.LoadGraph()
			require.NoError(t, err)
			assert.Nil(t, snap)

			patterns, err := s.LoadPatterns()
			require.NoError(t, err)
			assert.Empty(t, patterns)

			sessions, err := s.LoadSessions()
			require.NoError(t, err)
			assert.Empty(t, sessions)
		})
	}
}

func TestGraphRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleSnapshot()
			require.NoError(t, s.SaveGraph(want))
			got, err := s.LoadGraph()
			require.NoError(t, err)
			require.NotNil(t, got)
			if diff := cmp.Diff(want, *got); diff != "" {
				t.Fatalf("graph mismatch (-want +got):\n%s", diff)
			}

			// A second save replaces the first.
			smaller := want.Clone()
			smaller.Events = smaller.Events[:1]
			require.NoError(t, s.SaveGraph(smaller))
			got, err = s.LoadGraph()
			require.NoError(t, err)
			assert.Len(t, got.Events, 1)
		})
	}
}

func TestPatternsKeepOrderAndResolution(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := []pattern.Pattern{
				{Name: "Padres ausentes", Type: pattern.TypeAbsence, Score: 12.5, DetectedAt: stamp},
				{Name: "Ciclo de divorcios", Type: pattern.TypeDivorceCycle, Score: 40, DetectedAt: stamp, IsResolved: true},
			}
			require.NoError(t, s.SavePatterns(want))
			got, err := s.LoadPatterns()
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "Padres ausentes", got[0].Name)
			assert.True(t, got[1].IsResolved)
			assert.True(t, got[1].DetectedAt.Equal(stamp))
		})
	}
}

func TestSessionsRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			before := 7
			finished := stamp.Add(time.Hour)
			want := []ritual.Session{{
				ID:              "s1",
				RitualID:        "lazo-karmico",
				Kind:            ritual.KindKarmicBond,
				State:           ritual.StateCompleted,
				Vow:             &ritual.Vow{Description: "Llamar a mi madre", DurationDays: 30, Category: ritual.VowCommunication},
				IntensityBefore: &before,
				StartedAt:       stamp,
				UpdatedAt:       finished,
				FinishedAt:      &finished,
			}}
			require.NoError(t, s.SaveSessions(want))
			got, err := s.LoadSessions()
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, ritual.StateCompleted, got[0].State)
			require.NotNil(t, got[0].Vow)
			assert.Equal(t, 30, got[0].Vow.DurationDays)
			require.NotNil(t, got[0].IntensityBefore)
			assert.Equal(t, 7, *got[0].IntensityBefore)
		})
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.SaveGraph(sampleSnapshot()))
	require.NoError(t, s.SavePatterns(nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{graphFile, patternsFile, lockFile}, names)
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, graphFile), []byte("{not json"), 0o644))
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.LoadGraph()
	assert.Error(t, err)
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	first, err := OpenSQLite(dir)
	require.NoError(t, err)
	require.NoError(t, first.SaveGraph(sampleSnapshot()))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(dir)
	require.NoError(t, err)
	defer second.Close()
	snap, err := second.LoadGraph()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, snap.Members, 2)
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Project.Storage.Dir = dir

	cfg.Project.Storage.Backend = config.BackendSQLite
	s, err := Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())
	assert.FileExists(t, filepath.Join(dir, DatabaseFile))

	cfg.Project.Storage.Backend = config.BackendMemory
	s, err = Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	cfg.Project.Storage.Backend = "postgres"
	_, err = Open(cfg)
	assert.Error(t, err)
}
