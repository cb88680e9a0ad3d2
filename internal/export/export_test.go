package export

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/linaje/internal/genealogy"
	"github.com/kingrea/linaje/internal/pattern"
	"github.com/kingrea/linaje/internal/ritual"
	"github.com/kingrea/linaje/internal/voice"
)

var exportedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func sampleBundle() Bundle {
	born := time.Date(1950, 5, 2, 0, 0, 0, 0, time.UTC)
	snap := genealogy.Snapshot{
		Members: []genealogy.FamilyMember{
			{ID: "root", GivenName: "Ana", Sex: genealogy.SexFemale, IsAlive: true},
			{ID: "dad", GivenName: "Luis", Sex: genealogy.SexMale, BirthDate: &born},
		},
		Relationships: []genealogy.Relationship{
			{ID: "r1", Type: genealogy.RelationParent, From: "dad", To: "root"},
		},
		Events: []genealogy.FamilyEvent{
			{ID: "e1", MemberID: "dad", Kind: genealogy.EventDivorce, Severity: 4},
			{ID: "e2", Lineage: genealogy.LineagePaternal, Kind: genealogy.EventMigration, Severity: 2},
		},
	}
	patterns := []pattern.Pattern{{
		Name:       "Ciclo de divorcios",
		Type:       pattern.TypeDivorceCycle,
		Score:      18.67,
		Lineage:    genealogy.LineagePaternal,
		Evidence:   []pattern.Evidence{{Type: pattern.EvidenceEvent, MemberID: "dad", EventID: "e1", Generation: 1, Weight: 0.56}},
		DetectedAt: exportedAt,
		IsResolved: true,
	}}
	sessions := []ritual.Session{{
		ID:       "s1",
		RitualID: "carta-liberacion-padre",
		Kind:     ritual.KindLiberationLetter,
		State:    ritual.StateVerbalization,
		Records: []ritual.BlockRecord{{
			Phase:      ritual.StatePreparation,
			BlockID:    "intencion",
			Validation: voice.Validate([]string{"te libero"}, "te libero", voice.DefaultRequirement()),
			Attempts:   1,
			RecordedAt: exportedAt,
		}},
		StartedAt: exportedAt,
		UpdatedAt: exportedAt,
	}}
	return New(snap, patterns, sessions, exportedAt)
}

func TestWriteReadRoundTrip(t *testing.T) {
	original := sampleBundle()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, original))
	assert.Contains(t, buf.String(), `"version": "1.0"`)

	decoded, err := Read(&buf)
	require.NoError(t, err)
	assert.True(t, Equivalent(original, decoded), "round trip changed the bundle")
	assert.True(t, decoded.Patterns[0].IsResolved)
	assert.Equal(t, genealogy.LineagePaternal, decoded.Events[1].Lineage)
}

func TestNewUsesEmptyLists(t *testing.T) {
	b := New(genealogy.Snapshot{}, nil, nil, exportedAt)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, b))
	assert.Contains(t, buf.String(), `"patterns": []`)
	assert.Contains(t, buf.String(), `"sessions": []`)
}

func TestEquivalentIgnoresOrderAndTimestamps(t *testing.T) {
	a := sampleBundle()
	b := sampleBundle()
	b.ExportedAt = exportedAt.Add(time.Hour)
	b.Patterns[0].DetectedAt = exportedAt.Add(time.Minute)
	b.Members[0], b.Members[1] = b.Members[1], b.Members[0]
	assert.True(t, Equivalent(a, b))

	b.Patterns[0].IsResolved = false
	assert.False(t, Equivalent(a, b))
}

func TestReadRejectsUnsupportedVersion(t *testing.T) {
	_, err := Read(strings.NewReader(`{"version":"2.0","members":[]}`))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
	_, err = Read(strings.NewReader(`{"members":[]}`))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected missing version to be rejected, got %v", err)
	}
}

func TestReadAcceptsMinorVersions(t *testing.T) {
	b, err := Read(strings.NewReader(`{"version":"1.3","members":[{"id":"a","given_name":"Ana"}]}`))
	require.NoError(t, err)
	assert.Len(t, b.Members, 1)
}

func TestValidateRejectsBrokenGraphs(t *testing.T) {
	cases := map[string]func(*Bundle){
		"dangling relationship": func(b *Bundle) {
			b.Relationships = append(b.Relationships, genealogy.Relationship{ID: "r9", Type: genealogy.RelationParent, From: "ghost", To: "root"})
		},
		"self relationship": func(b *Bundle) {
			b.Relationships[0].From = "root"
		},
		"duplicate member": func(b *Bundle) {
			b.Members = append(b.Members, genealogy.FamilyMember{ID: "dad"})
		},
		"unknown event kind": func(b *Bundle) {
			b.Events[0].Kind = "weather"
		},
		"severity out of range": func(b *Bundle) {
			b.Events[0].Severity = 9
		},
		"lineage event without lineage": func(b *Bundle) {
			b.Events[1].Lineage = genealogy.LineageUnknown
		},
		"score out of range": func(b *Bundle) {
			b.Patterns[0].Score = 140
		},
		"unknown session state": func(b *Bundle) {
			b.Sessions[0].State = "dancing"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := sampleBundle()
			mutate(&b)
			if err := b.Validate(); !errors.Is(err, ErrInvalidBundle) {
				t.Fatalf("expected ErrInvalidBundle, got %v", err)
			}
		})
	}
}

func TestSnapshotRebuildsGraph(t *testing.T) {
	g := genealogy.FromSnapshot(sampleBundle().Snapshot())
	ancestors := g.Ancestors("root", 4)
	require.Len(t, ancestors, 1)
	assert.Equal(t, genealogy.MemberID("dad"), ancestors[0].ID)
}
