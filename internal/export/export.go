// Package export reads and writes the versioned backup bundle holding the
// whole family graph, detected patterns and ritual sessions.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/kingrea/linaje/internal/genealogy"
	"github.com/kingrea/linaje/internal/pattern"
	"github.com/kingrea/linaje/internal/ritual"
)

// CurrentVersion is written into every new bundle.
const CurrentVersion = "1.0"

var (
	// ErrUnsupportedVersion rejects bundles from an incompatible major version.
	ErrUnsupportedVersion = errors.New("export: unsupported bundle version")
	// ErrInvalidBundle wraps structural problems found by Validate.
	ErrInvalidBundle = errors.New("export: invalid bundle")
)

// Bundle is the on-disk backup format.
type Bundle struct {
	Version       string                   `json:"version"`
	ExportedAt    time.Time                `json:"exported_at"`
	Members       []genealogy.FamilyMember `json:"members"`
	Relationships []genealogy.Relationship `json:"relationships"`
	Events        []genealogy.FamilyEvent  `json:"events"`
	Patterns      []pattern.Pattern        `json:"patterns"`
	Sessions      []ritual.Session         `json:"sessions"`
}

// New assembles a bundle from the current state.
func New(snapshot genealogy.Snapshot, patterns []pattern.Pattern, sessions []ritual.Session, now time.Time) Bundle {
	snap := snapshot.Clone()
	return Bundle{
		Version:       CurrentVersion,
		ExportedAt:    now.UTC(),
		Members:       nonNil(snap.Members),
		Relationships: nonNil(snap.Relationships),
		Events:        nonNil(snap.Events),
		Patterns:      nonNil(pattern.ClonePatterns(patterns)),
		Sessions:      nonNil(ritual.CloneSessions(sessions)),
	}
}

// Snapshot returns the graph part of the bundle.
func (b Bundle) Snapshot() genealogy.Snapshot {
	return genealogy.Snapshot{
		Members:       b.Members,
		Relationships: b.Relationships,
		Events:        b.Events,
	}.Clone()
}

// Write encodes the bundle as indented JSON.
func Write(w io.Writer, b Bundle) error {
	if b.Version == "" {
		b.Version = CurrentVersion
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("export: encode bundle: %w", err)
	}
	return nil
}

// Read decodes and validates a bundle.
func Read(r io.Reader) (Bundle, error) {
	var b Bundle
	dec := json.NewDecoder(r)
	if err := dec.Decode(&b); err != nil {
		return Bundle{}, fmt.Errorf("export: decode bundle: %w", err)
	}
	if err := checkVersion(b.Version); err != nil {
		return Bundle{}, err
	}
	if err := b.Validate(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

func checkVersion(version string) error {
	major, _, _ := strings.Cut(strings.TrimSpace(version), ".")
	want, _, _ := strings.Cut(CurrentVersion, ".")
	if _, err := strconv.Atoi(major); err != nil || major != want {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
	return nil
}

// Validate checks the graph invariants: unique IDs, no self edges, no
// dangling references and severities within range.
func (b Bundle) Validate() error {
	members := map[genealogy.MemberID]struct{}{}
	for _, m := range b.Members {
		if m.ID == "" {
			return fmt.Errorf("%w: member without id", ErrInvalidBundle)
		}
		if _, dup := members[m.ID]; dup {
			return fmt.Errorf("%w: duplicate member %s", ErrInvalidBundle, m.ID)
		}
		members[m.ID] = struct{}{}
	}
	rels := map[genealogy.RelationshipID]struct{}{}
	for _, r := range b.Relationships {
		if _, dup := rels[r.ID]; dup || r.ID == "" {
			return fmt.Errorf("%w: missing or duplicate relationship id %q", ErrInvalidBundle, r.ID)
		}
		rels[r.ID] = struct{}{}
		if !r.Type.Valid() {
			return fmt.Errorf("%w: relationship %s has unknown type %q", ErrInvalidBundle, r.ID, r.Type)
		}
		if r.From == r.To {
			return fmt.Errorf("%w: relationship %s links %s to itself", ErrInvalidBundle, r.ID, r.From)
		}
		for _, end := range []genealogy.MemberID{r.From, r.To} {
			if _, ok := members[end]; !ok {
				return fmt.Errorf("%w: relationship %s references unknown member %s", ErrInvalidBundle, r.ID, end)
			}
		}
	}
	events := map[genealogy.EventID]struct{}{}
	for _, e := range b.Events {
		if _, dup := events[e.ID]; dup || e.ID == "" {
			return fmt.Errorf("%w: missing or duplicate event id %q", ErrInvalidBundle, e.ID)
		}
		events[e.ID] = struct{}{}
		if !e.Kind.Valid() {
			return fmt.Errorf("%w: event %s has unknown kind %q", ErrInvalidBundle, e.ID, e.Kind)
		}
		if e.Severity != 0 && (e.Severity < genealogy.MinSeverity || e.Severity > genealogy.MaxSeverity) {
			return fmt.Errorf("%w: event %s severity %d outside [%d,%d]", ErrInvalidBundle, e.ID, e.Severity, genealogy.MinSeverity, genealogy.MaxSeverity)
		}
		if e.MemberID != "" {
			if _, ok := members[e.MemberID]; !ok {
				return fmt.Errorf("%w: event %s references unknown member %s", ErrInvalidBundle, e.ID, e.MemberID)
			}
		} else if !e.Lineage.Valid() || e.Lineage == genealogy.LineageUnknown {
			return fmt.Errorf("%w: lineage event %s has no lineage", ErrInvalidBundle, e.ID)
		}
	}
	names := map[string]struct{}{}
	for _, p := range b.Patterns {
		if _, dup := names[p.Name]; dup {
			return fmt.Errorf("%w: duplicate pattern %q", ErrInvalidBundle, p.Name)
		}
		names[p.Name] = struct{}{}
		if p.Score < 0 || p.Score > 100 {
			return fmt.Errorf("%w: pattern %q score %.2f outside [0,100]", ErrInvalidBundle, p.Name, p.Score)
		}
	}
	sessions := map[string]struct{}{}
	for _, s := range b.Sessions {
		if _, dup := sessions[s.ID]; dup || s.ID == "" {
			return fmt.Errorf("%w: missing or duplicate session id %q", ErrInvalidBundle, s.ID)
		}
		sessions[s.ID] = struct{}{}
		if !s.State.Valid() {
			return fmt.Errorf("%w: session %s has unknown state %q", ErrInvalidBundle, s.ID, s.State)
		}
	}
	return nil
}

// Equivalent reports whether two bundles carry the same content, ignoring
// volatile timestamps (ExportedAt and pattern DetectedAt), record order and
// the difference between nil and empty lists.
func Equivalent(a, b Bundle) bool {
	return cmp.Equal(a, b, equivalence...)
}

var equivalence = []cmp.Option{
	cmpopts.EquateEmpty(),
	cmpopts.IgnoreFields(Bundle{}, "ExportedAt"),
	cmpopts.IgnoreFields(pattern.Pattern{}, "DetectedAt"),
	cmpopts.SortSlices(func(x, y genealogy.FamilyMember) bool { return x.ID < y.ID }),
	cmpopts.SortSlices(func(x, y genealogy.Relationship) bool { return x.ID < y.ID }),
	cmpopts.SortSlices(func(x, y genealogy.FamilyEvent) bool { return x.ID < y.ID }),
	cmpopts.SortSlices(func(x, y pattern.Pattern) bool { return x.Name < y.Name }),
	cmpopts.SortSlices(func(x, y ritual.Session) bool { return x.ID < y.ID }),
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
