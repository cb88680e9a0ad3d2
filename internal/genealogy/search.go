package genealogy

import (
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldName strips accents and case so "José Pérez" and "jose perez" compare
// equal.
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(strings.TrimSpace(stripped))
}

// memberSource adapts members to fuzzy.Source over their folded display
// names.
type memberSource []FamilyMember

func (s memberSource) String(i int) string {
	return foldName(s[i].DisplayName())
}

func (s memberSource) Len() int {
	return len(s)
}

// FindMembers fuzzy-matches query against member display names, best match
// first. Accents and case are ignored. A blank query returns nil; limit <= 0
// means no limit.
func (g *Graph) FindMembers(query string, limit int) []FamilyMember {
	query = foldName(query)
	if query == "" {
		return nil
	}
	source := memberSource(g.Members())
	matches := fuzzy.FindFrom(query, source)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]FamilyMember, 0, len(matches))
	for _, match := range matches {
		out = append(out, source[match.Index])
	}
	return out
}
