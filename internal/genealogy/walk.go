package genealogy

import "sort"

// AncestorRef is one member reached by an ancestor walk.
type AncestorRef struct {
	ID         MemberID `json:"id"`
	Generation int      `json:"generation"`
	Lineage    Lineage  `json:"lineage"`
	// Via is the descendant the ancestor was first reached from.
	Via MemberID `json:"via"`
}

// AncestorPath returns the ancestors of from, up to maxDepth generations,
// ordered by generation and then by ID. Unknown members yield nil.
func (g *Graph) AncestorPath(from MemberID, maxDepth int) []MemberID {
	refs := g.Ancestors(from, maxDepth)
	if len(refs) == 0 {
		return nil
	}
	ids := make([]MemberID, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	return ids
}

// Ancestors walks parent and grandparent edges upward from a member. The
// walk is level ordered so every ancestor is reported at its closest
// generation; the placement map doubles as a visited set so malformed
// cyclic data cannot loop.
func (g *Graph) Ancestors(from MemberID, maxDepth int) []AncestorRef {
	if !g.hasMember(from) || maxDepth <= 0 {
		return nil
	}
	parents := g.parentIndex()
	placed := map[MemberID]int{from: 0}
	levels := make([]map[MemberID]*AncestorRef, maxDepth+1)
	levels[0] = map[MemberID]*AncestorRef{from: {ID: from}}
	var out []AncestorRef
	for gen := 0; gen <= maxDepth; gen++ {
		for _, ref := range sortedRefs(levels[gen]) {
			if gen > 0 {
				out = append(out, *ref)
			}
			for _, edge := range parents[ref.ID] {
				next := gen + edge.generations
				if next > maxDepth {
					continue
				}
				lineage := ref.Lineage
				if gen == 0 {
					lineage = g.sideOf(edge)
				}
				if prev, seen := placed[edge.parent]; seen {
					if prev < next {
						continue
					}
					if prev == next {
						existing := levels[next][edge.parent]
						existing.Lineage = existing.Lineage.Merge(lineage)
						continue
					}
					delete(levels[prev], edge.parent)
				}
				if levels[next] == nil {
					levels[next] = map[MemberID]*AncestorRef{}
				}
				placed[edge.parent] = next
				levels[next][edge.parent] = &AncestorRef{
					ID:         edge.parent,
					Generation: next,
					Lineage:    lineage,
					Via:        ref.ID,
				}
			}
		}
	}
	return out
}

// Siblings returns members linked to id by a sibling edge or sharing one of
// its parents, sorted by ID.
func (g *Graph) Siblings(id MemberID) []MemberID {
	if !g.hasMember(id) {
		return nil
	}
	found := map[MemberID]struct{}{}
	parentsOf := map[MemberID]struct{}{}
	for _, r := range g.relationships {
		switch {
		case r.Type.IsLateral() && r.Touches(id):
			found[r.Other(id)] = struct{}{}
		case r.Type == RelationParent && r.To == id:
			parentsOf[r.From] = struct{}{}
		}
	}
	for _, r := range g.relationships {
		if r.Type != RelationParent || r.To == id {
			continue
		}
		if _, shared := parentsOf[r.From]; shared {
			found[r.To] = struct{}{}
		}
	}
	delete(found, id)
	if len(found) == 0 {
		return nil
	}
	out := make([]MemberID, 0, len(found))
	for sib := range found {
		out = append(out, sib)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type parentEdge struct {
	parent      MemberID
	generations int
}

func (g *Graph) parentIndex() map[MemberID][]parentEdge {
	index := map[MemberID][]parentEdge{}
	for _, r := range g.relationships {
		if !r.Type.IsLineal() {
			continue
		}
		index[r.To] = append(index[r.To], parentEdge{parent: r.From, generations: r.Type.Generations()})
	}
	for child, edges := range index {
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].generations != edges[j].generations {
				return edges[i].generations < edges[j].generations
			}
			return edges[i].parent < edges[j].parent
		})
		index[child] = edges
	}
	return index
}

// sideOf decides the lineage of a direct ancestor of the walk root.
func (g *Graph) sideOf(edge parentEdge) Lineage {
	if edge.generations != 1 {
		return LineageUnknown
	}
	switch g.members[edge.parent].Sex {
	case SexMale:
		return LineagePaternal
	case SexFemale:
		return LineageMaternal
	default:
		return LineageUnknown
	}
}

func sortedRefs(level map[MemberID]*AncestorRef) []*AncestorRef {
	if len(level) == 0 {
		return nil
	}
	out := make([]*AncestorRef, 0, len(level))
	for _, ref := range level {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
