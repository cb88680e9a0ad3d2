package genealogy

import (
	"reflect"
	"testing"
)

func TestAncestorPathOrdersByGeneration(t *testing.T) {
	g := buildFamily(t)
	mustMember(t, g, FamilyMember{ID: "great", GivenName: "Tomás", Sex: SexMale})
	mustRelation(t, g, RelationParent, "great", "grandpa")

	got := g.AncestorPath("root", 5)
	want := []MemberID{"dad", "mom", "grandpa", "great"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("path = %v, want %v", got, want)
	}
	if got := g.AncestorPath("root", 1); !reflect.DeepEqual(got, []MemberID{"dad", "mom"}) {
		t.Fatalf("depth-1 path = %v", got)
	}
}

func TestAncestorsCarryLineage(t *testing.T) {
	g := buildFamily(t)
	mustMember(t, g, FamilyMember{ID: "nana", GivenName: "Rosa", Sex: SexFemale})
	mustRelation(t, g, RelationParent, "nana", "mom")

	refs := g.Ancestors("root", 3)
	lineages := map[MemberID]Lineage{}
	for _, ref := range refs {
		lineages[ref.ID] = ref.Lineage
	}
	if lineages["grandpa"] != LineagePaternal {
		t.Fatalf("grandpa lineage = %s", lineages["grandpa"])
	}
	if lineages["nana"] != LineageMaternal {
		t.Fatalf("nana lineage = %s", lineages["nana"])
	}
}

func TestAncestorsGrandparentEdgeJumpsTwoGenerations(t *testing.T) {
	g := NewGraph()
	mustMember(t, g, FamilyMember{ID: "root"})
	mustMember(t, g, FamilyMember{ID: "abuela", Sex: SexFemale})
	mustRelation(t, g, RelationGrandparent, "abuela", "root")

	refs := g.Ancestors("root", 2)
	if len(refs) != 1 || refs[0].Generation != 2 {
		t.Fatalf("unexpected refs: %+v", refs)
	}
	if refs := g.Ancestors("root", 1); len(refs) != 0 {
		t.Fatalf("grandparent must not appear at depth 1: %+v", refs)
	}
}

func TestAncestorsPreferClosestGeneration(t *testing.T) {
	g := NewGraph()
	for _, id := range []MemberID{"root", "a", "b", "x"} {
		mustMember(t, g, FamilyMember{ID: id})
	}
	mustRelation(t, g, RelationParent, "a", "root")
	mustRelation(t, g, RelationParent, "b", "root")
	mustRelation(t, g, RelationGrandparent, "x", "a")
	mustRelation(t, g, RelationParent, "x", "b")

	for _, ref := range g.Ancestors("root", 4) {
		if ref.ID == "x" && ref.Generation != 2 {
			t.Fatalf("x generation = %d, want 2", ref.Generation)
		}
	}
}

func TestAncestorsSurviveCycles(t *testing.T) {
	g := NewGraph()
	mustMember(t, g, FamilyMember{ID: "a"})
	mustMember(t, g, FamilyMember{ID: "b"})
	mustMember(t, g, FamilyMember{ID: "c"})
	mustRelation(t, g, RelationParent, "b", "a")
	mustRelation(t, g, RelationParent, "c", "b")
	mustRelation(t, g, RelationParent, "a", "c")

	got := g.AncestorPath("a", 50)
	want := []MemberID{"b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("path = %v, want %v", got, want)
	}
}

func TestSiblingsIncludeSharedParents(t *testing.T) {
	g := buildFamily(t)
	mustMember(t, g, FamilyMember{ID: "half", GivenName: "Iván"})
	mustRelation(t, g, RelationHalfSibling, "half", "root")

	got := g.Siblings("root")
	want := []MemberID{"half", "sis"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("siblings = %v, want %v", got, want)
	}
}
