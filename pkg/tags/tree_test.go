package tags

import (
	"testing"

	"github.com/mwantia/manifest/pkg/db/models"
)

func tag(id, name string, parent string) models.Tag {
	t := models.Tag{ID: id, Name: name, FullPath: name}
	if parent != "" {
		t.ParentID = &parent
	}
	return t
}

func TestBuildTree(t *testing.T) {
	tags := []models.Tag{
		tag("root", "vehicles", ""),
		tag("car", "car", "root"),
		tag("truck", "truck", "root"),
		tag("suv", "suv", "car"),
		tag("orphan", "lost", "missing"),
	}
	counts := map[string]int{"root": 1, "car": 2, "suv": 4, "truck": 3, "orphan": 5}

	tree := BuildTree(tags, counts)

	if tree.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", tree.Len())
	}

	roots := tree.Roots()
	if len(roots) != 2 || roots[0].Tag.ID != "root" || roots[1].Tag.ID != "orphan" {
		t.Fatalf("Roots() = %v, want [root orphan]", roots)
	}

	tests := []struct {
		id         string
		count      int
		totalCount int
	}{
		{id: "root", count: 1, totalCount: 10},
		{id: "car", count: 2, totalCount: 6},
		{id: "suv", count: 4, totalCount: 4},
		{id: "truck", count: 3, totalCount: 3},
		{id: "orphan", count: 5, totalCount: 5},
	}
	for _, tt := range tests {
		node, ok := tree.Node(tt.id)
		if !ok {
			t.Fatalf("Node(%s) missing", tt.id)
		}
		if node.Count != tt.count || node.TotalCount != tt.totalCount {
			t.Errorf("%s: count %d total %d, want %d and %d", tt.id, node.Count, node.TotalCount, tt.count, tt.totalCount)
		}
	}

	children := tree.Children("root")
	if len(children) != 2 || children[0].Tag.ID != "car" || children[1].Tag.ID != "truck" {
		t.Errorf("Children(root) = %v", children)
	}
}

func TestTreeDescendantsAndWalk(t *testing.T) {
	tree := BuildTree([]models.Tag{
		tag("a", "a", ""),
		tag("b", "b", "a"),
		tag("c", "c", "b"),
		tag("d", "d", "a"),
	}, nil)

	got := tree.Descendants("a")
	want := []string{"b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("Descendants(a) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Descendants(a) = %v, want %v", got, want)
		}
	}

	if d := tree.Descendants("c"); len(d) != 0 {
		t.Errorf("Descendants(c) = %v, want none", d)
	}
	if d := tree.Descendants("unknown"); d != nil {
		t.Errorf("Descendants(unknown) = %v, want nil", d)
	}

	var depths []int
	tree.Walk(func(depth int, node *Node) {
		depths = append(depths, depth)
	})
	wantDepths := []int{0, 1, 2, 1}
	for i := range wantDepths {
		if depths[i] != wantDepths[i] {
			t.Fatalf("Walk depths = %v, want %v", depths, wantDepths)
		}
	}
}

func TestTreeViews(t *testing.T) {
	tree := BuildTree([]models.Tag{
		tag("a", "a", ""),
		tag("b", "b", "a"),
	}, map[string]int{"b": 2})

	views := tree.Views()
	if len(views) != 1 {
		t.Fatalf("Views() = %d roots, want 1", len(views))
	}
	if views[0].TotalCount != 2 || len(views[0].Children) != 1 || views[0].Children[0].Count != 2 {
		t.Errorf("Views() = %+v", views)
	}
}
