package tags

import (
	"github.com/mwantia/manifest/pkg/db/models"
)

// Node is one tag in a Tree. Children holds ids, never pointers, so the
// tree can be rebuilt from any flat listing.
type Node struct {
	Tag        models.Tag
	Count      int
	TotalCount int
	Children   []string
}

// Tree indexes tags by id. Tags whose parent is missing from the listing
// become roots.
type Tree struct {
	nodes map[string]*Node
	roots []string
}

// BuildTree arranges tags into a tree, keeping the listing order among
// siblings. counts holds the direct sample count per tag id and may be nil.
func BuildTree(tags []models.Tag, counts map[string]int) *Tree {
	t := &Tree{nodes: make(map[string]*Node, len(tags))}

	for _, tag := range tags {
		t.nodes[tag.ID] = &Node{Tag: tag, Count: counts[tag.ID]}
	}

	for _, tag := range tags {
		if tag.ParentID != nil {
			if parent, ok := t.nodes[*tag.ParentID]; ok && *tag.ParentID != tag.ID {
				parent.Children = append(parent.Children, tag.ID)
				continue
			}
		}
		t.roots = append(t.roots, tag.ID)
	}

	visited := make(map[string]bool, len(t.nodes))
	for _, id := range t.roots {
		t.total(id, visited)
	}
	return t
}

// total fills TotalCount bottom-up.
func (t *Tree) total(id string, visited map[string]bool) int {
	node := t.nodes[id]
	if visited[id] {
		return node.TotalCount
	}
	visited[id] = true

	node.TotalCount = node.Count
	for _, child := range node.Children {
		node.TotalCount += t.total(child, visited)
	}
	return node.TotalCount
}

func (t *Tree) Len() int {
	return len(t.nodes)
}

func (t *Tree) Node(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

func (t *Tree) Roots() []*Node {
	return t.resolve(t.roots)
}

func (t *Tree) Children(id string) []*Node {
	node, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return t.resolve(node.Children)
}

func (t *Tree) resolve(ids []string) []*Node {
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.nodes[id])
	}
	return out
}

// Descendants returns the ids below id in depth-first order.
func (t *Tree) Descendants(id string) []string {
	var out []string
	node, ok := t.nodes[id]
	if !ok {
		return nil
	}

	stack := make([]string, 0, len(node.Children))
	for i := len(node.Children) - 1; i >= 0; i-- {
		stack = append(stack, node.Children[i])
	}
	seen := map[string]bool{id: true}
	for len(stack) > 0 {
		last := len(stack) - 1
		current := stack[last]
		stack = stack[:last]
		if seen[current] {
			continue
		}
		seen[current] = true
		out = append(out, current)

		children := t.nodes[current].Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return out
}

// Walk visits every node depth-first, roots in order.
func (t *Tree) Walk(fn func(depth int, node *Node)) {
	seen := make(map[string]bool, len(t.nodes))
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		if seen[id] {
			return
		}
		seen[id] = true

		node := t.nodes[id]
		fn(depth, node)
		for _, child := range node.Children {
			walk(child, depth+1)
		}
	}

	for _, id := range t.roots {
		walk(id, 0)
	}
}

// View is the nested rendering of a Tree.
type View struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Level        int    `json:"level" yaml:"level"`
	FullPath     string `json:"full_path" yaml:"full_path"`
	BusinessCode string `json:"business_code,omitempty" yaml:"business_code,omitempty"`
	Count        int    `json:"count" yaml:"count"`
	TotalCount   int    `json:"total_count" yaml:"total_count"`
	Children     []View `json:"children,omitempty" yaml:"children,omitempty"`
}

func (t *Tree) Views() []View {
	seen := make(map[string]bool, len(t.nodes))
	var build func(id string) View
	build = func(id string) View {
		seen[id] = true
		node := t.nodes[id]
		v := View{
			ID:           node.Tag.ID,
			Name:         node.Tag.Name,
			Level:        node.Tag.Level,
			FullPath:     node.Tag.FullPath,
			BusinessCode: node.Tag.BusinessCode,
			Count:        node.Count,
			TotalCount:   node.TotalCount,
		}
		for _, child := range node.Children {
			if !seen[child] {
				v.Children = append(v.Children, build(child))
			}
		}
		return v
	}

	views := make([]View, 0, len(t.roots))
	for _, id := range t.roots {
		views = append(views, build(id))
	}
	return views
}
