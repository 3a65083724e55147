package phyloseq

// Node is one vertex of a rooted phylogenetic tree. Tips carry taxon IDs in
// Name; internal nodes may carry a label (often a support value).
type Node struct {
	Name      string
	Length    float64
	HasLength bool
	Children  []*Node
}

func (n *Node) IsTip() bool { return len(n.Children) == 0 }

// Tree is a rooted tree over taxon IDs.
type Tree struct {
	Root *Node
}

// Tips lists the tip labels in left-to-right order.
func (t *Tree) Tips() []string {
	if t == nil || t.Root == nil {
		return nil
	}

	var out []string
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.IsTip() {
			out = append(out, n.Name)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)

	return out
}

func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	if t.Root == nil {
		return &Tree{}
	}

	return &Tree{Root: cloneNode(t.Root)}
}

func cloneNode(n *Node) *Node {
	out := &Node{Name: n.Name, Length: n.Length, HasLength: n.HasLength}
	if len(n.Children) > 0 {
		out.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = cloneNode(c)
		}
	}
	return out
}

// Prune returns a new tree holding only the tips in keep. Internal nodes
// left with a single child are collapsed into that child, summing branch
// lengths. The result is nil when no tip survives.
func (t *Tree) Prune(keep map[string]bool) *Tree {
	if t == nil || t.Root == nil {
		return nil
	}

	root := pruneNode(t.Root, keep)
	if root == nil {
		return nil
	}

	return &Tree{Root: root}
}

func pruneNode(n *Node, keep map[string]bool) *Node {
	if n.IsTip() {
		if !keep[n.Name] {
			return nil
		}
		return &Node{Name: n.Name, Length: n.Length, HasLength: n.HasLength}
	}

	var children []*Node
	for _, c := range n.Children {
		if pc := pruneNode(c, keep); pc != nil {
			children = append(children, pc)
		}
	}

	switch len(children) {
	case 0:
		return nil
	case 1:
		only := children[0]
		only.Length += n.Length
		only.HasLength = only.HasLength || n.HasLength
		return only
	}

	return &Node{Name: n.Name, Length: n.Length, HasLength: n.HasLength, Children: children}
}

// Equal compares topology, labels and branch lengths.
func (t *Tree) Equal(other *Tree) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Root == nil || other.Root == nil {
		return t.Root == other.Root
	}

	return nodesEqual(t.Root, other.Root)
}

func nodesEqual(a, b *Node) bool {
	if a.Name != b.Name || a.HasLength != b.HasLength || len(a.Children) != len(b.Children) {
		return false
	}
	if a.HasLength && a.Length != b.Length {
		return false
	}

	for i := range a.Children {
		if !nodesEqual(a.Children[i], b.Children[i]) {
			return false
		}
	}

	return true
}
