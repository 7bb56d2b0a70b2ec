// Package bvh implements the per-body bounding volume hierarchy used by the
// broad and narrow phases.
package bvh

import (
	"slices"

	"github.com/pthm-cable/freemotion/geom"
)

// Node is one bounding volume. Internal nodes have two children; a node at the
// depth limit (or holding a single element) is a bucket over the element
// leaves order[First:First+Count].
type Node struct {
	Box         geom.AABB
	Left, Right int32
	First       int32
	Count       int32
}

// IsBucket reports whether the node holds element leaves directly.
func (n *Node) IsBucket() bool {
	return n.Left < 0
}

// Tree is a median-split AABB hierarchy over element boxes. The zero value is
// an empty tree.
type Tree struct {
	nodes []Node
	order []int
	boxes []geom.AABB
	depth int
}

// Rebuild recomputes the hierarchy from the current element boxes. maxDepth
// bounds the number of internal levels below the root; 0 yields a root over
// the element leaves only. Negative values are treated as 0.
func (t *Tree) Rebuild(boxes []geom.AABB, maxDepth int) {
	if maxDepth < 0 {
		maxDepth = 0
	}
	t.boxes = append(t.boxes[:0], boxes...)
	t.nodes = t.nodes[:0]
	t.order = t.order[:0]
	t.depth = 0
	if len(boxes) == 0 {
		return
	}
	for i := range boxes {
		t.order = append(t.order, i)
	}
	t.build(0, int32(len(boxes)), 0, maxDepth)
}

func (t *Tree) build(first, count int32, level, maxDepth int) int32 {
	idx := int32(len(t.nodes))
	box := geom.EmptyAABB()
	for _, e := range t.order[first : first+count] {
		box = box.Union(t.boxes[e])
	}
	t.nodes = append(t.nodes, Node{Box: box, Left: -1, Right: -1, First: first, Count: count})
	if level > t.depth {
		t.depth = level
	}
	if count <= 1 || level >= maxDepth {
		return idx
	}

	// median split on the longest axis of the centroid bounds
	centroids := geom.EmptyAABB()
	for _, e := range t.order[first : first+count] {
		centroids = centroids.Extend(t.boxes[e].Center())
	}
	axis := centroids.LongestAxis()
	span := t.order[first : first+count]
	slices.SortStableFunc(span, func(a, b int) int {
		ca, cb := t.boxes[a].Center()[axis], t.boxes[b].Center()[axis]
		switch {
		case ca < cb:
			return -1
		case ca > cb:
			return 1
		}
		return a - b
	})
	half := count / 2
	left := t.build(first, half, level+1, maxDepth)
	right := t.build(first+half, count-half, level+1, maxDepth)
	t.nodes[idx].Left = left
	t.nodes[idx].Right = right
	return idx
}

// Empty reports whether the tree covers no element.
func (t *Tree) Empty() bool {
	return len(t.nodes) == 0
}

// Root returns the root volume, or the void volume for an empty tree.
func (t *Tree) Root() geom.AABB {
	if len(t.nodes) == 0 {
		return geom.EmptyAABB()
	}
	return t.nodes[0].Box
}

// Len returns the number of element leaves.
func (t *Tree) Len() int {
	return len(t.boxes)
}

// Depth returns the number of internal levels built below the root.
func (t *Tree) Depth() int {
	return t.depth
}

// Nodes exposes the node array, root first.
func (t *Tree) Nodes() []Node {
	return t.nodes
}

// ElementBox returns the leaf volume of element i.
func (t *Tree) ElementBox(i int) geom.AABB {
	return t.boxes[i]
}

// Query calls fn for every element whose box overlaps q.
func (t *Tree) Query(q geom.AABB, fn func(elem int)) {
	if len(t.nodes) == 0 {
		return
	}
	stack := []int32{0}
	for len(stack) > 0 {
		n := &t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !n.Box.Overlaps(q) {
			continue
		}
		if n.IsBucket() {
			for _, e := range t.order[n.First : n.First+n.Count] {
				if t.boxes[e].Overlaps(q) {
					fn(e)
				}
			}
			continue
		}
		stack = append(stack, n.Right, n.Left)
	}
}

// Overlapping calls fn for every element pair (ea in a, eb in b) whose boxes,
// with a's inflated by margin, overlap. Pairs are not emitted in any
// particular order.
func Overlapping(a, b *Tree, margin float64, fn func(ea, eb int)) {
	if a.Empty() || b.Empty() {
		return
	}
	type pair struct{ na, nb int32 }
	stack := []pair{{0, 0}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		na, nb := &a.nodes[p.na], &b.nodes[p.nb]
		if !na.Box.Inflate(margin).Overlaps(nb.Box) {
			continue
		}
		switch {
		case na.IsBucket() && nb.IsBucket():
			for _, ea := range a.order[na.First : na.First+na.Count] {
				boxA := a.boxes[ea].Inflate(margin)
				for _, eb := range b.order[nb.First : nb.First+nb.Count] {
					if boxA.Overlaps(b.boxes[eb]) {
						fn(ea, eb)
					}
				}
			}
		case nb.IsBucket() || (!na.IsBucket() && na.Count >= nb.Count):
			stack = append(stack, pair{na.Left, p.nb}, pair{na.Right, p.nb})
		default:
			stack = append(stack, pair{p.na, nb.Left}, pair{p.na, nb.Right})
		}
	}
}

// SelfOverlapping calls fn for every element pair ea < eb of t whose boxes
// overlap within margin.
func SelfOverlapping(t *Tree, margin float64, fn func(ea, eb int)) {
	for ea := range t.boxes {
		t.Query(t.boxes[ea].Inflate(margin), func(eb int) {
			if eb > ea {
				fn(ea, eb)
			}
		})
	}
}
