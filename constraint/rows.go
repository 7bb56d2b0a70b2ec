// Package constraint builds contact constraint rows, assembles the compliance
// matrix through each object's correction and solves for the impulses.
package constraint

import (
	"fmt"
	"sort"

	"github.com/pthm-cable/freemotion/mechanics"
)

// RowKind sets how a row's impulse is bounded.
type RowKind uint8

const (
	// Unilateral rows keep λ ≥ 0, complementary to the violation.
	Unilateral RowKind = iota
	// Bilateral rows are unbounded.
	Bilateral
	// Tangent rows are bounded by the friction cone of their group head.
	Tangent
)

func (k RowKind) String() string {
	switch k {
	case Unilateral:
		return "unilateral"
	case Bilateral:
		return "bilateral"
	case Tangent:
		return "tangent"
	}
	return fmt.Sprintf("rowkind(%d)", k)
}

// Entry is one Jacobian coefficient over a global DOF.
type Entry struct {
	DOF   int
	Value float64
}

// Row is one scalar constraint J·dx + Violation ≥ 0 (or = 0).
type Row struct {
	Entries   []Entry
	Violation float64
	Kind      RowKind
	// Mu is the friction coefficient of a group head.
	Mu float64
	// Head is the normal row of a friction group, the row itself otherwise.
	Head int
}

// Layout assigns each simulated object a contiguous range of global DOFs.
type Layout struct {
	objects []*mechanics.Object
	offsets []int
	index   map[*mechanics.Object]int
	total   int
}

// NewLayout lays objects out in the given order.
func NewLayout(objects []*mechanics.Object) *Layout {
	l := &Layout{index: make(map[*mechanics.Object]int, len(objects))}
	for _, o := range objects {
		if _, dup := l.index[o]; dup {
			continue
		}
		l.index[o] = len(l.objects)
		l.objects = append(l.objects, o)
		l.offsets = append(l.offsets, l.total)
		l.total += o.DOFs()
	}
	return l
}

// Objects returns the laid out objects in order.
func (l *Layout) Objects() []*mechanics.Object {
	return l.objects
}

// DOFs returns the total DOF count.
func (l *Layout) DOFs() int {
	return l.total
}

// Offset returns the first global DOF of o.
func (l *Layout) Offset(o *mechanics.Object) (int, bool) {
	i, ok := l.index[o]
	if !ok {
		return 0, false
	}
	return l.offsets[i], true
}

// Locate returns the object index and local DOF of a global DOF.
func (l *Layout) Locate(dof int) (int, int) {
	i := sort.SearchInts(l.offsets, dof+1) - 1
	return i, dof - l.offsets[i]
}

// localJacobian extracts the rows touching o as a dense block over o's DOFs.
// rowIdx maps block rows back to global rows.
func localJacobian(rows []Row, offset, n int) (rowIdx []int, block [][]float64) {
	for r := range rows {
		var line []float64
		for _, e := range rows[r].Entries {
			if e.DOF < offset || e.DOF >= offset+n {
				continue
			}
			if line == nil {
				line = make([]float64, n)
			}
			line[e.DOF-offset] += e.Value
		}
		if line != nil {
			rowIdx = append(rowIdx, r)
			block = append(block, line)
		}
	}
	return rowIdx, block
}
