package constraint

import (
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// GroupManager splits a problem into islands: sets of rows whose objects are
// linked through shared contacts. Islands are independent and may be solved
// one at a time.
type GroupManager struct{}

// NewGroupManager creates a group manager.
func NewGroupManager() *GroupManager {
	return &GroupManager{}
}

// Islands returns the row indices of each island, ascending, islands ordered
// by their first row.
func (g *GroupManager) Islands(rows []Row, layout *Layout) [][]int {
	nobj := int64(len(layout.Objects()))
	rowNode := func(r int) simple.Node { return simple.Node(nobj + int64(r)) }

	// objects are nodes 0..nobj-1, rows follow
	graph := simple.NewUndirectedGraph()
	for r := range rows {
		graph.AddNode(rowNode(r))
	}
	for r, row := range rows {
		for _, e := range row.Entries {
			obj, _ := layout.Locate(e.DOF)
			graph.SetEdge(graph.NewEdge(rowNode(r), simple.Node(obj)))
		}
		if row.Head != r {
			graph.SetEdge(graph.NewEdge(rowNode(r), rowNode(row.Head)))
		}
	}

	var out [][]int
	for _, comp := range topo.ConnectedComponents(graph) {
		var island []int
		for _, n := range comp {
			if id := n.ID(); id >= nobj {
				island = append(island, int(id-nobj))
			}
		}
		if len(island) == 0 {
			continue
		}
		slices.Sort(island)
		out = append(out, island)
	}
	slices.SortFunc(out, func(a, b []int) int { return a[0] - b[0] })
	return out
}
