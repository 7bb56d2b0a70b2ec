package collision

import (
	"cmp"
	"slices"

	"github.com/pthm-cable/freemotion/geom"
	"github.com/pthm-cable/freemotion/scene"
)

// Proxy is a body's root volume as seen by the broad phase.
type Proxy struct {
	Body    scene.Handle
	Ordinal int
	Box     geom.AABB
}

// Pair is a candidate body pair, ordered by body ordinal (A <= B). A == B
// denotes a self-collision candidate.
type Pair struct {
	A, B               scene.Handle
	OrdinalA, OrdinalB int
}

// Filter decides whether two bodies may collide at all.
type Filter func(a, b scene.Handle) bool

// BroadPhase turns root volumes into candidate pairs. Implementations must
// be sound: every truly overlapping allowed pair is reported. Output is
// deduplicated and sorted by (OrdinalA, OrdinalB).
type BroadPhase interface {
	Name() string
	// NeedsDeepBoundingTree reports whether the broad phase itself walks
	// body hierarchies, requiring full-depth trees.
	NeedsDeepBoundingTree() bool
	// Detect returns candidate pairs among proxies, inflating volumes by margin.
	Detect(proxies []Proxy, margin float64, allow Filter) []Pair
	// Reset drops any persistent state.
	Reset()
}

// NewBroadPhase returns the named implementation, or nil for an unknown name.
func NewBroadPhase(name string) BroadPhase {
	switch name {
	case "brute":
		return &BruteForce{}
	case "sap":
		return NewSweepAndPrune()
	case "rtree":
		return &RTree{}
	}
	return nil
}

func makePair(a, b Proxy) Pair {
	if b.Ordinal < a.Ordinal {
		a, b = b, a
	}
	return Pair{A: a.Body, B: b.Body, OrdinalA: a.Ordinal, OrdinalB: b.Ordinal}
}

func sortPairs(pairs []Pair) []Pair {
	slices.SortFunc(pairs, func(x, y Pair) int {
		if c := cmp.Compare(x.OrdinalA, y.OrdinalA); c != 0 {
			return c
		}
		return cmp.Compare(x.OrdinalB, y.OrdinalB)
	})
	return slices.CompactFunc(pairs, func(x, y Pair) bool {
		return x.OrdinalA == y.OrdinalA && x.OrdinalB == y.OrdinalB
	})
}

// selfPairs adds self-collision candidates, which no overlap test can reject.
func selfPairs(proxies []Proxy, allow Filter, out []Pair) []Pair {
	for _, p := range proxies {
		if !p.Box.IsEmpty() && allow(p.Body, p.Body) {
			out = append(out, makePair(p, p))
		}
	}
	return out
}

// BruteForce tests every proxy pair.
type BruteForce struct{}

func (*BruteForce) Name() string { return "brute" }

func (*BruteForce) NeedsDeepBoundingTree() bool { return false }

func (*BruteForce) Reset() {}

func (*BruteForce) Detect(proxies []Proxy, margin float64, allow Filter) []Pair {
	var out []Pair
	for i := range proxies {
		bi := proxies[i].Box.Inflate(margin)
		for j := i + 1; j < len(proxies); j++ {
			if bi.Overlaps(proxies[j].Box) && allow(proxies[i].Body, proxies[j].Body) {
				out = append(out, makePair(proxies[i], proxies[j]))
			}
		}
	}
	out = selfPairs(proxies, allow, out)
	return sortPairs(out)
}
