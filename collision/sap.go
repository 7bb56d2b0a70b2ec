package collision

import (
	"github.com/pthm-cable/freemotion/geom"
	"github.com/pthm-cable/freemotion/scene"
)

type endpoint struct {
	value   float64
	isMax   bool
	ordinal int
	body    scene.Handle
}

// less is a total order: ties on value put min endpoints first so touching
// boxes overlap, then fall back to the body ordinal. Sorting by a total order
// makes the sorted list independent of the previous frame's order.
func (e endpoint) less(o endpoint) bool {
	if e.value != o.value {
		return e.value < o.value
	}
	if e.isMax != o.isMax {
		return !e.isMax
	}
	return e.ordinal < o.ordinal
}

// SweepAndPrune keeps sorted endpoints along X between calls and restores
// order with an insertion sort, which is near linear under temporal
// coherence.
type SweepAndPrune struct {
	endpoints []endpoint
	boxes     map[int]geom.AABB
	proxies   map[int]Proxy
}

// NewSweepAndPrune creates an empty sweep and prune broad phase.
func NewSweepAndPrune() *SweepAndPrune {
	return &SweepAndPrune{
		boxes:   make(map[int]geom.AABB),
		proxies: make(map[int]Proxy),
	}
}

func (*SweepAndPrune) Name() string { return "sap" }

func (*SweepAndPrune) NeedsDeepBoundingTree() bool { return false }

// Reset drops the persistent endpoint list.
func (s *SweepAndPrune) Reset() {
	s.endpoints = s.endpoints[:0]
	clear(s.boxes)
	clear(s.proxies)
}

// Len returns the number of tracked proxies.
func (s *SweepAndPrune) Len() int {
	return len(s.proxies)
}

func (s *SweepAndPrune) Detect(proxies []Proxy, margin float64, allow Filter) []Pair {
	half := margin / 2

	// refresh the proxy set; empty volumes take no part in the sweep
	present := make(map[int]struct{}, len(proxies))
	for _, p := range proxies {
		if p.Box.IsEmpty() {
			continue
		}
		present[p.Ordinal] = struct{}{}
		s.boxes[p.Ordinal] = p.Box.Inflate(half)
		s.proxies[p.Ordinal] = p
	}
	kept := s.endpoints[:0]
	for _, e := range s.endpoints {
		if _, ok := present[e.ordinal]; ok {
			kept = append(kept, e)
		}
	}
	s.endpoints = kept
	for ord := range s.proxies {
		if _, ok := present[ord]; !ok {
			delete(s.proxies, ord)
			delete(s.boxes, ord)
		}
	}

	// update values of known endpoints and append new ones
	seen := make(map[int]struct{}, len(present))
	for i := range s.endpoints {
		e := &s.endpoints[i]
		b := s.boxes[e.ordinal]
		if e.isMax {
			e.value = b.Max[0]
		} else {
			e.value = b.Min[0]
		}
		seen[e.ordinal] = struct{}{}
	}
	for _, p := range proxies {
		if _, ok := present[p.Ordinal]; !ok {
			continue
		}
		if _, ok := seen[p.Ordinal]; ok {
			continue
		}
		seen[p.Ordinal] = struct{}{}
		b := s.boxes[p.Ordinal]
		s.endpoints = append(s.endpoints,
			endpoint{value: b.Min[0], ordinal: p.Ordinal, body: p.Body},
			endpoint{value: b.Max[0], isMax: true, ordinal: p.Ordinal, body: p.Body},
		)
	}

	insertionSort(s.endpoints)

	// sweep
	var out []Pair
	active := make([]int, 0, 16)
	for _, e := range s.endpoints {
		if e.isMax {
			for i, ord := range active {
				if ord == e.ordinal {
					active = append(active[:i], active[i+1:]...)
					break
				}
			}
			continue
		}
		box := s.boxes[e.ordinal]
		for _, ord := range active {
			other := s.boxes[ord]
			if !overlapsYZ(box, other) {
				continue
			}
			pa, pb := s.proxies[e.ordinal], s.proxies[ord]
			if allow(pa.Body, pb.Body) {
				out = append(out, makePair(pa, pb))
			}
		}
		active = append(active, e.ordinal)
	}

	out = selfPairs(proxies, allow, out)
	return sortPairs(out)
}

func overlapsYZ(a, b geom.AABB) bool {
	for i := 1; i < 3; i++ {
		if a.Max[i] < b.Min[i] || b.Max[i] < a.Min[i] {
			return false
		}
	}
	return true
}

func insertionSort(es []endpoint) {
	for i := 1; i < len(es); i++ {
		e := es[i]
		j := i - 1
		for j >= 0 && e.less(es[j]) {
			es[j+1] = es[j]
			j--
		}
		es[j+1] = e
	}
}
