package collision

import (
	"github.com/dhconnelly/rtreego"

	"github.com/pthm-cable/freemotion/geom"
)

// rtreePad keeps rectangles non-degenerate and makes touching boxes
// intersect in the tree; exact overlap is re-checked afterwards.
const rtreePad = 1e-9

// RTree rebuilds an R-tree over the root volumes every call.
type RTree struct {
	MinChildren int
	MaxChildren int
}

type rtreeItem struct {
	proxy Proxy
	box   geom.AABB
	rect  rtreego.Rect
}

func (it *rtreeItem) Bounds() rtreego.Rect {
	return it.rect
}

func (*RTree) Name() string { return "rtree" }

func (*RTree) NeedsDeepBoundingTree() bool { return false }

func (*RTree) Reset() {}

func toRect(b geom.AABB) (rtreego.Rect, error) {
	p := rtreego.Point{b.Min[0] - rtreePad, b.Min[1] - rtreePad, b.Min[2] - rtreePad}
	s := b.Size()
	lengths := []float64{s[0] + 2*rtreePad, s[1] + 2*rtreePad, s[2] + 2*rtreePad}
	return rtreego.NewRect(p, lengths)
}

func (r *RTree) Detect(proxies []Proxy, margin float64, allow Filter) []Pair {
	minC, maxC := r.MinChildren, r.MaxChildren
	if minC <= 0 {
		minC = 2
	}
	if maxC <= minC {
		maxC = max(8, 2*minC)
	}

	half := margin / 2
	items := make([]*rtreeItem, 0, len(proxies))
	tree := rtreego.NewTree(3, minC, maxC)
	var out []Pair
	for _, p := range proxies {
		if p.Box.IsEmpty() {
			continue
		}
		box := p.Box.Inflate(half)
		rect, err := toRect(box)
		if err != nil {
			// non-finite volume: fall back to pairing it with everything
			for _, other := range proxies {
				if other.Ordinal != p.Ordinal && !other.Box.IsEmpty() && allow(p.Body, other.Body) {
					out = append(out, makePair(p, other))
				}
			}
			continue
		}
		it := &rtreeItem{proxy: p, box: box, rect: rect}
		items = append(items, it)
		tree.Insert(it)
	}

	for _, it := range items {
		for _, hit := range tree.SearchIntersect(it.rect) {
			other := hit.(*rtreeItem)
			if other.proxy.Ordinal <= it.proxy.Ordinal {
				continue
			}
			if !it.box.Overlaps(other.box) {
				continue
			}
			if allow(it.proxy.Body, other.proxy.Body) {
				out = append(out, makePair(it.proxy, other.proxy))
			}
		}
	}
	out = selfPairs(proxies, allow, out)
	return sortPairs(out)
}
