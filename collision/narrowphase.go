package collision

import (
	"cmp"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/freemotion/bvh"
	"github.com/pthm-cable/freemotion/components"
	"github.com/pthm-cable/freemotion/diag"
	"github.com/pthm-cable/freemotion/geom"
	"github.com/pthm-cable/freemotion/mechanics"
	"github.com/pthm-cable/freemotion/scene"
	"github.com/pthm-cable/freemotion/scheduler"
)

// DefaultNormal is used for a degenerate contact without a previous normal.
var DefaultNormal = mgl64.Vec3{0, 1, 0}

// ElementRef is a lookup key for one element of one body.
type ElementRef struct {
	Body  scene.Handle
	Index int
}

// Proximity is one contact point found by the narrow phase. Normal points
// from A to B; Distance is signed.
type Proximity struct {
	A, B           ElementRef
	KindA, KindB   geom.Kind
	PointA, PointB mgl64.Vec3
	Normal         mgl64.Vec3
	Distance       float64
	LocalA, LocalB geom.Bary
	ID             ContactID
}

// Params holds the proximity thresholds.
type Params struct {
	AlarmDistance   float64
	ContactDistance float64
}

// NarrowPhase turns candidate pairs into proximities, ordered by (pair,
// element A, element B).
type NarrowPhase interface {
	Name() string
	Detect(pairs []Pair) []Proximity
	Reset()
}

// BVHNarrowPhase walks the two bodies' bounding trees and runs the
// intersector of each overlapping element pair.
type BVHNarrowPhase struct {
	scene  *scene.Scene
	table  *IntersectorTable
	filter *LocalFeatureFilter
	rep    *diag.Reporter
	sched  *scheduler.TaskScheduler
	params Params

	prevNormals map[ContactID]mgl64.Vec3
}

// NewBVHNarrowPhase creates a narrow phase. filter and sched may be nil.
func NewBVHNarrowPhase(sc *scene.Scene, rep *diag.Reporter, params Params, filter *LocalFeatureFilter, sched *scheduler.TaskScheduler) *BVHNarrowPhase {
	return &BVHNarrowPhase{
		scene:       sc,
		table:       DefaultIntersectors(),
		filter:      filter,
		rep:         rep,
		sched:       sched,
		params:      params,
		prevNormals: make(map[ContactID]mgl64.Vec3),
	}
}

func (np *BVHNarrowPhase) Name() string { return "bvh" }

// Params returns the thresholds in use.
func (np *BVHNarrowPhase) Params() Params { return np.params }

// Table exposes the intersector table.
func (np *BVHNarrowPhase) Table() *IntersectorTable { return np.table }

// Reset forgets previous normals.
func (np *BVHNarrowPhase) Reset() {
	clear(np.prevNormals)
}

type resolvedPair struct {
	pair   Pair
	a, b   *components.Collision
	qa, qb mgl64.Quat
}

func (np *BVHNarrowPhase) Detect(pairs []Pair) []Proximity {
	// resolve serially: warnings and cache builds happen here, not in workers
	work := make([]*resolvedPair, len(pairs))
	for i, p := range pairs {
		ba, errA := np.scene.Body(p.A)
		bb, errB := np.scene.Body(p.B)
		if errA != nil || errB != nil {
			continue
		}
		if !np.table.Supports(ba.Kind, bb.Kind) {
			kp, _ := geom.KindPair{A: ba.Kind, B: bb.Kind}.Normalized()
			np.rep.WarnOnce("intersector:"+kp.String(), diag.Consistency, "narrowphase",
				"no intersector for element pair, skipped", "pair", kp.String())
			continue
		}
		oa, errA := np.scene.Object(ba.Owner)
		ob, errB := np.scene.Object(bb.Owner)
		if errA != nil || errB != nil {
			continue
		}
		if np.filter != nil {
			np.filter.Prepare(p.A, ba)
			np.filter.Prepare(p.B, bb)
		}
		work[i] = &resolvedPair{
			pair: p, a: ba, b: bb,
			qa: frameOf(oa.Object.State, mechanics.Position),
			qb: frameOf(ob.Object.State, mechanics.Position),
		}
	}

	results := make([][]Proximity, len(pairs))
	run := func(start, end int) {
		for i := start; i < end; i++ {
			if work[i] != nil {
				results[i] = np.detectPair(work[i])
			}
		}
	}
	if np.sched != nil {
		np.sched.ParallelFor(len(pairs), run)
	} else {
		run(0, len(pairs))
	}

	var out []Proximity
	for _, r := range results {
		out = append(out, r...)
	}

	clear(np.prevNormals)
	for _, p := range out {
		np.prevNormals[p.ID] = p.Normal
	}
	return out
}

func sharesVertex(a, b geom.Element, n int) bool {
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if a.V[i] == b.V[j] {
				return true
			}
		}
	}
	return false
}

func (np *BVHNarrowPhase) detectPair(rp *resolvedPair) []Proximity {
	alarm := np.params.AlarmDistance
	ba, bb := rp.a, rp.b
	self := rp.pair.A == rp.pair.B

	var elems [][2]int
	collect := func(ea, eb int) { elems = append(elems, [2]int{ea, eb}) }
	if self {
		bvh.SelfOverlapping(&ba.Tree, alarm, collect)
	} else {
		bvh.Overlapping(&ba.Tree, &bb.Tree, alarm, collect)
	}
	slices.SortFunc(elems, func(x, y [2]int) int {
		if c := cmp.Compare(x[0], y[0]); c != 0 {
			return c
		}
		return cmp.Compare(x[1], y[1])
	})

	var out []Proximity
	for _, ep := range elems {
		ea, eb := ep[0], ep[1]
		elA, elB := ba.Elements[ea], bb.Elements[eb]
		if self && sharesVertex(elA, elB, ba.Kind.VertexCount()) {
			continue
		}
		sa := shapeOf(ba, elA, rp.qa)
		sb := shapeOf(bb, elB, rp.qb)
		h, ok := np.table.test(&sa, &sb, alarm)
		if !ok {
			continue
		}

		ia, subA := elA.Identity(ea)
		ib, subB := elB.Identity(eb)
		id := MakeContactID(
			Feature{Ordinal: rp.pair.OrdinalA, Index: ia, Sub: subA},
			Feature{Ordinal: rp.pair.OrdinalB, Index: ib, Sub: subB},
		)

		if h.degenerate {
			if prev, ok := np.prevNormals[id]; ok {
				h.normal = prev
			} else {
				h.normal = DefaultNormal
			}
		}

		if np.filter != nil {
			if !np.filter.Valid(rp.pair.A, ba, ea, h.normal) || !np.filter.Valid(rp.pair.B, bb, eb, h.normal.Mul(-1)) {
				continue
			}
		}

		out = append(out, Proximity{
			A:        ElementRef{Body: rp.pair.A, Index: ea},
			B:        ElementRef{Body: rp.pair.B, Index: eb},
			KindA:    ba.Kind,
			KindB:    bb.Kind,
			PointA:   h.pa,
			PointB:   h.pb,
			Normal:   h.normal,
			Distance: h.distance,
			LocalA:   h.la,
			LocalB:   h.lb,
			ID:       id,
		})
	}
	return out
}
