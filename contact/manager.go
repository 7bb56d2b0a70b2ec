package contact

import (
	"cmp"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"

	"github.com/pthm-cable/freemotion/collision"
	"github.com/pthm-cable/freemotion/diag"
	"github.com/pthm-cable/freemotion/geom"
	"github.com/pthm-cable/freemotion/scene"
)

// Point is the persistent record of one contact id.
type Point struct {
	ID         collision.ContactID
	ElemA      int
	ElemB      int
	AuxA, AuxB AuxIndex

	PointA, PointB mgl64.Vec3
	Normal         mgl64.Vec3
	Distance       float64

	// Lambda is the last solved impulse (normal, tangent 1, tangent 2),
	// reused to warm start the solver.
	Lambda [3]float64
	// Offset is the first constraint row of this point in the current
	// solve, -1 when the point has no rows.
	Offset int

	// Missed counts consecutive steps without detection.
	Missed   int
	detected bool
}

// Active reports whether the point was detected this step.
func (p *Point) Active() bool { return p.detected }

// Contact is the persistent interaction between two bodies.
type Contact struct {
	A, B         scene.Handle
	OrdA, OrdB   int
	KindA, KindB geom.Kind
	Response     ResponseKind
	Friction     float64

	// SimulatedA and SimulatedB tell whether each side may be corrected.
	SimulatedA, SimulatedB bool

	MapperA, MapperB *Mapper

	points []*Point
}

// Points returns every record, detected ones first in detection order.
func (c *Contact) Points() []*Point {
	return c.points
}

// ActivePoints returns the points detected this step.
func (c *Contact) ActivePoints() []*Point {
	return lo.Filter(c.points, func(p *Point, _ int) bool { return p.detected })
}

// RemoveResponse deactivates a point: it produces no rows until detected
// again, but keeps its aux points and last impulse.
func (c *Contact) RemoveResponse(p *Point) {
	p.detected = false
	p.Offset = -1
}

type pairKey struct {
	a, b scene.Handle
}

// Options holds the manager parameters.
type Options struct {
	Friction         float64
	Persistence      int
	PenaltyStiffness float64
	ContactDistance  float64
}

// Manager owns the live contacts of a scene.
type Manager struct {
	scene *scene.Scene
	table *ResponseTable
	rep   *diag.Reporter
	opts  Options

	contacts map[pairKey]*Contact
	index    map[collision.ContactID]*Contact
	ordered  []*Contact
}

// NewManager creates a manager resolving responses through table.
func NewManager(sc *scene.Scene, table *ResponseTable, rep *diag.Reporter, opts Options) *Manager {
	opts.Persistence = max(opts.Persistence, 1)
	return &Manager{
		scene:    sc,
		table:    table,
		rep:      rep,
		opts:     opts,
		contacts: make(map[pairKey]*Contact),
		index:    make(map[collision.ContactID]*Contact),
	}
}

// Table returns the response table.
func (m *Manager) Table() *ResponseTable {
	return m.table
}

// Options returns the manager parameters.
func (m *Manager) Options() Options {
	return m.opts
}

// CreateContacts matches this step's proximities against the live contacts.
// New ids create points (and contacts), known ids are updated, ids not seen
// lose their response and are dropped after Persistence missed steps.
func (m *Manager) CreateContacts(ps []collision.Proximity) {
	for _, c := range m.ordered {
		for _, p := range c.points {
			p.detected = false
		}
	}

	for i := range ps {
		m.addProximity(&ps[i])
	}

	for _, c := range m.ordered {
		kept := c.points[:0]
		for _, p := range c.points {
			if !p.detected {
				c.RemoveResponse(p)
				p.Missed++
				if p.Missed >= m.opts.Persistence {
					m.reportAux("release", p, c.MapperA.Release(p.AuxA))
					m.reportAux("release", p, c.MapperB.Release(p.AuxB))
					delete(m.index, p.ID)
					continue
				}
			}
			kept = append(kept, p)
		}
		c.points = kept
		// detected points first, each group in its previous relative order
		slices.SortStableFunc(c.points, func(x, y *Point) int {
			switch {
			case x.detected == y.detected:
				return 0
			case x.detected:
				return -1
			}
			return 1
		})
	}

	m.prune()
}

func (m *Manager) addProximity(p *collision.Proximity) {
	if c, ok := m.index[p.ID]; ok {
		for _, pt := range c.points {
			if pt.ID != p.ID {
				continue
			}
			if pt.detected {
				// one record per id per step
				return
			}
			m.updatePoint(c, pt, p)
			return
		}
	}

	resp := m.table.Lookup(p.KindA, p.KindB)
	switch resp {
	case Unsupported:
		kp, _ := geom.KindPair{A: p.KindA, B: p.KindB}.Normalized()
		m.rep.WarnOnce("response:"+kp.String(), diag.Consistency, "contact",
			"no contact response for element pair, skipped", "pair", kp.String())
		return
	case Ignore:
		return
	}

	key := pairKey{p.A.Body, p.B.Body}
	c, ok := m.contacts[key]
	if !ok {
		c = m.newContact(p, resp)
		if c == nil {
			return
		}
		m.contacts[key] = c
		m.ordered = append(m.ordered, c)
	}

	ba, errA := m.scene.Body(p.A.Body)
	bb, errB := m.scene.Body(p.B.Body)
	if errA != nil || errB != nil {
		return
	}
	pt := &Point{
		ID:     p.ID,
		AuxA:   c.MapperA.AddPoint(p.PointA, ba.Elements[p.A.Index], p.KindA, p.LocalA),
		AuxB:   c.MapperB.AddPoint(p.PointB, bb.Elements[p.B.Index], p.KindB, p.LocalB),
		Offset: -1,
	}
	m.fill(pt, p)
	c.points = append(c.points, pt)
	m.index[p.ID] = c
}

func (m *Manager) updatePoint(c *Contact, pt *Point, p *collision.Proximity) {
	ba, errA := m.scene.Body(p.A.Body)
	bb, errB := m.scene.Body(p.B.Body)
	if errA != nil || errB != nil {
		return
	}
	if err := c.MapperA.Set(pt.AuxA, p.PointA, ba.Elements[p.A.Index], p.KindA, p.LocalA); err != nil {
		m.reportAux("set", pt, err)
		pt.AuxA = c.MapperA.AddPoint(p.PointA, ba.Elements[p.A.Index], p.KindA, p.LocalA)
	}
	if err := c.MapperB.Set(pt.AuxB, p.PointB, bb.Elements[p.B.Index], p.KindB, p.LocalB); err != nil {
		m.reportAux("set", pt, err)
		pt.AuxB = c.MapperB.AddPoint(p.PointB, bb.Elements[p.B.Index], p.KindB, p.LocalB)
	}
	m.fill(pt, p)
}

// reportAux warns once per point and operation about an aux index its
// mapper no longer issues, which happens when a mapper is resized or
// cleaned up outside the manager.
func (m *Manager) reportAux(op string, p *Point, err error) {
	if err == nil {
		return
	}
	m.rep.WarnOnce("aux_"+op+":"+p.ID.String(), diag.Consistency, "contact",
		"stale aux point", "op", op, "point", p.ID.String(), "error", err)
}

func (m *Manager) fill(pt *Point, p *collision.Proximity) {
	pt.ElemA, pt.ElemB = p.A.Index, p.B.Index
	pt.PointA, pt.PointB = p.PointA, p.PointB
	pt.Normal = p.Normal
	pt.Distance = p.Distance
	pt.Missed = 0
	pt.detected = true
}

func (m *Manager) newContact(p *collision.Proximity, resp ResponseKind) *Contact {
	ba, err := m.scene.Body(p.A.Body)
	if err != nil {
		return nil
	}
	bb, err := m.scene.Body(p.B.Body)
	if err != nil {
		return nil
	}
	oa, err := m.scene.Object(ba.Owner)
	if err != nil {
		return nil
	}
	ob, err := m.scene.Object(bb.Owner)
	if err != nil {
		return nil
	}
	return &Contact{
		A: p.A.Body, B: p.B.Body,
		OrdA: ba.Ordinal, OrdB: bb.Ordinal,
		KindA: p.KindA, KindB: p.KindB,
		Response:   resp,
		Friction:   m.opts.Friction,
		SimulatedA: ba.Simulated,
		SimulatedB: bb.Simulated,
		MapperA:    NewMapper(oa.Object),
		MapperB:    NewMapper(ob.Object),
	}
}

// prune destroys contacts without points or with an inactive or removed
// body, then restores the (OrdA, OrdB) order.
func (m *Manager) prune() {
	kept := m.ordered[:0]
	for _, c := range m.ordered {
		if len(c.points) > 0 && m.bodyLive(c.A) && m.bodyLive(c.B) {
			kept = append(kept, c)
			continue
		}
		m.destroy(c)
	}
	m.ordered = kept
	slices.SortFunc(m.ordered, func(x, y *Contact) int {
		if c := cmp.Compare(x.OrdA, y.OrdA); c != 0 {
			return c
		}
		return cmp.Compare(x.OrdB, y.OrdB)
	})
}

func (m *Manager) bodyLive(h scene.Handle) bool {
	b, err := m.scene.Body(h)
	return err == nil && b.Active
}

func (m *Manager) destroy(c *Contact) {
	for _, p := range c.points {
		delete(m.index, p.ID)
	}
	c.points = nil
	c.MapperA.Cleanup()
	c.MapperB.Cleanup()
	delete(m.contacts, pairKey{c.A, c.B})
}

// Prune drops contacts whose bodies became inactive or were removed since
// the last detection.
func (m *Manager) Prune() {
	m.prune()
}

// Contacts returns the live contacts ordered by body ordinals.
func (m *Manager) Contacts() []*Contact {
	return m.ordered
}

// Lookup returns the contact holding id.
func (m *Manager) Lookup(id collision.ContactID) (*Contact, bool) {
	c, ok := m.index[id]
	return c, ok
}

// Len returns the number of live contacts.
func (m *Manager) Len() int {
	return len(m.ordered)
}

// NumActivePoints returns the number of points detected this step.
func (m *Manager) NumActivePoints() int {
	n := 0
	for _, c := range m.ordered {
		for _, p := range c.points {
			if p.detected {
				n++
			}
		}
	}
	return n
}

// ContactCount returns how many active points involve body h.
func (m *Manager) ContactCount(h scene.Handle) int {
	return lo.SumBy(m.ordered, func(c *Contact) int {
		if c.A != h && c.B != h {
			return 0
		}
		return len(c.ActivePoints())
	})
}

// Reset drops every contact.
func (m *Manager) Reset() {
	for _, c := range m.ordered {
		m.destroy(c)
	}
	m.ordered = m.ordered[:0]
	clear(m.contacts)
	clear(m.index)
}

// RefreshMappers propagates current and free motion to every aux point.
func (m *Manager) RefreshMappers() {
	for _, c := range m.ordered {
		c.MapperA.Update()
		c.MapperA.UpdateXfree()
		c.MapperB.Update()
		c.MapperB.UpdateXfree()
	}
}

// ApplyPenalty adds the spring force k (d0 - d) n of every active penalty
// point closer than the contact distance to the external forces of the
// simulated sides. It returns the number of points that pushed.
func (m *Manager) ApplyPenalty() int {
	k, d0 := m.opts.PenaltyStiffness, m.opts.ContactDistance
	n := 0
	for _, c := range m.ordered {
		if c.Response != Penalty {
			continue
		}
		for _, p := range c.points {
			if !p.detected || p.Distance >= d0 {
				continue
			}
			f := p.Normal.Mul(k * (d0 - p.Distance))
			if c.SimulatedA {
				m.reportAux("force", p, c.MapperA.ApplyForce(p.AuxA, f.Mul(-1)))
			}
			if c.SimulatedB {
				m.reportAux("force", p, c.MapperB.ApplyForce(p.AuxB, f))
			}
			n++
		}
	}
	return n
}
