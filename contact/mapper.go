package contact

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/freemotion/geom"
	"github.com/pthm-cable/freemotion/mechanics"
)

// ErrStaleAux is returned for an aux index released by Release, Resize or
// Cleanup.
var ErrStaleAux = errors.New("stale aux index")

// AuxIndex addresses one auxiliary point of a Mapper. The zero value is
// never valid.
type AuxIndex struct {
	slot int32
	gen  uint64
}

// Slot returns the arena slot, for diagnostics.
func (a AuxIndex) Slot() int { return int(a.slot) }

// Entry is one sparse Jacobian coefficient over an object's local DOFs.
type Entry struct {
	DOF   int
	Value float64
}

// auxPoint is the mapping of one auxiliary point onto its object's DOFs.
// Particles use barycentric weights plus a constant offset for rounded
// elements; rigid frames use a body-frame offset from the center.
type auxPoint struct {
	gen     uint64
	nodes   [3]int
	weights [3]float64
	n       int
	offset  mgl64.Vec3
}

// Mapper holds the auxiliary contact points of one contact side and keeps
// their positions and velocities in sync with the owning object.
type Mapper struct {
	obj  *mechanics.Object
	next uint64

	slots []auxPoint

	// Mapped state, refreshed by Update and UpdateXfree.
	X, XFree []mgl64.Vec3
	V, VFree []mgl64.Vec3
}

// NewMapper creates a mapper onto obj.
func NewMapper(obj *mechanics.Object) *Mapper {
	return &Mapper{obj: obj}
}

// Object returns the mapped object.
func (m *Mapper) Object() *mechanics.Object {
	return m.obj
}

// Len returns the number of slots, issued or free.
func (m *Mapper) Len() int {
	return len(m.slots)
}

// Live returns the number of issued slots.
func (m *Mapper) Live() int {
	n := 0
	for _, s := range m.slots {
		if s.gen != 0 {
			n++
		}
	}
	return n
}

func (m *Mapper) build(world mgl64.Vec3, elem geom.Element, kind geom.Kind, local geom.Bary) auxPoint {
	s := m.obj.State
	var p auxPoint
	if s.Kind == mechanics.Rigid {
		p.offset = s.Q[0].Inverse().Rotate(world.Sub(s.X[0]))
		return p
	}
	p.n = kind.VertexCount()
	var mapped mgl64.Vec3
	for k := 0; k < p.n; k++ {
		p.nodes[k] = elem.V[k]
		p.weights[k] = local[k]
		mapped = mapped.Add(s.X[elem.V[k]].Mul(local[k]))
	}
	p.offset = world.Sub(mapped)
	return p
}

// AddPoint maps a new auxiliary point at world position world on element
// elem, with local coordinates local on that element, and returns its index.
// Free slots are reused lowest first.
func (m *Mapper) AddPoint(world mgl64.Vec3, elem geom.Element, kind geom.Kind, local geom.Bary) AuxIndex {
	p := m.build(world, elem, kind, local)
	m.next++
	p.gen = m.next

	slot := -1
	for i := range m.slots {
		if m.slots[i].gen == 0 {
			slot = i
			break
		}
	}
	if slot < 0 {
		slot = len(m.slots)
		m.slots = append(m.slots, auxPoint{})
		m.X = append(m.X, mgl64.Vec3{})
		m.XFree = append(m.XFree, mgl64.Vec3{})
		m.V = append(m.V, mgl64.Vec3{})
		m.VFree = append(m.VFree, mgl64.Vec3{})
	}
	m.slots[slot] = p
	m.X[slot] = world
	m.XFree[slot] = world
	return AuxIndex{slot: int32(slot), gen: p.gen}
}

// Set remaps an issued point to a new location, keeping its index.
func (m *Mapper) Set(idx AuxIndex, world mgl64.Vec3, elem geom.Element, kind geom.Kind, local geom.Bary) error {
	if err := m.check(idx); err != nil {
		return err
	}
	p := m.build(world, elem, kind, local)
	p.gen = idx.gen
	m.slots[idx.slot] = p
	m.X[idx.slot] = world
	return nil
}

func (m *Mapper) check(idx AuxIndex) error {
	if idx.gen == 0 || int(idx.slot) >= len(m.slots) || m.slots[idx.slot].gen != idx.gen {
		return ErrStaleAux
	}
	return nil
}

// Valid reports whether idx refers to an issued point.
func (m *Mapper) Valid(idx AuxIndex) bool {
	return m.check(idx) == nil
}

// Release frees one point. Its index becomes stale.
func (m *Mapper) Release(idx AuxIndex) error {
	if err := m.check(idx); err != nil {
		return err
	}
	m.slots[idx.slot] = auxPoint{}
	return nil
}

// Resize sets the number of slots. Shrinking invalidates the dropped
// indices; growing adds free slots.
func (m *Mapper) Resize(n int) {
	n = max(n, 0)
	for len(m.slots) < n {
		m.slots = append(m.slots, auxPoint{})
		m.X = append(m.X, mgl64.Vec3{})
		m.XFree = append(m.XFree, mgl64.Vec3{})
		m.V = append(m.V, mgl64.Vec3{})
		m.VFree = append(m.VFree, mgl64.Vec3{})
	}
	m.slots = m.slots[:n]
	m.X = m.X[:n]
	m.XFree = m.XFree[:n]
	m.V = m.V[:n]
	m.VFree = m.VFree[:n]
}

// Cleanup releases every point.
func (m *Mapper) Cleanup() {
	m.Resize(0)
}

func (m *Mapper) mapped(i int, pos, vel mechanics.VecID) (mgl64.Vec3, mgl64.Vec3) {
	p := &m.slots[i]
	s := m.obj.State
	if s.Kind == mechanics.Rigid {
		q := s.Q[0]
		if pos == mechanics.FreePosition {
			q = s.QFree[0]
		}
		arm := q.Rotate(p.offset)
		center := s.X[0]
		if pos == mechanics.FreePosition {
			center = s.XFree[0]
		}
		v := s.Buffer(vel)
		lin := mgl64.Vec3{v[0], v[1], v[2]}
		ang := mgl64.Vec3{v[3], v[4], v[5]}
		return center.Add(arm), lin.Add(ang.Cross(arm))
	}
	var x, v mgl64.Vec3
	for k := 0; k < p.n; k++ {
		x = x.Add(s.Vertex(pos, p.nodes[k]).Mul(p.weights[k]))
		v = v.Add(s.VertexVelocity(vel, p.nodes[k]).Mul(p.weights[k]))
	}
	return x.Add(p.offset), v
}

// Update propagates current positions and velocities to the issued points.
func (m *Mapper) Update() {
	for i := range m.slots {
		if m.slots[i].gen != 0 {
			m.X[i], m.V[i] = m.mapped(i, mechanics.Position, mechanics.Velocity)
		}
	}
}

// UpdateXfree propagates the free motion to the issued points.
func (m *Mapper) UpdateXfree() {
	for i := range m.slots {
		if m.slots[i].gen != 0 {
			m.XFree[i], m.VFree[i] = m.mapped(i, mechanics.FreePosition, mechanics.FreeVelocity)
		}
	}
}

// Position returns the mapped position of idx from the Position or
// FreePosition snapshot.
func (m *Mapper) Position(idx AuxIndex, id mechanics.VecID) (mgl64.Vec3, error) {
	if err := m.check(idx); err != nil {
		return mgl64.Vec3{}, err
	}
	if id == mechanics.FreePosition {
		return m.XFree[idx.slot], nil
	}
	return m.X[idx.slot], nil
}

// Velocity returns the mapped velocity of idx from the Velocity or
// FreeVelocity snapshot.
func (m *Mapper) Velocity(idx AuxIndex, id mechanics.VecID) (mgl64.Vec3, error) {
	if err := m.check(idx); err != nil {
		return mgl64.Vec3{}, err
	}
	if id == mechanics.FreeVelocity {
		return m.VFree[idx.slot], nil
	}
	return m.V[idx.slot], nil
}

// ApplyJT maps direction dir at point idx to the object's DOFs (Jᵗ dir).
// Entries on fixed DOFs are dropped. Rigid arms use the free orientation.
func (m *Mapper) ApplyJT(idx AuxIndex, dir mgl64.Vec3) ([]Entry, error) {
	if err := m.check(idx); err != nil {
		return nil, err
	}
	p := &m.slots[idx.slot]
	s := m.obj.State
	var out []Entry
	add := func(dof int, v float64) {
		if v != 0 && !s.FixedDOF(dof) {
			out = append(out, Entry{DOF: dof, Value: v})
		}
	}
	if s.Kind == mechanics.Rigid {
		arm := s.QFree[0].Rotate(p.offset)
		torque := arm.Cross(dir)
		for d := 0; d < 3; d++ {
			add(d, dir[d])
		}
		for d := 0; d < 3; d++ {
			add(3+d, torque[d])
		}
		return out, nil
	}
	for k := 0; k < p.n; k++ {
		if p.weights[k] == 0 {
			continue
		}
		for d := 0; d < 3; d++ {
			add(3*p.nodes[k]+d, p.weights[k]*dir[d])
		}
	}
	return out, nil
}

// ApplyForce accumulates force f at point idx into the object's external
// forces for the next free motion.
func (m *Mapper) ApplyForce(idx AuxIndex, f mgl64.Vec3) error {
	entries, err := m.ApplyJT(idx, f)
	if err != nil {
		return err
	}
	for _, e := range entries {
		m.obj.AddExternalForce(e.DOF, e.Value)
	}
	return nil
}
