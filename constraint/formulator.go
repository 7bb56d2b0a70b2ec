package constraint

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/freemotion/contact"
	"github.com/pthm-cable/freemotion/mechanics"
)

// Order selects which quantity the rows constrain.
type Order uint8

const (
	// PosAndVel constrains free positions; corrections move positions and
	// velocities together.
	PosAndVel Order = iota
	// VelOnly constrains free velocities with a gap term; positions are
	// integrated from the corrected velocities.
	VelOnly
)

func (o Order) String() string {
	if o == VelOnly {
		return "vel"
	}
	return "pos_and_vel"
}

// Formulator turns live contacts into constraint rows.
type Formulator struct {
	Order           Order
	ContactDistance float64
	DT              float64
}

// Tangents returns an orthonormal basis of the plane orthogonal to n.
func Tangents(n mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	axis := mgl64.Vec3{1, 0, 0}
	if math.Abs(n[0]) > 0.7 {
		axis = mgl64.Vec3{0, 1, 0}
	}
	t1 := n.Cross(axis).Normalize()
	t2 := n.Cross(t1)
	return t1, t2
}

type side struct {
	mapper *contact.Mapper
	aux    contact.AuxIndex
	offset int
	ok     bool
}

func (f *Formulator) side(m *contact.Mapper, aux contact.AuxIndex, simulated bool, layout *Layout) side {
	s := side{mapper: m, aux: aux}
	if !simulated {
		return s
	}
	s.offset, s.ok = layout.Offset(m.Object())
	return s
}

// jacobian appends sign*Jᵗdir entries of both sides, in global DOFs.
func jacobian(a, b side, dir mgl64.Vec3) []Entry {
	var out []Entry
	for _, s := range [2]struct {
		side
		sign float64
	}{{a, -1}, {b, 1}} {
		if !s.ok {
			continue
		}
		es, err := s.mapper.ApplyJT(s.aux, dir.Mul(s.sign))
		if err != nil {
			continue
		}
		for _, e := range es {
			out = append(out, Entry{DOF: s.offset + e.DOF, Value: e.Value})
		}
	}
	return out
}

// relative returns pB - pA of the aux points for the given buffer.
func relative(a, b side, pos mechanics.VecID) mgl64.Vec3 {
	var pa, pb mgl64.Vec3
	if pos == mechanics.Position || pos == mechanics.FreePosition {
		pa, _ = a.mapper.Position(a.aux, pos)
		pb, _ = b.mapper.Position(b.aux, pos)
	} else {
		pa, _ = a.mapper.Velocity(a.aux, pos)
		pb, _ = b.mapper.Velocity(b.aux, pos)
	}
	return pb.Sub(pa)
}

// Build appends rows for every active point of every contact with a
// constraint response, in contact order. Each point's Offset is set to its
// first row (-1 when it gets none). Mappers must be refreshed beforehand.
// It returns the rows and the initial impulses from the points' last values.
func (f *Formulator) Build(contacts []*contact.Contact, layout *Layout) ([]Row, []float64) {
	var rows []Row
	var lambda []float64
	for _, c := range contacts {
		nrows := c.Response.Rows()
		for _, p := range c.Points() {
			p.Offset = -1
			if nrows == 0 || !p.Active() {
				continue
			}
			a := f.side(c.MapperA, p.AuxA, c.SimulatedA, layout)
			b := f.side(c.MapperB, p.AuxB, c.SimulatedB, layout)
			if !a.ok && !b.ok {
				continue
			}
			n := p.Normal
			jn := jacobian(a, b, n)
			if len(jn) == 0 {
				continue
			}

			head := len(rows)
			p.Offset = head
			normal := Row{Entries: jn, Violation: f.normalViolation(a, b, n, p.Distance), Kind: Unilateral, Head: head}
			if c.Response == contact.Stick {
				normal.Kind = Bilateral
			}
			if c.Response == contact.Friction {
				normal.Mu = c.Friction
			}
			rows = append(rows, normal)
			lambda = append(lambda, p.Lambda[0])
			if nrows == 1 {
				continue
			}

			t1, t2 := Tangents(n)
			for k, t := range [2]mgl64.Vec3{t1, t2} {
				kind := Tangent
				if c.Response == contact.Stick {
					kind = Bilateral
				}
				rows = append(rows, Row{
					Entries:   jacobian(a, b, t),
					Violation: f.tangentViolation(a, b, t),
					Kind:      kind,
					Head:      head,
				})
				lambda = append(lambda, p.Lambda[1+k])
			}
		}
	}
	return rows, lambda
}

func (f *Formulator) normalViolation(a, b side, n mgl64.Vec3, d float64) float64 {
	if f.Order == VelOnly {
		dt := f.DT
		if dt <= 0 {
			dt = 1
		}
		return n.Dot(relative(a, b, mechanics.FreeVelocity)) + (d-f.ContactDistance)/dt
	}
	return n.Dot(relative(a, b, mechanics.FreePosition)) - f.ContactDistance
}

// tangentViolation is the relative tangential motion over the step.
func (f *Formulator) tangentViolation(a, b side, t mgl64.Vec3) float64 {
	if f.Order == VelOnly {
		return t.Dot(relative(a, b, mechanics.FreeVelocity))
	}
	return t.Dot(relative(a, b, mechanics.FreePosition).Sub(relative(a, b, mechanics.Position)))
}

// StoreLambda writes solved impulses back to the points for warm starting.
func StoreLambda(contacts []*contact.Contact, lambda []float64) {
	for _, c := range contacts {
		nrows := c.Response.Rows()
		for _, p := range c.Points() {
			if p.Offset < 0 {
				continue
			}
			for k := 0; k < nrows && p.Offset+k < len(lambda); k++ {
				p.Lambda[k] = lambda[p.Offset+k]
			}
		}
	}
}
