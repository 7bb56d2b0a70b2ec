package main

import (
	"fmt"
	"math/rand"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/freemotion/components"
	"github.com/pthm-cable/freemotion/config"
	"github.com/pthm-cable/freemotion/geom"
	"github.com/pthm-cable/freemotion/mechanics"
	"github.com/pthm-cable/freemotion/scene"
)

// DemoOptions sizes the demo scene.
type DemoOptions struct {
	Seed    int64
	Spheres int
	Boxes   int

	// Response replaces contact.response for the run. Empty keeps the
	// configured one.
	Response string

	TerrainCells  int     // cells per side
	TerrainSize   float64 // side length
	TerrainHeight float64 // peak noise displacement
	RimHeight     float64 // lift of the border ring, keeps sliding bodies on the mesh

	ClothCells int
	ClothSize  float64
}

// DefaultDemoOptions returns a small scene that settles in a few seconds.
func DefaultDemoOptions(seed int64) DemoOptions {
	return DemoOptions{
		Seed:          seed,
		Spheres:       6,
		Boxes:         3,
		Response:      "friction",
		TerrainCells:  16,
		TerrainSize:   8,
		TerrainHeight: 0.25,
		RimHeight:     0.5,
		ClothCells:    6,
		ClothSize:     1.2,
	}
}

// buildDemo fills sc with static rimmed terrain and an SDF obstacle, then
// drops rigid boxes, spheres and a spring cloth above them.
func buildDemo(sc *scene.Scene, cfg *config.Config, opts DemoOptions) error {
	rng := rand.New(rand.NewSource(opts.Seed))
	gravity := mechanics.Gravity{G: cfg.Derived.Gravity}

	if err := addTerrain(sc, opts); err != nil {
		return err
	}
	if err := addObstacle(sc); err != nil {
		return err
	}

	half := opts.TerrainSize / 2
	drop := func(y float64) mgl64.Vec3 {
		// keep clear of the borders so nothing slides off the mesh
		return mgl64.Vec3{
			(rng.Float64() - 0.5) * half,
			y,
			(rng.Float64() - 0.5) * half,
		}
	}

	for i := 0; i < opts.Spheres; i++ {
		r := 0.1 + 0.1*rng.Float64()
		if err := addSphere(sc, gravity, fmt.Sprintf("sphere-%d", i), drop(1.5+0.4*float64(i)), r); err != nil {
			return err
		}
	}
	for i := 0; i < opts.Boxes; i++ {
		h := 0.1 + 0.1*rng.Float64()
		q := mgl64.QuatRotate(rng.Float64()*mgl64.DegToRad(30), mgl64.Vec3{1, 0, 1}.Normalize())
		if err := addBox(sc, gravity, fmt.Sprintf("box-%d", i), drop(2+0.5*float64(i)), q, mgl64.Vec3{h, h, h}); err != nil {
			return err
		}
	}
	if opts.ClothCells > 0 {
		if err := addCloth(sc, gravity, opts); err != nil {
			return err
		}
	}
	return nil
}

// terrainHeight samples two octaves of simplex noise.
func terrainHeight(noise opensimplex.Noise, x, z, amplitude float64) float64 {
	return amplitude * (noise.Eval2(x*0.3, z*0.3) + 0.5*noise.Eval2(x*0.9, z*0.9)) / 1.5
}

func addTerrain(sc *scene.Scene, opts DemoOptions) error {
	n := opts.TerrainCells
	spacing := opts.TerrainSize / float64(n)
	origin := mgl64.Vec3{-opts.TerrainSize / 2, 0, -opts.TerrainSize / 2}
	verts, topo := geom.GridMesh(n, n, spacing, origin)

	noise := opensimplex.New(opts.Seed)
	for i, v := range verts {
		verts[i][1] = terrainHeight(noise, v[0], v[2], opts.TerrainHeight)
		// GridMesh lays vertices out row by row, n+1 per row
		row, col := i/(n+1), i%(n+1)
		if row == 0 || row == n || col == 0 || col == n {
			verts[i][1] += opts.RimHeight
		}
	}

	obj := mechanics.NewObject("terrain", mechanics.NewParticleState(verts), mechanics.UniformMass(1, len(verts)))
	h := sc.AddObject(obj, false)

	// Triangles alone miss contacts projecting onto convex ridges, so the
	// edges and vertices collide too.
	models := []struct {
		kind  geom.Kind
		elems []geom.Element
	}{
		{geom.KindTriangle, topo.TriangleElements()},
		{geom.KindLine, topo.EdgeElements()},
		{geom.KindPoint, topo.PointElements()},
	}
	for _, m := range models {
		body := components.CollisionDefaults("terrain-"+m.kind.String(), m.kind, m.elems)
		body.Topology = topo
		body.Simulated = false
		if _, err := sc.AddBody(h, body); err != nil {
			return fmt.Errorf("adding terrain %s model: %w", m.kind, err)
		}
	}
	return nil
}

// addObstacle places a static rounded slab described by a distance field.
func addObstacle(sc *scene.Scene) error {
	field, err := sdf.Box3D(v3.Vec{X: 1.2, Y: 0.4, Z: 1.2}, 0.1)
	if err != nil {
		return fmt.Errorf("building obstacle field: %w", err)
	}
	half := mgl64.Vec3{0.6, 0.2, 0.6}
	state := mechanics.NewRigidState(mgl64.Vec3{1.5, 0.5, 1.5}, mgl64.QuatIdent(), []mgl64.Vec3{{}})
	obj := mechanics.NewObject("obstacle", state, mechanics.RigidBoxMass(1, half))
	h := sc.AddObject(obj, false)

	body := components.CollisionDefaults("obstacle", geom.KindSDF, []geom.Element{geom.NewSDF(0)})
	body.SDF = field
	body.Simulated = false
	if _, err := sc.AddBody(h, body); err != nil {
		return fmt.Errorf("adding obstacle: %w", err)
	}
	return nil
}

func addSphere(sc *scene.Scene, gravity mechanics.Gravity, name string, at mgl64.Vec3, r float64) error {
	obj := mechanics.NewObject(name, mechanics.NewParticleState([]mgl64.Vec3{at}), mechanics.UniformMass(1, 1))
	obj.ForceFields = []mechanics.ForceField{gravity}
	obj.ODE = mechanics.EulerExplicit{}
	obj.Solver = mechanics.NewCholeskySolver(obj)
	h := sc.AddObject(obj, true)
	if _, err := sc.AddBody(h, components.CollisionDefaults(name, geom.KindSphere, []geom.Element{geom.NewSphere(0, r)})); err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	return nil
}

// addBox adds a rigid box colliding through its corner points.
func addBox(sc *scene.Scene, gravity mechanics.Gravity, name string, at mgl64.Vec3, q mgl64.Quat, half mgl64.Vec3) error {
	corners := make([]mgl64.Vec3, 0, 8)
	for _, x := range []float64{-1, 1} {
		for _, y := range []float64{-1, 1} {
			for _, z := range []float64{-1, 1} {
				corners = append(corners, mgl64.Vec3{x * half[0], y * half[1], z * half[2]})
			}
		}
	}
	obj := mechanics.NewObject(name, mechanics.NewRigidState(at, q, corners), mechanics.RigidBoxMass(1, half))
	obj.ForceFields = []mechanics.ForceField{gravity}
	obj.ODE = mechanics.EulerExplicit{}
	obj.Solver = mechanics.NewLumpedSolver(obj)
	h := sc.AddObject(obj, true)

	elems := make([]geom.Element, len(corners))
	for i := range corners {
		elems[i] = geom.NewPoint(i)
	}
	if _, err := sc.AddBody(h, components.CollisionDefaults(name, geom.KindPoint, elems)); err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	return nil
}

// addCloth hangs a square spring mesh above the terrain, colliding through
// its vertices. Two corners are pinned. The body carries no topology so its
// vertices collide from both sides.
func addCloth(sc *scene.Scene, gravity mechanics.Gravity, opts DemoOptions) error {
	n := opts.ClothCells
	origin := mgl64.Vec3{-opts.TerrainSize / 4, 1.2, -opts.TerrainSize / 4}
	verts, topo := geom.GridMesh(n, n, opts.ClothSize/float64(n), origin)

	var edges [][2]int
	for _, e := range topo.EdgeElements() {
		edges = append(edges, [2]int{e.V[0], e.V[1]})
	}

	state := mechanics.NewParticleState(verts)
	state.Fixed[0] = true
	state.Fixed[n] = true
	obj := mechanics.NewObject("cloth", state, mechanics.UniformMass(0.5, len(verts)))
	obj.ForceFields = []mechanics.ForceField{gravity, mechanics.NewSpringsFromEdges(verts, edges, 500, 1)}
	obj.ODE = mechanics.EulerImplicit{}
	obj.Solver = mechanics.NewCholeskySolver(obj)
	h := sc.AddObject(obj, true)

	body := components.CollisionDefaults("cloth", geom.KindPoint, topo.PointElements())
	if _, err := sc.AddBody(h, body); err != nil {
		return fmt.Errorf("adding cloth: %w", err)
	}
	return nil
}
