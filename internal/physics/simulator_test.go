package physics

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/lazypower/fungimap/internal/layout"
	"github.com/lazypower/fungimap/internal/observability"
	"github.com/lazypower/fungimap/internal/similarity"
)

var vp = layout.Viewport{Width: 1200, Height: 800}

// pair builds a graph with two free nodes of the given size at the given x
// positions on the horizontal midline.
func pair(t *testing.T, size, x1, x2 float64) (*layout.Graph, *layout.Node, *layout.Node) {
	t.Helper()
	g := layout.Build([]layout.Item{{ID: "a", Score: 0.5}, {ID: "b", Score: 0.5}}, vp, layout.DefaultOptions())
	a, _ := g.Node("a")
	b, _ := g.Node("b")
	for _, n := range []*layout.Node{a, b} {
		n.Size = size
		n.Y = 400
		n.VX, n.VY = 0, 0
	}
	a.X, b.X = x1, x2
	return g, a, b
}

func dist(a, b *layout.Node) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func newSim(t *testing.T, g *layout.Graph) *Simulator {
	t.Helper()
	return New(g, DefaultParams(), zaptest.NewLogger(t), nil)
}

func TestCollisionSeparatesOverlappingNodes(t *testing.T) {
	g, a, b := pair(t, 60, 590, 610)
	sim := newSim(t, g)

	for i := 1; i <= 300; i++ {
		sim.Tick()
		if i >= 60 && dist(a, b) < 59 {
			t.Fatalf("tick %d: distance %.2f < 59", i, dist(a, b))
		}
	}
	if d := dist(a, b); d < 59 {
		t.Errorf("final distance = %.2f, want >= 59", d)
	}
}

func TestSpringConvergence(t *testing.T) {
	g, a, b := pair(t, 60, 350, 850)
	g.AddSimilarity([]similarity.Pair{{A: "a", B: "b", Weight: 1}}, layout.KindSimilarity)
	sim := newSim(t, g)

	target := TargetDistance(1)
	if target != 120 {
		t.Fatalf("TargetDistance(1) = %v, want 120", target)
	}

	prev := dist(a, b)
	for i := 1; i <= 500; i++ {
		sim.Tick()
		d := dist(a, b)
		if d > prev+1e-9 {
			t.Fatalf("tick %d: distance grew %.4f -> %.4f", i, prev, d)
		}
		prev = d
	}
	if d := dist(a, b); math.Abs(d-target) > 0.1*target {
		t.Errorf("distance after 500 ticks = %.2f, want within 10%% of %v", d, target)
	}
}

func TestSpringOvershootBounded(t *testing.T) {
	g, a, b := pair(t, 60, 300, 900)
	g.AddSimilarity([]similarity.Pair{{A: "a", B: "b", Weight: 1}}, layout.KindSimilarity)
	sim := newSim(t, g)

	minD := math.Inf(1)
	for range 1500 {
		sim.Tick()
		minD = math.Min(minD, dist(a, b))
	}
	if minD < 0.95*120 {
		t.Errorf("overshoot: min distance %.2f below %.2f", minD, 0.95*120)
	}
}

func TestBoundaryInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	items := make([]layout.Item, 14)
	for i := range items {
		items[i] = layout.Item{ID: string(rune('a' + i)), Score: rng.Float64()}
	}
	g := layout.Build(items, vp, layout.DefaultOptions())
	for _, n := range g.Free() {
		n.X = rng.Float64() * vp.Width
		n.Y = rng.Float64() * vp.Height
		n.VX = (rng.Float64() - 0.5) * 200
		n.VY = (rng.Float64() - 0.5) * 200
	}
	g.AddSimilarity([]similarity.Pair{
		{A: "a", B: "b", Weight: 1},
		{A: "c", B: "d", Weight: 0.6},
		{A: "a", B: "n", Weight: 0.9},
	}, layout.KindSemantic)
	sim := newSim(t, g)

	for i := 1; i <= 400; i++ {
		sim.Tick()
		for _, n := range g.Free() {
			h := n.Size / 2
			if n.X < h || n.X > vp.Width-h || n.Y < h || n.Y > vp.Height-h {
				t.Fatalf("tick %d: node %s at (%.2f, %.2f) size %.1f outside viewport", i, n.ID, n.X, n.Y, n.Size)
			}
		}
	}
}

func TestAnchorNeverMoves(t *testing.T) {
	items := []layout.Item{{ID: "a", Score: 1}, {ID: "b", Score: 1}, {ID: "c", Score: 0.9}}
	g := layout.Build(items, vp, layout.DefaultOptions())
	anchor := g.Anchor()
	// pile everything onto the anchor
	for _, n := range g.Free() {
		n.X, n.Y = 601, 401
	}
	sim := newSim(t, g)
	sim.Run(200)

	if anchor.X != 600 || anchor.Y != 400 || anchor.VX != 0 || anchor.VY != 0 {
		t.Errorf("anchor moved to (%v, %v) v=(%v, %v)", anchor.X, anchor.Y, anchor.VX, anchor.VY)
	}
	if err := sim.BeginDrag(layout.AnchorID, 10, 10); !errors.Is(err, ErrAnchorNode) {
		t.Errorf("BeginDrag(anchor) err = %v, want ErrAnchorNode", err)
	}
}

func TestDraggingNodeIsNotSimulated(t *testing.T) {
	g, a, b := pair(t, 60, 500, 520)
	sim := newSim(t, g)

	if err := sim.BeginDrag("a", 500, 400); err != nil {
		t.Fatal(err)
	}
	sim.Run(30)

	if a.X != 500 || a.Y != 400 {
		t.Errorf("dragged node moved to (%v, %v)", a.X, a.Y)
	}
	if !a.Dragging {
		t.Error("node left dragging state without release")
	}
	if d := dist(a, b); d < 60 {
		t.Errorf("free node still overlaps dragged node: distance %.2f", d)
	}
}

func TestReleaseVelocity(t *testing.T) {
	g, a, _ := pair(t, 60, 200, 900)
	sim := newSim(t, g)

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(sim.BeginDrag("a", 300, 300))
	must(sim.DragTo("a", 310, 305))
	must(sim.DragTo("a", 330, 315))
	must(sim.EndDrag("a"))

	if a.Dragging {
		t.Fatal("still dragging after release")
	}
	if a.VX != 20 || a.VY != 10 {
		t.Errorf("release velocity = (%v, %v), want (20, 10)", a.VX, a.VY)
	}

	must(sim.BeginDrag("a", 300, 300))
	must(sim.DragTo("a", 400, 300))
	must(sim.EndDrag("a"))
	if a.VX != maxReleaseSpeed || a.VY != 0 {
		t.Errorf("fling velocity = (%v, %v), want (%v, 0)", a.VX, a.VY, float64(maxReleaseSpeed))
	}

	// moving off the release point on the next tick
	x := a.X
	sim.Tick()
	if a.X <= x {
		t.Errorf("released node did not continue: %v -> %v", x, a.X)
	}
}

func TestDragErrors(t *testing.T) {
	g, _, _ := pair(t, 60, 200, 900)
	sim := newSim(t, g)

	if err := sim.BeginDrag("ghost", 1, 1); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("unknown node err = %v", err)
	}
	if err := sim.BeginDrag("a", math.NaN(), 1); err == nil {
		t.Error("expected error for NaN pointer")
	}
	// move and release without a drag are no-ops
	if err := sim.DragTo("a", 1, 1); err != nil {
		t.Errorf("DragTo without drag: %v", err)
	}
	if err := sim.EndDrag("a"); err != nil {
		t.Errorf("EndDrag without drag: %v", err)
	}
}

func TestCoincidentNodesStayFinite(t *testing.T) {
	g, a, b := pair(t, 60, 400, 400)
	sim := newSim(t, g)
	sim.Run(100)

	for _, n := range []*layout.Node{a, b} {
		if !finite(n.X) || !finite(n.Y) || !finite(n.VX) || !finite(n.VY) {
			t.Fatalf("node %s not finite: %+v", n.ID, *n)
		}
	}
	if d := dist(a, b); d < 59 {
		t.Errorf("coincident nodes not separated: %.2f", d)
	}
}

func TestSanitizeNonFinite(t *testing.T) {
	g, a, b := pair(t, 60, 200, 1000)
	a.X = math.NaN()
	a.VY = math.Inf(1)
	sim := newSim(t, g)
	sim.Tick()

	for _, n := range []*layout.Node{a, b} {
		if !finite(n.X) || !finite(n.Y) || !finite(n.VX) || !finite(n.VY) {
			t.Fatalf("node %s not finite after tick: %+v", n.ID, *n)
		}
	}
}

func TestEnergySettles(t *testing.T) {
	g, a, b := pair(t, 60, 590, 610)
	a.VX, b.VX = -10, 10
	sim := newSim(t, g)

	start := sim.Energy()
	sim.Run(600)
	if end := sim.Energy(); end >= start || end > 0.01 {
		t.Errorf("energy %v -> %v, want settled", start, end)
	}
	if sim.Ticks() != 600 {
		t.Errorf("Ticks = %d, want 600", sim.Ticks())
	}
}

func TestSetGraphDropsStaleDrag(t *testing.T) {
	g, _, _ := pair(t, 60, 200, 900)
	sim := newSim(t, g)
	if err := sim.BeginDrag("a", 200, 400); err != nil {
		t.Fatal(err)
	}

	next := layout.Build([]layout.Item{{ID: "c", Score: 1}}, vp, layout.DefaultOptions())
	sim.SetGraph(next)
	if len(sim.drag) != 0 {
		t.Errorf("stale drag state kept: %v", sim.drag)
	}
	if sim.Graph() != next {
		t.Error("graph not swapped")
	}
}

func TestTickRecordsMetrics(t *testing.T) {
	g, _, _ := pair(t, 60, 200, 900)
	m := observability.NewCollector("test")
	sim := New(g, DefaultParams(), nil, m)
	sim.Run(3)

	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "test_physics_tick_seconds" {
			if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 3 {
				t.Errorf("tick samples = %d, want 3", got)
			}
			return
		}
	}
	t.Error("tick histogram not registered")
}

func TestParamsFromConfigDefaults(t *testing.T) {
	p := DefaultParams()
	if p.SpringStrength != 0.0005 || p.Damping != 0.92 || p.CollisionStrength != 0.05 || p.RepulsionCoeff != 0.008 {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestNilGraph(t *testing.T) {
	sim := New(nil, DefaultParams(), nil, nil)
	sim.Tick()
	if sim.Energy() != 0 {
		t.Error("energy of empty simulator")
	}
	if err := sim.BeginDrag("a", 0, 0); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("err = %v", err)
	}
}
