// Package physics runs the force-directed simulation that keeps bubbles
// spread out, pulled toward related bubbles, and inside the viewport.
package physics

import (
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/fungimap/internal/config"
	"github.com/lazypower/fungimap/internal/layout"
	"github.com/lazypower/fungimap/internal/observability"
)

const (
	safePadding      = 20  // repulsion band beyond touching
	collisionPadding = 5   // collision band beyond touching
	closingDamping   = 0.3 // fraction of closing speed removed on contact
	springBase       = 120 // rest length of a weight-1 connection
	springSpan       = 150 // extra rest length of a weight-0 connection
	maxReleaseSpeed  = 30  // px per tick
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrAnchorNode  = errors.New("anchor node cannot be dragged")
)

// Params are the force constants.
type Params struct {
	RepulsionCoeff     float64
	SpringStrength     float64
	RepulsionDistance  float64
	RepulsionStrength  float64
	BoundaryAttraction float64
	Margin             float64
	Damping            float64
	CollisionStrength  float64
}

func DefaultParams() Params {
	return ParamsFromConfig(config.Default().Physics)
}

func ParamsFromConfig(c config.PhysicsConfig) Params {
	return Params{
		RepulsionCoeff:     c.RepulsionCoeff,
		SpringStrength:     c.SpringStrength,
		RepulsionDistance:  c.RepulsionDistance,
		RepulsionStrength:  c.RepulsionStrength,
		BoundaryAttraction: c.BoundaryAttraction,
		Margin:             c.Margin,
		Damping:            c.Damping,
		CollisionStrength:  c.CollisionStrength,
	}
}

// TargetDistance is the spring rest length for a connection weight.
func TargetDistance(weight float64) float64 {
	return springBase + (1-weight)*springSpan
}

// Simulator advances a layout.Graph one frame at a time. It is not safe for
// concurrent use; callers serialize Tick with graph mutations.
type Simulator struct {
	graph   *layout.Graph
	params  Params
	logger  *zap.Logger
	metrics *observability.Collector

	// last pointer delta per dragged node
	drag  map[string][2]float64
	ticks int
}

func New(g *layout.Graph, p Params, logger *zap.Logger, metrics *observability.Collector) *Simulator {
	return &Simulator{
		graph:   g,
		params:  p,
		logger:  observability.OrNop(logger),
		metrics: metrics,
		drag:    make(map[string][2]float64),
	}
}

// SetGraph swaps in a rebuilt graph. Drag state for nodes that no longer
// exist is dropped.
func (s *Simulator) SetGraph(g *layout.Graph) {
	s.graph = g
	for id := range s.drag {
		if n, ok := g.Node(id); !ok || !n.Dragging {
			delete(s.drag, id)
		}
	}
}

func (s *Simulator) Graph() *layout.Graph { return s.graph }

// Ticks is the number of ticks run since construction.
func (s *Simulator) Ticks() int { return s.ticks }

// Run advances n ticks.
func (s *Simulator) Run(n int) {
	for range n {
		s.Tick()
	}
}

// Tick advances the simulation by one frame. The anchor is never written
// and dragging nodes only move by pointer input.
func (s *Simulator) Tick() {
	if s.graph == nil {
		return
	}
	start := time.Now()
	nodes := s.graph.Free()

	s.applyPairForces(nodes)
	s.applyBoundary(nodes)
	s.integrate(nodes)
	s.resolveCollisions(nodes)
	for _, n := range nodes {
		if n.Dragging {
			continue
		}
		layout.ClampToViewport(n, s.graph.Viewport)
		s.sanitize(n)
	}

	s.ticks++
	s.metrics.ObserveTick(time.Since(start))
}

func (s *Simulator) applyPairForces(nodes []*layout.Node) {
	p := s.params
	for i := 0; i < len(nodes); i++ {
		a := nodes[i]
		if a.Dragging {
			continue
		}
		for j := i + 1; j < len(nodes); j++ {
			b := nodes[j]
			if b.Dragging {
				continue
			}
			dx, dy := b.X-a.X, b.Y-a.Y
			dist := math.Hypot(dx, dy)
			if dist == 0 || math.IsNaN(dist) || math.IsInf(dist, 0) {
				continue
			}
			nx, ny := dx/dist, dy/dist

			// positive pulls together, negative pushes apart
			var f float64
			minSafe := (a.Size+b.Size)/2 + safePadding
			if dist < minSafe {
				f = -(minSafe - dist) * p.RepulsionCoeff
			} else if w, ok := s.graph.Connection(a.ID, b.ID); ok {
				f = (dist - TargetDistance(w)) * p.SpringStrength * w
			} else if dist < p.RepulsionDistance {
				f = -(p.RepulsionDistance - dist) * p.RepulsionStrength
			} else {
				continue
			}

			a.VX += nx * f
			a.VY += ny * f
			b.VX -= nx * f
			b.VY -= ny * f
		}
	}
}

func (s *Simulator) applyBoundary(nodes []*layout.Node) {
	vp := s.graph.Viewport
	cx, cy := vp.Center()
	m := s.params.Margin
	k := s.params.BoundaryAttraction
	for _, n := range nodes {
		if n.Dragging {
			continue
		}
		if n.X < m || n.X > vp.Width-m {
			n.VX += (cx - n.X) * k
		}
		if n.Y < m || n.Y > vp.Height-m {
			n.VY += (cy - n.Y) * k
		}
	}
}

func (s *Simulator) integrate(nodes []*layout.Node) {
	vp := s.graph.Viewport
	for _, n := range nodes {
		if n.Dragging {
			continue
		}
		n.VX *= s.params.Damping
		n.VY *= s.params.Damping
		n.X += n.VX
		n.Y += n.VY
		layout.ClampToViewport(n, vp)
	}
}

// resolveCollisions pushes apart pairs inside the collision band. Pairs
// that actually overlap are separated in full; pairs in the padding band
// move by CollisionStrength of the gap. A free node touching a dragged one
// takes the whole correction.
func (s *Simulator) resolveCollisions(nodes []*layout.Node) {
	for i := 0; i < len(nodes); i++ {
		a := nodes[i]
		for j := i + 1; j < len(nodes); j++ {
			b := nodes[j]
			if a.Dragging && b.Dragging {
				continue
			}
			touch := (a.Size + b.Size) / 2
			minDist := touch + collisionPadding

			dx, dy := b.X-a.X, b.Y-a.Y
			dist := math.Hypot(dx, dy)
			if dist >= minDist || math.IsNaN(dist) {
				continue
			}
			var nx, ny float64
			if dist == 0 {
				// coincident: split along x, earlier node to the left
				nx, ny = 1, 0
			} else {
				nx, ny = dx/dist, dy/dist
			}

			overlap := minDist - dist
			corr := overlap * s.params.CollisionStrength
			if dist < touch {
				corr = overlap
			}

			sa, sb := 0.5, 0.5
			switch {
			case a.Dragging:
				sa, sb = 0, 1
			case b.Dragging:
				sa, sb = 1, 0
			}
			a.X -= nx * corr * sa
			a.Y -= ny * corr * sa
			b.X += nx * corr * sb
			b.Y += ny * corr * sb

			// only the approaching component is damped
			closing := (b.VX-a.VX)*nx + (b.VY-a.VY)*ny
			if closing < 0 {
				dv := -closing * closingDamping
				if !a.Dragging {
					a.VX -= nx * dv * sa
					a.VY -= ny * dv * sa
				}
				if !b.Dragging {
					b.VX += nx * dv * sb
					b.VY += ny * dv * sb
				}
			}
		}
	}
}

// sanitize resets any non-finite coordinate so one bad frame cannot
// poison the rest of the graph.
func (s *Simulator) sanitize(n *layout.Node) {
	bad := false
	if !finite(n.X) || !finite(n.Y) {
		n.X, n.Y = s.graph.Viewport.Center()
		layout.ClampToViewport(n, s.graph.Viewport)
		bad = true
	}
	if !finite(n.VX) || !finite(n.VY) {
		n.VX, n.VY = 0, 0
		bad = true
	}
	if bad {
		s.logger.Warn("non-finite node state reset", zap.String("node", n.ID), zap.Int("tick", s.ticks))
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Energy is the total kinetic energy of the free nodes. A settled graph
// trends toward zero.
func (s *Simulator) Energy() float64 {
	if s.graph == nil {
		return 0
	}
	var e float64
	for _, n := range s.graph.Free() {
		e += 0.5 * (n.VX*n.VX + n.VY*n.VY)
	}
	return e
}

func (s *Simulator) dragNode(id string) (*layout.Node, error) {
	if s.graph == nil {
		return nil, ErrUnknownNode
	}
	if id == layout.AnchorID {
		return nil, ErrAnchorNode
	}
	n, ok := s.graph.Node(id)
	if !ok {
		return nil, ErrUnknownNode
	}
	return n, nil
}

// BeginDrag moves a node into the dragging state at the pointer position.
func (s *Simulator) BeginDrag(id string, x, y float64) error {
	n, err := s.dragNode(id)
	if err != nil {
		return err
	}
	if !finite(x) || !finite(y) {
		return errors.New("non-finite pointer position")
	}
	n.Dragging = true
	n.VX, n.VY = 0, 0
	n.X, n.Y = x, y
	s.drag[id] = [2]float64{}
	return nil
}

// DragTo follows the pointer. Non-finite positions are ignored.
func (s *Simulator) DragTo(id string, x, y float64) error {
	n, err := s.dragNode(id)
	if err != nil {
		return err
	}
	if !n.Dragging {
		return nil
	}
	if !finite(x) || !finite(y) {
		return nil
	}
	s.drag[id] = [2]float64{x - n.X, y - n.Y}
	n.X, n.Y = x, y
	return nil
}

// EndDrag releases a node back into the simulation carrying the last
// pointer motion as its velocity.
func (s *Simulator) EndDrag(id string) error {
	n, err := s.dragNode(id)
	if err != nil {
		return err
	}
	if !n.Dragging {
		return nil
	}
	d := s.drag[id]
	delete(s.drag, id)
	n.Dragging = false
	n.VX, n.VY = clampSpeed(d[0], d[1])
	layout.ClampToViewport(n, s.graph.Viewport)
	return nil
}

func clampSpeed(vx, vy float64) (float64, float64) {
	speed := math.Hypot(vx, vy)
	if speed <= maxReleaseSpeed || speed == 0 {
		return vx, vy
	}
	return vx * maxReleaseSpeed / speed, vy * maxReleaseSpeed / speed
}
