// Package layout holds the bubble graph: one fixed anchor node for the user,
// one node per displayed entity, and weighted connections between them.
package layout

import (
	"fmt"
	"math"

	"github.com/lazypower/fungimap/internal/config"
	"github.com/lazypower/fungimap/internal/similarity"
)

// AnchorID identifies the user node.
const AnchorID = "user-node"

// anchorSize is the rendered diameter of the user node.
const anchorSize = 80

// Kind classifies a connection.
type Kind string

const (
	KindSimilarity Kind = "similarity"
	KindSemantic   Kind = "semantic"
	KindUserIntent Kind = "user-intent"
)

// Node is a bubble. Positions and velocities are in viewport pixels.
type Node struct {
	ID        string
	Label     string
	X, Y      float64
	VX, VY    float64
	Size      float64
	Dragging  bool
	Color     string
	Relevance float64
	Anchor    bool
}

// Connection is an undirected weighted edge.
type Connection struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
	Kind   Kind    `json:"kind"`
}

// Viewport is the drawable area.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the viewport midpoint.
func (v Viewport) Center() (float64, float64) {
	return v.Width / 2, v.Height / 2
}

// Options controls node sizing and placement.
type Options struct {
	MinSize   float64
	MaxSize   float64
	Radius    float64
	Padding   float64
	Threshold float64 // connections below this weight are inert
}

// DefaultOptions returns the stock layout options.
func DefaultOptions() Options {
	return Options{MinSize: 50, MaxSize: 120, Radius: 300, Padding: 60, Threshold: 0.2}
}

// OptionsFromConfig maps the layout config section onto Options.
func OptionsFromConfig(c config.LayoutConfig) Options {
	return Options{
		MinSize:   c.MinSize,
		MaxSize:   c.MaxSize,
		Radius:    c.Radius,
		Padding:   c.Padding,
		Threshold: c.Threshold,
	}
}

// Item is one entity to place, with its relevance in [0,1].
type Item struct {
	ID    string
	Label string
	Score float64
}

// Graph is the node and connection set for one displayed entity set.
type Graph struct {
	Viewport    Viewport
	Nodes       []*Node
	Connections []Connection

	opts Options
	byID map[string]*Node
	adj  map[[2]string]float64 // strongest active weight per unordered pair
}

// Build places an anchor at the viewport center and one node per item on a
// circle around it: more relevant items are bigger and closer. Each item
// also gets a user-intent connection to the anchor weighted by its score.
func Build(items []Item, vp Viewport, opts Options) *Graph {
	g := &Graph{
		Viewport: vp,
		opts:     opts,
		byID:     make(map[string]*Node, len(items)+1),
	}

	cx, cy := vp.Center()
	anchor := &Node{ID: AnchorID, Label: "You", X: cx, Y: cy, Size: anchorSize, Color: anchorColor, Relevance: 1, Anchor: true}
	g.Nodes = append(g.Nodes, anchor)
	g.byID[AnchorID] = anchor

	placed := make([]Item, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.ID == "" || it.ID == AnchorID || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		placed = append(placed, it)
	}

	for i, it := range placed {
		score := clamp01(it.Score)
		size := opts.MinSize + (opts.MaxSize-opts.MinSize)*score
		r := opts.Radius * (1.2 - score)
		angle := 2 * math.Pi * float64(i) / float64(len(placed))
		node := &Node{
			ID:        it.ID,
			Label:     it.Label,
			X:         cx + r*math.Cos(angle),
			Y:         cy + r*math.Sin(angle),
			Size:      size,
			Color:     Color(score),
			Relevance: score,
		}
		g.clampPlacement(node)
		g.Nodes = append(g.Nodes, node)
		g.byID[node.ID] = node
		g.Connections = append(g.Connections, Connection{From: AnchorID, To: node.ID, Weight: score, Kind: KindUserIntent})
	}
	g.reindex()
	return g
}

// clampPlacement keeps a freshly placed node inside the padded viewport.
func (g *Graph) clampPlacement(n *Node) {
	inset := math.Max(g.opts.Padding, n.Size/2)
	n.X = clampRange(n.X, inset, g.Viewport.Width-inset)
	n.Y = clampRange(n.Y, inset, g.Viewport.Height-inset)
}

// AddSimilarity adds node-to-node connections of the given kind. Pairs that
// reference unknown nodes or the anchor are skipped.
func (g *Graph) AddSimilarity(pairs []similarity.Pair, kind Kind) int {
	added := 0
	for _, p := range pairs {
		if p.A == p.B || p.A == AnchorID || p.B == AnchorID {
			continue
		}
		if _, ok := g.byID[p.A]; !ok {
			continue
		}
		if _, ok := g.byID[p.B]; !ok {
			continue
		}
		g.Connections = append(g.Connections, Connection{From: p.A, To: p.B, Weight: clamp01(p.Weight), Kind: kind})
		added++
	}
	g.reindex()
	return added
}

func (g *Graph) reindex() {
	g.adj = make(map[[2]string]float64, len(g.Connections))
	for _, c := range g.Connections {
		if c.Weight < g.opts.Threshold {
			continue
		}
		k := pairKey(c.From, c.To)
		if c.Weight > g.adj[k] {
			g.adj[k] = c.Weight
		}
	}
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Anchor returns the user node.
func (g *Graph) Anchor() *Node {
	return g.byID[AnchorID]
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Free returns all non-anchor nodes in placement order.
func (g *Graph) Free() []*Node {
	out := make([]*Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if !n.Anchor {
			out = append(out, n)
		}
	}
	return out
}

// ActiveConnections returns connections at or above the threshold.
func (g *Graph) ActiveConnections() []Connection {
	out := make([]Connection, 0, len(g.Connections))
	for _, c := range g.Connections {
		if c.Weight >= g.opts.Threshold {
			out = append(out, c)
		}
	}
	return out
}

// Connection reports the strongest active connection weight between a and b.
func (g *Graph) Connection(a, b string) (float64, bool) {
	w, ok := g.adj[pairKey(a, b)]
	return w, ok
}

// Threshold is the minimum active connection weight.
func (g *Graph) Threshold() float64 { return g.opts.Threshold }

// Recenter resizes the viewport and moves the anchor to its center. It is
// the only operation that moves the anchor. Non-dragging nodes are pulled
// back inside the new bounds.
func (g *Graph) Recenter(width, height float64) error {
	if !(width > 0) || !(height > 0) || math.IsInf(width, 0) || math.IsInf(height, 0) {
		return fmt.Errorf("invalid viewport %vx%v", width, height)
	}
	g.Viewport = Viewport{Width: width, Height: height}
	cx, cy := g.Viewport.Center()
	if a := g.Anchor(); a != nil {
		a.X, a.Y = cx, cy
	}
	for _, n := range g.Nodes {
		if n.Anchor || n.Dragging {
			continue
		}
		ClampToViewport(n, g.Viewport)
	}
	return nil
}

// ClampToViewport holds a node's center within [size/2, dim-size/2]. When
// the node is larger than the viewport it is centered.
func ClampToViewport(n *Node, vp Viewport) {
	half := n.Size / 2
	n.X = clampRange(n.X, half, vp.Width-half)
	n.Y = clampRange(n.Y, half, vp.Height-half)
}

func clampRange(v, lo, hi float64) float64 {
	if lo > hi {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
