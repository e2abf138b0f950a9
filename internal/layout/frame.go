package layout

// NodeFrame is the renderer-facing view of a node.
type NodeFrame struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Size      float64 `json:"size"`
	Color     string  `json:"color"`
	Relevance float64 `json:"relevance"`
	Dragging  bool    `json:"dragging,omitempty"`
	Anchor    bool    `json:"anchor,omitempty"`
}

// EdgeFrame is an active connection with resolved endpoints.
type EdgeFrame struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
	Weight float64 `json:"weight"`
	Kind   Kind    `json:"kind"`
}

// Frame is everything a renderer needs to draw one tick.
type Frame struct {
	Viewport    Viewport    `json:"viewport"`
	Nodes       []NodeFrame `json:"nodes"`
	Connections []EdgeFrame `json:"connections"`
}

// Snapshot copies the current positions out of the graph. Connections
// below the threshold are omitted.
func (g *Graph) Snapshot() Frame {
	f := Frame{
		Viewport:    g.Viewport,
		Nodes:       make([]NodeFrame, 0, len(g.Nodes)),
		Connections: make([]EdgeFrame, 0, len(g.Connections)),
	}
	for _, n := range g.Nodes {
		f.Nodes = append(f.Nodes, NodeFrame{
			ID:        n.ID,
			Label:     n.Label,
			X:         n.X,
			Y:         n.Y,
			Size:      n.Size,
			Color:     n.Color,
			Relevance: n.Relevance,
			Dragging:  n.Dragging,
			Anchor:    n.Anchor,
		})
	}
	for _, c := range g.ActiveConnections() {
		a, b := g.byID[c.From], g.byID[c.To]
		if a == nil || b == nil {
			continue
		}
		f.Connections = append(f.Connections, EdgeFrame{
			From: c.From, To: c.To,
			X1: a.X, Y1: a.Y, X2: b.X, Y2: b.Y,
			Weight: c.Weight, Kind: c.Kind,
		})
	}
	return f
}
