package layout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/fungimap/internal/config"
	"github.com/lazypower/fungimap/internal/similarity"
)

var testViewport = Viewport{Width: 1200, Height: 800}

func TestBuildAnchor(t *testing.T) {
	g := Build(nil, testViewport, DefaultOptions())

	a := g.Anchor()
	require.NotNil(t, a)
	assert.True(t, a.Anchor)
	assert.Equal(t, 600.0, a.X)
	assert.Equal(t, 400.0, a.Y)
	assert.Empty(t, g.Free())
	assert.Empty(t, g.Connections)
}

func TestBuildSizesAndRadius(t *testing.T) {
	items := []Item{
		{ID: "hot", Label: "Hot", Score: 1},
		{ID: "cold", Label: "Cold", Score: 0},
		{ID: "mid", Label: "Mid", Score: 0.5},
	}
	g := Build(items, testViewport, DefaultOptions())
	require.Len(t, g.Free(), 3)

	hot, _ := g.Node("hot")
	cold, _ := g.Node("cold")
	mid, _ := g.Node("mid")
	assert.Equal(t, 120.0, hot.Size)
	assert.Equal(t, 50.0, cold.Size)
	assert.Equal(t, 85.0, mid.Size)

	// angle 0 for the first item, radius 300*(1.2-1)
	assert.InDelta(t, 660, hot.X, 1e-9)
	assert.InDelta(t, 400, hot.Y, 1e-9)

	dist := func(n *Node) float64 { return math.Hypot(n.X-600, n.Y-400) }
	assert.Less(t, dist(hot), dist(mid))
	assert.Less(t, dist(mid), dist(cold))

	assert.Equal(t, Color(1), hot.Color)
	assert.Equal(t, "#f59e0b", Color(1))
	assert.Equal(t, "#94a3b8", Color(0))
	assert.Equal(t, Color(0), Color(math.NaN()))
}

func TestBuildClampsIntoViewport(t *testing.T) {
	small := Viewport{Width: 300, Height: 300}
	items := make([]Item, 6)
	for i := range items {
		items[i] = Item{ID: string(rune('a' + i)), Score: 0}
	}
	g := Build(items, small, DefaultOptions())
	for _, n := range g.Free() {
		assert.GreaterOrEqual(t, n.X, 60.0, n.ID)
		assert.LessOrEqual(t, n.X, 240.0, n.ID)
		assert.GreaterOrEqual(t, n.Y, 60.0, n.ID)
		assert.LessOrEqual(t, n.Y, 240.0, n.ID)
	}
}

func TestBuildSkipsInvalidAndDuplicateItems(t *testing.T) {
	items := []Item{{ID: "a", Score: 0.5}, {ID: ""}, {ID: AnchorID}, {ID: "a", Score: 0.9}, {ID: "b", Score: 0.4}}
	g := Build(items, testViewport, DefaultOptions())

	require.Len(t, g.Free(), 2)
	a, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, 0.5, a.Relevance)

	// two survivors are spread half a turn apart
	b, _ := g.Node("b")
	assert.Less(t, b.X, 600.0)
}

func TestUserIntentConnections(t *testing.T) {
	items := []Item{{ID: "a", Score: 0.8}, {ID: "b", Score: 0.1}}
	g := Build(items, testViewport, DefaultOptions())

	require.Len(t, g.Connections, 2)
	for _, c := range g.Connections {
		assert.Equal(t, KindUserIntent, c.Kind)
		assert.Equal(t, AnchorID, c.From)
	}

	w, ok := g.Connection("a", AnchorID)
	assert.True(t, ok)
	assert.Equal(t, 0.8, w)

	_, ok = g.Connection(AnchorID, "b")
	assert.False(t, ok, "below threshold should be inert")
	assert.Len(t, g.ActiveConnections(), 1)
}

func TestAddSimilarity(t *testing.T) {
	items := []Item{{ID: "a", Score: 0.5}, {ID: "b", Score: 0.5}, {ID: "c", Score: 0.5}}
	g := Build(items, testViewport, DefaultOptions())

	added := g.AddSimilarity([]similarity.Pair{
		{A: "a", B: "b", Weight: 0.4},
		{A: "a", B: "b", Weight: 0.7},
		{A: "b", B: "c", Weight: 0.1},
		{A: "a", B: "ghost", Weight: 0.9},
		{A: "a", B: AnchorID, Weight: 0.9},
		{A: "c", B: "c", Weight: 0.9},
	}, KindSimilarity)
	assert.Equal(t, 3, added)

	w, ok := g.Connection("b", "a")
	require.True(t, ok)
	assert.Equal(t, 0.7, w, "strongest edge wins")

	_, ok = g.Connection("b", "c")
	assert.False(t, ok)
	_, ok = g.Connection("a", "c")
	assert.False(t, ok)
}

func TestRecenter(t *testing.T) {
	items := []Item{{ID: "a", Score: 0}, {ID: "b", Score: 0}}
	g := Build(items, testViewport, DefaultOptions())
	b, _ := g.Node("b")
	b.Dragging = true
	b.X = 1100

	require.NoError(t, g.Recenter(400, 300))
	assert.Equal(t, 200.0, g.Anchor().X)
	assert.Equal(t, 150.0, g.Anchor().Y)

	a, _ := g.Node("a")
	assert.LessOrEqual(t, a.X, 400-a.Size/2)
	assert.Equal(t, 1100.0, b.X, "dragging node follows the pointer only")

	assert.Error(t, g.Recenter(0, 300))
	assert.Error(t, g.Recenter(math.NaN(), 300))
	assert.Error(t, g.Recenter(math.Inf(1), 300))
}

func TestClampToViewportOversized(t *testing.T) {
	n := &Node{X: 10, Y: 10, Size: 200}
	ClampToViewport(n, Viewport{Width: 100, Height: 100})
	assert.Equal(t, 50.0, n.X)
	assert.Equal(t, 50.0, n.Y)
}

func TestSnapshot(t *testing.T) {
	items := []Item{{ID: "a", Label: "A", Score: 0.9}, {ID: "b", Score: 0.05}}
	g := Build(items, testViewport, DefaultOptions())
	g.AddSimilarity([]similarity.Pair{{A: "a", B: "b", Weight: 0.5}}, KindSemantic)

	f := g.Snapshot()
	assert.Equal(t, testViewport, f.Viewport)
	require.Len(t, f.Nodes, 3)
	assert.True(t, f.Nodes[0].Anchor)
	assert.Equal(t, "A", f.Nodes[1].Label)

	require.Len(t, f.Connections, 2)
	a, _ := g.Node("a")
	assert.Equal(t, a.X, f.Connections[0].X2)
	assert.Equal(t, KindSemantic, f.Connections[1].Kind)

	// snapshot is a copy
	f.Nodes[1].X = -1
	assert.NotEqual(t, -1.0, a.X)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.Default().Layout)
	assert.Equal(t, DefaultOptions(), opts)
}
