package view

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lazypower/fungimap/internal/entity"
	"github.com/lazypower/fungimap/internal/layout"
	"github.com/lazypower/fungimap/internal/relevance"
	"github.com/lazypower/fungimap/internal/search"
	"github.com/lazypower/fungimap/internal/session"
)

func testCatalog() []entity.Entity {
	type row struct{ slug, name, text string }
	rows := []row{
		{"morel", "Morel", "edible spring honeycomb"},
		{"false-morel", "False Morel", "toxic spring brain"},
		{"chanterelle", "Chanterelle", "edible golden summer"},
		{"porcini", "Porcini", "edible bolete summer"},
		{"fly-agaric", "Fly Agaric", "toxic red spotted"},
		{"death-cap", "Death Cap", "deadly toxic amanita"},
		{"oyster", "Oyster", "edible wood shelf"},
		{"shiitake", "Shiitake", "edible cultivated wood"},
		{"enoki", "Enoki", "edible cultivated winter"},
		{"lions-mane", "Lion's Mane", "edible medicinal teeth"},
		{"reishi", "Reishi", "medicinal bracket lacquered"},
		{"turkey-tail", "Turkey Tail", "medicinal bracket banded"},
		{"chaga", "Chaga", "medicinal birch canker"},
		{"puffball", "Puffball", "edible round spore"},
		{"inkcap", "Inkcap", "edible deliquescent"},
		{"honey-fungus", "Honey Fungus", "parasitic wood"},
		{"maitake", "Hen of the Woods", "edible medicinal rosette"},
		{"sulphur-shelf", "Chicken of the Woods", "edible bracket shelf"},
		{"destroying-angel", "Destroying Angel", "deadly toxic white"},
		{"jelly-ear", "Jelly Ear", "edible elder wood"},
	}
	out := make([]entity.Entity, len(rows))
	for i, r := range rows {
		persp := map[string]map[string]any{"ecology": {"habitat": "forest"}}
		if i%2 == 0 {
			persp["culinary"] = map[string]any{"rating": 3}
		} else {
			persp["medicinal"] = map[string]any{"uses": 1}
		}
		out[i] = entity.Entity{Slug: r.slug, Name: r.name, SearchText: []string{r.text}, PerspectiveData: persp}
	}
	return out
}

type fixture struct {
	view  *BubbleView
	store *session.Store
}

func newFixture(t *testing.T, searcher search.Collaborator, seed uint64) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := session.New(session.Options{}, nil, logger, nil)
	scorer := relevance.NewScorer(relevance.Options{CacheTTL: 5 * time.Second}, store, logger, nil)
	opts := DefaultOptions()
	opts.Rand = rand.New(rand.NewPCG(seed, seed))
	v := New(testCatalog(), store, scorer, searcher, opts, logger, nil)
	t.Cleanup(v.Close)
	return &fixture{view: v, store: store}
}

func slugs(u Update) []string {
	out := make([]string, len(u.Items))
	for i, it := range u.Items {
		out[i] = it.Slug
	}
	return out
}

func TestNewUserGetsRandomSample(t *testing.T) {
	a := newFixture(t, nil, 1).view.Refresh(context.Background(), false)
	b := newFixture(t, nil, 2).view.Refresh(context.Background(), false)

	require.Len(t, a.Items, 8)
	require.Len(t, b.Items, 8)
	assert.Equal(t, ModeRelevance, a.Mode)
	assert.NotEqual(t, slugs(a), slugs(b))

	// an all-zero ranking would be the first eight slugs alphabetically
	zeroRanked := []string{"chaga", "chanterelle", "death-cap", "destroying-angel", "enoki", "false-morel", "fly-agaric", "honey-fungus"}
	assert.NotEqual(t, zeroRanked, slugs(a))
}

func TestRefreshRanksByRelevance(t *testing.T) {
	f := newFixture(t, nil, 1)
	f.store.TrackClick("porcini")
	f.store.TrackClick("porcini")
	f.store.TrackClick("porcini")
	f.store.TrackHover("morel", 800)

	u := f.view.Refresh(context.Background(), true)
	require.Len(t, u.Items, 8)
	assert.Equal(t, "porcini", u.Items[0].Slug)
	assert.InDelta(t, 0.2475, u.Items[0].Score, 1e-6)
	assert.Equal(t, "morel", u.Items[1].Slug)

	frame := f.view.Frame()
	require.Len(t, frame.Nodes, 9)
	assert.Equal(t, layout.AnchorID, frame.Nodes[0].ID)
	assert.Equal(t, "porcini", frame.Nodes[1].ID)
	assert.InDelta(t, 50+70*u.Items[0].Score, frame.Nodes[1].Size, 1e-9)
}

func TestAutoRefreshEveryFifthAction(t *testing.T) {
	f := newFixture(t, nil, 1)
	var updates atomic.Int32
	f.view.OnRelevanceChanged(func(Update) { updates.Add(1) })

	for range 4 {
		f.view.OnNodeClick("chaga")
	}
	assert.Equal(t, int32(0), updates.Load())

	f.view.OnNodeClick("chaga")
	assert.Equal(t, int32(1), updates.Load())
	assert.Equal(t, "chaga", f.view.Current().Items[0].Slug)

	for range 5 {
		f.view.OnNodeClick("reishi")
	}
	assert.Equal(t, int32(2), updates.Load())
}

func TestSearchBlendsAndHoldsLayout(t *testing.T) {
	f := newFixture(t, nil, 1)
	ranked, err := f.view.Search(context.Background(), "  morel ")
	require.NoError(t, err)

	require.Len(t, ranked, 2)
	cur := f.view.Current()
	assert.Equal(t, ModeSearch, cur.Mode)
	assert.Equal(t, "morel", cur.Query)
	assert.ElementsMatch(t, []string{"morel", "false-morel"}, slugs(cur))

	recent := f.store.RecentSearches(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "morel", recent[0].Query)
	assert.Equal(t, 2, recent[0].ResultCount)

	// interactions keep the search result on screen
	for range 5 {
		f.view.OnNodeClick("morel")
	}
	assert.Equal(t, ModeSearch, f.view.Current().Mode)

	_, err = f.view.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ModeRelevance, f.view.Current().Mode)
	assert.Equal(t, "morel", f.view.Current().Items[0].Slug)
}

type blockingSearch struct {
	started chan struct{}
}

func (b *blockingSearch) Search(ctx context.Context, q string) ([]search.Result, error) {
	if q == "slow" {
		close(b.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []search.Result{{Slug: "chaga"}}, nil
}

func TestSearchLatestWins(t *testing.T) {
	bs := &blockingSearch{started: make(chan struct{})}
	f := newFixture(t, bs, 1)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.view.Search(context.Background(), "slow")
		errCh <- err
	}()
	<-bs.started

	ranked, err := f.view.Search(context.Background(), "fast")
	require.NoError(t, err)
	require.Len(t, ranked, 1)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, search.ErrStale)
	case <-time.After(2 * time.Second):
		t.Fatal("slow search never returned")
	}
	assert.Equal(t, []string{"chaga"}, slugs(f.view.Current()))
	assert.Equal(t, "fast", f.view.Current().Query)
}

type failingSearch struct{}

func (failingSearch) Search(context.Context, string) ([]search.Result, error) {
	return nil, errors.New("backend down")
}

func TestSearchFailureKeepsView(t *testing.T) {
	f := newFixture(t, failingSearch{}, 1)
	before := f.view.Refresh(context.Background(), false)

	_, err := f.view.Search(context.Background(), "morel")
	require.Error(t, err)
	assert.False(t, search.Dropped(err))
	assert.Equal(t, before, f.view.Current())
	assert.Empty(t, f.store.RecentSearches(10))
}

func TestTickKeepsAnchorAndBounds(t *testing.T) {
	f := newFixture(t, nil, 3)
	f.view.Refresh(context.Background(), false)

	frame := f.view.TickN(120)
	require.NotEmpty(t, frame.Nodes)
	anchor := frame.Nodes[0]
	assert.Equal(t, 600.0, anchor.X)
	assert.Equal(t, 400.0, anchor.Y)
	for _, n := range frame.Nodes[1:] {
		assert.GreaterOrEqual(t, n.X, n.Size/2, n.ID)
		assert.LessOrEqual(t, n.X, frame.Viewport.Width-n.Size/2, n.ID)
		assert.GreaterOrEqual(t, n.Y, n.Size/2, n.ID)
		assert.LessOrEqual(t, n.Y, frame.Viewport.Height-n.Size/2, n.ID)
	}
	assert.GreaterOrEqual(t, f.view.Energy(), 0.0)
}

func TestSimilarityConnections(t *testing.T) {
	f := newFixture(t, nil, 4)
	f.view.Refresh(context.Background(), false)

	kinds := map[layout.Kind]int{}
	for _, c := range f.view.Frame().Connections {
		kinds[c.Kind]++
	}
	// eight nodes over two perspective sets always share one
	assert.Positive(t, kinds[layout.KindSemantic])
	// a new user has zero relevance, so no user-intent edge is active
	assert.Zero(t, kinds[layout.KindUserIntent])
}

func TestPointerDrag(t *testing.T) {
	f := newFixture(t, nil, 5)
	u := f.view.Refresh(context.Background(), false)
	id := u.Items[0].Slug

	require.NoError(t, f.view.PointerDown(id, 300, 300))
	require.NoError(t, f.view.PointerMove(id, 320, 310))
	f.view.TickN(10)

	var got layout.NodeFrame
	for _, n := range f.view.Frame().Nodes {
		if n.ID == id {
			got = n
		}
	}
	assert.True(t, got.Dragging)
	assert.Equal(t, 320.0, got.X)
	assert.Equal(t, 310.0, got.Y)

	require.NoError(t, f.view.PointerUp(id))
	assert.Error(t, f.view.PointerDown(layout.AnchorID, 1, 1))
	assert.Error(t, f.view.PointerDown("nope", 1, 1))
}

func TestRefreshKeepsSurvivingPositions(t *testing.T) {
	f := newFixture(t, nil, 1)
	f.store.TrackClick("porcini")
	f.view.Refresh(context.Background(), true)
	f.view.TickN(30)

	before := map[string][2]float64{}
	for _, n := range f.view.Frame().Nodes {
		before[n.ID] = [2]float64{n.X, n.Y}
	}
	f.view.Refresh(context.Background(), true)
	for _, n := range f.view.Frame().Nodes {
		assert.Equal(t, before[n.ID], [2]float64{n.X, n.Y}, n.ID)
	}
}

func TestResize(t *testing.T) {
	f := newFixture(t, nil, 1)
	f.view.Refresh(context.Background(), false)

	require.NoError(t, f.view.Resize(600, 400))
	frame := f.view.Frame()
	assert.Equal(t, 300.0, frame.Nodes[0].X)
	assert.Equal(t, 200.0, frame.Nodes[0].Y)
	assert.Equal(t, layout.Viewport{Width: 600, Height: 400}, frame.Viewport)

	assert.Error(t, f.view.Resize(0, 400))
}

func TestRenderCallbacks(t *testing.T) {
	f := newFixture(t, nil, 1)
	var changes []session.Change
	unsub := f.view.OnActionTracked(func(c session.Change) { changes = append(changes, c) })

	assert.False(t, f.view.OnNodeClick(layout.AnchorID))
	assert.True(t, f.view.OnNodeClick("morel"))
	assert.False(t, f.view.OnNodeHoverChange("morel", true, 0))
	assert.False(t, f.view.OnNodeHoverChange("morel", false, 100))
	assert.True(t, f.view.OnNodeHoverChange("morel", false, 900))

	require.Len(t, changes, 2)
	assert.Equal(t, session.ActionHover, changes[1].Action.Type)
	assert.Equal(t, 2, changes[1].Total)

	unsub()
	f.view.OnNodeClick("morel")
	assert.Len(t, changes, 2)
}

func TestBreakdowns(t *testing.T) {
	f := newFixture(t, nil, 1)
	for range 4 {
		f.store.TrackClick("chaga")
	}
	f.view.Refresh(context.Background(), false)

	bs := f.view.Breakdowns(true)
	require.Len(t, bs, 8)
	assert.Equal(t, "chaga", bs[0].Slug)
	assert.Equal(t, 1.0, bs[0].Clicks)
	assert.InDelta(t, 0.25, bs[0].Score, 1e-6)
}

func TestCloseDetaches(t *testing.T) {
	f := newFixture(t, nil, 1)
	var updates atomic.Int32
	f.view.OnRelevanceChanged(func(Update) { updates.Add(1) })
	f.view.Close()

	for range 5 {
		f.view.OnNodeClick("chaga")
	}
	assert.Zero(t, updates.Load())
}
