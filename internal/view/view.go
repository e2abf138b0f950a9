// Package view ties the interaction store, relevance scorer, search
// collaborator, layout graph and physics simulator into one bubble view.
package view

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lazypower/fungimap/internal/config"
	"github.com/lazypower/fungimap/internal/entity"
	"github.com/lazypower/fungimap/internal/layout"
	"github.com/lazypower/fungimap/internal/observability"
	"github.com/lazypower/fungimap/internal/physics"
	"github.com/lazypower/fungimap/internal/relevance"
	"github.com/lazypower/fungimap/internal/search"
	"github.com/lazypower/fungimap/internal/session"
	"github.com/lazypower/fungimap/internal/similarity"
)

// Mode says where the displayed set came from.
type Mode string

const (
	ModeRelevance Mode = "relevance"
	ModeSearch    Mode = "search"
)

// Item is one displayed entity.
type Item struct {
	Slug  string  `json:"slug"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Update is delivered to relevance listeners whenever the displayed set is
// rebuilt.
type Update struct {
	Mode  Mode   `json:"mode"`
	Query string `json:"query,omitempty"`
	Items []Item `json:"items"`
}

// Options configures a BubbleView.
type Options struct {
	Viewport     layout.Viewport
	Layout       layout.Options
	Physics      physics.Params
	TopN         int
	Neighbors    int // similarity edges per node, 0 disables
	RefreshEvery int // auto-refresh every k tracked actions
	Rand         *rand.Rand
}

func OptionsFromConfig(c config.Config) Options {
	return Options{
		Viewport:     layout.Viewport{Width: c.Layout.Width, Height: c.Layout.Height},
		Layout:       layout.OptionsFromConfig(c.Layout),
		Physics:      physics.ParamsFromConfig(c.Physics),
		TopN:         c.Layout.TopN,
		Neighbors:    c.Layout.Neighbors,
		RefreshEvery: c.Relevance.RefreshEvery,
	}
}

func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

// BubbleView owns the graph for one mounted view. It is safe for
// concurrent use; ticks and rebuilds are serialized.
type BubbleView struct {
	store    *session.Store
	scorer   *relevance.Scorer
	search   *search.Latest
	opts     Options
	logger   *zap.Logger
	metrics  *observability.Collector
	catalog  []entity.Entity
	bySlug   map[string]entity.Entity
	textSims *similarity.Model

	mu      sync.Mutex
	graph   *layout.Graph
	sim     *physics.Simulator
	mode    Mode
	query   string
	display []Item
	rng     *rand.Rand

	lmu       sync.Mutex
	listeners map[int]func(Update)
	nextID    int

	unsubscribe []func()
}

// New builds a view over catalog. A nil searcher searches the catalog
// in-process.
func New(catalog []entity.Entity, store *session.Store, scorer *relevance.Scorer, searcher search.Collaborator, opts Options, logger *zap.Logger, metrics *observability.Collector) *BubbleView {
	if opts.TopN <= 0 {
		opts.TopN = 8
	}
	if opts.Viewport.Width <= 0 || opts.Viewport.Height <= 0 {
		opts.Viewport = DefaultOptions().Viewport
	}
	if opts.Layout == (layout.Options{}) {
		opts.Layout = layout.DefaultOptions()
	}
	if opts.Physics == (physics.Params{}) {
		opts.Physics = physics.DefaultParams()
	}
	if searcher == nil {
		searcher = search.NewStaticIndex(catalog, 0)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	bySlug := make(map[string]entity.Entity, len(catalog))
	for _, e := range catalog {
		bySlug[e.Slug] = e
	}

	logger = observability.OrNop(logger)
	g := layout.Build(nil, opts.Viewport, opts.Layout)
	v := &BubbleView{
		store:     store,
		scorer:    scorer,
		search:    search.NewLatest(searcher),
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
		catalog:   catalog,
		bySlug:    bySlug,
		textSims:  similarity.NewModel(catalog, 0),
		graph:     g,
		sim:       physics.New(g, opts.Physics, logger, metrics),
		mode:      ModeRelevance,
		rng:       rng,
		listeners: make(map[int]func(Update)),
	}

	if opts.RefreshEvery > 0 {
		v.unsubscribe = append(v.unsubscribe, store.OnEveryN(opts.RefreshEvery, v.autoRefresh))
	}
	return v
}

// autoRefresh relayouts on every k-th action unless a search result is on
// screen. The scorer decides whether a recompute is actually due.
func (v *BubbleView) autoRefresh(c session.Change) {
	v.mu.Lock()
	mode := v.mode
	v.mu.Unlock()
	if mode != ModeRelevance {
		return
	}
	if !v.scorer.Due() {
		return
	}
	v.logger.Debug("auto refresh", zap.Int("total_actions", c.Total))
	v.Refresh(context.Background(), false)
}

// Refresh recomputes relevance and rebuilds the graph from the top-N set.
// A session with no interactions gets a random sample instead.
func (v *BubbleView) Refresh(ctx context.Context, force bool) Update {
	scores := v.scorer.ScoreAll(v.catalog, force)
	hasInteractions := v.store.HasInteractions()

	v.mu.Lock()
	set := relevance.SelectDisplaySet(v.catalog, scores, hasInteractions, v.opts.TopN, v.rng)
	v.mode = ModeRelevance
	v.query = ""
	v.rebuildLocked(set)
	u := v.updateLocked()
	v.mu.Unlock()

	v.notify(u)
	return u
}

// Search runs query through the latest-wins collaborator, blends the ranked
// results with session relevance and rebuilds the graph. A superseded query
// returns search.ErrStale and leaves the view untouched. A blank query
// returns to the relevance layout.
func (v *BubbleView) Search(ctx context.Context, query string) ([]relevance.Ranked, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		v.search.Cancel()
		v.Refresh(ctx, false)
		return nil, nil
	}

	results, err := v.search.Do(ctx, query)
	if err != nil {
		if search.Dropped(err) {
			v.logger.Debug("search dropped", zap.String("query", query), zap.Error(err))
			return nil, search.ErrStale
		}
		v.logger.Warn("search failed", zap.String("query", query), zap.Error(err))
		return nil, err
	}

	v.mu.Lock()
	v.mode = ModeSearch
	v.query = query
	v.mu.Unlock()

	v.store.TrackSearch(query, len(results))
	scores := v.scorer.ScoreAll(v.catalog, false)
	ranked := relevance.Blend(results, scores)

	v.mu.Lock()
	if v.query != query {
		// a newer search or refresh landed while we were scoring
		v.mu.Unlock()
		return nil, search.ErrStale
	}
	v.rebuildLocked(relevance.FromSearch(ranked, v.bySlug, v.opts.TopN))
	u := v.updateLocked()
	v.mu.Unlock()

	v.notify(u)
	return ranked, nil
}

// rebuildLocked replaces the graph. Nodes that survive the rebuild keep
// their position, velocity and drag state.
func (v *BubbleView) rebuildLocked(set []relevance.Scored) {
	items := make([]layout.Item, len(set))
	ents := make([]entity.Entity, len(set))
	display := make([]Item, len(set))
	for i, s := range set {
		items[i] = layout.Item{ID: s.Entity.Slug, Label: s.Entity.Name, Score: s.Score}
		ents[i] = s.Entity
		display[i] = Item{Slug: s.Entity.Slug, Name: s.Entity.Name, Score: s.Score}
	}

	prev := v.graph
	g := layout.Build(items, prev.Viewport, v.opts.Layout)
	if v.opts.Neighbors > 0 {
		th := v.opts.Layout.Threshold
		g.AddSimilarity(v.textSims.TextPairs(ents, v.opts.Neighbors, th), layout.KindSimilarity)
		g.AddSimilarity(similarity.PerspectivePairs(ents, v.opts.Neighbors, th), layout.KindSemantic)
	}
	for _, n := range g.Free() {
		old, ok := prev.Node(n.ID)
		if !ok {
			continue
		}
		n.X, n.Y, n.VX, n.VY, n.Dragging = old.X, old.Y, old.VX, old.VY, old.Dragging
		if !n.Dragging {
			layout.ClampToViewport(n, g.Viewport)
		}
	}

	v.graph = g
	v.sim.SetGraph(g)
	v.display = display
}

func (v *BubbleView) updateLocked() Update {
	return Update{Mode: v.mode, Query: v.query, Items: append([]Item(nil), v.display...)}
}

// Current returns the displayed set without recomputing anything.
func (v *BubbleView) Current() Update {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updateLocked()
}

// Tick advances the simulation one frame and returns it.
func (v *BubbleView) Tick() layout.Frame {
	return v.TickN(1)
}

// TickN advances n frames and returns the last one.
func (v *BubbleView) TickN(n int) layout.Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sim.Run(n)
	return v.graph.Snapshot()
}

// Frame returns the current positions without ticking.
func (v *BubbleView) Frame() layout.Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.graph.Snapshot()
}

// Energy is the simulator's kinetic energy.
func (v *BubbleView) Energy() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sim.Energy()
}

// OnNodeClick records a click on a bubble. Clicks on the user node are
// ignored.
func (v *BubbleView) OnNodeClick(slug string) bool {
	if slug == layout.AnchorID {
		return false
	}
	return v.store.TrackClick(slug)
}

// OnNodeHoverChange records a hover when it ends. Hover starts carry no
// duration and are not recorded.
func (v *BubbleView) OnNodeHoverChange(slug string, hovering bool, elapsedMs int64) bool {
	if hovering || slug == layout.AnchorID {
		return false
	}
	return v.store.TrackHover(slug, elapsedMs)
}

func (v *BubbleView) PointerDown(id string, x, y float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sim.BeginDrag(id, x, y)
}

func (v *BubbleView) PointerMove(id string, x, y float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sim.DragTo(id, x, y)
}

func (v *BubbleView) PointerUp(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sim.EndDrag(id)
}

// Resize recenters the user node in a new viewport.
func (v *BubbleView) Resize(width, height float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.graph.Recenter(width, height)
}

// Breakdowns returns the per-factor relevance of the displayed entities.
func (v *BubbleView) Breakdowns(force bool) []relevance.Breakdown {
	if force {
		v.scorer.ScoreAll(v.catalog, true)
	}
	v.mu.Lock()
	slugs := make([]string, len(v.display))
	for i, it := range v.display {
		slugs[i] = it.Slug
	}
	v.mu.Unlock()

	out := make([]relevance.Breakdown, 0, len(slugs))
	for _, slug := range slugs {
		if e, ok := v.bySlug[slug]; ok {
			out = append(out, v.scorer.Factors(e))
		}
	}
	return out
}

// Entity looks up a catalog entry.
func (v *BubbleView) Entity(slug string) (entity.Entity, bool) {
	e, ok := v.bySlug[slug]
	return e, ok
}

// Store exposes the interaction store backing the view.
func (v *BubbleView) Store() *session.Store { return v.store }

// OnRelevanceChanged registers fn for display set rebuilds. The returned
// func unsubscribes.
func (v *BubbleView) OnRelevanceChanged(fn func(Update)) func() {
	v.lmu.Lock()
	defer v.lmu.Unlock()
	id := v.nextID
	v.nextID++
	v.listeners[id] = fn
	return func() {
		v.lmu.Lock()
		defer v.lmu.Unlock()
		delete(v.listeners, id)
	}
}

// OnActionTracked registers fn for every tracked action with the running
// total.
func (v *BubbleView) OnActionTracked(fn func(session.Change)) func() {
	return v.store.OnChange(fn)
}

func (v *BubbleView) notify(u Update) {
	v.lmu.Lock()
	fns := make([]func(Update), 0, len(v.listeners))
	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	v.lmu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

// Close detaches the view from the store and aborts any in-flight search.
func (v *BubbleView) Close() {
	for _, fn := range v.unsubscribe {
		fn()
	}
	v.unsubscribe = nil
	v.search.Cancel()
}
