// Package relevance turns session behavior, recent searches and perspective
// usage into a per-entity relevance score in [0,1].
package relevance

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/fungimap/internal/config"
	"github.com/lazypower/fungimap/internal/entity"
	"github.com/lazypower/fungimap/internal/observability"
	"github.com/lazypower/fungimap/internal/session"
)

const (
	searchWindow       = 10 // most recent searches considered by SearchMatch
	minTokenLen        = 3
	topPerspectives    = 5
	timeSpentCapMs     = 600_000
	millisecondsInHour = 3_600_000
)

// Weights scale each pre-normalized factor.
type Weights struct {
	Clicks           float64
	Hovers           float64
	Views            float64
	TimeSpent        float64
	ScrollDepth      float64
	SearchMatch      float64
	PerspectiveMatch float64
}

// DefaultWeights returns the stock factor weights.
func DefaultWeights() Weights {
	return Weights{
		Clicks:           0.25,
		Hovers:           0.05,
		Views:            0.20,
		TimeSpent:        0.15,
		ScrollDepth:      0.10,
		SearchMatch:      0.15,
		PerspectiveMatch: 0.10,
	}
}

// Source is the read side of the interaction store the scorer needs.
// *session.Store satisfies it.
type Source interface {
	Version() uint64
	Aggregate(slug string) (session.EntityAggregate, bool)
	RecentSearches(n int) []session.SearchRecord
	PerspectiveUsage() map[string]session.PerspectiveUsage
	HasInteractions() bool
}

// Options configures a Scorer.
type Options struct {
	Weights     Weights
	DecayFactor float64       // per hour since last seen
	CacheTTL    time.Duration // minimum interval between unforced recomputes of a clean cache
	Now         func() time.Time
}

// OptionsFromConfig maps the relevance config section onto Options.
func OptionsFromConfig(c config.RelevanceConfig) Options {
	return Options{
		Weights: Weights{
			Clicks:           c.Clicks,
			Hovers:           c.Hovers,
			Views:            c.Views,
			TimeSpent:        c.TimeSpent,
			ScrollDepth:      c.ScrollDepth,
			SearchMatch:      c.SearchMatch,
			PerspectiveMatch: c.PerspectiveMatch,
		},
		DecayFactor: c.DecayFactor,
		CacheTTL:    time.Duration(c.CacheTTLMs) * time.Millisecond,
	}
}

// Scorer computes relevance scores against a Source and caches ScoreAll
// results. The cache is keyed by the source version, so a tracked action is
// always visible to the next call.
type Scorer struct {
	opts    Options
	src     Source
	logger  *zap.Logger
	metrics *observability.Collector

	mu            sync.Mutex
	cache         map[string]float64
	cachedAt      time.Time
	cachedVersion uint64
	hasCache      bool
}

// NewScorer returns a Scorer reading from src. A zero Weights value selects
// DefaultWeights.
func NewScorer(opts Options, src Source, logger *zap.Logger, metrics *observability.Collector) *Scorer {
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	if opts.DecayFactor <= 0 || opts.DecayFactor > 1 {
		opts.DecayFactor = 0.95
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scorer{
		opts:    opts,
		src:     src,
		logger:  observability.OrNop(logger),
		metrics: metrics,
		cache:   make(map[string]float64),
	}
}

// Breakdown is the per-factor view of one score.
type Breakdown struct {
	Slug             string  `json:"slug"`
	Clicks           float64 `json:"clicks"`
	Hovers           float64 `json:"hovers"`
	Views            float64 `json:"views"`
	TimeSpent        float64 `json:"time_spent"`
	ScrollDepth      float64 `json:"scroll_depth"`
	SearchMatch      float64 `json:"search_match"`
	PerspectiveMatch float64 `json:"perspective_match"`
	Raw              float64 `json:"raw"`
	HoursSinceSeen   float64 `json:"hours_since_seen"`
	Decay            float64 `json:"decay"`
	Score            float64 `json:"score"`
}

// Factors computes the full breakdown for e, bypassing the cache.
func (s *Scorer) Factors(e entity.Entity) Breakdown {
	b := Breakdown{Slug: e.Slug, Decay: 1}

	agg, seen := s.src.Aggregate(e.Slug)
	if seen {
		b.Clicks = math.Min(1, float64(agg.Clicks)*0.33)
		b.Hovers = math.Min(1, float64(agg.Hovers)*0.10)
		b.Views = math.Min(1, float64(agg.Views)*0.50)
		b.TimeSpent = math.Min(1, float64(agg.TimeSpentMs)/timeSpentCapMs)
		b.ScrollDepth = clamp01(agg.ScrollDepthPct / 100)
	}
	b.SearchMatch = s.SearchMatch(e)
	b.PerspectiveMatch = s.PerspectiveMatch(e)

	w := s.opts.Weights
	b.Raw = b.Clicks*w.Clicks +
		b.Hovers*w.Hovers +
		b.Views*w.Views +
		b.TimeSpent*w.TimeSpent +
		b.ScrollDepth*w.ScrollDepth +
		b.SearchMatch*w.SearchMatch +
		b.PerspectiveMatch*w.PerspectiveMatch

	// Decay applies to the summed score, and only when the entity has a last-seen time.
	if seen && agg.LastSeenAt > 0 {
		elapsed := s.opts.Now().UnixMilli() - agg.LastSeenAt
		b.HoursSinceSeen = math.Max(0, float64(elapsed)/millisecondsInHour)
		b.Decay = math.Pow(s.opts.DecayFactor, b.HoursSinceSeen)
	}
	b.Score = clamp01(b.Raw * b.Decay)
	return b
}

// Score returns the relevance of e in [0,1]. A valid cached value is reused.
func (s *Scorer) Score(e entity.Entity) float64 {
	s.mu.Lock()
	if s.cacheValidLocked(s.src.Version(), false) {
		if v, ok := s.cache[e.Slug]; ok {
			s.mu.Unlock()
			s.metrics.ObserveCache(true)
			return v
		}
	}
	s.mu.Unlock()
	s.metrics.ObserveCache(false)
	return s.Factors(e).Score
}

// ScoreAll scores every entity. Results come from the cache while the store
// is unchanged and the cache is younger than CacheTTL; forceRefresh always
// recomputes.
func (s *Scorer) ScoreAll(entities []entity.Entity, forceRefresh bool) map[string]float64 {
	version := s.src.Version()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cacheValidLocked(version, forceRefresh) && s.coversLocked(entities) {
		s.metrics.ObserveCache(true)
		return pick(s.cache, entities)
	}
	s.metrics.ObserveCache(false)

	start := time.Now()
	fresh := make(map[string]float64, len(entities))
	for _, e := range entities {
		fresh[e.Slug] = s.Factors(e).Score
	}
	s.cache = fresh
	s.cachedAt = s.opts.Now()
	s.cachedVersion = version
	s.hasCache = true
	s.metrics.ObserveRecompute()

	s.logger.Debug("relevance recomputed",
		zap.Int("entities", len(entities)),
		zap.Uint64("version", version),
		zap.Duration("took", time.Since(start)))
	return pick(fresh, entities)
}

// Invalidate drops the cache so the next ScoreAll recomputes.
func (s *Scorer) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasCache = false
}

// Due reports whether an unforced ScoreAll would recompute: the store has
// changed since the last computation, or the cache has outlived CacheTTL.
func (s *Scorer) Due() bool {
	version := s.src.Version()
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.cacheValidLocked(version, false)
}

func (s *Scorer) cacheValidLocked(version uint64, force bool) bool {
	if force || !s.hasCache || version != s.cachedVersion {
		return false
	}
	return s.opts.Now().Sub(s.cachedAt) < s.opts.CacheTTL
}

func (s *Scorer) coversLocked(entities []entity.Entity) bool {
	for _, e := range entities {
		if _, ok := s.cache[e.Slug]; !ok {
			return false
		}
	}
	return true
}

func pick(scores map[string]float64, entities []entity.Entity) map[string]float64 {
	out := make(map[string]float64, len(entities))
	for _, e := range entities {
		out[e.Slug] = scores[e.Slug]
	}
	return out
}

// SearchMatch weighs the last ten searches by recency, (i+1)/N oldest to
// newest, and averages the fraction of each query's tokens found in the
// entity's searchable text.
func (s *Scorer) SearchMatch(e entity.Entity) float64 {
	searches := s.src.RecentSearches(searchWindow)
	if len(searches) == 0 {
		return 0
	}
	text := e.Searchable()
	n := float64(len(searches))

	var acc, total float64
	for i, rec := range searches {
		w := float64(i+1) / n
		total += w
		acc += TokenMatch(rec.Query, text) * w
	}
	if total == 0 {
		return 0
	}
	return clamp01(acc / total)
}

// TokenMatch returns the fraction of query tokens contained in text. text
// must already be lowercased.
func TokenMatch(query, text string) float64 {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return 0
	}
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

// Tokenize splits a query on whitespace, lowercases it, and drops tokens
// shorter than three characters.
func Tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minTokenLen {
			out = append(out, f)
		}
	}
	return out
}

// PerspectiveMatch ranks perspectives by activations*0.5 + minutes*0.5,
// keeps the top five, and returns the weight share the entity has data for.
func (s *Scorer) PerspectiveMatch(e entity.Entity) float64 {
	ranked := RankPerspectives(s.src.PerspectiveUsage(), topPerspectives)
	var matched, total float64
	for _, r := range ranked {
		total += r.Weight
		if e.HasPerspective(r.ID) {
			matched += r.Weight
		}
	}
	if total <= 0 {
		return 0
	}
	return clamp01(matched / total)
}

// RankedPerspective is a perspective id with its usage weight.
type RankedPerspective struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

// RankPerspectives orders usage by weight, descending, ties by id, keeping
// at most n entries with a positive weight.
func RankPerspectives(usage map[string]session.PerspectiveUsage, n int) []RankedPerspective {
	out := make([]RankedPerspective, 0, len(usage))
	for id, u := range usage {
		w := float64(u.Activations)*0.5 + (float64(u.TotalTimeMs)/60_000)*0.5
		if w <= 0 || math.IsNaN(w) {
			continue
		}
		out = append(out, RankedPerspective{ID: id, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].ID < out[j].ID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
