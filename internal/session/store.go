package session

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/lazypower/fungimap/internal/observability"
)

// Options configures a Store.
type Options struct {
	MaxActions  int // default 500
	MaxSearches int // default 50
	MinHoverMs  int64
	Now         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxActions <= 0 {
		o.MaxActions = 500
	}
	if o.MaxSearches <= 0 {
		o.MaxSearches = 50
	}
	if o.MinHoverMs <= 0 {
		o.MinHoverMs = 500
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Minimum trimmed query length for a search to be recorded.
const minSearchLen = 2

// Change is delivered to listeners after every recorded action.
type Change struct {
	Action Action
	Total  int
}

// Store is the session interaction store: an append-only, size-bounded
// action log plus the aggregates derived from it. It is safe for concurrent
// use; every Track call is applied atomically before listeners run.
type Store struct {
	mu      sync.Mutex
	opts    Options
	persist Persistence
	logger  *zap.Logger
	metrics *observability.Collector

	state   *State
	base    *Profile // long-lived profile without this session's contribution
	version uint64
	saved   uint64

	listeners map[int]func(Change)
	nextID    int

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Store with a fresh session. Call Load to restore saved state.
func New(opts Options, p Persistence, logger *zap.Logger, metrics *observability.Collector) *Store {
	opts = opts.withDefaults()
	if p == nil {
		p = NewMemoryPersistence()
	}
	s := &Store{
		opts:      opts,
		persist:   p,
		logger:    observability.OrNop(logger),
		metrics:   metrics,
		listeners: make(map[int]func(Change)),
	}
	s.state = s.freshState()
	s.base = freshProfile(opts.Now())
	return s
}

func (s *Store) freshState() *State {
	st := &State{
		SessionID: uuid.NewString(),
		StartedAt: s.opts.Now().UnixMilli(),
	}
	st.normalize()
	return st
}

func freshProfile(now time.Time) *Profile {
	p := &Profile{BrowserID: ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()}
	p.normalize()
	return p
}

// Track appends an action and updates aggregates. It never fails: hovers
// shorter than MinHoverMs and searches shorter than two characters are
// ignored, malformed slug actions are logged for audit but not aggregated,
// unknown types are logged and otherwise ignored. Returns whether the
// action was recorded.
func (s *Store) Track(t ActionType, d Data) bool {
	s.mu.Lock()

	switch t {
	case ActionHover:
		if d.DurationMs < s.opts.MinHoverMs {
			s.mu.Unlock()
			return false
		}
	case ActionSearch:
		d.Query = strings.TrimSpace(d.Query)
		if len(d.Query) < minSearchLen {
			s.mu.Unlock()
			return false
		}
	}

	now := s.opts.Now()
	nowMs := now.UnixMilli()
	a := Action{
		ID:          ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Type:        t,
		Timestamp:   nowMs,
		Slug:        strings.TrimSpace(d.Slug),
		Query:       d.Query,
		DurationMs:  d.DurationMs,
		Pct:         d.Pct,
		ResultCount: d.ResultCount,
	}
	if d.Perspectives != nil {
		a.Perspectives = append([]string{}, d.Perspectives...)
	}

	s.appendAction(a)
	s.aggregate(a, nowMs)
	s.version++
	s.state.TotalActions++

	change := Change{Action: a, Total: s.state.TotalActions}
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	s.metrics.ObserveAction(string(t))
	for _, fn := range listeners {
		fn(change)
	}
	return true
}

func (s *Store) appendAction(a Action) {
	s.state.Actions = append(s.state.Actions, a)
	if over := len(s.state.Actions) - s.opts.MaxActions; over > 0 {
		s.state.Actions = append(s.state.Actions[:0:0], s.state.Actions[over:]...)
	}
}

func (s *Store) aggregate(a Action, nowMs int64) {
	if !a.Type.Known() {
		s.logger.Debug("unknown action type recorded without aggregation", zap.String("type", string(a.Type)))
		return
	}
	if requiresSlug[a.Type] && a.Slug == "" {
		s.logger.Debug("action missing slug, not aggregated", zap.String("type", string(a.Type)))
		return
	}

	switch a.Type {
	case ActionSearch:
		s.state.Searches = append(s.state.Searches, SearchRecord{
			Query:       a.Query,
			Timestamp:   nowMs,
			ResultCount: a.ResultCount,
		})
		if over := len(s.state.Searches) - s.opts.MaxSearches; over > 0 {
			s.state.Searches = append(s.state.Searches[:0:0], s.state.Searches[over:]...)
		}
		return
	case ActionPerspectiveChange:
		s.switchPerspectives(a.Perspectives, nowMs)
		return
	}

	agg, ok := s.state.EntityAggregates[a.Slug]
	if !ok {
		agg.FirstSeenAt = nowMs
	}
	agg.LastSeenAt = nowMs

	switch a.Type {
	case ActionClick:
		agg.Clicks++
	case ActionHover:
		agg.Hovers++
	case ActionPageVisit:
		agg.Views++
	case ActionScroll:
		pct := a.Pct
		if math.IsNaN(pct) {
			pct = 0
		}
		agg.ScrollDepthPct = max(agg.ScrollDepthPct, min(100, max(0, pct)))
	case ActionTimeSpent:
		if a.DurationMs > 0 {
			agg.TimeSpentMs += a.DurationMs
		}
	}
	s.state.EntityAggregates[a.Slug] = agg
}

// switchPerspectives credits elapsed time to the previously active set and
// counts an activation for every newly active perspective.
func (s *Store) switchPerspectives(next []string, nowMs int64) {
	elapsed := int64(0)
	if s.state.PerspectiveSince > 0 {
		elapsed = max(0, nowMs-s.state.PerspectiveSince)
	}
	for _, id := range s.state.CurrentPerspectives {
		u := s.state.PerspectiveUsage[id]
		u.TotalTimeMs += elapsed
		s.state.PerspectiveUsage[id] = u
	}

	cleaned := make([]string, 0, len(next))
	for _, id := range next {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(cleaned, id) {
			continue
		}
		cleaned = append(cleaned, id)
		if !slices.Contains(s.state.CurrentPerspectives, id) {
			u := s.state.PerspectiveUsage[id]
			u.Activations++
			s.state.PerspectiveUsage[id] = u
		}
	}
	s.state.CurrentPerspectives = cleaned
	s.state.PerspectiveSince = nowMs
}

// TrackClick records a click on an entity.
func (s *Store) TrackClick(slug string) bool {
	return s.Track(ActionClick, Data{Slug: slug})
}

// TrackHover records a hover; hovers under MinHoverMs are ignored.
func (s *Store) TrackHover(slug string, durationMs int64) bool {
	return s.Track(ActionHover, Data{Slug: slug, DurationMs: durationMs})
}

// TrackSearch records a search query; queries under two characters are ignored.
func (s *Store) TrackSearch(query string, resultCount int) bool {
	return s.Track(ActionSearch, Data{Query: query, ResultCount: resultCount})
}

// TrackPerspectiveChange switches the active perspective set.
func (s *Store) TrackPerspectiveChange(ids []string) bool {
	if ids == nil {
		ids = []string{}
	}
	return s.Track(ActionPerspectiveChange, Data{Perspectives: ids})
}

// TrackPageVisit records a detail-page view.
func (s *Store) TrackPageVisit(slug string) bool {
	return s.Track(ActionPageVisit, Data{Slug: slug})
}

// TrackScroll records scroll depth in percent; the aggregate keeps the max.
func (s *Store) TrackScroll(slug string, pct float64) bool {
	return s.Track(ActionScroll, Data{Slug: slug, Pct: pct})
}

// TrackTimeSpent adds time-on-page for an entity.
func (s *Store) TrackTimeSpent(slug string, durationMs int64) bool {
	return s.Track(ActionTimeSpent, Data{Slug: slug, DurationMs: durationMs})
}

// OnChange registers fn to run after every recorded action. The returned
// func unsubscribes. Listeners run outside the store lock and may call back
// into the store.
func (s *Store) OnChange(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// OnEveryN runs fn on every k-th recorded action (by running total).
func (s *Store) OnEveryN(k int, fn func(Change)) func() {
	if k <= 0 {
		k = 1
	}
	return s.OnChange(func(c Change) {
		if c.Total%k == 0 {
			fn(c)
		}
	})
}

func (s *Store) snapshotListeners() []func(Change) {
	if len(s.listeners) == 0 {
		return nil
	}
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(Change), len(ids))
	for i, id := range ids {
		out[i] = s.listeners[id]
	}
	return out
}

// Version increases on every recorded action. Consumers cache against it.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// State returns a deep copy of the session document.
func (s *Store) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// SessionID returns the current session id.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SessionID
}

// TotalActions is the running count of recorded actions.
func (s *Store) TotalActions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.TotalActions
}

// HasInteractions reports whether there is any behavioral history, in this
// session or the long-lived profile.
func (s *Store) HasInteractions() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Actions) > 0 || len(s.base.EntityAggregates) > 0
}

// Aggregates returns the per-entity aggregates of this session merged with
// the long-lived profile.
func (s *Store) Aggregates() map[string]EntityAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]EntityAggregate, len(s.base.EntityAggregates)+len(s.state.EntityAggregates))
	for slug, agg := range s.base.EntityAggregates {
		out[slug] = agg
	}
	for slug, agg := range s.state.EntityAggregates {
		out[slug] = out[slug].Merge(agg)
	}
	return out
}

// Aggregate returns the merged aggregate for one slug.
func (s *Store) Aggregate(slug string) (EntityAggregate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, okBase := s.base.EntityAggregates[slug]
	a, okSess := s.state.EntityAggregates[slug]
	if !okBase && !okSess {
		return EntityAggregate{}, false
	}
	return b.Merge(a), true
}

// RecentSearches returns up to n searches, oldest first.
func (s *Store) RecentSearches(n int) []SearchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	searches := s.state.Searches
	if n > 0 && len(searches) > n {
		searches = searches[len(searches)-n:]
	}
	return append([]SearchRecord{}, searches...)
}

// PerspectiveUsage returns usage merged with the long-lived profile,
// including time accrued by the currently active set.
func (s *Store) PerspectiveUsage() map[string]PerspectiveUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]PerspectiveUsage, len(s.base.PerspectiveUsage)+len(s.state.PerspectiveUsage))
	for id, u := range s.base.PerspectiveUsage {
		out[id] = u
	}
	for id, u := range s.state.PerspectiveUsage {
		out[id] = out[id].add(u)
	}
	if s.state.PerspectiveSince > 0 {
		elapsed := max(0, s.opts.Now().UnixMilli()-s.state.PerspectiveSince)
		for _, id := range s.state.CurrentPerspectives {
			u := out[id]
			u.TotalTimeMs += elapsed
			out[id] = u
		}
	}
	return out
}

// CurrentPerspectives returns the active perspective ids.
func (s *Store) CurrentPerspectives() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.state.CurrentPerspectives...)
}

// Load restores session and profile state. Missing or corrupt documents
// fall back to fresh defaults; storage problems are logged and never fatal.
func (s *Store) Load(ctx context.Context) {
	st, err := s.persist.LoadSession(ctx)
	if err != nil {
		s.logger.Warn("load session failed, starting fresh", zap.Error(err))
		s.metrics.ObservePersistenceError("load_session")
		st = nil
	}
	prof, err := s.persist.LoadProfile(ctx)
	if err != nil {
		s.logger.Warn("load profile failed, starting fresh", zap.Error(err))
		s.metrics.ObservePersistenceError("load_profile")
		prof = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st != nil {
		st.normalize()
		s.trimLoaded(st)
		s.state = st
	} else {
		s.state = s.freshState()
	}

	if prof == nil {
		prof = freshProfile(s.opts.Now())
	}
	prof.normalize()
	if prof.BrowserID == "" {
		prof.BrowserID = freshProfile(s.opts.Now()).BrowserID
	}
	if st != nil {
		prof = withoutSession(prof, st)
	}
	s.base = prof
	s.version++
	s.saved = s.version

	s.logger.Debug("session loaded",
		zap.String("session_id", s.state.SessionID),
		zap.Int("actions", len(s.state.Actions)),
		zap.Int("profile_entities", len(s.base.EntityAggregates)))
}

func (s *Store) trimLoaded(st *State) {
	if over := len(st.Actions) - s.opts.MaxActions; over > 0 {
		st.Actions = append([]Action{}, st.Actions[over:]...)
	}
	if over := len(st.Searches) - s.opts.MaxSearches; over > 0 {
		st.Searches = append([]SearchRecord{}, st.Searches[over:]...)
	}
}

// Save writes the session document and the merged profile. Errors are
// logged and returned; the in-memory state is unaffected.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	st := s.state.clone()
	prof := mergeProfile(s.base, s.state)
	prof.LastVisit = s.opts.Now().UnixMilli()
	version := s.version
	s.mu.Unlock()

	if err := s.persist.SaveSession(ctx, st); err != nil {
		s.logger.Warn("save session failed", zap.Error(err))
		s.metrics.ObservePersistenceError("save_session")
		return fmt.Errorf("save session: %w", err)
	}
	if err := s.persist.SaveProfile(ctx, prof); err != nil {
		s.logger.Warn("save profile failed", zap.Error(err))
		s.metrics.ObservePersistenceError("save_profile")
		return fmt.Errorf("save profile: %w", err)
	}

	s.mu.Lock()
	if version > s.saved {
		s.saved = version
	}
	s.mu.Unlock()
	return nil
}

// Dirty reports whether there are actions not yet saved.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version != s.saved
}

// StartAutosave saves every interval while there are unsaved actions.
// Calling it twice is a no-op.
func (s *Store) StartAutosave(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stop, done := s.stopCh, s.doneCh
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !s.Dirty() {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				_ = s.Save(ctx)
				cancel()
			case <-stop:
				return
			}
		}
	}()
}

// Close stops autosave and performs a final best-effort save.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return s.Save(ctx)
}
