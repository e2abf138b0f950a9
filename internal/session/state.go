package session

// ActionType names a kind of tracked interaction.
type ActionType string

const (
	ActionClick             ActionType = "click"
	ActionHover             ActionType = "hover"
	ActionSearch            ActionType = "search"
	ActionPerspectiveChange ActionType = "perspective_change"
	ActionPageVisit         ActionType = "page_visit"
	ActionScroll            ActionType = "scroll"
	ActionTimeSpent         ActionType = "time_spent"
)

// requiresSlug lists action types that only aggregate when a slug is present.
var requiresSlug = map[ActionType]bool{
	ActionClick:     true,
	ActionHover:     true,
	ActionPageVisit: true,
	ActionScroll:    true,
	ActionTimeSpent: true,
}

// Known reports whether t is aggregated by the store.
func (t ActionType) Known() bool {
	switch t {
	case ActionClick, ActionHover, ActionSearch, ActionPerspectiveChange,
		ActionPageVisit, ActionScroll, ActionTimeSpent:
		return true
	}
	return false
}

// Action is one entry in the append-only interaction log. Timestamps are
// Unix milliseconds.
type Action struct {
	ID           string     `json:"id,omitempty"`
	Type         ActionType `json:"type"`
	Timestamp    int64      `json:"timestamp"`
	Slug         string     `json:"slug,omitempty"`
	Query        string     `json:"query,omitempty"`
	Perspectives []string   `json:"perspectives,omitempty"`
	DurationMs   int64      `json:"durationMs,omitempty"`
	Pct          float64    `json:"pct,omitempty"`
	ResultCount  int        `json:"resultCount,omitempty"`
}

// Data carries the optional payload of a Track call.
type Data struct {
	Slug         string
	Query        string
	Perspectives []string
	DurationMs   int64
	Pct          float64
	ResultCount  int
}

// EntityAggregate accumulates per-entity behavior.
type EntityAggregate struct {
	Clicks         int     `json:"clicks"`
	Hovers         int     `json:"hovers"`
	Views          int     `json:"views"`
	TimeSpentMs    int64   `json:"timeSpentMs"`
	ScrollDepthPct float64 `json:"scrollDepthPct"`
	FirstSeenAt    int64   `json:"firstSeenAt"`
	LastSeenAt     int64   `json:"lastSeenAt"`
}

// Merge returns a + b: counts and durations add, scroll depth and last-seen
// take the max, first-seen takes the earliest non-zero value.
func (a EntityAggregate) Merge(b EntityAggregate) EntityAggregate {
	out := EntityAggregate{
		Clicks:         a.Clicks + b.Clicks,
		Hovers:         a.Hovers + b.Hovers,
		Views:          a.Views + b.Views,
		TimeSpentMs:    a.TimeSpentMs + b.TimeSpentMs,
		ScrollDepthPct: max(a.ScrollDepthPct, b.ScrollDepthPct),
		FirstSeenAt:    minNonZero(a.FirstSeenAt, b.FirstSeenAt),
		LastSeenAt:     max(a.LastSeenAt, b.LastSeenAt),
	}
	return out
}

// subtract removes b's additive fields from a, flooring at zero. Max/min
// fields are idempotent under Merge and are left alone.
func (a EntityAggregate) subtract(b EntityAggregate) EntityAggregate {
	a.Clicks = max(0, a.Clicks-b.Clicks)
	a.Hovers = max(0, a.Hovers-b.Hovers)
	a.Views = max(0, a.Views-b.Views)
	a.TimeSpentMs = max(0, a.TimeSpentMs-b.TimeSpentMs)
	return a
}

func minNonZero(a, b int64) int64 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	}
	return min(a, b)
}

// SearchRecord is one recorded search query.
type SearchRecord struct {
	Query       string `json:"query"`
	Timestamp   int64  `json:"timestamp"`
	ResultCount int    `json:"resultCount"`
}

// PerspectiveUsage accumulates how often and how long a perspective was active.
type PerspectiveUsage struct {
	Activations int   `json:"activations"`
	TotalTimeMs int64 `json:"totalTimeMs"`
}

func (u PerspectiveUsage) add(o PerspectiveUsage) PerspectiveUsage {
	return PerspectiveUsage{
		Activations: u.Activations + o.Activations,
		TotalTimeMs: u.TotalTimeMs + o.TotalTimeMs,
	}
}

func (u PerspectiveUsage) subtract(o PerspectiveUsage) PerspectiveUsage {
	return PerspectiveUsage{
		Activations: max(0, u.Activations-o.Activations),
		TotalTimeMs: max(0, u.TotalTimeMs-o.TotalTimeMs),
	}
}

// State is the session-scoped document.
type State struct {
	SessionID           string                      `json:"sessionId"`
	StartedAt           int64                       `json:"startedAt"`
	Actions             []Action                    `json:"actions"`
	EntityAggregates    map[string]EntityAggregate  `json:"entityAggregates"`
	Searches            []SearchRecord              `json:"searches"`
	PerspectiveUsage    map[string]PerspectiveUsage `json:"perspectiveUsage"`
	CurrentPerspectives []string                    `json:"currentPerspectives"`
	PerspectiveSince    int64                       `json:"perspectiveSince,omitempty"`
	TotalActions        int                         `json:"totalActions,omitempty"`
}

// Profile is the long-lived, browser-keyed document.
type Profile struct {
	BrowserID        string                      `json:"browserId"`
	EntityAggregates map[string]EntityAggregate  `json:"entityAggregates"`
	PerspectiveUsage map[string]PerspectiveUsage `json:"perspectiveUsage"`
	LastVisit        int64                       `json:"lastVisit"`
}

// normalize fills nil maps and slices after decoding.
func (s *State) normalize() {
	if s.EntityAggregates == nil {
		s.EntityAggregates = make(map[string]EntityAggregate)
	}
	if s.PerspectiveUsage == nil {
		s.PerspectiveUsage = make(map[string]PerspectiveUsage)
	}
	if s.Actions == nil {
		s.Actions = []Action{}
	}
	if s.Searches == nil {
		s.Searches = []SearchRecord{}
	}
	if s.CurrentPerspectives == nil {
		s.CurrentPerspectives = []string{}
	}
	if s.TotalActions < len(s.Actions) {
		s.TotalActions = len(s.Actions)
	}
}

func (p *Profile) normalize() {
	if p.EntityAggregates == nil {
		p.EntityAggregates = make(map[string]EntityAggregate)
	}
	if p.PerspectiveUsage == nil {
		p.PerspectiveUsage = make(map[string]PerspectiveUsage)
	}
}

// clone returns a deep copy.
func (s *State) clone() *State {
	c := *s
	c.Actions = make([]Action, len(s.Actions))
	for i, a := range s.Actions {
		if a.Perspectives != nil {
			a.Perspectives = append([]string(nil), a.Perspectives...)
		}
		c.Actions[i] = a
	}
	c.EntityAggregates = make(map[string]EntityAggregate, len(s.EntityAggregates))
	for k, v := range s.EntityAggregates {
		c.EntityAggregates[k] = v
	}
	c.Searches = append([]SearchRecord{}, s.Searches...)
	c.PerspectiveUsage = make(map[string]PerspectiveUsage, len(s.PerspectiveUsage))
	for k, v := range s.PerspectiveUsage {
		c.PerspectiveUsage[k] = v
	}
	c.CurrentPerspectives = append([]string{}, s.CurrentPerspectives...)
	return &c
}

func (p *Profile) clone() *Profile {
	c := *p
	c.EntityAggregates = make(map[string]EntityAggregate, len(p.EntityAggregates))
	for k, v := range p.EntityAggregates {
		c.EntityAggregates[k] = v
	}
	c.PerspectiveUsage = make(map[string]PerspectiveUsage, len(p.PerspectiveUsage))
	for k, v := range p.PerspectiveUsage {
		c.PerspectiveUsage[k] = v
	}
	return &c
}

// mergeProfile folds a session's aggregates into a profile copy.
func mergeProfile(base *Profile, s *State) *Profile {
	out := base.clone()
	for slug, agg := range s.EntityAggregates {
		out.EntityAggregates[slug] = out.EntityAggregates[slug].Merge(agg)
	}
	for id, u := range s.PerspectiveUsage {
		out.PerspectiveUsage[id] = out.PerspectiveUsage[id].add(u)
	}
	return out
}

// withoutSession removes a restored session's additive contribution so that
// re-merging it on save does not double count.
func withoutSession(p *Profile, s *State) *Profile {
	out := p.clone()
	for slug, agg := range s.EntityAggregates {
		if cur, ok := out.EntityAggregates[slug]; ok {
			out.EntityAggregates[slug] = cur.subtract(agg)
		}
	}
	for id, u := range s.PerspectiveUsage {
		if cur, ok := out.PerspectiveUsage[id]; ok {
			out.PerspectiveUsage[id] = cur.subtract(u)
		}
	}
	return out
}
