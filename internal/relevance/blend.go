package relevance

import (
	"math/rand/v2"
	"sort"

	"github.com/lazypower/fungimap/internal/entity"
	"github.com/lazypower/fungimap/internal/search"
)

// Blend weights for search results.
const (
	searchShare  = 0.6
	sessionShare = 0.4
)

// Ranked is a search result blended with session relevance.
type Ranked struct {
	Slug          string   `json:"slug"`
	Rank          int      `json:"rank"`
	MatchedFields []string `json:"matched_fields,omitempty"`
	SearchScore   float64  `json:"search_score"`
	SessionScore  float64  `json:"session_score"`
	Combined      float64  `json:"combined"`
}

// PositionScore is 1 - (rank/total)*0.5: the top result scores 1 and the
// score falls linearly toward 0.5.
func PositionScore(rank, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 1 - (float64(rank)/float64(total))*0.5
}

// Blend combines search position with session relevance as
// 0.6*position + 0.4*session and sorts by the result, keeping search order
// for ties. Duplicate slugs keep their first (best) position.
func Blend(results []search.Result, sessionScores map[string]float64) []Ranked {
	out := make([]Ranked, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		if r.Slug == "" || seen[r.Slug] {
			continue
		}
		seen[r.Slug] = true
		out = append(out, Ranked{Slug: r.Slug, MatchedFields: r.MatchedFields})
	}
	total := len(out)
	for i := range out {
		out[i].Rank = i
		out[i].SearchScore = PositionScore(i, total)
		out[i].SessionScore = clamp01(sessionScores[out[i].Slug])
		out[i].Combined = clamp01(searchShare*out[i].SearchScore + sessionShare*out[i].SessionScore)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Combined > out[j].Combined
	})
	return out
}

// Scored pairs an entity with the score used to size and place it.
type Scored struct {
	Entity entity.Entity
	Score  float64
}

// SelectDisplaySet picks up to n entities to show. Without any interaction
// history the pick is a random sample rather than an all-zero ranking;
// otherwise it is the top n by score, ties broken by slug.
func SelectDisplaySet(entities []entity.Entity, scores map[string]float64, hasInteractions bool, n int, rng *rand.Rand) []Scored {
	if n <= 0 || len(entities) == 0 {
		return nil
	}
	n = min(n, len(entities))

	if !hasInteractions {
		if rng == nil {
			rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
		out := make([]Scored, 0, n)
		for _, i := range rng.Perm(len(entities))[:n] {
			e := entities[i]
			out = append(out, Scored{Entity: e, Score: clamp01(scores[e.Slug])})
		}
		return out
	}

	out := make([]Scored, len(entities))
	for i, e := range entities {
		out[i] = Scored{Entity: e, Score: clamp01(scores[e.Slug])}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Entity.Slug < out[j].Entity.Slug
	})
	return out[:n]
}

// FromSearch resolves blended results against the catalog, keeping at most
// n entries. Unknown slugs are skipped.
func FromSearch(ranked []Ranked, catalog map[string]entity.Entity, n int) []Scored {
	out := make([]Scored, 0, min(n, len(ranked)))
	for _, r := range ranked {
		if len(out) >= n {
			break
		}
		e, ok := catalog[r.Slug]
		if !ok {
			continue
		}
		out = append(out, Scored{Entity: e, Score: r.Combined})
	}
	return out
}
