package search

import (
	"context"
	"sort"
	"strings"

	"github.com/lazypower/fungimap/internal/entity"
)

// Field weights for in-process matching.
var fieldWeights = map[string]float64{
	"name": 1.0,
	"slug": 0.8,
	"text": 0.5,
}

// StaticIndex is an in-process Collaborator over a fixed entity catalog.
// It substring-matches query tokens against name, slug and search text.
type StaticIndex struct {
	entries []indexEntry
	limit   int
}

type indexEntry struct {
	id   string
	slug string
	name string
	text string
}

// NewStaticIndex indexes entities. limit caps results; zero means no cap.
func NewStaticIndex(entities []entity.Entity, limit int) *StaticIndex {
	idx := &StaticIndex{limit: limit, entries: make([]indexEntry, 0, len(entities))}
	for _, e := range entities {
		idx.entries = append(idx.entries, indexEntry{
			id:   e.Slug,
			slug: strings.ToLower(e.Slug),
			name: strings.ToLower(e.Name),
			text: strings.ToLower(strings.Join(e.SearchText, " ")),
		})
	}
	return idx
}

// Search ranks entities by weighted token coverage. Tokens shorter than two
// characters are ignored; an empty query returns no results.
func (s *StaticIndex) Search(ctx context.Context, query string) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var tokens []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	var results []Result
	for _, e := range s.entries {
		score, fields := e.match(tokens)
		if score <= 0 {
			continue
		}
		results = append(results, Result{Slug: e.id, MatchedFields: fields, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Slug < results[j].Slug
	})
	if s.limit > 0 && len(results) > s.limit {
		results = results[:s.limit]
	}
	return results, nil
}

func (e indexEntry) match(tokens []string) (float64, []string) {
	var score float64
	var fields []string
	for _, field := range []string{"name", "slug", "text"} {
		var value string
		switch field {
		case "name":
			value = e.name
		case "slug":
			value = e.slug
		case "text":
			value = e.text
		}
		hits := 0
		for _, tok := range tokens {
			if strings.Contains(value, tok) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		fields = append(fields, field)
		score += fieldWeights[field] * float64(hits) / float64(len(tokens))
	}
	return score, fields
}
