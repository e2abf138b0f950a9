// Package search defines the search collaborator boundary: a ranked list of
// candidate entities for a free-text query.
package search

import (
	"context"
	"errors"
)

// ErrStale reports that a newer query superseded this one. Callers drop the
// response silently.
var ErrStale = errors.New("search superseded by a newer query")

// Result is one ranked candidate. Position in the returned slice is the rank.
type Result struct {
	Slug          string   `json:"slug"`
	MatchedFields []string `json:"matchedFields,omitempty"`
	Score         float64  `json:"score"`
}

// Collaborator answers free-text queries.
type Collaborator interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Dropped reports whether err means the response should be discarded
// without surfacing an error.
func Dropped(err error) bool {
	return errors.Is(err, ErrStale) || errors.Is(err, context.Canceled)
}
