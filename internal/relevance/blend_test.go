package relevance

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/fungimap/internal/entity"
	"github.com/lazypower/fungimap/internal/search"
)

func TestPositionScore(t *testing.T) {
	assert.Equal(t, 1.0, PositionScore(0, 4))
	assert.Equal(t, 0.875, PositionScore(1, 4))
	assert.Equal(t, 0.625, PositionScore(3, 4))
	assert.Zero(t, PositionScore(0, 0))
}

func TestBlend(t *testing.T) {
	results := []search.Result{
		{Slug: "a", MatchedFields: []string{"name"}},
		{Slug: "b"},
		{Slug: "a"},
		{Slug: "c"},
	}
	ranked := Blend(results, map[string]float64{"c": 1.0})

	require.Len(t, ranked, 3)
	// c: 0.6*(1-2/3*0.5) + 0.4*1 = 0.8; a: 0.6; b: 0.6*(1-1/6) = 0.5
	assert.Equal(t, []string{"c", "a", "b"}, []string{ranked[0].Slug, ranked[1].Slug, ranked[2].Slug})
	assert.InDelta(t, 0.8, ranked[0].Combined, 1e-9)
	assert.InDelta(t, 0.6, ranked[1].Combined, 1e-9)
	assert.InDelta(t, 0.5, ranked[2].Combined, 1e-9)
	assert.Equal(t, 0, ranked[1].Rank)
	assert.Equal(t, []string{"name"}, ranked[1].MatchedFields)
}

func TestBlendSessionCanOutrankPosition(t *testing.T) {
	ranked := Blend([]search.Result{{Slug: "x"}, {Slug: "y"}}, map[string]float64{"x": 0, "y": 0.75})
	// x: 0.6, y: 0.6*0.75 + 0.4*0.75 = 0.75
	assert.Equal(t, "y", ranked[0].Slug)
	assert.Equal(t, 1, ranked[0].Rank)
}

func TestBlendEmpty(t *testing.T) {
	assert.Empty(t, Blend(nil, nil))
}

func catalogOf(n int) []entity.Entity {
	out := make([]entity.Entity, n)
	for i := range out {
		out[i] = entity.Entity{Slug: fmt.Sprintf("e%02d", i), Name: fmt.Sprintf("E %d", i)}
	}
	return out
}

func TestSelectDisplaySetNewUserIsRandomSample(t *testing.T) {
	entities := catalogOf(20)
	scores := map[string]float64{}

	a := SelectDisplaySet(entities, scores, false, 8, rand.New(rand.NewPCG(1, 1)))
	b := SelectDisplaySet(entities, scores, false, 8, rand.New(rand.NewPCG(2, 2)))
	require.Len(t, a, 8)
	require.Len(t, b, 8)

	seen := map[string]bool{}
	for _, s := range a {
		assert.False(t, seen[s.Entity.Slug], "duplicate %s", s.Entity.Slug)
		seen[s.Entity.Slug] = true
	}

	slugs := func(xs []Scored) []string {
		out := make([]string, len(xs))
		for i, x := range xs {
			out[i] = x.Entity.Slug
		}
		return out
	}
	assert.NotEqual(t, slugs(a), slugs(b))
	// an all-zero ranking would be the first eight by slug
	assert.NotEqual(t, slugs(SelectDisplaySet(entities, scores, true, 8, nil)), slugs(a))
}

func TestSelectDisplaySetTopN(t *testing.T) {
	entities := catalogOf(5)
	scores := map[string]float64{"e03": 0.9, "e01": 0.4, "e04": 0.4, "e00": 1.5}

	got := SelectDisplaySet(entities, scores, true, 3, nil)
	require.Len(t, got, 3)
	assert.Equal(t, "e00", got[0].Entity.Slug)
	assert.Equal(t, 1.0, got[0].Score)
	assert.Equal(t, "e03", got[1].Entity.Slug)
	assert.Equal(t, "e01", got[2].Entity.Slug)
}

func TestSelectDisplaySetBounds(t *testing.T) {
	assert.Nil(t, SelectDisplaySet(nil, nil, true, 8, nil))
	assert.Nil(t, SelectDisplaySet(catalogOf(3), nil, true, 0, nil))
	assert.Len(t, SelectDisplaySet(catalogOf(3), nil, false, 8, nil), 3)
}

func TestFromSearch(t *testing.T) {
	catalog := map[string]entity.Entity{"a": {Slug: "a"}, "b": {Slug: "b"}}
	ranked := []Ranked{{Slug: "ghost", Combined: 0.9}, {Slug: "b", Combined: 0.8}, {Slug: "a", Combined: 0.7}}

	got := FromSearch(ranked, catalog, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Entity.Slug)
	assert.Equal(t, 0.8, got[0].Score)
}
