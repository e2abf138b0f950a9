package entity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlainRecord(t *testing.T) {
	e, err := Normalize(map[string]any{
		"slug":     "chanterelle",
		"name":     "Golden Chanterelle",
		"synonyms": []any{"Girolle", "Cantharellus cibarius"},
		"tags":     []any{"edible", "mushroom"},
		"perspectives": map[string]any{
			"culinary":  map[string]any{"taste": "fruity"},
			"medicinal": nil,
			"ecology":   map[string]any{},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "chanterelle", e.Slug)
	assert.Equal(t, "Golden Chanterelle", e.Name)
	assert.Contains(t, e.SearchText, "Girolle")
	assert.Contains(t, e.SearchText, "edible")
	assert.True(t, e.HasPerspective("culinary"))
	assert.False(t, e.HasPerspective("medicinal"))
	assert.False(t, e.HasPerspective("ecology"))
	assert.False(t, e.HasPerspective("missing"))
	assert.Equal(t, []string{"culinary"}, e.Perspectives())
}

func TestNormalizeWrappedValues(t *testing.T) {
	e, err := Normalize(map[string]any{
		"id":             map[string]any{"value": "fly-agaric", "confidence": 0.9},
		"commonName":     map[string]any{"value": "Fly Agaric", "sources": []any{"wiki"}},
		"scientificName": "Amanita muscaria",
		"taxonomy": map[string]any{
			"genus":  "Amanita",
			"family": "Amanitaceae",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "fly-agaric", e.Slug)
	assert.Equal(t, "Fly Agaric", e.Name)
	assert.Contains(t, e.Searchable(), "amanita muscaria")
	assert.Contains(t, e.Searchable(), "amanitaceae")
}

func TestNormalizeSlugFromName(t *testing.T) {
	e, err := Normalize(map[string]any{"name": "Hen of the Woods!"})
	require.NoError(t, err)
	assert.Equal(t, "hen-of-the-woods", e.Slug)
}

func TestNormalizeRejectsEmpty(t *testing.T) {
	_, err := Normalize(map[string]any{"tags": []any{"x"}})
	assert.Error(t, err)
}

func TestNormalizeAllSkipsDuplicatesAndInvalid(t *testing.T) {
	entities, skipped := NormalizeAll([]map[string]any{
		{"slug": "a", "name": "A"},
		{"slug": "a", "name": "A again"},
		{},
		{"slug": "b"},
	})
	assert.Len(t, entities, 2)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, "b", entities[1].Name)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"slug":"morel","name":"Morel","tags":["edible"]}]`), 0o644))

	entities, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "morel", entities[0].Slug)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestParseRejectsNonArray(t *testing.T) {
	_, err := Parse([]byte(`{"slug":"morel"}`))
	assert.Error(t, err)

	entities, err := Parse([]byte(`[{"name":"Hen of the Woods"},{"bogus":1}]`))
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "hen-of-the-woods", entities[0].Slug)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "king-bolete", Slugify("  King  Bolete "))
	assert.Equal(t, "a1-b2", Slugify("A1_B2"))
	assert.Equal(t, "", Slugify("!!!"))
}
