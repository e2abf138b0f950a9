package entity

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Entity is the normalized view of a knowledge-base record. The relevance
// and layout engines only ever see this shape.
type Entity struct {
	Slug            string                    `json:"slug"`
	Name            string                    `json:"name"`
	SearchText      []string                  `json:"search_text,omitempty"`
	PerspectiveData map[string]map[string]any `json:"perspective_data,omitempty"`
}

// HasPerspective reports whether the facet exists and is a non-empty object.
func (e Entity) HasPerspective(id string) bool {
	data, ok := e.PerspectiveData[id]
	return ok && len(data) > 0
}

// Perspectives returns the ids of all non-empty facets, sorted.
func (e Entity) Perspectives() []string {
	var ids []string
	for id, data := range e.PerspectiveData {
		if len(data) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Searchable returns the case-folded concatenation of all searchable fields.
func (e Entity) Searchable() string {
	parts := make([]string, 0, len(e.SearchText)+2)
	parts = append(parts, e.Name, e.Slug)
	parts = append(parts, e.SearchText...)
	return strings.ToLower(strings.Join(parts, " "))
}

// Field names tried in order when a record has several aliases.
var (
	slugKeys = []string{"slug", "id", "_id"}
	nameKeys = []string{"name", "commonName", "common_name", "scientificName", "scientific_name", "title"}
	textKeys = []string{
		"name", "commonName", "common_name", "commonNames", "common_names",
		"scientificName", "scientific_name", "synonyms", "tags",
		"genus", "family", "order", "taxonomy", "description",
	}
	perspectiveKeys = []string{"perspectives", "perspectiveData", "perspective_data"}
)

// Normalize converts a loosely shaped record into an Entity. Values may be
// plain or wrapped as {"value": ..., "confidence": ..., "sources": ...}.
// Records without a usable slug or name are rejected.
func Normalize(raw map[string]any) (Entity, error) {
	var e Entity

	for _, k := range slugKeys {
		if s := stringValue(raw[k]); s != "" {
			e.Slug = s
			break
		}
	}
	for _, k := range nameKeys {
		if s := stringValue(raw[k]); s != "" {
			e.Name = s
			break
		}
	}
	if e.Slug == "" && e.Name != "" {
		e.Slug = Slugify(e.Name)
	}
	if e.Slug == "" {
		return Entity{}, fmt.Errorf("record has no slug or name")
	}
	if e.Name == "" {
		e.Name = e.Slug
	}

	seen := make(map[string]bool)
	for _, k := range textKeys {
		for _, s := range stringsOf(raw[k]) {
			s = strings.TrimSpace(s)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			e.SearchText = append(e.SearchText, s)
		}
	}

	for _, k := range perspectiveKeys {
		facets, ok := unwrap(raw[k]).(map[string]any)
		if !ok {
			continue
		}
		e.PerspectiveData = make(map[string]map[string]any, len(facets))
		for id, v := range facets {
			if obj, ok := unwrap(v).(map[string]any); ok {
				e.PerspectiveData[id] = obj
			} else {
				e.PerspectiveData[id] = nil
			}
		}
		break
	}

	return e, nil
}

// NormalizeAll normalizes a batch, skipping records that cannot be
// normalized and duplicate slugs (first wins).
func NormalizeAll(raws []map[string]any) ([]Entity, int) {
	out := make([]Entity, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	skipped := 0
	for _, raw := range raws {
		e, err := Normalize(raw)
		if err != nil || seen[e.Slug] {
			skipped++
			continue
		}
		seen[e.Slug] = true
		out = append(out, e)
	}
	return out, skipped
}

// LoadFile reads a JSON array of records and normalizes them.
func LoadFile(path string) ([]Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON array of records and normalizes them.
func Parse(data []byte) ([]Entity, error) {
	var raws []map[string]any
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	entities, _ := NormalizeAll(raws)
	return entities, nil
}

// Slugify lowercases s and joins alphanumeric runs with hyphens.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// unwrap strips a {"value": ...} confidence wrapper.
func unwrap(v any) any {
	if m, ok := v.(map[string]any); ok {
		if inner, ok := m["value"]; ok {
			return inner
		}
	}
	return v
}

func stringValue(v any) string {
	switch s := unwrap(v).(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%g", s))
	}
	return ""
}

// stringsOf flattens strings, string arrays and string-valued maps
// (taxonomy objects) into a list.
func stringsOf(v any) []string {
	switch x := unwrap(v).(type) {
	case string:
		return []string{x}
	case []any:
		var out []string
		for _, item := range x {
			out = append(out, stringsOf(item)...)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			out = append(out, stringsOf(x[k])...)
		}
		return out
	}
	return nil
}
