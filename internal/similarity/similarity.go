// Package similarity derives pairwise entity weights for bubble-to-bubble
// connections: TF-IDF cosine over searchable text, and perspective overlap.
package similarity

import (
	"math"
	"sort"
	"strings"

	"github.com/lazypower/fungimap/internal/entity"
)

// Pair is an undirected weighted edge between two entity slugs, A < B.
type Pair struct {
	A      string
	B      string
	Weight float64
}

// Model is a TF-IDF vocabulary built from a catalog.
type Model struct {
	vocab []string
	index map[string]int
	idf   map[string]float64
}

// NewModel builds a TF-IDF model from the entities' searchable text,
// keeping the maxTerms most common terms.
func NewModel(entities []entity.Entity, maxTerms int) *Model {
	if maxTerms <= 0 {
		maxTerms = 512
	}

	df := make(map[string]int)
	for _, e := range entities {
		seen := make(map[string]bool)
		for _, term := range tokenize(e.Searchable()) {
			if !seen[term] {
				df[term]++
				seen[term] = true
			}
		}
	}

	type termFreq struct {
		term string
		freq int
	}
	terms := make([]termFreq, 0, len(df))
	for t, f := range df {
		terms = append(terms, termFreq{t, f})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].freq != terms[j].freq {
			return terms[i].freq > terms[j].freq
		}
		return terms[i].term < terms[j].term
	})
	if len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}

	numDocs := math.Max(1, float64(len(entities)))
	m := &Model{
		vocab: make([]string, len(terms)),
		index: make(map[string]int, len(terms)),
		idf:   make(map[string]float64, len(terms)),
	}
	for i, tf := range terms {
		m.vocab[i] = tf.term
		m.index[tf.term] = i
		// smoothed: log(N/df) + 1
		m.idf[tf.term] = math.Log(numDocs/float64(tf.freq)) + 1.0
	}
	return m
}

// Dimensions is the vector length.
func (m *Model) Dimensions() int { return len(m.vocab) }

// Embed returns an L2-normalized TF-IDF vector for text.
func (m *Model) Embed(text string) []float64 {
	vec := make([]float64, len(m.vocab))
	tokens := tokenize(text)
	if len(tokens) == 0 || len(vec) == 0 {
		return vec
	}

	tf := make(map[string]int)
	maxTF := 0
	for _, tok := range tokens {
		tf[tok]++
		maxTF = max(maxTF, tf[tok])
	}
	for term, count := range tf {
		i, ok := m.index[term]
		if !ok {
			continue
		}
		// augmented TF keeps long descriptions from dominating
		vec[i] = (0.5 + 0.5*float64(count)/float64(maxTF)) * m.idf[term]
	}
	normalize(vec)
	return vec
}

// TextPairs returns, for each entity, its top k most similar peers with a
// cosine similarity of at least threshold. Pairs are deduplicated.
func (m *Model) TextPairs(entities []entity.Entity, k int, threshold float64) []Pair {
	vecs := make([][]float64, len(entities))
	for i, e := range entities {
		vecs[i] = m.Embed(e.Searchable())
	}
	return topK(entities, k, threshold, func(i, j int) float64 {
		return CosineSimilarity(vecs[i], vecs[j])
	})
}

// PerspectivePairs links entities that share non-empty perspectives,
// weighted by Jaccard overlap of their perspective sets.
func PerspectivePairs(entities []entity.Entity, k int, threshold float64) []Pair {
	sets := make([][]string, len(entities))
	for i, e := range entities {
		sets[i] = e.Perspectives()
	}
	return topK(entities, k, threshold, func(i, j int) float64 {
		return jaccard(sets[i], sets[j])
	})
}

func topK(entities []entity.Entity, k int, threshold float64, sim func(i, j int) float64) []Pair {
	if k <= 0 || len(entities) < 2 {
		return nil
	}
	type cand struct {
		j int
		w float64
	}
	seen := make(map[[2]string]bool)
	var out []Pair
	for i := range entities {
		var cands []cand
		for j := range entities {
			if i == j || entities[i].Slug == entities[j].Slug {
				continue
			}
			w := sim(i, j)
			if math.IsNaN(w) || w < threshold || w <= 0 {
				continue
			}
			cands = append(cands, cand{j, math.Min(1, w)})
		}
		sort.Slice(cands, func(a, b int) bool {
			if cands[a].w != cands[b].w {
				return cands[a].w > cands[b].w
			}
			return entities[cands[a].j].Slug < entities[cands[b].j].Slug
		})
		if len(cands) > k {
			cands = cands[:k]
		}
		for _, c := range cands {
			a, b := entities[i].Slug, entities[c.j].Slug
			if b < a {
				a, b = b, a
			}
			key := [2]string{a, b}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Pair{A: a, B: b, Weight: c.w})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	inter := 0
	union := len(set)
	for _, y := range b {
		if set[y] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// tokenize splits text into lowercase tokens, stripping punctuation and
// single-character tokens.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 1 {
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// CosineSimilarity of two equal-length vectors; 0 for mismatched or zero vectors.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
