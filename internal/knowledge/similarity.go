package knowledge

import (
	"math"
	"strings"
	"unicode"
)

// tokenize lowercases and splits text on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tfidfVectors builds smoothed TF-IDF vectors for the corpus. The vector space
// is shared across documents so cosine comparisons are meaningful.
func tfidfVectors(corpus [][]string) []map[string]float64 {
	docFreq := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]struct{}, len(doc))
		for _, term := range doc {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			docFreq[term]++
		}
	}

	n := float64(len(corpus))
	vectors := make([]map[string]float64, len(corpus))
	for i, doc := range corpus {
		counts := make(map[string]int, len(doc))
		for _, term := range doc {
			counts[term]++
		}
		vec := make(map[string]float64, len(counts))
		for term, count := range counts {
			tf := float64(count) / math.Max(float64(len(doc)), 1)
			idf := math.Log((1+n)/(1+float64(docFreq[term]))) + 1
			vec[term] = tf * idf
		}
		vectors[i] = vec
	}
	return vectors
}

// cosine computes cosine similarity between two sparse vectors.
func cosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for term, va := range a {
		normA += va * va
		if vb, ok := b[term]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
