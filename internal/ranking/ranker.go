// Package ranking orders embedding vectors by cosine similarity to a
// query vector.
package ranking

import (
	"math"
	"sort"
)

// Candidate is a vector under consideration, identified by the caller.
type Candidate struct {
	ID     string
	Vector []float32
}

// Result is a ranked candidate with its similarity score. Index is the
// candidate's position in the input slice so callers can map back to
// their own records.
type Result struct {
	ID    string
	Score float64
	Index int
}

// CosineSimilarity returns dot(a,b) / (‖a‖·‖b‖). It returns 0 and false
// when either vector is missing, mismatched in length, or has zero norm;
// similarity is undefined in those cases.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// Rank scores candidates against query, keeps those with score at or
// above minSimilarity, and returns at most limit results in descending
// score order. Ties keep original candidate order, so the result is
// deterministic. Candidates with a missing or zero-norm vector are
// excluded rather than scored as zero. A non-positive limit yields an
// empty result.
func Rank(query []float32, candidates []Candidate, minSimilarity float64, limit int) []Result {
	if limit <= 0 || len(candidates) == 0 {
		return []Result{}
	}

	results := make([]Result, 0, len(candidates))
	for i, c := range candidates {
		score, ok := CosineSimilarity(query, c.Vector)
		if !ok {
			continue
		}
		if score < minSimilarity {
			continue
		}
		results = append(results, Result{ID: c.ID, Score: score, Index: i})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
