package ranking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name   string
		a, b   []float32
		want   float64
		wantOK bool
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1.0, true},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0, true},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0, true},
		{"scaled", []float32{2, 0}, []float32{5, 0}, 1.0, true},
		{"zero norm a", []float32{0, 0}, []float32{1, 0}, 0, false},
		{"zero norm b", []float32{1, 0}, []float32{0, 0}, 0, false},
		{"missing a", nil, []float32{1, 0}, 0, false},
		{"missing b", []float32{1, 0}, nil, 0, false},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CosineSimilarity(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestRank_OrdersDescending(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{
		{ID: "far", Vector: []float32{0, 1}},
		{ID: "close", Vector: []float32{1, 0.1}},
		{ID: "exact", Vector: []float32{1, 0}},
	}

	results := Rank(query, candidates, -1, 10)
	require.Len(t, results, 3)
	assert.Equal(t, "exact", results[0].ID)
	assert.Equal(t, "close", results[1].ID)
	assert.Equal(t, "far", results[2].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestRank_ExcludesZeroNormCandidates(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{
		{ID: "zero", Vector: []float32{0, 0}},
		{ID: "missing", Vector: nil},
		{ID: "valid", Vector: []float32{1, 0}},
	}

	results := Rank(query, candidates, -1, 10)
	require.Len(t, results, 1)
	assert.Equal(t, "valid", results[0].ID)
}

func TestRank_FiltersByMinSimilarity(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{
		{ID: "exact", Vector: []float32{1, 0}},
		{ID: "diagonal", Vector: []float32{1, 1}}, // score ~0.707
		{ID: "orthogonal", Vector: []float32{0, 1}},
	}

	results := Rank(query, candidates, 0.9, 10)
	require.Len(t, results, 1)
	assert.Equal(t, "exact", results[0].ID)

	for _, r := range Rank(query, candidates, 0.5, 10) {
		assert.GreaterOrEqual(t, r.Score, 0.5)
	}
}

func TestRank_TruncatesToLimit(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{1, 0.1}},
		{ID: "c", Vector: []float32{1, 0.2}},
	}

	results := Rank(query, candidates, -1, 2)
	assert.Len(t, results, 2)
}

func TestRank_ZeroLimit(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{{ID: "a", Vector: []float32{1, 0}}}

	assert.Empty(t, Rank(query, candidates, -1, 0))
	assert.Empty(t, Rank(query, candidates, -1, -5))
}

func TestRank_TiesKeepCandidateOrder(t *testing.T) {
	query := []float32{1, 0}
	// Same direction, different magnitude: identical cosine scores.
	candidates := []Candidate{
		{ID: "first", Vector: []float32{2, 0}},
		{ID: "second", Vector: []float32{3, 0}},
		{ID: "third", Vector: []float32{1, 0}},
	}

	results := Rank(query, candidates, -1, 10)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{results[0].ID, results[1].ID, results[2].ID})
	assert.Equal(t, []int{0, 1, 2}, []int{results[0].Index, results[1].Index, results[2].Index})
}

func TestRank_ZeroNormQuery(t *testing.T) {
	candidates := []Candidate{{ID: "a", Vector: []float32{1, 0}}}
	assert.Empty(t, Rank([]float32{0, 0}, candidates, -1, 10))
}

func TestRank_ScoreInUnitRange(t *testing.T) {
	query := []float32{0.3, 0.7, 0.2}
	candidates := []Candidate{
		{ID: "a", Vector: []float32{0.1, 0.9, 0.05}},
		{ID: "b", Vector: []float32{0.5, 0.1, 0.8}},
	}

	for _, r := range Rank(query, candidates, -1, 10) {
		assert.LessOrEqual(t, r.Score, 1.0+1e-9)
		assert.GreaterOrEqual(t, r.Score, -1.0-1e-9)
		assert.False(t, math.IsNaN(r.Score))
	}
}
