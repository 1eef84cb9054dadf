package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceToSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, DistanceToSimilarity(0))
	assert.InDelta(t, 0.5, DistanceToSimilarity(1), 1e-9)
	assert.Equal(t, 0.0, DistanceToSimilarity(math.Inf(1)))
	assert.Equal(t, 0.0, DistanceToSimilarity(math.NaN()))
	// monotonically non-increasing
	prev := DistanceToSimilarity(0)
	for _, d := range []float64{0.1, 0.5, 1, 2, 10} {
		cur := DistanceToSimilarity(d)
		require.LessOrEqual(t, cur, prev)
		prev = cur
	}
	// negative distance treated as 0
	assert.Equal(t, 1.0, DistanceToSimilarity(-5))
}

func TestMinMaxNormalize(t *testing.T) {
	assert.Equal(t, []float64{1.0}, MinMaxNormalize([]float64{42}))
	assert.Equal(t, []float64{1, 1, 1}, MinMaxNormalize([]float64{3, 3, 3}))
	assert.Equal(t, []float64{0, 0, 0}, MinMaxNormalize([]float64{math.NaN(), math.Inf(1), math.Inf(-1)}))
	got := MinMaxNormalize([]float64{0, 5, 10})
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, got, 1e-9)
}

func TestFuseInRange(t *testing.T) {
	w := DefaultWeights()
	cases := []Scored[string]{
		{ID: "a"},
		{ID: "b", Vector: f(1)},
		{ID: "c", Vector: f(1), FTS: f(1)},
		{ID: "d", Vector: f(1), FTS: f(1), Graph: f(1)},
		{ID: "e", Vector: f(math.NaN())},
		{ID: "f", Vector: f(math.Inf(1)), FTS: f(-3)},
	}
	for _, s := range cases {
		got := Fuse(s, w)
		assert.GreaterOrEqual(t, got, 0.0, s.ID)
		assert.LessOrEqual(t, got, 1.0, s.ID)
	}
}

func TestFuseMultiSignalBonus(t *testing.T) {
	w := DefaultWeights()
	single := Scored[string]{ID: "x", Vector: f(1)}
	multi := Scored[string]{ID: "x", Vector: f(1), FTS: f(0)}
	// Two signals present even with a zero FTS subscore still earns the bonus
	// over the vector-only score at the same vector value.
	assert.InDelta(t, w.Vector*1+w.MultiBonus, Fuse(multi, w), 1e-9)
	assert.InDelta(t, w.Vector*1, Fuse(single, w), 1e-9)
}

func TestMergeByIDPreservesPresence(t *testing.T) {
	w := DefaultWeights()
	target := []Scored[string]{NewVector("a", "A", 0.8, w)}
	incoming := []Scored[string]{NewFTS("a", "A", 0.6, w), NewVector("b", "B", 0.2, w)}

	merged := MergeByID(target, incoming, w)
	require.Len(t, merged, 2)

	var a Scored[string]
	for _, s := range merged {
		if s.ID == "a" {
			a = s
		}
	}
	require.NotNil(t, a.Vector, "vector subscore must not disappear after merge")
	require.NotNil(t, a.FTS, "fts subscore from incoming must be applied")
	assert.InDelta(t, 0.8, *a.Vector, 1e-9)
	assert.InDelta(t, 0.6, *a.FTS, 1e-9)
}

func TestSortByFusedDescDeterministicTieBreak(t *testing.T) {
	scores := []Scored[string]{
		{ID: "z", Fused: 0.5},
		{ID: "a", Fused: 0.5},
		{ID: "m", Fused: 0.9},
	}
	SortByFusedDesc(scores)
	require.Equal(t, []string{"m", "a", "z"}, ids(scores))
}

func f(v float64) *float64 { return &v }

func ids(scores []Scored[string]) []string {
	out := make([]string, len(scores))
	for i, s := range scores {
		out[i] = s.ID
	}
	return out
}
