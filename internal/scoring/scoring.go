// Package scoring implements the retrieval score-fusion algebra: per-signal
// subscore normalization, weighted fusion into one scalar, id-keyed merge,
// and deterministic ranking. It is pure and allocation-light by design so
// both the retrieval pipeline and its tests can call it directly.
package scoring

import (
	"math"
	"sort"
)

// Weights configures fuse's linear combination. Zero value is NOT usable;
// callers should start from DefaultWeights.
type Weights struct {
	Vector     float64
	FTS        float64
	Graph      float64
	MultiBonus float64
}

// DefaultWeights is the shipped fusion weighting.
func DefaultWeights() Weights {
	return Weights{Vector: 0.5, FTS: 0.3, Graph: 0.2, MultiBonus: 0.02}
}

// Scored wraps an item with its id and per-signal subscores. Each subscore
// is a pointer so "absent" (nil) is distinguishable from "present but zero".
type Scored[T any] struct {
	ID     string
	Item   T
	Vector *float64
	FTS    *float64
	Graph  *float64
	Fused  float64
}

func ptr(v float64) *float64 { return &v }

// clamp01 clamps x into [0, 1], treating non-finite input as 0.
func clamp01(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// DistanceToSimilarity converts a vector distance into a [0,1] similarity:
// clamp01(1 / (1 + max(d, 0))); non-finite input yields 0. Monotonically
// non-increasing in d, and equal to 1.0 at d == 0.
func DistanceToSimilarity(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	if d < 0 {
		d = 0
	}
	return clamp01(1 / (1 + d))
}

// MinMaxNormalize linearly maps xs into [0, 1]. All-non-finite input yields
// all zeros; a near-constant input (max-min < eps) yields all ones,
// including the single-element case.
func MinMaxNormalize(xs []float64) []float64 {
	const eps = 1e-9
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	finiteAny := false
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		finiteAny = true
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	if !finiteAny {
		return out // all zero
	}
	if hi-lo < eps {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	span := hi - lo
	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			out[i] = 0
			continue
		}
		out[i] = clamp01((x - lo) / span)
	}
	return out
}

// Fuse combines the present subscores of s into one clamped [0,1] scalar,
// fuse = clamp01(w_v*v + w_f*f + w_g*g + bonus),
// where bonus applies when >= 2 signals are present and missing signals
// contribute 0.
func Fuse[T any](s Scored[T], w Weights) float64 {
	present := 0
	var sum float64
	if s.Vector != nil {
		sum += w.Vector * safe(*s.Vector)
		present++
	}
	if s.FTS != nil {
		sum += w.FTS * safe(*s.FTS)
		present++
	}
	if s.Graph != nil {
		sum += w.Graph * safe(*s.Graph)
		present++
	}
	if present >= 2 {
		sum += w.MultiBonus
	}
	return clamp01(sum)
}

func safe(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

// MergeByID folds incoming into target keyed by ID: for an id already in
// target, any incoming subscore that is non-nil overwrites that slot without
// clobbering the others (a present subscore never disappears); Fused is
// recomputed with w. New ids are appended. target is mutated and returned.
func MergeByID[T any](target []Scored[T], incoming []Scored[T], w Weights) []Scored[T] {
	idx := make(map[string]int, len(target))
	for i, s := range target {
		idx[s.ID] = i
	}
	for _, in := range incoming {
		if i, ok := idx[in.ID]; ok {
			cur := target[i]
			if in.Vector != nil {
				cur.Vector = in.Vector
			}
			if in.FTS != nil {
				cur.FTS = in.FTS
			}
			if in.Graph != nil {
				cur.Graph = in.Graph
			}
			cur.Fused = Fuse(cur, w)
			target[i] = cur
		} else {
			in.Fused = Fuse(in, w)
			idx[in.ID] = len(target)
			target = append(target, in)
		}
	}
	return target
}

// SortByFusedDesc sorts scores descending by Fused, tie-broken ascending by
// ID for a deterministic total order.
func SortByFusedDesc[T any](scores []Scored[T]) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Fused != scores[j].Fused {
			return scores[i].Fused > scores[j].Fused
		}
		return scores[i].ID < scores[j].ID
	})
}

// NewVector returns a Scored[T] with only the vector subscore populated.
func NewVector[T any](id string, item T, v float64, w Weights) Scored[T] {
	s := Scored[T]{ID: id, Item: item, Vector: ptr(v)}
	s.Fused = Fuse(s, w)
	return s
}

// NewFTS returns a Scored[T] with only the fts subscore populated.
func NewFTS[T any](id string, item T, f float64, w Weights) Scored[T] {
	s := Scored[T]{ID: id, Item: item, FTS: ptr(f)}
	s.Fused = Fuse(s, w)
	return s
}

// NewGraph returns a Scored[T] with only the graph subscore populated.
func NewGraph[T any](id string, item T, g float64, w Weights) Scored[T] {
	s := Scored[T]{ID: id, Item: item, Graph: ptr(g)}
	s.Fused = Fuse(s, w)
	return s
}

// WithVector returns a copy of s with its vector subscore set to v and Fused
// recomputed.
func WithVector[T any](s Scored[T], v float64, w Weights) Scored[T] {
	s.Vector = ptr(v)
	s.Fused = Fuse(s, w)
	return s
}

// WithGraph returns a copy of s with its graph subscore set to g and Fused
// recomputed.
func WithGraph[T any](s Scored[T], g float64, w Weights) Scored[T] {
	s.Graph = ptr(g)
	s.Fused = Fuse(s, w)
	return s
}
