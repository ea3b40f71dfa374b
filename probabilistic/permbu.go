// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package probabilistic

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// PERMBU draws every base marginal independently from N(ŷ, σ²), then walks
// the hierarchy from the bottom level up. At each parent the children's draws
// are reordered to follow the rank order of their insample residuals (an
// empirical copula) and summed into the parent's draws. Only strict
// hierarchies are supported, and the result is a BottomUp distribution, so P
// is not used.
type PERMBU struct {
	Structure *hierarchy.Structure
	Tags      hierarchy.Tags
	Forecast  *mat.Dense // base forecasts, series × horizon
	Sigma     *mat.Dense // base standard deviations, series × horizon
	Residuals *mat.Dense // insample y - ŷ, series × time, NaN where missing

	NumSamples int    // default: the number of complete residual steps
	Seed       uint64 // zero uses the clock
}

func (pb PERMBU) check() error {
	if pb.Structure == nil || pb.Forecast == nil {
		return fmt.Errorf("PERMBU needs S and the base forecasts")
	}
	if len(pb.Tags) == 0 {
		return hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil, "PERMBU needs hierarchy tags")
	}
	if !hierarchy.IsStrictlyHierarchical(pb.Structure, pb.Tags) {
		return hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil, "PERMBU needs a strictly hierarchical structure")
	}
	n, _ := pb.Structure.Dims()
	covered := make([]bool, n)
	for _, rows := range pb.Tags.Indices(pb.Structure) {
		for _, r := range rows {
			covered[r] = true
		}
	}
	var uncovered []string
	for i, ok := range covered {
		if !ok {
			uncovered = append(uncovered, pb.Structure.IDs[i])
		}
	}
	if len(uncovered) > 0 {
		return hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", uncovered, "PERMBU needs every series in a level")
	}
	if pb.Sigma == nil {
		return hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", nil,
			"PERMBU needs per-step standard deviations of the base forecasts")
	}
	if pb.Residuals == nil {
		return hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", nil, "PERMBU needs insample residuals")
	}
	fr, fc := pb.Forecast.Dims()
	sr, sc := pb.Sigma.Dims()
	rr, _ := pb.Residuals.Dims()
	if fr != n || sr != n || rr != n || fc != sc {
		return hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil,
			"forecasts are %dx%d, sigma is %dx%d, residuals have %d rows, S has %d rows",
			fr, fc, sr, sc, rr, n)
	}
	for i := 0; i < sr; i++ {
		for t := 0; t < sc; t++ {
			if s := pb.Sigma.At(i, t); !(s >= 0) || math.IsInf(s, 0) {
				return hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", []string{pb.Structure.IDs[i]},
					"standard deviation %v at step %d is not a finite non-negative number", s, t)
			}
		}
	}
	return nil
}

// argsort returns the indices of vals in ascending order, ties by position.
func argsort(vals []float64) []int {
	order := make([]int, len(vals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return vals[order[a]] < vals[order[b]] })
	return order
}

// ranks returns the rank of every value, ties broken by position.
func ranks(vals []float64) []int {
	r := make([]int, len(vals))
	for k, i := range argsort(vals) {
		r[i] = k
	}
	return r
}

// rankPermutation returns perm such that draws[perm[s]] has rank rank[s]
// among draws.
func rankPermutation(draws []float64, rank []int) []int {
	order := argsort(draws)
	perm := make([]int, len(rank))
	for s, k := range rank {
		perm[s] = order[k]
	}
	return perm
}

func permute(draws []float64, perm []int) []float64 {
	out := make([]float64, len(perm))
	for s, p := range perm {
		out[s] = draws[p]
	}
	return out
}

// subtrees lists, for every series, itself and the series it aggregates.
func subtrees(st *hierarchy.Structure) [][]int {
	n, k := st.Dims()
	out := make([][]int, n)
	for c := 0; c < n; c++ {
		for r := 0; r < n; r++ {
			inside := true
			for j := 0; j < k && inside; j++ {
				inside = st.S.At(r, j) == 0 || st.S.At(c, j) != 0
			}
			if inside {
				out[c] = append(out[c], r)
			}
		}
	}
	return out
}

// Samples returns NumSamples coherent draws (series × horizon).
func (pb PERMBU) Samples() ([]*mat.Dense, error) {
	if err := pb.check(); err != nil {
		return nil, err
	}
	cols := completeColumns(pb.Residuals)
	if len(cols) < 2 {
		return nil, hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", nil,
			"PERMBU needs at least 2 complete insample steps, found %d", len(cols))
	}
	seed := pb.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewPCG(seed, seed)
	rng := rand.New(src)

	numSamples := pb.NumSamples
	if numSamples <= 0 {
		numSamples = len(cols)
	}
	// Residual steps behind the copula: all of them, a random subset, or
	// resampled with replacement.
	picks := make([]int, numSamples)
	switch {
	case numSamples == len(cols):
		copy(picks, cols)
	case numSamples < len(cols):
		perm := rng.Perm(len(cols))
		for s := range picks {
			picks[s] = cols[perm[s]]
		}
	default:
		for s := range picks {
			picks[s] = cols[rng.IntN(len(cols))]
		}
	}

	n, h := pb.Forecast.Dims()
	rank := make([][]int, n)
	vals := make([]float64, numSamples)
	for i := 0; i < n; i++ {
		for s, c := range picks {
			vals[s] = pb.Residuals.At(i, c)
		}
		rank[i] = ranks(vals)
	}

	// samples[i][t] holds the draws of series i at step t.
	samples := make([][][]float64, n)
	for i := range samples {
		samples[i] = make([][]float64, h)
		for t := 0; t < h; t++ {
			dist := distuv.Normal{Mu: pb.Forecast.At(i, t), Sigma: pb.Sigma.At(i, t), Src: src}
			draws := make([]float64, numSamples)
			for s := range draws {
				draws[s] = dist.Rand()
			}
			samples[i][t] = draws
		}
	}

	// A child's whole subtree moves with it so lower sums stay aligned.
	sub := subtrees(pb.Structure)
	families := hierarchy.ChildNodes(pb.Structure, pb.Tags.SortedBySize())
	for lv := len(families) - 1; lv >= 0; lv-- {
		for _, f := range families[lv] {
			for t := 0; t < h; t++ {
				sum := make([]float64, numSamples)
				for _, c := range f.Children {
					perm := rankPermutation(samples[c][t], rank[c])
					for _, r := range sub[c] {
						samples[r][t] = permute(samples[r][t], perm)
					}
					floats.Add(sum, samples[c][t])
				}
				samples[f.Parent][t] = sum
			}
		}
	}

	out := make([]*mat.Dense, numSamples)
	for s := range out {
		out[s] = mat.NewDense(n, h, nil)
		for i := 0; i < n; i++ {
			for t := 0; t < h; t++ {
				out[s].Set(i, t, samples[i][t][s])
			}
		}
	}
	return out, nil
}

// Predict returns empirical bands and quantiles from the PERMBU draws.
func (pb PERMBU) Predict(levels, quantiles []float64) (*Prediction, error) {
	if err := checkRequest(levels, quantiles); err != nil {
		return nil, err
	}
	draws, err := pb.Samples()
	if err != nil {
		return nil, err
	}
	return empiricalPrediction(draws, levels, quantiles), nil
}
