// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package methods

import (
	"fmt"
	"math"

	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"gonum.org/v1/gonum/mat"
)

// Proportion selects how a parent forecast is split among its descendants.
type Proportion string

const (
	// ForecastProportions splits each parent, step by step, by the share of
	// its children's own base forecasts.
	ForecastProportions Proportion = "forecast_proportions"
	// AverageProportions uses the mean over history of leaf/root ratios.
	AverageProportions Proportion = "average_proportions"
	// ProportionAverages uses mean(leaf history) / mean(root history).
	ProportionAverages Proportion = "proportion_averages"
)

// Valid reports whether p names a known strategy. The empty value is valid
// and means ForecastProportions.
func (p Proportion) Valid() bool {
	switch p {
	case "", ForecastProportions, AverageProportions, ProportionAverages:
		return true
	}
	return false
}

func (p Proportion) orDefault() Proportion {
	if p == "" {
		return ForecastProportions
	}
	return p
}

// historical reports whether the strategy estimates proportions from
// insample actuals.
func (p Proportion) historical() bool {
	return p.orDefault() != ForecastProportions
}

// TopDown distributes the root forecast down to the leaves. The structure
// must have exactly one root and be strictly hierarchical.
type TopDown struct {
	Method Proportion
}

func (m TopDown) Name() string {
	return methodName("TopDown", "method", string(m.Method.orDefault()))
}

func (m TopDown) Requirements() Requirements {
	return Requirements{Tags: true, Actuals: m.Method.historical()}
}

func (m TopDown) Reconcile(in Input) (*Output, error) {
	n, k, h, err := checkInput(in)
	if err != nil {
		return nil, err
	}
	if !m.Method.Valid() {
		return nil, fmt.Errorf("unknown top-down proportion strategy %q", m.Method)
	}
	st := in.Structure
	root, err := st.Root()
	if err != nil {
		return nil, err
	}
	if !hierarchy.IsStrictlyHierarchical(st, in.Tags) {
		return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil,
			"top-down reconciliation needs a strictly hierarchical structure")
	}

	if !m.Method.historical() {
		b := mat.NewDense(k, h, nil)
		forecastProportions(st, childMap(st, in.Tags), root, in.Forecast, b)
		return &Output{Mean: st.Aggregate(b), W: identitySym(n)}, nil
	}

	cols := leafColumns(st, root)
	props, err := historicalProportions(st, root, cols, in.Insample, m.Method.orDefault())
	if err != nil {
		return nil, err
	}
	p := mat.NewDense(k, n, nil)
	for idx, j := range cols {
		p.Set(j, root, props[idx])
	}
	return &Output{
		Mean: applyP(st, p, in.Forecast),
		P:    p,
		W:    identitySym(n),
	}, nil
}

// childMap links every tagged parent row to its child rows one level down.
func childMap(st *hierarchy.Structure, tags hierarchy.Tags) map[int][]int {
	children := make(map[int][]int)
	for _, level := range hierarchy.ChildNodes(st, tags.SortedBySize()) {
		for _, f := range level {
			for _, c := range f.Children {
				if c != f.Parent {
					children[f.Parent] = append(children[f.Parent], c)
				}
			}
		}
	}
	return children
}

// leafColumns returns the leaf columns aggregated by row.
func leafColumns(st *hierarchy.Structure, row int) []int {
	_, k := st.Dims()
	var cols []int
	for j := 0; j < k; j++ {
		if st.S.At(row, j) != 0 {
			cols = append(cols, j)
		}
	}
	return cols
}

// forecastProportions walks down from top, splitting each node's value among
// its children in proportion to their base forecasts, and writes the leaf
// values of that subtree into b (leaves × horizon). Children whose forecasts
// sum to zero share equally.
func forecastProportions(st *hierarchy.Structure, children map[int][]int, top int, yhat mat.Matrix, b *mat.Dense) {
	leafCol := make(map[int]int, len(st.BottomIdx()))
	for j, row := range st.BottomIdx() {
		leafCol[row] = j
	}
	_, h := yhat.Dims()
	for t := 0; t < h; t++ {
		var walk func(node int, value float64)
		walk = func(node int, value float64) {
			if j, ok := leafCol[node]; ok {
				b.Set(j, t, value)
				return
			}
			kids := children[node]
			if len(kids) == 0 {
				// Untagged descendants: spread evenly over the leaves.
				cols := leafColumns(st, node)
				for _, j := range cols {
					b.Set(j, t, value/float64(len(cols)))
				}
				return
			}
			total := 0.0
			for _, c := range kids {
				total += yhat.At(c, t)
			}
			for _, c := range kids {
				share := 1 / float64(len(kids))
				if total != 0 {
					share = yhat.At(c, t) / total
				}
				walk(c, value*share)
			}
		}
		walk(top, yhat.At(top, t))
	}
}

// historicalProportions estimates, for each leaf column in cols, its share of
// top from the insample actuals. Leaves without usable history get an equal
// share.
func historicalProportions(st *hierarchy.Structure, top int, cols []int, in *hierarchy.Insample, method Proportion) ([]float64, error) {
	if !in.HasActuals() {
		return nil, hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", nil,
			"%s needs insample actuals", method)
	}
	y := in.Y.Values
	_, T := y.Dims()
	topRow := y.RawRowView(top)
	props := make([]float64, len(cols))
	for idx, j := range cols {
		leafRow := y.RawRowView(st.BottomIdx()[j])
		props[idx] = math.NaN()
		switch method {
		case AverageProportions:
			sum, count := 0.0, 0
			for t := 0; t < T; t++ {
				if math.IsNaN(leafRow[t]) || math.IsNaN(topRow[t]) || topRow[t] == 0 {
					continue
				}
				sum += leafRow[t] / topRow[t]
				count++
			}
			if count > 0 {
				props[idx] = sum / float64(count)
			}
		case ProportionAverages:
			// Both means run over the same steps, so their ratio is a ratio of sums.
			sumLeaf, sumTop := 0.0, 0.0
			for t := 0; t < T; t++ {
				if math.IsNaN(leafRow[t]) || math.IsNaN(topRow[t]) {
					continue
				}
				sumLeaf += leafRow[t]
				sumTop += topRow[t]
			}
			if sumTop != 0 {
				props[idx] = sumLeaf / sumTop
			}
		default:
			return nil, fmt.Errorf("unknown historical proportion strategy %q", method)
		}
	}
	for idx := range props {
		if math.IsNaN(props[idx]) {
			props[idx] = 1 / float64(len(cols))
		}
	}
	return props, nil
}
