// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package evaluation

import (
	"errors"
	"math"
	"testing"

	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const tolerance = 1e-12

var ids = []string{"R", "A", "B"}

func table(t *testing.T, vals ...float64) *hierarchy.Table {
	t.Helper()
	tb, err := hierarchy.NewTable(ids, mat.NewDense(3, len(vals)/3, vals))
	require.NoError(t, err)
	return tb
}

var tags = hierarchy.Tags{
	{Name: "Total", IDs: []string{"R"}},
	{Name: "Leaf", IDs: []string{"A", "B"}},
}

func Test_Metrics(t *testing.T) {
	assert := assert.New(t)
	a := []float64{1, 2, 4}
	p := []float64{2, 2, 2}
	assert.InDelta(5.0/3, MSE(a, p), tolerance)
	assert.InDelta(math.Sqrt(5.0/3), RMSE(a, p), tolerance)
	assert.InDelta(1.0, MAE(a, p), tolerance)
	assert.InDelta((1.0+0+0.5)/3, MAPE(a, p), tolerance)
	assert.InDelta((2.0/3+0+4.0/6)/3, SMAPE(a, p), tolerance)

	assert.True(math.IsNaN(MSE(nil, nil)))
	assert.True(math.IsNaN(MAPE([]float64{0}, []float64{1})))
	assert.Equal(0.0, SMAPE([]float64{0}, []float64{0}))
	// Inputs are not modified.
	assert.Equal([]float64{1, 2, 4}, a)
}

func Test_ByName(t *testing.T) {
	m, ok := ByName("rmse")
	assert.True(t, ok)
	assert.Equal(t, "rmse", m.Name)
	_, ok = ByName("crps")
	assert.False(t, ok)
}

func Test_New(t *testing.T) {
	assert := assert.New(t)
	he, err := New()
	assert.NoError(err)
	assert.Len(he.Metrics, 5)
	_, err = New(NamedMetric{Name: "mse", Fn: MSE}, NamedMetric{Name: "mse", Fn: MSE})
	assert.Error(err)
	_, err = New(NamedMetric{Name: "x"})
	assert.Error(err)
}

func Test_Evaluate_perLevel(t *testing.T) {
	assert := assert.New(t)
	he, err := New(NamedMetric{Name: "mse", Fn: MSE})
	require.NoError(t, err)
	actual := table(t, 10, 4, 6)
	report, err := he.Evaluate(map[string]*hierarchy.Table{
		"Naive/BottomUp": table(t, 8, 4, 4),
		"Naive":          table(t, 10, 4, 4),
	}, actual, tags, "")
	require.NoError(t, err)
	assert.Equal([]string{"Naive", "Naive/BottomUp"}, report.Columns)
	require.Len(t, report.Rows, 3)
	assert.Equal("Total", report.Rows[0].Level)
	assert.Equal("Leaf", report.Rows[1].Level)
	assert.Equal(OverallLevel, report.Rows[2].Level)

	s, ok := report.Score("Total", "mse", "Naive/BottomUp")
	require.True(t, ok)
	assert.InDelta(4.0, s, tolerance)
	s, _ = report.Score("Leaf", "mse", "Naive")
	assert.InDelta(2.0, s, tolerance)
	s, _ = report.Score(OverallLevel, "mse", "Naive/BottomUp")
	assert.InDelta(8.0/3, s, tolerance)
	_, ok = report.Score("Leaf", "mae", "Naive")
	assert.False(ok)
}

func Test_Evaluate_benchmark(t *testing.T) {
	assert := assert.New(t)
	he, err := New(NamedMetric{Name: "mse", Fn: MSE})
	require.NoError(t, err)
	actual := table(t, 10, 11, 4, 5, 6, 6)
	report, err := he.Evaluate(map[string]*hierarchy.Table{
		"naive": table(t, 9, 9, 4, 4, 5, 5),
		"mint":  table(t, 10, 10, 4, 5, 6, 5),
	}, actual, tags, "naive")
	require.NoError(t, err)
	for _, lv := range []string{"Total", "Leaf", OverallLevel} {
		s, ok := report.Score(lv, ScaledName("mse"), "naive")
		require.True(t, ok, lv)
		assert.Equal(1.0, s, lv)
	}
	// Leaf mse: mint 1/4, naive 3/4.
	s, _ := report.Score("Leaf", "mse-scaled", "mint")
	assert.InDelta(1.0/3, s, tolerance)

	// Raw scores stay, scaled rows follow them.
	require.Len(t, report.Rows, 6)
	assert.Equal("mse", report.Rows[0].Metric)
	assert.Equal("mse-scaled", report.Rows[3].Metric)
	assert.Equal(report.Rows[1].Level, report.Rows[4].Level)
	s, _ = report.Score("Leaf", "mse", "mint")
	assert.InDelta(0.25, s, tolerance)
	s, _ = report.Score("Leaf", "mse", "naive")
	assert.InDelta(0.75, s, tolerance)
}

func Test_Evaluate_zeroBenchmark(t *testing.T) {
	he, err := New(NamedMetric{Name: "mae", Fn: MAE})
	require.NoError(t, err)
	actual := table(t, 10, 4, 6)
	report, err := he.Evaluate(map[string]*hierarchy.Table{
		"perfect": table(t, 10, 4, 6),
		"other":   table(t, 9, 4, 6),
	}, actual, tags, "perfect")
	require.NoError(t, err)
	s, _ := report.Score("Total", "mae-scaled", "other")
	assert.True(t, math.IsNaN(s))
	s, _ = report.Score("Total", "mae-scaled", "perfect")
	assert.True(t, math.IsNaN(s))
}

func Test_Evaluate_errors(t *testing.T) {
	assert := assert.New(t)
	he, err := New()
	require.NoError(t, err)
	actual := table(t, 10, 4, 6)

	_, err = he.Evaluate(map[string]*hierarchy.Table{"a": table(t, 1, 2, 3)}, actual, tags, "b")
	assert.Error(err)

	short, err := hierarchy.NewTable([]string{"R", "A"}, mat.NewDense(2, 1, []float64{1, 2}))
	require.NoError(t, err)
	_, err = he.Evaluate(map[string]*hierarchy.Table{"a": short}, actual, tags, "")
	assert.True(errors.Is(err, hierarchy.ErrShapeMismatch))
	assert.Contains(err.Error(), "B")

	bad := append(hierarchy.Tags{}, tags...)
	bad = append(bad, hierarchy.Level{Name: "X", IDs: []string{"Z"}})
	_, err = he.Evaluate(map[string]*hierarchy.Table{"a": table(t, 1, 2, 3)}, actual, bad, "")
	assert.True(errors.Is(err, hierarchy.ErrUnknownSeries))
}

func Test_Evaluate_skipsMissingActuals(t *testing.T) {
	he, err := New(NamedMetric{Name: "mae", Fn: MAE})
	require.NoError(t, err)
	actual := table(t, 10, math.NaN(), 6)
	report, err := he.Evaluate(map[string]*hierarchy.Table{"a": table(t, 10, 100, 5)}, actual, tags, "")
	require.NoError(t, err)
	s, _ := report.Score("Leaf", "mae", "a")
	assert.InDelta(t, 1.0, s, tolerance)
}
