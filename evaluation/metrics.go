// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package evaluation

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metric scores predicted against actual. Both slices have the same length
// and contain no NaN. A metric must not modify its arguments.
type Metric func(actual, predicted []float64) float64

// NamedMetric is a Metric with the name used in reports.
type NamedMetric struct {
	Name string
	Fn   Metric
}

// Builtin returns the built-in metrics in report order.
func Builtin() []NamedMetric {
	return []NamedMetric{
		{Name: "mse", Fn: MSE},
		{Name: "rmse", Fn: RMSE},
		{Name: "mae", Fn: MAE},
		{Name: "mape", Fn: MAPE},
		{Name: "smape", Fn: SMAPE},
	}
}

// ByName looks up a built-in metric.
func ByName(name string) (NamedMetric, bool) {
	for _, m := range Builtin() {
		if m.Name == name {
			return m, true
		}
	}
	return NamedMetric{}, false
}

func differences(actual, predicted []float64) []float64 {
	d := make([]float64, len(actual))
	floats.SubTo(d, actual, predicted)
	return d
}

// MSE is the mean squared error.
func MSE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	d := differences(actual, predicted)
	return floats.Dot(d, d) / float64(len(d))
}

// RMSE is the root mean squared error.
func RMSE(actual, predicted []float64) float64 {
	return math.Sqrt(MSE(actual, predicted))
}

// MAE is the mean absolute error.
func MAE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	return floats.Norm(differences(actual, predicted), 1) / float64(len(actual))
}

// MAPE is the mean of |a-p|/|a| over the points where a != 0, as a fraction.
func MAPE(actual, predicted []float64) float64 {
	var terms []float64
	for i, a := range actual {
		if a == 0 {
			continue
		}
		terms = append(terms, math.Abs(a-predicted[i])/math.Abs(a))
	}
	if len(terms) == 0 {
		return math.NaN()
	}
	return stat.Mean(terms, nil)
}

// SMAPE is the mean of 2|a-p|/(|a|+|p|), in [0, 2]. Points where both sides
// are zero count as perfect.
func SMAPE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	terms := make([]float64, len(actual))
	for i, a := range actual {
		scale := math.Abs(a) + math.Abs(predicted[i])
		if scale == 0 {
			continue
		}
		terms[i] = 2 * math.Abs(a-predicted[i]) / scale
	}
	return stat.Mean(terms, nil)
}
