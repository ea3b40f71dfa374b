// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

// Package probabilistic turns point reconciliations into prediction
// intervals, either analytically under a Gaussian assumption or by
// resampling insample residuals.
package probabilistic

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// Quantile returns the empirical q-quantile of samples (0 <= q <= 1) using
// linear interpolation between order statistics. NaN samples are ignored.
func Quantile(samples []float64, q float64) float64 {
	tmp := make([]float64, 0, len(samples))
	for _, s := range samples {
		if !math.IsNaN(s) {
			tmp = append(tmp, s)
		}
	}
	n := len(tmp)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(tmp)

	if q <= 0 {
		return tmp[0]
	}
	if q >= 1 {
		return tmp[n-1]
	}

	pos := q * float64(n-1)
	idxBelow := int(math.Floor(pos))
	idxAbove := int(math.Ceil(pos))

	if idxAbove == idxBelow {
		return tmp[idxBelow]
	}

	weight := pos - float64(idxBelow)
	return tmp[idxBelow]*(1.0-weight) + tmp[idxAbove]*weight
}

// QuantileMatrix computes Quantile entry by entry across draws, which must all
// share one shape.
func QuantileMatrix(draws []*mat.Dense, q float64) *mat.Dense {
	if len(draws) == 0 {
		return nil
	}
	r, c := draws[0].Dims()
	out := mat.NewDense(r, c, nil)
	vals := make([]float64, len(draws))
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			for d, draw := range draws {
				vals[d] = draw.At(i, j)
			}
			out.Set(i, j, Quantile(vals, q))
		}
	}
	return out
}

// Band is a central prediction interval at Level percent.
type Band struct {
	Level float64
	Lo    *mat.Dense // series × horizon
	Hi    *mat.Dense
}

// LevelLabel formats a level for column names: 80 -> "80", 97.5 -> "97.5".
func LevelLabel(level float64) string {
	return strconv.FormatFloat(level, 'f', -1, 64)
}

// CheckLevels rejects levels outside the open interval (0, 100).
func CheckLevels(levels []float64) error {
	if len(levels) == 0 {
		return fmt.Errorf("no interval levels given")
	}
	for _, lv := range levels {
		if !(lv > 0 && lv < 100) {
			return fmt.Errorf("interval level %v must be in (0, 100)", lv)
		}
	}
	return nil
}

// QuantileForecast is the Q-quantile of a reconciled forecast.
type QuantileForecast struct {
	Q      float64
	Values *mat.Dense // series × horizon
}

// QuantileLabel formats a quantile for column names: 0.1 -> "0.1".
func QuantileLabel(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// CheckQuantiles rejects quantiles outside the open interval (0, 1).
func CheckQuantiles(qs []float64) error {
	for _, q := range qs {
		if !(q > 0 && q < 1) {
			return fmt.Errorf("quantile %v must be in (0, 1)", q)
		}
	}
	return nil
}

// Prediction is the probabilistic part of one reconciled forecast.
type Prediction struct {
	Bands     []Band
	Quantiles []QuantileForecast
}

// Sampler produces interval bands at levels and quantile forecasts at
// quantiles for one reconciled forecast. Either list may be empty.
type Sampler interface {
	Predict(levels, quantiles []float64) (*Prediction, error)
}

func checkRequest(levels, quantiles []float64) error {
	if len(levels) == 0 && len(quantiles) == 0 {
		return fmt.Errorf("no interval levels or quantiles given")
	}
	if len(levels) > 0 {
		if err := CheckLevels(levels); err != nil {
			return err
		}
	}
	return CheckQuantiles(quantiles)
}

// empiricalPrediction reads bands and quantiles off sample draws. A level lv
// uses the quantiles (100-lv)/200 and 1-(100-lv)/200.
func empiricalPrediction(draws []*mat.Dense, levels, quantiles []float64) *Prediction {
	pred := &Prediction{Bands: make([]Band, len(levels))}
	for i, lv := range levels {
		minQ := (100 - lv) / 200
		pred.Bands[i] = Band{
			Level: lv,
			Lo:    QuantileMatrix(draws, minQ),
			Hi:    QuantileMatrix(draws, 1-minQ),
		}
	}
	for _, q := range quantiles {
		pred.Quantiles = append(pred.Quantiles, QuantileForecast{Q: q, Values: QuantileMatrix(draws, q)})
	}
	return pred
}
