// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultShrinkRidge is the diagonal ridge added to the shrunk covariance so
// it stays strictly positive definite.
const DefaultShrinkRidge = 2e-8

// Covariance computes the cross-sectional covariance of res, where rows are
// series and columns are time steps. NaN entries are masked: each series is
// centered on its own observed mean and every pair (i, j) is averaged over the
// time steps where both are observed, with divisor n_pair - 1. Pairs with
// fewer than two common observations get zero covariance.
func Covariance(res mat.Matrix) *mat.SymDense {
	n, T := res.Dims()

	// Center each row on its own non-missing mean
	centered := mat.NewDense(n, T, nil)
	observed := make([][]bool, n)
	for i := 0; i < n; i++ {
		observed[i] = make([]bool, T)
		sum, count := 0.0, 0
		for t := 0; t < T; t++ {
			v := res.At(i, t)
			if math.IsNaN(v) {
				continue
			}
			observed[i][t] = true
			sum += v
			count++
		}
		mean := 0.0
		if count > 0 {
			mean = sum / float64(count)
		}
		for t := 0; t < T; t++ {
			if observed[i][t] {
				centered.Set(i, t, res.At(i, t)-mean)
			}
		}
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		ri := centered.RawRowView(i)
		for j := i; j < n; j++ {
			rj := centered.RawRowView(j)
			dot, count := 0.0, 0
			for t := 0; t < T; t++ {
				if observed[i][t] && observed[j][t] {
					dot += ri[t] * rj[t]
					count++
				}
			}
			if count < 2 {
				continue
			}
			cov.SetSym(i, j, dot/float64(count-1))
		}
	}
	return cov
}

// Cov2Corr converts a covariance matrix to a correlation matrix. Rows and
// columns belonging to zero-variance series are set to zero, including the
// diagonal entry. It also returns the standard deviations.
func Cov2Corr(cov mat.Symmetric) (*mat.SymDense, []float64) {
	n := cov.SymmetricDim()
	std := make([]float64, n)
	for i := 0; i < n; i++ {
		v := cov.At(i, i)
		if v > 0 {
			std[i] = math.Sqrt(v)
		}
	}
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if std[i] == 0 || std[j] == 0 {
				continue
			}
			corr.SetSym(i, j, cov.At(i, j)/(std[i]*std[j]))
		}
	}
	return corr, std
}

// ShrinkCovariance estimates the covariance of res (rows are series, columns
// time steps) by shrinking the empirical covariance towards its diagonal,
// following Schäfer and Strimmer (2005). The intensity
//
//	λ = Σ_{i≠j} Var(r_ij) / Σ_{i≠j} r_ij²
//
// is computed from the standardized residuals of the complete time steps and
// clamped to [0, 1]. The returned matrix is λ·D + (1-λ)·Σ + ridge·I.
func ShrinkCovariance(res mat.Matrix, ridge float64) (*mat.SymDense, float64, error) {
	n, T := res.Dims()
	covm := Covariance(res)
	corm, std := Cov2Corr(covm)

	// Standardized residuals over complete time steps only (rows = time).
	var xs [][]float64
	for t := 0; t < T; t++ {
		row := make([]float64, n)
		complete := true
		for i := 0; i < n; i++ {
			v := res.At(i, t)
			if math.IsNaN(v) {
				complete = false
				break
			}
			if std[i] != 0 {
				row[i] = v / std[i]
			}
		}
		if complete {
			xs = append(xs, row)
		}
	}
	m := len(xs)
	if m < 2 {
		return nil, 0, fmt.Errorf("linalg: shrinkage needs at least 2 complete time steps, got %d", m)
	}

	// v_ij = 1/(m(m-1)) * (Σ_t x_ti² x_tj² - (Σ_t x_ti x_tj)² / m)
	fm := float64(m)
	sumVar, sumSq := 0.0, 0.0
	prod := make([]float64, m)
	sq := make([]float64, m)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			for t := 0; t < m; t++ {
				prod[t] = xs[t][i] * xs[t][j]
				sq[t] = prod[t] * prod[t]
			}
			cross := floats.Sum(prod)
			sumVar += (floats.Sum(sq) - cross*cross/fm) / (fm * (fm - 1))
			r := corm.At(i, j)
			sumSq += r * r
		}
	}

	lambda := 1.0
	if sumSq > 0 {
		lambda = math.Max(math.Min(sumVar/sumSq, 1), 0)
	}

	shrunk := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (1 - lambda) * covm.At(i, j)
			if i == j {
				v = covm.At(i, i) + ridge
			}
			shrunk.SetSym(i, j, v)
		}
	}
	if !AllFinite(shrunk) {
		return nil, lambda, ErrNonFinite
	}
	return shrunk, lambda, nil
}

// DiagonalVariance returns diag(mean squared residual) per series, ignoring
// NaN entries. Series with no observations get zero variance.
func DiagonalVariance(res mat.Matrix) *mat.DiagDense {
	n, T := res.Dims()
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		sum, count := 0.0, 0
		for t := 0; t < T; t++ {
			v := res.At(i, t)
			if math.IsNaN(v) {
				continue
			}
			sum += v * v
			count++
		}
		if count > 0 {
			d[i] = sum / float64(count)
		}
	}
	return mat.NewDiagDense(n, d)
}
