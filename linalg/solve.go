// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

// Package linalg holds the small set of dense linear-algebra building blocks
// every reconciliation method composes from: solves with a least-squares
// fallback, the Moore-Penrose pseudo-inverse, NaN-aware covariance and the
// Schäfer-Strimmer shrinkage estimator. Inputs are assumed finite; callers
// reject non-finite data before reaching this layer.
package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// RankTolerance is the relative singular value cutoff used when a solve falls
// back to the SVD.
const RankTolerance = 1e-12

// ErrNonFinite is returned when a primitive produces NaN or Inf output.
var ErrNonFinite = errors.New("linalg: non-finite result")

// Solve returns x such that a*x = b. When a is singular or badly conditioned
// it falls back to the minimum-norm least-squares solution from the SVD and
// reports singular=true so callers can attach a diagnostic.
func Solve(a, b mat.Matrix) (x *mat.Dense, singular bool, err error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br {
		return nil, false, fmt.Errorf("linalg: solve shape mismatch: a is %dx%d, b is %dx%d", ar, ac, br, bc)
	}

	// First try: LU for square systems, QR otherwise
	var direct mat.Dense
	if errSolve := direct.Solve(a, b); errSolve == nil && AllFinite(&direct) {
		return &direct, false, nil
	}

	// Fallback: a is singular or badly conditioned.
	ls, err := leastSquares(a, b)
	if err != nil {
		return nil, true, err
	}
	return ls, true, nil
}

// leastSquares solves a*x ≈ b with the SVD, mirroring the OLS fallback used
// for rank-deficient design matrices.
func leastSquares(a, b mat.Matrix) (*mat.Dense, error) {
	_, ac := a.Dims()
	_, bc := b.Dims()

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFullU|mat.SVDFullV); !ok {
		return nil, fmt.Errorf("linalg: SVD factorization failed")
	}

	rank := svd.Rank(RankTolerance)
	// If rank == 0, a is (numerically) all-zero and the minimum-norm
	// solution is x = 0.
	if rank == 0 {
		return mat.NewDense(ac, bc, nil), nil
	}

	var x mat.Dense
	svd.SolveTo(&x, b, rank)
	if !AllFinite(&x) {
		return nil, ErrNonFinite
	}
	return &x, nil
}

// PseudoInverse returns the Moore-Penrose inverse of a. Singular values below
// 1e-12 * max(m, n) * σmax are treated as zero.
func PseudoInverse(a mat.Matrix) (*mat.Dense, error) {
	m, n := a.Dims()

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("linalg: SVD factorization failed for %dx%d matrix", m, n)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	maxS := 0.0
	for _, si := range s {
		if si > maxS {
			maxS = si
		}
	}
	eps := RankTolerance * math.Max(float64(m), float64(n)) * maxS

	// V * Σ⁺ * Uᵀ, scaling the columns of V in place
	for j, sj := range s {
		scale := 0.0
		if sj > eps {
			scale = 1 / sj
		}
		for i := 0; i < n; i++ {
			v.Set(i, j, v.At(i, j)*scale)
		}
	}

	var pinv mat.Dense
	pinv.Mul(&v, u.T())
	if !AllFinite(&pinv) {
		return nil, ErrNonFinite
	}
	return &pinv, nil
}

// Inverse returns the inverse of a square matrix, or its pseudo-inverse when
// the matrix is singular. The boolean reports whether the fallback was used.
func Inverse(a mat.Matrix) (*mat.Dense, bool, error) {
	var inv mat.Dense
	if err := inv.Inverse(a); err == nil && AllFinite(&inv) {
		return &inv, false, nil
	}
	pinv, err := PseudoInverse(a)
	if err != nil {
		return nil, true, err
	}
	return pinv, true, nil
}

// AllFinite reports whether every element of m is finite.
func AllFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Identity returns the n×n identity matrix.
func Identity(n int) *mat.DiagDense {
	d := make([]float64, n)
	for i := range d {
		d[i] = 1
	}
	return mat.NewDiagDense(n, d)
}

// IsPositiveDefinite reports whether every eigenvalue of the symmetric
// matrix a is strictly greater than tol.
func IsPositiveDefinite(a mat.Symmetric, tol float64) bool {
	var eig mat.EigenSym
	if ok := eig.Factorize(a, false); !ok {
		return false
	}
	for _, v := range eig.Values(nil) {
		if v <= tol {
			return false
		}
	}
	return true
}
