// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package methods

import (
	"fmt"
	"math"

	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"github.com/d-setiawan/hierarchical-reconciliation-go/linalg"
	"gonum.org/v1/gonum/mat"
)

// Weight selects the MinTrace weight matrix W.
type Weight string

const (
	OLS        Weight = "ols"         // W = I
	WLSStruct  Weight = "wls_struct"  // W = diag(S·1)
	WLSVar     Weight = "wls_var"     // W = diag(mean squared residual)
	MinTShrink Weight = "mint_shrink" // W = shrunk residual covariance
	MinTCov    Weight = "mint_cov"    // W = residual covariance
)

// Valid reports whether w names a known weight.
func (w Weight) Valid() bool {
	switch w {
	case OLS, WLSStruct, WLSVar, MinTShrink, MinTCov:
		return true
	}
	return false
}

// usesResiduals reports whether W is estimated from insample residuals.
func (w Weight) usesResiduals() bool {
	return w == WLSVar || w == MinTShrink || w == MinTCov
}

const (
	// pdTolerance is the smallest eigenvalue accepted for a covariance W.
	pdTolerance = 1e-8
	// Residual sums below this count as a perfect insample fit.
	perfectFitTolerance = 1e-4
	// Share of perfectly fitted series above which residuals are rejected.
	maxPerfectFitShare = 0.98
)

// MinTrace is the generalized least squares reconciliation
//
//	P = (S' W⁻¹ S)⁻¹ S' W⁻¹
//
// which minimizes the trace of the reconciled error covariance.
type MinTrace struct {
	Method      Weight
	Nonnegative bool
	// ShrinkRidge is added to the diagonal of the mint_shrink estimate.
	// Defaults to linalg.DefaultShrinkRidge.
	ShrinkRidge float64
}

func (m MinTrace) Name() string {
	if m.Nonnegative {
		return methodName("MinTrace", "method", string(m.Method), "nonnegative", "true")
	}
	return methodName("MinTrace", "method", string(m.Method))
}

func (m MinTrace) Requirements() Requirements {
	r := m.Method.usesResiduals()
	return Requirements{Actuals: r, Fitted: r}
}

func (m MinTrace) Reconcile(in Input) (*Output, error) {
	n, _, _, err := checkInput(in)
	if err != nil {
		return nil, err
	}
	if !m.Method.Valid() {
		return nil, fmt.Errorf("unknown MinTrace weight %q", m.Method)
	}
	st := in.Structure
	var diags []Diagnostic

	w, err := m.weights(st, in.Insample)
	if err != nil {
		return nil, err
	}

	// W⁻¹, falling back to the pseudo-inverse when W is not positive definite.
	var winv *mat.Dense
	if linalg.IsPositiveDefinite(w, pdTolerance) {
		var singular bool
		winv, singular, err = linalg.Inverse(w)
		if singular {
			diags = append(diags, diagnostic(hierarchy.ErrSingularMatrix, "W could not be inverted, used its pseudo-inverse"))
		}
	} else {
		diags = append(diags, diagnostic(hierarchy.ErrSingularMatrix,
			"W is not positive definite (eigenvalue <= %g), used its pseudo-inverse", pdTolerance))
		winv, err = linalg.PseudoInverse(w)
	}
	if err != nil {
		return nil, fmt.Errorf("inverting %dx%d weight matrix: %w", n, n, err)
	}

	// P = (S'W⁻¹S)⁻¹ S'W⁻¹
	var stw, stws mat.Dense
	stw.Mul(st.S.T(), winv)
	stws.Mul(&stw, st.S)
	p, singular, err := linalg.Solve(&stws, &stw)
	if err != nil {
		return nil, fmt.Errorf("solving for P: %w", err)
	}
	if singular {
		diags = append(diags, diagnostic(hierarchy.ErrSingularMatrix, "S'W⁻¹S is singular, used a least-squares solve"))
	}

	yhat := in.Forecast
	if m.Nonnegative {
		yhat = clipNonnegative(yhat)
	}
	mean := applyP(st, p, yhat)
	if m.Nonnegative && hasNegative(mean) {
		projected, pdiags, err := ProjectNonnegative(st, w, mean)
		if err != nil {
			return nil, err
		}
		mean = projected
		diags = append(diags, pdiags...)
	}
	return &Output{Mean: mean, P: p, W: w, Diagnostics: diags}, nil
}

// weights builds W for the configured variant.
func (m MinTrace) weights(st *hierarchy.Structure, insample *hierarchy.Insample) (*mat.SymDense, error) {
	n, _ := st.Dims()
	w := mat.NewSymDense(n, nil)
	switch m.Method {
	case OLS:
		return identitySym(n), nil
	case WLSStruct:
		for i, s := range st.RowSums() {
			w.SetSym(i, i, s)
		}
		return w, nil
	}

	res, err := insample.Residuals()
	if err != nil {
		return nil, err
	}
	if err := checkOverfit(res); err != nil {
		return nil, err
	}
	switch m.Method {
	case WLSVar:
		d := linalg.DiagonalVariance(res)
		for i := 0; i < n; i++ {
			w.SetSym(i, i, d.At(i, i))
		}
	case MinTCov:
		w = linalg.Covariance(res)
	case MinTShrink:
		ridge := m.ShrinkRidge
		if ridge <= 0 {
			ridge = linalg.DefaultShrinkRidge
		}
		w, _, err = linalg.ShrinkCovariance(res, ridge)
		if err != nil {
			return nil, hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", nil, "%v", err)
		}
	}
	if !linalg.AllFinite(w) {
		return nil, hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", nil, "residual weights are not finite")
	}
	return w, nil
}

// checkOverfit rejects residuals where nearly every series was fitted
// perfectly: such residuals carry no information about the error covariance.
func checkOverfit(res *mat.Dense) error {
	n, T := res.Dims()
	perfect := 0
	for i := 0; i < n; i++ {
		sum := 0.0
		for t := 0; t < T; t++ {
			if v := res.At(i, t); !math.IsNaN(v) {
				sum += v
			}
		}
		if math.Abs(sum) < perfectFitTolerance {
			perfect++
		}
	}
	if share := float64(perfect) / float64(n); share > maxPerfectFitShare {
		return hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", nil,
			"%.0f%% of the %d series have near-zero insample residuals, the fitted values look overfit", 100*share, n)
	}
	return nil
}
