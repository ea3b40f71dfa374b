// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package methods

import (
	"fmt"
	"math"
	"strconv"

	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"github.com/d-setiawan/hierarchical-reconciliation-go/linalg"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ERMVariant selects how the ERM reconciliation matrix is fitted.
type ERMVariant string

const (
	// ERMClosed is the unregularized closed form.
	ERMClosed ERMVariant = "closed"
	// ERMReg is the lasso with P shrunk towards zero.
	ERMReg ERMVariant = "reg"
	// ERMRegBU is the lasso with P shrunk towards the BottomUp P.
	ERMRegBU ERMVariant = "reg_bu"
)

// Valid reports whether v names a known variant.
func (v ERMVariant) Valid() bool {
	switch v {
	case ERMClosed, ERMReg, ERMRegBU:
		return true
	}
	return false
}

// ERM learns P directly from history by empirical risk minimization:
//
//	min_P ‖Y - S·P·Ŷ‖² + α‖P - P₀‖₁
//
// over the last h insample steps where every series has both an actual and a
// fitted value.
type ERM struct {
	Method ERMVariant
	Alpha  float64 // L1 strength, ignored by ERMClosed
	// MaxIters caps coordinate-descent sweeps (default 1000). Running out is
	// reported as DidNotConverge and the current P is kept.
	MaxIters int
	Tol      float64 // default 1e-4
}

func (m ERM) Name() string {
	return methodName("ERM", "method", string(m.Method), "lambda_reg", strconv.FormatFloat(m.Alpha, 'g', -1, 64))
}

func (ERM) Requirements() Requirements {
	return Requirements{Actuals: true, Fitted: true}
}

func (m ERM) Reconcile(in Input) (*Output, error) {
	n, _, h, err := checkInput(in)
	if err != nil {
		return nil, err
	}
	if !m.Method.Valid() {
		return nil, fmt.Errorf("unknown ERM variant %q", m.Method)
	}
	if m.Alpha < 0 || math.IsNaN(m.Alpha) {
		return nil, fmt.Errorf("ERM regularization must be >= 0, got %v", m.Alpha)
	}
	if m.MaxIters <= 0 {
		m.MaxIters = 1000
	}
	if m.Tol <= 0 {
		m.Tol = 1e-4
	}
	st := in.Structure
	y, yhat, err := trainingWindow(in.Insample, h)
	if err != nil {
		return nil, err
	}

	var p *mat.Dense
	var diags []Diagnostic
	switch m.Method {
	case ERMClosed:
		// B = (S'S)⁻¹ S'Y is the best coherent fit of the actuals, then P maps
		// the fitted values onto it: P = (pinv(Ŷ') B')'.
		var sts, sty mat.Dense
		sts.Mul(st.S.T(), st.S)
		sty.Mul(st.S.T(), y)
		b, singular, err := linalg.Solve(&sts, &sty)
		if err != nil {
			return nil, fmt.Errorf("solving for leaf targets: %w", err)
		}
		if singular {
			diags = append(diags, diagnostic(hierarchy.ErrSingularMatrix, "S'S is singular, used a least-squares solve"))
		}
		pinv, err := linalg.PseudoInverse(yhat.T())
		if err != nil {
			return nil, fmt.Errorf("pseudo-inverse of fitted values: %w", err)
		}
		var pt mat.Dense
		pt.Mul(pinv, b.T())
		p = mat.DenseCopyOf(pt.T())
	default:
		p0 := bottomUpP(st)
		if m.Method == ERMReg {
			p0.Zero()
		}
		var converged bool
		p, converged = lasso(st, y, yhat, p0, m.Alpha, m.MaxIters, m.Tol)
		if !converged {
			diags = append(diags, diagnostic(hierarchy.ErrDidNotConverge,
				"coordinate descent did not converge in %d sweeps (tol %g)", m.MaxIters, m.Tol))
		}
	}
	return &Output{
		Mean:        applyP(st, p, in.Forecast),
		P:           p,
		W:           identitySym(n),
		Diagnostics: diags,
	}, nil
}

// trainingWindow returns the actuals and fitted values of the last h insample
// steps that are complete for every series.
func trainingWindow(in *hierarchy.Insample, h int) (*mat.Dense, *mat.Dense, error) {
	if !in.HasResiduals() {
		return nil, nil, hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", nil,
			"insample actuals and fitted values are required")
	}
	yAll, fAll := in.Y.Values, in.YHat.Values
	n, T := yAll.Dims()
	var cols []int
	for t := T - 1; t >= 0 && len(cols) < h; t-- {
		complete := true
		for i := 0; i < n && complete; i++ {
			if math.IsNaN(yAll.At(i, t)) || math.IsNaN(fAll.At(i, t)) {
				complete = false
			}
		}
		if complete {
			cols = append(cols, t)
		}
	}
	if len(cols) == 0 {
		return nil, nil, hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", nil,
			"no insample step has actuals and fitted values for every series")
	}
	y := mat.NewDense(n, len(cols), nil)
	yhat := mat.NewDense(n, len(cols), nil)
	for c, t := range cols {
		// cols runs backwards in time
		dst := len(cols) - 1 - c
		for i := 0; i < n; i++ {
			y.Set(i, dst, yAll.At(i, t))
			yhat.Set(i, dst, fAll.At(i, t))
		}
	}
	return y, yhat, nil
}

// lasso fits D in Y - S·P₀·Ŷ ≈ S·D·Ŷ with an L1 penalty on the entries of D
// by cyclic coordinate descent, and returns P₀ + D. The feature of entry
// D[j,i] is the outer product S[:,j]·Ŷ[i,:], so its squared norm factors as
// ‖S[:,j]‖²·‖Ŷ[i,:]‖².
func lasso(st *hierarchy.Structure, y, yhat, p0 *mat.Dense, alpha float64, maxIters int, tol float64) (*mat.Dense, bool) {
	n, k := st.Dims()
	_, T := y.Dims()

	var resid mat.Dense
	resid.Sub(y, applyP(st, p0, yhat))

	support := make([][]int, k)
	colNorm := make([]float64, k)
	for j := 0; j < k; j++ {
		for r := 0; r < n; r++ {
			if s := st.S.At(r, j); s != 0 {
				support[j] = append(support[j], r)
				colNorm[j] += s * s
			}
		}
	}
	rowNorm := make([]float64, n)
	for i := 0; i < n; i++ {
		yi := yhat.RawRowView(i)
		rowNorm[i] = floats.Dot(yi, yi)
	}
	samples := float64(n * T)

	d := mat.NewDense(k, n, nil)
	converged := false
	for it := 0; it < maxIters && !converged; it++ {
		maxChange := 0.0
		for j := 0; j < k; j++ {
			for i := 0; i < n; i++ {
				norm := colNorm[j] * rowNorm[i]
				if norm < 1e-8 {
					continue
				}
				yi := yhat.RawRowView(i)
				dot := 0.0
				for _, r := range support[j] {
					dot += st.S.At(r, j) * floats.Dot(yi, resid.RawRowView(r))
				}
				old := d.At(j, i)
				next := softThreshold(old+dot/norm, alpha*samples/norm)
				if next == old {
					continue
				}
				d.Set(j, i, next)
				delta := old - next
				for _, r := range support[j] {
					floats.AddScaled(resid.RawRowView(r), delta*st.S.At(r, j), yi)
				}
				maxChange = math.Max(maxChange, math.Abs(delta))
			}
		}
		converged = maxChange < tol
	}

	var p mat.Dense
	p.Add(p0, d)
	return &p, converged
}

func softThreshold(x, lambda float64) float64 {
	switch {
	case x > lambda:
		return x - lambda
	case x < -lambda:
		return x + lambda
	}
	return 0
}
