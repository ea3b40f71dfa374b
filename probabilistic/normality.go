// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package probabilistic

import (
	"fmt"
	"math"

	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"github.com/d-setiawan/hierarchical-reconciliation-go/linalg"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Normality assumes Gaussian base forecast errors. The base covariance at
// step h is rebuilt from the correlation structure of W and the per-step
// standard deviations σh:
//
//	Wh = diag(σh) · corr(W) · diag(σh)
//	Σh = (S·P) · Wh · (S·P)'
type Normality struct {
	Structure *hierarchy.Structure
	P         *mat.Dense    // leaves × series
	W         mat.Symmetric // series × series
	Mean      *mat.Dense    // reconciled forecasts, series × horizon
	Sigma     *mat.Dense    // base standard deviations, series × horizon
}

func (nm Normality) check() error {
	if nm.Structure == nil || nm.P == nil || nm.W == nil || nm.Mean == nil {
		return fmt.Errorf("normality intervals need S, P, W and the reconciled mean")
	}
	if nm.Sigma == nil {
		return hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", nil,
			"normality intervals need per-step standard deviations of the base forecasts")
	}
	n, _ := nm.Structure.Dims()
	mr, mc := nm.Mean.Dims()
	sr, sc := nm.Sigma.Dims()
	if mr != n || sr != n || mc != sc || nm.W.SymmetricDim() != n {
		return hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil,
			"mean is %dx%d, sigma is %dx%d, W is %d square, S has %d rows",
			mr, mc, sr, sc, nm.W.SymmetricDim(), n)
	}
	return nil
}

// stepCovariance returns P·Wh·P' for step h, the covariance of the
// reconciled leaves.
func (nm Normality) stepCovariance(corr mat.Symmetric, h int) *mat.SymDense {
	n := corr.SymmetricDim()
	wh := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		si := nm.Sigma.At(i, h)
		for j := i; j < n; j++ {
			wh.SetSym(i, j, si*corr.At(i, j)*nm.Sigma.At(j, h))
		}
	}
	k, _ := nm.P.Dims()
	var pw, pwp mat.Dense
	pw.Mul(nm.P, wh)
	pwp.Mul(&pw, nm.P.T())
	cov := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			cov.SetSym(i, j, 0.5*(pwp.At(i, j)+pwp.At(j, i)))
		}
	}
	return cov
}

// correlation converts W to a correlation matrix. Series with zero weight
// keep a unit diagonal so their own σh still counts.
func (nm Normality) correlation() *mat.SymDense {
	corr, _ := linalg.Cov2Corr(nm.W)
	n := corr.SymmetricDim()
	for i := 0; i < n; i++ {
		corr.SetSym(i, i, 1)
	}
	return corr
}

// reconciledSD returns sqrt(diag(S·P·Wh·P'·S')) for every step.
func (nm Normality) reconciledSD() *mat.Dense {
	n, h := nm.Mean.Dims()
	corr := nm.correlation()
	sd := mat.NewDense(n, h, nil)
	for t := 0; t < h; t++ {
		leafCov := nm.stepCovariance(corr, t)
		var sc, scs mat.Dense
		sc.Mul(nm.Structure.S, leafCov)
		scs.Mul(&sc, nm.Structure.S.T())
		for i := 0; i < n; i++ {
			sd.Set(i, t, math.Sqrt(math.Max(scs.At(i, i), 0)))
		}
	}
	return sd
}

// Predict returns mean ∓ z·σ bands with z = Φ⁻¹(0.5 + level/200), and
// quantile forecasts mean + Φ⁻¹(q)·σ.
func (nm Normality) Predict(levels, quantiles []float64) (*Prediction, error) {
	if err := nm.check(); err != nil {
		return nil, err
	}
	if err := checkRequest(levels, quantiles); err != nil {
		return nil, err
	}
	sd := nm.reconciledSD()
	shifted := func(z float64) *mat.Dense {
		var out mat.Dense
		out.Scale(z, sd)
		out.Add(&out, nm.Mean)
		return &out
	}

	pred := &Prediction{Bands: make([]Band, len(levels))}
	for b, lv := range levels {
		z := distuv.UnitNormal.Quantile(0.5 + lv/200)
		pred.Bands[b] = Band{Level: lv, Lo: shifted(-z), Hi: shifted(z)}
	}
	for _, q := range quantiles {
		pred.Quantiles = append(pred.Quantiles, QuantileForecast{Q: q, Values: shifted(distuv.UnitNormal.Quantile(q))})
	}
	return pred, nil
}
