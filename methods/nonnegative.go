// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package methods

import (
	"math"

	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"github.com/d-setiawan/hierarchical-reconciliation-go/linalg"
	"gonum.org/v1/gonum/mat"
)

// Projector finds, for each forecast step ỹ, the non-negative leaf vector b
// minimizing (ỹ - S·b)' W⁻¹ (ỹ - S·b) and returns S·b, which is coherent and
// non-negative. The quadratic program is solved by projected coordinate
// descent on the leaves.
type Projector struct {
	MaxIters int     // sweeps per step, default 10000
	Tol      float64 // largest leaf update accepted as converged, default 1e-10
}

// ProjectNonnegative runs a Projector with default settings.
func ProjectNonnegative(st *hierarchy.Structure, w mat.Symmetric, y mat.Matrix) (*mat.Dense, []Diagnostic, error) {
	return Projector{}.Project(st, w, y)
}

// Project returns a new matrix; y is never modified. A nil w means W = I.
// Steps that are already non-negative are copied unchanged. A step that does
// not converge falls back to its leaves clipped at zero and re-aggregated,
// with a DidNotConverge diagnostic.
func (pr Projector) Project(st *hierarchy.Structure, w mat.Symmetric, y mat.Matrix) (*mat.Dense, []Diagnostic, error) {
	if pr.MaxIters <= 0 {
		pr.MaxIters = 10000
	}
	if pr.Tol <= 0 {
		pr.Tol = 1e-10
	}
	n, k := st.Dims()
	r, h := y.Dims()
	if r != n {
		return nil, nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil,
			"projector got %d rows but S has %d", r, n)
	}
	if w != nil && w.SymmetricDim() != n {
		return nil, nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil,
			"W is %dx%d but S has %d rows", w.SymmetricDim(), w.SymmetricDim(), n)
	}
	var diags []Diagnostic

	// A = S'W⁻¹ and Q = S'W⁻¹S
	var a mat.Dense
	if w == nil {
		a.CloneFrom(st.S.T())
	} else {
		winv, singular, err := linalg.Inverse(w)
		if err != nil {
			return nil, nil, err
		}
		if singular {
			diags = append(diags, diagnostic(hierarchy.ErrSingularMatrix, "projector W is singular, used its pseudo-inverse"))
		}
		a.Mul(st.S.T(), winv)
	}
	var q mat.Dense
	q.Mul(&a, st.S)

	out := mat.DenseCopyOf(y)
	col := make([]float64, n)
	var failed []int
	for t := 0; t < h; t++ {
		mat.Col(col, t, y)
		if !anyNegative(col) {
			continue
		}
		yt := mat.NewVecDense(n, col)
		var c mat.VecDense
		c.MulVec(&a, yt)

		b := make([]float64, k)
		for j, row := range st.BottomIdx() {
			b[j] = math.Max(col[row], 0)
		}
		if !pr.descend(&q, c.RawVector().Data, b) {
			failed = append(failed, t)
			for j, row := range st.BottomIdx() {
				b[j] = math.Max(col[row], 0)
			}
		}
		var sb mat.VecDense
		sb.MulVec(st.S, mat.NewVecDense(k, b))
		out.SetCol(t, sb.RawVector().Data)
	}
	if len(failed) > 0 {
		diags = append(diags, diagnostic(hierarchy.ErrDidNotConverge,
			"non-negative projection did not converge in %d sweeps for steps %v, leaves clipped at zero", pr.MaxIters, failed))
	}
	return out, diags, nil
}

// descend minimizes ½ b'Qb - c'b subject to b >= 0 in place and reports
// whether it converged.
func (pr Projector) descend(q *mat.Dense, c, b []float64) bool {
	k := len(b)
	for it := 0; it < pr.MaxIters; it++ {
		maxChange, scale := 0.0, 1.0
		for i := 0; i < k; i++ {
			qii := q.At(i, i)
			if qii <= 0 {
				continue
			}
			g := c[i]
			row := q.RawRowView(i)
			for l := 0; l < k; l++ {
				if l != i {
					g -= row[l] * b[l]
				}
			}
			next := math.Max(g/qii, 0)
			maxChange = math.Max(maxChange, math.Abs(next-b[i]))
			scale = math.Max(scale, math.Abs(next))
			b[i] = next
		}
		if maxChange <= pr.Tol*scale {
			return true
		}
	}
	return false
}

func anyNegative(v []float64) bool {
	for _, x := range v {
		if x < 0 {
			return true
		}
	}
	return false
}
