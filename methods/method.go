// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

// Package methods implements the reconciliation strategies. Every strategy
// turns incoherent base forecasts into coherent ones through the same
// contract, and most of them do it by building a matrix P so that the
// reconciled forecasts are S·P·ŷ.
package methods

import (
	"fmt"
	"math"
	"strings"

	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"gonum.org/v1/gonum/mat"
)

// Method is one reconciliation strategy.
type Method interface {
	// Name is the deterministic column suffix, e.g. "MinTrace_method-ols".
	Name() string
	// Requirements lists the inputs Reconcile needs beyond S and ŷ.
	Requirements() Requirements
	// Reconcile computes coherent forecasts. It never mutates in.
	Reconcile(in Input) (*Output, error)
}

// Requirements are checked once by the caller before Reconcile runs.
type Requirements struct {
	Actuals bool // insample Y
	Fitted  bool // insample ŷ
	Tags    bool
}

// Residuals reports whether both actuals and fitted values are needed.
func (r Requirements) Residuals() bool {
	return r.Actuals && r.Fitted
}

// Input is the shared data of one reconciliation. Forecast and the insample
// tables are in S row order.
type Input struct {
	Structure *hierarchy.Structure
	Forecast  *mat.Dense // series × horizon
	Insample  *hierarchy.Insample
	Tags      hierarchy.Tags
}

// Horizon returns the number of forecast steps.
func (in Input) Horizon() int {
	_, h := in.Forecast.Dims()
	return h
}

// Output is what a method produces. P and W are nil when the method has no
// matrix form.
type Output struct {
	Mean        *mat.Dense    // series × horizon, coherent
	P           *mat.Dense    // leaves × series
	W           *mat.SymDense // series × series
	Diagnostics []Diagnostic
}

// Diagnostic is a recovered, non-fatal problem such as a singular weight
// matrix or an iterative solve that ran out of budget.
type Diagnostic struct {
	Kind    error
	Message string
}

func (d Diagnostic) String() string {
	return d.Kind.Error() + ": " + d.Message
}

// Err converts d to a *hierarchy.Error attributed to method.
func (d Diagnostic) Err(method string) *hierarchy.Error {
	return hierarchy.Errorf(d.Kind, method, nil, "%s", d.Message)
}

func diagnostic(kind error, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// methodName joins a type with key/value parameter pairs:
// methodName("MinTrace", "method", "ols") == "MinTrace_method-ols".
func methodName(typ string, kv ...string) string {
	var b strings.Builder
	b.WriteString(typ)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, "_%s-%s", kv[i], kv[i+1])
	}
	return b.String()
}

// checkInput validates the dimensions every method relies on and returns
// (series, leaves, horizon).
func checkInput(in Input) (int, int, int, error) {
	if in.Structure == nil {
		return 0, 0, 0, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil, "no aggregation structure")
	}
	if in.Forecast == nil {
		return 0, 0, 0, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil, "no base forecasts")
	}
	n, k := in.Structure.Dims()
	r, h := in.Forecast.Dims()
	if r != n {
		return 0, 0, 0, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil,
			"forecasts have %d rows but S has %d", r, n)
	}
	return n, k, h, nil
}

// bottomUpP returns P = [0 | I] selecting the leaf rows.
func bottomUpP(st *hierarchy.Structure) *mat.Dense {
	n, k := st.Dims()
	p := mat.NewDense(k, n, nil)
	for j, row := range st.BottomIdx() {
		p.Set(j, row, 1)
	}
	return p
}

// applyP returns S·P·ŷ.
func applyP(st *hierarchy.Structure, p, yhat mat.Matrix) *mat.Dense {
	var b mat.Dense
	b.Mul(p, yhat)
	return st.Aggregate(&b)
}

// identitySym returns the n×n identity as a SymDense.
func identitySym(n int) *mat.SymDense {
	w := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		w.SetSym(i, i, 1)
	}
	return w
}

// clipNonnegative returns a copy of m with negative entries set to zero.
func clipNonnegative(m mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(m)
	out.Apply(func(_, _ int, v float64) float64 {
		return math.Max(v, 0)
	}, out)
	return out
}

// hasNegative reports whether any entry of m is below zero.
func hasNegative(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) < 0 {
				return true
			}
		}
	}
	return false
}
