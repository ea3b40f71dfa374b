// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package hierarchy

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Table is a matrix with one named row per series and one column per time
// step. Missing values are NaN; ragged histories are right-aligned, i.e.
// padded with NaN at the start.
type Table struct {
	IDs    []string
	Values *mat.Dense
}

// NewTable pairs ids with the rows of values.
func NewTable(ids []string, values *mat.Dense) (*Table, error) {
	if values == nil {
		return nil, Errorf(ErrShapeMismatch, "", nil, "table has no values")
	}
	r, _ := values.Dims()
	if r != len(ids) {
		return nil, Errorf(ErrShapeMismatch, "", nil, "table has %d rows but %d ids", r, len(ids))
	}
	if dup := duplicates(ids); len(dup) > 0 {
		return nil, Errorf(ErrShapeMismatch, "", dup, "duplicate series ids")
	}
	return &Table{IDs: ids, Values: values}, nil
}

// Steps returns the number of time steps (columns).
func (t *Table) Steps() int {
	_, c := t.Values.Dims()
	return c
}

// Index maps each id to its row.
func (t *Table) Index() map[string]int {
	idx := make(map[string]int, len(t.IDs))
	for i, id := range t.IDs {
		idx[id] = i
	}
	return idx
}

// Reorder returns a copy of t whose rows follow ids. Missing and extra ids are
// both reported as ShapeMismatch, sorted for stable messages.
func (t *Table) Reorder(ids []string) (*Table, error) {
	missing, extra := Diff(ids, t.IDs)
	if len(missing) > 0 {
		return nil, Errorf(ErrShapeMismatch, "", missing, "series missing from table")
	}
	if len(extra) > 0 {
		return nil, Errorf(ErrShapeMismatch, "", extra, "series not present in S")
	}
	return t.rows(ids), nil
}

// Select returns a copy of t restricted to ids, in that order. Rows of t not
// in ids are dropped; ids missing from t are a ShapeMismatch.
func (t *Table) Select(ids []string) (*Table, error) {
	if missing, _ := Diff(ids, t.IDs); len(missing) > 0 {
		return nil, Errorf(ErrShapeMismatch, "", missing, "series missing from table")
	}
	return t.rows(ids), nil
}

func (t *Table) rows(ids []string) *Table {
	idx := t.Index()
	out := mat.NewDense(len(ids), t.Steps(), nil)
	for i, id := range ids {
		out.SetRow(i, t.Values.RawRowView(idx[id]))
	}
	return &Table{IDs: append([]string(nil), ids...), Values: out}
}

// CheckFinite reports the ids of rows containing NaN or Inf.
func (t *Table) CheckFinite() []string {
	var bad []string
	steps := t.Steps()
	for i, id := range t.IDs {
		row := t.Values.RawRowView(i)
		for j := 0; j < steps; j++ {
			if math.IsNaN(row[j]) || math.IsInf(row[j], 0) {
				bad = append(bad, id)
				break
			}
		}
	}
	return bad
}

// Diff returns the ids in want that are not in have, and the ids in have
// that are not in want, both sorted.
func Diff(want, have []string) (missing, extra []string) {
	haveSet := make(map[string]struct{}, len(have))
	for _, id := range have {
		haveSet[id] = struct{}{}
	}
	wantSet := make(map[string]struct{}, len(want))
	for _, id := range want {
		wantSet[id] = struct{}{}
		if _, ok := haveSet[id]; !ok {
			missing = append(missing, id)
		}
	}
	for _, id := range have {
		if _, ok := wantSet[id]; !ok {
			extra = append(extra, id)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}

func duplicates(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var dup []string
	for _, id := range ids {
		if seen[id] {
			dup = append(dup, id)
		}
		seen[id] = true
	}
	return dup
}

// Insample holds the historical actuals Y and fitted values YHat, both aligned
// to the row order of S. Either may be nil.
type Insample struct {
	Y    *Table
	YHat *Table
}

// Select aligns both tables to ids. Extra insample series are dropped.
func (in *Insample) Select(ids []string) (*Insample, error) {
	if in == nil {
		return nil, nil
	}
	out := &Insample{}
	var err error
	if in.Y != nil {
		if out.Y, err = in.Y.Select(ids); err != nil {
			return nil, fmt.Errorf("insample actuals: %w", err)
		}
	}
	if in.YHat != nil {
		if out.YHat, err = in.YHat.Select(ids); err != nil {
			return nil, fmt.Errorf("insample fitted values: %w", err)
		}
	}
	if out.Y != nil && out.YHat != nil && out.Y.Steps() != out.YHat.Steps() {
		return nil, Errorf(ErrShapeMismatch, "", nil,
			"insample actuals have %d steps but fitted values have %d", out.Y.Steps(), out.YHat.Steps())
	}
	return out, nil
}

// HasActuals reports whether historical actuals are present and non-empty.
func (in *Insample) HasActuals() bool {
	return in != nil && in.Y != nil && in.Y.Steps() > 0
}

// HasResiduals reports whether both actuals and fitted values are present.
func (in *Insample) HasResiduals() bool {
	return in.HasActuals() && in.YHat != nil && in.YHat.Steps() > 0
}

// Residuals returns Y - YHat (rows = series, cols = time). Entries where
// either side is missing are NaN.
func (in *Insample) Residuals() (*mat.Dense, error) {
	if !in.HasResiduals() {
		return nil, Errorf(ErrMissingResiduals, "", nil, "insample actuals and fitted values are required")
	}
	var res mat.Dense
	res.Sub(in.Y.Values, in.YHat.Values)
	return &res, nil
}
