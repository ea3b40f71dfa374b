// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package hierarchy

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Structure is the aggregation (summing) matrix S together with its row and
// column labels. Rows are all series, columns are leaves, and the rows named
// by Bottom form the identity block.
type Structure struct {
	IDs    []string
	Bottom []string
	S      *mat.Dense

	index     map[string]int
	bottomIdx []int
}

// NewStructure validates S against its labels.
func NewStructure(ids, bottom []string, s *mat.Dense) (*Structure, error) {
	if s == nil {
		return nil, Errorf(ErrShapeMismatch, "", nil, "aggregation matrix is nil")
	}
	r, c := s.Dims()
	if r != len(ids) || c != len(bottom) {
		return nil, Errorf(ErrShapeMismatch, "", nil,
			"S is %dx%d but there are %d series and %d leaves", r, c, len(ids), len(bottom))
	}
	if dup := duplicates(ids); len(dup) > 0 {
		return nil, Errorf(ErrShapeMismatch, "", dup, "duplicate series in S")
	}

	st := &Structure{IDs: ids, Bottom: bottom, S: s, index: make(map[string]int, r)}
	for i, id := range ids {
		st.index[id] = i
	}

	// Every row must aggregate at least one leaf.
	var empty []string
	for i := 0; i < r; i++ {
		if mat.Sum(s.RowView(i)) < 1 {
			empty = append(empty, ids[i])
		}
	}
	if len(empty) > 0 {
		return nil, Errorf(ErrShapeMismatch, "", empty, "rows of S must sum to at least 1")
	}

	// Leaf rows form the identity block, in column order.
	st.bottomIdx = make([]int, c)
	var unknown, notIdentity []string
	for j, leaf := range bottom {
		row, ok := st.index[leaf]
		if !ok {
			unknown = append(unknown, leaf)
			continue
		}
		st.bottomIdx[j] = row
		for k := 0; k < c; k++ {
			want := 0.0
			if k == j {
				want = 1
			}
			if s.At(row, k) != want {
				notIdentity = append(notIdentity, leaf)
				break
			}
		}
	}
	if len(unknown) > 0 {
		return nil, Errorf(ErrShapeMismatch, "", unknown, "leaf columns have no row in S")
	}
	if len(notIdentity) > 0 {
		return nil, Errorf(ErrShapeMismatch, "", notIdentity, "leaf rows of S are not the identity")
	}
	return st, nil
}

// Dims returns (number of series, number of leaves).
func (st *Structure) Dims() (int, int) {
	return st.S.Dims()
}

// Index returns the row of id in S.
func (st *Structure) Index(id string) (int, bool) {
	i, ok := st.index[id]
	return i, ok
}

// BottomIdx returns the S rows of the leaves, in column order.
func (st *Structure) BottomIdx() []int {
	return st.bottomIdx
}

// RowSums returns S·1, the number of leaves under each series.
func (st *Structure) RowSums() []float64 {
	r, _ := st.S.Dims()
	sums := make([]float64, r)
	for i := range sums {
		sums[i] = mat.Sum(st.S.RowView(i))
	}
	return sums
}

// Roots returns the rows of S that aggregate every leaf.
func (st *Structure) Roots() []int {
	_, c := st.S.Dims()
	var roots []int
	for i, sum := range st.RowSums() {
		if sum != float64(c) {
			continue
		}
		all := true
		for j := 0; j < c; j++ {
			if st.S.At(i, j) == 0 {
				all = false
				break
			}
		}
		if all {
			roots = append(roots, i)
		}
	}
	return roots
}

// Root returns the single top node of S, or MultipleRoots naming the
// candidates when there is none or more than one.
func (st *Structure) Root() (int, error) {
	roots := st.Roots()
	if len(roots) == 1 {
		return roots[0], nil
	}
	names := make([]string, len(roots))
	for i, r := range roots {
		names[i] = st.IDs[r]
	}
	return 0, Errorf(ErrMultipleRoots, "", names, "expected exactly one series aggregating every leaf, found %d", len(roots))
}

// Aggregate returns S·b for leaf values b (leaves × steps).
func (st *Structure) Aggregate(b mat.Matrix) *mat.Dense {
	var y mat.Dense
	y.Mul(st.S, b)
	return &y
}

// BottomRows extracts the leaf rows of y (series × steps) in column order.
func (st *Structure) BottomRows(y mat.Matrix) *mat.Dense {
	_, steps := y.Dims()
	out := mat.NewDense(len(st.bottomIdx), steps, nil)
	for j, row := range st.bottomIdx {
		for t := 0; t < steps; t++ {
			out.Set(j, t, y.At(row, t))
		}
	}
	return out
}

// IsCoherent reports whether every aggregate in y equals the sum of its
// leaves within tol.
func (st *Structure) IsCoherent(y mat.Matrix, tol float64) bool {
	agg := st.Aggregate(st.BottomRows(y))
	r, c := agg.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.Abs(agg.At(i, j)-y.At(i, j)) > tol {
				return false
			}
		}
	}
	return true
}
