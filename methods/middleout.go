// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package methods

import (
	"fmt"

	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"gonum.org/v1/gonum/mat"
)

// MiddleOut anchors on the forecasts of one level. Each node of that level is
// split top-down over its own subtree, and every level above it is rebuilt
// bottom-up from the result.
type MiddleOut struct {
	MiddleLevel   string
	TopDownMethod Proportion
}

func (m MiddleOut) Name() string {
	return methodName("MiddleOut",
		"middle_level", m.MiddleLevel,
		"top_down_method", string(m.TopDownMethod.orDefault()))
}

func (m MiddleOut) Requirements() Requirements {
	return Requirements{Tags: true, Actuals: m.TopDownMethod.historical()}
}

func (m MiddleOut) Reconcile(in Input) (*Output, error) {
	n, k, h, err := checkInput(in)
	if err != nil {
		return nil, err
	}
	if !m.TopDownMethod.Valid() {
		return nil, fmt.Errorf("unknown top-down proportion strategy %q", m.TopDownMethod)
	}
	level, ok := in.Tags.Level(m.MiddleLevel)
	if !ok {
		return nil, hierarchy.Errorf(hierarchy.ErrUnknownSeries, "", []string{m.MiddleLevel},
			"middle level is not one of the tag levels %v", in.Tags.Names())
	}
	st := in.Structure
	if _, err := st.Root(); err != nil {
		return nil, err
	}
	if !hierarchy.IsStrictlyHierarchical(st, in.Tags) {
		return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil,
			"middle-out reconciliation needs a strictly hierarchical structure")
	}

	rows := make([]int, 0, len(level.IDs))
	for _, id := range level.IDs {
		r, ok := st.Index(id)
		if !ok {
			return nil, hierarchy.Errorf(hierarchy.ErrUnknownSeries, "", []string{id}, "middle level series absent from S")
		}
		rows = append(rows, r)
	}

	if !m.TopDownMethod.historical() {
		children := childMap(st, in.Tags)
		b := mat.NewDense(k, h, nil)
		for _, r := range rows {
			forecastProportions(st, children, r, in.Forecast, b)
		}
		return &Output{Mean: st.Aggregate(b), W: identitySym(n)}, nil
	}

	// With historical proportions each leaf is a fixed share of its middle
	// node, so the whole method is a single P.
	p := mat.NewDense(k, n, nil)
	for _, r := range rows {
		cols := leafColumns(st, r)
		props, err := historicalProportions(st, r, cols, in.Insample, m.TopDownMethod.orDefault())
		if err != nil {
			return nil, err
		}
		for idx, j := range cols {
			p.Set(j, r, props[idx])
		}
	}
	return &Output{
		Mean: applyP(st, p, in.Forecast),
		P:    p,
		W:    identitySym(n),
	}, nil
}
