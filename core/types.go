// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package core

import (
	"time"

	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"github.com/d-setiawan/hierarchical-reconciliation-go/methods"
	"github.com/d-setiawan/hierarchical-reconciliation-go/probabilistic"
	"gonum.org/v1/gonum/mat"
)

// ModelForecast is one base forecast column, e.g. "Naive", with its
// optional companions.
type ModelForecast struct {
	Name string
	Mean *hierarchy.Table // series × horizon
	// Sigma holds per-step standard deviations; only Normality intervals
	// use it.
	Sigma *hierarchy.Table
	// Fitted holds the model's insample fitted values, aligned in time with
	// Request.Actuals.
	Fitted *hierarchy.Table
}

// Request is the shared input of one Reconcile call. Row order of the tables
// is free; they are aligned to S before any method runs.
type Request struct {
	Structure *hierarchy.Structure
	Forecasts []ModelForecast
	Actuals   *hierarchy.Table // insample y, series × time
	Tags      hierarchy.Tags
}

// Column is one output column: a base forecast (Method == "") or a
// reconciled one named "<model>/<method>".
type Column struct {
	Name      string
	Model     string
	Method    string
	Mean      *mat.Dense // series × horizon, rows in Result.IDs order
	Bands     []probabilistic.Band
	Quantiles []probabilistic.QuantileForecast
}

// Skipped records a (model, method) pair dropped in partial-results mode.
type Skipped struct {
	Model  string
	Method string
	Reason string
	Err    error
}

// Result is the reconciled forecast table.
type Result struct {
	IDs     []string // row order of every column, from the first base forecast table
	Columns []Column
	Skipped []Skipped
	// Diagnostics and ExecutionTimes are keyed by reconciled column name.
	Diagnostics    map[string][]methods.Diagnostic
	ExecutionTimes map[string]time.Duration
}

// Column returns the column named name.
func (r *Result) Column(name string) (*Column, bool) {
	for i := range r.Columns {
		if r.Columns[i].Name == name {
			return &r.Columns[i], true
		}
	}
	return nil, false
}

// Names lists the column names in output order.
func (r *Result) Names() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Table returns the column named name as a Table.
func (r *Result) Table(name string) (*hierarchy.Table, bool) {
	c, ok := r.Column(name)
	if !ok {
		return nil, false
	}
	return &hierarchy.Table{IDs: r.IDs, Values: c.Mean}, true
}

// ColumnName is the deterministic name of a reconciled column.
func ColumnName(model, method string) string {
	return model + "/" + method
}

// BandNames returns the "<col>-lo-<lv>" and "<col>-hi-<lv>" names of a band.
func BandNames(col string, level float64) (lo, hi string) {
	lv := probabilistic.LevelLabel(level)
	return col + "-lo-" + lv, col + "-hi-" + lv
}

// QuantileName returns the "<col>-q-<q>" name of a quantile forecast.
func QuantileName(col string, q float64) string {
	return col + "-q-" + probabilistic.QuantileLabel(q)
}
