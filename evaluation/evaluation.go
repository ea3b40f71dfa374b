// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

// Package evaluation scores forecast columns against actuals per hierarchy
// level, optionally relative to a benchmark column.
package evaluation

import (
	"fmt"
	"math"
	"sort"

	"github.com/d-setiawan/hierarchical-reconciliation-go/core"
	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	log "github.com/sirupsen/logrus"
)

// OverallLevel names the row that pools every series.
const OverallLevel = "Overall"

// HierarchicalEvaluation applies a fixed list of metrics.
type HierarchicalEvaluation struct {
	Metrics []NamedMetric
}

// New returns an evaluator for metrics, or the built-in ones when none are
// given.
func New(metrics ...NamedMetric) (*HierarchicalEvaluation, error) {
	if len(metrics) == 0 {
		metrics = Builtin()
	}
	seen := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		if m.Name == "" || m.Fn == nil {
			return nil, fmt.Errorf("metric %q has no name or function", m.Name)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("metric %q given more than once", m.Name)
		}
		seen[m.Name] = true
	}
	return &HierarchicalEvaluation{Metrics: metrics}, nil
}

// Row is one (level, metric) line of a Report. Scores is aligned with
// Report.Columns.
type Row struct {
	Level  string
	Metric string
	Scores []float64
}

// Report is a level × metric table of scores per forecast column.
type Report struct {
	Columns   []string
	Benchmark string
	Rows      []Row
}

// Score returns the score of column at (level, metric).
func (r *Report) Score(level, metric, column string) (float64, bool) {
	c := -1
	for i, name := range r.Columns {
		if name == column {
			c = i
			break
		}
	}
	if c < 0 {
		return 0, false
	}
	for _, row := range r.Rows {
		if row.Level == level && row.Metric == metric {
			return row.Scores[c], true
		}
	}
	return 0, false
}

// ScaledName is the metric name used when scores are relative to a
// benchmark.
func ScaledName(metric string) string {
	return metric + "-scaled"
}

// Evaluate scores every forecast column against actual for each level in
// tags, then for all series together. Rows are ordered by level (tags order,
// Overall last) then metric. Columns are sorted by name.
//
// With a non-empty benchmark every row is repeated after the raw ones,
// divided by the benchmark's score at the same level and metric, under the
// metric name with a "-scaled" suffix. A zero or NaN benchmark score gives
// NaN.
func (he *HierarchicalEvaluation) Evaluate(forecasts map[string]*hierarchy.Table, actual *hierarchy.Table,
	tags hierarchy.Tags, benchmark string) (*Report, error) {

	if actual == nil {
		return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil, "no actuals given")
	}
	if len(forecasts) == 0 {
		return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil, "no forecasts given")
	}
	columns := make([]string, 0, len(forecasts))
	for name := range forecasts {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	if benchmark != "" {
		if _, ok := forecasts[benchmark]; !ok {
			return nil, fmt.Errorf("benchmark %q is not among the forecast columns %v", benchmark, columns)
		}
	}

	aligned := make([]*hierarchy.Table, len(columns))
	for i, name := range columns {
		f, err := forecasts[name].Reorder(actual.IDs)
		if err != nil {
			return nil, fmt.Errorf("forecast column %q: %w", name, err)
		}
		if f.Steps() != actual.Steps() {
			return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", []string{name},
				"forecast has %d steps but actuals have %d", f.Steps(), actual.Steps())
		}
		aligned[i] = f
	}

	levels, err := levelRows(actual, tags)
	if err != nil {
		return nil, err
	}

	report := &Report{Columns: columns, Benchmark: benchmark}
	for _, lv := range levels {
		for _, m := range he.Metrics {
			row := Row{Level: lv.name, Metric: m.Name, Scores: make([]float64, len(columns))}
			for c, f := range aligned {
				a, p := flatten(actual, f, lv.rows)
				row.Scores[c] = m.Fn(a, p)
			}
			report.Rows = append(report.Rows, row)
		}
	}
	if benchmark != "" {
		scale(report)
	}
	log.WithFields(log.Fields{
		"columns": len(columns),
		"levels":  len(levels),
		"metrics": len(he.Metrics),
	}).Debug("Evaluated forecasts")
	return report, nil
}

// EvaluateResult scores every column of a reconciliation result.
func (he *HierarchicalEvaluation) EvaluateResult(res *core.Result, actual *hierarchy.Table,
	tags hierarchy.Tags, benchmark string) (*Report, error) {

	forecasts := make(map[string]*hierarchy.Table, len(res.Columns))
	for _, name := range res.Names() {
		forecasts[name], _ = res.Table(name)
	}
	return he.Evaluate(forecasts, actual, tags, benchmark)
}

type level struct {
	name string
	rows []int
}

func levelRows(actual *hierarchy.Table, tags hierarchy.Tags) ([]level, error) {
	idx := actual.Index()
	var levels []level
	var unknown []string
	for _, lv := range tags {
		rows := make([]int, 0, len(lv.IDs))
		for _, id := range lv.IDs {
			r, ok := idx[id]
			if !ok {
				unknown = append(unknown, id)
				continue
			}
			rows = append(rows, r)
		}
		levels = append(levels, level{name: lv.Name, rows: rows})
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, hierarchy.Errorf(hierarchy.ErrUnknownSeries, "", unknown, "tags reference series absent from the actuals")
	}
	all := make([]int, len(actual.IDs))
	for i := range all {
		all[i] = i
	}
	return append(levels, level{name: OverallLevel, rows: all}), nil
}

// flatten collects the (actual, predicted) pairs of rows, skipping points
// where either side is NaN.
func flatten(actual, predicted *hierarchy.Table, rows []int) ([]float64, []float64) {
	steps := actual.Steps()
	a := make([]float64, 0, len(rows)*steps)
	p := make([]float64, 0, len(rows)*steps)
	for _, r := range rows {
		for t := 0; t < steps; t++ {
			av, pv := actual.Values.At(r, t), predicted.Values.At(r, t)
			if math.IsNaN(av) || math.IsNaN(pv) {
				continue
			}
			a = append(a, av)
			p = append(p, pv)
		}
	}
	return a, p
}

// scale appends a "-scaled" copy of every row, divided by the benchmark's
// score in that row.
func scale(r *Report) {
	b := -1
	for i, name := range r.Columns {
		if name == r.Benchmark {
			b = i
		}
	}
	raw := len(r.Rows)
	for i := 0; i < raw; i++ {
		row := r.Rows[i]
		denom := row.Scores[b]
		scaled := make([]float64, len(row.Scores))
		for c, s := range row.Scores {
			if denom == 0 || math.IsNaN(denom) {
				scaled[c] = math.NaN()
				continue
			}
			scaled[c] = s / denom
		}
		r.Rows = append(r.Rows, Row{Level: row.Level, Metric: ScaledName(row.Metric), Scores: scaled})
	}
}
