// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

// Package core runs a list of reconciliation methods against every base
// forecast model and assembles the reconciled forecast table.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"github.com/d-setiawan/hierarchical-reconciliation-go/internal/parallel"
	"github.com/d-setiawan/hierarchical-reconciliation-go/methods"
	"github.com/d-setiawan/hierarchical-reconciliation-go/probabilistic"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// HierarchicalReconciliation holds an ordered list of methods. It keeps no
// per-call state, so one value may serve concurrent Reconcile calls.
type HierarchicalReconciliation struct {
	methods []methods.Method
	opts    options
}

// New returns a HierarchicalReconciliation that applies ms in order. Method
// names must be unique since they become column names.
func New(ms []methods.Method, opts ...Option) (*HierarchicalReconciliation, error) {
	if len(ms) == 0 {
		return nil, errors.New("no reconciliation methods configured")
	}
	seen := make(map[string]bool, len(ms))
	for _, m := range ms {
		name := m.Name()
		if seen[name] {
			return nil, fmt.Errorf("method %q is configured more than once", name)
		}
		seen[name] = true
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewEntry(log.StandardLogger())
	}
	if o.intervals != nil {
		if err := o.intervals.Validate(); err != nil {
			return nil, fmt.Errorf("intervals: %w", err)
		}
	}
	return &HierarchicalReconciliation{methods: ms, opts: o}, nil
}

// MethodNames returns the configured method names in order.
func (hr *HierarchicalReconciliation) MethodNames() []string {
	names := make([]string, len(hr.methods))
	for i, m := range hr.methods {
		names[i] = m.Name()
	}
	return names
}

// preparedModel is one base model aligned to the row order of S.
type preparedModel struct {
	name     string
	mean     *mat.Dense
	sigma    *mat.Dense
	insample *hierarchy.Insample
}

type prepared struct {
	st     *hierarchy.Structure
	tags   hierarchy.Tags
	models []preparedModel
	// rows maps each output row to its S row, following the row order of
	// the first base forecast table.
	ids  []string
	rows []int
}

// job is one (model, method) pair. A non-nil pre error means a requirement
// check already failed and the method is not run.
type job struct {
	model  int
	method int
	pre    error
}

type jobResult struct {
	out     *methods.Output
	pred    *probabilistic.Prediction
	elapsed time.Duration
	err     error
}

// Reconcile validates req, runs every method against every base model and
// returns the base columns followed by the reconciled "<model>/<method>"
// columns, model-major in configuration order. Rows follow the order of the
// first base forecast table. Validation errors are always
// fatal. Per-method failures are fatal unless partial results are enabled,
// in which case they are listed in Result.Skipped.
func (hr *HierarchicalReconciliation) Reconcile(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := hr.reconcile(ctx, req)
	if err != nil {
		metrics.failures.Inc()
		hr.opts.logger.WithError(err).Warn("Reconciliation failed")
		return nil, err
	}
	elapsed := time.Since(start)
	metrics.reconcileLatencySecs.Observe(elapsed.Seconds())
	hr.opts.logger.WithFields(log.Fields{
		"columns": len(res.Columns),
		"skipped": len(res.Skipped),
		"elapsed": elapsed,
	}).Info("Reconciliation done")
	return res, nil
}

func (hr *HierarchicalReconciliation) reconcile(ctx context.Context, req Request) (*Result, error) {
	p, err := hr.validate(req)
	if err != nil {
		return nil, err
	}
	metrics.runs.Inc()

	jobs := make([]job, 0, len(p.models)*len(hr.methods))
	for mi := range p.models {
		for ki, m := range hr.methods {
			j := job{model: mi, method: ki, pre: hr.requirementError(m, p.models[mi], p.tags)}
			if j.pre != nil && !hr.opts.partial {
				return nil, j.pre
			}
			jobs = append(jobs, j)
		}
	}

	results := make([]jobResult, len(jobs))
	err = parallel.InvokeN(ctx, len(jobs), hr.opts.parallelism, func(ctx context.Context, i int) error {
		j := jobs[i]
		if j.pre != nil {
			results[i] = jobResult{err: j.pre}
			return nil
		}
		results[i] = hr.run(p, j)
		if results[i].err != nil && !hr.opts.partial {
			return results[i].err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return hr.assemble(p, jobs, results), nil
}

// validate aligns every input table to S and checks shapes and values.
func (hr *HierarchicalReconciliation) validate(req Request) (*prepared, error) {
	st := req.Structure
	if st == nil {
		return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil, "no summing matrix given")
	}
	if len(req.Forecasts) == 0 {
		return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil, "no base forecasts given")
	}
	p := &prepared{st: st, tags: req.Tags}
	if len(req.Tags) > 0 {
		if err := req.Tags.Validate(st); err != nil {
			return nil, fmt.Errorf("tags: %w", err)
		}
	}

	horizon := -1
	names := make(map[string]bool, len(req.Forecasts))
	for _, mf := range req.Forecasts {
		if mf.Name == "" {
			return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil, "base forecast model has no name")
		}
		if names[mf.Name] {
			return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", []string{mf.Name}, "duplicate base forecast model")
		}
		names[mf.Name] = true
		if mf.Mean == nil {
			return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", []string{mf.Name}, "base forecast model has no values")
		}

		mean, err := mf.Mean.Reorder(st.IDs)
		if err != nil {
			return nil, fmt.Errorf("base forecasts %q: %w", mf.Name, err)
		}
		h := mean.Steps()
		switch {
		case horizon < 0:
			horizon = h
		case h != horizon:
			return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", []string{mf.Name},
				"base forecasts have horizon %d, expected %d", h, horizon)
		}
		if bad := mean.CheckFinite(); len(bad) > 0 {
			return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", bad,
				"base forecasts %q have non-finite values", mf.Name)
		}
		pm := preparedModel{name: mf.Name, mean: mean.Values}

		if mf.Sigma != nil {
			sigma, err := mf.Sigma.Reorder(st.IDs)
			if err != nil {
				return nil, fmt.Errorf("base forecast sigma %q: %w", mf.Name, err)
			}
			if sigma.Steps() != h {
				return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", []string{mf.Name},
					"sigma has %d steps but the horizon is %d", sigma.Steps(), h)
			}
			pm.sigma = sigma.Values
		}

		in := &hierarchy.Insample{Y: req.Actuals, YHat: mf.Fitted}
		if pm.insample, err = in.Select(st.IDs); err != nil {
			return nil, fmt.Errorf("model %q: %w", mf.Name, err)
		}
		p.models = append(p.models, pm)
	}
	// Every table now holds exactly the rows of S.
	p.ids = append([]string(nil), req.Forecasts[0].Mean.IDs...)
	for _, id := range p.ids {
		row, _ := st.Index(id)
		p.rows = append(p.rows, row)
	}

	if ic := hr.opts.intervals; ic != nil {
		for _, pm := range p.models {
			switch {
			case ic.Method == Normality && pm.sigma == nil:
				return nil, hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", []string{pm.name},
					"normality intervals need the per-step standard deviations of every base model")
			case ic.Method == Bootstrap && !pm.insample.HasResiduals():
				return nil, hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", []string{pm.name},
					"bootstrap intervals need insample actuals and fitted values of every base model")
			case ic.Method == PERMBU && (pm.sigma == nil || !pm.insample.HasResiduals()):
				return nil, hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", []string{pm.name},
					"PERMBU intervals need standard deviations, insample actuals and fitted values of every base model")
			case ic.Method == PERMBU && len(req.Tags) == 0:
				return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil, "PERMBU intervals need hierarchy tags")
			}
		}
	}
	return p, nil
}

// requirementError checks the insample data and tags a method needs.
func (hr *HierarchicalReconciliation) requirementError(m methods.Method, pm preparedModel, tags hierarchy.Tags) error {
	r := m.Requirements()
	switch {
	case r.Tags && len(tags) == 0:
		return hierarchy.Errorf(hierarchy.ErrShapeMismatch, m.Name(), nil, "hierarchy tags are required")
	case r.Actuals && !pm.insample.HasActuals():
		return hierarchy.Errorf(hierarchy.ErrMissingResiduals, m.Name(), []string{pm.name},
			"insample actuals are required")
	case r.Fitted && !pm.insample.HasResiduals():
		return hierarchy.Errorf(hierarchy.ErrMissingResiduals, m.Name(), []string{pm.name},
			"insample actuals and fitted values are required")
	}
	return nil
}

// run reconciles one base model with one method and builds its intervals.
func (hr *HierarchicalReconciliation) run(p *prepared, j job) jobResult {
	m := hr.methods[j.method]
	pm := p.models[j.model]
	start := time.Now()
	out, err := m.Reconcile(methods.Input{
		Structure: p.st,
		Forecast:  pm.mean,
		Insample:  pm.insample,
		Tags:      p.tags,
	})
	if err != nil {
		return jobResult{err: hierarchy.WithMethod(err, m.Name())}
	}
	var pred *probabilistic.Prediction
	if ic := hr.opts.intervals; ic != nil {
		if pred, err = hr.predict(*ic, p, pm, m.Name(), out); err != nil {
			return jobResult{err: hierarchy.WithMethod(err, m.Name())}
		}
	}
	return jobResult{out: out, pred: pred, elapsed: time.Since(start)}
}

// predict builds the bands and quantile forecasts of one reconciled column.
// PERMBU is a BottomUp sampler and does not need P.
func (hr *HierarchicalReconciliation) predict(ic IntervalsConfig, p *prepared,
	pm preparedModel, method string, out *methods.Output) (*probabilistic.Prediction, error) {

	st := p.st
	if out.P == nil && ic.Method != PERMBU {
		return nil, fmt.Errorf("%s has no reconciliation matrix, so prediction intervals are unavailable", method)
	}
	var sampler probabilistic.Sampler
	switch ic.Method {
	case Normality:
		sampler = probabilistic.Normality{
			Structure: st,
			P:         out.P,
			W:         out.W,
			Mean:      out.Mean,
			Sigma:     pm.sigma,
		}
	case Bootstrap:
		res, err := pm.insample.Residuals()
		if err != nil {
			return nil, err
		}
		sampler = probabilistic.Bootstrap{
			Structure:  st,
			P:          out.P,
			Forecast:   pm.mean,
			Residuals:  res,
			NumSamples: ic.NumSamples,
			Seed:       ic.Seed,
		}
	case PERMBU:
		res, err := pm.insample.Residuals()
		if err != nil {
			return nil, err
		}
		sampler = probabilistic.PERMBU{
			Structure:  st,
			Tags:       p.tags,
			Forecast:   pm.mean,
			Sigma:      pm.sigma,
			Residuals:  res,
			NumSamples: ic.NumSamples,
			Seed:       ic.Seed,
		}
	default:
		return nil, fmt.Errorf("unknown interval method %q", ic.Method)
	}
	return sampler.Predict(ic.Levels, ic.Quantiles)
}

// assemble lays out the base columns, then the reconciled ones in job order.
func (hr *HierarchicalReconciliation) assemble(p *prepared, jobs []job, results []jobResult) *Result {
	res := &Result{
		IDs:            p.ids,
		Diagnostics:    make(map[string][]methods.Diagnostic),
		ExecutionTimes: make(map[string]time.Duration),
	}
	for _, pm := range p.models {
		res.Columns = append(res.Columns, Column{Name: pm.name, Model: pm.name, Mean: p.outputRows(pm.mean)})
	}
	for i, j := range jobs {
		model := p.models[j.model].name
		method := hr.methods[j.method].Name()
		logger := hr.opts.logger.WithFields(log.Fields{"model": model, "method": method})
		r := results[i]
		if r.err != nil {
			metrics.methodSkips.WithLabelValues(method).Inc()
			logger.WithError(r.err).Warn("Skipping reconciliation")
			res.Skipped = append(res.Skipped, Skipped{
				Model:  model,
				Method: method,
				Reason: r.err.Error(),
				Err:    r.err,
			})
			continue
		}
		name := ColumnName(model, method)
		metrics.methodRuns.WithLabelValues(method).Inc()
		metrics.methodLatencySecs.WithLabelValues(method).Observe(r.elapsed.Seconds())
		for _, d := range r.out.Diagnostics {
			metrics.diagnostics.WithLabelValues(method, diagnosticKind(d)).Inc()
			logger.Warnf("Recovered: %v", d)
		}
		if len(r.out.Diagnostics) > 0 {
			res.Diagnostics[name] = r.out.Diagnostics
		}
		res.ExecutionTimes[name] = r.elapsed
		logger.WithField("elapsed", r.elapsed).Debug("Reconciled")
		col := Column{
			Name:   name,
			Model:  model,
			Method: method,
			Mean:   p.outputRows(r.out.Mean),
		}
		if r.pred != nil {
			col.Bands = p.outputBands(r.pred.Bands)
			col.Quantiles = p.outputQuantiles(r.pred.Quantiles)
		}
		res.Columns = append(res.Columns, col)
	}
	return res
}

// outputRows permutes m from S order to the output row order.
func (p *prepared) outputRows(m *mat.Dense) *mat.Dense {
	if m == nil {
		return nil
	}
	_, c := m.Dims()
	out := mat.NewDense(len(p.rows), c, nil)
	for i, row := range p.rows {
		out.SetRow(i, m.RawRowView(row))
	}
	return out
}

func (p *prepared) outputQuantiles(qs []probabilistic.QuantileForecast) []probabilistic.QuantileForecast {
	out := make([]probabilistic.QuantileForecast, len(qs))
	for i, q := range qs {
		out[i] = probabilistic.QuantileForecast{Q: q.Q, Values: p.outputRows(q.Values)}
	}
	return out
}

func (p *prepared) outputBands(bands []probabilistic.Band) []probabilistic.Band {
	out := make([]probabilistic.Band, len(bands))
	for i, b := range bands {
		out[i] = probabilistic.Band{Level: b.Level, Lo: p.outputRows(b.Lo), Hi: p.outputRows(b.Hi)}
	}
	return out
}

func diagnosticKind(d methods.Diagnostic) string {
	if d.Kind == nil {
		return "unknown"
	}
	return d.Kind.Error()
}
