// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package core

import (
	"fmt"

	"github.com/d-setiawan/hierarchical-reconciliation-go/probabilistic"
	log "github.com/sirupsen/logrus"
)

// IntervalMethod selects how prediction intervals are computed.
type IntervalMethod string

const (
	Normality IntervalMethod = "normality"
	Bootstrap IntervalMethod = "bootstrap"
	PERMBU    IntervalMethod = "permbu"
)

// IntervalsConfig requests prediction intervals and quantile forecasts for
// every reconciled column.
type IntervalsConfig struct {
	Method     IntervalMethod
	Levels     []float64 // percent, e.g. 80, 95
	Quantiles  []float64 // in (0, 1), e.g. 0.1, 0.5, 0.9
	NumSamples int       // sampled paths, default 500 (PERMBU: insample steps)
	Seed       uint64    // zero uses the clock
}

// Validate checks the interval settings.
func (ic IntervalsConfig) Validate() error {
	switch ic.Method {
	case Normality, Bootstrap, PERMBU:
	default:
		return fmt.Errorf("unknown interval method %q", ic.Method)
	}
	if ic.NumSamples < 0 {
		return fmt.Errorf("num_samples must be >= 0, got %d", ic.NumSamples)
	}
	if len(ic.Levels) == 0 && len(ic.Quantiles) == 0 {
		return fmt.Errorf("no interval levels or quantiles given")
	}
	if len(ic.Levels) > 0 {
		if err := probabilistic.CheckLevels(ic.Levels); err != nil {
			return err
		}
	}
	return probabilistic.CheckQuantiles(ic.Quantiles)
}

type options struct {
	parallelism int
	partial     bool
	intervals   *IntervalsConfig
	logger      *log.Entry
}

// Option configures a HierarchicalReconciliation.
type Option func(*options)

// WithParallelism bounds how many (model, method) pairs run at once. Values
// <= 0 mean runtime.NumCPU().
func WithParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// WithPartialResults turns per-method failures into Skipped entries instead
// of failing the whole call. Input validation errors stay fatal.
func WithPartialResults(partial bool) Option {
	return func(o *options) { o.partial = partial }
}

// WithIntervals adds prediction-interval bands and quantile forecasts to
// every reconciled column.
func WithIntervals(cfg IntervalsConfig) Option {
	return func(o *options) { o.intervals = &cfg }
}

// WithLogger sets the logger; the default is the logrus standard logger.
func WithLogger(l *log.Entry) Option {
	return func(o *options) { o.logger = l }
}
