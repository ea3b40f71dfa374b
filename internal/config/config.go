// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

// Package config reads the YAML run configuration and turns it into
// reconciliation methods and orchestrator options.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/d-setiawan/hierarchical-reconciliation-go/core"
	"github.com/d-setiawan/hierarchical-reconciliation-go/evaluation"
	"github.com/d-setiawan/hierarchical-reconciliation-go/methods"
	"gopkg.in/yaml.v3"
)

// DefaultConfigYAML is written by `hreconcile init`.
const DefaultConfigYAML = `# hreconcile run configuration
parallelism: 0        # 0 uses every CPU
partial_results: false

# Prediction intervals, optional. method is normality, bootstrap or permbu.
# intervals:
#   method: bootstrap
#   levels: [80, 95]
#   quantiles: [0.1, 0.5, 0.9]
#   num_samples: 200
#   seed: 7

reconcilers:
  - method: BottomUp
  - method: MinTrace
    weight: ols
  - method: MinTrace
    weight: wls_struct

evaluation:
  metrics: [mse, mae]
  benchmark: ""
`

// Reconciler is one entry of the reconcilers list. Only the fields of the
// named method are read.
type Reconciler struct {
	Method string `yaml:"method"`

	Nonnegative bool `yaml:"nonnegative,omitempty"`

	// MinTrace
	Weight      string  `yaml:"weight,omitempty"`
	ShrinkRidge float64 `yaml:"shrink_ridge,omitempty"`

	// TopDown and MiddleOut
	Proportion  string `yaml:"proportion,omitempty"`
	MiddleLevel string `yaml:"middle_level,omitempty"`

	// ERM
	ERMMethod string  `yaml:"erm_method,omitempty"`
	Alpha     float64 `yaml:"regularization_alpha,omitempty"`
	MaxIters  int     `yaml:"max_iters,omitempty"`
	Tol       float64 `yaml:"tol,omitempty"`
}

// Intervals mirrors core.IntervalsConfig.
type Intervals struct {
	Method     string    `yaml:"method"`
	Levels     []float64 `yaml:"levels,omitempty"`
	Quantiles  []float64 `yaml:"quantiles,omitempty"`
	NumSamples int       `yaml:"num_samples,omitempty"`
	Seed       uint64    `yaml:"seed,omitempty"`
}

// Evaluation selects the metrics scored by `hreconcile evaluate`.
type Evaluation struct {
	Metrics   []string `yaml:"metrics,omitempty"`
	Benchmark string   `yaml:"benchmark,omitempty"`
}

// Config models the run configuration file.
type Config struct {
	Parallelism    int          `yaml:"parallelism"`
	PartialResults bool         `yaml:"partial_results"`
	Intervals      *Intervals   `yaml:"intervals,omitempty"`
	Reconcilers    []Reconciler `yaml:"reconcilers"`
	Evaluation     Evaluation   `yaml:"evaluation,omitempty"`
}

// Parse decodes and validates a configuration payload. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("config: payload is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field without building anything.
func (c *Config) Validate() error {
	if c.Parallelism < 0 {
		return fmt.Errorf("config: parallelism must be >= 0, got %d", c.Parallelism)
	}
	if len(c.Reconcilers) == 0 {
		return fmt.Errorf("config: at least one reconciler is required")
	}
	if _, err := c.Methods(); err != nil {
		return err
	}
	if c.Intervals != nil {
		if err := c.intervals().Validate(); err != nil {
			return fmt.Errorf("config: intervals: %w", err)
		}
	}
	for _, name := range c.Evaluation.Metrics {
		if _, ok := evaluation.ByName(name); !ok {
			return fmt.Errorf("config: unknown evaluation metric %q", name)
		}
	}
	return nil
}

// Methods builds the configured methods in order.
func (c *Config) Methods() ([]methods.Method, error) {
	out := make([]methods.Method, 0, len(c.Reconcilers))
	seen := make(map[string]int, len(c.Reconcilers))
	for i, r := range c.Reconcilers {
		m, err := r.Build()
		if err != nil {
			return nil, fmt.Errorf("config: reconcilers[%d]: %w", i, err)
		}
		if j, dup := seen[m.Name()]; dup {
			return nil, fmt.Errorf("config: reconcilers[%d] and [%d] are both %s", j, i, m.Name())
		}
		seen[m.Name()] = i
		out = append(out, m)
	}
	return out, nil
}

// Build returns the method r describes.
func (r Reconciler) Build() (methods.Method, error) {
	switch strings.TrimSpace(r.Method) {
	case "BottomUp":
		return methods.BottomUp{Nonnegative: r.Nonnegative}, nil

	case "TopDown":
		p := methods.Proportion(r.Proportion)
		if !p.Valid() {
			return nil, fmt.Errorf("unknown top-down proportion %q", r.Proportion)
		}
		return methods.TopDown{Method: p}, nil

	case "MiddleOut":
		p := methods.Proportion(r.Proportion)
		if !p.Valid() {
			return nil, fmt.Errorf("unknown top-down proportion %q", r.Proportion)
		}
		if r.MiddleLevel == "" {
			return nil, fmt.Errorf("MiddleOut needs middle_level")
		}
		return methods.MiddleOut{MiddleLevel: r.MiddleLevel, TopDownMethod: p}, nil

	case "MinTrace":
		w := methods.Weight(r.Weight)
		if r.Weight == "" {
			w = methods.OLS
		}
		if !w.Valid() {
			return nil, fmt.Errorf("unknown MinTrace weight %q", r.Weight)
		}
		if r.ShrinkRidge < 0 {
			return nil, fmt.Errorf("shrink_ridge must be >= 0, got %v", r.ShrinkRidge)
		}
		return methods.MinTrace{Method: w, Nonnegative: r.Nonnegative, ShrinkRidge: r.ShrinkRidge}, nil

	case "ERM":
		v := methods.ERMVariant(r.ERMMethod)
		if r.ERMMethod == "" {
			v = methods.ERMClosed
		}
		if !v.Valid() {
			return nil, fmt.Errorf("unknown ERM method %q", r.ERMMethod)
		}
		if r.Alpha < 0 || r.MaxIters < 0 || r.Tol < 0 {
			return nil, fmt.Errorf("ERM regularization_alpha, max_iters and tol must be >= 0")
		}
		return methods.ERM{Method: v, Alpha: r.Alpha, MaxIters: r.MaxIters, Tol: r.Tol}, nil
	}
	return nil, fmt.Errorf("unknown reconciliation method %q", r.Method)
}

func (c *Config) intervals() core.IntervalsConfig {
	return core.IntervalsConfig{
		Method:     core.IntervalMethod(c.Intervals.Method),
		Levels:     c.Intervals.Levels,
		Quantiles:  c.Intervals.Quantiles,
		NumSamples: c.Intervals.NumSamples,
		Seed:       c.Intervals.Seed,
	}
}

// Options returns the orchestrator options the file asks for.
func (c *Config) Options() []core.Option {
	opts := []core.Option{
		core.WithParallelism(c.Parallelism),
		core.WithPartialResults(c.PartialResults),
	}
	if c.Intervals != nil {
		opts = append(opts, core.WithIntervals(c.intervals()))
	}
	return opts
}

// Reconciliation builds the orchestrator. extra options are applied after
// the file's own.
func (c *Config) Reconciliation(extra ...core.Option) (*core.HierarchicalReconciliation, error) {
	ms, err := c.Methods()
	if err != nil {
		return nil, err
	}
	return core.New(ms, append(c.Options(), extra...)...)
}

// Evaluator builds the evaluator for the configured metrics, all built-in
// metrics when none are listed.
func (c *Config) Evaluator() (*evaluation.HierarchicalEvaluation, error) {
	var metrics []evaluation.NamedMetric
	for _, name := range c.Evaluation.Metrics {
		m, ok := evaluation.ByName(name)
		if !ok {
			return nil, fmt.Errorf("config: unknown evaluation metric %q", name)
		}
		metrics = append(metrics, m)
	}
	return evaluation.New(metrics...)
}
