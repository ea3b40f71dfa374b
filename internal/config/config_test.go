// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/d-setiawan/hierarchical-reconciliation-go/core"
	"github.com/d-setiawan/hierarchical-reconciliation-go/methods"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullYAML = `
parallelism: 4
partial_results: true
intervals: {method: bootstrap, levels: [80, 95], num_samples: 200, seed: 7}
reconcilers:
  - method: BottomUp
  - method: MinTrace
    weight: mint_shrink
    nonnegative: true
  - method: TopDown
    proportion: average_proportions
  - method: MiddleOut
    middle_level: State
  - method: ERM
    erm_method: reg_bu
    regularization_alpha: 0.01
evaluation:
  metrics: [mse, smape]
  benchmark: Naive/BottomUp
`

func Test_Parse(t *testing.T) {
	assert := assert.New(t)
	cfg, err := Parse([]byte(fullYAML))
	require.NoError(t, err)
	assert.Equal(4, cfg.Parallelism)
	assert.True(cfg.PartialResults)
	require.NotNil(t, cfg.Intervals)
	assert.Equal([]float64{80, 95}, cfg.Intervals.Levels)

	ms, err := cfg.Methods()
	require.NoError(t, err)
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name()
	}
	assert.Equal([]string{
		"BottomUp",
		"MinTrace_method-mint_shrink_nonnegative-true",
		"TopDown_method-average_proportions",
		"MiddleOut_middle_level-State_top_down_method-forecast_proportions",
		"ERM_method-reg_bu_lambda_reg-0.01",
	}, names)
	assert.Equal(methods.MinTrace{Method: methods.MinTShrink, Nonnegative: true}, ms[1])

	hr, err := cfg.Reconciliation()
	require.NoError(t, err)
	assert.Equal(names, hr.MethodNames())

	he, err := cfg.Evaluator()
	require.NoError(t, err)
	assert.Len(he.Metrics, 2)
}

func Test_Parse_default(t *testing.T) {
	cfg, err := Parse([]byte(DefaultConfigYAML))
	require.NoError(t, err)
	assert.Nil(t, cfg.Intervals)
	assert.Len(t, cfg.Reconcilers, 3)
}

func Test_Parse_errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		err  string
	}{
		{"empty", "  \n", "config: payload is empty"},
		{"unknown field", "reconcilers: [{method: BottomUp}]\nparalelism: 2\n", "field paralelism not found"},
		{"no reconcilers", "parallelism: 1\n", "config: at least one reconciler is required"},
		{"unknown method", "reconcilers: [{method: Foo}]\n", `unknown reconciliation method "Foo"`},
		{"bad weight", "reconcilers: [{method: MinTrace, weight: mint}]\n", `unknown MinTrace weight "mint"`},
		{"duplicate", "reconcilers: [{method: BottomUp}, {method: BottomUp}]\n", "are both BottomUp"},
		{"middle level", "reconcilers: [{method: MiddleOut}]\n", "MiddleOut needs middle_level"},
		{"bad level", "reconcilers: [{method: BottomUp}]\nintervals: {method: normality, levels: [120]}\n", "must be in (0, 100)"},
		{"bad quantile", "reconcilers: [{method: BottomUp}]\nintervals: {method: permbu, quantiles: [0.5, 1]}\n", "quantile 1 must be in (0, 1)"},
		{"nothing to predict", "reconcilers: [{method: BottomUp}]\nintervals: {method: permbu}\n", "no interval levels or quantiles given"},
		{"bad metric", "reconcilers: [{method: BottomUp}]\nevaluation: {metrics: [crps]}\n", `unknown evaluation metric "crps"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func Test_Parse_permbuQuantiles(t *testing.T) {
	assert := assert.New(t)
	cfg, err := Parse([]byte("reconcilers: [{method: BottomUp}]\n" +
		"intervals: {method: permbu, quantiles: [0.1, 0.5, 0.9], num_samples: 50, seed: 2}\n"))
	require.NoError(t, err)
	ic := cfg.intervals()
	assert.Equal(core.PERMBU, ic.Method)
	assert.Empty(ic.Levels)
	assert.Equal([]float64{0.1, 0.5, 0.9}, ic.Quantiles)
	assert.Equal(50, ic.NumSamples)
	_, err = cfg.Reconciliation()
	assert.NoError(err)
}

func Test_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullYAML), 0644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Reconcilers, 5)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
