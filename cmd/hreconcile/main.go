// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

// Command hreconcile reconciles base forecasts of a hierarchy from CSV files
// and scores the result against actuals.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/d-setiawan/hierarchical-reconciliation-go/core"
	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"github.com/d-setiawan/hierarchical-reconciliation-go/internal/config"
	"github.com/d-setiawan/hierarchical-reconciliation-go/internal/csvio"
	docopt "github.com/docopt/docopt-go"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const usage = `hreconcile makes hierarchical base forecasts coherent.

Usage:
  hreconcile init [-c CONFIG]
  hreconcile reconcile -s SUMMING -f FORECASTS [-t TAGS] [-i INSAMPLE] [-c CONFIG] [-o OUT] [--skipped FILE] [--metrics FILE] [-v]
  hreconcile evaluate -r RESULT -a ACTUALS -t TAGS [-c CONFIG] [-b BENCHMARK] [-o OUT] [-v]

Options:
  -c CONFIG --config CONFIG        Run configuration [default: hreconcile.yaml].
  -s SUMMING --summing SUMMING     Summing matrix, unique_id,<leaf...>.
  -f FORECASTS --forecasts FORECASTS  Base forecasts, unique_id,ds,<model...>.
  -t TAGS --tags TAGS              Hierarchy levels, level,unique_id.
  -i INSAMPLE --insample INSAMPLE  History, unique_id,ds,y,<model...>.
  -r RESULT --result RESULT        A file written by reconcile.
  -a ACTUALS --actuals ACTUALS     Out-of-sample actuals, unique_id,ds,y.
  -b BENCHMARK --benchmark BENCHMARK  Column the scores are scaled by; overrides the config.
  -o OUT --out OUT                 Output file [default: -].
  --skipped FILE                   Write the skipped (model, method) pairs here.
  --metrics FILE                   Write Prometheus metrics here after the run.
  -v --verbose                     Log at debug level.

Examples:
  # Write a starting configuration.
  hreconcile init -c run.yaml

  # Reconcile with MinTrace, which needs insample residuals.
  hreconcile reconcile -c run.yaml -s S.csv -t tags.csv -f forecasts.csv -i insample.csv -o reconciled.csv

  # Score every column relative to the base forecasts.
  hreconcile evaluate -r reconciled.csv -a test.csv -t tags.csv -b Naive
`

type options struct {
	Init      bool   `docopt:"init"`
	Reconcile bool   `docopt:"reconcile"`
	Evaluate  bool   `docopt:"evaluate"`
	Config    string `docopt:"--config"`
	Summing   string `docopt:"--summing"`
	Forecasts string `docopt:"--forecasts"`
	Tags      string `docopt:"--tags"`
	Insample  string `docopt:"--insample"`
	Result    string `docopt:"--result"`
	Actuals   string `docopt:"--actuals"`
	Benchmark string `docopt:"--benchmark"`
	Out       string `docopt:"--out"`
	Skipped   string `docopt:"--skipped"`
	Metrics   string `docopt:"--metrics"`
	Verbose   bool   `docopt:"--verbose"`
}

func parseArgs(args []string) (*options, error) {
	opts, err := docopt.ParseArgs(usage, args, "")
	if err != nil {
		return nil, fmt.Errorf("error parsing command-line arguments: %v", err)
	}
	var o options
	if err := opts.Bind(&o); err != nil {
		return nil, fmt.Errorf("error binding command-line arguments: %v\nfrom: %+v", err, opts)
	}
	return &o, nil
}

func main() {
	o, err := parseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("Command failure: %v", err)
	}
	if o.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	switch {
	case o.Init:
		err = initConfig(o)
	case o.Reconcile:
		err = reconcile(o)
	case o.Evaluate:
		err = evaluate(o)
	}
	if err != nil {
		log.Fatalf("Command failure: %v", err)
	}
}

func initConfig(o *options) error {
	if _, err := os.Stat(o.Config); err == nil {
		return fmt.Errorf("%s already exists", o.Config)
	}
	if err := os.WriteFile(o.Config, []byte(config.DefaultConfigYAML), 0644); err != nil {
		return err
	}
	fmt.Println("Configuration written to", o.Config)
	return nil
}

// loadConfig reads the configuration file, or uses the default one when the
// default path does not exist.
func loadConfig(o *options) (*config.Config, error) {
	if _, err := os.Stat(o.Config); os.IsNotExist(err) && o.Config == "hreconcile.yaml" {
		log.Debugf("No %s, using the default configuration", o.Config)
		return config.Parse([]byte(config.DefaultConfigYAML))
	}
	return config.Load(o.Config)
}

func reconcile(o *options) error {
	// 1. Load the configuration
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	hr, err := cfg.Reconciliation(core.WithLogger(log.WithField("cmd", "reconcile")))
	if err != nil {
		return err
	}

	// 2. Load S, tags, base forecasts and history
	st, err := csvio.LoadStructure(o.Summing)
	if err != nil {
		return err
	}
	var tags hierarchy.Tags
	if o.Tags != "" {
		if tags, err = csvio.LoadTags(o.Tags); err != nil {
			return err
		}
	}
	fc, err := csvio.LoadForecasts(o.Forecasts)
	if err != nil {
		return err
	}
	var in *csvio.Insample
	if o.Insample != "" {
		if in, err = csvio.LoadInsample(o.Insample); err != nil {
			return err
		}
	}
	n, k := st.Dims()
	log.Infof("Loaded %d series (%d leaves), %d models, horizon %d", n, k, len(fc.Models), len(fc.DS))

	// 3. Reconcile
	res, err := hr.Reconcile(context.Background(), csvio.Request(st, fc, in, tags))
	if err != nil {
		return err
	}
	for name, d := range res.Diagnostics {
		for _, diag := range d {
			log.Warnf("%s: %v", name, diag)
		}
	}

	// 4. Write the reconciled table and the skip list
	if err := writeOut(o.Out, func(f *os.File) error { return csvio.WriteResult(f, res, fc.DS) }); err != nil {
		return err
	}
	if o.Skipped != "" {
		if err := writeOut(o.Skipped, func(f *os.File) error { return csvio.WriteSkipped(f, res.Skipped) }); err != nil {
			return err
		}
	} else {
		for _, s := range res.Skipped {
			log.Warnf("Skipped %s for %s: %s", s.Method, s.Model, s.Reason)
		}
	}

	// 5. Dump metrics
	if o.Metrics != "" {
		if err := prometheus.WriteToTextfile(o.Metrics, prometheus.DefaultGatherer); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func evaluate(o *options) error {
	// 1. Load the configuration and build the evaluator
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	he, err := cfg.Evaluator()
	if err != nil {
		return err
	}
	benchmark := cfg.Evaluation.Benchmark
	if o.Benchmark != "" {
		benchmark = o.Benchmark
	}

	// 2. Load the reconciled table, actuals and tags
	res, err := csvio.LoadResult(o.Result)
	if err != nil {
		return err
	}
	actual, err := csvio.LoadInsample(o.Actuals)
	if err != nil {
		return err
	}
	tags, err := csvio.LoadTags(o.Tags)
	if err != nil {
		return err
	}

	// 3. Score
	forecasts := make(map[string]*hierarchy.Table, len(res.Models))
	for _, m := range res.Models {
		forecasts[m.Name] = m.Mean
	}
	report, err := he.Evaluate(forecasts, actual.Actuals, tags, benchmark)
	if err != nil {
		return err
	}

	// 4. Write the report
	return writeOut(o.Out, func(f *os.File) error { return csvio.WriteReport(f, report) })
}

// writeOut writes to path, or to stdout when path is "-".
func writeOut(path string, write func(*os.File) error) error {
	if path == "-" || path == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Infof("Written to %s", path)
	return f.Close()
}
