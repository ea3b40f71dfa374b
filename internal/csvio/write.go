// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/d-setiawan/hierarchical-reconciliation-go/core"
	"github.com/d-setiawan/hierarchical-reconciliation-go/evaluation"
	"gonum.org/v1/gonum/mat"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteResult writes res in long format: unique_id, ds, then every column
// followed by its interval bands and quantile forecasts. ds labels the
// horizon steps; nil numbers them from 1.
func WriteResult(w io.Writer, res *core.Result, ds []string) error {
	writer := csv.NewWriter(w)

	header := []string{"unique_id", "ds"}
	var values []*mat.Dense
	for _, c := range res.Columns {
		header = append(header, c.Name)
		values = append(values, c.Mean)
		for _, b := range c.Bands {
			lo, hi := core.BandNames(c.Name, b.Level)
			header = append(header, lo, hi)
			values = append(values, b.Lo, b.Hi)
		}
		for _, q := range c.Quantiles {
			header = append(header, core.QuantileName(c.Name, q.Q))
			values = append(values, q.Values)
		}
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	if len(values) == 0 {
		writer.Flush()
		return writer.Error()
	}

	_, h := values[0].Dims()
	if ds != nil && len(ds) != h {
		return fmt.Errorf("%d ds labels for a horizon of %d", len(ds), h)
	}
	for i, id := range res.IDs {
		for t := 0; t < h; t++ {
			stamp := strconv.Itoa(t + 1)
			if ds != nil {
				stamp = ds[t]
			}
			record := make([]string, 0, len(header))
			record = append(record, id, stamp)
			for _, v := range values {
				record = append(record, formatFloat(v.At(i, t)))
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSkipped lists the pairs skipped in partial-results mode.
func WriteSkipped(w io.Writer, skipped []core.Skipped) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"model", "method", "reason"}); err != nil {
		return err
	}
	for _, s := range skipped {
		if err := writer.Write([]string{s.Model, s.Method, s.Reason}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteReport writes an evaluation report: level, metric, then one column
// per forecast.
func WriteReport(w io.Writer, r *evaluation.Report) error {
	writer := csv.NewWriter(w)
	header := append([]string{"level", "metric"}, r.Columns...)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range r.Rows {
		record := []string{row.Level, row.Metric}
		for _, s := range row.Scores {
			record = append(record, formatFloat(s))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveResult writes res to path.
func SaveResult(path string, res *core.Result, ds []string) error {
	return createFile(path, func(w io.Writer) error { return WriteResult(w, res, ds) })
}

// SaveReport writes an evaluation report to path.
func SaveReport(path string, r *evaluation.Report) error {
	return createFile(path, func(w io.Writer) error { return WriteReport(w, r) })
}

func createFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}
