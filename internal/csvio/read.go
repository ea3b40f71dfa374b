// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

// Package csvio reads the CSV inputs of a reconciliation run and writes its
// outputs.
//
// Input layouts:
//
//	S:         unique_id,<leaf...>
//	tags:      level,unique_id            (levels in order of first appearance)
//	forecasts: unique_id,ds,<model...>    (optional <model>-sigma columns)
//	insample:  unique_id,ds,y,<model...>  (model columns are fitted values)
//
// Empty cells are read as NaN.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/d-setiawan/hierarchical-reconciliation-go/core"
	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"gonum.org/v1/gonum/mat"
)

// SigmaSuffix marks the standard deviation column of a model.
const SigmaSuffix = "-sigma"

// readRecords returns the header and the data rows, checking every row has
// as many fields as the header.
func readRecords(r io.Reader, want ...string) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) < len(want) {
		return nil, nil, fmt.Errorf("header %v: expected leading columns %v", header, want)
	}
	for i, w := range want {
		if header[i] != w {
			return nil, nil, fmt.Errorf("header column %d is %q, expected %q", i+1, header[i], w)
		}
	}

	var rows [][]string
	for row := 0; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", row+2, err)
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != len(header) {
			return nil, nil, fmt.Errorf("row %d: expected %d columns, got %d", row+2, len(header), len(record))
		}
		rows = append(rows, record)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("no data rows")
	}
	return header, rows, nil
}

func parseFloat(s string, row, col int) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float at row %d col %d (%q): %w", row+2, col+1, s, err)
	}
	return v, nil
}

// ReadStructure reads S. The header names the leaves; each row is one
// series.
func ReadStructure(r io.Reader) (*hierarchy.Structure, error) {
	header, rows, err := readRecords(r, "unique_id")
	if err != nil {
		return nil, fmt.Errorf("S: %w", err)
	}
	bottom := header[1:]
	ids := make([]string, len(rows))
	data := make([]float64, 0, len(rows)*len(bottom))
	for i, rec := range rows {
		ids[i] = strings.TrimSpace(rec[0])
		for j, s := range rec[1:] {
			v, err := parseFloat(s, i, j+1)
			if err != nil {
				return nil, fmt.Errorf("S: %w", err)
			}
			data = append(data, v)
		}
	}
	if len(bottom) == 0 {
		return nil, fmt.Errorf("S: no leaf columns")
	}
	return hierarchy.NewStructure(ids, bottom, mat.NewDense(len(ids), len(bottom), data))
}

// ReadTags reads level membership.
func ReadTags(r io.Reader) (hierarchy.Tags, error) {
	_, rows, err := readRecords(r, "level", "unique_id")
	if err != nil {
		return nil, fmt.Errorf("tags: %w", err)
	}
	var tags hierarchy.Tags
	pos := make(map[string]int)
	for _, rec := range rows {
		name, id := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
		i, ok := pos[name]
		if !ok {
			i = len(tags)
			pos[name] = i
			tags = append(tags, hierarchy.Level{Name: name})
		}
		tags[i].IDs = append(tags[i].IDs, id)
	}
	return tags, nil
}

// SortStamps orders ds values numerically when all of them parse as
// numbers, lexically otherwise (ISO dates sort correctly either way).
func SortStamps(ds []string) {
	numeric := true
	for _, s := range ds {
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			numeric = false
			break
		}
	}
	if !numeric {
		sort.Strings(ds)
		return
	}
	sort.Slice(ds, func(i, j int) bool {
		a, _ := strconv.ParseFloat(ds[i], 64)
		b, _ := strconv.ParseFloat(ds[j], 64)
		return a < b
	})
}

// longFrame indexes a long-format file by (unique_id, ds).
type longFrame struct {
	ids   []string // first appearance
	ds    []string // sorted
	idRow map[string]int
	dsCol map[string]int
}

func newLongFrame(rows [][]string) (*longFrame, error) {
	lf := &longFrame{idRow: make(map[string]int), dsCol: make(map[string]int)}
	seen := make(map[[2]string]bool, len(rows))
	for i, rec := range rows {
		id, ds := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
		key := [2]string{id, ds}
		if seen[key] {
			return nil, fmt.Errorf("row %d: duplicate (unique_id, ds) = (%s, %s)", i+2, id, ds)
		}
		seen[key] = true
		if _, ok := lf.idRow[id]; !ok {
			lf.idRow[id] = len(lf.ids)
			lf.ids = append(lf.ids, id)
		}
		if _, ok := lf.dsCol[ds]; !ok {
			lf.dsCol[ds] = 0
			lf.ds = append(lf.ds, ds)
		}
	}
	SortStamps(lf.ds)
	for j, ds := range lf.ds {
		lf.dsCol[ds] = j
	}
	return lf, nil
}

// column pivots field col of rows into a series × ds table, NaN where a
// (unique_id, ds) pair is absent.
func (lf *longFrame) column(rows [][]string, col int) (*hierarchy.Table, error) {
	data := make([]float64, len(lf.ids)*len(lf.ds))
	for i := range data {
		data[i] = math.NaN()
	}
	width := len(lf.ds)
	for i, rec := range rows {
		v, err := parseFloat(rec[col], i, col)
		if err != nil {
			return nil, err
		}
		r := lf.idRow[strings.TrimSpace(rec[0])]
		c := lf.dsCol[strings.TrimSpace(rec[1])]
		data[r*width+c] = v
	}
	return hierarchy.NewTable(lf.ids, mat.NewDense(len(lf.ids), width, data))
}

// Forecasts is a parsed forecasts file.
type Forecasts struct {
	Models []core.ModelForecast
	DS     []string // horizon stamps, in column order
}

// ReadForecasts reads base forecasts in long format. A column named
// "<model>-sigma" becomes the Sigma of <model>.
func ReadForecasts(r io.Reader) (*Forecasts, error) {
	header, rows, err := readRecords(r, "unique_id", "ds")
	if err != nil {
		return nil, fmt.Errorf("forecasts: %w", err)
	}
	lf, err := newLongFrame(rows)
	if err != nil {
		return nil, fmt.Errorf("forecasts: %w", err)
	}
	cols := make(map[string]int, len(header))
	for j, h := range header[2:] {
		cols[h] = j + 2
	}

	out := &Forecasts{DS: lf.ds}
	for j, name := range header[2:] {
		if strings.HasSuffix(name, SigmaSuffix) {
			if _, ok := cols[strings.TrimSuffix(name, SigmaSuffix)]; !ok {
				return nil, fmt.Errorf("forecasts: %s has no matching model column", name)
			}
			continue
		}
		mf := core.ModelForecast{Name: name}
		if mf.Mean, err = lf.column(rows, j+2); err != nil {
			return nil, fmt.Errorf("forecasts: %s: %w", name, err)
		}
		if sc, ok := cols[name+SigmaSuffix]; ok {
			if mf.Sigma, err = lf.column(rows, sc); err != nil {
				return nil, fmt.Errorf("forecasts: %s: %w", name+SigmaSuffix, err)
			}
		}
		out.Models = append(out.Models, mf)
	}
	if len(out.Models) == 0 {
		return nil, fmt.Errorf("forecasts: no model columns")
	}
	return out, nil
}

// Insample is a parsed insample file.
type Insample struct {
	Actuals *hierarchy.Table
	Fitted  map[string]*hierarchy.Table // by model
	DS      []string
}

// ReadInsample reads historical actuals and the models' fitted values.
// Histories may start at different stamps; earlier steps are NaN.
func ReadInsample(r io.Reader) (*Insample, error) {
	header, rows, err := readRecords(r, "unique_id", "ds", "y")
	if err != nil {
		return nil, fmt.Errorf("insample: %w", err)
	}
	lf, err := newLongFrame(rows)
	if err != nil {
		return nil, fmt.Errorf("insample: %w", err)
	}
	out := &Insample{Fitted: make(map[string]*hierarchy.Table), DS: lf.ds}
	if out.Actuals, err = lf.column(rows, 2); err != nil {
		return nil, fmt.Errorf("insample: y: %w", err)
	}
	for j, name := range header[3:] {
		if out.Fitted[name], err = lf.column(rows, j+3); err != nil {
			return nil, fmt.Errorf("insample: %s: %w", name, err)
		}
	}
	return out, nil
}

// Request assembles a core.Request, attaching fitted values to the models
// of the same name.
func Request(st *hierarchy.Structure, fc *Forecasts, in *Insample, tags hierarchy.Tags) core.Request {
	req := core.Request{Structure: st, Tags: tags}
	req.Forecasts = make([]core.ModelForecast, len(fc.Models))
	copy(req.Forecasts, fc.Models)
	if in != nil {
		req.Actuals = in.Actuals
		for i := range req.Forecasts {
			req.Forecasts[i].Fitted = in.Fitted[req.Forecasts[i].Name]
		}
	}
	return req
}

func withFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	v, err := read(f)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// LoadStructure reads S from path.
func LoadStructure(path string) (*hierarchy.Structure, error) {
	return withFile(path, ReadStructure)
}

// LoadTags reads tags from path.
func LoadTags(path string) (hierarchy.Tags, error) {
	return withFile(path, ReadTags)
}

// LoadForecasts reads base forecasts from path.
func LoadForecasts(path string) (*Forecasts, error) {
	return withFile(path, ReadForecasts)
}

// LoadInsample reads insample data from path.
func LoadInsample(path string) (*Insample, error) {
	return withFile(path, ReadInsample)
}

// IsBandColumn reports whether name is a "<col>-lo-<lv>", "<col>-hi-<lv>" or
// "<col>-q-<q>" column of a written result.
func IsBandColumn(name string) bool {
	return strings.Contains(name, "-lo-") || strings.Contains(name, "-hi-") || strings.Contains(name, "-q-")
}

// ReadResult reads a file written by WriteResult, dropping interval and
// quantile columns.
func ReadResult(r io.Reader) (*Forecasts, error) {
	fc, err := ReadForecasts(r)
	if err != nil {
		return nil, err
	}
	kept := fc.Models[:0]
	for _, m := range fc.Models {
		if !IsBandColumn(m.Name) {
			kept = append(kept, m)
		}
	}
	fc.Models = kept
	return fc, nil
}

// LoadResult reads a written result from path.
func LoadResult(path string) (*Forecasts, error) {
	return withFile(path, ReadResult)
}
