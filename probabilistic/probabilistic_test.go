// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package probabilistic

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// almostEqual compares floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// skipComments reads lines from scanner, skipping comment lines starting with #
func skipComments(scanner *bufio.Scanner) string {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}

type QuantileTest struct {
	Samples []float64
	Q       float64
	Result  float64
}

func ReadQuantileTests(directory string) []QuantileTest {
	inputFiles, err := os.ReadDir(directory + "input")
	if err != nil {
		panic(err)
	}
	outputFiles, err := os.ReadDir(directory + "output")
	if err != nil {
		panic(err)
	}
	if len(inputFiles) != len(outputFiles) {
		panic("Error: number of input and output files do not match!")
	}

	tests := make([]QuantileTest, len(inputFiles))
	for i, inputFile := range inputFiles {
		tests[i].Samples, tests[i].Q = ReadQuantileInput(directory + "input/" + inputFile.Name())
	}
	for i, outputFile := range outputFiles {
		tests[i].Result = ReadQuantileOutput(directory + "output/" + outputFile.Name())
	}
	return tests
}

func ReadQuantileInput(file string) ([]float64, float64) {
	f, err := os.Open(file)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	// First value is N (number of samples)
	n, err := strconv.Atoi(skipComments(scanner))
	if err != nil {
		panic(fmt.Sprintf("Error parsing N: %v", err))
	}

	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		val, err := strconv.ParseFloat(skipComments(scanner), 64)
		if err != nil {
			panic(fmt.Sprintf("Error parsing sample %d: %v", i, err))
		}
		samples[i] = val
	}

	// Last value is Q
	q, err := strconv.ParseFloat(skipComments(scanner), 64)
	if err != nil {
		panic(fmt.Sprintf("Error parsing Q: %v", err))
	}
	return samples, q
}

func ReadQuantileOutput(file string) float64 {
	f, err := os.Open(file)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	result, err := strconv.ParseFloat(skipComments(scanner), 64)
	if err != nil {
		panic(fmt.Sprintf("Error parsing result: %v", err))
	}
	return result
}

func TestQuantile(t *testing.T) {
	tests := ReadQuantileTests("testdata/Quantile/")
	require.NotEmpty(t, tests)
	for i, test := range tests {
		got := Quantile(test.Samples, test.Q)
		if !almostEqual(got, test.Result, 1e-9) {
			t.Errorf("Test %d: Quantile(%v, %v) = %v; want %v",
				i+1, test.Samples, test.Q, got, test.Result)
		}
	}
}

func TestQuantile_ignores_nan(t *testing.T) {
	assert.Equal(t, 2.0, Quantile([]float64{math.NaN(), 1, 3}, 0.5))
	assert.True(t, math.IsNaN(Quantile([]float64{math.NaN()}, 0.5)))
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

// twoLeaf is R = A + B with the BottomUp P.
func twoLeaf(t *testing.T) (*hierarchy.Structure, *mat.Dense) {
	t.Helper()
	st, err := hierarchy.NewStructure(
		[]string{"R", "A", "B"},
		[]string{"A", "B"},
		mat.NewDense(3, 2, []float64{1, 1, 1, 0, 0, 1}))
	require.NoError(t, err)
	p := mat.NewDense(2, 3, []float64{0, 1, 0, 0, 0, 1})
	return st, p
}

func identity(n int) *mat.SymDense {
	w := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		w.SetSym(i, i, 1)
	}
	return w
}

func TestNormality_Predict(t *testing.T) {
	st, p := twoLeaf(t)
	nm := Normality{
		Structure: st,
		P:         p,
		W:         identity(3),
		Mean:      mat.NewDense(3, 1, []float64{8, 4, 4}),
		Sigma:     mat.NewDense(3, 1, []float64{3, 1, 2}),
	}
	pred, err := nm.Predict([]float64{80, 95}, nil)
	require.NoError(t, err)
	bands := pred.Bands
	require.Len(t, bands, 2)
	assert.Empty(t, pred.Quantiles)

	z80 := 1.2815515655446004
	assert.Equal(t, 80.0, bands[0].Level)
	// Independent leaves: Var(R) = 1 + 4.
	assert.InDelta(t, 8+z80*math.Sqrt(5), bands[0].Hi.At(0, 0), 1e-9)
	assert.InDelta(t, 8-z80*math.Sqrt(5), bands[0].Lo.At(0, 0), 1e-9)
	assert.InDelta(t, 4+z80*2, bands[0].Hi.At(2, 0), 1e-9)
	assert.Greater(t, bands[1].Hi.At(0, 0), bands[0].Hi.At(0, 0))
}

func TestNormality_quantiles(t *testing.T) {
	st, p := twoLeaf(t)
	nm := Normality{
		Structure: st,
		P:         p,
		W:         identity(3),
		Mean:      mat.NewDense(3, 1, []float64{8, 4, 4}),
		Sigma:     mat.NewDense(3, 1, []float64{3, 1, 2}),
	}
	pred, err := nm.Predict(nil, []float64{0.5, 0.9})
	require.NoError(t, err)
	assert.Empty(t, pred.Bands)
	require.Len(t, pred.Quantiles, 2)

	z90 := 1.2815515655446004
	assert.Equal(t, 0.5, pred.Quantiles[0].Q)
	assert.InDelta(t, 8, pred.Quantiles[0].Values.At(0, 0), 1e-9)
	assert.InDelta(t, 4, pred.Quantiles[0].Values.At(1, 0), 1e-9)
	assert.InDelta(t, 8+z90*math.Sqrt(5), pred.Quantiles[1].Values.At(0, 0), 1e-9)
	assert.InDelta(t, 4+z90*2, pred.Quantiles[1].Values.At(2, 0), 1e-9)

	_, err = nm.Predict(nil, nil)
	assert.Error(t, err)
	_, err = nm.Predict(nil, []float64{1})
	assert.Error(t, err)
}

func TestNormality_needs_sigma(t *testing.T) {
	st, p := twoLeaf(t)
	nm := Normality{Structure: st, P: p, W: identity(3), Mean: mat.NewDense(3, 1, []float64{8, 4, 4})}
	_, err := nm.Predict([]float64{80}, nil)
	assert.True(t, errors.Is(err, hierarchy.ErrMissingResiduals))
}

func TestBootstrap_zero_residuals(t *testing.T) {
	st, p := twoLeaf(t)
	bs := Bootstrap{
		Structure:  st,
		P:          p,
		Forecast:   mat.NewDense(3, 2, []float64{10, 10, 4, 5, 4, 3}),
		Residuals:  mat.NewDense(3, 4, nil),
		NumSamples: 50,
		Seed:       1,
	}
	pred, err := bs.Predict([]float64{90}, []float64{0.25})
	require.NoError(t, err)
	expected := mat.NewDense(3, 2, []float64{8, 8, 4, 5, 4, 3})
	assert.True(t, mat.EqualApprox(expected, pred.Bands[0].Lo, 1e-12))
	assert.True(t, mat.EqualApprox(expected, pred.Bands[0].Hi, 1e-12))
	require.Len(t, pred.Quantiles, 1)
	assert.True(t, mat.EqualApprox(expected, pred.Quantiles[0].Values, 1e-12))
}

func TestBootstrap_Samples(t *testing.T) {
	st, p := twoLeaf(t)
	res := mat.NewDense(3, 6, []float64{
		math.NaN(), 1, -1, 2, 0, 1,
		0.5, 0.5, -0.5, 1, 0, -1,
		1, 0.5, -0.5, 1, 0, 2,
	})
	bs := Bootstrap{
		Structure:  st,
		P:          p,
		Forecast:   mat.NewDense(3, 2, []float64{10, 10, 4, 5, 4, 3}),
		Residuals:  res,
		NumSamples: 64,
		Seed:       9,
		Workers:    4,
	}
	draws, err := bs.Samples()
	require.NoError(t, err)
	require.Len(t, draws, 64)
	for _, d := range draws {
		require.NotNil(t, d)
		for s := 0; s < 2; s++ {
			assert.InDelta(t, d.At(1, s)+d.At(2, s), d.At(0, s), 1e-12)
		}
	}

	again, err := bs.Samples()
	require.NoError(t, err)
	for i := range draws {
		assert.True(t, mat.Equal(draws[i], again[i]), "draw %d differs", i)
	}

	pred, err := bs.Predict([]float64{50, 99}, nil)
	require.NoError(t, err)
	bands := pred.Bands
	for s := 0; s < 2; s++ {
		assert.LessOrEqual(t, bands[1].Lo.At(1, s), bands[0].Lo.At(1, s))
		assert.GreaterOrEqual(t, bands[1].Hi.At(1, s), bands[0].Hi.At(1, s))
	}
}

func TestBootstrap_too_few_steps(t *testing.T) {
	st, p := twoLeaf(t)
	bs := Bootstrap{
		Structure: st,
		P:         p,
		Forecast:  mat.NewDense(3, 3, nil),
		Residuals: mat.NewDense(3, 3, []float64{math.NaN(), 1, 1, 1, 1, 1, 1, 1, 1}),
	}
	_, err := bs.Samples()
	require.Error(t, err)
	assert.True(t, errors.Is(err, hierarchy.ErrMissingResiduals))
}

func TestCheckLevels(t *testing.T) {
	assert.NoError(t, CheckLevels([]float64{80, 95}))
	assert.Error(t, CheckLevels(nil))
	assert.Error(t, CheckLevels([]float64{100}))
	assert.Error(t, CheckLevels([]float64{0}))
	assert.Equal(t, "97.5", LevelLabel(97.5))
	assert.Equal(t, "80", LevelLabel(80))
}

func TestCheckQuantiles(t *testing.T) {
	assert.NoError(t, CheckQuantiles([]float64{0.1, 0.5}))
	assert.NoError(t, CheckQuantiles(nil))
	assert.Error(t, CheckQuantiles([]float64{0}))
	assert.Error(t, CheckQuantiles([]float64{1}))
	assert.Equal(t, "0.025", QuantileLabel(0.025))
}

// twoLevel is T = X + Y, X = a + b, Y = c + d.
func twoLevel(t *testing.T) (*hierarchy.Structure, hierarchy.Tags) {
	t.Helper()
	st, err := hierarchy.NewStructure(
		[]string{"T", "X", "Y", "a", "b", "c", "d"},
		[]string{"a", "b", "c", "d"},
		mat.NewDense(7, 4, []float64{
			1, 1, 1, 1,
			1, 1, 0, 0,
			0, 0, 1, 1,
			1, 0, 0, 0,
			0, 1, 0, 0,
			0, 0, 1, 0,
			0, 0, 0, 1,
		}))
	require.NoError(t, err)
	tags := hierarchy.Tags{
		{Name: "Total", IDs: []string{"T"}},
		{Name: "Mid", IDs: []string{"X", "Y"}},
		{Name: "Leaf", IDs: []string{"a", "b", "c", "d"}},
	}
	return st, tags
}

func permbuFixture(t *testing.T) PERMBU {
	st, tags := twoLevel(t)
	return PERMBU{
		Structure: st,
		Tags:      tags,
		Forecast:  mat.NewDense(7, 2, []float64{20, 21, 10, 11, 10, 10, 5, 5, 5, 6, 4, 4, 6, 6}),
		Sigma:     mat.NewDense(7, 2, []float64{4, 4, 2, 2, 2, 2, 1, 1, 1, 1.5, 1, 1, 1, 2}),
		Residuals: mat.NewDense(7, 6, []float64{
			0.3, -1.2, 2.1, 0.7, -0.4, 1.5,
			1.1, -0.6, 0.2, -1.8, 0.9, 0.4,
			-0.3, 0.8, 1.7, -1.1, 0.1, -0.9,
			0.6, -0.2, 1.3, -0.7, 0.05, 0.9,
			-0.5, 0.4, 0.1, -1.2, 0.8, 0.3,
			0.2, 1.1, -0.8, 0.5, -0.1, -1.4,
			-1.3, 0.6, 0.9, -0.2, 1.6, 0.0,
		}),
		Seed: 11,
	}
}

func TestPERMBU_Samples_coherent(t *testing.T) {
	pb := permbuFixture(t)
	pb.NumSamples = 40
	draws, err := pb.Samples()
	require.NoError(t, err)
	require.Len(t, draws, 40)
	for _, d := range draws {
		for s := 0; s < 2; s++ {
			assert.InDelta(t, d.At(3, s)+d.At(4, s), d.At(1, s), 1e-9)
			assert.InDelta(t, d.At(5, s)+d.At(6, s), d.At(2, s), 1e-9)
			assert.InDelta(t, d.At(1, s)+d.At(2, s), d.At(0, s), 1e-9)
		}
	}

	again, err := pb.Samples()
	require.NoError(t, err)
	for i := range draws {
		assert.True(t, mat.Equal(draws[i], again[i]), "draw %d differs", i)
	}
}

func TestPERMBU_Samples_follow_residual_ranks(t *testing.T) {
	pb := permbuFixture(t)
	draws, err := pb.Samples()
	require.NoError(t, err)
	require.Len(t, draws, 6)

	row := func(m *mat.Dense, i int) []float64 { return mat.Row(nil, i, m) }
	across := func(i, step int) []float64 {
		out := make([]float64, len(draws))
		for s, d := range draws {
			out[s] = d.At(i, step)
		}
		return out
	}
	for step := 0; step < 2; step++ {
		// Children of the root keep the rank order of their residuals.
		assert.Equal(t, ranks(row(pb.Residuals, 1)), ranks(across(1, step)))
		assert.Equal(t, ranks(row(pb.Residuals, 2)), ranks(across(2, step)))

		// Siblings lower down keep their joint ranks, moved as a block.
		pairs := func(a, b []int) map[[2]int]int {
			m := make(map[[2]int]int)
			for s := range a {
				m[[2]int{a[s], b[s]}]++
			}
			return m
		}
		assert.Equal(t,
			pairs(ranks(row(pb.Residuals, 3)), ranks(row(pb.Residuals, 4))),
			pairs(ranks(across(3, step)), ranks(across(4, step))))
	}
}

func TestPERMBU_Predict(t *testing.T) {
	pb := permbuFixture(t)
	pb.NumSamples = 200
	pred, err := pb.Predict([]float64{80}, []float64{0.1, 0.5, 0.9})
	require.NoError(t, err)
	require.Len(t, pred.Bands, 1)
	require.Len(t, pred.Quantiles, 3)
	for i := 0; i < 7; i++ {
		for s := 0; s < 2; s++ {
			assert.InDelta(t, pred.Quantiles[0].Values.At(i, s), pred.Bands[0].Lo.At(i, s), 1e-12)
			assert.InDelta(t, pred.Quantiles[2].Values.At(i, s), pred.Bands[0].Hi.At(i, s), 1e-12)
			assert.Less(t, pred.Quantiles[0].Values.At(i, s), pred.Quantiles[1].Values.At(i, s))
		}
	}
}

func TestPERMBU_errors(t *testing.T) {
	pb := permbuFixture(t)
	pb.Tags = nil
	_, err := pb.Samples()
	assert.True(t, errors.Is(err, hierarchy.ErrShapeMismatch))

	pb = permbuFixture(t)
	pb.Tags[2] = hierarchy.Level{Name: "Leaf", IDs: []string{"a", "b", "c"}}
	_, err = pb.Samples()
	assert.True(t, errors.Is(err, hierarchy.ErrShapeMismatch))
	assert.Contains(t, err.Error(), "[d]")
	assert.Contains(t, err.Error(), "every series in a level")

	pb = permbuFixture(t)
	pb.Sigma = nil
	_, err = pb.Samples()
	assert.True(t, errors.Is(err, hierarchy.ErrMissingResiduals))

	pb = permbuFixture(t)
	pb.Residuals = mat.NewDense(7, 2, nil)
	pb.Residuals.Set(0, 0, math.NaN())
	_, err = pb.Samples()
	assert.True(t, errors.Is(err, hierarchy.ErrMissingResiduals))

	// Two crossing groupings of the same leaves are not a tree.
	st, err := hierarchy.NewStructure(
		[]string{"T", "N", "S", "P", "Q", "a", "b", "c", "d"},
		[]string{"a", "b", "c", "d"},
		mat.NewDense(9, 4, []float64{
			1, 1, 1, 1,
			1, 1, 0, 0,
			0, 0, 1, 1,
			1, 0, 1, 0,
			0, 1, 0, 1,
			1, 0, 0, 0,
			0, 1, 0, 0,
			0, 0, 1, 0,
			0, 0, 0, 1,
		}))
	require.NoError(t, err)
	grouped := PERMBU{
		Structure: st,
		Tags: hierarchy.Tags{
			{Name: "Total", IDs: []string{"T"}},
			{Name: "Region", IDs: []string{"N", "S"}},
			{Name: "Type", IDs: []string{"P", "Q"}},
			{Name: "Leaf", IDs: []string{"a", "b", "c", "d"}},
		},
		Forecast:  mat.NewDense(9, 1, nil),
		Sigma:     mat.NewDense(9, 1, nil),
		Residuals: mat.NewDense(9, 3, nil),
	}
	_, err = grouped.Samples()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly hierarchical")
}
