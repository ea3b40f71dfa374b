// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package probabilistic

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/d-setiawan/hierarchical-reconciliation-go/hierarchy"
	"gonum.org/v1/gonum/mat"
)

// Bootstrap builds sample paths by adding blocks of h consecutive insample
// residuals to the base forecasts and reconciling each path with S·P.
type Bootstrap struct {
	Structure *hierarchy.Structure
	P         *mat.Dense // leaves × series
	Forecast  *mat.Dense // base forecasts, series × horizon
	Residuals *mat.Dense // insample y - ŷ, series × time, NaN where missing

	NumSamples int    // default 500
	Seed       uint64 // zero uses the clock
	Workers    int    // default runtime.NumCPU()
}

// completeColumns returns the residual columns observed for every series.
func completeColumns(res *mat.Dense) []int {
	n, T := res.Dims()
	var cols []int
	for t := 0; t < T; t++ {
		complete := true
		for i := 0; i < n && complete; i++ {
			complete = !math.IsNaN(res.At(i, t))
		}
		if complete {
			cols = append(cols, t)
		}
	}
	return cols
}

// Samples returns NumSamples reconciled sample paths (series × horizon).
func (bs Bootstrap) Samples() ([]*mat.Dense, error) {
	if bs.Structure == nil || bs.P == nil || bs.Forecast == nil {
		return nil, fmt.Errorf("bootstrap intervals need S, P and the base forecasts")
	}
	if bs.Residuals == nil {
		return nil, hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", nil,
			"bootstrap intervals need insample residuals")
	}
	// Default options if not set
	if bs.NumSamples <= 0 {
		bs.NumSamples = 500
	}
	if bs.Workers <= 0 {
		bs.Workers = runtime.NumCPU()
	}

	n, h := bs.Forecast.Dims()
	if rr, _ := bs.Residuals.Dims(); rr != n {
		return nil, hierarchy.Errorf(hierarchy.ErrShapeMismatch, "", nil,
			"residuals have %d rows but forecasts have %d", rr, n)
	}
	cols := completeColumns(bs.Residuals)
	if len(cols) < h {
		return nil, hierarchy.Errorf(hierarchy.ErrMissingResiduals, "", nil,
			"bootstrap needs at least %d complete insample steps, found %d", h, len(cols))
	}
	// Block starts over the complete columns
	nStarts := len(cols) - h + 1

	var sp mat.Dense
	sp.Mul(bs.Structure.S, bs.P)

	// Per-sample seeds so the RNG is not shared across goroutines
	masterSeed := bs.Seed
	if masterSeed == 0 {
		masterSeed = uint64(time.Now().UnixNano())
	}
	masterRng := rand.New(rand.NewPCG(masterSeed, masterSeed))
	seeds := make([]uint64, bs.NumSamples)
	for i := range seeds {
		seeds[i] = masterRng.Uint64()
	}

	// Worker pool
	numWorkers := bs.Workers
	if numWorkers > bs.NumSamples {
		numWorkers = bs.NumSamples
	}

	type draw struct {
		index int
		value *mat.Dense
	}
	jobs := make(chan int)
	resultsCh := make(chan draw, bs.NumSamples)

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	worker := func() {
		defer wg.Done()

		for b := range jobs {
			rng := rand.New(rand.NewPCG(seeds[b], uint64(b)))
			start := rng.IntN(nStarts)

			// ŷ plus a residual block, then reconciled
			path := mat.NewDense(n, h, nil)
			for t := 0; t < h; t++ {
				src := cols[start+t]
				for i := 0; i < n; i++ {
					path.Set(i, t, bs.Forecast.At(i, t)+bs.Residuals.At(i, src))
				}
			}
			var rec mat.Dense
			rec.Mul(&sp, path)
			resultsCh <- draw{index: b, value: &rec}
		}
	}

	for w := 0; w < numWorkers; w++ {
		go worker()
	}

	go func() {
		for b := 0; b < bs.NumSamples; b++ {
			jobs <- b
		}
		close(jobs)
	}()

	// Collect in sample order so a fixed seed gives a fixed result
	draws := make([]*mat.Dense, bs.NumSamples)
	for i := 0; i < bs.NumSamples; i++ {
		d := <-resultsCh
		draws[d.index] = d.value
	}

	wg.Wait()
	close(resultsCh)

	return draws, nil
}

// Predict returns empirical bands and quantiles from the bootstrap sample
// paths.
func (bs Bootstrap) Predict(levels, quantiles []float64) (*Prediction, error) {
	if err := checkRequest(levels, quantiles); err != nil {
		return nil, err
	}
	draws, err := bs.Samples()
	if err != nil {
		return nil, err
	}
	return empiricalPrediction(draws, levels, quantiles), nil
}
