// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package methods

// BottomUp keeps the leaf forecasts and rebuilds every aggregate by summing
// them. Aggregate-level base forecasts are ignored.
type BottomUp struct {
	// Nonnegative clips leaf forecasts at zero before aggregating.
	Nonnegative bool
}

func (m BottomUp) Name() string {
	if m.Nonnegative {
		return methodName("BottomUp", "nonnegative", "true")
	}
	return "BottomUp"
}

func (BottomUp) Requirements() Requirements {
	return Requirements{}
}

func (m BottomUp) Reconcile(in Input) (*Output, error) {
	n, _, _, err := checkInput(in)
	if err != nil {
		return nil, err
	}
	yhat := in.Forecast
	if m.Nonnegative {
		yhat = clipNonnegative(yhat)
	}
	p := bottomUpP(in.Structure)
	return &Output{
		Mean: applyP(in.Structure, p, yhat),
		P:    p,
		W:    identitySym(n),
	}, nil
}
