package ml

import "gonum.org/v1/gonum/mat"

// Regressor is a fitted model that maps an encoded row to a real-valued estimate.
type Regressor interface {
	Predict(features []float64) (float64, error)
}

// BatchRegressor can score a whole matrix in one call.
type BatchRegressor interface {
	Regressor
	PredictBatch(x *mat.Dense) ([]float64, error)
}
