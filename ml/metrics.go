package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MeanAbsoluteError is mean(|yTrue - yPred|).
func MeanAbsoluteError(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) == 0 {
		return 0, errors.New("no values to compare")
	}
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("length mismatch: %d true vs %d predicted", len(yTrue), len(yPred))
	}
	diffs := make([]float64, len(yTrue))
	for i := range yTrue {
		diffs[i] = math.Abs(yTrue[i] - yPred[i])
	}
	return stat.Mean(diffs, nil), nil
}

// Evaluate scores model on x and returns its mean absolute error against y.
func Evaluate(model Regressor, x *mat.Dense, y []float64) (float64, error) {
	if batch, ok := model.(BatchRegressor); ok {
		pred, err := batch.PredictBatch(x)
		if err != nil {
			return 0, err
		}
		return MeanAbsoluteError(y, pred)
	}
	rows, _ := x.Dims()
	pred := make([]float64, rows)
	for i := 0; i < rows; i++ {
		v, err := model.Predict(x.RawRowView(i))
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		pred[i] = v
	}
	return MeanAbsoluteError(y, pred)
}
