package ml

import (
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func linearFixture() (*mat.Dense, []float64) {
	const n = 200
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a := float64(i % 20)
		b := float64(i / 20)
		x.Set(i, 0, a)
		x.Set(i, 1, b)
		y[i] = 2*a + b
	}
	return x, y
}

func TestRandomForestFitsSimpleFunction(t *testing.T) {
	x, y := linearFixture()
	forest := NewRandomForest(ForestConfig{NEstimators: 20, Bootstrap: true, Workers: 4})
	if err := forest.Fit(x, y, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mae, err := Evaluate(forest, x, y)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mae > 2 {
		t.Fatalf("expected in-sample MAE below 2, got %f", mae)
	}
}

func TestRandomForestIsIndependentOfWorkers(t *testing.T) {
	x, y := linearFixture()
	serial := NewRandomForest(ForestConfig{NEstimators: 8, Bootstrap: true, Workers: 1})
	if err := serial.Fit(x, y, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	concurrent := NewRandomForest(ForestConfig{NEstimators: 8, Bootstrap: true, Workers: 8})
	if err := concurrent.Fit(x, y, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(serial.Trees, concurrent.Trees) {
		t.Fatal("expected identical trees regardless of worker count")
	}
}

func TestRandomForestPredictChecksWidth(t *testing.T) {
	x, y := linearFixture()
	forest := NewRandomForest(ForestConfig{NEstimators: 2})
	if _, err := forest.Predict([]float64{1, 2}); err == nil {
		t.Fatal("expected error for untrained forest")
	}
	if err := forest.Fit(x, y, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := forest.Predict([]float64{1}); err == nil {
		t.Fatal("expected error for wrong feature count")
	}
	if err := forest.Fit(x, y[:10], 1); err == nil {
		t.Fatal("expected error for target length mismatch")
	}
}

func TestMeanAbsoluteError(t *testing.T) {
	mae, err := MeanAbsoluteError([]float64{1, 2, 3}, []float64{2, 2, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mae != 1 {
		t.Fatalf("expected 1, got %f", mae)
	}
	if _, err := MeanAbsoluteError(nil, nil); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := MeanAbsoluteError([]float64{1}, []float64{1, 2}); err == nil {
		t.Fatal("expected error for length mismatch")
	}
}
