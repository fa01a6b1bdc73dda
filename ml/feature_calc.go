package ml

import "math"

// ClampUsage rounds a raw usage estimate half-to-even and floors it at MinUsage.
// The generator and the prediction service both go through here.
func ClampUsage(raw float64) int {
	if math.IsNaN(raw) {
		return MinUsage
	}
	rounded := math.RoundToEven(raw)
	if rounded < MinUsage {
		return MinUsage
	}
	if rounded > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(rounded)
}

func meanOf(values []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += values[i]
	}
	return sum / float64(len(idx))
}

func isConstant(values []float64, idx []int) bool {
	if len(idx) == 0 {
		return true
	}
	first := values[idx[0]]
	for _, i := range idx[1:] {
		if values[i] != first {
			return false
		}
	}
	return true
}
