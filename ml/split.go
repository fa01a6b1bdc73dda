package ml

import "math"

// DefaultTestRatio is the share of rows held out for evaluation.
const DefaultTestRatio = 0.2

// TrainTestSplit shuffles the dataset with a seeded permutation and holds out
// ceil(len*testRatio) rows. The input is not modified.
func TrainTestSplit(ds Dataset, testRatio float64, seed uint64) (train, test Dataset) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = DefaultTestRatio
	}
	testSize := int(math.Ceil(float64(len(ds))*testRatio - 1e-9))
	perm := newRand(seed, splitStream).Perm(len(ds))

	test = make(Dataset, 0, testSize)
	train = make(Dataset, 0, len(ds)-testSize)
	for i, idx := range perm {
		if i < testSize {
			test = append(test, ds[idx])
		} else {
			train = append(train, ds[idx])
		}
	}
	return train, test
}
