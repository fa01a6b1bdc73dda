package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"toolusage/parallel"
)

// ForestConfig configures a bagged ensemble of regression trees.
type ForestConfig struct {
	NEstimators int  `yaml:"n_estimators" json:"n_estimators"`
	Bootstrap   bool `yaml:"bootstrap" json:"bootstrap"`
	TreeConfig  `yaml:",inline"`
	// Workers bounds the trees fitted concurrently; <= 0 uses every CPU.
	Workers int `yaml:"workers" json:"-"`
}

// DefaultForestConfig grows 200 fully expanded bootstrap trees.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NEstimators: 200,
		Bootstrap:   true,
		TreeConfig: TreeConfig{
			MinSamplesSplit: 2,
			MinSamplesLeaf:  1,
		},
	}
}

// RandomForest averages the predictions of independently grown trees.
// Each tree draws from its own seeded stream, so the fitted forest does not
// depend on how the trees were scheduled across workers.
type RandomForest struct {
	Config    ForestConfig    `json:"config"`
	NFeatures int             `json:"n_features"`
	Trees     []*DecisionTree `json:"trees"`
}

// NewRandomForest returns an unfitted forest.
func NewRandomForest(config ForestConfig) *RandomForest {
	if config.NEstimators <= 0 {
		config.NEstimators = DefaultForestConfig().NEstimators
	}
	return &RandomForest{Config: config}
}

// Fit grows every tree on x and y. Tree t draws from stream t+1 of seed.
func (f *RandomForest) Fit(x *mat.Dense, y []float64, seed uint64) error {
	if x == nil {
		return errors.New("features empty")
	}
	rows, cols := x.Dims()
	if rows != len(y) {
		return fmt.Errorf("features have %d rows but %d targets", rows, len(y))
	}
	features := make([][]float64, rows)
	for i := range features {
		features[i] = x.RawRowView(i)
	}

	trees := make([]*DecisionTree, f.Config.NEstimators)
	err := parallel.ForEachErr(len(trees), f.Config.Workers, func(t int) error {
		rng := newRand(seed, uint64(t)+1)
		idx := make([]int, rows)
		for i := range idx {
			if f.Config.Bootstrap {
				idx[i] = rng.IntN(rows)
			} else {
				idx[i] = i
			}
		}
		tree := &DecisionTree{}
		if err := tree.Fit(features, y, idx, f.Config.TreeConfig, rng); err != nil {
			return fmt.Errorf("tree %d: %w", t, err)
		}
		trees[t] = tree
		return nil
	})
	if err != nil {
		return err
	}
	f.NFeatures = cols
	f.Trees = trees
	return nil
}

// Predict averages the tree predictions for one encoded row.
func (f *RandomForest) Predict(features []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(features) != f.NFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", f.NFeatures, len(features))
	}
	sum := 0.0
	for _, tree := range f.Trees {
		v, err := tree.Predict(features)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / float64(len(f.Trees)), nil
}

// PredictBatch predicts every row of x.
func (f *RandomForest) PredictBatch(x *mat.Dense) ([]float64, error) {
	rows, _ := x.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		v, err := f.Predict(x.RawRowView(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
