package ml

import (
	"errors"
	"math/rand/v2"
	"slices"
)

// TreeConfig bounds the growth of a regression tree.
// MaxDepth <= 0 grows until leaves are pure or too small to split.
// MaxFeatures <= 0 considers every feature at every split.
type TreeConfig struct {
	MaxDepth        int `yaml:"max_depth" json:"max_depth"`
	MinSamplesSplit int `yaml:"min_samples_split" json:"min_samples_split"`
	MinSamplesLeaf  int `yaml:"min_samples_leaf" json:"min_samples_leaf"`
	MaxFeatures     int `yaml:"max_features" json:"max_features"`
}

func (c TreeConfig) withDefaults() TreeConfig {
	if c.MinSamplesSplit < 2 {
		c.MinSamplesSplit = 2
	}
	if c.MinSamplesLeaf < 1 {
		c.MinSamplesLeaf = 1
	}
	return c
}

// DecisionTree is a CART regression tree stored as a flat node slice.
// Node 0 is the root; children are absolute indices into Nodes.
type DecisionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeNode is a split when IsLeaf is false and a constant prediction otherwise.
type TreeNode struct {
	FeatureIdx int     `json:"f"`
	Threshold  float64 `json:"t"`
	LeftChild  int     `json:"l"`
	RightChild int     `json:"r"`
	Value      float64 `json:"v"`
	Samples    int     `json:"n"`
	IsLeaf     bool    `json:"leaf,omitempty"`
}

// Fit grows the tree on the rows of x selected by idx (duplicates allowed, as
// produced by bootstrap sampling). rng is only used when MaxFeatures limits the
// candidate features per split.
func (dt *DecisionTree) Fit(x [][]float64, y []float64, idx []int, config TreeConfig, rng *rand.Rand) error {
	if len(x) == 0 || len(y) == 0 {
		return errors.New("features or targets empty")
	}
	if len(x) != len(y) {
		return errors.New("features and targets size mismatch")
	}
	if len(idx) == 0 {
		return errors.New("no samples selected")
	}
	featureCount := len(x[0])
	if featureCount == 0 {
		return errors.New("rows have no features")
	}
	for _, row := range x {
		if len(row) != featureCount {
			return errors.New("ragged feature rows")
		}
	}

	b := &treeBuilder{
		x:            x,
		y:            y,
		config:       config.withDefaults(),
		rng:          rng,
		featureCount: featureCount,
	}
	b.grow(append([]int(nil), idx...), 0)
	dt.Nodes = b.nodes
	return nil
}

// Predict walks from the root to a leaf and returns its mean target.
func (dt *DecisionTree) Predict(features []float64) (float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, errors.New("model not trained")
	}
	idx := 0
	for steps := 0; steps <= len(dt.Nodes); steps++ {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("invalid tree state")
}

// Depth is the length of the longest root-to-leaf path.
func (dt *DecisionTree) Depth() int {
	if len(dt.Nodes) == 0 {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		node := dt.Nodes[i]
		if node.IsLeaf {
			return 0
		}
		return 1 + max(walk(node.LeftChild), walk(node.RightChild))
	}
	return walk(0)
}

type treeBuilder struct {
	x            [][]float64
	y            []float64
	config       TreeConfig
	rng          *rand.Rand
	featureCount int
	nodes        []TreeNode
}

type split struct {
	feature   int
	threshold float64
	leftCount int
}

// grow appends the subtree for idx in pre-order and returns its root index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	at := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      meanOf(b.y, idx),
		Samples:    len(idx),
		IsLeaf:     true,
	})

	if b.config.MaxDepth > 0 && depth >= b.config.MaxDepth {
		return at
	}
	if len(idx) < b.config.MinSamplesSplit || len(idx) < 2*b.config.MinSamplesLeaf || isConstant(b.y, idx) {
		return at
	}

	best, ok := b.bestSplit(idx)
	if !ok {
		return at
	}

	b.sortBy(idx, best.feature)
	left := idx[:best.leftCount]
	right := idx[best.leftCount:]

	leftAt := b.grow(left, depth+1)
	rightAt := b.grow(right, depth+1)

	node := &b.nodes[at]
	node.FeatureIdx = best.feature
	node.Threshold = best.threshold
	node.LeftChild = leftAt
	node.RightChild = rightAt
	node.IsLeaf = false
	return at
}

// bestSplit minimizes the summed squared error of the two children.
func (b *treeBuilder) bestSplit(idx []int) (split, bool) {
	best := split{feature: -1}
	bestScore := 0.0
	total, totalSq := 0.0, 0.0
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	parentSSE := totalSq - total*total/n

	work := make([]int, len(idx))
	for _, feature := range b.candidateFeatures() {
		copy(work, idx)
		b.sortBy(work, feature)

		leftSum, leftSq := 0.0, 0.0
		for k := 0; k < len(work)-1; k++ {
			v := b.y[work[k]]
			leftSum += v
			leftSq += v * v

			leftCount := k + 1
			rightCount := len(work) - leftCount
			if leftCount < b.config.MinSamplesLeaf || rightCount < b.config.MinSamplesLeaf {
				continue
			}
			cur := b.x[work[k]][feature]
			next := b.x[work[k+1]][feature]
			if cur == next {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			score := (leftSq - leftSum*leftSum/float64(leftCount)) +
				(rightSq - rightSum*rightSum/float64(rightCount))
			if best.feature == -1 || score < bestScore {
				bestScore = score
				best = split{
					feature:   feature,
					threshold: cur + (next-cur)/2,
					leftCount: leftCount,
				}
			}
		}
	}
	if best.feature == -1 || bestScore >= parentSSE {
		return split{}, false
	}
	return best, true
}

func (b *treeBuilder) candidateFeatures() []int {
	if b.config.MaxFeatures <= 0 || b.config.MaxFeatures >= b.featureCount || b.rng == nil {
		all := make([]int, b.featureCount)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(b.featureCount)[:b.config.MaxFeatures]
}

// sortBy orders idx by the feature value, breaking ties by row index so the
// partition is deterministic.
func (b *treeBuilder) sortBy(idx []int, feature int) {
	slices.SortFunc(idx, func(i, j int) int {
		vi, vj := b.x[i][feature], b.x[j][feature]
		switch {
		case vi < vj:
			return -1
		case vi > vj:
			return 1
		default:
			return i - j
		}
	})
}
