package model

import (
	"math"
	"math/rand"
)

// eulerMascheroni is used in the average path length normalizer.
const eulerMascheroni = 0.5772156649

// IsoNode is a node in an isolation tree. Fields are exported for gob
// encoding.
type IsoNode struct {
	SplitFeature int
	SplitValue   float64
	Left         *IsoNode
	Right        *IsoNode
	Size         int
}

// IsolationForest isolates anomalies by random recursive splitting:
// points that isolate in fewer splits score as more anomalous.
type IsolationForest struct {
	NumTrees      int
	SampleSize    int     // 0 means auto: min(256, n)
	SampleFrac    float64 // when > 0, SampleSize = frac * n
	Contamination float64
	Seed          int64

	Trees  []*IsoNode
	Dim    int
	Fitted bool
}

// NewIsolationForest returns an unfitted forest with the given
// hyperparameters.
func NewIsolationForest(numTrees int, sampleFrac, contamination float64, seed int64) *IsolationForest {
	return &IsolationForest{
		NumTrees:      numTrees,
		SampleFrac:    sampleFrac,
		Contamination: contamination,
		Seed:          seed,
	}
}

// Fit builds the isolation trees from seeded subsamples.
func (f *IsolationForest) Fit(data [][]float64) error {
	if len(data) == 0 {
		return ErrNoData
	}
	n := len(data)
	f.Dim = len(data[0])
	if f.Dim == 0 {
		return ErrNoData
	}

	sampleSize := f.SampleSize
	if f.SampleFrac > 0 {
		sampleSize = int(f.SampleFrac * float64(n))
	}
	if sampleSize <= 0 || sampleSize > n {
		sampleSize = min(256, n)
	}
	f.SampleSize = sampleSize

	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize)))) + 1
	rng := rand.New(rand.NewSource(f.Seed))

	f.Trees = make([]*IsoNode, f.NumTrees)
	for t := 0; t < f.NumTrees; t++ {
		sample := make([][]float64, sampleSize)
		for i := range sample {
			sample[i] = data[rng.Intn(n)]
		}
		f.Trees[t] = buildIsoTree(sample, 0, maxDepth, rng)
	}
	f.Fitted = true
	return nil
}

func buildIsoTree(data [][]float64, depth, maxDepth int, rng *rand.Rand) *IsoNode {
	n := len(data)
	if n <= 1 || depth >= maxDepth {
		return &IsoNode{Size: n}
	}

	dim := len(data[0])
	feat := rng.Intn(dim)
	lo, hi := data[0][feat], data[0][feat]
	for _, row := range data[1:] {
		if row[feat] < lo {
			lo = row[feat]
		}
		if row[feat] > hi {
			hi = row[feat]
		}
	}
	if lo == hi {
		return &IsoNode{Size: n}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, row := range data {
		if row[feat] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &IsoNode{Size: n}
	}
	return &IsoNode{
		SplitFeature: feat,
		SplitValue:   split,
		Size:         n,
		Left:         buildIsoTree(left, depth+1, maxDepth, rng),
		Right:        buildIsoTree(right, depth+1, maxDepth, rng),
	}
}

// pathLength traces a sample down a tree and returns the depth plus
// the average path adjustment for the terminal node size.
func pathLength(node *IsoNode, sample []float64, depth float64) float64 {
	if node.Left == nil && node.Right == nil {
		return depth + avgPathLength(node.Size)
	}
	if sample[node.SplitFeature] < node.SplitValue {
		return pathLength(node.Left, sample, depth+1)
	}
	return pathLength(node.Right, sample, depth+1)
}

// avgPathLength is the expected path length of an unsuccessful search
// in a binary search tree of n nodes.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerMascheroni) - 2*(fn-1)/fn
}

// ScoreSamples returns negated isolation scores so that lower means
// more anomalous.
func (f *IsolationForest) ScoreSamples(data [][]float64) ([]float64, error) {
	out := make([]float64, len(data))
	for i, row := range data {
		s, err := f.Score(row)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// Score computes -2^(-E[h(x)]/c(n)), mapping easy-to-isolate points
// toward -1 and deep points toward -0.5.
func (f *IsolationForest) Score(sample []float64) (float64, error) {
	if !f.Fitted {
		return 0, ErrNotFitted
	}
	if len(sample) != f.Dim {
		return 0, ErrDimMismatch
	}
	var total float64
	for _, tree := range f.Trees {
		total += pathLength(tree, sample, 0)
	}
	avg := total / float64(len(f.Trees))
	c := avgPathLength(f.SampleSize)
	if c == 0 {
		c = 1
	}
	return -math.Pow(2, -avg/c), nil
}

// Algorithm implements Detector.
func (f *IsolationForest) Algorithm() string { return AlgIsolationForest }
