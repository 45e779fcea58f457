// Package iforest implements isolation forest anomaly detection.
//
// An isolation forest isolates observations by randomly selecting a
// feature and a split value between its min and max. Anomalies are
// easier to isolate, so they end up with shorter average path lengths
// across the trees. Scores follow the decision-function convention:
// negative values mark anomalies, the zero line sits at the
// contamination percentile of the training scores.
package iforest

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
)

const eulerGamma = 0.5772156649015329

var (
	// ErrNotFitted is returned when scoring before Fit.
	ErrNotFitted = errors.New("iforest: forest is not fitted")
	// ErrEmptyTrainingSet is returned when Fit receives no samples.
	ErrEmptyTrainingSet = errors.New("iforest: empty training set")
)

// Options control forest construction.
type Options struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          int64
}

// Option mutates Options.
type Option func(*Options)

// WithTrees sets the number of trees in the ensemble.
func WithTrees(n int) Option {
	return func(o *Options) { o.Trees = n }
}

// WithSampleSize sets the sub-sample size each tree is built from.
func WithSampleSize(n int) Option {
	return func(o *Options) { o.SampleSize = n }
}

// WithContamination sets the expected fraction of anomalies in the
// training data. It positions the decision boundary.
func WithContamination(c float64) Option {
	return func(o *Options) { o.Contamination = c }
}

// WithSeed fixes the random source for reproducible forests.
func WithSeed(seed int64) Option {
	return func(o *Options) { o.Seed = seed }
}

// Node is a single node in an isolation tree. Exported fields keep the
// structure gob-encodable.
type Node struct {
	SplitFeature int
	SplitValue   float64
	Left         *Node
	Right        *Node
	Size         int
	Leaf         bool
}

// Forest is a fitted isolation forest.
type Forest struct {
	Trees         []*Node
	SampleSize    int
	Offset        float64
	Contamination float64
	Features      int
	TrainedOn     int

	fitted bool
	seed   int64
}

// New builds an unfitted forest with the given options.
func New(opts ...Option) *Forest {
	o := Options{
		Trees:         100,
		SampleSize:    256,
		Contamination: 0.05,
		Seed:          42,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Forest{
		SampleSize:    o.SampleSize,
		Contamination: o.Contamination,
		Trees:         make([]*Node, 0, o.Trees),
		Offset:        math.NaN(),
		seed:          o.Seed,
	}
}

// Fit trains the forest on the sample matrix. Each row is one
// observation. Fit replaces any previously trained state.
func (f *Forest) Fit(samples [][]float64) error {
	if len(samples) == 0 {
		return ErrEmptyTrainingSet
	}

	features := len(samples[0])
	for i, s := range samples {
		if len(s) != features {
			return fmt.Errorf("iforest: sample %d has %d features, want %d", i, len(s), features)
		}
	}

	nTrees := cap(f.Trees)
	if nTrees == 0 {
		nTrees = 100
	}
	sampleSize := f.SampleSize
	if sampleSize > len(samples) {
		sampleSize = len(samples)
	}

	rng := rand.New(rand.NewSource(f.seed))
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))
	if maxDepth < 1 {
		maxDepth = 1
	}

	trees := make([]*Node, nTrees)
	for i := range trees {
		sub := subsample(rng, samples, sampleSize)
		trees[i] = buildTree(rng, sub, 0, maxDepth)
	}

	f.Trees = trees
	f.Features = features
	f.TrainedOn = len(samples)
	f.fitted = true

	// Position the decision boundary so that roughly Contamination of
	// the training set scores below zero.
	raw := make([]float64, len(samples))
	for i, s := range samples {
		raw[i] = f.rawScore(s)
	}
	f.Offset = percentile(raw, 100*(1-f.Contamination))

	return nil
}

// Fitted reports whether the forest has been trained.
func (f *Forest) Fitted() bool { return f.fitted }

// Score returns the anomaly score in [0, 1]. Higher means more
// anomalous, scores above ~0.6 typically indicate isolation.
func (f *Forest) Score(sample []float64) (float64, error) {
	if !f.fitted {
		return 0, ErrNotFitted
	}
	if len(sample) != f.Features {
		return 0, fmt.Errorf("iforest: sample has %d features, want %d", len(sample), f.Features)
	}
	return f.rawScore(sample), nil
}

// DecisionFunction returns the signed distance to the decision
// boundary. Negative values mark anomalies.
func (f *Forest) DecisionFunction(sample []float64) (float64, error) {
	raw, err := f.Score(sample)
	if err != nil {
		return 0, err
	}
	return f.Offset - raw, nil
}

// Predict returns -1 for anomalies and 1 for normal observations.
func (f *Forest) Predict(sample []float64) (int, error) {
	d, err := f.DecisionFunction(sample)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return -1, nil
	}
	return 1, nil
}

func (f *Forest) rawScore(sample []float64) float64 {
	var total float64
	for _, t := range f.Trees {
		total += pathLength(t, sample, 0)
	}
	avg := total / float64(len(f.Trees))
	return math.Pow(2, -avg/avgPathLength(f.SampleSize))
}

func subsample(rng *rand.Rand, samples [][]float64, size int) [][]float64 {
	if size >= len(samples) {
		return samples
	}
	idx := rng.Perm(len(samples))[:size]
	out := make([][]float64, size)
	for i, j := range idx {
		out[i] = samples[j]
	}
	return out
}

func buildTree(rng *rand.Rand, samples [][]float64, depth, maxDepth int) *Node {
	if len(samples) <= 1 || depth >= maxDepth {
		return &Node{Leaf: true, Size: len(samples)}
	}

	features := len(samples[0])
	feature := rng.Intn(features)

	min, max := samples[0][feature], samples[0][feature]
	for _, s := range samples[1:] {
		v := s[feature]
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min == max {
		return &Node{Leaf: true, Size: len(samples)}
	}

	split := min + rng.Float64()*(max-min)

	var left, right [][]float64
	for _, s := range samples {
		if s[feature] < split {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	return &Node{
		SplitFeature: feature,
		SplitValue:   split,
		Left:         buildTree(rng, left, depth+1, maxDepth),
		Right:        buildTree(rng, right, depth+1, maxDepth),
		Size:         len(samples),
	}
}

func pathLength(n *Node, sample []float64, depth float64) float64 {
	if n.Leaf {
		return depth + avgPathLength(n.Size)
	}
	if sample[n.SplitFeature] < n.SplitValue {
		return pathLength(n.Left, sample, depth+1)
	}
	return pathLength(n.Right, sample, depth+1)
}

// avgPathLength is c(n), the average path length of an unsuccessful
// BST search, used for normalization.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

type forestState struct {
	Trees         []*Node
	SampleSize    int
	Offset        float64
	Contamination float64
	Features      int
	TrainedOn     int
}

// Encode writes the fitted forest to w in gob format.
func (f *Forest) Encode(w io.Writer) error {
	if !f.fitted {
		return ErrNotFitted
	}
	return gob.NewEncoder(w).Encode(forestState{
		Trees:         f.Trees,
		SampleSize:    f.SampleSize,
		Offset:        f.Offset,
		Contamination: f.Contamination,
		Features:      f.Features,
		TrainedOn:     f.TrainedOn,
	})
}

// Decode restores a fitted forest from r.
func Decode(r io.Reader) (*Forest, error) {
	var st forestState
	if err := gob.NewDecoder(r).Decode(&st); err != nil {
		return nil, fmt.Errorf("iforest: decode: %w", err)
	}
	return &Forest{
		Trees:         st.Trees,
		SampleSize:    st.SampleSize,
		Offset:        st.Offset,
		Contamination: st.Contamination,
		Features:      st.Features,
		TrainedOn:     st.TrainedOn,
		fitted:        true,
	}, nil
}
