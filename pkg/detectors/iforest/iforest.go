// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"bytes"
	"encoding/gob"
	"errors"
	"math"
	"math/rand"
	"sync"

	"github.com/hed1ad/guardtrain/pkg/detectors"
	"github.com/hed1ad/guardtrain/pkg/export"
)

// ErrEmptyTrainingSet reports a Fit call with no training samples.
var ErrEmptyTrainingSet = errors.New("empty training set")

var _ detectors.Detector = (*IsolationForest)(nil)

// IsolationForest implements unsupervised anomaly detection using isolation trees.
//
// Scores follow the score-samples convention: ScoreOne returns
// -2^(-E(h(x))/c(ψ)) in (-1, 0), so higher values mean more normal. A
// sample is classified anomalous when its score falls below the threshold.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64 // 0 means auto
	threshold     float64
	seed          int64

	// Trained model
	trees     []*iTree
	trained   bool
	nFeatures int

	// Statistics from training
	maxDepth      int
	avgPathLength float64
}

// iTree represents a single isolation tree.
type iTree struct {
	Root *node
}

// node is a node in the isolation tree. Fields are exported for gob.
type node struct {
	// Split parameters (for internal nodes)
	SplitFeature int
	SplitValue   float64

	// Children
	Left  *node
	Right *node

	// Leaf information
	Size int // number of samples that reached this leaf
}

// autoThreshold is the score-samples threshold used when contamination is
// auto, matching the fixed -0.5 offset convention.
const autoThreshold = -0.5

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies. Zero keeps
// the auto behavior: a fixed score threshold instead of a percentile
// calibrated from the training scores.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:     100,
		sampleSize: 256,
		threshold:  autoThreshold,
		seed:       42,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fit trains the Isolation Forest on the provided data.
//
// Trees are built concurrently, one goroutine per tree. Each tree draws
// its subsample and splits from its own random stream seeded
// deterministically from the base seed, and lands in a fixed slot of the
// ensemble, so the fitted model is identical across runs regardless of
// scheduling order.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return ErrEmptyTrainingSet
	}

	nSamples := len(data)
	f.nFeatures = len(data[0])

	// Adjust sample size if needed
	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}
	f.maxDepth = maxTreeDepth(sampleSize)
	f.avgPathLength = averagePathLength(float64(sampleSize))

	f.trees = make([]*iTree, f.nTrees)

	var wg sync.WaitGroup
	for i := 0; i < f.nTrees; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(f.seed + int64(slot)))

			// Sample without replacement
			indices := rng.Perm(nSamples)[:sampleSize]
			sample := make([][]float64, sampleSize)
			for j, idx := range indices {
				sample[j] = data[idx]
			}

			f.trees[slot] = f.buildTree(rng, sample, f.nFeatures, 0)
		}(i)
	}
	wg.Wait()

	f.trained = true

	// Calibrate the anomaly threshold
	if f.contamination > 0 {
		scores, _ := f.scoreSamples(data)
		f.threshold = percentile(scores, 100*f.contamination)
	} else {
		f.threshold = autoThreshold
	}

	return nil
}

func maxTreeDepth(sampleSize int) int {
	if sampleSize <= 1 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(sampleSize))))
}

// buildTree recursively builds an isolation tree.
func (f *IsolationForest) buildTree(rng *rand.Rand, data [][]float64, nFeatures, depth int) *iTree {
	return &iTree{
		Root: f.buildNode(rng, data, nFeatures, depth),
	}
}

func (f *IsolationForest) buildNode(rng *rand.Rand, data [][]float64, nFeatures, depth int) *node {
	n := len(data)

	// Terminal conditions
	if depth >= f.maxDepth || n <= 1 {
		return &node{Size: n}
	}

	// Random feature and split value
	feature := rng.Intn(nFeatures)

	// Find min/max for this feature
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return &node{Size: n}
	}

	// Random split value
	splitValue := minVal + rng.Float64()*(maxVal-minVal)

	// Partition data
	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &node{
		SplitFeature: feature,
		SplitValue:   splitValue,
		Left:         f.buildNode(rng, leftData, nFeatures, depth+1),
		Right:        f.buildNode(rng, rightData, nFeatures, depth+1),
	}
}

// ScoreSamples returns anomaly scores for the given samples, higher
// meaning more normal.
func (f *IsolationForest) ScoreSamples(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, errors.New("model not trained")
	}

	return f.scoreSamples(data)
}

func (f *IsolationForest) scoreSamples(data [][]float64) ([]float64, error) {
	scores := make([]float64, len(data))

	for i, sample := range data {
		score, err := f.scoreOne(sample)
		if err != nil {
			return nil, err
		}
		scores[i] = score
	}

	return scores, nil
}

// ScoreOne returns the anomaly score for a single sample.
func (f *IsolationForest) ScoreOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return 0, errors.New("model not trained")
	}

	return f.scoreOne(sample)
}

func (f *IsolationForest) scoreOne(sample []float64) (float64, error) {
	// Average path length across all trees
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.Root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	// score = -2^(-avgPath / c(n)); easy isolation pushes toward -1
	return -math.Pow(2, -avgPath/f.avgPathLength), nil
}

// IsAnomaly reports whether the sample scores below the threshold.
func (f *IsolationForest) IsAnomaly(sample []float64) (bool, error) {
	score, err := f.ScoreOne(sample)
	if err != nil {
		return false, err
	}
	return score < f.Threshold(), nil
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.Left == nil && n.Right == nil {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.Size))
	}

	if sample[n.SplitFeature] < n.SplitValue {
		return pathLength(sample, n.Left, currentDepth+1)
	}
	return pathLength(sample, n.Right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, where H is harmonic number
	// Approximation: H(n) ≈ ln(n) + 0.5772156649 (Euler-Mascheroni constant)
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// Ensemble returns a flattened snapshot of the trained forest for
// exporters. Nodes are emitted in preorder, so index 0 is each tree's
// root; leaf values carry the full isolation path contribution (leaf
// depth plus the expected remaining path for the leaf's population).
func (f *IsolationForest) Ensemble() (export.Ensemble, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return export.Ensemble{}, errors.New("model not trained")
	}

	ens := export.Ensemble{
		NumFeatures: f.nFeatures,
		Normalizer:  f.avgPathLength,
		Trees:       make([][]export.TreeNode, len(f.trees)),
	}

	for i, tree := range f.trees {
		var flat []export.TreeNode
		flatten(tree.Root, 0, &flat)
		ens.Trees[i] = flat
	}

	return ens, nil
}

// flatten appends n and its subtree to out in preorder, returning the
// index assigned to n.
func flatten(n *node, depth int, out *[]export.TreeNode) int {
	idx := len(*out)

	if n.Left == nil && n.Right == nil {
		*out = append(*out, export.TreeNode{
			Left:      -1,
			Right:     -1,
			LeafValue: float64(depth) + averagePathLength(float64(n.Size)),
		})
		return idx
	}

	// Placeholder until children are placed
	*out = append(*out, export.TreeNode{})
	left := flatten(n.Left, depth+1, out)
	right := flatten(n.Right, depth+1, out)

	(*out)[idx] = export.TreeNode{
		Feature:   n.SplitFeature,
		Threshold: n.SplitValue,
		Left:      left,
		Right:     right,
	}
	return idx
}

// Save serializes the trained model.
func (f *IsolationForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, errors.New("model not trained")
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(f.nTrees); err != nil {
		return nil, err
	}
	if err := enc.Encode(f.sampleSize); err != nil {
		return nil, err
	}
	if err := enc.Encode(f.contamination); err != nil {
		return nil, err
	}
	if err := enc.Encode(f.threshold); err != nil {
		return nil, err
	}
	if err := enc.Encode(f.avgPathLength); err != nil {
		return nil, err
	}
	if err := enc.Encode(f.maxDepth); err != nil {
		return nil, err
	}
	if err := enc.Encode(f.nFeatures); err != nil {
		return nil, err
	}
	if err := enc.Encode(f.trees); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (f *IsolationForest) Load(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	buf := bytes.NewBuffer(data)
	dec := gob.NewDecoder(buf)

	if err := dec.Decode(&f.nTrees); err != nil {
		return err
	}
	if err := dec.Decode(&f.sampleSize); err != nil {
		return err
	}
	if err := dec.Decode(&f.contamination); err != nil {
		return err
	}
	if err := dec.Decode(&f.threshold); err != nil {
		return err
	}
	if err := dec.Decode(&f.avgPathLength); err != nil {
		return err
	}
	if err := dec.Decode(&f.maxDepth); err != nil {
		return err
	}
	if err := dec.Decode(&f.nFeatures); err != nil {
		return err
	}
	if err := dec.Decode(&f.trees); err != nil {
		return err
	}

	f.trained = true

	return nil
}

// Threshold returns the current anomaly threshold on the score scale;
// samples scoring below it are anomalous.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// SetThreshold updates the anomaly threshold.
func (f *IsolationForest) SetThreshold(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = t
}

// percentile calculates the p-th percentile of the data.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)

	// Simple insertion sort for small arrays
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}
