// Package export defines the adapter seam between trained models and
// portable serialization formats. Exporters consume a flattened,
// format-neutral snapshot of the ensemble so alternate formats can be
// substituted without touching the trainer or evaluator.
package export

// TreeNode is one flattened node of an isolation tree. Internal nodes
// route a sample left when sample[Feature] < Threshold. Leaves are marked
// by Left == -1 and carry the isolation path contribution for any sample
// that reaches them.
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	LeafValue float64
}

// IsLeaf reports whether the node terminates a path.
func (n TreeNode) IsLeaf() bool {
	return n.Left < 0
}

// Ensemble is a read-only snapshot of a trained isolation forest.
// A sample's score is -2^(-avg/Normalizer) where avg is its path length
// averaged over Trees; higher scores indicate more normal samples.
type Ensemble struct {
	// NumFeatures is the width of the feature vectors the ensemble was
	// trained on; it becomes the serialized input tensor width.
	NumFeatures int

	// Normalizer is c(ψ), the expected path length for the subsample
	// size used during training.
	Normalizer float64

	// Trees holds each tree as a flattened node array rooted at index 0.
	Trees [][]TreeNode
}

// Exporter serializes an ensemble snapshot to an artifact file at path.
// Implementations must write atomically: on failure no file is visible.
type Exporter interface {
	Export(path string, ens Ensemble) error
}
