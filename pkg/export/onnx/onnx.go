// Package onnx serializes isolation forest ensembles into the ONNX
// computational-graph format so inference engines outside the training
// environment can score feature vectors.
//
// The emitted graph declares one float32 input "float_input" of shape
// (batch, N) and computes, for each sample, the path length averaged over
// all trees with a TreeEnsembleRegressor node (ai.onnx.ml), then
// -2^(-avg/c(ψ)) with Mul, Exp and Neg nodes. The result matches the
// in-process score-samples convention within float32 tolerance: higher
// means more normal.
package onnx

import (
	"errors"
	"fmt"
	"math"

	"github.com/hed1ad/guardtrain/pkg/export"
	guardio "github.com/hed1ad/guardtrain/pkg/io"
)

// ErrNotSerializable reports an ensemble that cannot be represented in
// the ONNX graph format.
var ErrNotSerializable = errors.New("model cannot be serialized to ONNX")

const (
	irVersion       = 8
	opsetVersion    = 13 // ai.onnx
	opsetMLVersion  = 1  // ai.onnx.ml
	producerName    = "guardtrain"
	producerVersion = "0.1.0"

	inputName  = "float_input"
	outputName = "scores"
)

// Exporter writes ensembles as ONNX model files.
type Exporter struct{}

var _ export.Exporter = (*Exporter)(nil)

// New creates an ONNX exporter.
func New() *Exporter {
	return &Exporter{}
}

// Export serializes the ensemble and writes it to path atomically; on
// any failure no file becomes visible.
func (e *Exporter) Export(path string, ens export.Ensemble) error {
	data, err := Bytes(ens)
	if err != nil {
		return err
	}
	return guardio.WriteFileAtomic(path, data, 0o644)
}

// Bytes serializes the ensemble to ONNX model bytes.
func Bytes(ens export.Ensemble) ([]byte, error) {
	if err := validate(ens); err != nil {
		return nil, err
	}

	var model []byte
	model = appendInt(model, 1, irVersion)
	model = appendString(model, 2, producerName)
	model = appendString(model, 3, producerVersion)
	model = appendSub(model, 7, graphProto(ens))

	// OperatorSetIdProto: domain=1, version=2
	var opset []byte
	opset = appendInt(opset, 2, opsetVersion)
	model = appendSub(model, 8, opset)

	var opsetML []byte
	opsetML = appendString(opsetML, 1, "ai.onnx.ml")
	opsetML = appendInt(opsetML, 2, opsetMLVersion)
	model = appendSub(model, 8, opsetML)

	return model, nil
}

func validate(ens export.Ensemble) error {
	if ens.NumFeatures <= 0 {
		return fmt.Errorf("%w: no features", ErrNotSerializable)
	}
	if len(ens.Trees) == 0 {
		return fmt.Errorf("%w: ensemble has no trees", ErrNotSerializable)
	}
	if !(ens.Normalizer > 0) {
		return fmt.Errorf("%w: non-positive path normalizer", ErrNotSerializable)
	}

	for t, tree := range ens.Trees {
		if len(tree) == 0 {
			return fmt.Errorf("%w: tree %d is empty", ErrNotSerializable, t)
		}
		for i, n := range tree {
			if n.IsLeaf() {
				continue
			}
			if n.Feature < 0 || n.Feature >= ens.NumFeatures {
				return fmt.Errorf("%w: tree %d node %d splits on feature %d of %d",
					ErrNotSerializable, t, i, n.Feature, ens.NumFeatures)
			}
			if n.Left < 0 || n.Left >= len(tree) || n.Right < 0 || n.Right >= len(tree) {
				return fmt.Errorf("%w: tree %d node %d has out-of-range children",
					ErrNotSerializable, t, i)
			}
		}
	}
	return nil
}

// GraphProto: node=1, name=2, initializer=5, input=11, output=12.
func graphProto(ens export.Ensemble) []byte {
	var g []byte

	g = appendSub(g, 1, treeEnsembleNode(ens))
	g = appendSub(g, 1, nodeProto("Mul", "", []string{"path_length", "score_scale"}, []string{"scaled_path"}))
	g = appendSub(g, 1, nodeProto("Exp", "", []string{"scaled_path"}, []string{"decay"}))
	g = appendSub(g, 1, nodeProto("Neg", "", []string{"decay"}, []string{outputName}))

	g = appendString(g, 2, "isolation_forest")

	scale := float32(-math.Ln2 / ens.Normalizer)
	g = appendSub(g, 5, floatTensor("score_scale", []int64{1}, []float32{scale}))

	g = appendSub(g, 11, floatValueInfo(inputName, []tensorDim{
		{param: "batch"},
		{value: int64(ens.NumFeatures)},
	}))
	g = appendSub(g, 12, floatValueInfo(outputName, []tensorDim{
		{param: "batch"},
		{value: 1},
	}))

	return g
}

// treeEnsembleNode flattens every tree into the parallel attribute arrays
// of a single TreeEnsembleRegressor. Each leaf contributes one regression
// target holding its isolation path value; AVERAGE aggregation yields the
// mean path length across trees.
func treeEnsembleNode(ens export.Ensemble) []byte {
	var (
		treeIDs, nodeIDs, featureIDs []int64
		trueIDs, falseIDs            []int64
		thresholds                   []float32
		modes                        []string

		targetTreeIDs, targetNodeIDs, targetIDs []int64
		targetWeights                           []float32
	)

	for t, tree := range ens.Trees {
		for i, n := range tree {
			treeIDs = append(treeIDs, int64(t))
			nodeIDs = append(nodeIDs, int64(i))

			if n.IsLeaf() {
				modes = append(modes, "LEAF")
				featureIDs = append(featureIDs, 0)
				thresholds = append(thresholds, 0)
				trueIDs = append(trueIDs, 0)
				falseIDs = append(falseIDs, 0)

				targetTreeIDs = append(targetTreeIDs, int64(t))
				targetNodeIDs = append(targetNodeIDs, int64(i))
				targetIDs = append(targetIDs, 0)
				targetWeights = append(targetWeights, float32(n.LeafValue))
				continue
			}

			// BRANCH_LT routes to the true child when x < threshold,
			// matching the in-process split comparison exactly.
			modes = append(modes, "BRANCH_LT")
			featureIDs = append(featureIDs, int64(n.Feature))
			thresholds = append(thresholds, float32(n.Threshold))
			trueIDs = append(trueIDs, int64(n.Left))
			falseIDs = append(falseIDs, int64(n.Right))
		}
	}

	return nodeProto("TreeEnsembleRegressor", "ai.onnx.ml",
		[]string{inputName}, []string{"path_length"},
		stringAttr("aggregate_function", "AVERAGE"),
		intAttr("n_targets", 1),
		intsAttr("nodes_falsenodeids", falseIDs),
		intsAttr("nodes_featureids", featureIDs),
		stringsAttr("nodes_modes", modes),
		intsAttr("nodes_nodeids", nodeIDs),
		intsAttr("nodes_treeids", treeIDs),
		intsAttr("nodes_truenodeids", trueIDs),
		floatsAttr("nodes_values", thresholds),
		stringAttr("post_transform", "NONE"),
		intsAttr("target_ids", targetIDs),
		intsAttr("target_nodeids", targetNodeIDs),
		intsAttr("target_treeids", targetTreeIDs),
		floatsAttr("target_weights", targetWeights),
	)
}
