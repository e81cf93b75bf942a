// Package metadata emits the JSON record describing a trained model
// artifact. The key names are a contract with the downstream scorer and
// must not change independently of it.
package metadata

import (
	"encoding/json"

	guardio "github.com/hed1ad/guardtrain/pkg/io"
)

// ModelKindIsolationForest identifies the ensemble algorithm in metadata.
const ModelKindIsolationForest = "IsolationForest"

// Metadata describes a trained model artifact. It is written strictly
// after the artifact itself, so its presence implies artifact validity.
type Metadata struct {
	ModelType            string     `json:"model_type"`
	TrainingTimestampUTC int64      `json:"training_timestamp_utc"`
	TrainingDataPath     string     `json:"training_data_path"`
	TrainingSamples      int        `json:"training_samples"`
	NumFeatures          int        `json:"num_features"`
	FeatureNamesOrdered  []string   `json:"feature_names_ordered"`
	EvaluationMetrics    Evaluation `json:"evaluation_metrics"`
}

// Evaluation holds the held-out evaluation statistics.
type Evaluation struct {
	AverageAnomalyScoreTest float64 `json:"average_anomaly_score_test"`
}

// Write serializes m as indented JSON to path atomically.
func Write(path string, m Metadata) error {
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	return guardio.WriteFileAtomic(path, data, 0o644)
}
