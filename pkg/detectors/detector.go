// Package detectors provides unsupervised anomaly detection algorithms.
package detectors

// Detector is the common interface for all anomaly detection algorithms.
type Detector interface {
	// Fit trains the detector on historical data.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(data [][]float64) error

	// ScoreSamples returns anomaly scores for the given samples.
	// Scores are in (-1, 0) where higher values indicate more normal
	// samples; this sign convention is preserved through model export.
	ScoreSamples(data [][]float64) ([]float64, error)

	// ScoreOne returns the anomaly score for a single sample.
	ScoreOne(sample []float64) (float64, error)

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}

// Config holds common configuration for detectors.
type Config struct {
	// Contamination is the expected proportion of anomalies in training
	// data. Zero means "auto": a fixed score offset is used instead of a
	// percentile calibrated from the data.
	Contamination float64
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Contamination: 0,
		RandomSeed:    42,
	}
}
