// Package pipeline orchestrates the offline training flow: ingest,
// clean, split, fit, evaluate, export, write metadata. The flow is
// strictly linear; the first fatal error aborts the run and leaves no
// output files behind.
package pipeline

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/guardtrain/pkg/dataset"
	"github.com/hed1ad/guardtrain/pkg/detectors"
	"github.com/hed1ad/guardtrain/pkg/detectors/iforest"
	"github.com/hed1ad/guardtrain/pkg/export"
	"github.com/hed1ad/guardtrain/pkg/export/onnx"
	guardio "github.com/hed1ad/guardtrain/pkg/io"
	"github.com/hed1ad/guardtrain/pkg/io/csv"
	"github.com/hed1ad/guardtrain/pkg/metadata"
	"github.com/hed1ad/guardtrain/pkg/schema"
)

// Fatal error classes surfaced by Run; match with errors.Is.
var (
	ErrMissingInput   = csv.ErrMissingInput
	ErrSchemaMismatch = csv.ErrSchemaMismatch
	ErrTraining       = iforest.ErrEmptyTrainingSet
	ErrSerialization  = onnx.ErrNotSerializable
)

// Training hyperparameters are fixed constants, deliberately not part of
// the external invocation surface.
const (
	numTrees     = 100
	sampleSize   = 256
	evalFraction = 0.3

	// minViableRows is the advisory floor on cleaned dataset size; below
	// it the run continues but model quality is suspect.
	minViableRows = 200
)

// Pipeline runs the full training flow for one input file.
type Pipeline struct {
	dataPath     string
	modelPath    string
	metadataPath string

	schema   *schema.Schema
	seed     int64
	log      *zap.Logger
	exporter export.Exporter
	open     func() (guardio.Reader, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSchema overrides the default feature schema.
func WithSchema(s *schema.Schema) Option {
	return func(p *Pipeline) {
		p.schema = s
	}
}

// WithLogger sets the logger; the default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithExporter substitutes the model artifact format.
func WithExporter(e export.Exporter) Option {
	return func(p *Pipeline) {
		p.exporter = e
	}
}

// WithSeed sets the seed controlling split membership and tree randomness.
func WithSeed(seed int64) Option {
	return func(p *Pipeline) {
		p.seed = seed
	}
}

// WithSource substitutes the ingestion source; the default reads the
// data path as schema-validated CSV.
func WithSource(open func() (guardio.Reader, error)) Option {
	return func(p *Pipeline) {
		p.open = open
	}
}

// New creates a Pipeline over the three artifact paths: input feature
// table, output model, output metadata.
func New(dataPath, modelPath, metadataPath string, opts ...Option) *Pipeline {
	p := &Pipeline{
		dataPath:     dataPath,
		modelPath:    modelPath,
		metadataPath: metadataPath,
		schema:       schema.Default(),
		seed:         detectors.DefaultConfig().RandomSeed,
		log:          zap.NewNop(),
		exporter:     onnx.New(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.open == nil {
		p.open = func() (guardio.Reader, error) {
			return csv.NewReader(p.dataPath, p.schema)
		}
	}

	return p
}

// Result summarizes a completed run.
type Result struct {
	RawRows     int
	CleanRows   int
	DroppedRows int
	TrainRows   int
	EvalRows    int
	MeanScore   float64
}

// Run executes the pipeline. On success both output files exist and are
// consistent; on any fatal error neither exists.
func (p *Pipeline) Run() (*Result, error) {
	p.log.Info("training pipeline started",
		zap.String("data", p.dataPath),
		zap.Int("features", p.schema.Len()),
	)

	// Ingest
	reader, err := p.open()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	rows, err := reader.Read()
	if err != nil {
		return nil, err
	}

	raw, err := dataset.New(p.schema, rows)
	if err != nil {
		return nil, err
	}
	p.log.Info("loaded raw samples", zap.Int("rows", raw.Len()))

	// Clean
	clean, dropped := raw.Clean()
	p.log.Info("cleaned non-finite samples",
		zap.Int("rows", clean.Len()),
		zap.Int("dropped", dropped),
	)
	if clean.Len() < minViableRows {
		p.log.Warn("dataset is very small, model quality may be poor",
			zap.Int("rows", clean.Len()),
			zap.Int("recommended_minimum", minViableRows),
		)
	}

	// Split
	train, eval := clean.Split(evalFraction, p.seed)
	p.log.Info("split dataset",
		zap.Int("train_rows", train.Len()),
		zap.Int("eval_rows", eval.Len()),
	)

	// Train
	forest := iforest.New(
		iforest.WithTrees(numTrees),
		iforest.WithSampleSize(sampleSize),
		iforest.WithSeed(p.seed),
	)
	if err := forest.Fit(train.Rows()); err != nil {
		return nil, err
	}
	p.log.Info("trained isolation forest",
		zap.Int("trees", numTrees),
		zap.Int("train_rows", train.Len()),
	)

	// Evaluate
	scores, err := forest.ScoreSamples(eval.Rows())
	if err != nil {
		return nil, err
	}
	meanScore := mean(scores)
	p.log.Info("evaluated on held-out set",
		zap.Int("eval_rows", eval.Len()),
		zap.Float64("average_anomaly_score", meanScore),
	)

	// Export
	ens, err := forest.Ensemble()
	if err != nil {
		return nil, err
	}
	if err := p.exporter.Export(p.modelPath, ens); err != nil {
		return nil, err
	}
	p.log.Info("exported model artifact", zap.String("path", p.modelPath))

	// Metadata is written last; its existence implies a valid artifact.
	meta := metadata.Metadata{
		ModelType:            metadata.ModelKindIsolationForest,
		TrainingTimestampUTC: time.Now().UTC().Unix(),
		TrainingDataPath:     p.dataPath,
		TrainingSamples:      train.Len(),
		NumFeatures:          p.schema.Len(),
		FeatureNamesOrdered:  p.schema.Names(),
		EvaluationMetrics: metadata.Evaluation{
			AverageAnomalyScoreTest: meanScore,
		},
	}
	if err := metadata.Write(p.metadataPath, meta); err != nil {
		// Keep the no-partial-state guarantee: without metadata the
		// artifact must not be observable either.
		os.Remove(p.modelPath)
		return nil, err
	}
	p.log.Info("wrote model metadata", zap.String("path", p.metadataPath))

	return &Result{
		RawRows:     raw.Len(),
		CleanRows:   clean.Len(),
		DroppedRows: dropped,
		TrainRows:   train.Len(),
		EvalRows:    eval.Len(),
		MeanScore:   meanScore,
	}, nil
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
