// Package dataset provides the in-memory tabular dataset used by the
// training pipeline, together with cleaning and train/eval splitting.
package dataset

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/hed1ad/guardtrain/pkg/schema"
)

// Sample is one fixed-width feature vector in schema order.
type Sample []float64

// Dataset is an ordered collection of samples bound to one schema.
// Samples are validated against the schema at construction; downstream
// stages consume the dataset read-only.
type Dataset struct {
	schema *schema.Schema
	rows   []Sample
}

// New creates a Dataset, rejecting any row whose width differs from the
// schema length.
func New(s *schema.Schema, rows [][]float64) (*Dataset, error) {
	owned := make([]Sample, len(rows))
	for i, row := range rows {
		if len(row) != s.Len() {
			return nil, fmt.Errorf("row %d has %d fields, schema defines %d", i, len(row), s.Len())
		}
		owned[i] = Sample(row)
	}

	return &Dataset{schema: s, rows: owned}, nil
}

// Schema returns the schema this dataset is bound to.
func (d *Dataset) Schema() *schema.Schema {
	return d.schema
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// Rows returns the samples as a 2D float slice for model fitting.
func (d *Dataset) Rows() [][]float64 {
	out := make([][]float64, len(d.rows))
	for i, row := range d.rows {
		out[i] = row
	}
	return out
}

// Clean returns a dataset holding only fully-finite samples. Infinities
// count as missing values, and a sample with any missing field is dropped
// whole rather than imputed. The second return value is the number of
// rows dropped.
func (d *Dataset) Clean() (*Dataset, int) {
	kept := make([]Sample, 0, len(d.rows))
	for _, row := range d.rows {
		if finite(row) {
			kept = append(kept, row)
		}
	}

	return &Dataset{schema: d.schema, rows: kept}, len(d.rows) - len(kept)
}

func finite(row Sample) bool {
	for _, v := range row {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Split partitions the dataset into disjoint training and evaluation
// subsets. The seed selects row membership via a shuffled permutation, so
// repeated runs over the same dataset produce identical partitions. The
// evaluation size is int(n * evalFraction), truncated toward zero.
func (d *Dataset) Split(evalFraction float64, seed int64) (train, eval *Dataset) {
	n := len(d.rows)
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)

	nEval := int(float64(n) * evalFraction)

	evalRows := make([]Sample, 0, nEval)
	trainRows := make([]Sample, 0, n-nEval)
	for i, idx := range perm {
		if i < nEval {
			evalRows = append(evalRows, d.rows[idx])
		} else {
			trainRows = append(trainRows, d.rows[idx])
		}
	}

	train = &Dataset{schema: d.schema, rows: trainRows}
	eval = &Dataset{schema: d.schema, rows: evalRows}
	return train, eval
}
