// Package io provides input/output utilities for data ingestion and
// artifact writing.
package io

// Reader is the interface for reading tabular feature data from a source.
type Reader interface {
	// Read returns the complete dataset as rows of feature values.
	Read() ([][]float64, error)

	// Close releases resources.
	Close() error
}
