// Package csv provides strict CSV ingestion for schema-bound feature
// tables: header-less, comma-delimited, one sample per row.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/hed1ad/guardtrain/pkg/schema"
)

var (
	// ErrMissingInput reports an input path that does not resolve to a
	// readable file.
	ErrMissingInput = errors.New("input data file not found")

	// ErrSchemaMismatch reports a row whose column count differs from the
	// feature schema length.
	ErrSchemaMismatch = errors.New("column count does not match feature schema")
)

// Reader reads a feature table from a CSV file, validating every row
// against the schema. Unlike a permissive reader, malformed or
// wrong-width rows are fatal: the upstream extractor and this trainer
// must agree on the schema exactly.
type Reader struct {
	file   *os.File
	reader *csv.Reader
	schema *schema.Schema
}

// NewReader opens filename for schema-validated reading.
func NewReader(filename string, s *schema.Schema) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, filename)
		}
		return nil, err
	}

	cr := csv.NewReader(file)
	cr.FieldsPerRecord = -1 // width is checked against the schema instead

	return &Reader{
		file:   file,
		reader: cr,
		schema: s,
	}, nil
}

// Read returns all rows as a 2D float slice. The first row whose column
// count differs from the schema length aborts the read with
// ErrSchemaMismatch.
func (r *Reader) Read() ([][]float64, error) {
	var data [][]float64

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if len(record) != r.schema.Len() {
			return nil, fmt.Errorf("%w: expected %d columns, found %d at row %d",
				ErrSchemaMismatch, r.schema.Len(), len(record), len(data)+1)
		}

		row, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(data)+1, err)
		}
		data = append(data, row)
	}

	return data, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// parseRow converts string fields to floats. Infinities and NaN parse
// successfully here; the cleaning stage drops them.
func parseRow(record []string) ([]float64, error) {
	row := make([]float64, len(record))
	for i, val := range record {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		row[i] = f
	}
	return row, nil
}
