package csv

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/guardtrain/pkg/schema"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "features.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testSchema(t *testing.T, names ...string) *schema.Schema {
	t.Helper()
	s, err := schema.New(names)
	require.NoError(t, err)
	return s
}

func TestNewReaderMissingFile(t *testing.T) {
	s := testSchema(t, "a", "b")

	_, err := NewReader(filepath.Join(t.TempDir(), "nope.csv"), s)
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestRead(t *testing.T) {
	s := testSchema(t, "a", "b", "c")

	t.Run("valid file", func(t *testing.T) {
		path := writeTempCSV(t, "1,2,3\n4.5,-1,0\n")

		r, err := NewReader(path, s)
		require.NoError(t, err)
		defer r.Close()

		rows, err := r.Read()
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{1, 2, 3}, {4.5, -1, 0}}, rows)
	})

	t.Run("infinities parse and survive ingestion", func(t *testing.T) {
		path := writeTempCSV(t, "1,inf,3\n1,-inf,3\n")

		r, err := NewReader(path, s)
		require.NoError(t, err)
		defer r.Close()

		rows, err := r.Read()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.True(t, math.IsInf(rows[0][1], 1))
		assert.True(t, math.IsInf(rows[1][1], -1))
	})

	t.Run("column count mismatch", func(t *testing.T) {
		path := writeTempCSV(t, "1,2,3\n1,2\n")

		r, err := NewReader(path, s)
		require.NoError(t, err)
		defer r.Close()

		_, err = r.Read()
		assert.ErrorIs(t, err, ErrSchemaMismatch)
	})

	t.Run("non-numeric field", func(t *testing.T) {
		path := writeTempCSV(t, "1,oops,3\n")

		r, err := NewReader(path, s)
		require.NoError(t, err)
		defer r.Close()

		_, err = r.Read()
		assert.Error(t, err)
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeTempCSV(t, "")

		r, err := NewReader(path, s)
		require.NoError(t, err)
		defer r.Close()

		rows, err := r.Read()
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestReadWiderFileThanSchema(t *testing.T) {
	// 27-column rows against a 26-name schema and vice versa must both fail.
	s := testSchema(t, "a", "b")
	path := writeTempCSV(t, "1,2,3\n")

	r, err := NewReader(path, s)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Read()
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}
