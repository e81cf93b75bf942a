package dataset

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/guardtrain/pkg/schema"
)

func testSchema(t *testing.T, n int) *schema.Schema {
	t.Helper()
	names := make([]string, n)
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	s, err := schema.New(names)
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	s := testSchema(t, 3)

	t.Run("valid rows", func(t *testing.T) {
		d, err := New(s, [][]float64{{1, 2, 3}, {4, 5, 6}})
		require.NoError(t, err)
		assert.Equal(t, 2, d.Len())
		assert.Equal(t, s, d.Schema())
	})

	t.Run("wrong width rejected at the boundary", func(t *testing.T) {
		_, err := New(s, [][]float64{{1, 2, 3}, {4, 5}})
		assert.Error(t, err)
	})
}

func TestClean(t *testing.T) {
	s := testSchema(t, 3)

	d, err := New(s, [][]float64{
		{1, 2, 3},
		{math.Inf(1), 2, 3},
		{4, 5, 6},
		{1, math.Inf(-1), 3},
		{1, 2, math.NaN()},
		{7, 8, 9},
	})
	require.NoError(t, err)

	clean, dropped := d.Clean()

	assert.Equal(t, 3, clean.Len())
	assert.Equal(t, 3, dropped)

	// No surviving row contains a non-finite value
	for _, row := range clean.Rows() {
		for _, v := range row {
			assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
		}
	}

	// Original dataset untouched
	assert.Equal(t, 6, d.Len())
}

func TestSplit(t *testing.T) {
	s := testSchema(t, 2)

	rows := make([][]float64, 1000)
	rng := rand.New(rand.NewSource(3))
	for i := range rows {
		rows[i] = []float64{float64(i), rng.Float64()}
	}
	d, err := New(s, rows)
	require.NoError(t, err)

	train, eval := d.Split(0.3, 42)

	assert.Equal(t, 700, train.Len())
	assert.Equal(t, 300, eval.Len())

	t.Run("partitions are disjoint and exhaustive", func(t *testing.T) {
		seen := make(map[float64]int)
		for _, row := range train.Rows() {
			seen[row[0]]++
		}
		for _, row := range eval.Rows() {
			seen[row[0]]++
		}
		assert.Len(t, seen, 1000)
		for _, count := range seen {
			assert.Equal(t, 1, count)
		}
	})

	t.Run("identical membership across repeated runs", func(t *testing.T) {
		train2, eval2 := d.Split(0.3, 42)
		assert.Equal(t, train.Rows(), train2.Rows())
		assert.Equal(t, eval.Rows(), eval2.Rows())
	})

	t.Run("different seed selects different membership", func(t *testing.T) {
		_, eval3 := d.Split(0.3, 43)
		assert.NotEqual(t, eval.Rows(), eval3.Rows())
	})

	t.Run("eval size truncates toward zero", func(t *testing.T) {
		small, err := New(s, rows[:7])
		require.NoError(t, err)

		tr, ev := small.Split(0.3, 42)
		assert.Equal(t, 2, ev.Len()) // int(7 * 0.3) = 2
		assert.Equal(t, 5, tr.Len())
	})
}
