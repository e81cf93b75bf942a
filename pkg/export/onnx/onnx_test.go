package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hed1ad/guardtrain/pkg/export"
)

// smallEnsemble is a trained-looking two-tree snapshot:
// tree 0 splits feature 0 at 0.5, tree 1 splits feature 1 at -1.
func smallEnsemble() export.Ensemble {
	return export.Ensemble{
		NumFeatures: 2,
		Normalizer:  5.0,
		Trees: [][]export.TreeNode{
			{
				{Feature: 0, Threshold: 0.5, Left: 1, Right: 2},
				{Left: -1, Right: -1, LeafValue: 3.2},
				{Left: -1, Right: -1, LeafValue: 1.1},
			},
			{
				{Feature: 1, Threshold: -1, Left: 1, Right: 2},
				{Left: -1, Right: -1, LeafValue: 2.0},
				{Left: -1, Right: -1, LeafValue: 4.7},
			},
		},
	}
}

func TestBytes(t *testing.T) {
	data, err := Bytes(smallEnsemble())
	require.NoError(t, err)
	require.NotEmpty(t, data)

	model := parseMessage(t, data)

	t.Run("model header", func(t *testing.T) {
		assert.Equal(t, []uint64{irVersion}, model.varints[1])
		assert.Equal(t, []string{producerName}, asStrings(model.messages[2]))
	})

	t.Run("declares both operator sets", func(t *testing.T) {
		require.Len(t, model.messages[8], 2)

		defaultSet := parseMessage(t, model.messages[8][0])
		assert.Equal(t, []uint64{opsetVersion}, defaultSet.varints[2])

		mlSet := parseMessage(t, model.messages[8][1])
		assert.Equal(t, []string{"ai.onnx.ml"}, asStrings(mlSet.messages[1]))
		assert.Equal(t, []uint64{opsetMLVersion}, mlSet.varints[2])
	})

	t.Run("graph shape", func(t *testing.T) {
		require.Len(t, model.messages[7], 1)
		graph := parseMessage(t, model.messages[7][0])

		// TreeEnsembleRegressor, Mul, Exp, Neg
		require.Len(t, graph.messages[1], 4)
		var ops []string
		for _, raw := range graph.messages[1] {
			n := parseMessage(t, raw)
			ops = append(ops, asStrings(n.messages[4])...)
		}
		assert.Equal(t, []string{"TreeEnsembleRegressor", "Mul", "Exp", "Neg"}, ops)

		// one initializer (score_scale), one input, one output
		assert.Len(t, graph.messages[5], 1)
		require.Len(t, graph.messages[11], 1)
		require.Len(t, graph.messages[12], 1)

		input := parseMessage(t, graph.messages[11][0])
		assert.Equal(t, []string{inputName}, asStrings(input.messages[1]))
		output := parseMessage(t, graph.messages[12][0])
		assert.Equal(t, []string{outputName}, asStrings(output.messages[1]))
	})

	t.Run("deterministic bytes", func(t *testing.T) {
		again, err := Bytes(smallEnsemble())
		require.NoError(t, err)
		assert.Equal(t, data, again)
	})
}

func TestBytesRejectsUnrepresentableEnsembles(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*export.Ensemble)
	}{
		{
			name:   "no trees",
			mutate: func(e *export.Ensemble) { e.Trees = nil },
		},
		{
			name:   "no features",
			mutate: func(e *export.Ensemble) { e.NumFeatures = 0 },
		},
		{
			name:   "bad normalizer",
			mutate: func(e *export.Ensemble) { e.Normalizer = 0 },
		},
		{
			name:   "empty tree",
			mutate: func(e *export.Ensemble) { e.Trees[1] = nil },
		},
		{
			name:   "feature out of range",
			mutate: func(e *export.Ensemble) { e.Trees[0][0].Feature = 7 },
		},
		{
			name:   "child out of range",
			mutate: func(e *export.Ensemble) { e.Trees[0][0].Right = 9 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ens := smallEnsemble()
			tt.mutate(&ens)

			_, err := Bytes(ens)
			assert.ErrorIs(t, err, ErrNotSerializable)
		})
	}
}

func TestExport(t *testing.T) {
	t.Run("writes artifact", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.onnx")
		require.NoError(t, New().Export(path, smallEnsemble()))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		want, err := Bytes(smallEnsemble())
		require.NoError(t, err)
		assert.Equal(t, want, data)
	})

	t.Run("no file on serialization failure", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.onnx")

		err := New().Export(path, export.Ensemble{})
		assert.ErrorIs(t, err, ErrNotSerializable)

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})
}

// parsed holds one decoded protobuf message level: varint fields and
// length-delimited fields by number.
type parsed struct {
	varints  map[int][]uint64
	messages map[int][][]byte
}

func parseMessage(t *testing.T, data []byte) parsed {
	t.Helper()
	p := parsed{
		varints:  make(map[int][]uint64),
		messages: make(map[int][][]byte),
	}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		require.Positive(t, n)
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			require.Positive(t, n)
			p.varints[int(num)] = append(p.varints[int(num)], v)
			data = data[n:]
		case protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			require.Positive(t, n)
			p.messages[int(num)] = append(p.messages[int(num)], b)
			data = data[n:]
		default:
			t.Fatalf("unexpected wire type %v", typ)
		}
	}
	return p
}

func asStrings(raw [][]byte) []string {
	var out []string
	for _, b := range raw {
		out = append(out, string(b))
	}
	return out
}
