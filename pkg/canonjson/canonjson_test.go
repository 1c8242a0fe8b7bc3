package canonjson

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalDeterministicForSameState(t *testing.T) {
	a := map[string]any{
		"b": 2,
		"a": map[string]any{"y": 2, "x": 1},
	}
	b := map[string]any{
		"a": map[string]any{"x": 1, "y": 2},
		"b": 2,
	}

	ca, err := Marshal(a)
	require.NoError(t, err)
	cb, err := Marshal(b)
	require.NoError(t, err)
	require.Equal(t, string(ca), string(cb))
	require.Equal(t, `{"a":{"x":1,"y":2},"b":2}`, string(ca))
}

func TestMarshalNormalizesNumbers(t *testing.T) {
	a, err := Marshal(map[string]any{"eps": 1e-6})
	require.NoError(t, err)
	b, err := Marshal(map[string]any{"eps": 0.000001})
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
}

func TestMarshalKeepsIntegersExact(t *testing.T) {
	out, err := Marshal(map[string]any{"n": int64(9007199254740993)})
	require.NoError(t, err)
	require.Equal(t, `{"n":9007199254740993}`, string(out))
}

func TestSumHexStableAndSensitive(t *testing.T) {
	payload := map[string]any{"confidence": 0.5, "model": "tabular-logreg-abc"}

	h1, err := SumHex(payload)
	require.NoError(t, err)
	h2, err := SumHex(payload)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Regexp(t, `^blake2b:[0-9a-f]{64}$`, h1)

	payload["confidence"] = 0.5 + 1e-6
	h3, err := SumHex(payload)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}

func TestMarshalStructsAndMapsAgree(t *testing.T) {
	type inner struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	type outer struct {
		A inner `json:"a"`
		B int   `json:"b"`
	}

	fromStruct, err := Marshal(outer{A: inner{X: 1, Y: 2}, B: 2})
	require.NoError(t, err)
	fromMap, err := Marshal(map[string]any{"b": 2, "a": map[string]any{"y": 2, "x": 1}})
	require.NoError(t, err)
	require.Equal(t, string(fromMap), string(fromStruct))
}
