package params

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  Value
	}{
		{"string", "cosine", String("cosine")},
		{"bool", true, Bool(true)},
		{"int", 15, Int(15)},
		{"int64", int64(-2), Int(-2)},
		{"float64", 0.1, Float(0.1)},
		{"json int", json.Number("450"), Int(450)},
		{"json float", json.Number("0.5"), Float(0.5)},
		{"json exponent", json.Number("1e-20"), Float(1e-20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromAnyRejects(t *testing.T) {
	_, err := FromAny(nil)
	assert.Error(t, err)

	_, err = FromAny([]any{1})
	assert.Error(t, err)

	_, err = FromAny(map[string]any{"a": 1})
	assert.Error(t, err)
}

func TestAsInt(t *testing.T) {
	n, ok := AsInt(Int(5))
	assert.True(t, ok)
	assert.Equal(t, int64(5), n)

	n, ok = AsInt(Float(40))
	assert.True(t, ok)
	assert.Equal(t, int64(40), n)

	_, ok = AsInt(Float(0.5))
	assert.False(t, ok)

	_, ok = AsInt(String("5"))
	assert.False(t, ok)
}

func TestParamsCloneIndependent(t *testing.T) {
	p := Params{"n_neighbors": Int(15)}
	c := p.Clone()
	c["n_neighbors"] = Int(30)
	c["metric"] = String("cosine")

	assert.Equal(t, Int(15), p["n_neighbors"])
	assert.False(t, p.Has("metric"))
}

func TestParamsJSONRoundTrip(t *testing.T) {
	p := Params{"knn": Int(5), "decay": Int(40)}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"decay":40,"knn":5}`, string(data))

	var back Params
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)
}
