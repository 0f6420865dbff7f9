package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Embedding
		want float64
	}{
		{name: "identical", a: Embedding{1, 2, 3}, b: Embedding{1, 2, 3}, want: 0},
		{name: "unit axis", a: Embedding{0, 0}, b: Embedding{0, 1}, want: 1},
		{name: "pythagoras", a: Embedding{0, 0}, b: Embedding{3, 4}, want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.a.Distance(tt.b), 1e-12)
			assert.InDelta(t, tt.want, tt.b.Distance(tt.a), 1e-12)
		})
	}
}

func TestEmbeddingDistanceLengthMismatch(t *testing.T) {
	assert.True(t, math.IsInf(Embedding{1, 2}.Distance(Embedding{1}), 1))
}

func TestEmbeddingBlobLayout(t *testing.T) {
	e := Embedding{0.25, -1.5, 3}

	v, err := e.Value()
	require.NoError(t, err)
	raw, ok := v.([]byte)
	require.True(t, ok)
	assert.Len(t, raw, 24)
	// 0.25 = 0x3FD0000000000000, little endian
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0xD0, 0x3F}, raw[:8])

	var back Embedding
	require.NoError(t, back.Scan(raw))
	assert.Equal(t, e, back)
}

func TestEmbeddingScanRejectsTruncatedBlob(t *testing.T) {
	var e Embedding
	assert.Error(t, e.Scan([]byte{1, 2, 3}))
	assert.Error(t, e.Scan(42))
}

func TestProfileDisplayName(t *testing.T) {
	assert.Equal(t, "Profile_7", Profile{ID: 7, Name: DefaultProfileName}.DisplayName())
	assert.Equal(t, "Profile_3", Profile{ID: 3}.DisplayName())
	assert.Equal(t, "Alice", Profile{ID: 1, Name: "Alice"}.DisplayName())
}
