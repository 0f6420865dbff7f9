package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagRounded(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.8765, 0.88},
		{0.6, 0.6},
		{0.604999, 0.6},
		{1, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Tag{Label: "x", Confidence: tt.in}.Rounded(), 1e-9)
	}
}

func TestHasLabel(t *testing.T) {
	tags := []Tag{{Label: "dog", Confidence: 0.9}, {Label: "person", Confidence: 0.7}}
	assert.True(t, HasLabel(tags, "person"))
	assert.False(t, HasLabel(tags, "cat"))
	assert.False(t, HasLabel(nil, "person"))
}
