package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.87654, "0.88"},
		{0.875, "0.88"},
		{0.5, "0.50"},
		{1, "1.00"},
		{0.004, "0.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatConfidence("person", tt.in))
	}
}
