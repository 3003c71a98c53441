package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "broker list with padding and repeats",
			input:    []string{" kafka-1:9092", "kafka-2:9092 ", "kafka-1:9092"},
			expected: []string{"kafka-1:9092", "kafka-2:9092"},
		},
		{
			name:     "blank entries from trailing commas",
			input:    []string{"kafka-1:9092", "", "  "},
			expected: []string{"kafka-1:9092"},
		},
		{
			name:     "first occurrence wins",
			input:    []string{"b", "a", "b", "c", "a"},
			expected: []string{"b", "a", "c"},
		},
		{
			name:     "case is significant",
			input:    []string{"Host", "host"},
			expected: []string{"Host", "host"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
