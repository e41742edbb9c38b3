package types

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkValidate(t *testing.T) {
	tests := []struct {
		name    string
		chunk   Chunk
		wantErr bool
	}{
		{"valid", Chunk{Content: "x", StartLine: 1, EndLine: 2}, false},
		{"single line", Chunk{Content: "x", StartLine: 5, EndLine: 5}, false},
		{"empty content", Chunk{StartLine: 1, EndLine: 1}, true},
		{"zero start", Chunk{Content: "x", StartLine: 0, EndLine: 1}, true},
		{"inverted range", Chunk{Content: "x", StartLine: 3, EndLine: 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chunk.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChunkCodebasePath(t *testing.T) {
	c := Chunk{Metadata: map[string]any{MetaCodebasePath: "/repo"}}
	assert.Equal(t, "/repo", c.CodebasePath())
	assert.Empty(t, (&Chunk{}).CodebasePath())
}

func TestSparseVectorValidate(t *testing.T) {
	valid := SparseVector{Indices: []uint32{1, 2}, Values: []float32{0.5, 1}}
	assert.NoError(t, valid.Validate())

	mismatch := SparseVector{Indices: []uint32{1}, Values: []float32{1, 2}}
	assert.Error(t, mismatch.Validate())

	dup := SparseVector{Indices: []uint32{1, 1}, Values: []float32{1, 2}}
	assert.Error(t, dup.Validate())

	nonPositive := SparseVector{Indices: []uint32{1, 2}, Values: []float32{1, 0}}
	assert.Error(t, nonPositive.Validate())
}

func TestSparseVectorL2Normalize(t *testing.T) {
	v := SparseVector{Indices: []uint32{0, 1}, Values: []float32{3, 4}}
	v.L2Normalize()

	var sum float64
	for _, val := range v.Values {
		sum += float64(val) * float64(val)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)

	// Zero vector stays untouched.
	zero := SparseVector{Indices: []uint32{0}, Values: []float32{0}}
	zero.L2Normalize()
	assert.Equal(t, float32(0), zero.Values[0])
}

func TestRemoteError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &RemoteError{Op: "embed", Retryable: true, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsRetryable(cause))
}

func TestDimensionMismatchError(t *testing.T) {
	err := &DimensionMismatchError{Want: 768, Got: 384}
	require.Contains(t, err.Error(), "768")
	require.Contains(t, err.Error(), "384")
}

func TestChangeStats(t *testing.T) {
	assert.False(t, ChangeStats{}.HasChanges())
	assert.True(t, ChangeStats{Added: 1}.HasChanges())
}
