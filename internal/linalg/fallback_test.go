package linalg

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/gpulinalg/internal/kernels"
)

func TestHostElementwiseAliasing(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{10, 20, 30}
	hostElementwise(kernels.Subtract, a, b, b)
	assert.Equal(t, []float32{-9, -18, -27}, b)

	hostElementwise(kernels.Divide, a, a, a)
	assert.Equal(t, []float32{1, 1, 1}, a)
}

func TestHostReductions(t *testing.T) {
	out := make([]float32, 4)
	hostDot([]float32{1, 2, 3, 4, 5, 6}, []float32{1, 0, 0, 1, 1, 1}, out, 2, 3, 2)
	assert.Equal(t, []float32{4, 5, 10, 11}, out)

	mv := make([]float32, 2)
	hostMatVec([]float32{1, 2, 3, 4}, []float32{10, 20}, mv, 2, 2)
	assert.Equal(t, []float32{30, 140}, mv)
}
