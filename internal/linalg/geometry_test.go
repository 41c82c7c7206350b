package linalg

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/gpulinalg/internal/accel"
)

func TestPadExtent(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 32}, {1, 32}, {32, 32},
		{33, 64}, {64, 64},
		{65, 128}, {128, 128},
		{129, 256}, {200, 256}, {256, 256},
		{257, 512}, {600, 768}, {1024, 1024},
	}
	for _, tt := range tests {
		got := PadExtent(tt.in)
		assert.Equal(t, tt.want, got, "PadExtent(%d)", tt.in)
		assert.GreaterOrEqual(t, got, tt.in)
		assert.Zero(t, got%32)
	}
}

func TestElementwiseGeometry(t *testing.T) {
	tests := []struct {
		name       string
		rows, cols int
		local      int
		elems      int
	}{
		{"row vector", 1, 5, 32, 32},
		{"column vector", 70, 1, 32, 128},
		{"scalar", 1, 1, 32, 32},
		{"matrix", 3, 40, 32, 32 * 64},
		{"large matrix", 300, 2, 32, 512 * 32},
		{"wide local", 1, 5, 64, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := elementwiseGeometry(tt.rows, tt.cols, tt.local)
			assert.Equal(t, tt.elems, g.elems)
			assert.Equal(t, accel.R1(tt.elems), g.global)
			assert.Equal(t, accel.R1(tt.local), g.local)
			assert.GreaterOrEqual(t, g.elems, tt.rows*tt.cols)
		})
	}
}

func TestReductionGeometry(t *testing.T) {
	g := dotGeometry(2, 3, 4)
	assert.Equal(t, accel.R3(2, 3, 4), g.global)
	assert.Equal(t, accel.R3(1, 3, 1), g.local)
	assert.Equal(t, [3]int{2, 1, 4}, g.global.Groups(g.local))

	g = matVecGeometry(5, 7)
	assert.Equal(t, accel.R2(5, 7), g.global)
	assert.Equal(t, accel.R2(1, 7), g.local)
}

func TestCheckReduction(t *testing.T) {
	info := accel.DeviceInfo{
		MaxWorkGroupSize: 256,
		MaxWorkItemSizes: [3]int{256, 128, 64},
		LocalMemSize:     1024,
	}
	assert.NoError(t, checkReduction(info, 128))
	assert.ErrorIs(t, checkReduction(info, 257), ErrExceedsDeviceLimit)
	assert.ErrorIs(t, checkReduction(info, 200), ErrExceedsDeviceLimit)

	info.MaxWorkItemSizes[1] = 256
	assert.NoError(t, checkReduction(info, 256))
	info.LocalMemSize = 512
	assert.ErrorIs(t, checkReduction(info, 200), ErrExceedsDeviceLimit)
}
