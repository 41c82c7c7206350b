package linalg

import (
	"fmt"

	"github.com/born-ml/gpulinalg/internal/accel"
)

// padLadder are the admissible padded extents up to 256.
var padLadder = [...]int{32, 64, 128, 256}

// PadExtent rounds x up to the next admissible extent: 32, 64, 128 or 256,
// and past 256 the next multiple of 256.
func PadExtent(x int) int {
	for _, p := range padLadder {
		if x <= p {
			return p
		}
	}
	return (x + 255) / 256 * 256
}

// geometry is the launch shape of one kernel call.
type geometry struct {
	global, local accel.Range
	// elems is the float count of device buffers that mirror a padded shape.
	elems int
}

func (g geometry) String() string {
	return fmt.Sprintf("global=%s local=%s elems=%d", g.global, g.local, g.elems)
}

// elementwiseGeometry flattens a rows x cols shape to one dimension. A
// vector pads its nonunit extent; a matrix pads both extents and launches
// over their product.
func elementwiseGeometry(rows, cols, localSize int) geometry {
	var n int
	switch {
	case rows == 1:
		n = PadExtent(cols)
	case cols == 1:
		n = PadExtent(rows)
	default:
		n = PadExtent(rows) * PadExtent(cols)
	}
	n = (n + localSize - 1) / localSize * localSize
	return geometry{global: accel.R1(n), local: accel.R1(localSize), elems: n}
}

// dotGeometry runs one work-group of inner lanes per output element.
func dotGeometry(rows, inner, cols2 int) geometry {
	return geometry{
		global: accel.R3(rows, inner, cols2),
		local:  accel.R3(1, inner, 1),
	}
}

// matVecGeometry runs one work-group of cols lanes per row.
func matVecGeometry(rows, cols int) geometry {
	return geometry{
		global: accel.R2(rows, cols),
		local:  accel.R2(1, cols),
	}
}

// checkReduction reports whether a reduction of width lanes fits the device.
func checkReduction(info accel.DeviceInfo, width int) error {
	switch {
	case width > info.MaxWorkGroupSize:
		return fmt.Errorf("%w: reduction width %d exceeds max work-group size %d", ErrExceedsDeviceLimit, width, info.MaxWorkGroupSize)
	case width > info.MaxWorkItemSizes[1]:
		return fmt.Errorf("%w: reduction width %d exceeds max work-item size %d", ErrExceedsDeviceLimit, width, info.MaxWorkItemSizes[1])
	//nolint:gosec // G115: width is positive
	case uint64(width*accel.SizeofFloat) > info.LocalMemSize:
		return fmt.Errorf("%w: reduction width %d exceeds %d bytes of local memory", ErrExceedsDeviceLimit, width, info.LocalMemSize)
	}
	return nil
}
