package accel

import "fmt"

// Range is a 1-, 2- or 3-dimensional work size.
type Range []int

// R1 returns a 1-D range.
func R1(x int) Range { return Range{x} }

// R2 returns a 2-D range.
func R2(x, y int) Range { return Range{x, y} }

// R3 returns a 3-D range.
func R3(x, y, z int) Range { return Range{x, y, z} }

// Dims returns the number of dimensions.
func (r Range) Dims() int { return len(r) }

// Size returns the product of all extents.
func (r Range) Size() int {
	if len(r) == 0 {
		return 0
	}
	n := 1
	for _, v := range r {
		n *= v
	}
	return n
}

// At returns extent d, or 1 for dimensions beyond the range.
func (r Range) At(d int) int {
	if d < len(r) {
		return r[d]
	}
	return 1
}

// Groups returns the number of work-groups along each of the three axes.
func (r Range) Groups(local Range) [3]int {
	var g [3]int
	for d := range 3 {
		g[d] = r.At(d) / local.At(d)
	}
	return g
}

// String formats the range as (x, y, z).
func (r Range) String() string {
	switch len(r) {
	case 1:
		return fmt.Sprintf("(%d)", r[0])
	case 2:
		return fmt.Sprintf("(%d, %d)", r[0], r[1])
	case 3:
		return fmt.Sprintf("(%d, %d, %d)", r[0], r[1], r[2])
	default:
		return fmt.Sprintf("%v", []int(r))
	}
}

// ValidateLaunch checks a launch geometry against device limits.
// Each global extent must be positive and divisible by the matching local
// extent, and the work-group must fit the device.
func ValidateLaunch(global, local Range, info DeviceInfo) error {
	const op = "EnqueueNDRange"
	if global.Dims() < 1 || global.Dims() > 3 {
		return Errorf(op, InvalidWorkDimension, "global range has %d dimensions", global.Dims())
	}
	if local.Dims() != global.Dims() {
		return Errorf(op, InvalidWorkGroupSize, "local range %s does not match global %s", local, global)
	}
	for d := range global {
		if global[d] <= 0 {
			return Errorf(op, InvalidGlobalWorkSize, "global extent %d is %d", d, global[d])
		}
		if local[d] <= 0 {
			return Errorf(op, InvalidWorkGroupSize, "local extent %d is %d", d, local[d])
		}
		if local[d] > info.MaxWorkItemSizes[d] {
			return Errorf(op, InvalidWorkItemSize, "local extent %d is %d, device allows %d", d, local[d], info.MaxWorkItemSizes[d])
		}
		if global[d]%local[d] != 0 {
			return Errorf(op, InvalidWorkGroupSize, "global %s is not a multiple of local %s", global, local)
		}
	}
	if local.Size() > info.MaxWorkGroupSize {
		return Errorf(op, InvalidWorkGroupSize, "work-group of %d items exceeds device maximum %d", local.Size(), info.MaxWorkGroupSize)
	}
	return nil
}
