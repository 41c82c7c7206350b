package host

import (
	"context"

	"github.com/born-ml/gpulinalg/internal/accel"
	"github.com/born-ml/gpulinalg/internal/parallel"
)

// workItem identifies one lane of a launch.
type workItem struct {
	global [3]int
	local  [3]int
	group  [3]int
}

// lanes gives a kernel phase access to the arguments of its launch and the
// scratch memory of its work-group.
type lanes struct {
	args    []accel.Arg[*buffer]
	scratch [][]float32 // indexed like args; nil for non-local arguments
}

func (l *lanes) buf(i int) []float32   { return l.args[i].Buf.data }
func (l *lanes) local(i int) []float32 { return l.scratch[i] }
func (l *lanes) u32(i int) int         { return int(l.args[i].Scalar) }

// phase is the kernel body between two barriers, run once per work-item.
type phase func(it *workItem, l *lanes)

type launch struct {
	name          string
	impl          builtin
	args          []accel.Arg[*buffer]
	global, local accel.Range
}

// run executes every work-group of the launch. Groups are independent and
// run in parallel; within a group each phase completes for all items before
// the next phase starts, which is what a barrier guarantees.
func (l *launch) run(cfg parallel.Config) error {
	groups := l.global.Groups(l.local)
	nGroups := groups[0] * groups[1] * groups[2]
	size := [3]int{l.local.At(0), l.local.At(1), l.local.At(2)}

	return parallel.For(context.Background(), nGroups, func(g int) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = accel.Errorf("EnqueueNDRangeKernel", accel.OutOfResources, "%s: work-group %d faulted: %v", l.name, g, r)
			}
		}()
		l.runGroup(linearTo3D(g, groups), size)
		return nil
	}, cfg)
}

func (l *launch) runGroup(group, size [3]int) {
	ln := &lanes{args: l.args, scratch: make([][]float32, len(l.args))}
	for i, a := range l.args {
		if a.Local > 0 {
			ln.scratch[i] = make([]float32, a.Local/accel.SizeofFloat)
		}
	}

	items := size[0] * size[1] * size[2]
	it := &workItem{group: group}
	for _, ph := range l.impl.phases {
		for i := range items {
			it.local = linearTo3D(i, size)
			for d := range 3 {
				it.global[d] = group[d]*size[d] + it.local[d]
			}
			ph(it, ln)
		}
	}
}

// linearTo3D converts a linear index to x-fastest 3D coordinates.
func linearTo3D(linear int, dim [3]int) [3]int {
	x := linear % dim[0]
	y := (linear / dim[0]) % dim[1]
	z := linear / (dim[0] * dim[1])
	return [3]int{x, y, z}
}
