package linalg

import (
	"errors"
	"fmt"

	"github.com/born-ml/gpulinalg/internal/accel"
)

// callState is the progress of one operation call through the device.
type callState int

const (
	stateUnstaged callState = iota
	stateInputsUploading
	stateInputsReady
	stateKernelRunning
	stateOutputReady
	stateReleased
)

func (s callState) String() string {
	switch s {
	case stateUnstaged:
		return "UNSTAGED"
	case stateInputsUploading:
		return "INPUTS_UPLOADING"
	case stateInputsReady:
		return "INPUTS_READY"
	case stateKernelRunning:
		return "KERNEL_RUNNING"
	case stateOutputReady:
		return "OUTPUT_READY"
	case stateReleased:
		return "RELEASED"
	default:
		return fmt.Sprintf("callState(%d)", int(s))
	}
}

// call enforces the state order of one operation. Only release may jump,
// from any state, straight to stateReleased.
type call struct {
	state callState
	trace []callState
}

func (c *call) advance(to callState) {
	if to != c.state+1 {
		panic(fmt.Sprintf("linalg: illegal transition %s -> %s", c.state, to))
	}
	c.state = to
	c.trace = append(c.trace, to)
}

func (c *call) release() {
	c.state = stateReleased
	c.trace = append(c.trace, stateReleased)
}

// input is a host operand staged into a read-only region of elems floats.
type input struct {
	host  []float32
	elems int
}

// plan describes one kernel call: its operands, output and launch shape.
type plan struct {
	kernel  string
	inputs  []input
	outLen  int       // floats in the output region
	result  []float32 // host destination, read from the start of the output region
	scratch int       // local floats per work-group, 0 for none
	scalars []uint32
	geom    geometry
}

// dispatch runs p to completion: upload inputs, wait for them, launch the
// kernel behind them, wait for it, and read the output back. Every device
// object of the call is released before dispatch returns.
func (c *Context) dispatch(p plan) (err error) {
	cl := &call{}
	st := newStaging(c.ctx, c.queue, c.stats)
	defer func() {
		err = errors.Join(err, st.release())
		cl.release()
		c.lastTrace = cl.trace
	}()

	cl.advance(stateInputsUploading)
	args := make([]any, 0, len(p.inputs)+2+len(p.scalars))
	uploads := make([]accel.Event, 0, len(p.inputs))
	for _, in := range p.inputs {
		buf, ev, err := st.upload(in.host, in.elems, accel.MemReadOnly)
		if err != nil {
			return err
		}
		args = append(args, buf)
		uploads = append(uploads, ev)
	}
	out, err := st.alloc(p.outLen, accel.MemWriteOnly)
	if err != nil {
		return err
	}
	args = append(args, out)
	if err := awaitAll(uploads...); err != nil {
		return err
	}
	cl.advance(stateInputsReady)

	if p.scratch > 0 {
		args = append(args, accel.LocalMem(p.scratch*accel.SizeofFloat))
	}
	for _, v := range p.scalars {
		args = append(args, v)
	}
	k := c.kernels[p.kernel]
	for i, a := range args {
		if err := k.SetArg(i, a); err != nil {
			return err
		}
	}
	c.log.Debug().
		Str("kernel", p.kernel).
		Stringer("global", p.geom.global).
		Stringer("local", p.geom.local).
		Msg("dispatch")
	run, err := c.queue.EnqueueNDRange(k, p.geom.global, p.geom.local, uploads)
	if err != nil {
		return err
	}
	st.track(run)
	cl.advance(stateKernelRunning)

	if err := awaitAll(run); err != nil {
		return err
	}
	cl.advance(stateOutputReady)
	if prof, err := run.Profile(); err == nil {
		c.stats.kernelRan(p.kernel, prof.Duration())
	}

	return st.download(out, p.result, run)
}
