package host

import (
	"sync"
	"sync/atomic"

	"github.com/born-ml/gpulinalg/internal/accel"
)

type hostContext struct {
	dev *device

	mu        sync.Mutex
	liveBytes uint64
	released  bool
}

func newContext(d *device) *hostContext {
	return &hostContext{dev: d}
}

func (c *hostContext) Device() accel.Device { return c.dev }

func (c *hostContext) CreateQueue(props accel.QueueProperties) (accel.Queue, error) {
	if err := c.check("CreateCommandQueue"); err != nil {
		return nil, err
	}
	return newQueue(c, props), nil
}

// CreateBuffer allocates a zero-filled region. Allocation fails when the
// region exceeds the single-allocation limit or the device memory left.
func (c *hostContext) CreateBuffer(flags accel.MemFlags, size int) (accel.Buffer, error) {
	const op = "CreateBuffer"
	if err := c.check(op); err != nil {
		return nil, err
	}
	if size <= 0 || size%accel.SizeofFloat != 0 {
		return nil, accel.Errorf(op, accel.InvalidBufferSize, "size %d is not a positive multiple of %d", size, accel.SizeofFloat)
	}
	access := flags & (accel.MemReadOnly | accel.MemWriteOnly | accel.MemReadWrite)
	if access != accel.MemReadOnly && access != accel.MemWriteOnly && access != accel.MemReadWrite {
		return nil, accel.Errorf(op, accel.InvalidValue, "flags %#x must select exactly one access mode", uint32(flags))
	}

	info := c.dev.info
	//nolint:gosec // G115: size checked positive above
	n := uint64(size)
	if n > info.MaxMemAllocSize {
		return nil, accel.Errorf(op, accel.InvalidBufferSize, "%d bytes exceeds max allocation %d", n, info.MaxMemAllocSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.liveBytes+n > info.GlobalMemSize {
		return nil, accel.Errorf(op, accel.MemObjectAllocationFailure, "%d bytes requested, %d of %d in use", n, c.liveBytes, info.GlobalMemSize)
	}
	c.liveBytes += n

	return &buffer{
		ctx:   c,
		flags: flags,
		data:  make([]float32, size/accel.SizeofFloat),
	}, nil
}

func (c *hostContext) CreateProgram(source string) (accel.Program, error) {
	if err := c.check("CreateProgramWithSource"); err != nil {
		return nil, err
	}
	if source == "" {
		return nil, accel.Errorf("CreateProgramWithSource", accel.InvalidValue, "empty source")
	}
	return &program{ctx: c, source: source}, nil
}

func (c *hostContext) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return accel.Fail("ReleaseContext", accel.InvalidContext)
	}
	c.released = true
	return nil
}

func (c *hostContext) check(op string) error {
	c.mu.Lock()
	released := c.released
	c.mu.Unlock()
	if released {
		return accel.Fail(op, accel.InvalidContext)
	}
	return c.dev.cfg.fault(op)
}

func (c *hostContext) free(n uint64) {
	c.mu.Lock()
	c.liveBytes -= n
	c.mu.Unlock()
}

type buffer struct {
	ctx      *hostContext
	flags    accel.MemFlags
	data     []float32
	released atomic.Bool
}

func (b *buffer) Size() int             { return len(b.data) * accel.SizeofFloat }
func (b *buffer) Flags() accel.MemFlags { return b.flags }
func (b *buffer) Released() bool        { return b == nil || b.released.Load() }

func (b *buffer) Release() error {
	if !b.released.CompareAndSwap(false, true) {
		return accel.Fail("ReleaseMemObject", accel.InvalidMemObject)
	}
	//nolint:gosec // G115: buffer sizes are positive
	b.ctx.free(uint64(b.Size()))
	return nil
}

// asBuffer resolves a caller-supplied buffer to a live host buffer.
func asBuffer(op string, b accel.Buffer) (*buffer, error) {
	hb, ok := b.(*buffer)
	if !ok || hb == nil {
		return nil, accel.Errorf(op, accel.InvalidMemObject, "buffer %T does not belong to the host driver", b)
	}
	if hb.released.Load() {
		return nil, accel.Errorf(op, accel.InvalidMemObject, "buffer was released")
	}
	return hb, nil
}
