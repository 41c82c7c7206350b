//go:build windows

package webgpu

import (
	"sync"
	"sync/atomic"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/gpulinalg/internal/accel"
)

// gpuContext owns the shader and pipeline caches of one device.
type gpuContext struct {
	dev *device

	// Shader and pipeline cache, keyed by specialised kernel name.
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	released atomic.Bool
}

func newContext(d *device) *gpuContext {
	return &gpuContext{
		dev:       d,
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}
}

func (c *gpuContext) Device() accel.Device { return c.dev }

func (c *gpuContext) CreateQueue(props accel.QueueProperties) (q accel.Queue, err error) {
	const op = "CreateCommandQueue"
	if err := c.check(op); err != nil {
		return nil, err
	}
	defer recoverNative(op, accel.OutOfResources, &err)
	return newQueue(c, props), nil
}

// CreateBuffer allocates a storage buffer. WebGPU zero-initialises every
// new buffer.
func (c *gpuContext) CreateBuffer(flags accel.MemFlags, size int) (b accel.Buffer, err error) {
	const op = "CreateBuffer"
	if err := c.check(op); err != nil {
		return nil, err
	}
	if size <= 0 || size%accel.SizeofFloat != 0 {
		return nil, accel.Errorf(op, accel.InvalidBufferSize, "size %d is not a positive multiple of %d", size, accel.SizeofFloat)
	}
	//nolint:gosec // G115: size checked positive above
	n := uint64(size)
	if n > c.dev.info.MaxMemAllocSize {
		return nil, accel.Errorf(op, accel.InvalidBufferSize, "%d bytes exceeds max allocation %d", n, c.dev.info.MaxMemAllocSize)
	}
	defer recoverNative(op, accel.MemObjectAllocationFailure, &err)

	buf := c.dev.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  n,
	})
	if buf == nil {
		return nil, accel.Errorf(op, accel.MemObjectAllocationFailure, "device refused %d bytes", n)
	}
	return &buffer{buf: buf, size: size, flags: flags}, nil
}

func (c *gpuContext) CreateProgram(source string) (accel.Program, error) {
	const op = "CreateProgramWithSource"
	if err := c.check(op); err != nil {
		return nil, err
	}
	if source == "" {
		return nil, accel.Errorf(op, accel.InvalidValue, "empty source")
	}
	return &program{ctx: c, source: source}, nil
}

// Release releases every cached pipeline and shader module.
func (c *gpuContext) Release() error {
	if !c.released.CompareAndSwap(false, true) {
		return accel.Fail("ReleaseContext", accel.InvalidContext)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pipelines {
		p.Release()
	}
	c.pipelines = nil
	for _, s := range c.shaders {
		s.Release()
	}
	c.shaders = nil
	return nil
}

func (c *gpuContext) check(op string) error {
	if c.released.Load() {
		return accel.Fail(op, accel.InvalidContext)
	}
	return nil
}

// pipeline returns the cached pipeline for name or compiles code into one.
func (c *gpuContext) pipeline(name, code string) *wgpu.ComputePipeline {
	c.mu.RLock()
	if p, ok := c.pipelines[name]; ok {
		c.mu.RUnlock()
		return p
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pipelines[name]; ok {
		return p
	}
	shader := c.dev.dev.CreateShaderModuleWGSL(code)
	c.shaders[name] = shader
	// Auto layout (nil) derives the bind group layout from the shader.
	p := c.dev.dev.CreateComputePipelineSimple(nil, shader, "main")
	c.pipelines[name] = p
	return p
}

type buffer struct {
	buf      *wgpu.Buffer
	size     int
	flags    accel.MemFlags
	released atomic.Bool
}

func (b *buffer) Size() int             { return b.size }
func (b *buffer) Flags() accel.MemFlags { return b.flags }
func (b *buffer) Released() bool        { return b == nil || b.released.Load() }

func (b *buffer) Release() error {
	if !b.released.CompareAndSwap(false, true) {
		return accel.Fail("ReleaseMemObject", accel.InvalidMemObject)
	}
	b.buf.Release()
	return nil
}

// asBuffer resolves a caller-supplied buffer to a live WebGPU buffer.
func asBuffer(op string, b accel.Buffer) (*buffer, error) {
	gb, ok := b.(*buffer)
	if !ok || gb == nil {
		return nil, accel.Errorf(op, accel.InvalidMemObject, "buffer %T does not belong to the WebGPU driver", b)
	}
	if gb.released.Load() {
		return nil, accel.Errorf(op, accel.InvalidMemObject, "buffer was released")
	}
	return gb, nil
}
