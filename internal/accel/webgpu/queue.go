//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/gpulinalg/internal/accel"
)

// queue wraps the device queue. WebGPU executes submissions in order, so
// every command is encoded and submitted when it is enqueued; events wait
// for completion with a fence readback.
type queue struct {
	ctx       *gpuContext
	profiling bool

	mu       sync.Mutex
	sentinel *wgpu.Buffer
	released bool
}

func newQueue(c *gpuContext, props accel.QueueProperties) *queue {
	return &queue{
		ctx:       c,
		profiling: props&accel.QueueProfilingEnable != 0,
		sentinel: c.dev.dev.CreateBuffer(&wgpu.BufferDescriptor{
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
			Size:  accel.SizeofFloat,
		}),
	}
}

// lock waits for the wait list and takes the queue. The caller unlocks.
func (q *queue) lock(op string, wait []accel.Event) error {
	for _, w := range wait {
		if w == nil {
			return accel.Errorf(op, accel.InvalidEventWaitList, "nil event in wait list")
		}
	}
	if len(wait) > 0 {
		if err := accel.WaitForEvents(wait...); err != nil {
			return accel.Errorf(op, accel.ExecStatusError, "dependency failed: %w", err)
		}
	}
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return accel.Fail(op, accel.InvalidCommandQueue)
	}
	return nil
}

func (q *queue) EnqueueWrite(buf accel.Buffer, blocking bool, offset int, src []float32, wait []accel.Event) (ev accel.Event, err error) {
	const op = "EnqueueWriteBuffer"
	gb, err := asBuffer(op, buf)
	if err != nil {
		return nil, err
	}
	if err := span(op, gb, offset, len(src)); err != nil {
		return nil, err
	}
	if err := q.lock(op, wait); err != nil {
		return nil, err
	}
	defer q.mu.Unlock()
	defer recoverNative(op, accel.OutOfResources, &err)

	e := q.newEvent()
	if len(src) > 0 {
		//nolint:gosec // G115: length checked against the buffer size
		size := uint64(len(src) * accel.SizeofFloat)
		dev := q.ctx.dev.dev
		staging := dev.CreateBuffer(&wgpu.BufferDescriptor{
			Usage:            wgpu.BufferUsageCopySrc,
			Size:             size,
			MappedAtCreation: wgpu.True,
		})
		mappedPtr := staging.GetMappedRange(0, size)
		//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
		copy(unsafe.Slice((*float32)(mappedPtr), len(src)), src)
		staging.Unmap()

		encoder := dev.CreateCommandEncoder(nil)
		//nolint:gosec // G115: offset validated non-negative
		encoder.CopyBufferToBuffer(staging, 0, gb.buf, uint64(offset), size)
		q.ctx.dev.queue.Submit(encoder.Finish(nil))
		e.keep = append(e.keep, staging.Release)
	}
	if blocking {
		if err := e.waitLocked(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// EnqueueRead copies through a mappable staging buffer and always completes
// before returning.
func (q *queue) EnqueueRead(buf accel.Buffer, _ bool, offset int, dst []float32, wait []accel.Event) (ev accel.Event, err error) {
	const op = "EnqueueReadBuffer"
	gb, err := asBuffer(op, buf)
	if err != nil {
		return nil, err
	}
	if err := span(op, gb, offset, len(dst)); err != nil {
		return nil, err
	}
	if err := q.lock(op, wait); err != nil {
		return nil, err
	}
	defer q.mu.Unlock()
	defer recoverNative(op, accel.OutOfResources, &err)

	e := q.newEvent()
	if len(dst) > 0 {
		//nolint:gosec // G115: length checked against the buffer size
		size := uint64(len(dst) * accel.SizeofFloat)
		dev := q.ctx.dev.dev
		staging := dev.CreateBuffer(&wgpu.BufferDescriptor{
			Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
			Size:  size,
		})
		defer staging.Release()

		encoder := dev.CreateCommandEncoder(nil)
		//nolint:gosec // G115: offset validated non-negative
		encoder.CopyBufferToBuffer(gb.buf, uint64(offset), staging, 0, size)
		q.ctx.dev.queue.Submit(encoder.Finish(nil))

		if err := staging.MapAsync(dev, wgpu.MapModeRead, 0, size); err != nil {
			return nil, accel.Errorf(op, accel.OutOfResources, "failed to map staging buffer: %w", err)
		}
		mappedPtr := staging.GetMappedRange(0, size)
		//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
		copy(dst, unsafe.Slice((*float32)(mappedPtr), len(dst)))
		staging.Unmap()
	}
	e.complete(nil)
	return e, nil
}

func (q *queue) EnqueueNDRange(k accel.Kernel, global, local accel.Range, wait []accel.Event) (ev accel.Event, err error) {
	const op = "EnqueueNDRangeKernel"
	gk, ok := k.(*kernel)
	if !ok || gk == nil || gk.Released() {
		return nil, accel.Errorf(op, accel.InvalidKernel, "kernel %T is not a live WebGPU kernel", k)
	}
	info := q.ctx.dev.info
	if err := accel.ValidateLaunch(global, local, info); err != nil {
		return nil, err
	}
	b, err := gk.resolve(info)
	if err != nil {
		return nil, err
	}
	if err := q.lock(op, wait); err != nil {
		return nil, err
	}
	defer q.mu.Unlock()
	defer recoverNative(op, accel.OutOfResources, &err)

	name := fmt.Sprintf("%s_%dx%dx%d_%d", gk.Name(), local.At(0), local.At(1), local.At(2), b.scratch)
	pipeline := q.ctx.pipeline(name, gk.shader.render(local, b.scratch))

	// Uniform params, 16-byte aligned.
	params := make([]byte, (len(b.params)*4+15)&^15)
	for i, v := range b.params {
		binary.LittleEndian.PutUint32(params[i*4:], v)
	}
	bufferParams := q.uniform(params)

	entries := make([]wgpu.BindGroupEntry, 0, len(b.buffers)+1)
	for i, buf := range b.buffers {
		//nolint:gosec // G115: binding indices and sizes are small and non-negative
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf.buf, 0, uint64(buf.size)))
	}
	//nolint:gosec // G115: binding index is small
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(b.buffers)), bufferParams, 0, uint64(len(params))))
	bindGroup := q.ctx.dev.dev.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)

	encoder := q.ctx.dev.dev.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	groups := global.Groups(local)
	//nolint:gosec // G115: group counts are bounded by validated launch geometry
	computePass.DispatchWorkgroups(uint32(groups[0]), uint32(groups[1]), uint32(groups[2]))
	computePass.End()
	q.ctx.dev.queue.Submit(encoder.Finish(nil))

	e := q.newEvent()
	e.keep = append(e.keep, bindGroup.Release, bufferParams.Release)
	return e, nil
}

func (q *queue) uniform(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := q.ctx.dev.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()
	return buffer
}

// fence blocks until every submission made so far has completed by mapping
// a copy of the sentinel buffer. Callers hold q.mu.
func (q *queue) fence() (err error) {
	const op = "Finish"
	defer recoverNative(op, accel.OutOfResources, &err)
	dev := q.ctx.dev.dev
	staging := dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  accel.SizeofFloat,
	})
	defer staging.Release()

	encoder := dev.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(q.sentinel, 0, staging, 0, accel.SizeofFloat)
	q.ctx.dev.queue.Submit(encoder.Finish(nil))
	if err := staging.MapAsync(dev, wgpu.MapModeRead, 0, accel.SizeofFloat); err != nil {
		return accel.Errorf(op, accel.OutOfResources, "fence: %w", err)
	}
	staging.Unmap()
	return nil
}

func (q *queue) Finish() error {
	if err := q.lock("Finish", nil); err != nil {
		return err
	}
	defer q.mu.Unlock()
	return q.fence()
}

func (q *queue) Release() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return accel.Fail("ReleaseCommandQueue", accel.InvalidCommandQueue)
	}
	q.released = true
	err := q.fence()
	q.sentinel.Release()
	return err
}

// span checks that n floats at the byte offset fit inside gb.
func span(op string, gb *buffer, offset, n int) error {
	if offset < 0 || offset%accel.SizeofFloat != 0 {
		return accel.Errorf(op, accel.InvalidValue, "offset %d is not a non-negative multiple of %d", offset, accel.SizeofFloat)
	}
	if offset+n*accel.SizeofFloat > gb.size {
		return accel.Errorf(op, accel.InvalidValue, "%d floats at offset %d overrun a %d byte buffer", n, offset, gb.size)
	}
	return nil
}

// event completes the first time it is waited on. Resources the command
// still uses are released at that point.
type event struct {
	q         *queue
	profiling bool
	keep      []func()

	once     sync.Once
	err      error
	status   atomic.Int32
	released atomic.Bool
	profile  accel.Profile
}

func (q *queue) newEvent() *event {
	now := time.Now()
	e := &event{q: q, profiling: q.profiling, profile: accel.Profile{Queued: now, Submit: now, Start: now}}
	e.status.Store(int32(accel.CommandSubmitted))
	return e
}

func (e *event) complete(err error) {
	e.once.Do(func() {
		e.profile.End = time.Now()
		e.err = err
		for _, release := range e.keep {
			release()
		}
		e.keep = nil
		if err != nil {
			e.status.Store(int32(accel.CommandFailed))
		} else {
			e.status.Store(int32(accel.CommandComplete))
		}
	})
}

// waitLocked completes the event while the caller holds the queue lock.
func (e *event) waitLocked() error {
	if e.Status() != accel.CommandSubmitted {
		return e.err
	}
	if e.q.released {
		// Release fenced every submission.
		e.complete(nil)
	} else {
		e.complete(e.q.fence())
	}
	return e.err
}

func (e *event) Wait() error {
	if e.Status() == accel.CommandSubmitted {
		e.q.mu.Lock()
		err := e.waitLocked()
		e.q.mu.Unlock()
		return err
	}
	return e.err
}

func (e *event) Status() accel.CommandStatus {
	return accel.CommandStatus(e.status.Load())
}

func (e *event) Profile() (accel.Profile, error) {
	if !e.profiling || e.Status() != accel.CommandComplete {
		return accel.Profile{}, accel.Fail("GetEventProfilingInfo", accel.ProfilingInfoNotAvailable)
	}
	return e.profile, nil
}

func (e *event) Release() error {
	if !e.released.CompareAndSwap(false, true) {
		return accel.Fail("ReleaseEvent", accel.InvalidEvent)
	}
	return nil
}
