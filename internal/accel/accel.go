// Package accel defines the accelerator driver contract used by the linear
// algebra engine: platforms, devices, contexts, in-order command queues,
// programs, kernels, buffers and completion events.
//
// The model follows the classic compute-API object graph. Every object that is
// created must be released by its owner; drivers do not reference count on the
// caller's behalf.
package accel

import "time"

// DeviceType selects a class of device during discovery.
type DeviceType int

const (
	// DeviceTypeDefault selects the driver's preferred device.
	DeviceTypeDefault DeviceType = iota
	// DeviceTypeCPU selects host processors.
	DeviceTypeCPU
	// DeviceTypeGPU selects graphics processors.
	DeviceTypeGPU
	// DeviceTypeAccelerator selects dedicated compute accelerators.
	DeviceTypeAccelerator
	// DeviceTypeAll matches every device.
	DeviceTypeAll
)

// String returns the device type name.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeDefault:
		return "default"
	case DeviceTypeCPU:
		return "cpu"
	case DeviceTypeGPU:
		return "gpu"
	case DeviceTypeAccelerator:
		return "accelerator"
	case DeviceTypeAll:
		return "all"
	default:
		return "unknown"
	}
}

// Matches reports whether a device of type t satisfies the requested type.
// GPU and accelerator devices both satisfy a request for an accelerator.
func (t DeviceType) Matches(want DeviceType) bool {
	switch want {
	case DeviceTypeAll, DeviceTypeDefault:
		return true
	case DeviceTypeAccelerator:
		return t == DeviceTypeAccelerator || t == DeviceTypeGPU
	default:
		return t == want
	}
}

// MemFlags describe how kernels may access a buffer.
type MemFlags uint32

const (
	// MemReadWrite allows kernels to read and write the buffer.
	MemReadWrite MemFlags = 1 << iota
	// MemWriteOnly allows kernels to write the buffer only.
	MemWriteOnly
	// MemReadOnly allows kernels to read the buffer only.
	MemReadOnly
	// MemAllocHostPtr asks for host-visible backing memory.
	MemAllocHostPtr
)

// Readable reports whether kernels may read a buffer with these flags.
func (f MemFlags) Readable() bool {
	return f&MemWriteOnly == 0
}

// Writable reports whether kernels may write a buffer with these flags.
func (f MemFlags) Writable() bool {
	return f&MemReadOnly == 0
}

// QueueProperties configure a command queue.
type QueueProperties uint32

const (
	// QueueProfilingEnable records timestamps on every completion event.
	QueueProfilingEnable QueueProperties = 1 << iota
)

// CommandStatus is the execution state of an enqueued command.
type CommandStatus int

const (
	// CommandComplete means the command finished.
	CommandComplete CommandStatus = iota
	// CommandRunning means the command is executing.
	CommandRunning
	// CommandSubmitted means the command was handed to the device.
	CommandSubmitted
	// CommandQueued means the command waits in the queue.
	CommandQueued
	// CommandFailed means the command terminated abnormally.
	CommandFailed
)

// String returns the status name.
func (s CommandStatus) String() string {
	switch s {
	case CommandComplete:
		return "complete"
	case CommandRunning:
		return "running"
	case CommandSubmitted:
		return "submitted"
	case CommandQueued:
		return "queued"
	case CommandFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a compute device and its limits.
type DeviceInfo struct {
	Name             string
	Vendor           string
	Platform         string
	Type             DeviceType
	ComputeUnits     int
	MaxWorkGroupSize int
	MaxWorkItemSizes [3]int
	GlobalMemSize    uint64
	MaxMemAllocSize  uint64
	LocalMemSize     uint64
	Extensions       string
}

// Driver is an accelerator implementation that can be discovered at runtime.
type Driver interface {
	// Name returns the driver identifier (e.g. "host", "wgpu").
	Name() string
	// Platforms lists the compute platforms the driver exposes, in order.
	Platforms() ([]Platform, error)
}

// Platform groups devices of one vendor implementation.
type Platform interface {
	Name() string
	Vendor() string
	// Devices returns the devices matching t, in discovery order.
	// It returns a DeviceNotFound error when none match.
	Devices(t DeviceType) ([]Device, error)
}

// Device is a selected compute device.
type Device interface {
	Info() DeviceInfo
	// CreateContext creates an execution context over this device.
	CreateContext() (Context, error)
	Release() error
}

// Context owns buffers, queues and programs for one device.
type Context interface {
	Device() Device
	CreateQueue(props QueueProperties) (Queue, error)
	// CreateBuffer allocates a zero-filled device region of size bytes.
	CreateBuffer(flags MemFlags, size int) (Buffer, error)
	// CreateProgram wraps kernel source text; it must be built before use.
	CreateProgram(source string) (Program, error)
	Release() error
}

// Queue is an in-order command queue.
type Queue interface {
	// EnqueueWrite copies src into buf at the byte offset. When blocking is
	// true the call returns after the copy completes.
	EnqueueWrite(buf Buffer, blocking bool, offset int, src []float32, wait []Event) (Event, error)
	// EnqueueRead copies len(dst) floats from buf at the byte offset into dst.
	EnqueueRead(buf Buffer, blocking bool, offset int, dst []float32, wait []Event) (Event, error)
	// EnqueueNDRange launches k over global with work-groups of local.
	// Execution is deferred until every event in wait has completed.
	EnqueueNDRange(k Kernel, global, local Range, wait []Event) (Event, error)
	// Finish blocks until every enqueued command has completed.
	Finish() error
	Release() error
}

// Program is kernel source compiled for one context.
type Program interface {
	Build(options string) error
	BuildLog() string
	CreateKernel(name string) (Kernel, error)
	Release() error
}

// Kernel is one entry point of a built program with its bound arguments.
type Kernel interface {
	Name() string
	NumArgs() int
	// SetArg binds argument index. Values are Buffer, LocalMem or uint32.
	SetArg(index int, value any) error
	Release() error
}

// Buffer is a device memory region.
type Buffer interface {
	// Size returns the region size in bytes.
	Size() int
	Flags() MemFlags
	Release() error
}

// Event is the completion token of one enqueued command.
type Event interface {
	// Wait blocks until the command finishes and returns its failure, if any.
	Wait() error
	Status() CommandStatus
	// Profile returns the command timestamps. It fails with
	// ProfilingInfoNotAvailable unless the queue enables profiling.
	Profile() (Profile, error)
	Release() error
}

// LocalMem binds a per-work-group scratch region of the given byte size.
type LocalMem int

// Profile holds the timestamps of one command.
type Profile struct {
	Queued time.Time
	Submit time.Time
	Start  time.Time
	End    time.Time
}

// Duration returns the device execution time of the command.
func (p Profile) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// SizeofFloat is the byte size of one element; only float32 data is supported.
const SizeofFloat = 4
