// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package linalg runs float32 elementwise and linear-algebra operations on a
// parallel accelerator.
//
// Two drivers are available:
//   - "host": a portable device that runs work-groups on CPU goroutines
//   - "wgpu": WebGPU compute on the system GPU (Windows builds)
//
// Example:
//
//	import "github.com/born-ml/gpulinalg/linalg"
//
//	func main() {
//	    ctx, err := linalg.Initialize(linalg.DefaultConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer ctx.Teardown()
//
//	    var sum []float32
//	    if err := ctx.Add(a, b, &sum, rows, cols); err != nil {
//	        log.Fatal(err)
//	    }
//	}
package linalg

import (
	"github.com/born-ml/gpulinalg/internal/accel"
	_ "github.com/born-ml/gpulinalg/internal/accel/webgpu" // registers "wgpu" where supported
	internallinalg "github.com/born-ml/gpulinalg/internal/linalg"
)

// Context is an initialized accelerator device with the compiled kernel set.
// Operations on one Context are serialized.
type Context = internallinalg.Context

// Config configures Initialize.
type Config = internallinalg.Config

// Stats reports device memory use and kernel activity of a Context.
type Stats = internallinalg.Stats

// KernelStats aggregates the launches of one kernel.
type KernelStats = internallinalg.KernelStats

// AcceleratorFailure is a failed driver call and its status code.
type AcceleratorFailure = internallinalg.AcceleratorFailure

// DeviceInfo describes a compute device and its limits.
type DeviceInfo = accel.DeviceInfo

// DeviceType selects a class of device.
type DeviceType = accel.DeviceType

// Device types.
const (
	DeviceTypeDefault     = accel.DeviceTypeDefault
	DeviceTypeCPU         = accel.DeviceTypeCPU
	DeviceTypeGPU         = accel.DeviceTypeGPU
	DeviceTypeAccelerator = accel.DeviceTypeAccelerator
	DeviceTypeAll         = accel.DeviceTypeAll
)

// Errors returned by Context operations. Accelerator failures are returned
// as *AcceleratorFailure.
var (
	ErrNotInitialized     = internallinalg.ErrNotInitialized
	ErrClosed             = internallinalg.ErrClosed
	ErrShortBuffer        = internallinalg.ErrShortBuffer
	ErrInvalidDims        = internallinalg.ErrInvalidDims
	ErrExceedsDeviceLimit = internallinalg.ErrExceedsDeviceLimit
)

// DefaultConfig returns a configuration for the first accelerator-class
// device of the host driver.
func DefaultConfig() Config {
	return internallinalg.DefaultConfig()
}

// Initialize selects a device and builds the kernel set on it.
// Call Teardown on the returned Context when done.
func Initialize(cfg Config) (*Context, error) {
	return internallinalg.Initialize(cfg)
}

// CreateFilledShape returns n elements set to fill.
func CreateFilledShape(n int, fill float32) []float32 {
	return internallinalg.CreateFilledShape(n, fill)
}

// Devices lists the devices a driver exposes.
func Devices(driver string) ([]DeviceInfo, error) {
	return internallinalg.Devices(driver)
}

// Drivers returns the names of the registered drivers.
func Drivers() []string {
	return accel.Drivers()
}

// PadExtent returns the padded size elementwise operations use for an extent.
func PadExtent(x int) int {
	return internallinalg.PadExtent(x)
}

// StatusOf returns the accelerator status code carried by err: 0 for nil and
// -59 (invalid operation) for errors no driver raised.
func StatusOf(err error) int32 {
	return int32(internallinalg.StatusOf(err))
}
