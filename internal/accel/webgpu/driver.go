//go:build windows

package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pbnjay/memory"

	"github.com/born-ml/gpulinalg/internal/accel"
)

// DriverName is the registry name of the WebGPU driver.
const DriverName = "wgpu"

// PlatformName is the name of the single platform the driver exposes.
const PlatformName = "WebGPU"

// Default WebGPU limits. Adapters may offer more, but every conformant
// device offers at least these.
const (
	maxWorkgroupInvocations = 256
	maxWorkgroupStorage     = 16384
	maxBufferSize           = 256 << 20
)

// Driver is the WebGPU accelerator driver.
type Driver struct{}

var _ accel.Driver = Driver{}

func init() {
	accel.Register(DriverName, Driver{})
}

// Name returns the registry name.
func (Driver) Name() string { return DriverName }

// Platforms returns the WebGPU platform. Adapters are requested lazily when
// devices are listed.
func (Driver) Platforms() ([]accel.Platform, error) {
	return []accel.Platform{platform{}}, nil
}

type platform struct{}

func (platform) Name() string   { return PlatformName }
func (platform) Vendor() string { return "go-webgpu" }

// Devices requests the high-performance adapter and opens a device on it.
func (platform) Devices(t accel.DeviceType) (devices []accel.Device, err error) {
	const op = "GetDeviceIDs"
	defer recoverNative(op, accel.DeviceNotAvailable, &err)

	if !accel.DeviceTypeGPU.Matches(t) {
		return nil, accel.Errorf(op, accel.DeviceNotFound, "platform %s has no %s device", PlatformName, t)
	}

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, accel.Errorf(op, accel.DeviceNotAvailable, "failed to create instance: %w", err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, accel.Errorf(op, accel.DeviceNotFound, "failed to request adapter: %w", err)
	}
	adapterInfo, err := adapter.GetInfo()
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, accel.Errorf(op, accel.DeviceNotAvailable, "failed to query adapter: %w", err)
	}

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, accel.Errorf(op, accel.DeviceNotAvailable, "failed to request device: %w", err)
	}
	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, accel.Errorf(op, accel.DeviceNotAvailable, "failed to get queue")
	}

	d := &device{
		instance: instance,
		adapter:  adapter,
		dev:      dev,
		queue:    queue,
		info: accel.DeviceInfo{
			Name:             fmt.Sprintf("%v", adapterInfo.Device),
			Vendor:           fmt.Sprintf("%v", adapterInfo.Vendor),
			Platform:         PlatformName,
			Type:             accel.DeviceTypeGPU,
			ComputeUnits:     1,
			MaxWorkGroupSize: maxWorkgroupInvocations,
			MaxWorkItemSizes: [3]int{256, 256, 64},
			GlobalMemSize:    memory.TotalMemory(),
			MaxMemAllocSize:  maxBufferSize,
			LocalMemSize:     maxWorkgroupStorage,
			Extensions:       "wgsl",
		},
	}
	return []accel.Device{d}, nil
}

// device owns the native WebGPU objects of one adapter.
type device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	dev      *wgpu.Device
	queue    *wgpu.Queue
	info     accel.DeviceInfo

	mu       sync.Mutex
	released bool
}

func (d *device) Info() accel.DeviceInfo { return d.info }

func (d *device) CreateContext() (accel.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, accel.Fail("CreateContext", accel.InvalidDevice)
	}
	return newContext(d), nil
}

// Release releases the queue, device, adapter and instance.
func (d *device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return accel.Fail("ReleaseDevice", accel.InvalidDevice)
	}
	d.released = true
	d.queue.Release()
	d.dev.Release()
	d.adapter.Release()
	d.instance.Release()
	return nil
}

// recoverNative converts a panic raised by the native bindings, such as a
// missing wgpu_native library, into a driver error.
func recoverNative(op string, status accel.Status, err *error) {
	if r := recover(); r != nil {
		*err = accel.Errorf(op, status, "native call panicked: %v", r)
	}
}
