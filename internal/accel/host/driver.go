// Package host implements an accelerator driver that executes kernels on the
// host CPU. Work-groups run in parallel goroutines; the work-items of one
// group run in lockstep phases separated by barriers, with per-group local
// memory. It is always available and serves as the portable default device.
package host

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/pbnjay/memory"
	"golang.org/x/sys/cpu"

	"github.com/born-ml/gpulinalg/internal/accel"
	"github.com/born-ml/gpulinalg/internal/parallel"
)

// DriverName is the registry name of the host driver.
const DriverName = "host"

// PlatformName is the name of the single platform the driver exposes.
const PlatformName = "Host Emulator"

// Config controls the emulated device.
type Config struct {
	// DeviceType is the type the emulated device reports.
	DeviceType accel.DeviceType
	// MaxWorkGroupSize bounds the number of items in one work-group.
	MaxWorkGroupSize int
	// MaxWorkItemSizes bounds each local extent.
	MaxWorkItemSizes [3]int
	// LocalMemSize bounds the scratch bytes one work-group may bind.
	LocalMemSize uint64
	// GlobalMemSize bounds the bytes of all live buffers (0 = host RAM).
	GlobalMemSize uint64
	// MaxMemAllocSize bounds a single buffer (0 = GlobalMemSize/4).
	MaxMemAllocSize uint64
	// Parallel controls how work-groups are spread over goroutines.
	Parallel parallel.Config
	// FaultHook, when set, is called with the name of every driver call
	// before it runs; a non-nil return fails that call. Tests use it to
	// exercise failure paths.
	FaultHook func(op string) error
}

// DefaultConfig returns an accelerator-class device sized after the host.
func DefaultConfig() Config {
	return Config{
		DeviceType:       accel.DeviceTypeAccelerator,
		MaxWorkGroupSize: 1024,
		MaxWorkItemSizes: [3]int{1024, 1024, 64},
		LocalMemSize:     64 * 1024,
		Parallel:         parallel.DefaultConfig(),
	}
}

// Driver is the host accelerator driver.
type Driver struct {
	cfg Config
}

var _ accel.Driver = (*Driver)(nil)

func init() {
	accel.Register(DriverName, New(DefaultConfig()))
}

// New creates a host driver with the given device configuration.
func New(cfg Config) *Driver {
	if cfg.GlobalMemSize == 0 {
		cfg.GlobalMemSize = memory.TotalMemory()
	}
	if cfg.MaxMemAllocSize == 0 {
		cfg.MaxMemAllocSize = cfg.GlobalMemSize / 4
	}
	if cfg.MaxWorkGroupSize == 0 {
		cfg.MaxWorkGroupSize = DefaultConfig().MaxWorkGroupSize
	}
	if cfg.MaxWorkItemSizes == [3]int{} {
		cfg.MaxWorkItemSizes = DefaultConfig().MaxWorkItemSizes
	}
	if cfg.LocalMemSize == 0 {
		cfg.LocalMemSize = DefaultConfig().LocalMemSize
	}
	return &Driver{cfg: cfg}
}

// Name returns the registry name.
func (d *Driver) Name() string { return DriverName }

// Platforms returns the single host platform.
func (d *Driver) Platforms() ([]accel.Platform, error) {
	if err := d.cfg.fault("GetPlatformIDs"); err != nil {
		return nil, err
	}
	return []accel.Platform{&platform{cfg: d.cfg}}, nil
}

type platform struct {
	cfg Config
}

func (p *platform) Name() string   { return PlatformName }
func (p *platform) Vendor() string { return "gpulinalg" }

func (p *platform) Devices(t accel.DeviceType) ([]accel.Device, error) {
	if err := p.cfg.fault("GetDeviceIDs"); err != nil {
		return nil, err
	}
	if !p.cfg.DeviceType.Matches(t) {
		return nil, accel.Errorf("GetDeviceIDs", accel.DeviceNotFound, "platform %s has no %s device", PlatformName, t)
	}
	return []accel.Device{&device{cfg: p.cfg, info: p.deviceInfo()}}, nil
}

func (p *platform) deviceInfo() accel.DeviceInfo {
	return accel.DeviceInfo{
		Name:             fmt.Sprintf("%s %s", runtime.GOARCH, PlatformName),
		Vendor:           "gpulinalg",
		Platform:         PlatformName,
		Type:             p.cfg.DeviceType,
		ComputeUnits:     runtime.NumCPU(),
		MaxWorkGroupSize: p.cfg.MaxWorkGroupSize,
		MaxWorkItemSizes: p.cfg.MaxWorkItemSizes,
		GlobalMemSize:    p.cfg.GlobalMemSize,
		MaxMemAllocSize:  p.cfg.MaxMemAllocSize,
		LocalMemSize:     p.cfg.LocalMemSize,
		Extensions:       cpuFeatures(),
	}
}

// cpuFeatures lists the SIMD extensions of the host processor.
func cpuFeatures() string {
	var f []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE41 {
			f = append(f, "sse4.1")
		}
		if cpu.X86.HasAVX {
			f = append(f, "avx")
		}
		if cpu.X86.HasAVX2 {
			f = append(f, "avx2")
		}
		if cpu.X86.HasFMA {
			f = append(f, "fma")
		}
		if cpu.X86.HasAVX512F {
			f = append(f, "avx512f")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			f = append(f, "neon")
		}
		if cpu.ARM64.HasFPHP {
			f = append(f, "fp16")
		}
		if cpu.ARM64.HasSVE {
			f = append(f, "sve")
		}
	}
	return strings.Join(f, " ")
}

func (c Config) fault(op string) error {
	if c.FaultHook == nil {
		return nil
	}
	err := c.FaultHook(op)
	if err == nil {
		return nil
	}
	var ae *accel.Error
	if errors.As(err, &ae) {
		return err
	}
	return &accel.Error{Op: op, Status: accel.InvalidOperation, Err: err}
}

type device struct {
	cfg  Config
	info accel.DeviceInfo
}

func (d *device) Info() accel.DeviceInfo { return d.info }

func (d *device) CreateContext() (accel.Context, error) {
	if err := d.cfg.fault("CreateContext"); err != nil {
		return nil, err
	}
	return newContext(d), nil
}

func (d *device) Release() error { return nil }
