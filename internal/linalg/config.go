package linalg

import (
	"github.com/rs/zerolog"

	"github.com/born-ml/gpulinalg/internal/accel"
	"github.com/born-ml/gpulinalg/internal/accel/host"
)

// DefaultLocalSize is the work-group size of elementwise launches.
const DefaultLocalSize = 32

// Config configures a Context.
type Config struct {
	// Driver names the registered accelerator driver ("host" or "wgpu").
	Driver string

	// Backend, when set, is used instead of looking Driver up in the
	// registry.
	Backend accel.Driver

	// DeviceType selects the device class on the first platform.
	DeviceType accel.DeviceType

	// Logger receives device selection, geometry and failure events.
	Logger zerolog.Logger

	// AbortOnFailure terminates the process with status 1 on any
	// accelerator failure instead of returning it. The failure is logged
	// at fatal level, or written to stderr when Logger is disabled.
	AbortOnFailure bool

	// HostFallback recomputes an operation on the host when the
	// accelerator fails.
	HostFallback bool

	// Workers bounds the goroutines the host driver runs work-groups on.
	// Zero keeps the driver default of one worker per CPU.
	Workers int

	// LocalSize is the work-group size of elementwise launches.
	LocalSize int
}

// DefaultConfig returns a configuration for the first accelerator-class
// device of the host driver.
func DefaultConfig() Config {
	return Config{
		Driver:     host.DriverName,
		DeviceType: accel.DeviceTypeAccelerator,
		Logger:     zerolog.Nop(),
		LocalSize:  DefaultLocalSize,
	}
}

// driver resolves the accelerator driver for the configuration.
func (cfg Config) driver() (accel.Driver, error) {
	if cfg.Backend != nil {
		return cfg.Backend, nil
	}
	name := cfg.Driver
	if name == "" {
		name = host.DriverName
	}
	if name == host.DriverName && cfg.Workers > 0 {
		hc := host.DefaultConfig()
		hc.Parallel.NumWorkers = cfg.Workers
		hc.Parallel.Enabled = cfg.Workers > 1
		return host.New(hc), nil
	}
	return accel.Lookup(name)
}

func (cfg Config) withDefaults() Config {
	if cfg.LocalSize <= 0 {
		cfg.LocalSize = DefaultLocalSize
	}
	return cfg
}
