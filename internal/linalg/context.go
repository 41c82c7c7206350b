// Package linalg runs float32 elementwise and linear-algebra operations on
// an accelerator device. A Context owns the selected device, its command
// queue and the compiled kernel set; each operation stages its operands
// into fresh device buffers, launches one kernel and reads the result back
// before returning.
package linalg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/born-ml/gpulinalg/internal/accel"
	"github.com/born-ml/gpulinalg/internal/kernels"
)

// Context is an initialized accelerator device with the compiled kernel
// set. Operations on one Context are serialized by an internal mutex; the
// zero value is not usable and reports ErrNotInitialized.
type Context struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	device  accel.Device
	info    accel.DeviceInfo
	ctx     accel.Context
	queue   accel.Queue
	program accel.Program
	kernels map[string]accel.Kernel
	stats   *statsRecorder
	closed  bool

	// lastTrace is the state sequence of the most recent dispatch.
	lastTrace []callState
}

// Initialize selects the first device of cfg.DeviceType on the first
// platform of the configured driver, creates a context and a profiling
// in-order queue on it, and builds the kernel program.
func Initialize(cfg Config) (*Context, error) {
	cfg = cfg.withDefaults()
	c := &Context{
		cfg:     cfg,
		log:     cfg.Logger,
		kernels: make(map[string]accel.Kernel, len(kernels.Names)),
		stats:   newStatsRecorder(),
	}
	if err := c.initialize(); err != nil {
		err = errors.Join(err, c.releaseAll())
		c.abort("initialize", err)
		return nil, fmt.Errorf("linalg: initialize: %w", err)
	}
	c.log.Info().
		Str("platform", c.info.Platform).
		Str("device", c.info.Name).
		Stringer("type", c.info.Type).
		Int("max_work_group_size", c.info.MaxWorkGroupSize).
		Msg("accelerator selected")
	return c, nil
}

func (c *Context) initialize() error {
	driver, err := c.cfg.driver()
	if err != nil {
		return err
	}
	_, c.device, err = accel.SelectDevice(driver, c.cfg.DeviceType)
	if err != nil {
		return err
	}
	c.info = c.device.Info()
	if c.ctx, err = c.device.CreateContext(); err != nil {
		return err
	}
	if c.queue, err = c.ctx.CreateQueue(accel.QueueProfilingEnable); err != nil {
		return err
	}
	if c.program, err = c.ctx.CreateProgram(kernels.Source); err != nil {
		return err
	}
	err = c.program.Build("")
	c.log.Debug().Str("log", c.program.BuildLog()).Msg("program built")
	if err != nil {
		return err
	}
	for _, name := range kernels.Names {
		k, err := c.program.CreateKernel(name)
		if err != nil {
			return err
		}
		c.kernels[name] = k
	}
	return nil
}

// Teardown releases the kernels, program, queue, context and device, in
// that order. Operations after Teardown return ErrClosed.
func (c *Context) Teardown() error {
	if c == nil {
		return fmt.Errorf("linalg: teardown: %w", ErrNotInitialized)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stats == nil {
		return fmt.Errorf("linalg: teardown: %w", ErrNotInitialized)
	}
	if c.closed {
		return fmt.Errorf("linalg: teardown: %w", ErrClosed)
	}
	c.closed = true
	if err := c.releaseAll(); err != nil {
		return fmt.Errorf("linalg: teardown: %w", err)
	}
	c.log.Debug().Msg("accelerator released")
	return nil
}

func (c *Context) releaseAll() error {
	var errs []error
	for _, name := range kernels.Names {
		if k, ok := c.kernels[name]; ok {
			errs = append(errs, k.Release())
			delete(c.kernels, name)
		}
	}
	if c.program != nil {
		errs = append(errs, c.program.Release())
		c.program = nil
	}
	if c.queue != nil {
		errs = append(errs, c.queue.Release())
		c.queue = nil
	}
	if c.ctx != nil {
		errs = append(errs, c.ctx.Release())
		c.ctx = nil
	}
	if c.device != nil {
		errs = append(errs, c.device.Release())
		c.device = nil
	}
	return errors.Join(errs...)
}

// ready reports whether operations may run. Callers hold c.mu.
func (c *Context) ready() error {
	switch {
	case c.stats == nil:
		return ErrNotInitialized
	case c.closed:
		return ErrClosed
	}
	return nil
}

// Device describes the selected device.
func (c *Context) Device() accel.DeviceInfo {
	return c.info
}

// Stats returns memory and kernel statistics.
func (c *Context) Stats() Stats {
	if c.stats == nil {
		return Stats{}
	}
	return c.stats.snapshot()
}

// Process hooks used when AbortOnFailure terminates the process.
var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

// abort applies the AbortOnFailure policy to an accelerator failure. An
// aborting failure always reports its status code, on stderr when the
// logger is disabled.
func (c *Context) abort(op string, err error) {
	status := accel.StatusOf(err)
	if !c.cfg.AbortOnFailure {
		c.log.Error().Err(err).Str("op", op).Int32("status", int32(status)).Msg("accelerator failure")
		return
	}
	if ev := c.log.WithLevel(zerolog.FatalLevel); ev.Enabled() {
		ev.Err(err).Str("op", op).Int32("status", int32(status)).Msg("accelerator failure")
	} else {
		fmt.Fprintf(stderr, "linalg: %s: accelerator failure, status %d: %v\n", op, status, err)
	}
	exit(1)
}

// Devices lists the devices of every platform of the named driver.
func Devices(driver string) ([]accel.DeviceInfo, error) {
	d, err := accel.Lookup(driver)
	if err != nil {
		return nil, fmt.Errorf("linalg: devices: %w", err)
	}
	platforms, err := d.Platforms()
	if err != nil {
		return nil, fmt.Errorf("linalg: devices: %w", err)
	}
	var infos []accel.DeviceInfo
	for _, p := range platforms {
		devs, err := p.Devices(accel.DeviceTypeAll)
		if accel.StatusOf(err) == accel.DeviceNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("linalg: devices: %w", err)
		}
		for _, dev := range devs {
			infos = append(infos, dev.Info())
			_ = dev.Release()
		}
	}
	return infos, nil
}
