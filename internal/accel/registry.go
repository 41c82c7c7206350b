package accel

import (
	"fmt"
	"sort"
	"sync"
)

var (
	driversMu sync.RWMutex
	drivers   = map[string]Driver{}
)

// Register makes a driver available by name. Passing nil removes it.
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		delete(drivers, name)
		return
	}
	drivers[name] = d
}

// Lookup returns the driver registered under name.
func Lookup(name string) (Driver, error) {
	driversMu.RLock()
	d, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, Errorf("Lookup", InvalidPlatform, "no driver %q (registered: %v)", name, Drivers())
	}
	return d, nil
}

// Drivers returns the registered driver names in sorted order.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SelectDevice returns the first device of type t on the first platform of
// d, the way the engine acquires its accelerator.
func SelectDevice(d Driver, t DeviceType) (Platform, Device, error) {
	platforms, err := d.Platforms()
	if err != nil {
		return nil, nil, err
	}
	if len(platforms) == 0 {
		return nil, nil, Errorf("GetPlatformIDs", InvalidPlatform, "driver %s exposes no platforms", d.Name())
	}
	p := platforms[0]
	devices, err := p.Devices(t)
	if err != nil {
		return nil, nil, err
	}
	if len(devices) == 0 {
		return nil, nil, Errorf("GetDeviceIDs", DeviceNotFound, "no %s device on platform %s", t, p.Name())
	}
	for _, extra := range devices[1:] {
		if err := extra.Release(); err != nil {
			return nil, nil, fmt.Errorf("release unused device: %w", err)
		}
	}
	return p, devices[0], nil
}
