package rhi

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Registered backend names.
const (
	BackendHAL  = "hal"
	BackendMock = "mock"
)

// ErrBackendNotAvailable is returned when no usable backend is registered.
var ErrBackendNotAvailable = errors.New("rhi: backend not available")

// DeviceFactory opens a new device.
type DeviceFactory func() (Device, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]DeviceFactory)
	// Priority order for Open with an empty name (first that opens wins).
	backendPriority = []string{BackendHAL, BackendMock}
)

// Register registers a device factory under name, replacing any previous
// registration. Backends call it from init functions.
func Register(name string, factory DeviceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend. This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered reports whether a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open opens a device from the named backend. An empty name tries the
// backends in priority order and returns the first device that opens.
func Open(name string) (Device, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if name != "" {
		factory, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
		}
		return factory()
	}

	var errs []error
	for _, n := range backendPriority {
		factory, ok := factories[n]
		if !ok {
			continue
		}
		d, err := factory()
		if err == nil {
			return d, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", n, err))
	}
	if len(errs) == 0 {
		return nil, ErrBackendNotAvailable
	}
	return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}

// MustOpen opens a device or panics.
func MustOpen(name string) Device {
	d, err := Open(name)
	if err != nil {
		panic(err)
	}
	return d
}
