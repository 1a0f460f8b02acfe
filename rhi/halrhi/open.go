package halrhi

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rhi"
	"github.com/gogpu/wgpu/hal"

	_ "github.com/gogpu/wgpu/hal/vulkan" // register the Vulkan HAL backend
)

// ErrProvider is returned when a device provider does not expose HAL
// objects.
var ErrProvider = errors.New("halrhi: provider does not expose a HAL device")

func init() {
	rhi.Register(rhi.BackendHAL, func() (rhi.Device, error) {
		return Open(Options{})
	})
}

// Open creates an instance of the configured backend and opens its first
// discrete or integrated GPU, falling back to the first adapter.
func Open(opts Options) (*Device, error) {
	opts = opts.withDefaults()
	backend, ok := hal.GetBackend(opts.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: HAL backend %v", rhi.ErrBackendNotAvailable, opts.Backend)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("halrhi: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halrhi: open %q: %w", selected.Info.Name, err)
	}

	d := newDevice(open.Device, open.Queue, opts)
	d.instance = instance
	if err := d.init(); err != nil {
		open.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	slogger().Info("halrhi: device opened", "adapter", selected.Info.Name, "backend", opts.Backend)
	return d, nil
}

// FromProvider shares the HAL device of a gpucontext provider, such as a
// gogpu window. The provider must expose HalDevice() and HalQueue()
// returning hal.Device and hal.Queue.
func FromProvider(provider gpucontext.DeviceProvider, opts Options) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrProvider, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrProvider, hp.HalQueue())
	}
	return New(device, queue, opts)
}
