// Package halrhi implements rhi.Device on top of the gogpu/wgpu HAL.
//
// The HAL follows the WebGPU model: render passes are described when they
// begin, bind groups are immutable and image state is tracked as usages.
// The adapter keeps render pass and framebuffer descriptions on the CPU,
// rebuilds bind groups after descriptor writes and maps image layouts to
// texture usages.
//
// Importing the package registers it as the "hal" backend of rhi.Open.
package halrhi

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/rhi"
	"github.com/gogpu/wgpu/hal"
)

// Device errors.
var (
	// ErrNoAdapter is returned when the backend exposes no GPU.
	ErrNoAdapter = errors.New("halrhi: no GPU adapter found")

	// ErrTimeout is returned when the GPU does not finish work within
	// Options.FrameTimeout.
	ErrTimeout = errors.New("halrhi: timed out waiting for GPU")

	// ErrForeignCommandList is returned when a command list from another
	// device is submitted.
	ErrForeignCommandList = errors.New("halrhi: command list not created by this device")
)

// DefaultFrameTimeout bounds fence waits.
const DefaultFrameTimeout = 5 * time.Second

// Options configures a Device.
type Options struct {
	// Backend selects the HAL backend used by Open.
	// Defaults to gputypes.BackendVulkan if zero.
	Backend gputypes.Backend

	// CompileSPIRV compiles WGSL shaders to SPIR-V with naga before
	// handing them to the HAL.
	CompileSPIRV bool

	// FrameTimeout bounds every wait on the GPU.
	// Defaults to DefaultFrameTimeout if zero.
	FrameTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Backend == 0 {
		o.Backend = gputypes.BackendVulkan
	}
	if o.FrameTimeout == 0 {
		o.FrameTimeout = DefaultFrameTimeout
	}
	return o
}

func slogger() *slog.Logger { return rendergraph.Logger() }

type texture struct {
	tex    hal.Texture // nil for views
	view   hal.TextureView
	desc   rhi.TextureDescription
	parent rhi.TextureHandle
}

// native returns the HAL texture owning the view.
func (d *Device) native(t *texture) hal.Texture {
	if t.tex != nil {
		return t.tex
	}
	if p, ok := d.textures[t.parent]; ok {
		return p.tex
	}
	return nil
}

type buffer struct {
	buf  hal.Buffer
	size uint64
}

type pipeline struct {
	render  hal.RenderPipeline
	compute hal.ComputePipeline
	layout  hal.PipelineLayout
}

type frameSlot struct {
	value uint64
	cmd   hal.CommandBuffer
}

type retired struct {
	value   uint64
	release func()
}

// Device is an rhi.Device backed by a HAL device and queue.
type Device struct {
	opts     Options
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool
	limits   rhi.Limits

	textures     map[rhi.TextureHandle]*texture
	buffers      map[rhi.BufferHandle]*buffer
	samplers     map[rhi.SamplerHandle]hal.Sampler
	shaders      map[rhi.ShaderHandle]hal.ShaderModule
	pipelines    map[rhi.PipelineHandle]*pipeline
	layouts      map[rhi.DescriptorLayoutHandle]*layout
	descriptors  map[rhi.DescriptorHandle]*descriptor
	renderPasses map[rhi.RenderPassHandle]rhi.RenderPassDescription
	framebuffers map[rhi.FramebufferHandle]rhi.FramebufferDescription

	fence     hal.Fence
	submitted uint64
	completed uint64
	frames    map[uint32]frameSlot
	retired   []retired
	destroyed bool
}

// New wraps an open HAL device and queue. The caller keeps ownership of
// device and queue; Destroy releases only the objects created through the
// returned Device.
func New(device hal.Device, queue hal.Queue, opts Options) (*Device, error) {
	d := newDevice(device, queue, opts)
	d.external = true
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func newDevice(device hal.Device, queue hal.Queue, opts Options) *Device {
	limits := gputypes.DefaultLimits()
	return &Device{
		opts:   opts.withDefaults(),
		device: device,
		queue:  queue,
		limits: rhi.Limits{
			MinUniformBufferOffsetAlignment: uint64(limits.MinUniformBufferOffsetAlignment),
			MinStorageBufferOffsetAlignment: uint64(limits.MinStorageBufferOffsetAlignment),
			MaxTextureDimension2D:           limits.MaxTextureDimension2D,
			// The HAL has no binding arrays.
			MaxDescriptorArraySize: 1,
		},
		textures:     make(map[rhi.TextureHandle]*texture),
		buffers:      make(map[rhi.BufferHandle]*buffer),
		samplers:     make(map[rhi.SamplerHandle]hal.Sampler),
		shaders:      make(map[rhi.ShaderHandle]hal.ShaderModule),
		pipelines:    make(map[rhi.PipelineHandle]*pipeline),
		layouts:      make(map[rhi.DescriptorLayoutHandle]*layout),
		descriptors:  make(map[rhi.DescriptorHandle]*descriptor),
		renderPasses: make(map[rhi.RenderPassHandle]rhi.RenderPassDescription),
		framebuffers: make(map[rhi.FramebufferHandle]rhi.FramebufferDescription),
		frames:       make(map[uint32]frameSlot),
	}
}

func (d *Device) init() error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("halrhi: create fence: %w", err)
	}
	d.fence = fence
	return nil
}

// Limits implements rhi.Device.
func (d *Device) Limits() rhi.Limits { return d.limits }

func (d *Device) checkFree(live bool) error {
	if d.destroyed {
		return rhi.ErrDeviceLost
	}
	if live {
		return rhi.ErrHandleInUse
	}
	return nil
}

// === Textures ===

func viewDimension(desc rhi.TextureDescription, layers uint32) gputypes.TextureViewDimension {
	switch {
	case desc.Type == rhi.TextureTypeCubemap && layers == 6:
		return gputypes.TextureViewDimensionCube
	case layers > 1:
		return gputypes.TextureViewDimension2DArray
	default:
		return gputypes.TextureViewDimension2D
	}
}

// CreateTexture implements rhi.Device. A view over every mip and layer is
// created with the texture for attachments and bindings.
func (d *Device) CreateTexture(h rhi.TextureHandle, desc rhi.TextureDescription) error {
	_, live := d.textures[h]
	if err := d.checkFree(live); err != nil {
		return err
	}
	desc = desc.Normalized()
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: desc.LayerCount},
		MipLevelCount: desc.MipLevelCount,
		SampleCount:   desc.SampleCount,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return fmt.Errorf("halrhi: create texture %q: %w", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           desc.Label,
		Format:          desc.Format,
		Dimension:       viewDimension(desc, desc.LayerCount),
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   desc.MipLevelCount,
		ArrayLayerCount: desc.LayerCount,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return fmt.Errorf("halrhi: create view of %q: %w", desc.Label, err)
	}
	d.textures[h] = &texture{tex: tex, view: view, desc: desc}
	return nil
}

// CreateTextureView implements rhi.Device.
func (d *Device) CreateTextureView(h rhi.TextureHandle, desc rhi.TextureViewDescription) error {
	_, live := d.textures[h]
	if err := d.checkFree(live); err != nil {
		return err
	}
	parent, ok := d.textures[desc.Texture]
	if !ok || parent.tex == nil {
		return fmt.Errorf("halrhi: view of texture %d: %w", desc.Texture, rhi.ErrUnknownHandle)
	}
	mips, layers := max(desc.MipLevelCount, 1), max(desc.LayerCount, 1)
	view, err := d.device.CreateTextureView(parent.tex, &hal.TextureViewDescriptor{
		Label:           desc.Label,
		Format:          parent.desc.Format,
		Dimension:       viewDimension(parent.desc, layers),
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    desc.BaseMipLevel,
		MipLevelCount:   mips,
		BaseArrayLayer:  desc.BaseLayer,
		ArrayLayerCount: layers,
	})
	if err != nil {
		return fmt.Errorf("halrhi: create view %q: %w", desc.Label, err)
	}
	d.textures[h] = &texture{view: view, desc: parent.desc, parent: desc.Texture}
	return nil
}

// DestroyTexture implements rhi.Device.
func (d *Device) DestroyTexture(h rhi.TextureHandle) {
	t, ok := d.textures[h]
	if !ok {
		return
	}
	delete(d.textures, h)
	d.device.DestroyTextureView(t.view)
	if t.tex != nil {
		d.device.DestroyTexture(t.tex)
	}
}

// WriteTexture implements rhi.Device.
func (d *Device) WriteTexture(h rhi.TextureHandle, data []byte) error {
	t, ok := d.textures[h]
	if !ok {
		return fmt.Errorf("halrhi: write texture %d: %w", h, rhi.ErrUnknownHandle)
	}
	bpr := t.desc.Width * rhi.BytesPerPixel(t.desc.Format)
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: d.native(t), MipLevel: 0},
		data,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: bpr, RowsPerImage: t.desc.Height},
		&hal.Extent3D{Width: t.desc.Width, Height: t.desc.Height, DepthOrArrayLayers: 1},
	)
	return nil
}

// === Buffers ===

// CreateBuffer implements rhi.Device.
func (d *Device) CreateBuffer(h rhi.BufferHandle, desc rhi.BufferDescription) error {
	_, live := d.buffers[h]
	if err := d.checkFree(live); err != nil {
		return err
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return fmt.Errorf("halrhi: create buffer %q: %w", desc.Label, err)
	}
	d.buffers[h] = &buffer{buf: buf, size: desc.Size}
	if len(desc.Data) > 0 {
		d.queue.WriteBuffer(buf, 0, desc.Data)
	}
	return nil
}

// DestroyBuffer implements rhi.Device.
func (d *Device) DestroyBuffer(h rhi.BufferHandle) {
	b, ok := d.buffers[h]
	if !ok {
		return
	}
	delete(d.buffers, h)
	d.device.DestroyBuffer(b.buf)
}

// WriteBuffer implements rhi.Device.
func (d *Device) WriteBuffer(h rhi.BufferHandle, offset uint64, data []byte) error {
	b, ok := d.buffers[h]
	if !ok {
		return fmt.Errorf("halrhi: write buffer %d: %w", h, rhi.ErrUnknownHandle)
	}
	if len(data) > 0 {
		d.queue.WriteBuffer(b.buf, offset, data)
	}
	return nil
}

// === Samplers ===

// CreateSampler implements rhi.Device.
func (d *Device) CreateSampler(h rhi.SamplerHandle, desc rhi.SamplerDescription) error {
	_, live := d.samplers[h]
	if err := d.checkFree(live); err != nil {
		return err
	}
	s, err := d.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: desc.AddressModeU,
		AddressModeV: desc.AddressModeV,
		AddressModeW: desc.AddressModeW,
		MagFilter:    desc.MagFilter,
		MinFilter:    desc.MinFilter,
		MipmapFilter: desc.MipmapFilter,
	})
	if err != nil {
		return fmt.Errorf("halrhi: create sampler %q: %w", desc.Label, err)
	}
	d.samplers[h] = s
	return nil
}

// DestroySampler implements rhi.Device.
func (d *Device) DestroySampler(h rhi.SamplerHandle) {
	if s, ok := d.samplers[h]; ok {
		delete(d.samplers, h)
		d.device.DestroySampler(s)
	}
}

// === Render targets ===

// CreateRenderPass implements rhi.Device. The HAL describes passes when
// they begin, so only the description is kept.
func (d *Device) CreateRenderPass(h rhi.RenderPassHandle, desc rhi.RenderPassDescription) error {
	_, live := d.renderPasses[h]
	if err := d.checkFree(live); err != nil {
		return err
	}
	if len(desc.ResolveAttachments) > 0 && len(desc.ResolveAttachments) != len(desc.ColorAttachments) {
		return fmt.Errorf("halrhi: render pass %q: %d resolves for %d colors: %w",
			desc.Label, len(desc.ResolveAttachments), len(desc.ColorAttachments), rhi.ErrUnsupported)
	}
	d.renderPasses[h] = desc
	return nil
}

// DestroyRenderPass implements rhi.Device.
func (d *Device) DestroyRenderPass(h rhi.RenderPassHandle) { delete(d.renderPasses, h) }

// CreateFramebuffer implements rhi.Device.
func (d *Device) CreateFramebuffer(h rhi.FramebufferHandle, desc rhi.FramebufferDescription) error {
	_, live := d.framebuffers[h]
	if err := d.checkFree(live); err != nil {
		return err
	}
	rp, ok := d.renderPasses[desc.RenderPass]
	if !ok {
		return fmt.Errorf("halrhi: framebuffer %q: render pass %d: %w", desc.Label, desc.RenderPass, rhi.ErrUnknownHandle)
	}
	want := len(rp.ColorAttachments) + len(rp.ResolveAttachments)
	if rp.DepthAttachment != nil {
		want++
	}
	if len(desc.Attachments) != want {
		return fmt.Errorf("halrhi: framebuffer %q: %d attachments, render pass has %d: %w",
			desc.Label, len(desc.Attachments), want, rhi.ErrUnsupported)
	}
	for _, a := range desc.Attachments {
		if _, ok := d.textures[a]; !ok {
			return fmt.Errorf("halrhi: framebuffer %q: attachment %d: %w", desc.Label, a, rhi.ErrUnknownHandle)
		}
	}
	d.framebuffers[h] = desc
	return nil
}

// DestroyFramebuffer implements rhi.Device.
func (d *Device) DestroyFramebuffer(h rhi.FramebufferHandle) { delete(d.framebuffers, h) }

// === Lifetime ===

func (d *Device) retire(release func()) {
	d.retired = append(d.retired, retired{value: d.submitted + 1, release: release})
}

func (d *Device) collect() {
	n := 0
	for _, r := range d.retired {
		if r.value <= d.completed {
			r.release()
			continue
		}
		d.retired[n] = r
		n++
	}
	clear(d.retired[n:])
	d.retired = d.retired[:n]
}

func (d *Device) wait(value uint64) error {
	if value <= d.completed {
		return nil
	}
	ok, err := d.device.Wait(d.fence, value, d.opts.FrameTimeout)
	if err != nil {
		return fmt.Errorf("halrhi: wait for submission %d: %w", value, err)
	}
	if !ok {
		return fmt.Errorf("%w: submission %d after %v", ErrTimeout, value, d.opts.FrameTimeout)
	}
	d.completed = value
	d.collect()
	return nil
}

// WaitForIdle implements rhi.Device.
func (d *Device) WaitForIdle() error {
	if d.destroyed {
		return rhi.ErrDeviceLost
	}
	return d.wait(d.submitted)
}

// Destroy implements rhi.Device. Objects still alive are released after
// the GPU has gone idle.
func (d *Device) Destroy() {
	if d.destroyed {
		return
	}
	if err := d.WaitForIdle(); err != nil {
		slogger().Warn("halrhi: destroy without idle GPU", "err", err)
	}
	d.completed = d.submitted
	d.collect()

	for h := range d.descriptors {
		d.DestroyDescriptor(h)
	}
	for h := range d.pipelines {
		d.DestroyPipeline(h)
	}
	for h := range d.layouts {
		d.DestroyDescriptorLayout(h)
	}
	for h := range d.shaders {
		d.DestroyShader(h)
	}
	for h, t := range d.textures {
		if t.tex == nil {
			d.DestroyTexture(h)
		}
	}
	for h := range d.textures {
		d.DestroyTexture(h)
	}
	for h := range d.buffers {
		d.DestroyBuffer(h)
	}
	for h := range d.samplers {
		d.DestroySampler(h)
	}
	clear(d.renderPasses)
	clear(d.framebuffers)
	for _, f := range d.frames {
		if f.cmd != nil {
			d.device.FreeCommandBuffer(f.cmd)
		}
	}
	clear(d.frames)
	if d.fence != nil {
		d.device.DestroyFence(d.fence)
	}

	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.destroyed = true
	slogger().Info("halrhi: device destroyed", "submissions", d.submitted)
}

var _ rhi.Device = (*Device)(nil)
