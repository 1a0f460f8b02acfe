// Package mock provides a recording rhi.Device for tests and tooling.
//
// The device validates handles the way a real backend would (live handles,
// parents of views, descriptor bindings) but creates nothing on a GPU. Every
// command list it hands out records its commands for later inspection.
package mock

import (
	"fmt"
	"slices"

	"github.com/gogpu/rendergraph/rhi"
)

func init() {
	rhi.Register(rhi.BackendMock, func() (rhi.Device, error) { return New(), nil })
}

// Buffer is the recorded state of a buffer.
type Buffer struct {
	Desc rhi.BufferDescription
	Data []byte
}

// Descriptor is the recorded state of a descriptor set, keyed by
// {binding, array element}.
type Descriptor struct {
	Layout   rhi.DescriptorLayoutHandle
	Textures map[[2]uint32]rhi.TextureHandle
	Samplers map[[2]uint32]rhi.SamplerHandle
	Buffers  map[[2]uint32]rhi.BufferRange
}

// Texture returns the texture written at binding[element].
func (d *Descriptor) Texture(binding, element uint32) rhi.TextureHandle {
	return d.Textures[[2]uint32{binding, element}]
}

// Sampler returns the sampler written at binding[element].
func (d *Descriptor) Sampler(binding, element uint32) rhi.SamplerHandle {
	return d.Samplers[[2]uint32{binding, element}]
}

// Device is a recording rhi.Device. Its exported maps hold every live
// object and may be inspected directly by tests.
type Device struct {
	limits rhi.Limits

	Textures          map[rhi.TextureHandle]rhi.TextureDescription
	Views             map[rhi.TextureHandle]rhi.TextureViewDescription
	TextureData       map[rhi.TextureHandle][]byte
	Buffers           map[rhi.BufferHandle]*Buffer
	Samplers          map[rhi.SamplerHandle]rhi.SamplerDescription
	Shaders           map[rhi.ShaderHandle]rhi.ShaderDescription
	GraphicsPipelines map[rhi.PipelineHandle]rhi.GraphicsPipelineDescription
	ComputePipelines  map[rhi.PipelineHandle]rhi.ComputePipelineDescription
	DescriptorLayouts map[rhi.DescriptorLayoutHandle]rhi.DescriptorLayoutDescription
	Descriptors       map[rhi.DescriptorHandle]*Descriptor
	RenderPasses      map[rhi.RenderPassHandle]rhi.RenderPassDescription
	Framebuffers      map[rhi.FramebufferHandle]rhi.FramebufferDescription

	// Calls lists every Create and Destroy call as "Op handle".
	Calls []string

	// FrameWaits lists the frame indices passed to BeginFrame.
	FrameWaits []uint32

	// Submitted holds the command lists passed to EndFrame.
	Submitted []*CommandList

	// Immediate holds the command lists passed to SubmitImmediate.
	Immediate []*CommandList

	failures  map[string]error
	destroyed bool
}

// New returns a device with rhi.DefaultLimits.
func New() *Device {
	return NewWithLimits(rhi.DefaultLimits())
}

// NewWithLimits returns a device reporting the given limits.
func NewWithLimits(limits rhi.Limits) *Device {
	return &Device{
		limits:            limits,
		Textures:          make(map[rhi.TextureHandle]rhi.TextureDescription),
		Views:             make(map[rhi.TextureHandle]rhi.TextureViewDescription),
		TextureData:       make(map[rhi.TextureHandle][]byte),
		Buffers:           make(map[rhi.BufferHandle]*Buffer),
		Samplers:          make(map[rhi.SamplerHandle]rhi.SamplerDescription),
		Shaders:           make(map[rhi.ShaderHandle]rhi.ShaderDescription),
		GraphicsPipelines: make(map[rhi.PipelineHandle]rhi.GraphicsPipelineDescription),
		ComputePipelines:  make(map[rhi.PipelineHandle]rhi.ComputePipelineDescription),
		DescriptorLayouts: make(map[rhi.DescriptorLayoutHandle]rhi.DescriptorLayoutDescription),
		Descriptors:       make(map[rhi.DescriptorHandle]*Descriptor),
		RenderPasses:      make(map[rhi.RenderPassHandle]rhi.RenderPassDescription),
		Framebuffers:      make(map[rhi.FramebufferHandle]rhi.FramebufferDescription),
		failures:          make(map[string]error),
	}
}

// Fail makes the next call of the named method return err.
func (d *Device) Fail(method string, err error) {
	d.failures[method] = err
}

// CallCount returns how many recorded calls start with op.
func (d *Device) CallCount(op string) int {
	n := 0
	for _, c := range d.Calls {
		if len(c) > len(op) && c[:len(op)] == op && c[len(op)] == ' ' {
			n++
		}
	}
	return n
}

func (d *Device) check(method string) error {
	if d.destroyed {
		return rhi.ErrDeviceLost
	}
	if err, ok := d.failures[method]; ok {
		delete(d.failures, method)
		return err
	}
	return nil
}

func (d *Device) record(op string, h uint32) {
	d.Calls = append(d.Calls, fmt.Sprintf("%s %d", op, h))
}

func (d *Device) textureExists(h rhi.TextureHandle) bool {
	_, tex := d.Textures[h]
	_, view := d.Views[h]
	return tex || view
}

// Limits implements rhi.Device.
func (d *Device) Limits() rhi.Limits { return d.limits }

// CreateTexture implements rhi.Device.
func (d *Device) CreateTexture(h rhi.TextureHandle, desc rhi.TextureDescription) error {
	if err := d.check("CreateTexture"); err != nil {
		return err
	}
	if h == rhi.InvalidHandle {
		return rhi.ErrUnknownHandle
	}
	if d.textureExists(h) {
		return fmt.Errorf("texture %d: %w", h, rhi.ErrHandleInUse)
	}
	d.Textures[h] = desc.Normalized()
	d.record("CreateTexture", uint32(h))
	return nil
}

// CreateTextureView implements rhi.Device.
func (d *Device) CreateTextureView(h rhi.TextureHandle, desc rhi.TextureViewDescription) error {
	if err := d.check("CreateTextureView"); err != nil {
		return err
	}
	if d.textureExists(h) || h == rhi.InvalidHandle {
		return fmt.Errorf("texture view %d: %w", h, rhi.ErrHandleInUse)
	}
	if _, ok := d.Textures[desc.Texture]; !ok {
		return fmt.Errorf("view parent %d: %w", desc.Texture, rhi.ErrUnknownHandle)
	}
	d.Views[h] = desc
	d.record("CreateTextureView", uint32(h))
	return nil
}

// DestroyTexture implements rhi.Device.
func (d *Device) DestroyTexture(h rhi.TextureHandle) {
	if !d.textureExists(h) {
		return
	}
	delete(d.Textures, h)
	delete(d.Views, h)
	delete(d.TextureData, h)
	d.record("DestroyTexture", uint32(h))
}

// WriteTexture implements rhi.Device.
func (d *Device) WriteTexture(h rhi.TextureHandle, data []byte) error {
	if err := d.check("WriteTexture"); err != nil {
		return err
	}
	desc, ok := d.Textures[h]
	if !ok {
		return fmt.Errorf("texture %d: %w", h, rhi.ErrUnknownHandle)
	}
	want := int(desc.Width * desc.Height * rhi.BytesPerPixel(desc.Format))
	if len(data) != want {
		return fmt.Errorf("texture %d: got %d bytes, want %d", h, len(data), want)
	}
	d.TextureData[h] = slices.Clone(data)
	return nil
}

// CreateBuffer implements rhi.Device.
func (d *Device) CreateBuffer(h rhi.BufferHandle, desc rhi.BufferDescription) error {
	if err := d.check("CreateBuffer"); err != nil {
		return err
	}
	if _, ok := d.Buffers[h]; ok || h == rhi.InvalidHandle {
		return fmt.Errorf("buffer %d: %w", h, rhi.ErrHandleInUse)
	}
	if uint64(len(desc.Data)) > desc.Size {
		return fmt.Errorf("buffer %d: initial data %d bytes exceeds size %d", h, len(desc.Data), desc.Size)
	}
	data := make([]byte, desc.Size)
	copy(data, desc.Data)
	d.Buffers[h] = &Buffer{Desc: desc, Data: data}
	d.record("CreateBuffer", uint32(h))
	return nil
}

// DestroyBuffer implements rhi.Device.
func (d *Device) DestroyBuffer(h rhi.BufferHandle) {
	if _, ok := d.Buffers[h]; !ok {
		return
	}
	delete(d.Buffers, h)
	d.record("DestroyBuffer", uint32(h))
}

// WriteBuffer implements rhi.Device.
func (d *Device) WriteBuffer(h rhi.BufferHandle, offset uint64, data []byte) error {
	if err := d.check("WriteBuffer"); err != nil {
		return err
	}
	b, ok := d.Buffers[h]
	if !ok {
		return fmt.Errorf("buffer %d: %w", h, rhi.ErrUnknownHandle)
	}
	if offset+uint64(len(data)) > uint64(len(b.Data)) {
		return fmt.Errorf("buffer %d: write [%d, %d) out of range %d",
			h, offset, offset+uint64(len(data)), len(b.Data))
	}
	copy(b.Data[offset:], data)
	return nil
}

// CreateSampler implements rhi.Device.
func (d *Device) CreateSampler(h rhi.SamplerHandle, desc rhi.SamplerDescription) error {
	if err := d.check("CreateSampler"); err != nil {
		return err
	}
	if _, ok := d.Samplers[h]; ok || h == rhi.InvalidHandle {
		return fmt.Errorf("sampler %d: %w", h, rhi.ErrHandleInUse)
	}
	d.Samplers[h] = desc
	d.record("CreateSampler", uint32(h))
	return nil
}

// DestroySampler implements rhi.Device.
func (d *Device) DestroySampler(h rhi.SamplerHandle) {
	if _, ok := d.Samplers[h]; !ok {
		return
	}
	delete(d.Samplers, h)
	d.record("DestroySampler", uint32(h))
}

// CreateShader implements rhi.Device.
func (d *Device) CreateShader(h rhi.ShaderHandle, desc rhi.ShaderDescription) error {
	if err := d.check("CreateShader"); err != nil {
		return err
	}
	if _, ok := d.Shaders[h]; ok || h == rhi.InvalidHandle {
		return fmt.Errorf("shader %d: %w", h, rhi.ErrHandleInUse)
	}
	d.Shaders[h] = desc
	d.record("CreateShader", uint32(h))
	return nil
}

// DestroyShader implements rhi.Device.
func (d *Device) DestroyShader(h rhi.ShaderHandle) {
	if _, ok := d.Shaders[h]; !ok {
		return
	}
	delete(d.Shaders, h)
	d.record("DestroyShader", uint32(h))
}

func (d *Device) pipelineExists(h rhi.PipelineHandle) bool {
	_, g := d.GraphicsPipelines[h]
	_, c := d.ComputePipelines[h]
	return g || c
}

// CreateGraphicsPipeline implements rhi.Device.
func (d *Device) CreateGraphicsPipeline(h rhi.PipelineHandle, desc rhi.GraphicsPipelineDescription) error {
	if err := d.check("CreateGraphicsPipeline"); err != nil {
		return err
	}
	if d.pipelineExists(h) || h == rhi.InvalidHandle {
		return fmt.Errorf("pipeline %d: %w", h, rhi.ErrHandleInUse)
	}
	if _, ok := d.RenderPasses[desc.RenderPass]; !ok {
		return fmt.Errorf("pipeline %d render pass %d: %w", h, desc.RenderPass, rhi.ErrUnknownHandle)
	}
	for _, s := range []rhi.ShaderHandle{desc.VertexShader, desc.FragmentShader} {
		if _, ok := d.Shaders[s]; !ok {
			return fmt.Errorf("pipeline %d shader %d: %w", h, s, rhi.ErrUnknownHandle)
		}
	}
	d.GraphicsPipelines[h] = desc
	d.record("CreateGraphicsPipeline", uint32(h))
	return nil
}

// CreateComputePipeline implements rhi.Device.
func (d *Device) CreateComputePipeline(h rhi.PipelineHandle, desc rhi.ComputePipelineDescription) error {
	if err := d.check("CreateComputePipeline"); err != nil {
		return err
	}
	if d.pipelineExists(h) || h == rhi.InvalidHandle {
		return fmt.Errorf("pipeline %d: %w", h, rhi.ErrHandleInUse)
	}
	if _, ok := d.Shaders[desc.ComputeShader]; !ok {
		return fmt.Errorf("pipeline %d shader %d: %w", h, desc.ComputeShader, rhi.ErrUnknownHandle)
	}
	d.ComputePipelines[h] = desc
	d.record("CreateComputePipeline", uint32(h))
	return nil
}

// DestroyPipeline implements rhi.Device.
func (d *Device) DestroyPipeline(h rhi.PipelineHandle) {
	if !d.pipelineExists(h) {
		return
	}
	delete(d.GraphicsPipelines, h)
	delete(d.ComputePipelines, h)
	d.record("DestroyPipeline", uint32(h))
}

// CreateDescriptorLayout implements rhi.Device.
func (d *Device) CreateDescriptorLayout(h rhi.DescriptorLayoutHandle, desc rhi.DescriptorLayoutDescription) error {
	if err := d.check("CreateDescriptorLayout"); err != nil {
		return err
	}
	if _, ok := d.DescriptorLayouts[h]; ok || h == rhi.InvalidHandle {
		return fmt.Errorf("descriptor layout %d: %w", h, rhi.ErrHandleInUse)
	}
	d.DescriptorLayouts[h] = desc
	d.record("CreateDescriptorLayout", uint32(h))
	return nil
}

// DestroyDescriptorLayout implements rhi.Device.
func (d *Device) DestroyDescriptorLayout(h rhi.DescriptorLayoutHandle) {
	if _, ok := d.DescriptorLayouts[h]; !ok {
		return
	}
	delete(d.DescriptorLayouts, h)
	d.record("DestroyDescriptorLayout", uint32(h))
}

// CreateDescriptor implements rhi.Device.
func (d *Device) CreateDescriptor(h rhi.DescriptorHandle, layout rhi.DescriptorLayoutHandle) error {
	if err := d.check("CreateDescriptor"); err != nil {
		return err
	}
	if _, ok := d.Descriptors[h]; ok || h == rhi.InvalidHandle {
		return fmt.Errorf("descriptor %d: %w", h, rhi.ErrHandleInUse)
	}
	if _, ok := d.DescriptorLayouts[layout]; !ok {
		return fmt.Errorf("descriptor %d layout %d: %w", h, layout, rhi.ErrUnknownHandle)
	}
	d.Descriptors[h] = &Descriptor{
		Layout:   layout,
		Textures: make(map[[2]uint32]rhi.TextureHandle),
		Samplers: make(map[[2]uint32]rhi.SamplerHandle),
		Buffers:  make(map[[2]uint32]rhi.BufferRange),
	}
	d.record("CreateDescriptor", uint32(h))
	return nil
}

// DestroyDescriptor implements rhi.Device.
func (d *Device) DestroyDescriptor(h rhi.DescriptorHandle) {
	if _, ok := d.Descriptors[h]; !ok {
		return
	}
	delete(d.Descriptors, h)
	d.record("DestroyDescriptor", uint32(h))
}

// WriteDescriptor implements rhi.Device.
func (d *Device) WriteDescriptor(h rhi.DescriptorHandle, w rhi.DescriptorWrite) error {
	if err := d.check("WriteDescriptor"); err != nil {
		return err
	}
	desc, ok := d.Descriptors[h]
	if !ok {
		return fmt.Errorf("descriptor %d: %w", h, rhi.ErrUnknownHandle)
	}
	layout := d.DescriptorLayouts[desc.Layout]
	idx := slices.IndexFunc(layout.Bindings, func(b rhi.DescriptorBinding) bool { return b.Binding == w.Binding })
	if idx < 0 {
		return fmt.Errorf("descriptor %d: binding %d not in layout", h, w.Binding)
	}
	binding := layout.Bindings[idx]
	count := uint32(len(w.Textures) + len(w.Samplers) + len(w.Buffers))
	if w.ArrayElement+count > max(binding.Count, 1) {
		return fmt.Errorf("descriptor %d: binding %d elements [%d, %d) exceed count %d",
			h, w.Binding, w.ArrayElement, w.ArrayElement+count, binding.Count)
	}
	for i, t := range w.Textures {
		if !d.textureExists(t) {
			return fmt.Errorf("descriptor %d texture %d: %w", h, t, rhi.ErrUnknownHandle)
		}
		desc.Textures[[2]uint32{w.Binding, w.ArrayElement + uint32(i)}] = t
	}
	for i, s := range w.Samplers {
		if _, ok := d.Samplers[s]; !ok {
			return fmt.Errorf("descriptor %d sampler %d: %w", h, s, rhi.ErrUnknownHandle)
		}
		desc.Samplers[[2]uint32{w.Binding, w.ArrayElement + uint32(i)}] = s
	}
	for i, r := range w.Buffers {
		if _, ok := d.Buffers[r.Buffer]; !ok {
			return fmt.Errorf("descriptor %d buffer %d: %w", h, r.Buffer, rhi.ErrUnknownHandle)
		}
		desc.Buffers[[2]uint32{w.Binding, w.ArrayElement + uint32(i)}] = r
	}
	return nil
}

// CreateRenderPass implements rhi.Device.
func (d *Device) CreateRenderPass(h rhi.RenderPassHandle, desc rhi.RenderPassDescription) error {
	if err := d.check("CreateRenderPass"); err != nil {
		return err
	}
	if _, ok := d.RenderPasses[h]; ok || h == rhi.InvalidHandle {
		return fmt.Errorf("render pass %d: %w", h, rhi.ErrHandleInUse)
	}
	d.RenderPasses[h] = desc
	d.record("CreateRenderPass", uint32(h))
	return nil
}

// DestroyRenderPass implements rhi.Device.
func (d *Device) DestroyRenderPass(h rhi.RenderPassHandle) {
	if _, ok := d.RenderPasses[h]; !ok {
		return
	}
	delete(d.RenderPasses, h)
	d.record("DestroyRenderPass", uint32(h))
}

// CreateFramebuffer implements rhi.Device.
func (d *Device) CreateFramebuffer(h rhi.FramebufferHandle, desc rhi.FramebufferDescription) error {
	if err := d.check("CreateFramebuffer"); err != nil {
		return err
	}
	if _, ok := d.Framebuffers[h]; ok || h == rhi.InvalidHandle {
		return fmt.Errorf("framebuffer %d: %w", h, rhi.ErrHandleInUse)
	}
	if _, ok := d.RenderPasses[desc.RenderPass]; !ok {
		return fmt.Errorf("framebuffer %d render pass %d: %w", h, desc.RenderPass, rhi.ErrUnknownHandle)
	}
	for _, t := range desc.Attachments {
		if !d.textureExists(t) {
			return fmt.Errorf("framebuffer %d attachment %d: %w", h, t, rhi.ErrUnknownHandle)
		}
	}
	d.Framebuffers[h] = desc
	d.record("CreateFramebuffer", uint32(h))
	return nil
}

// DestroyFramebuffer implements rhi.Device.
func (d *Device) DestroyFramebuffer(h rhi.FramebufferHandle) {
	if _, ok := d.Framebuffers[h]; !ok {
		return
	}
	delete(d.Framebuffers, h)
	d.record("DestroyFramebuffer", uint32(h))
}

// RequestImmediateCommandList implements rhi.Device.
func (d *Device) RequestImmediateCommandList() (rhi.CommandList, error) {
	if err := d.check("RequestImmediateCommandList"); err != nil {
		return nil, err
	}
	return &CommandList{}, nil
}

// SubmitImmediate implements rhi.Device.
func (d *Device) SubmitImmediate(cmd rhi.CommandList) error {
	if err := d.check("SubmitImmediate"); err != nil {
		return err
	}
	cl, ok := cmd.(*CommandList)
	if !ok {
		return fmt.Errorf("mock: foreign command list %T", cmd)
	}
	d.Immediate = append(d.Immediate, cl)
	return nil
}

// BeginFrame implements rhi.Device.
func (d *Device) BeginFrame(frameIndex uint32) (rhi.CommandList, error) {
	if err := d.check("BeginFrame"); err != nil {
		return nil, err
	}
	d.FrameWaits = append(d.FrameWaits, frameIndex)
	return &CommandList{FrameIndex: frameIndex}, nil
}

// EndFrame implements rhi.Device.
func (d *Device) EndFrame(frameIndex uint32, cmd rhi.CommandList) error {
	if err := d.check("EndFrame"); err != nil {
		return err
	}
	cl, ok := cmd.(*CommandList)
	if !ok {
		return fmt.Errorf("mock: foreign command list %T", cmd)
	}
	if cl.FrameIndex != frameIndex {
		return fmt.Errorf("mock: command list of frame %d submitted as frame %d", cl.FrameIndex, frameIndex)
	}
	d.Submitted = append(d.Submitted, cl)
	return nil
}

// WaitForIdle implements rhi.Device.
func (d *Device) WaitForIdle() error {
	return d.check("WaitForIdle")
}

// Destroy implements rhi.Device.
func (d *Device) Destroy() {
	d.destroyed = true
}

// Live returns the number of live objects of every kind.
func (d *Device) Live() int {
	return len(d.Textures) + len(d.Views) + len(d.Buffers) + len(d.Samplers) +
		len(d.Shaders) + len(d.GraphicsPipelines) + len(d.ComputePipelines) +
		len(d.DescriptorLayouts) + len(d.Descriptors) + len(d.RenderPasses) +
		len(d.Framebuffers)
}

var _ rhi.Device = (*Device)(nil)
