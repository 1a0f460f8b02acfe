package halrhi

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/rendergraph/rhi"
	"github.com/gogpu/wgpu/hal"
)

// === Shaders ===

// spirvWords reinterprets little-endian SPIR-V bytes as words.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

func (d *Device) shaderSource(desc rhi.ShaderDescription) (hal.ShaderSource, error) {
	switch {
	case len(desc.SPIRV) > 0:
		return hal.ShaderSource{SPIRV: desc.SPIRV}, nil
	case desc.WGSL == "":
		return hal.ShaderSource{}, fmt.Errorf("halrhi: shader %q has no source: %w", desc.Label, rhi.ErrUnsupported)
	case d.opts.CompileSPIRV:
		spirv, err := naga.Compile(desc.WGSL)
		if err != nil {
			return hal.ShaderSource{}, fmt.Errorf("halrhi: compile shader %q: %w", desc.Label, err)
		}
		return hal.ShaderSource{SPIRV: spirvWords(spirv)}, nil
	default:
		return hal.ShaderSource{WGSL: desc.WGSL}, nil
	}
}

// CreateShader implements rhi.Device.
func (d *Device) CreateShader(h rhi.ShaderHandle, desc rhi.ShaderDescription) error {
	_, live := d.shaders[h]
	if err := d.checkFree(live); err != nil {
		return err
	}
	src, err := d.shaderSource(desc)
	if err != nil {
		return err
	}
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: desc.Label, Source: src})
	if err != nil {
		return fmt.Errorf("halrhi: create shader %q: %w", desc.Label, err)
	}
	d.shaders[h] = module
	return nil
}

// DestroyShader implements rhi.Device.
func (d *Device) DestroyShader(h rhi.ShaderHandle) {
	if m, ok := d.shaders[h]; ok {
		delete(d.shaders, h)
		d.device.DestroyShaderModule(m)
	}
}

// === Descriptors ===

type layout struct {
	native hal.BindGroupLayout
	desc   rhi.DescriptorLayoutDescription
}

type descriptor struct {
	layout  rhi.DescriptorLayoutHandle
	entries map[uint32]gputypes.BindGroupEntry
	group   hal.BindGroup
	dirty   bool
}

// layoutEntry maps a descriptor binding to a bind group layout entry.
func layoutEntry(b rhi.DescriptorBinding) (gputypes.BindGroupLayoutEntry, error) {
	if b.Count > 1 {
		return gputypes.BindGroupLayoutEntry{}, fmt.Errorf("binding %q is an array of %d: %w", b.Name, b.Count, rhi.ErrUnsupported)
	}
	e := gputypes.BindGroupLayoutEntry{Binding: b.Binding, Visibility: b.Stages}
	switch b.Type {
	case rhi.DescriptorSampledImage:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case rhi.DescriptorSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	case rhi.DescriptorStorageImage:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        gputypes.TextureFormatRGBA8Unorm,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case rhi.DescriptorUniformBuffer, rhi.DescriptorUniformBufferDynamic:
		e.Buffer = &gputypes.BufferBindingLayout{
			Type:             gputypes.BufferBindingTypeUniform,
			HasDynamicOffset: b.Type.IsDynamic(),
		}
	case rhi.DescriptorStorageBuffer, rhi.DescriptorStorageBufferDynamic:
		e.Buffer = &gputypes.BufferBindingLayout{
			Type:             gputypes.BufferBindingTypeStorage,
			HasDynamicOffset: b.Type.IsDynamic(),
		}
	default:
		return e, fmt.Errorf("binding %q has type %v: %w", b.Name, b.Type, rhi.ErrUnsupported)
	}
	return e, nil
}

// CreateDescriptorLayout implements rhi.Device. Array bindings are not
// supported.
func (d *Device) CreateDescriptorLayout(h rhi.DescriptorLayoutHandle, desc rhi.DescriptorLayoutDescription) error {
	_, live := d.layouts[h]
	if err := d.checkFree(live); err != nil {
		return err
	}
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(desc.Bindings))
	for _, b := range desc.Bindings {
		e, err := layoutEntry(b)
		if err != nil {
			return fmt.Errorf("halrhi: layout %q: %w", desc.Label, err)
		}
		entries = append(entries, e)
	}
	native, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: desc.Label, Entries: entries})
	if err != nil {
		return fmt.Errorf("halrhi: create layout %q: %w", desc.Label, err)
	}
	d.layouts[h] = &layout{native: native, desc: desc}
	return nil
}

// DestroyDescriptorLayout implements rhi.Device.
func (d *Device) DestroyDescriptorLayout(h rhi.DescriptorLayoutHandle) {
	if l, ok := d.layouts[h]; ok {
		delete(d.layouts, h)
		d.device.DestroyBindGroupLayout(l.native)
	}
}

// CreateDescriptor implements rhi.Device. The bind group is created on
// first use, once every binding has been written.
func (d *Device) CreateDescriptor(h rhi.DescriptorHandle, l rhi.DescriptorLayoutHandle) error {
	_, live := d.descriptors[h]
	if err := d.checkFree(live); err != nil {
		return err
	}
	if _, ok := d.layouts[l]; !ok {
		return fmt.Errorf("halrhi: descriptor layout %d: %w", l, rhi.ErrUnknownHandle)
	}
	d.descriptors[h] = &descriptor{layout: l, entries: make(map[uint32]gputypes.BindGroupEntry), dirty: true}
	return nil
}

// DestroyDescriptor implements rhi.Device.
func (d *Device) DestroyDescriptor(h rhi.DescriptorHandle) {
	ds, ok := d.descriptors[h]
	if !ok {
		return
	}
	delete(d.descriptors, h)
	if ds.group != nil {
		d.device.DestroyBindGroup(ds.group)
	}
}

// WriteDescriptor implements rhi.Device.
func (d *Device) WriteDescriptor(h rhi.DescriptorHandle, w rhi.DescriptorWrite) error {
	ds, ok := d.descriptors[h]
	if !ok {
		return fmt.Errorf("halrhi: write descriptor %d: %w", h, rhi.ErrUnknownHandle)
	}
	if w.ArrayElement != 0 {
		return fmt.Errorf("halrhi: write descriptor %d element %d: %w", h, w.ArrayElement, rhi.ErrUnsupported)
	}

	entry := gputypes.BindGroupEntry{Binding: w.Binding}
	switch {
	case len(w.Textures) > 0:
		t, ok := d.textures[w.Textures[0]]
		if !ok {
			return fmt.Errorf("halrhi: bind texture %d: %w", w.Textures[0], rhi.ErrUnknownHandle)
		}
		entry.Resource = gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}
	case len(w.Samplers) > 0:
		s, ok := d.samplers[w.Samplers[0]]
		if !ok {
			return fmt.Errorf("halrhi: bind sampler %d: %w", w.Samplers[0], rhi.ErrUnknownHandle)
		}
		entry.Resource = gputypes.SamplerBinding{Sampler: s.NativeHandle()}
	case len(w.Buffers) > 0:
		r := w.Buffers[0]
		b, ok := d.buffers[r.Buffer]
		if !ok {
			return fmt.Errorf("halrhi: bind buffer %d: %w", r.Buffer, rhi.ErrUnknownHandle)
		}
		size := r.Size
		if size == 0 {
			size = b.size - r.Offset
		}
		entry.Resource = gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Offset: r.Offset, Size: size}
	default:
		return nil
	}
	ds.entries[w.Binding] = entry
	ds.dirty = true
	return nil
}

// bindGroup returns the bind group of a descriptor, recreating it after
// writes. The replaced group is released once the GPU is past the next
// submission.
func (d *Device) bindGroup(h rhi.DescriptorHandle) (hal.BindGroup, error) {
	ds, ok := d.descriptors[h]
	if !ok {
		return nil, fmt.Errorf("halrhi: descriptor %d: %w", h, rhi.ErrUnknownHandle)
	}
	if !ds.dirty {
		return ds.group, nil
	}
	l, ok := d.layouts[ds.layout]
	if !ok {
		return nil, fmt.Errorf("halrhi: descriptor %d: layout %d: %w", h, ds.layout, rhi.ErrUnknownHandle)
	}
	entries := make([]gputypes.BindGroupEntry, 0, len(l.desc.Bindings))
	for _, b := range l.desc.Bindings {
		e, ok := ds.entries[b.Binding]
		if !ok {
			return nil, fmt.Errorf("halrhi: descriptor %d binding %q never written: %w", h, b.Name, rhi.ErrUnsupported)
		}
		entries = append(entries, e)
	}
	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   l.desc.Label,
		Layout:  l.native,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("halrhi: create bind group for descriptor %d: %w", h, err)
	}
	if old := ds.group; old != nil {
		d.retire(func() { d.device.DestroyBindGroup(old) })
	}
	ds.group = group
	ds.dirty = false
	return group, nil
}

// === Pipelines ===

func (d *Device) pipelineLayout(label string, handles []rhi.DescriptorLayoutHandle) (hal.PipelineLayout, error) {
	layouts := make([]hal.BindGroupLayout, 0, len(handles))
	for _, h := range handles {
		l, ok := d.layouts[h]
		if !ok {
			return nil, fmt.Errorf("halrhi: pipeline %q: layout %d: %w", label, h, rhi.ErrUnknownHandle)
		}
		layouts = append(layouts, l.native)
	}
	pl, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: label, BindGroupLayouts: layouts})
	if err != nil {
		return nil, fmt.Errorf("halrhi: pipeline layout %q: %w", label, err)
	}
	return pl, nil
}

func hasStencil(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatDepth24PlusStencil8
}

func keepStencil() hal.StencilFaceState {
	return hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
}

// CreateGraphicsPipeline implements rhi.Device. Color target formats,
// sample count and depth state come from desc.RenderPass. Vertex data is
// fetched from storage buffers, so no vertex buffer layouts are declared.
func (d *Device) CreateGraphicsPipeline(h rhi.PipelineHandle, desc rhi.GraphicsPipelineDescription) error {
	_, live := d.pipelines[h]
	if err := d.checkFree(live); err != nil {
		return err
	}
	rp, ok := d.renderPasses[desc.RenderPass]
	if !ok {
		return fmt.Errorf("halrhi: pipeline %q: render pass %d: %w", desc.Label, desc.RenderPass, rhi.ErrUnknownHandle)
	}
	vs, ok := d.shaders[desc.VertexShader]
	if !ok {
		return fmt.Errorf("halrhi: pipeline %q: vertex shader: %w", desc.Label, rhi.ErrUnknownHandle)
	}
	fs, ok := d.shaders[desc.FragmentShader]
	if !ok {
		return fmt.Errorf("halrhi: pipeline %q: fragment shader: %w", desc.Label, rhi.ErrUnknownHandle)
	}

	var blend *gputypes.BlendState
	if desc.Blend {
		b := gputypes.BlendStatePremultiplied()
		blend = &b
	}
	samples := uint32(1)
	targets := make([]gputypes.ColorTargetState, 0, len(rp.ColorAttachments))
	for _, a := range rp.ColorAttachments {
		targets = append(targets, gputypes.ColorTargetState{
			Format:    a.Format,
			Blend:     blend,
			WriteMask: gputypes.ColorWriteMaskAll,
		})
		samples = max(samples, a.SampleCount)
	}
	var depth *hal.DepthStencilState
	if a := rp.DepthAttachment; a != nil {
		compare := desc.DepthCompare
		if compare == 0 {
			compare = gputypes.CompareFunctionAlways
		}
		depth = &hal.DepthStencilState{
			Format:            a.Format,
			DepthWriteEnabled: desc.DepthWrite,
			DepthCompare:      compare,
			StencilFront:      keepStencil(),
			StencilBack:       keepStencil(),
		}
		samples = max(samples, a.SampleCount)
	}

	pl, err := d.pipelineLayout(desc.Label, desc.DescriptorLayouts)
	if err != nil {
		return err
	}
	vsEntry, fsEntry := desc.VertexEntryPoint, desc.FragmentEntryPoint
	if vsEntry == "" {
		vsEntry = "vs_main"
	}
	if fsEntry == "" {
		fsEntry = "fs_main"
	}
	native, err := d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: pl,
		Vertex: hal.VertexState{Module: vs, EntryPoint: vsEntry},
		Fragment: &hal.FragmentState{
			Module:     fs,
			EntryPoint: fsEntry,
			Targets:    targets,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: desc.Topology,
			CullMode: desc.CullMode,
		},
		DepthStencil: depth,
		Multisample: gputypes.MultisampleState{
			Count: samples,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		d.device.DestroyPipelineLayout(pl)
		return fmt.Errorf("halrhi: create pipeline %q: %w", desc.Label, err)
	}
	d.pipelines[h] = &pipeline{render: native, layout: pl}
	return nil
}

// CreateComputePipeline implements rhi.Device.
func (d *Device) CreateComputePipeline(h rhi.PipelineHandle, desc rhi.ComputePipelineDescription) error {
	_, live := d.pipelines[h]
	if err := d.checkFree(live); err != nil {
		return err
	}
	cs, ok := d.shaders[desc.ComputeShader]
	if !ok {
		return fmt.Errorf("halrhi: pipeline %q: compute shader: %w", desc.Label, rhi.ErrUnknownHandle)
	}
	pl, err := d.pipelineLayout(desc.Label, desc.DescriptorLayouts)
	if err != nil {
		return err
	}
	entry := desc.EntryPoint
	if entry == "" {
		entry = "main"
	}
	native, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  pl,
		Compute: hal.ComputeState{Module: cs, EntryPoint: entry},
	})
	if err != nil {
		d.device.DestroyPipelineLayout(pl)
		return fmt.Errorf("halrhi: create pipeline %q: %w", desc.Label, err)
	}
	d.pipelines[h] = &pipeline{compute: native, layout: pl}
	return nil
}

// DestroyPipeline implements rhi.Device.
func (d *Device) DestroyPipeline(h rhi.PipelineHandle) {
	p, ok := d.pipelines[h]
	if !ok {
		return
	}
	delete(d.pipelines, h)
	if p.render != nil {
		d.device.DestroyRenderPipeline(p.render)
	}
	if p.compute != nil {
		d.device.DestroyComputePipeline(p.compute)
	}
	d.device.DestroyPipelineLayout(p.layout)
}
