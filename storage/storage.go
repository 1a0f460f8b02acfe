// Package storage owns every device object used by the renderer.
//
// A Storage hands out handles from dedicated monotonically increasing
// counters, forwards descriptions to the device and keeps them for later
// queries. It also owns the global bindless descriptor that every shader
// can index into:
//
//	binding 0  uGlobalTextures  sampled images   index = texture handle
//	binding 1  uGlobalSamplers  samplers         index = sampler handle
//	binding 2  uGlobalImages    storage images   index = texture handle
//
// Handles start at 1, so every array needs at least two elements. On a
// device whose MaxDescriptorArraySize is below that, the global descriptor
// is not created and Bindless reports false.
//
// Storage is shared by every graph in the process and outlives them. It is
// not safe for concurrent use: the global descriptor has a single writer,
// the goroutine driving the frame.
package storage

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/internal/arena"
	"github.com/gogpu/rendergraph/rhi"
)

// Storage errors.
var (
	// ErrUnsupportedUsage is returned for usage flags no device accepts.
	ErrUnsupportedUsage = errors.New("storage: unsupported usage combination")

	// ErrInvalidDescription is returned for malformed descriptions.
	ErrInvalidDescription = errors.New("storage: invalid description")

	// ErrDescriptorIndexOutOfRange is returned when a handle does not fit
	// into the global bindless descriptor.
	ErrDescriptorIndexOutOfRange = errors.New("storage: handle exceeds bindless descriptor capacity")

	// ErrUnknownHandle is returned for handles Storage did not create or
	// already destroyed.
	ErrUnknownHandle = errors.New("storage: unknown handle")

	// ErrDuplicateShader is returned when a shader name is already taken.
	ErrDuplicateShader = errors.New("storage: duplicate shader name")

	// ErrBindlessUnsupported is returned by the global descriptor methods
	// when the device cannot index resources by handle.
	ErrBindlessUnsupported = errors.New("storage: device does not support bindless descriptors")
)

// Global descriptor bindings.
const (
	BindingGlobalTextures uint32 = 0
	BindingGlobalSamplers uint32 = 1
	BindingGlobalImages   uint32 = 2
)

// DefaultBindlessArraySize is the default number of elements of each
// global descriptor array.
const DefaultBindlessArraySize = 1000

// Config holds configuration for creating a Storage.
type Config struct {
	// MaxTextures is the size of the sampled image array.
	// Defaults to DefaultBindlessArraySize if zero.
	MaxTextures uint32

	// MaxSamplers is the size of the sampler array.
	// Defaults to DefaultBindlessArraySize if zero.
	MaxSamplers uint32

	// MaxImages is the size of the storage image array.
	// Defaults to DefaultBindlessArraySize if zero.
	MaxImages uint32

	// DefaultSampler describes the sampler created with the storage.
	// Defaults to rhi.DefaultSamplerDescription if nil.
	DefaultSampler *rhi.SamplerDescription
}

func (c Config) withDefaults(limits rhi.Limits) Config {
	clamp := func(v uint32) uint32 {
		if v == 0 {
			v = DefaultBindlessArraySize
		}
		if limits.MaxDescriptorArraySize > 0 {
			v = min(v, limits.MaxDescriptorArraySize)
		}
		return v
	}
	c.MaxTextures = clamp(c.MaxTextures)
	c.MaxSamplers = clamp(c.MaxSamplers)
	c.MaxImages = clamp(c.MaxImages)
	if c.DefaultSampler == nil {
		d := rhi.DefaultSamplerDescription()
		c.DefaultSampler = &d
	}
	return c
}

type textureEntry struct {
	desc rhi.TextureDescription
	view *rhi.TextureViewDescription
	size uint64
}

type shaderEntry struct {
	name string
}

type pipelineEntry struct {
	graphics *rhi.GraphicsPipelineDescription
	compute  *rhi.ComputePipelineDescription
	created  bool
}

// Storage is the handle factory and owner of device objects.
type Storage struct {
	device rhi.Device
	cfg    Config

	textures     *arena.Arena[rhi.TextureHandle, textureEntry]
	buffers      *arena.Arena[rhi.BufferHandle, rhi.BufferDescription]
	samplers     *arena.Arena[rhi.SamplerHandle, rhi.SamplerDescription]
	shaders      *arena.Arena[rhi.ShaderHandle, shaderEntry]
	pipelines    *arena.Arena[rhi.PipelineHandle, pipelineEntry]
	layouts      *arena.Arena[rhi.DescriptorLayoutHandle, rhi.DescriptorLayoutDescription]
	descriptors  *arena.Arena[rhi.DescriptorHandle, rhi.DescriptorLayoutHandle]
	renderPasses *arena.Arena[rhi.RenderPassHandle, rhi.RenderPassDescription]
	framebuffers *arena.Arena[rhi.FramebufferHandle, rhi.FramebufferDescription]

	shaderNames map[string]rhi.ShaderHandle

	globalLayout     rhi.DescriptorLayoutHandle
	globalDescriptor rhi.DescriptorHandle
	defaultSampler   rhi.SamplerHandle

	stats MemoryStats
}

func slogger() *slog.Logger { return rendergraph.Logger() }

// New creates a Storage on device together with the global bindless
// descriptor and the default sampler.
func New(device rhi.Device, cfg Config) (*Storage, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidDescription)
	}
	cfg = cfg.withDefaults(device.Limits())

	st := &Storage{
		device:       device,
		cfg:          cfg,
		textures:     arena.New[rhi.TextureHandle, textureEntry](),
		buffers:      arena.New[rhi.BufferHandle, rhi.BufferDescription](),
		samplers:     arena.New[rhi.SamplerHandle, rhi.SamplerDescription](),
		shaders:      arena.New[rhi.ShaderHandle, shaderEntry](),
		pipelines:    arena.New[rhi.PipelineHandle, pipelineEntry](),
		layouts:      arena.New[rhi.DescriptorLayoutHandle, rhi.DescriptorLayoutDescription](),
		descriptors:  arena.New[rhi.DescriptorHandle, rhi.DescriptorLayoutHandle](),
		renderPasses: arena.New[rhi.RenderPassHandle, rhi.RenderPassDescription](),
		framebuffers: arena.New[rhi.FramebufferHandle, rhi.FramebufferDescription](),
		shaderNames:  make(map[string]rhi.ShaderHandle),
	}

	if err := st.createGlobalDescriptor(); err != nil {
		st.Destroy()
		return nil, err
	}

	if !st.Bindless() {
		slogger().Info("storage: created without bindless descriptor",
			"maxDescriptorArraySize", device.Limits().MaxDescriptorArraySize)
		return st, nil
	}
	slogger().Info("storage: created",
		"textures", cfg.MaxTextures,
		"samplers", cfg.MaxSamplers,
		"images", cfg.MaxImages)
	return st, nil
}

// Bindless reports whether the global descriptor exists. It is false when
// the device's descriptor arrays cannot hold handle 1.
func (st *Storage) Bindless() bool { return st.globalDescriptor != rhi.InvalidHandle }

func (c Config) bindless() bool {
	return min(c.MaxTextures, c.MaxSamplers, c.MaxImages) >= 2
}

func (st *Storage) createGlobalDescriptor() error {
	const stages = gputypes.ShaderStageVertex | gputypes.ShaderStageFragment | gputypes.ShaderStageCompute

	sampler, err := st.CreateSampler(*st.cfg.DefaultSampler)
	if err != nil {
		return fmt.Errorf("default sampler: %w", err)
	}
	st.defaultSampler = sampler

	if !st.cfg.bindless() {
		return nil
	}

	layout, err := st.CreateDescriptorLayout(rhi.DescriptorLayoutDescription{
		Label: "global bindless",
		Bindings: []rhi.DescriptorBinding{
			{Name: "uGlobalTextures", Binding: BindingGlobalTextures, Type: rhi.DescriptorSampledImage,
				Count: st.cfg.MaxTextures, Stages: stages, PartiallyBound: true},
			{Name: "uGlobalSamplers", Binding: BindingGlobalSamplers, Type: rhi.DescriptorSampler,
				Count: st.cfg.MaxSamplers, Stages: stages, PartiallyBound: true},
			{Name: "uGlobalImages", Binding: BindingGlobalImages, Type: rhi.DescriptorStorageImage,
				Count: st.cfg.MaxImages, Stages: stages, PartiallyBound: true},
		},
	})
	if err != nil {
		return fmt.Errorf("global descriptor layout: %w", err)
	}
	st.globalLayout = layout

	desc, err := st.CreateDescriptor(layout)
	if err != nil {
		return fmt.Errorf("global descriptor: %w", err)
	}
	st.globalDescriptor = desc
	return nil
}

// Device returns the device objects are created on.
func (st *Storage) Device() rhi.Device { return st.device }

// Limits returns the device limits.
func (st *Storage) Limits() rhi.Limits { return st.device.Limits() }

// GlobalDescriptor returns the global bindless descriptor, or
// rhi.InvalidHandle if Bindless is false.
func (st *Storage) GlobalDescriptor() rhi.DescriptorHandle { return st.globalDescriptor }

// GlobalDescriptorLayout returns the layout of the global descriptor.
// Pipelines that index bindless resources list it as set 0.
func (st *Storage) GlobalDescriptorLayout() rhi.DescriptorLayoutHandle { return st.globalLayout }

// DefaultSampler returns the sampler created with the storage.
func (st *Storage) DefaultSampler() rhi.SamplerHandle { return st.defaultSampler }

// AddToDescriptor writes a texture into the global descriptor at the array
// index equal to its handle: binding 0 if it is sampled, binding 2 if it is
// a storage image. Views use the usage of their parent texture.
func (st *Storage) AddToDescriptor(h rhi.TextureHandle) error {
	e, ok := st.textures.Get(h)
	if !ok {
		return fmt.Errorf("texture %d: %w", h, ErrUnknownHandle)
	}
	if !st.Bindless() {
		return fmt.Errorf("texture %d: %w", h, ErrBindlessUnsupported)
	}
	usage := e.desc.Usage

	if usage&gputypes.TextureUsageTextureBinding != 0 {
		if err := st.writeGlobalTexture(BindingGlobalTextures, st.cfg.MaxTextures, h); err != nil {
			return err
		}
	}
	if usage&gputypes.TextureUsageStorageBinding != 0 {
		if err := st.writeGlobalTexture(BindingGlobalImages, st.cfg.MaxImages, h); err != nil {
			return err
		}
	}
	return nil
}

func (st *Storage) writeGlobalTexture(binding, capacity uint32, h rhi.TextureHandle) error {
	if uint32(h) >= capacity {
		return fmt.Errorf("texture %d binding %d capacity %d: %w", h, binding, capacity, ErrDescriptorIndexOutOfRange)
	}
	return st.device.WriteDescriptor(st.globalDescriptor, rhi.DescriptorWrite{
		Binding:      binding,
		ArrayElement: uint32(h),
		Textures:     []rhi.TextureHandle{h},
	})
}

// AddSamplerToDescriptor writes a sampler into binding 1 of the global
// descriptor at the array index equal to its handle.
func (st *Storage) AddSamplerToDescriptor(h rhi.SamplerHandle) error {
	if !st.samplers.Contains(h) {
		return fmt.Errorf("sampler %d: %w", h, ErrUnknownHandle)
	}
	if !st.Bindless() {
		return fmt.Errorf("sampler %d: %w", h, ErrBindlessUnsupported)
	}
	if uint32(h) >= st.cfg.MaxSamplers {
		return fmt.Errorf("sampler %d capacity %d: %w", h, st.cfg.MaxSamplers, ErrDescriptorIndexOutOfRange)
	}
	return st.device.WriteDescriptor(st.globalDescriptor, rhi.DescriptorWrite{
		Binding:      BindingGlobalSamplers,
		ArrayElement: uint32(h),
		Samplers:     []rhi.SamplerHandle{h},
	})
}

// Immediate records fn into a one-shot command list, submits it and waits
// for completion. Use it for work outside the frame loop such as
// precomputing lookup textures.
func (st *Storage) Immediate(fn func(cmd rhi.CommandList)) error {
	cmd, err := st.device.RequestImmediateCommandList()
	if err != nil {
		return fmt.Errorf("storage: request immediate command list: %w", err)
	}
	fn(cmd)
	if err := st.device.SubmitImmediate(cmd); err != nil {
		return fmt.Errorf("storage: submit immediate: %w", err)
	}
	return nil
}

// Destroy releases every object still owned by the storage. The device
// must be idle.
func (st *Storage) Destroy() {
	st.framebuffers.Each(func(h rhi.FramebufferHandle, _ rhi.FramebufferDescription) { st.DestroyFramebuffer(h) })
	st.pipelines.Each(func(h rhi.PipelineHandle, _ pipelineEntry) { st.RemovePipeline(h) })
	st.renderPasses.Each(func(h rhi.RenderPassHandle, _ rhi.RenderPassDescription) { st.DestroyRenderPass(h) })
	st.descriptors.Each(func(h rhi.DescriptorHandle, _ rhi.DescriptorLayoutHandle) { st.DestroyDescriptor(h) })
	st.layouts.Each(func(h rhi.DescriptorLayoutHandle, _ rhi.DescriptorLayoutDescription) { st.DestroyDescriptorLayout(h) })
	st.shaders.Each(func(h rhi.ShaderHandle, _ shaderEntry) { st.DestroyShader(h) })
	st.samplers.Each(func(h rhi.SamplerHandle, _ rhi.SamplerDescription) { st.DestroySampler(h) })
	// Views first so parents outlive them.
	st.textures.Each(func(h rhi.TextureHandle, e textureEntry) {
		if e.view != nil {
			st.DestroyTexture(h)
		}
	})
	st.textures.Each(func(h rhi.TextureHandle, _ textureEntry) { st.DestroyTexture(h) })
	st.buffers.Each(func(h rhi.BufferHandle, _ rhi.BufferDescription) { st.DestroyBuffer(h) })

	st.globalDescriptor = rhi.InvalidHandle
	st.globalLayout = rhi.InvalidHandle
	st.defaultSampler = rhi.InvalidHandle
	slogger().Debug("storage: destroyed")
}
