package rhi

import "github.com/gogpu/gputypes"

// Resource handles
//
// Each handle type names one kind of device object. Storage hands them out
// from monotonically increasing counters; devices map them to native
// objects.

// TextureHandle names a texture or a texture view.
type TextureHandle uint32

// BufferHandle names a buffer.
type BufferHandle uint32

// SamplerHandle names a sampler.
type SamplerHandle uint32

// ShaderHandle names a shader module.
type ShaderHandle uint32

// PipelineHandle names a graphics or compute pipeline.
type PipelineHandle uint32

// DescriptorLayoutHandle names a descriptor layout.
type DescriptorLayoutHandle uint32

// DescriptorHandle names a descriptor set.
type DescriptorHandle uint32

// RenderPassHandle names a render pass object.
type RenderPassHandle uint32

// FramebufferHandle names a framebuffer.
type FramebufferHandle uint32

// InvalidHandle is the zero value, representing no resource.
const InvalidHandle = 0

// TextureType selects the texture dimensionality.
type TextureType uint8

// Texture types.
const (
	TextureType2D TextureType = iota
	TextureTypeCubemap
)

// TextureDescription describes a texture.
// Zero Depth, MipLevelCount, LayerCount and SampleCount mean 1
// (6 layers for cubemaps).
type TextureDescription struct {
	Label         string
	Type          TextureType
	Format        gputypes.TextureFormat
	Usage         gputypes.TextureUsage
	Width         uint32
	Height        uint32
	Depth         uint32
	MipLevelCount uint32
	LayerCount    uint32
	SampleCount   uint32
}

// Normalized returns d with zero counts replaced by their defaults.
func (d TextureDescription) Normalized() TextureDescription {
	if d.Depth == 0 {
		d.Depth = 1
	}
	if d.MipLevelCount == 0 {
		d.MipLevelCount = 1
	}
	if d.LayerCount == 0 {
		d.LayerCount = 1
		if d.Type == TextureTypeCubemap {
			d.LayerCount = 6
		}
	}
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	return d
}

// SizeBytes estimates the memory footprint of the texture, all mips and
// layers included.
func (d TextureDescription) SizeBytes() uint64 {
	d = d.Normalized()
	bpp := uint64(BytesPerPixel(d.Format))
	var total uint64
	w, h := uint64(d.Width), uint64(d.Height)
	for range d.MipLevelCount {
		total += max(w, 1) * max(h, 1) * uint64(d.Depth) * bpp
		w, h = w/2, h/2
	}
	return total * uint64(d.LayerCount) * uint64(d.SampleCount)
}

// BytesPerPixel returns the texel size of format. Unknown formats count as
// four bytes.
func BytesPerPixel(format gputypes.TextureFormat) uint32 {
	switch format {
	case gputypes.TextureFormatR8Unorm:
		return 1
	default:
		return 4
	}
}

// TextureViewDescription describes a view into a subresource range.
// A zero MipLevelCount or LayerCount selects one level or layer.
type TextureViewDescription struct {
	Label         string
	Texture       TextureHandle
	BaseMipLevel  uint32
	MipLevelCount uint32
	BaseLayer     uint32
	LayerCount    uint32
}

// SamplerDescription describes a sampler.
type SamplerDescription struct {
	Label        string
	MinFilter    gputypes.FilterMode
	MagFilter    gputypes.FilterMode
	MipmapFilter gputypes.FilterMode
	AddressModeU gputypes.AddressMode
	AddressModeV gputypes.AddressMode
	AddressModeW gputypes.AddressMode
	MinLOD       float32
	MaxLOD       float32
}

// DefaultSamplerDescription returns a linear, clamp-to-edge sampler.
func DefaultSamplerDescription() SamplerDescription {
	return SamplerDescription{
		Label:        "default",
		MinFilter:    gputypes.FilterModeLinear,
		MagFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MaxLOD:       32,
	}
}

// BufferDescription describes a buffer. Data, when set, is uploaded at
// creation and must not exceed Size.
type BufferDescription struct {
	Label string
	Usage gputypes.BufferUsage
	Size  uint64
	Data  []byte
}

// ShaderDescription carries shader source. Exactly one of WGSL and SPIRV is
// expected to be set.
type ShaderDescription struct {
	Label string
	WGSL  string
	SPIRV []uint32
}

// DescriptorType specifies the kind of resource bound at a descriptor
// binding.
type DescriptorType uint8

// Descriptor types.
const (
	DescriptorSampledImage DescriptorType = iota + 1
	DescriptorSampler
	DescriptorStorageImage
	DescriptorUniformBuffer
	DescriptorStorageBuffer
	DescriptorUniformBufferDynamic
	DescriptorStorageBufferDynamic
)

// String returns the descriptor type name.
func (t DescriptorType) String() string {
	switch t {
	case DescriptorSampledImage:
		return "SampledImage"
	case DescriptorSampler:
		return "Sampler"
	case DescriptorStorageImage:
		return "StorageImage"
	case DescriptorUniformBuffer:
		return "UniformBuffer"
	case DescriptorStorageBuffer:
		return "StorageBuffer"
	case DescriptorUniformBufferDynamic:
		return "UniformBufferDynamic"
	case DescriptorStorageBufferDynamic:
		return "StorageBufferDynamic"
	default:
		return "Unknown"
	}
}

// IsDynamic reports whether bindings of this type take a dynamic offset.
func (t DescriptorType) IsDynamic() bool {
	return t == DescriptorUniformBufferDynamic || t == DescriptorStorageBufferDynamic
}

// DescriptorBinding describes one binding of a descriptor layout.
// Count > 1 declares an array; PartiallyBound allows unwritten elements.
type DescriptorBinding struct {
	Name           string
	Binding        uint32
	Type           DescriptorType
	Count          uint32
	Stages         gputypes.ShaderStage
	PartiallyBound bool
}

// DescriptorLayoutDescription describes a descriptor layout.
type DescriptorLayoutDescription struct {
	Label    string
	Bindings []DescriptorBinding
}

// BufferRange selects a byte range of a buffer. Size 0 means the rest of
// the buffer.
type BufferRange struct {
	Buffer BufferHandle
	Offset uint64
	Size   uint64
}

// DescriptorWrite updates consecutive array elements of one binding,
// starting at ArrayElement. Only the slice matching the binding type is
// read.
type DescriptorWrite struct {
	Binding      uint32
	ArrayElement uint32
	Textures     []TextureHandle
	Samplers     []SamplerHandle
	Buffers      []BufferRange
}

// GraphicsPipelineDescription describes a graphics pipeline. RenderPass is
// filled in by the graph before the pipeline is created; a graphics
// pipeline is only valid for the render pass it was created against.
type GraphicsPipelineDescription struct {
	Label              string
	VertexShader       ShaderHandle
	FragmentShader     ShaderHandle
	VertexEntryPoint   string
	FragmentEntryPoint string
	DescriptorLayouts  []DescriptorLayoutHandle
	Topology           gputypes.PrimitiveTopology
	CullMode           gputypes.CullMode
	Blend              bool
	DepthWrite         bool
	DepthCompare       gputypes.CompareFunction
	RenderPass         RenderPassHandle
}

// ComputePipelineDescription describes a compute pipeline.
type ComputePipelineDescription struct {
	Label             string
	ComputeShader     ShaderHandle
	EntryPoint        string
	DescriptorLayouts []DescriptorLayoutHandle
}

// ClearValue holds the clear color of a color attachment or the clear
// depth and stencil of a depth attachment.
type ClearValue struct {
	Color   gputypes.Color
	Depth   float32
	Stencil uint32
}

// ClearColor returns a color clear value.
func ClearColor(r, g, b, a float64) ClearValue {
	return ClearValue{Color: gputypes.Color{R: r, G: g, B: b, A: a}}
}

// ClearDepth returns a depth/stencil clear value.
func ClearDepth(depth float32, stencil uint32) ClearValue {
	return ClearValue{Depth: depth, Stencil: stencil}
}

// RenderPassAttachment describes one attachment of a render pass.
type RenderPassAttachment struct {
	Texture       TextureHandle
	Format        gputypes.TextureFormat
	SampleCount   uint32
	LoadOp        gputypes.LoadOp
	StoreOp       gputypes.StoreOp
	Clear         ClearValue
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

// RenderPassDescription describes a render pass. Resolve attachments pair
// with color attachments by index.
type RenderPassDescription struct {
	Label              string
	ColorAttachments   []RenderPassAttachment
	DepthAttachment    *RenderPassAttachment
	ResolveAttachments []RenderPassAttachment
}

// FramebufferDescription binds textures to a render pass in the order the
// render pass declares its attachments: colors, depth, resolves.
type FramebufferDescription struct {
	Label       string
	RenderPass  RenderPassHandle
	Attachments []TextureHandle
	Width       uint32
	Height      uint32
	Layers      uint32
}

// Limits reports the device limits the scheduler depends on.
type Limits struct {
	MinUniformBufferOffsetAlignment uint64
	MinStorageBufferOffsetAlignment uint64
	MaxTextureDimension2D           uint32
	MaxDescriptorArraySize          uint32
}

// DefaultLimits returns limits every supported device satisfies.
func DefaultLimits() Limits {
	return Limits{
		MinUniformBufferOffsetAlignment: 256,
		MinStorageBufferOffsetAlignment: 256,
		MaxTextureDimension2D:           8192,
		MaxDescriptorArraySize:          1000,
	}
}
