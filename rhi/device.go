package rhi

import (
	"errors"

	"github.com/gogpu/gputypes"
)

// Device errors.
var (
	// ErrUnknownHandle is returned when a handle does not name a live object.
	ErrUnknownHandle = errors.New("rhi: unknown handle")

	// ErrHandleInUse is returned when a Create call reuses a live handle.
	ErrHandleInUse = errors.New("rhi: handle already in use")

	// ErrDeviceLost is returned after the device has been destroyed.
	ErrDeviceLost = errors.New("rhi: device lost")

	// ErrUnsupported is returned for requests a backend cannot express.
	ErrUnsupported = errors.New("rhi: unsupported by backend")
)

// Device abstracts a graphics device.
//
// Handles are allocated by the caller and passed to Create methods; the
// device keeps the mapping from handle to native object. Creating with a
// live handle fails with [ErrHandleInUse]. Destroying an unknown handle is a
// no-op.
//
// A Device is driven from one goroutine at a time.
//
// Resource lifecycle:
//   - Objects are created with Create* and released with Destroy*
//   - Destroying an object still referenced by in-flight work is undefined;
//     call WaitForIdle first
//   - Handles stay invalid after destruction
type Device interface {
	// Limits returns the device limits.
	Limits() Limits

	// === Textures ===

	// CreateTexture creates a texture under h.
	CreateTexture(h TextureHandle, desc TextureDescription) error

	// CreateTextureView creates a view of desc.Texture under h. Views are
	// destroyed with DestroyTexture.
	CreateTextureView(h TextureHandle, desc TextureViewDescription) error

	// DestroyTexture releases a texture or view.
	DestroyTexture(h TextureHandle)

	// WriteTexture uploads tightly packed texels into mip 0, layer 0.
	WriteTexture(h TextureHandle, data []byte) error

	// === Buffers ===

	// CreateBuffer creates a buffer under h and uploads desc.Data.
	CreateBuffer(h BufferHandle, desc BufferDescription) error

	// DestroyBuffer releases a buffer.
	DestroyBuffer(h BufferHandle)

	// WriteBuffer copies data into the buffer at offset.
	WriteBuffer(h BufferHandle, offset uint64, data []byte) error

	// === Samplers and shaders ===

	// CreateSampler creates a sampler under h.
	CreateSampler(h SamplerHandle, desc SamplerDescription) error

	// DestroySampler releases a sampler.
	DestroySampler(h SamplerHandle)

	// CreateShader creates a shader module under h.
	CreateShader(h ShaderHandle, desc ShaderDescription) error

	// DestroyShader releases a shader module.
	DestroyShader(h ShaderHandle)

	// === Pipelines ===

	// CreateGraphicsPipeline creates a graphics pipeline for desc.RenderPass.
	CreateGraphicsPipeline(h PipelineHandle, desc GraphicsPipelineDescription) error

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(h PipelineHandle, desc ComputePipelineDescription) error

	// DestroyPipeline releases a pipeline of either kind.
	DestroyPipeline(h PipelineHandle)

	// === Descriptors ===

	// CreateDescriptorLayout creates a descriptor layout under h.
	CreateDescriptorLayout(h DescriptorLayoutHandle, desc DescriptorLayoutDescription) error

	// DestroyDescriptorLayout releases a descriptor layout.
	DestroyDescriptorLayout(h DescriptorLayoutHandle)

	// CreateDescriptor allocates a descriptor set with the given layout.
	CreateDescriptor(h DescriptorHandle, layout DescriptorLayoutHandle) error

	// DestroyDescriptor releases a descriptor set.
	DestroyDescriptor(h DescriptorHandle)

	// WriteDescriptor updates bindings of a descriptor set.
	WriteDescriptor(h DescriptorHandle, w DescriptorWrite) error

	// === Render targets ===

	// CreateRenderPass creates a render pass object under h.
	CreateRenderPass(h RenderPassHandle, desc RenderPassDescription) error

	// DestroyRenderPass releases a render pass object.
	DestroyRenderPass(h RenderPassHandle)

	// CreateFramebuffer creates a framebuffer under h.
	CreateFramebuffer(h FramebufferHandle, desc FramebufferDescription) error

	// DestroyFramebuffer releases a framebuffer.
	DestroyFramebuffer(h FramebufferHandle)

	// === Submission ===

	// RequestImmediateCommandList returns a command list for one-shot work
	// outside the frame loop.
	RequestImmediateCommandList() (CommandList, error)

	// SubmitImmediate submits a list from RequestImmediateCommandList and
	// blocks until the device has finished it.
	SubmitImmediate(cmd CommandList) error

	// BeginFrame blocks until the work previously submitted for frameIndex
	// has completed, then returns a command list for the frame.
	BeginFrame(frameIndex uint32) (CommandList, error)

	// EndFrame submits the command list returned by BeginFrame.
	EndFrame(frameIndex uint32, cmd CommandList) error

	// WaitForIdle blocks until all submitted work has completed.
	WaitForIdle() error

	// Destroy releases the device and everything created on it.
	Destroy()
}

// CommandList records GPU commands.
//
// Recording methods do not return errors. Backends remember the first
// failure and report it from EndFrame or SubmitImmediate.
type CommandList interface {
	// BeginRenderPass starts rendering into fb. Load operations and clear
	// values come from the render pass object.
	BeginRenderPass(rp RenderPassHandle, fb FramebufferHandle, offset [2]int32, size [2]uint32)

	// EndRenderPass ends the current render pass.
	EndRenderPass()

	// SetViewport sets the viewport transformation.
	SetViewport(x, y, width, height, minDepth, maxDepth float32)

	// SetScissor sets the scissor rectangle.
	SetScissor(x, y int32, width, height uint32)

	// PipelineBarrier records synchronization between preceding and
	// following commands.
	PipelineBarrier(memory []MemoryBarrier, images []ImageBarrier, buffers []BufferBarrier)

	// BindPipeline binds a pipeline.
	BindPipeline(p PipelineHandle)

	// BindDescriptor binds a descriptor set at index set. dynamicOffsets
	// holds one offset per dynamic binding, in binding order.
	BindDescriptor(p PipelineHandle, set uint32, d DescriptorHandle, dynamicOffsets []uint32)

	// BindVertexBuffers binds vertex buffers starting at slot 0.
	BindVertexBuffers(buffers []BufferHandle, offsets []uint64)

	// BindIndexBuffer binds an index buffer.
	BindIndexBuffer(b BufferHandle, format gputypes.IndexFormat)

	// Draw records a non-indexed draw.
	Draw(vertexCount, firstVertex, instanceCount, firstInstance uint32)

	// DrawIndexed records an indexed draw.
	DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32, instanceCount, firstInstance uint32)

	// Dispatch records a compute dispatch.
	Dispatch(x, y, z uint32)
}
