package graph

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rhi"
)

// PassType is the kind of work a pass records.
type PassType uint8

const (
	// PassGraphics records draws inside a render pass.
	PassGraphics PassType = iota

	// PassCompute records dispatches.
	PassCompute
)

// String returns the pass type name.
func (t PassType) String() string {
	switch t {
	case PassGraphics:
		return "Graphics"
	case PassCompute:
		return "Compute"
	default:
		return "Unknown"
	}
}

// AttachmentType is the role of a texture written by a graphics pass.
type AttachmentType uint8

const (
	// AttachmentColor is a color target. Compute passes use it for any
	// storage image they write.
	AttachmentColor AttachmentType = iota

	// AttachmentDepth is the depth-stencil target.
	AttachmentDepth

	// AttachmentResolve receives the resolved samples of a multisampled
	// color target. The n-th resolve write pairs with the n-th color write.
	AttachmentResolve
)

// String returns the attachment type name.
func (t AttachmentType) String() string {
	switch t {
	case AttachmentColor:
		return "Color"
	case AttachmentDepth:
		return "Depth"
	case AttachmentResolve:
		return "Resolve"
	default:
		return "Unknown"
	}
}

// Attachment holds how a pass writes one texture. LoadOp and StoreOp are
// derived by Compile: the first writer of a texture clears it, later
// writers load it, every writer stores.
type Attachment struct {
	Type    AttachmentType
	Clear   rhi.ClearValue
	LoadOp  gputypes.LoadOp
	StoreOp gputypes.StoreOp
}

// BufferAccess is a buffer read or written by a pass.
type BufferAccess struct {
	Buffer rhi.BufferHandle
	Usage  gputypes.BufferUsage
}

// PassContext is handed to an executor. It is a value built by Build;
// handles in it stay valid until the next Build.
type PassContext struct {
	Name        string
	Type        PassType
	Width       uint32
	Height      uint32
	Layers      uint32
	RenderPass  rhi.RenderPassHandle
	Framebuffer rhi.FramebufferHandle

	// Reads and Writes hold the device handles of the pass's textures in
	// declaration order.
	Reads  []rhi.TextureHandle
	Writes []rhi.TextureHandle

	Pipelines []rhi.PipelineHandle

	// Data is the value given to SetExecutor.
	Data any
}

// ExecuteFunc records the commands of one pass.
type ExecuteFunc func(cmd rhi.CommandList, ctx PassContext, frameIndex uint32)

// Pass is a unit of work in a Graph. Passes are created by
// Graph.AddGraphicsPass and Graph.AddComputePass.
type Pass struct {
	graph *Graph
	name  string
	typ   PassType

	reads        []ResourceToken
	writes       []ResourceToken
	attachments  []Attachment
	bufferReads  []BufferAccess
	bufferWrites []BufferAccess
	pipelines    []rhi.PipelineHandle

	executor ExecuteFunc
	data     any

	// Set by Compile.
	barrier Barrier

	// Set by Build.
	imageBarriers  []rhi.ImageBarrier
	bufferBarriers []rhi.BufferBarrier
	renderPass     rhi.RenderPassHandle
	framebuffer    rhi.FramebufferHandle
	ctx            PassContext
	targetsBuilt   bool
}

// Name returns the pass name.
func (p *Pass) Name() string { return p.name }

// Type returns the pass type.
func (p *Pass) Type() PassType { return p.typ }

// Write declares that the pass writes t. For graphics passes t becomes an
// attachment of the given type, cleared to clear if the pass is its first
// writer. Compute passes write t as a storage image and ignore typ and
// clear.
func (p *Pass) Write(t ResourceToken, typ AttachmentType, clear rhi.ClearValue) {
	p.writes = append(p.writes, t)
	p.attachments = append(p.attachments, Attachment{Type: typ, Clear: clear})
	p.graph.markDirty(DirtyPassChanges)
}

// Read declares that the pass samples t.
func (p *Pass) Read(t ResourceToken) {
	p.reads = append(p.reads, t)
	p.graph.markDirty(DirtyPassChanges)
}

// WriteBuffer declares that the pass writes b.
func (p *Pass) WriteBuffer(b rhi.BufferHandle, usage gputypes.BufferUsage) {
	p.bufferWrites = append(p.bufferWrites, BufferAccess{Buffer: b, Usage: usage})
	p.graph.markDirty(DirtyPassChanges)
}

// ReadBuffer declares that the pass reads b with the given usage.
func (p *Pass) ReadBuffer(b rhi.BufferHandle, usage gputypes.BufferUsage) {
	p.bufferReads = append(p.bufferReads, BufferAccess{Buffer: b, Usage: usage})
	p.graph.markDirty(DirtyPassChanges)
}

// AddPipeline declares a pipeline registered in storage that the pass
// binds. Build creates it: graphics pipelines against the pass's render
// pass, compute pipelines once.
func (p *Pass) AddPipeline(h rhi.PipelineHandle) {
	p.pipelines = append(p.pipelines, h)
	p.graph.markDirty(DirtyPassChanges)
}

// SetExecutor sets the function that records the pass. data is copied into
// every PassContext.
func (p *Pass) SetExecutor(fn ExecuteFunc, data any) {
	p.executor = fn
	p.data = data
	p.ctx.Data = data
}

// Reads returns the textures read by the pass.
func (p *Pass) Reads() []ResourceToken { return p.reads }

// Writes returns the textures written by the pass, aligned with
// Attachments.
func (p *Pass) Writes() []ResourceToken { return p.writes }

// Attachments returns the attachments of the pass, aligned with Writes.
func (p *Pass) Attachments() []Attachment { return p.attachments }

// BufferReads returns the buffers read by the pass.
func (p *Pass) BufferReads() []BufferAccess { return p.bufferReads }

// BufferWrites returns the buffers written by the pass.
func (p *Pass) BufferWrites() []BufferAccess { return p.bufferWrites }

// Pipelines returns the pipelines bound by the pass.
func (p *Pass) Pipelines() []rhi.PipelineHandle { return p.pipelines }

// Barrier returns the pre-pass barrier computed by Compile.
func (p *Pass) Barrier() Barrier { return p.barrier }

// ImageBarriers returns the pre-pass image barriers resolved by Build.
func (p *Pass) ImageBarriers() []rhi.ImageBarrier { return p.imageBarriers }

// BufferBarriers returns the pre-pass buffer barriers resolved by Build.
func (p *Pass) BufferBarriers() []rhi.BufferBarrier { return p.bufferBarriers }

// RenderPass returns the render pass built for a graphics pass.
func (p *Pass) RenderPass() rhi.RenderPassHandle { return p.renderPass }

// Framebuffer returns the framebuffer built for a graphics pass.
func (p *Pass) Framebuffer() rhi.FramebufferHandle { return p.framebuffer }

// Context returns the context the executor will receive.
func (p *Pass) Context() PassContext { return p.ctx }

func (p *Pass) empty() bool {
	return len(p.reads) == 0 && len(p.writes) == 0 &&
		len(p.bufferReads) == 0 && len(p.bufferWrites) == 0
}
