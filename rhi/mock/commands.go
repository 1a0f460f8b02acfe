package mock

import (
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rhi"
)

// Op identifies a recorded command.
type Op uint8

// Recorded operations.
const (
	OpBeginRenderPass Op = iota + 1
	OpEndRenderPass
	OpSetViewport
	OpSetScissor
	OpPipelineBarrier
	OpBindPipeline
	OpBindDescriptor
	OpBindVertexBuffers
	OpBindIndexBuffer
	OpDraw
	OpDrawIndexed
	OpDispatch
)

var opNames = [...]string{
	OpBeginRenderPass:   "BeginRenderPass",
	OpEndRenderPass:     "EndRenderPass",
	OpSetViewport:       "SetViewport",
	OpSetScissor:        "SetScissor",
	OpPipelineBarrier:   "PipelineBarrier",
	OpBindPipeline:      "BindPipeline",
	OpBindDescriptor:    "BindDescriptor",
	OpBindVertexBuffers: "BindVertexBuffers",
	OpBindIndexBuffer:   "BindIndexBuffer",
	OpDraw:              "Draw",
	OpDrawIndexed:       "DrawIndexed",
	OpDispatch:          "Dispatch",
}

// String returns the operation name.
func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return "Unknown"
}

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op Op

	RenderPass  rhi.RenderPassHandle
	Framebuffer rhi.FramebufferHandle
	Offset      [2]int32
	Size        [2]uint32
	Viewport    [6]float32

	MemoryBarriers []rhi.MemoryBarrier
	ImageBarriers  []rhi.ImageBarrier
	BufferBarriers []rhi.BufferBarrier

	Pipeline       rhi.PipelineHandle
	Set            uint32
	Descriptor     rhi.DescriptorHandle
	DynamicOffsets []uint32

	Buffers     []rhi.BufferHandle
	Offsets     []uint64
	IndexFormat gputypes.IndexFormat

	// Counts holds draw and dispatch arguments in declaration order.
	Counts [5]uint32
	// VertexOffset is the signed DrawIndexed argument.
	VertexOffset int32
}

// CommandList records commands.
type CommandList struct {
	FrameIndex uint32
	Commands   []Command
}

// Ops returns the recorded operations in order.
func (c *CommandList) Ops() []Op {
	ops := make([]Op, len(c.Commands))
	for i := range c.Commands {
		ops[i] = c.Commands[i].Op
	}
	return ops
}

// Filter returns the recorded commands with the given op.
func (c *CommandList) Filter(op Op) []Command {
	var out []Command
	for _, cmd := range c.Commands {
		if cmd.Op == op {
			out = append(out, cmd)
		}
	}
	return out
}

func (c *CommandList) push(cmd Command) {
	c.Commands = append(c.Commands, cmd)
}

// BeginRenderPass implements rhi.CommandList.
func (c *CommandList) BeginRenderPass(rp rhi.RenderPassHandle, fb rhi.FramebufferHandle, offset [2]int32, size [2]uint32) {
	c.push(Command{Op: OpBeginRenderPass, RenderPass: rp, Framebuffer: fb, Offset: offset, Size: size})
}

// EndRenderPass implements rhi.CommandList.
func (c *CommandList) EndRenderPass() {
	c.push(Command{Op: OpEndRenderPass})
}

// SetViewport implements rhi.CommandList.
func (c *CommandList) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	c.push(Command{Op: OpSetViewport, Viewport: [6]float32{x, y, width, height, minDepth, maxDepth}})
}

// SetScissor implements rhi.CommandList.
func (c *CommandList) SetScissor(x, y int32, width, height uint32) {
	c.push(Command{Op: OpSetScissor, Offset: [2]int32{x, y}, Size: [2]uint32{width, height}})
}

// PipelineBarrier implements rhi.CommandList.
func (c *CommandList) PipelineBarrier(memory []rhi.MemoryBarrier, images []rhi.ImageBarrier, buffers []rhi.BufferBarrier) {
	c.push(Command{
		Op:             OpPipelineBarrier,
		MemoryBarriers: slices.Clone(memory),
		ImageBarriers:  slices.Clone(images),
		BufferBarriers: slices.Clone(buffers),
	})
}

// BindPipeline implements rhi.CommandList.
func (c *CommandList) BindPipeline(p rhi.PipelineHandle) {
	c.push(Command{Op: OpBindPipeline, Pipeline: p})
}

// BindDescriptor implements rhi.CommandList.
func (c *CommandList) BindDescriptor(p rhi.PipelineHandle, set uint32, d rhi.DescriptorHandle, dynamicOffsets []uint32) {
	c.push(Command{Op: OpBindDescriptor, Pipeline: p, Set: set, Descriptor: d, DynamicOffsets: slices.Clone(dynamicOffsets)})
}

// BindVertexBuffers implements rhi.CommandList.
func (c *CommandList) BindVertexBuffers(buffers []rhi.BufferHandle, offsets []uint64) {
	c.push(Command{Op: OpBindVertexBuffers, Buffers: slices.Clone(buffers), Offsets: slices.Clone(offsets)})
}

// BindIndexBuffer implements rhi.CommandList.
func (c *CommandList) BindIndexBuffer(b rhi.BufferHandle, format gputypes.IndexFormat) {
	c.push(Command{Op: OpBindIndexBuffer, Buffers: []rhi.BufferHandle{b}, IndexFormat: format})
}

// Draw implements rhi.CommandList.
func (c *CommandList) Draw(vertexCount, firstVertex, instanceCount, firstInstance uint32) {
	c.push(Command{Op: OpDraw, Counts: [5]uint32{vertexCount, firstVertex, instanceCount, firstInstance}})
}

// DrawIndexed implements rhi.CommandList.
func (c *CommandList) DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32, instanceCount, firstInstance uint32) {
	c.push(Command{
		Op:           OpDrawIndexed,
		Counts:       [5]uint32{indexCount, firstIndex, instanceCount, firstInstance},
		VertexOffset: vertexOffset,
	})
}

// Dispatch implements rhi.CommandList.
func (c *CommandList) Dispatch(x, y, z uint32) {
	c.push(Command{Op: OpDispatch, Counts: [5]uint32{x, y, z}})
}

var _ rhi.CommandList = (*CommandList)(nil)
