package halrhi

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rhi"
	"github.com/gogpu/wgpu/hal"
)

var (
	errNoRenderPass   = errors.New("halrhi: command outside a render pass")
	errInRenderPass   = errors.New("halrhi: command inside a render pass")
	errNoComputeState = errors.New("halrhi: dispatch without a compute pipeline")
)

// layoutUsage maps an image layout to the texture usage the HAL tracks.
func layoutUsage(l rhi.ImageLayout) gputypes.TextureUsage {
	switch l {
	case rhi.LayoutGeneral:
		return gputypes.TextureUsageStorageBinding
	case rhi.LayoutColorAttachmentOptimal, rhi.LayoutDepthStencilAttachmentOptimal, rhi.LayoutPresentSrc:
		return gputypes.TextureUsageRenderAttachment
	case rhi.LayoutDepthStencilReadOnlyOptimal, rhi.LayoutShaderReadOnlyOptimal:
		return gputypes.TextureUsageTextureBinding
	case rhi.LayoutTransferSrcOptimal:
		return gputypes.TextureUsageCopySrc
	case rhi.LayoutTransferDstOptimal:
		return gputypes.TextureUsageCopyDst
	default:
		return 0
	}
}

type boundGroup struct {
	group   hal.BindGroup
	offsets []uint32
}

// commandList records into a HAL command encoder. Compute passes are
// opened on demand and closed by barriers, render passes and the end of
// recording; the bound compute pipeline and bind groups carry over.
type commandList struct {
	d       *Device
	encoder hal.CommandEncoder
	render  hal.RenderPassEncoder
	compute hal.ComputePassEncoder

	computePipeline hal.ComputePipeline
	computeGroups   map[uint32]boundGroup
	err             error
}

func (d *Device) newCommandList(label string) (*commandList, error) {
	if d.destroyed {
		return nil, rhi.ErrDeviceLost
	}
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("halrhi: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("halrhi: begin encoding: %w", err)
	}
	return &commandList{d: d, encoder: encoder, computeGroups: make(map[uint32]boundGroup)}, nil
}

func (c *commandList) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *commandList) endCompute() {
	if c.compute != nil {
		c.compute.End()
		c.compute = nil
	}
}

func (c *commandList) ensureCompute() bool {
	if c.render != nil {
		c.fail(errInRenderPass)
		return false
	}
	if c.compute == nil {
		c.compute = c.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "compute"})
		if c.computePipeline != nil {
			c.compute.SetPipeline(c.computePipeline)
		}
		for set, g := range c.computeGroups {
			c.compute.SetBindGroup(set, g.group, g.offsets)
		}
	}
	return true
}

// finish ends recording. On a recording error the encoding is discarded
// and the first error returned.
func (c *commandList) finish() (hal.CommandBuffer, error) {
	if c.render != nil {
		c.render.End()
		c.render = nil
		c.fail(fmt.Errorf("%w: render pass not ended", errInRenderPass))
	}
	c.endCompute()
	if c.err != nil {
		c.encoder.DiscardEncoding()
		return nil, c.err
	}
	buf, err := c.encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("halrhi: end encoding: %w", err)
	}
	return buf, nil
}

// BeginRenderPass implements rhi.CommandList. HAL passes always cover the
// whole framebuffer; offset and size are applied through the scissor the
// caller sets.
func (c *commandList) BeginRenderPass(rp rhi.RenderPassHandle, fb rhi.FramebufferHandle, _ [2]int32, _ [2]uint32) {
	if c.render != nil {
		c.fail(errInRenderPass)
		return
	}
	c.endCompute()
	desc, err := c.d.renderPassDescriptor(rp, fb)
	if err != nil {
		c.fail(err)
		return
	}
	c.render = c.encoder.BeginRenderPass(desc)
}

func (d *Device) renderPassDescriptor(rh rhi.RenderPassHandle, fh rhi.FramebufferHandle) (*hal.RenderPassDescriptor, error) {
	rp, ok := d.renderPasses[rh]
	if !ok {
		return nil, fmt.Errorf("halrhi: render pass %d: %w", rh, rhi.ErrUnknownHandle)
	}
	fb, ok := d.framebuffers[fh]
	if !ok {
		return nil, fmt.Errorf("halrhi: framebuffer %d: %w", fh, rhi.ErrUnknownHandle)
	}
	view := func(i int) (hal.TextureView, error) {
		t, ok := d.textures[fb.Attachments[i]]
		if !ok {
			return nil, fmt.Errorf("halrhi: framebuffer %q attachment %d: %w", fb.Label, fb.Attachments[i], rhi.ErrUnknownHandle)
		}
		return t.view, nil
	}

	desc := &hal.RenderPassDescriptor{Label: rp.Label}
	next := len(rp.ColorAttachments)
	if rp.DepthAttachment != nil {
		v, err := view(next)
		if err != nil {
			return nil, err
		}
		a := rp.DepthAttachment
		ds := &hal.RenderPassDepthStencilAttachment{
			View:            v,
			DepthLoadOp:     a.LoadOp,
			DepthStoreOp:    a.StoreOp,
			DepthClearValue: a.Clear.Depth,
		}
		if hasStencil(a.Format) {
			ds.StencilLoadOp = a.LoadOp
			ds.StencilStoreOp = a.StoreOp
			ds.StencilClearValue = a.Clear.Stencil
		}
		desc.DepthStencilAttachment = ds
		next++
	}
	for i, a := range rp.ColorAttachments {
		v, err := view(i)
		if err != nil {
			return nil, err
		}
		color := hal.RenderPassColorAttachment{
			View:       v,
			LoadOp:     a.LoadOp,
			StoreOp:    a.StoreOp,
			ClearValue: a.Clear.Color,
		}
		if len(rp.ResolveAttachments) > 0 {
			if color.ResolveTarget, err = view(next + i); err != nil {
				return nil, err
			}
		}
		desc.ColorAttachments = append(desc.ColorAttachments, color)
	}
	return desc, nil
}

// EndRenderPass implements rhi.CommandList.
func (c *commandList) EndRenderPass() {
	if c.render == nil {
		c.fail(errNoRenderPass)
		return
	}
	c.render.End()
	c.render = nil
}

// SetViewport implements rhi.CommandList.
func (c *commandList) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	if c.render == nil {
		c.fail(errNoRenderPass)
		return
	}
	c.render.SetViewport(x, y, width, height, minDepth, maxDepth)
}

// SetScissor implements rhi.CommandList.
func (c *commandList) SetScissor(x, y int32, width, height uint32) {
	if c.render == nil {
		c.fail(errNoRenderPass)
		return
	}
	c.render.SetScissorRect(uint32(max(x, 0)), uint32(max(y, 0)), width, height)
}

// PipelineBarrier implements rhi.CommandList. Image barriers become usage
// transitions; memory and buffer barriers have no HAL counterpart, the HAL
// orders buffer accesses between passes itself.
func (c *commandList) PipelineBarrier(_ []rhi.MemoryBarrier, images []rhi.ImageBarrier, _ []rhi.BufferBarrier) {
	if c.render != nil {
		c.fail(errInRenderPass)
		return
	}
	c.endCompute()
	if len(images) == 0 {
		return
	}
	barriers := make([]hal.TextureBarrier, 0, len(images))
	for _, b := range images {
		t, ok := c.d.textures[b.Texture]
		if !ok {
			c.fail(fmt.Errorf("halrhi: barrier on texture %d: %w", b.Texture, rhi.ErrUnknownHandle))
			return
		}
		barriers = append(barriers, hal.TextureBarrier{
			Texture: c.d.native(t),
			Usage: hal.TextureUsageTransition{
				OldUsage: layoutUsage(b.SrcLayout),
				NewUsage: layoutUsage(b.DstLayout),
			},
		})
	}
	c.encoder.TransitionTextures(barriers)
}

// BindPipeline implements rhi.CommandList.
func (c *commandList) BindPipeline(h rhi.PipelineHandle) {
	p, ok := c.d.pipelines[h]
	if !ok {
		c.fail(fmt.Errorf("halrhi: bind pipeline %d: %w", h, rhi.ErrUnknownHandle))
		return
	}
	if p.render != nil {
		if c.render == nil {
			c.fail(errNoRenderPass)
			return
		}
		c.render.SetPipeline(p.render)
		return
	}
	c.computePipeline = p.compute
	clear(c.computeGroups)
	if c.compute != nil {
		c.compute.SetPipeline(p.compute)
	}
}

// BindDescriptor implements rhi.CommandList.
func (c *commandList) BindDescriptor(_ rhi.PipelineHandle, set uint32, h rhi.DescriptorHandle, dynamicOffsets []uint32) {
	group, err := c.d.bindGroup(h)
	if err != nil {
		c.fail(err)
		return
	}
	if c.render != nil {
		c.render.SetBindGroup(set, group, dynamicOffsets)
		return
	}
	c.computeGroups[set] = boundGroup{group: group, offsets: dynamicOffsets}
	if c.compute != nil {
		c.compute.SetBindGroup(set, group, dynamicOffsets)
	}
}

// BindVertexBuffers implements rhi.CommandList.
func (c *commandList) BindVertexBuffers(buffers []rhi.BufferHandle, offsets []uint64) {
	if c.render == nil {
		c.fail(errNoRenderPass)
		return
	}
	for i, h := range buffers {
		b, ok := c.d.buffers[h]
		if !ok {
			c.fail(fmt.Errorf("halrhi: vertex buffer %d: %w", h, rhi.ErrUnknownHandle))
			return
		}
		var off uint64
		if i < len(offsets) {
			off = offsets[i]
		}
		c.render.SetVertexBuffer(uint32(i), b.buf, off)
	}
}

// BindIndexBuffer implements rhi.CommandList.
func (c *commandList) BindIndexBuffer(h rhi.BufferHandle, format gputypes.IndexFormat) {
	if c.render == nil {
		c.fail(errNoRenderPass)
		return
	}
	b, ok := c.d.buffers[h]
	if !ok {
		c.fail(fmt.Errorf("halrhi: index buffer %d: %w", h, rhi.ErrUnknownHandle))
		return
	}
	c.render.SetIndexBuffer(b.buf, format, 0)
}

// Draw implements rhi.CommandList.
func (c *commandList) Draw(vertexCount, firstVertex, instanceCount, firstInstance uint32) {
	if c.render == nil {
		c.fail(errNoRenderPass)
		return
	}
	c.render.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

// DrawIndexed implements rhi.CommandList.
func (c *commandList) DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32, instanceCount, firstInstance uint32) {
	if c.render == nil {
		c.fail(errNoRenderPass)
		return
	}
	c.render.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

// Dispatch implements rhi.CommandList.
func (c *commandList) Dispatch(x, y, z uint32) {
	if c.computePipeline == nil {
		c.fail(errNoComputeState)
		return
	}
	if c.ensureCompute() {
		c.compute.Dispatch(x, y, z)
	}
}

var _ rhi.CommandList = (*commandList)(nil)

// === Submission ===

// RequestImmediateCommandList implements rhi.Device.
func (d *Device) RequestImmediateCommandList() (rhi.CommandList, error) {
	return d.newCommandList("immediate")
}

func (d *Device) submit(cmd rhi.CommandList) (hal.CommandBuffer, error) {
	c, ok := cmd.(*commandList)
	if !ok || c.d != d {
		return nil, ErrForeignCommandList
	}
	buf, err := c.finish()
	if err != nil {
		return nil, err
	}
	d.submitted++
	if err := d.queue.Submit([]hal.CommandBuffer{buf}, d.fence, d.submitted); err != nil {
		d.submitted--
		d.device.FreeCommandBuffer(buf)
		return nil, fmt.Errorf("halrhi: submit: %w", err)
	}
	return buf, nil
}

// SubmitImmediate implements rhi.Device.
func (d *Device) SubmitImmediate(cmd rhi.CommandList) error {
	buf, err := d.submit(cmd)
	if err != nil {
		return err
	}
	defer d.device.FreeCommandBuffer(buf)
	return d.wait(d.submitted)
}

// BeginFrame implements rhi.Device.
func (d *Device) BeginFrame(frameIndex uint32) (rhi.CommandList, error) {
	if d.destroyed {
		return nil, rhi.ErrDeviceLost
	}
	slot := d.frames[frameIndex]
	if err := d.wait(slot.value); err != nil {
		return nil, err
	}
	if slot.cmd != nil {
		d.device.FreeCommandBuffer(slot.cmd)
		d.frames[frameIndex] = frameSlot{value: slot.value}
	}
	return d.newCommandList(fmt.Sprintf("frame %d", frameIndex))
}

// EndFrame implements rhi.Device.
func (d *Device) EndFrame(frameIndex uint32, cmd rhi.CommandList) error {
	buf, err := d.submit(cmd)
	if err != nil {
		return err
	}
	d.frames[frameIndex] = frameSlot{value: d.submitted, cmd: buf}
	return nil
}
