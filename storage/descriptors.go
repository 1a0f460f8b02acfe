package storage

import (
	"fmt"

	"github.com/gogpu/rendergraph/rhi"
)

// CreateDescriptorLayout creates a descriptor layout.
func (st *Storage) CreateDescriptorLayout(desc rhi.DescriptorLayoutDescription) (rhi.DescriptorLayoutHandle, error) {
	seen := make(map[uint32]bool, len(desc.Bindings))
	for _, b := range desc.Bindings {
		if seen[b.Binding] {
			return rhi.InvalidHandle, fmt.Errorf("descriptor layout %q: %w: binding %d declared twice",
				desc.Label, ErrInvalidDescription, b.Binding)
		}
		seen[b.Binding] = true
	}

	desc.Bindings = append([]rhi.DescriptorBinding(nil), desc.Bindings...)
	h := st.layouts.Insert(desc)
	if err := st.device.CreateDescriptorLayout(h, desc); err != nil {
		st.layouts.Remove(h)
		return rhi.InvalidHandle, fmt.Errorf("create descriptor layout %q: %w", desc.Label, err)
	}
	return h, nil
}

// DescriptorLayoutDescription returns the description of a layout.
func (st *Storage) DescriptorLayoutDescription(h rhi.DescriptorLayoutHandle) (rhi.DescriptorLayoutDescription, bool) {
	return st.layouts.Get(h)
}

// DestroyDescriptorLayout releases a descriptor layout.
func (st *Storage) DestroyDescriptorLayout(h rhi.DescriptorLayoutHandle) {
	if !st.layouts.Remove(h) {
		return
	}
	st.device.DestroyDescriptorLayout(h)
}

// CreateDescriptor allocates a descriptor set with the given layout.
func (st *Storage) CreateDescriptor(layout rhi.DescriptorLayoutHandle) (rhi.DescriptorHandle, error) {
	if !st.layouts.Contains(layout) {
		return rhi.InvalidHandle, fmt.Errorf("descriptor layout %d: %w", layout, ErrUnknownHandle)
	}
	h := st.descriptors.Insert(layout)
	if err := st.device.CreateDescriptor(h, layout); err != nil {
		st.descriptors.Remove(h)
		return rhi.InvalidHandle, fmt.Errorf("create descriptor: %w", err)
	}
	return h, nil
}

// WriteDescriptor updates bindings of a descriptor set.
func (st *Storage) WriteDescriptor(h rhi.DescriptorHandle, w rhi.DescriptorWrite) error {
	if !st.descriptors.Contains(h) {
		return fmt.Errorf("descriptor %d: %w", h, ErrUnknownHandle)
	}
	return st.device.WriteDescriptor(h, w)
}

// DestroyDescriptor releases a descriptor set.
func (st *Storage) DestroyDescriptor(h rhi.DescriptorHandle) {
	if !st.descriptors.Remove(h) {
		return
	}
	st.device.DestroyDescriptor(h)
}

// CreateRenderPass creates a render pass object.
func (st *Storage) CreateRenderPass(desc rhi.RenderPassDescription) (rhi.RenderPassHandle, error) {
	if len(desc.ColorAttachments) == 0 && desc.DepthAttachment == nil {
		return rhi.InvalidHandle, fmt.Errorf("render pass %q: %w: no attachments", desc.Label, ErrInvalidDescription)
	}
	if n := len(desc.ResolveAttachments); n > 0 && n != len(desc.ColorAttachments) {
		return rhi.InvalidHandle, fmt.Errorf("render pass %q: %w: %d resolve attachments for %d color attachments",
			desc.Label, ErrInvalidDescription, n, len(desc.ColorAttachments))
	}

	h := st.renderPasses.Insert(desc)
	if err := st.device.CreateRenderPass(h, desc); err != nil {
		st.renderPasses.Remove(h)
		return rhi.InvalidHandle, fmt.Errorf("create render pass %q: %w", desc.Label, err)
	}
	return h, nil
}

// RenderPassDescription returns the description of a render pass.
func (st *Storage) RenderPassDescription(h rhi.RenderPassHandle) (rhi.RenderPassDescription, bool) {
	return st.renderPasses.Get(h)
}

// DestroyRenderPass releases a render pass object.
func (st *Storage) DestroyRenderPass(h rhi.RenderPassHandle) {
	if !st.renderPasses.Remove(h) {
		return
	}
	st.device.DestroyRenderPass(h)
}

// CreateFramebuffer creates a framebuffer for desc.RenderPass.
func (st *Storage) CreateFramebuffer(desc rhi.FramebufferDescription) (rhi.FramebufferHandle, error) {
	if !st.renderPasses.Contains(desc.RenderPass) {
		return rhi.InvalidHandle, fmt.Errorf("framebuffer %q render pass %d: %w", desc.Label, desc.RenderPass, ErrUnknownHandle)
	}
	for _, t := range desc.Attachments {
		if !st.textures.Contains(t) {
			return rhi.InvalidHandle, fmt.Errorf("framebuffer %q attachment %d: %w", desc.Label, t, ErrUnknownHandle)
		}
	}
	if desc.Layers == 0 {
		desc.Layers = 1
	}

	desc.Attachments = append([]rhi.TextureHandle(nil), desc.Attachments...)
	h := st.framebuffers.Insert(desc)
	if err := st.device.CreateFramebuffer(h, desc); err != nil {
		st.framebuffers.Remove(h)
		return rhi.InvalidHandle, fmt.Errorf("create framebuffer %q: %w", desc.Label, err)
	}
	return h, nil
}

// DestroyFramebuffer releases a framebuffer.
func (st *Storage) DestroyFramebuffer(h rhi.FramebufferHandle) {
	if !st.framebuffers.Remove(h) {
		return
	}
	st.device.DestroyFramebuffer(h)
}
