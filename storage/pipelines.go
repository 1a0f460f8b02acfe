package storage

import (
	"fmt"

	"github.com/gogpu/rendergraph/rhi"
)

// Pipelines are virtual: Add* only stores a description and returns a
// handle. The device object is made by CreatePipeline, which the graph
// calls once the render pass a graphics pipeline draws into is known.

// AddGraphicsPipeline registers a graphics pipeline description.
func (st *Storage) AddGraphicsPipeline(desc rhi.GraphicsPipelineDescription) rhi.PipelineHandle {
	d := desc
	d.DescriptorLayouts = append([]rhi.DescriptorLayoutHandle(nil), desc.DescriptorLayouts...)
	return st.pipelines.Insert(pipelineEntry{graphics: &d})
}

// AddComputePipeline registers a compute pipeline description.
func (st *Storage) AddComputePipeline(desc rhi.ComputePipelineDescription) rhi.PipelineHandle {
	d := desc
	d.DescriptorLayouts = append([]rhi.DescriptorLayoutHandle(nil), desc.DescriptorLayouts...)
	return st.pipelines.Insert(pipelineEntry{compute: &d})
}

// IsGraphicsPipeline reports whether h names a graphics pipeline.
func (st *Storage) IsGraphicsPipeline(h rhi.PipelineHandle) bool {
	e, ok := st.pipelines.Get(h)
	return ok && e.graphics != nil
}

// IsPipelineCreated reports whether the device object of h exists.
func (st *Storage) IsPipelineCreated(h rhi.PipelineHandle) bool {
	e, ok := st.pipelines.Get(h)
	return ok && e.created
}

// GraphicsPipelineDescription returns the stored description of a graphics
// pipeline.
func (st *Storage) GraphicsPipelineDescription(h rhi.PipelineHandle) (rhi.GraphicsPipelineDescription, bool) {
	e, ok := st.pipelines.Get(h)
	if !ok || e.graphics == nil {
		return rhi.GraphicsPipelineDescription{}, false
	}
	return *e.graphics, true
}

// SetPipelineRenderPass binds a graphics pipeline to rp. The device object,
// if any, keeps its old render pass until CreatePipeline is called again.
func (st *Storage) SetPipelineRenderPass(h rhi.PipelineHandle, rp rhi.RenderPassHandle) error {
	e := st.pipelines.Ptr(h)
	if e == nil {
		return fmt.Errorf("pipeline %d: %w", h, ErrUnknownHandle)
	}
	if e.graphics == nil {
		return fmt.Errorf("pipeline %d: %w: compute pipelines have no render pass", h, ErrInvalidDescription)
	}
	e.graphics.RenderPass = rp
	return nil
}

// CreatePipeline creates the device object of h, replacing a previous one.
// Graphics pipelines need a render pass set first.
func (st *Storage) CreatePipeline(h rhi.PipelineHandle) error {
	e := st.pipelines.Ptr(h)
	if e == nil {
		return fmt.Errorf("pipeline %d: %w", h, ErrUnknownHandle)
	}
	if e.created {
		st.device.DestroyPipeline(h)
		e.created = false
	}

	var err error
	switch {
	case e.graphics != nil:
		if e.graphics.RenderPass == rhi.InvalidHandle {
			return fmt.Errorf("pipeline %q: %w: no render pass", e.graphics.Label, ErrInvalidDescription)
		}
		err = st.device.CreateGraphicsPipeline(h, *e.graphics)
	case e.compute != nil:
		err = st.device.CreateComputePipeline(h, *e.compute)
	}
	if err != nil {
		return fmt.Errorf("create pipeline %d: %w", h, err)
	}
	e.created = true
	return nil
}

// DestroyPipeline releases the device object of h and keeps the
// description, so the pipeline can be created again.
func (st *Storage) DestroyPipeline(h rhi.PipelineHandle) {
	e := st.pipelines.Ptr(h)
	if e == nil || !e.created {
		return
	}
	st.device.DestroyPipeline(h)
	e.created = false
}

// RemovePipeline destroys h and forgets its description.
func (st *Storage) RemovePipeline(h rhi.PipelineHandle) {
	st.DestroyPipeline(h)
	st.pipelines.Remove(h)
}
