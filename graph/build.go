package graph

import (
	"fmt"

	"github.com/gogpu/rendergraph/rhi"
	"github.com/gogpu/rendergraph/storage"
)

// Build compiles the graph if passes changed, creates the transient
// textures that are missing or whose framebuffer-relative size changed,
// resolves barriers to device handles and builds the render pass and
// framebuffer of every graphics pass. Graphics pipelines of a pass are
// bound to its render pass and recreated with it; compute pipelines are
// created once.
//
// Build is cheap when nothing changed. A Build that recreates textures
// must not race with in-flight frames: wait for the device to be idle.
func (g *Graph) Build(s *storage.Storage) error {
	if g.dirty&DirtyPassChanges != 0 {
		if err := g.Compile(); err != nil {
			return err
		}
	}

	if err := g.realize(s); err != nil {
		return err
	}

	for _, p := range g.compiled {
		if err := g.buildPass(s, p); err != nil {
			return fmt.Errorf("graph %q pass %q: %w", g.name, p.name, err)
		}
	}

	g.dirty = 0
	g.built = true
	slogger().Debug("graph: built", "graph", g.name, "passes", len(g.compiled),
		"width", g.extent[0], "height", g.extent[1])
	return nil
}

// extentOf returns the size a transient texture gets for the current
// framebuffer extent.
func (g *Graph) extentOf(r *resource) [2]uint32 {
	if r.desc.SizeMethod == SizeFramebufferRatio {
		return [2]uint32{
			g.extent[0] * r.desc.Width / 100,
			g.extent[1] * r.desc.Height / 100,
		}
	}
	return [2]uint32{r.desc.Width, r.desc.Height}
}

// realize creates missing transient textures and recreates those whose
// size changed. Views of a recreated texture are recreated with it.
func (g *Graph) realize(s *storage.Storage) error {
	var stale, created []ResourceToken
	g.registry.resources.Each(func(t ResourceToken, r resource) {
		if r.kind != kindTexture {
			return
		}
		if r.handle == rhi.InvalidHandle || r.extent != g.extentOf(&r) {
			stale = append(stale, t)
		}
	})

	for _, t := range stale {
		g.releaseTexture(s, t)
	}

	for _, t := range stale {
		r := g.registry.get(t)
		extent := g.extentOf(r)
		desc := r.desc.TextureDescription
		desc.Width, desc.Height = extent[0], extent[1]
		if desc.Label == "" {
			desc.Label = fmt.Sprintf("%s/%d", g.name, t)
		}
		h, err := s.CreateTexture(desc)
		if err != nil {
			return fmt.Errorf("graph %q token %d: %w", g.name, t, err)
		}
		r = g.registry.get(t)
		r.handle, r.extent = h, extent
		created = append(created, t)
		slogger().Debug("graph: texture realized", "graph", g.name, "token", t,
			"handle", h, "width", extent[0], "height", extent[1])
	}

	var views []ResourceToken
	g.registry.resources.Each(func(t ResourceToken, r resource) {
		if r.kind == kindView && r.handle == rhi.InvalidHandle {
			views = append(views, t)
		}
	})
	for _, t := range views {
		r := g.registry.get(t)
		parent := g.registry.get(r.view.parent)
		h, err := s.CreateTextureView(rhi.TextureViewDescription{
			Label:         fmt.Sprintf("%s/%d", g.name, t),
			Texture:       parent.handle,
			BaseMipLevel:  r.view.baseMip,
			MipLevelCount: r.view.mipCount,
			BaseLayer:     r.view.baseLayer,
			LayerCount:    r.view.layerCount,
		})
		if err != nil {
			return fmt.Errorf("graph %q view %d: %w", g.name, t, err)
		}
		r = g.registry.get(t)
		r.handle = h
		created = append(created, t)
	}

	for _, t := range created {
		r := g.registry.get(t)
		for _, fn := range r.onReady {
			if err := fn(r.handle, s); err != nil {
				return fmt.Errorf("graph %q token %d ready: %w", g.name, t, err)
			}
		}
	}
	return nil
}

// releaseTexture destroys a transient texture and its views.
func (g *Graph) releaseTexture(s *storage.Storage, t ResourceToken) {
	for _, v := range g.registry.views[t] {
		if r := g.registry.get(v); r.handle != rhi.InvalidHandle {
			s.DestroyTexture(r.handle)
			r.handle = rhi.InvalidHandle
		}
	}
	if r := g.registry.get(t); r.handle != rhi.InvalidHandle {
		s.DestroyTexture(r.handle)
		r.handle = rhi.InvalidHandle
		r.extent = [2]uint32{}
	}
}

func (g *Graph) buildPass(s *storage.Storage, p *Pass) error {
	if err := g.resolveBarriers(s, p); err != nil {
		return err
	}

	rebuild := !p.targetsBuilt || g.dirty&DirtyPassChanges != 0 ||
		(g.dirty&DirtySizeUpdate != 0 && g.hasRelativeOutput(p))
	if p.typ == PassGraphics && rebuild {
		if err := g.buildTargets(s, p); err != nil {
			return err
		}
	}

	for _, h := range p.pipelines {
		if s.IsGraphicsPipeline(h) {
			if p.typ == PassCompute {
				return fmt.Errorf("%w: graphics pipeline %d in compute pass", ErrInvalidPipeline, h)
			}
			continue
		}
		if !s.IsPipelineCreated(h) {
			if err := s.CreatePipeline(h); err != nil {
				return err
			}
		}
	}

	g.fillContext(s, p)
	return nil
}

func (g *Graph) hasRelativeOutput(p *Pass) bool {
	for _, t := range p.writes {
		if g.registry.relative(t) {
			return true
		}
	}
	return false
}

func (g *Graph) resolveBarriers(s *storage.Storage, p *Pass) error {
	p.imageBarriers = p.imageBarriers[:0]
	for _, b := range p.barrier.Images {
		h := g.Texture(b.Token)
		base, levels, baseLayer, layers, err := subresourceRange(s, h, b)
		if err != nil {
			return fmt.Errorf("barrier of token %d: %w", b.Token, err)
		}
		p.imageBarriers = append(p.imageBarriers, rhi.ImageBarrier{
			Texture:    h,
			SrcStage:   b.SrcStage,
			DstStage:   b.DstStage,
			SrcAccess:  b.SrcAccess,
			DstAccess:  b.DstAccess,
			SrcLayout:  b.SrcLayout,
			DstLayout:  b.DstLayout,
			BaseLevel:  base,
			LevelCount: levels,
			BaseLayer:  baseLayer,
			LayerCount: layers,
		})
	}
	p.bufferBarriers = append(p.bufferBarriers[:0], p.barrier.Buffers...)
	return nil
}

// subresourceRange returns the mips and layers a barrier on h covers: the
// view's range for a view, the barrier's range of the texture otherwise.
func subresourceRange(s *storage.Storage, h rhi.TextureHandle, b ImageBarrier) (baseMip, mips, baseLayer, layers uint32, err error) {
	if v, ok := s.TextureView(h); ok {
		return v.BaseMipLevel, v.MipLevelCount, v.BaseLayer, v.LayerCount, nil
	}
	desc, ok := s.TextureDescription(h)
	if !ok {
		return 0, 0, 0, 0, fmt.Errorf("texture %d: %w", h, storage.ErrUnknownHandle)
	}
	total, totalLayers := max(desc.MipLevelCount, 1), max(desc.LayerCount, 1)
	mips, layers = b.LevelCount, b.LayerCount
	if mips == 0 {
		mips = total - min(b.BaseLevel, total)
	}
	if layers == 0 {
		layers = totalLayers - min(b.BaseLayer, totalLayers)
	}
	return b.BaseLevel, mips, b.BaseLayer, layers, nil
}

func attachmentLayout(a AttachmentType) rhi.ImageLayout {
	if a == AttachmentDepth {
		return rhi.LayoutDepthStencilAttachmentOptimal
	}
	return rhi.LayoutColorAttachmentOptimal
}

// buildTargets creates the render pass and framebuffer of a graphics pass
// from its writes, then recreates its graphics pipelines against the new
// render pass. The old objects are released last.
func (g *Graph) buildTargets(s *storage.Storage, p *Pass) error {
	oldRP, oldFB := p.renderPass, p.framebuffer
	p.renderPass, p.framebuffer = rhi.InvalidHandle, rhi.InvalidHandle
	defer func() {
		if oldFB != rhi.InvalidHandle {
			s.DestroyFramebuffer(oldFB)
		}
		if oldRP != rhi.InvalidHandle {
			s.DestroyRenderPass(oldRP)
		}
	}()

	if len(p.writes) == 0 {
		p.targetsBuilt = true
		for _, h := range p.pipelines {
			if s.IsGraphicsPipeline(h) {
				return fmt.Errorf("%w: graphics pipeline %d in a pass without attachments", ErrInvalidPipeline, h)
			}
		}
		return nil
	}

	var (
		colors, resolves []rhi.RenderPassAttachment
		depth            *rhi.RenderPassAttachment
		extent           [2]uint32
		layers           uint32
	)
	for i, t := range p.writes {
		a := p.attachments[i]
		h := g.Texture(t)
		desc, ok := s.TextureDescription(h)
		if !ok {
			return fmt.Errorf("attachment token %d: %w", t, storage.ErrUnknownHandle)
		}
		if i == 0 {
			extent, layers = [2]uint32{desc.Width, desc.Height}, desc.LayerCount
		} else if extent != [2]uint32{desc.Width, desc.Height} {
			return fmt.Errorf("%w: token %d is %dx%d, pass targets are %dx%d",
				ErrInvalidAttachment, t, desc.Width, desc.Height, extent[0], extent[1])
		}

		rpa := rhi.RenderPassAttachment{
			Texture:       h,
			Format:        desc.Format,
			SampleCount:   desc.SampleCount,
			LoadOp:        a.LoadOp,
			StoreOp:       a.StoreOp,
			Clear:         a.Clear,
			InitialLayout: attachmentLayout(a.Type),
			FinalLayout:   attachmentLayout(a.Type),
		}
		switch a.Type {
		case AttachmentColor:
			colors = append(colors, rpa)
		case AttachmentDepth:
			if depth != nil {
				return fmt.Errorf("%w: more than one depth attachment", ErrInvalidAttachment)
			}
			depth = &rpa
		case AttachmentResolve:
			resolves = append(resolves, rpa)
		}
	}
	if len(resolves) != 0 && len(resolves) != len(colors) {
		return fmt.Errorf("%w: %d resolve attachments for %d color attachments",
			ErrInvalidAttachment, len(resolves), len(colors))
	}

	rp, err := s.CreateRenderPass(rhi.RenderPassDescription{
		Label:              p.name,
		ColorAttachments:   colors,
		DepthAttachment:    depth,
		ResolveAttachments: resolves,
	})
	if err != nil {
		return err
	}

	views := make([]rhi.TextureHandle, 0, len(p.writes))
	for _, c := range colors {
		views = append(views, c.Texture)
	}
	if depth != nil {
		views = append(views, depth.Texture)
	}
	for _, r := range resolves {
		views = append(views, r.Texture)
	}
	fb, err := s.CreateFramebuffer(rhi.FramebufferDescription{
		Label:       p.name,
		RenderPass:  rp,
		Attachments: views,
		Width:       extent[0],
		Height:      extent[1],
		Layers:      layers,
	})
	if err != nil {
		s.DestroyRenderPass(rp)
		return err
	}
	p.renderPass, p.framebuffer = rp, fb

	for _, h := range p.pipelines {
		if !s.IsGraphicsPipeline(h) {
			continue
		}
		if err := s.SetPipelineRenderPass(h, rp); err != nil {
			return err
		}
		if err := s.CreatePipeline(h); err != nil {
			return err
		}
	}

	p.targetsBuilt = true
	slogger().Debug("graph: render targets built", "graph", g.name, "pass", p.name,
		"renderPass", rp, "framebuffer", fb, "width", extent[0], "height", extent[1])
	return nil
}

func (g *Graph) fillContext(s *storage.Storage, p *Pass) {
	ctx := PassContext{
		Name:        p.name,
		Type:        p.typ,
		Layers:      1,
		RenderPass:  p.renderPass,
		Framebuffer: p.framebuffer,
		Reads:       make([]rhi.TextureHandle, len(p.reads)),
		Writes:      make([]rhi.TextureHandle, len(p.writes)),
		Pipelines:   append([]rhi.PipelineHandle(nil), p.pipelines...),
		Data:        p.data,
	}
	for i, t := range p.reads {
		ctx.Reads[i] = g.Texture(t)
	}
	for i, t := range p.writes {
		ctx.Writes[i] = g.Texture(t)
	}
	if len(ctx.Writes) > 0 {
		if desc, ok := s.TextureDescription(ctx.Writes[0]); ok {
			ctx.Width, ctx.Height, ctx.Layers = desc.Width, desc.Height, desc.LayerCount
		}
	} else {
		ctx.Width, ctx.Height = g.extent[0], g.extent[1]
	}
	p.ctx = ctx
}

// Destroy releases every object the graph created: render passes,
// framebuffers, pipeline device objects and transient textures. Imported
// textures and pipeline descriptions are left alone. The graph can be built
// again afterwards.
func (g *Graph) Destroy(s *storage.Storage) {
	for _, p := range g.passes {
		if p.framebuffer != rhi.InvalidHandle {
			s.DestroyFramebuffer(p.framebuffer)
		}
		if p.renderPass != rhi.InvalidHandle {
			s.DestroyRenderPass(p.renderPass)
		}
		for _, h := range p.pipelines {
			s.DestroyPipeline(h)
		}
		p.renderPass, p.framebuffer = rhi.InvalidHandle, rhi.InvalidHandle
		p.targetsBuilt = false
		p.ctx = PassContext{Data: p.data}
	}

	var textures []ResourceToken
	g.registry.resources.Each(func(t ResourceToken, r resource) {
		if r.kind == kindTexture {
			textures = append(textures, t)
		}
	})
	for _, t := range textures {
		g.releaseTexture(s, t)
	}

	g.built = false
	g.markDirty(DirtyPassChanges)
	slogger().Debug("graph: destroyed", "graph", g.name)
}
