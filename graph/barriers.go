package graph

import (
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rhi"
)

// ImageBarrier is a texture transition expressed on a token. Build resolves
// it to an rhi.ImageBarrier once the texture exists.
//
// A barrier on a view covers the view's range. A barrier on a texture
// covers LevelCount levels from BaseLevel and LayerCount layers from
// BaseLayer; a zero count reaches the last level or layer.
type ImageBarrier struct {
	Token      ResourceToken
	SrcStage   rhi.PipelineStage
	DstStage   rhi.PipelineStage
	SrcAccess  rhi.Access
	DstAccess  rhi.Access
	SrcLayout  rhi.ImageLayout
	DstLayout  rhi.ImageLayout
	BaseLevel  uint32
	LevelCount uint32
	BaseLayer  uint32
	LayerCount uint32
}

// Barrier holds the transitions recorded before a pass. Images come in
// pass order: writes, then reads. Buffers likewise.
type Barrier struct {
	Images  []ImageBarrier
	Buffers []rhi.BufferBarrier
}

// Empty reports whether the barrier has no transitions.
func (b Barrier) Empty() bool {
	return len(b.Images) == 0 && len(b.Buffers) == 0
}

type imageState struct {
	layout rhi.ImageLayout
	stage  rhi.PipelineStage
	access rhi.Access
}

type imageCell struct {
	state imageState
	set   bool
}

type bufferState struct {
	stage  rhi.PipelineStage
	access rhi.Access
}

// barrierTracker follows the last known usage of every mip and layer of
// every texture, and of every buffer, while the sorted passes are walked.
type barrierTracker struct {
	sub     *subresources
	images  map[ResourceToken][]imageCell
	buffers map[rhi.BufferHandle]bufferState
}

// layerRun is a run of layers of one mip sharing a previous state.
type layerRun struct {
	layer  uint32
	layers uint32
	prev   imageState
	skip   bool
}

type mipGroup struct {
	mip  uint32
	mips uint32
	runs []layerRun
}

// image moves the cells of t to next and returns one barrier per
// rectangle of cells that shared a previous state. With skipUnset, cells
// no pass has touched keep no state and get no barrier.
func (b *barrierTracker) image(t ResourceToken, next imageState, skipUnset bool) []ImageBarrier {
	r := b.sub.rangeOf(t)
	dims := b.sub.size(r.root)
	cells := b.images[r.root]
	if cells == nil {
		cells = make([]imageCell, dims[0]*dims[1])
		b.images[r.root] = cells
	}

	var groups []mipGroup
	for m := r.mip; m < r.mip+r.mips; m++ {
		var runs []layerRun
		for l := r.layer; l < r.layer+r.layers; l++ {
			c := &cells[cell(dims, m, l)]
			skip := skipUnset && !c.set
			if n := len(runs); n > 0 && runs[n-1].prev == c.state && runs[n-1].skip == skip {
				runs[n-1].layers++
			} else {
				runs = append(runs, layerRun{layer: l, layers: 1, prev: c.state, skip: skip})
			}
			if !skip {
				*c = imageCell{state: next, set: true}
			}
		}
		if n := len(groups); n > 0 && slices.Equal(groups[n-1].runs, runs) {
			groups[n-1].mips++
			continue
		}
		groups = append(groups, mipGroup{mip: m, mips: 1, runs: runs})
	}

	whole := len(groups) == 1 && len(groups[0].runs) == 1
	var out []ImageBarrier
	for _, g := range groups {
		for _, run := range g.runs {
			if run.skip {
				continue
			}
			ib := ImageBarrier{
				Token:     t,
				SrcStage:  run.prev.stage,
				DstStage:  next.stage,
				SrcAccess: run.prev.access,
				DstAccess: next.access,
				SrcLayout: run.prev.layout,
				DstLayout: next.layout,
			}
			if !whole {
				ib.Token = r.root
				ib.BaseLevel, ib.LevelCount = g.mip, g.mips
				if g.mip+g.mips == dims[0] {
					ib.LevelCount = 0
				}
				ib.BaseLayer, ib.LayerCount = run.layer, run.layers
				if run.layer+run.layers == dims[1] {
					ib.LayerCount = 0
				}
			}
			out = append(out, ib)
		}
	}
	return out
}

func (b *barrierTracker) buffer(h rhi.BufferHandle, next bufferState) rhi.BufferBarrier {
	prev := b.buffers[h]
	b.buffers[h] = next
	return rhi.BufferBarrier{
		Buffer:    h,
		SrcStage:  prev.stage,
		DstStage:  next.stage,
		SrcAccess: prev.access,
		DstAccess: next.access,
	}
}

func shaderStage(typ PassType) rhi.PipelineStage {
	if typ == PassCompute {
		return rhi.StageComputeShader
	}
	return rhi.StageFragmentShader
}

func writeState(typ PassType, a AttachmentType) imageState {
	switch {
	case typ == PassCompute:
		return imageState{rhi.LayoutGeneral, rhi.StageComputeShader, rhi.AccessShaderWrite}
	case a == AttachmentDepth:
		return imageState{
			rhi.LayoutDepthStencilAttachmentOptimal,
			rhi.StageEarlyFragmentTests | rhi.StageLateFragmentTests,
			rhi.AccessDepthStencilAttachmentWrite,
		}
	default:
		return imageState{rhi.LayoutColorAttachmentOptimal, rhi.StageColorAttachmentOutput, rhi.AccessColorAttachmentWrite}
	}
}

func bufferReadState(typ PassType, usage gputypes.BufferUsage) bufferState {
	var s bufferState
	if usage&gputypes.BufferUsageVertex != 0 {
		s.stage |= rhi.StageVertexInput
		s.access |= rhi.AccessVertexAttributeRead
	}
	if usage&gputypes.BufferUsageIndex != 0 {
		s.stage |= rhi.StageVertexInput
		s.access |= rhi.AccessIndexRead
	}
	if usage&gputypes.BufferUsageIndirect != 0 {
		s.stage |= rhi.StageDrawIndirect
		s.access |= rhi.AccessIndirectCommandRead
	}
	if usage&(gputypes.BufferUsageUniform|gputypes.BufferUsageStorage) != 0 || s.stage == 0 {
		s.stage |= shaderStage(typ)
		s.access |= rhi.AccessShaderRead
	}
	return s
}

// deriveBarriers computes the barrier recorded before every pass. Every
// write transitions from the previous state, Undefined for the first one.
// Reads transition from the state the last writer or reader left. State is
// kept per mip and layer, so an access whose subresources were left in
// different states gets one barrier per state. Reads of imported textures
// and of buffers no pass wrote have no known previous state and get no
// barrier.
func (g *Graph) deriveBarriers(passes []*Pass) {
	tr := &barrierTracker{
		sub:     newSubresources(g.registry),
		images:  make(map[ResourceToken][]imageCell),
		buffers: make(map[rhi.BufferHandle]bufferState),
	}
	for _, p := range passes {
		var b Barrier
		for i, t := range p.writes {
			b.Images = append(b.Images, tr.image(t, writeState(p.typ, p.attachments[i].Type), false)...)
		}
		for _, t := range p.reads {
			b.Images = append(b.Images, tr.image(t, imageState{
				layout: rhi.LayoutShaderReadOnlyOptimal,
				stage:  shaderStage(p.typ),
				access: rhi.AccessShaderRead,
			}, !g.registry.transient(t))...)
		}
		for _, w := range p.bufferWrites {
			b.Buffers = append(b.Buffers, tr.buffer(w.Buffer, bufferState{shaderStage(p.typ), rhi.AccessShaderWrite}))
		}
		for _, r := range p.bufferReads {
			if _, ok := tr.buffers[r.Buffer]; !ok {
				continue
			}
			b.Buffers = append(b.Buffers, tr.buffer(r.Buffer, bufferReadState(p.typ, r.Usage)))
		}
		p.barrier = b
	}
}
