// Package graph schedules render passes.
//
// Rendering code declares passes and the textures and buffers they read and
// write. The graph orders the passes so that every writer runs before the
// readers of what it wrote, creates the transient textures it was asked
// for, derives attachment load operations and the barriers between passes,
// and builds a render pass and framebuffer for every graphics pass.
//
//	g := graph.New("scene")
//	g.SetFramebufferExtent(1920, 1080)
//	hdr := g.Create(graph.TextureDescription{...})
//
//	main := g.AddGraphicsPass("main")
//	main.Write(hdr, graph.AttachmentColor, rhi.ClearColor(0, 0, 0, 1))
//	main.SetExecutor(drawScene, sceneData)
//
//	post := g.AddGraphicsPass("tonemap")
//	post.Read(hdr)
//	post.Write(swapchain, graph.AttachmentColor, rhi.ClearValue{})
//	post.SetExecutor(tonemap, nil)
//
//	if err := g.Build(storage); err != nil { ... }
//	err := g.Execute(cmd, frameIndex)
//
// A Graph is driven from a single goroutine. Rebuilding after a resize
// requires the device to be idle.
package graph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/rhi"
)

// Graph errors.
var (
	ErrDuplicatePassName = errors.New("graph: duplicate pass name")
	ErrCycleDetected     = errors.New("graph: cycle detected")
	ErrReadBeforeWrite   = errors.New("graph: transient texture read but never written")
	ErrReadWriteSamePass = errors.New("graph: texture read and written by the same pass")
	ErrUnknownToken      = errors.New("graph: unknown resource token")
	ErrMissingExecutor   = errors.New("graph: pass has no executor")
	ErrNotBuilt          = errors.New("graph: not built")
	ErrInvalidAttachment = errors.New("graph: invalid attachment")
	ErrInvalidPipeline   = errors.New("graph: invalid pipeline for pass")
)

// Dirty records what changed since the last Build.
type Dirty uint8

const (
	// DirtyPassChanges is set when passes or their resources change.
	DirtyPassChanges Dirty = 1 << iota

	// DirtySizeUpdate is set when the framebuffer extent changes.
	DirtySizeUpdate
)

// Graph is a set of passes and the textures they share.
type Graph struct {
	name     string
	registry *registry
	passes   []*Pass
	compiled []*Pass

	extent [2]uint32
	dirty  Dirty
	built  bool
}

func slogger() *slog.Logger { return rendergraph.Logger() }

// New returns an empty graph.
func New(name string) *Graph {
	return &Graph{
		name:     name,
		registry: newRegistry(),
		dirty:    DirtyPassChanges,
	}
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

func (g *Graph) markDirty(d Dirty) { g.dirty |= d }

// Dirty returns the changes not yet applied by Build.
func (g *Graph) Dirty() Dirty { return g.dirty }

// AddGraphicsPass adds a graphics pass. Names must be unique; duplicates
// are reported by Compile.
func (g *Graph) AddGraphicsPass(name string) *Pass {
	return g.addPass(name, PassGraphics)
}

// AddComputePass adds a compute pass.
func (g *Graph) AddComputePass(name string) *Pass {
	return g.addPass(name, PassCompute)
}

func (g *Graph) addPass(name string, typ PassType) *Pass {
	p := &Pass{graph: g, name: name, typ: typ}
	g.passes = append(g.passes, p)
	g.markDirty(DirtyPassChanges)
	return p
}

// Passes returns the passes in declaration order.
func (g *Graph) Passes() []*Pass { return g.passes }

// CompiledPasses returns the passes that survived compilation, in
// execution order.
func (g *Graph) CompiledPasses() []*Pass { return g.compiled }

// Create declares a transient texture created by Build.
func (g *Graph) Create(desc TextureDescription) ResourceToken {
	g.markDirty(DirtyPassChanges)
	return g.registry.resources.Insert(resource{kind: kindTexture, desc: desc})
}

// CreateView declares a view of a subresource range of t. Zero counts
// select one level or layer.
func (g *Graph) CreateView(t ResourceToken, baseMip, mipCount, baseLayer, layerCount uint32) (ResourceToken, error) {
	parent := g.registry.get(t)
	if parent == nil || parent.kind == kindView {
		return 0, fmt.Errorf("view of token %d: %w", t, ErrUnknownToken)
	}
	v := g.registry.resources.Insert(resource{
		kind: kindView,
		view: viewRange{
			parent:     t,
			baseMip:    baseMip,
			mipCount:   max(mipCount, 1),
			baseLayer:  baseLayer,
			layerCount: max(layerCount, 1),
		},
	})
	g.registry.views[t] = append(g.registry.views[t], v)
	g.markDirty(DirtyPassChanges)
	return v, nil
}

// MustCreateView is like CreateView but panics on error.
func (g *Graph) MustCreateView(t ResourceToken, baseMip, mipCount, baseLayer, layerCount uint32) ResourceToken {
	v, err := g.CreateView(t, baseMip, mipCount, baseLayer, layerCount)
	if err != nil {
		panic(err)
	}
	return v
}

// Import wraps a texture created outside the graph, such as a swapchain
// image. The graph never creates or destroys it.
func (g *Graph) Import(h rhi.TextureHandle) ResourceToken {
	g.markDirty(DirtyPassChanges)
	return g.registry.resources.Insert(resource{kind: kindImported, handle: h})
}

// OnReady registers fn to run every time Build creates the texture behind
// t. Imported textures never fire.
func (g *Graph) OnReady(t ResourceToken, fn ReadyFunc) error {
	r := g.registry.get(t)
	if r == nil {
		return fmt.Errorf("on ready of token %d: %w", t, ErrUnknownToken)
	}
	r.onReady = append(r.onReady, fn)
	return nil
}

// Texture returns the device handle behind t, or rhi.InvalidHandle if t is
// transient and not yet built.
func (g *Graph) Texture(t ResourceToken) rhi.TextureHandle {
	if r := g.registry.get(t); r != nil {
		return r.handle
	}
	return rhi.InvalidHandle
}

// IsTransient reports whether the texture behind t is created by the graph.
func (g *Graph) IsTransient(t ResourceToken) bool {
	return g.registry.transient(t)
}

// SetFramebufferExtent sets the extent framebuffer-relative textures are
// sized against.
func (g *Graph) SetFramebufferExtent(width, height uint32) {
	if g.extent == [2]uint32{width, height} {
		return
	}
	g.extent = [2]uint32{width, height}
	g.markDirty(DirtySizeUpdate)
}

// FramebufferExtent returns the extent set by SetFramebufferExtent.
func (g *Graph) FramebufferExtent() (width, height uint32) {
	return g.extent[0], g.extent[1]
}
