package graph

import (
	"github.com/gogpu/rendergraph/internal/arena"
	"github.com/gogpu/rendergraph/rhi"
	"github.com/gogpu/rendergraph/storage"
)

// ResourceToken names a texture inside one Graph. It is an index into the
// graph's registry, not a device handle; the handle it stands for is known
// only after Build.
type ResourceToken uint32

// SizeMethod selects how the extent of a transient texture is computed.
type SizeMethod uint8

const (
	// SizeFixed uses Width and Height as given.
	SizeFixed SizeMethod = iota

	// SizeFramebufferRatio treats Width and Height as percentages of the
	// graph's framebuffer extent.
	SizeFramebufferRatio
)

// TextureDescription describes a transient texture.
type TextureDescription struct {
	rhi.TextureDescription
	SizeMethod SizeMethod
}

// ReadyFunc is called after a transient texture has been created or
// recreated, typically to add it to the global descriptor.
type ReadyFunc func(h rhi.TextureHandle, s *storage.Storage) error

type resourceKind uint8

const (
	kindTexture resourceKind = iota
	kindView
	kindImported
)

type viewRange struct {
	parent     ResourceToken
	baseMip    uint32
	mipCount   uint32
	baseLayer  uint32
	layerCount uint32
}

type resource struct {
	kind    resourceKind
	desc    TextureDescription
	view    viewRange
	handle  rhi.TextureHandle
	extent  [2]uint32
	onReady []ReadyFunc
}

type registry struct {
	resources *arena.Arena[ResourceToken, resource]
	views     map[ResourceToken][]ResourceToken
}

func newRegistry() *registry {
	return &registry{
		resources: arena.New[ResourceToken, resource](),
		views:     make(map[ResourceToken][]ResourceToken),
	}
}

func (r *registry) get(t ResourceToken) *resource { return r.resources.Ptr(t) }

// root returns the texture a view was made from, or t itself.
func (r *registry) root(t ResourceToken) ResourceToken {
	if res := r.get(t); res != nil && res.kind == kindView {
		return res.view.parent
	}
	return t
}

// related returns t plus every token whose subresources overlap t's:
// its parent for a view, its views for a texture.
func (r *registry) related(t ResourceToken) []ResourceToken {
	res := r.get(t)
	if res == nil {
		return nil
	}
	if res.kind == kindView {
		return []ResourceToken{t, res.view.parent}
	}
	return append([]ResourceToken{t}, r.views[t]...)
}

// transient reports whether t, or the texture t is a view of, is created
// by the graph.
func (r *registry) transient(t ResourceToken) bool {
	res := r.get(r.root(t))
	return res != nil && res.kind == kindTexture
}

// relative reports whether t is sized against the framebuffer.
func (r *registry) relative(t ResourceToken) bool {
	res := r.get(r.root(t))
	return res != nil && res.kind == kindTexture && res.desc.SizeMethod == SizeFramebufferRatio
}
