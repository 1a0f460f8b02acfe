package graph

// subrange is a rectangle of mip levels by array layers of a root texture.
type subrange struct {
	root   ResourceToken
	mip    uint32
	mips   uint32
	layer  uint32
	layers uint32
}

// subresources lays every root texture out as a grid of mips by layers.
// Views address a rectangle of their parent's grid. The grid of a texture
// is its declared mip and layer count, grown to cover every view of it; an
// imported texture starts as a single cell standing for the whole texture.
type subresources struct {
	registry *registry
	dims     map[ResourceToken][2]uint32
}

func newSubresources(r *registry) *subresources {
	return &subresources{registry: r, dims: make(map[ResourceToken][2]uint32)}
}

// size returns the mips and layers of root's grid.
func (s *subresources) size(root ResourceToken) [2]uint32 {
	if d, ok := s.dims[root]; ok {
		return d
	}
	d := [2]uint32{1, 1}
	if res := s.registry.get(root); res != nil && res.kind == kindTexture {
		d = [2]uint32{max(res.desc.MipLevelCount, 1), max(res.desc.LayerCount, 1)}
	}
	for _, v := range s.registry.views[root] {
		vr := s.registry.get(v).view
		d[0] = max(d[0], vr.baseMip+vr.mipCount)
		d[1] = max(d[1], vr.baseLayer+vr.layerCount)
	}
	s.dims[root] = d
	return d
}

// rangeOf returns the cells t covers: the view's range for a view, the
// whole grid otherwise.
func (s *subresources) rangeOf(t ResourceToken) subrange {
	if res := s.registry.get(t); res != nil && res.kind == kindView {
		v := res.view
		return subrange{v.parent, v.baseMip, v.mipCount, v.baseLayer, v.layerCount}
	}
	d := s.size(t)
	return subrange{root: t, mips: d[0], layers: d[1]}
}

// cell returns the index of (mip, layer) in a grid of the given size.
func cell(dims [2]uint32, mip, layer uint32) int {
	return int(mip*dims[1] + layer)
}
