package storage

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rhi"
)

func validateTexture(desc rhi.TextureDescription, limits rhi.Limits) error {
	if desc.Usage == 0 {
		return fmt.Errorf("texture %q: %w: no usage", desc.Label, ErrUnsupportedUsage)
	}
	if desc.Usage&gputypes.TextureUsageStorageBinding != 0 && desc.SampleCount > 1 {
		return fmt.Errorf("texture %q: %w: storage binding on multisampled texture", desc.Label, ErrUnsupportedUsage)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return fmt.Errorf("texture %q: %w: zero extent %dx%d", desc.Label, ErrInvalidDescription, desc.Width, desc.Height)
	}
	if m := limits.MaxTextureDimension2D; m > 0 && (desc.Width > m || desc.Height > m) {
		return fmt.Errorf("texture %q: %w: extent %dx%d exceeds %d", desc.Label, ErrInvalidDescription, desc.Width, desc.Height, m)
	}
	return nil
}

func validateBuffer(desc rhi.BufferDescription) error {
	if desc.Usage == 0 {
		return fmt.Errorf("buffer %q: %w: no usage", desc.Label, ErrUnsupportedUsage)
	}
	if desc.Usage&gputypes.BufferUsageMapRead != 0 && desc.Usage&^(gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst) != 0 {
		return fmt.Errorf("buffer %q: %w: map-read combined with usages other than copy-dst", desc.Label, ErrUnsupportedUsage)
	}
	if desc.Usage&gputypes.BufferUsageMapWrite != 0 && desc.Usage&^(gputypes.BufferUsageMapWrite|gputypes.BufferUsageCopySrc) != 0 {
		return fmt.Errorf("buffer %q: %w: map-write combined with usages other than copy-src", desc.Label, ErrUnsupportedUsage)
	}
	if desc.Size == 0 {
		return fmt.Errorf("buffer %q: %w: zero size", desc.Label, ErrInvalidDescription)
	}
	if uint64(len(desc.Data)) > desc.Size {
		return fmt.Errorf("buffer %q: %w: %d bytes of data for size %d", desc.Label, ErrInvalidDescription, len(desc.Data), desc.Size)
	}
	return nil
}

// === Textures ===

// CreateTexture allocates a texture handle and creates the texture.
func (st *Storage) CreateTexture(desc rhi.TextureDescription) (rhi.TextureHandle, error) {
	desc = desc.Normalized()
	if err := validateTexture(desc, st.device.Limits()); err != nil {
		return rhi.InvalidHandle, err
	}

	size := desc.SizeBytes()
	h := st.textures.Insert(textureEntry{desc: desc, size: size})
	if err := st.device.CreateTexture(h, desc); err != nil {
		st.textures.Remove(h)
		return rhi.InvalidHandle, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}
	st.trackAlloc(size, 0)

	slogger().Debug("storage: texture created",
		"handle", h, "label", desc.Label,
		"width", desc.Width, "height", desc.Height, "bytes", size)
	return h, nil
}

// MustCreateTexture is like CreateTexture but panics on error.
func (st *Storage) MustCreateTexture(desc rhi.TextureDescription) rhi.TextureHandle {
	h, err := st.CreateTexture(desc)
	if err != nil {
		panic(err)
	}
	return h
}

// CreateTextureView allocates a texture handle for a view of desc.Texture.
// Views share the handle space of textures so they can be placed in the
// global descriptor.
func (st *Storage) CreateTextureView(desc rhi.TextureViewDescription) (rhi.TextureHandle, error) {
	parent, ok := st.textures.Get(desc.Texture)
	if !ok || parent.view != nil {
		return rhi.InvalidHandle, fmt.Errorf("view of texture %d: %w", desc.Texture, ErrUnknownHandle)
	}
	if desc.MipLevelCount == 0 {
		desc.MipLevelCount = 1
	}
	if desc.LayerCount == 0 {
		desc.LayerCount = 1
	}
	if desc.BaseMipLevel+desc.MipLevelCount > parent.desc.MipLevelCount ||
		desc.BaseLayer+desc.LayerCount > parent.desc.LayerCount {
		return rhi.InvalidHandle, fmt.Errorf("view of texture %d: %w: mips [%d,+%d) layers [%d,+%d) outside %d mips %d layers",
			desc.Texture, ErrInvalidDescription, desc.BaseMipLevel, desc.MipLevelCount,
			desc.BaseLayer, desc.LayerCount, parent.desc.MipLevelCount, parent.desc.LayerCount)
	}

	view := desc
	h := st.textures.Insert(textureEntry{desc: parent.desc, view: &view})
	if err := st.device.CreateTextureView(h, desc); err != nil {
		st.textures.Remove(h)
		return rhi.InvalidHandle, fmt.Errorf("create texture view %q: %w", desc.Label, err)
	}
	return h, nil
}

// DestroyTexture releases a texture or view. Unknown handles are ignored.
func (st *Storage) DestroyTexture(h rhi.TextureHandle) {
	e, ok := st.textures.Get(h)
	if !ok {
		return
	}
	st.device.DestroyTexture(h)
	st.textures.Remove(h)
	st.trackFree(e.size, 0)
}

// TextureDescription returns the description of a texture. For a view it
// returns the parent description narrowed to the view: extent of the base
// mip, the view's mip and layer counts.
func (st *Storage) TextureDescription(h rhi.TextureHandle) (rhi.TextureDescription, bool) {
	e, ok := st.textures.Get(h)
	if !ok {
		return rhi.TextureDescription{}, false
	}
	if e.view == nil {
		return e.desc, true
	}
	d := e.desc
	d.Width = max(d.Width>>e.view.BaseMipLevel, 1)
	d.Height = max(d.Height>>e.view.BaseMipLevel, 1)
	d.MipLevelCount = e.view.MipLevelCount
	d.LayerCount = e.view.LayerCount
	return d, true
}

// TextureView returns the view description of h, if h is a view.
func (st *Storage) TextureView(h rhi.TextureHandle) (rhi.TextureViewDescription, bool) {
	e, ok := st.textures.Get(h)
	if !ok || e.view == nil {
		return rhi.TextureViewDescription{}, false
	}
	return *e.view, true
}

// === Buffers ===

// CreateBuffer allocates a buffer handle and creates the buffer, uploading
// desc.Data when set.
func (st *Storage) CreateBuffer(desc rhi.BufferDescription) (rhi.BufferHandle, error) {
	if err := validateBuffer(desc); err != nil {
		return rhi.InvalidHandle, err
	}

	kept := desc
	kept.Data = nil
	h := st.buffers.Insert(kept)
	if err := st.device.CreateBuffer(h, desc); err != nil {
		st.buffers.Remove(h)
		return rhi.InvalidHandle, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}
	st.trackAlloc(0, desc.Size)
	return h, nil
}

// MustCreateBuffer is like CreateBuffer but panics on error.
func (st *Storage) MustCreateBuffer(desc rhi.BufferDescription) rhi.BufferHandle {
	h, err := st.CreateBuffer(desc)
	if err != nil {
		panic(err)
	}
	return h
}

// DestroyBuffer releases a buffer. Unknown handles are ignored.
func (st *Storage) DestroyBuffer(h rhi.BufferHandle) {
	desc, ok := st.buffers.Get(h)
	if !ok {
		return
	}
	st.device.DestroyBuffer(h)
	st.buffers.Remove(h)
	st.trackFree(0, desc.Size)
}

// WriteBuffer copies data into a buffer at offset.
func (st *Storage) WriteBuffer(h rhi.BufferHandle, offset uint64, data []byte) error {
	desc, ok := st.buffers.Get(h)
	if !ok {
		return fmt.Errorf("buffer %d: %w", h, ErrUnknownHandle)
	}
	if offset+uint64(len(data)) > desc.Size {
		return fmt.Errorf("buffer %q: %w: write of %d bytes at %d exceeds size %d",
			desc.Label, ErrInvalidDescription, len(data), offset, desc.Size)
	}
	return st.device.WriteBuffer(h, offset, data)
}

// BufferDescription returns the description of a buffer without its
// initial data.
func (st *Storage) BufferDescription(h rhi.BufferHandle) (rhi.BufferDescription, bool) {
	return st.buffers.Get(h)
}

// === Samplers ===

// CreateSampler allocates a sampler handle and creates the sampler.
func (st *Storage) CreateSampler(desc rhi.SamplerDescription) (rhi.SamplerHandle, error) {
	h := st.samplers.Insert(desc)
	if err := st.device.CreateSampler(h, desc); err != nil {
		st.samplers.Remove(h)
		return rhi.InvalidHandle, fmt.Errorf("create sampler %q: %w", desc.Label, err)
	}
	return h, nil
}

// DestroySampler releases a sampler.
func (st *Storage) DestroySampler(h rhi.SamplerHandle) {
	if !st.samplers.Remove(h) {
		return
	}
	st.device.DestroySampler(h)
}

// === Shaders ===

// CreateShader creates a shader module and registers it under name.
func (st *Storage) CreateShader(name string, desc rhi.ShaderDescription) (rhi.ShaderHandle, error) {
	if _, ok := st.shaderNames[name]; ok {
		return rhi.InvalidHandle, fmt.Errorf("shader %q: %w", name, ErrDuplicateShader)
	}
	if desc.Label == "" {
		desc.Label = name
	}
	h := st.shaders.Insert(shaderEntry{name: name})
	if err := st.device.CreateShader(h, desc); err != nil {
		st.shaders.Remove(h)
		return rhi.InvalidHandle, fmt.Errorf("create shader %q: %w", name, err)
	}
	st.shaderNames[name] = h
	return h, nil
}

// Shader returns the shader registered under name.
func (st *Storage) Shader(name string) (rhi.ShaderHandle, bool) {
	h, ok := st.shaderNames[name]
	return h, ok
}

// MustShader is like Shader but panics when the name is unknown.
func (st *Storage) MustShader(name string) rhi.ShaderHandle {
	h, ok := st.shaderNames[name]
	if !ok {
		panic(fmt.Sprintf("storage: shader %q not found", name))
	}
	return h
}

// DestroyShader releases a shader module and its name.
func (st *Storage) DestroyShader(h rhi.ShaderHandle) {
	e, ok := st.shaders.Get(h)
	if !ok {
		return
	}
	st.device.DestroyShader(h)
	st.shaders.Remove(h)
	delete(st.shaderNames, e.name)
}
