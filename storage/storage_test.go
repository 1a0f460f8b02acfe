package storage

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rhi"
	"github.com/gogpu/rendergraph/rhi/mock"
)

func newTestStorage(t *testing.T) (*Storage, *mock.Device) {
	t.Helper()
	dev := mock.New()
	st, err := New(dev, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(st.Destroy)
	return st, dev
}

func colorTexture(w, h uint32) rhi.TextureDescription {
	return rhi.TextureDescription{
		Label:  "color",
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
		Width:  w,
		Height: h,
	}
}

func TestNewCreatesGlobalDescriptor(t *testing.T) {
	st, dev := newTestStorage(t)

	layout, ok := dev.DescriptorLayouts[st.GlobalDescriptorLayout()]
	if !ok {
		t.Fatal("global layout not created on device")
	}
	if len(layout.Bindings) != 3 {
		t.Fatalf("global layout has %d bindings, want 3", len(layout.Bindings))
	}
	wantTypes := []rhi.DescriptorType{rhi.DescriptorSampledImage, rhi.DescriptorSampler, rhi.DescriptorStorageImage}
	for i, b := range layout.Bindings {
		if b.Binding != uint32(i) || b.Type != wantTypes[i] {
			t.Errorf("binding %d = {%d %v}, want {%d %v}", i, b.Binding, b.Type, i, wantTypes[i])
		}
		if b.Count != DefaultBindlessArraySize {
			t.Errorf("binding %d count = %d, want %d", i, b.Count, DefaultBindlessArraySize)
		}
		if !b.PartiallyBound {
			t.Errorf("binding %d not partially bound", i)
		}
	}
	if _, ok := dev.Descriptors[st.GlobalDescriptor()]; !ok {
		t.Error("global descriptor not created on device")
	}
	if !st.Bindless() {
		t.Error("Bindless() = false with default limits")
	}
	s, ok := dev.Samplers[st.DefaultSampler()]
	if !ok {
		t.Fatal("default sampler not created")
	}
	if s.MinFilter != gputypes.FilterModeLinear || s.AddressModeU != gputypes.AddressModeClampToEdge {
		t.Errorf("default sampler = %+v, want linear clamp-to-edge", s)
	}
}

func TestConfigClampedToLimits(t *testing.T) {
	limits := rhi.DefaultLimits()
	limits.MaxDescriptorArraySize = 64
	dev := mock.NewWithLimits(limits)
	st, err := New(dev, Config{MaxTextures: 500, MaxSamplers: 16})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer st.Destroy()

	layout := dev.DescriptorLayouts[st.GlobalDescriptorLayout()]
	want := []uint32{64, 16, 64}
	for i, b := range layout.Bindings {
		if b.Count != want[i] {
			t.Errorf("binding %d count = %d, want %d", i, b.Count, want[i])
		}
	}
}

func TestNewWithoutBindless(t *testing.T) {
	limits := rhi.DefaultLimits()
	limits.MaxDescriptorArraySize = 1
	dev := mock.NewWithLimits(limits)
	st, err := New(dev, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer st.Destroy()

	if st.Bindless() {
		t.Fatal("Bindless() = true with single-element descriptor arrays")
	}
	if st.GlobalDescriptor() != rhi.InvalidHandle || st.GlobalDescriptorLayout() != rhi.InvalidHandle {
		t.Errorf("global descriptor = %d layout = %d, want none", st.GlobalDescriptor(), st.GlobalDescriptorLayout())
	}
	if len(dev.Descriptors) != 0 || len(dev.DescriptorLayouts) != 0 {
		t.Errorf("device has %d descriptors and %d layouts, want none", len(dev.Descriptors), len(dev.DescriptorLayouts))
	}
	if _, ok := dev.Samplers[st.DefaultSampler()]; !ok {
		t.Error("default sampler not created")
	}

	tex := st.MustCreateTexture(colorTexture(4, 4))
	if err := st.AddToDescriptor(tex); !errors.Is(err, ErrBindlessUnsupported) {
		t.Errorf("AddToDescriptor() error = %v, want ErrBindlessUnsupported", err)
	}
	if err := st.AddSamplerToDescriptor(st.DefaultSampler()); !errors.Is(err, ErrBindlessUnsupported) {
		t.Errorf("AddSamplerToDescriptor() error = %v, want ErrBindlessUnsupported", err)
	}
	if err := st.AddToDescriptor(9999); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("AddToDescriptor(unknown) error = %v, want ErrUnknownHandle", err)
	}
}

func TestNewNilDevice(t *testing.T) {
	if _, err := New(nil, Config{}); !errors.Is(err, ErrInvalidDescription) {
		t.Errorf("New(nil) error = %v, want ErrInvalidDescription", err)
	}
}

func TestNewDeviceFailure(t *testing.T) {
	dev := mock.New()
	boom := errors.New("boom")
	dev.Fail("CreateDescriptor", boom)

	if _, err := New(dev, Config{}); !errors.Is(err, boom) {
		t.Fatalf("New() error = %v, want %v", err, boom)
	}
	if n := dev.Live(); n != 0 {
		t.Errorf("device has %d live objects after failed New, want 0", n)
	}
}

func TestHandlesMonotonic(t *testing.T) {
	st, _ := newTestStorage(t)

	a := st.MustCreateTexture(colorTexture(4, 4))
	b := st.MustCreateTexture(colorTexture(4, 4))
	if b <= a {
		t.Fatalf("handles not increasing: %d then %d", a, b)
	}
	st.DestroyTexture(b)
	c := st.MustCreateTexture(colorTexture(4, 4))
	if c <= b {
		t.Errorf("handle %d reused or decreasing after destroying %d", c, b)
	}
}

func TestCreateTextureValidation(t *testing.T) {
	tests := []struct {
		name    string
		desc    rhi.TextureDescription
		wantErr error
	}{
		{
			name:    "zero usage",
			desc:    rhi.TextureDescription{Format: gputypes.TextureFormatRGBA8Unorm, Width: 4, Height: 4},
			wantErr: ErrUnsupportedUsage,
		},
		{
			name: "storage multisampled",
			desc: rhi.TextureDescription{
				Format: gputypes.TextureFormatRGBA8Unorm, Width: 4, Height: 4,
				Usage: gputypes.TextureUsageStorageBinding, SampleCount: 4,
			},
			wantErr: ErrUnsupportedUsage,
		},
		{
			name:    "zero width",
			desc:    colorTexture(0, 4),
			wantErr: ErrInvalidDescription,
		},
		{
			name:    "too large",
			desc:    colorTexture(1<<14, 4),
			wantErr: ErrInvalidDescription,
		},
		{
			name: "valid",
			desc: colorTexture(16, 16),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, _ := newTestStorage(t)
			h, err := st.CreateTexture(tt.desc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("CreateTexture() error = %v, want %v", err, tt.wantErr)
				}
				if h != rhi.InvalidHandle {
					t.Errorf("CreateTexture() handle = %d on error, want 0", h)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateTexture() error = %v", err)
			}
		})
	}
}

func TestMustCreateTexturePanics(t *testing.T) {
	st, _ := newTestStorage(t)
	defer func() {
		if recover() == nil {
			t.Error("MustCreateTexture did not panic on zero usage")
		}
	}()
	st.MustCreateTexture(rhi.TextureDescription{Width: 1, Height: 1})
}

func TestCreateBufferValidation(t *testing.T) {
	tests := []struct {
		name    string
		usage   gputypes.BufferUsage
		size    uint64
		wantErr error
	}{
		{"zero usage", 0, 16, ErrUnsupportedUsage},
		{"map read with copy dst", gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst, 16, nil},
		{"map read with storage", gputypes.BufferUsageMapRead | gputypes.BufferUsageStorage, 16, ErrUnsupportedUsage},
		{"map write with copy src", gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc, 16, nil},
		{"map write with uniform", gputypes.BufferUsageMapWrite | gputypes.BufferUsageUniform, 16, ErrUnsupportedUsage},
		{"zero size", gputypes.BufferUsageStorage, 0, ErrInvalidDescription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, _ := newTestStorage(t)
			_, err := st.CreateBuffer(rhi.BufferDescription{Label: tt.name, Usage: tt.usage, Size: tt.size})
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("CreateBuffer() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateBuffer() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBufferWriteAndStats(t *testing.T) {
	st, dev := newTestStorage(t)

	h, err := st.CreateBuffer(rhi.BufferDescription{
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
		Size:  64,
		Data:  []byte{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if got := dev.Buffers[h].Data[:3]; got[0] != 1 || got[2] != 3 {
		t.Errorf("initial data = %v", got)
	}
	if err := st.WriteBuffer(h, 60, []byte{9, 9, 9, 9}); err != nil {
		t.Errorf("WriteBuffer() at end error = %v", err)
	}
	if err := st.WriteBuffer(h, 62, []byte{9, 9, 9, 9}); !errors.Is(err, ErrInvalidDescription) {
		t.Errorf("WriteBuffer() overflow error = %v, want ErrInvalidDescription", err)
	}

	desc, ok := st.BufferDescription(h)
	if !ok || desc.Data != nil {
		t.Errorf("BufferDescription() = %+v, %v; want stored without data", desc, ok)
	}

	s := st.Stats()
	if s.BufferCount != 1 || s.BufferBytes != 64 {
		t.Errorf("Stats() = %+v, want 1 buffer of 64 bytes", s)
	}
	st.DestroyBuffer(h)
	s = st.Stats()
	if s.BufferCount != 0 || s.BufferBytes != 0 || s.PeakBytes != 64 {
		t.Errorf("Stats() after destroy = %+v", s)
	}
}

func TestTextureStats(t *testing.T) {
	st, _ := newTestStorage(t)

	h := st.MustCreateTexture(colorTexture(8, 8))
	if _, err := st.CreateTextureView(rhi.TextureViewDescription{Texture: h}); err != nil {
		t.Fatalf("CreateTextureView() error = %v", err)
	}
	s := st.Stats()
	if s.TextureCount != 1 || s.ViewCount != 1 {
		t.Errorf("counts = %d textures %d views, want 1 and 1", s.TextureCount, s.ViewCount)
	}
	if s.TextureBytes != 8*8*4 {
		t.Errorf("TextureBytes = %d, want %d", s.TextureBytes, 8*8*4)
	}
	if s.String() == "" {
		t.Error("String() is empty")
	}
}

func TestTextureView(t *testing.T) {
	st, dev := newTestStorage(t)

	desc := colorTexture(256, 128)
	desc.MipLevelCount = 4
	parent := st.MustCreateTexture(desc)

	view, err := st.CreateTextureView(rhi.TextureViewDescription{Texture: parent, BaseMipLevel: 2})
	if err != nil {
		t.Fatalf("CreateTextureView() error = %v", err)
	}
	if _, ok := dev.Views[view]; !ok {
		t.Fatal("view not created on device")
	}
	got, ok := st.TextureDescription(view)
	if !ok {
		t.Fatal("TextureDescription(view) not found")
	}
	if got.Width != 64 || got.Height != 32 || got.MipLevelCount != 1 {
		t.Errorf("view description = %dx%d mips %d, want 64x32 mips 1", got.Width, got.Height, got.MipLevelCount)
	}
	if v, ok := st.TextureView(view); !ok || v.BaseMipLevel != 2 {
		t.Errorf("TextureView() = %+v, %v", v, ok)
	}
	if _, ok := st.TextureView(parent); ok {
		t.Error("TextureView(parent) reported a view")
	}

	if _, err := st.CreateTextureView(rhi.TextureViewDescription{Texture: parent, BaseMipLevel: 3, MipLevelCount: 2}); !errors.Is(err, ErrInvalidDescription) {
		t.Errorf("out of range view error = %v, want ErrInvalidDescription", err)
	}
	if _, err := st.CreateTextureView(rhi.TextureViewDescription{Texture: view}); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("view of view error = %v, want ErrUnknownHandle", err)
	}
}

func TestAddToDescriptor(t *testing.T) {
	st, dev := newTestStorage(t)

	sampled := st.MustCreateTexture(colorTexture(4, 4))
	storageDesc := colorTexture(4, 4)
	storageDesc.Usage = gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding
	both := st.MustCreateTexture(storageDesc)

	for _, h := range []rhi.TextureHandle{sampled, both} {
		if err := st.AddToDescriptor(h); err != nil {
			t.Fatalf("AddToDescriptor(%d) error = %v", h, err)
		}
	}

	global := dev.Descriptors[st.GlobalDescriptor()]
	if got := global.Texture(BindingGlobalTextures, uint32(sampled)); got != sampled {
		t.Errorf("binding 0[%d] = %d, want %d", sampled, got, sampled)
	}
	if got := global.Texture(BindingGlobalImages, uint32(sampled)); got != rhi.InvalidHandle {
		t.Errorf("sampled-only texture written to binding 2")
	}
	if got := global.Texture(BindingGlobalImages, uint32(both)); got != both {
		t.Errorf("binding 2[%d] = %d, want %d", both, got, both)
	}
	if got := global.Texture(BindingGlobalTextures, uint32(both)); got != both {
		t.Errorf("binding 0[%d] = %d, want %d", both, got, both)
	}

	if err := st.AddSamplerToDescriptor(st.DefaultSampler()); err != nil {
		t.Fatalf("AddSamplerToDescriptor() error = %v", err)
	}
	if got := global.Sampler(BindingGlobalSamplers, uint32(st.DefaultSampler())); got != st.DefaultSampler() {
		t.Errorf("binding 1 = %d, want %d", got, st.DefaultSampler())
	}

	if err := st.AddToDescriptor(9999); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("AddToDescriptor(unknown) error = %v, want ErrUnknownHandle", err)
	}
}

func TestAddToDescriptorOutOfRange(t *testing.T) {
	dev := mock.New()
	st, err := New(dev, Config{MaxTextures: 2})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer st.Destroy()

	var last rhi.TextureHandle
	for range 3 {
		last = st.MustCreateTexture(colorTexture(2, 2))
	}
	if err := st.AddToDescriptor(last); !errors.Is(err, ErrDescriptorIndexOutOfRange) {
		t.Errorf("AddToDescriptor(%d) error = %v, want ErrDescriptorIndexOutOfRange", last, err)
	}
}

func TestShaders(t *testing.T) {
	st, dev := newTestStorage(t)

	h, err := st.CreateShader("fullscreen", rhi.ShaderDescription{WGSL: "@vertex fn main() {}"})
	if err != nil {
		t.Fatalf("CreateShader() error = %v", err)
	}
	if dev.Shaders[h].Label != "fullscreen" {
		t.Errorf("shader label = %q, want name", dev.Shaders[h].Label)
	}
	if got, ok := st.Shader("fullscreen"); !ok || got != h {
		t.Errorf("Shader() = %d, %v; want %d", got, ok, h)
	}
	if _, err := st.CreateShader("fullscreen", rhi.ShaderDescription{}); !errors.Is(err, ErrDuplicateShader) {
		t.Errorf("duplicate CreateShader() error = %v", err)
	}

	st.DestroyShader(h)
	if _, ok := st.Shader("fullscreen"); ok {
		t.Error("Shader() found destroyed shader")
	}
	defer func() {
		if recover() == nil {
			t.Error("MustShader did not panic")
		}
	}()
	st.MustShader("fullscreen")
}

func TestPipelines(t *testing.T) {
	st, dev := newTestStorage(t)

	vs, _ := st.CreateShader("vs", rhi.ShaderDescription{WGSL: "vs"})
	fs, _ := st.CreateShader("fs", rhi.ShaderDescription{WGSL: "fs"})
	cs, _ := st.CreateShader("cs", rhi.ShaderDescription{WGSL: "cs"})

	gp := st.AddGraphicsPipeline(rhi.GraphicsPipelineDescription{Label: "mesh", VertexShader: vs, FragmentShader: fs})
	cp := st.AddComputePipeline(rhi.ComputePipelineDescription{Label: "cull", ComputeShader: cs})

	if !st.IsGraphicsPipeline(gp) || st.IsGraphicsPipeline(cp) {
		t.Error("IsGraphicsPipeline mismatch")
	}
	if len(dev.GraphicsPipelines)+len(dev.ComputePipelines) != 0 {
		t.Fatal("Add* created device objects")
	}

	if err := st.CreatePipeline(gp); !errors.Is(err, ErrInvalidDescription) {
		t.Errorf("CreatePipeline() without render pass error = %v", err)
	}

	target := st.MustCreateTexture(colorTexture(4, 4))
	rp, err := st.CreateRenderPass(rhi.RenderPassDescription{
		ColorAttachments: []rhi.RenderPassAttachment{{Texture: target, Format: gputypes.TextureFormatRGBA8Unorm}},
	})
	if err != nil {
		t.Fatalf("CreateRenderPass() error = %v", err)
	}
	if err := st.SetPipelineRenderPass(gp, rp); err != nil {
		t.Fatalf("SetPipelineRenderPass() error = %v", err)
	}
	if err := st.SetPipelineRenderPass(cp, rp); !errors.Is(err, ErrInvalidDescription) {
		t.Errorf("SetPipelineRenderPass(compute) error = %v", err)
	}

	for _, p := range []rhi.PipelineHandle{gp, cp} {
		if err := st.CreatePipeline(p); err != nil {
			t.Fatalf("CreatePipeline(%d) error = %v", p, err)
		}
	}
	if dev.GraphicsPipelines[gp].RenderPass != rp {
		t.Errorf("device pipeline render pass = %d, want %d", dev.GraphicsPipelines[gp].RenderPass, rp)
	}

	// Recreate replaces the device object.
	if err := st.CreatePipeline(gp); err != nil {
		t.Fatalf("CreatePipeline() again error = %v", err)
	}
	if n := dev.CallCount("DestroyPipeline"); n != 1 {
		t.Errorf("DestroyPipeline calls = %d, want 1", n)
	}

	st.DestroyPipeline(cp)
	if st.IsPipelineCreated(cp) {
		t.Error("pipeline still created after DestroyPipeline")
	}
	if !st.pipelines.Contains(cp) {
		t.Error("DestroyPipeline dropped the description")
	}
	st.RemovePipeline(cp)
	if st.pipelines.Contains(cp) {
		t.Error("RemovePipeline kept the description")
	}
}

func TestRenderPassAndFramebuffer(t *testing.T) {
	st, dev := newTestStorage(t)

	if _, err := st.CreateRenderPass(rhi.RenderPassDescription{}); !errors.Is(err, ErrInvalidDescription) {
		t.Errorf("empty render pass error = %v", err)
	}

	target := st.MustCreateTexture(colorTexture(32, 32))
	rp, err := st.CreateRenderPass(rhi.RenderPassDescription{
		ColorAttachments: []rhi.RenderPassAttachment{{Texture: target}},
	})
	if err != nil {
		t.Fatalf("CreateRenderPass() error = %v", err)
	}

	fb, err := st.CreateFramebuffer(rhi.FramebufferDescription{RenderPass: rp, Attachments: []rhi.TextureHandle{target}, Width: 32, Height: 32})
	if err != nil {
		t.Fatalf("CreateFramebuffer() error = %v", err)
	}
	if dev.Framebuffers[fb].Layers != 1 {
		t.Errorf("framebuffer layers = %d, want 1", dev.Framebuffers[fb].Layers)
	}
	if _, err := st.CreateFramebuffer(rhi.FramebufferDescription{RenderPass: rp, Attachments: []rhi.TextureHandle{777}}); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("framebuffer with unknown attachment error = %v", err)
	}

	st.DestroyFramebuffer(fb)
	st.DestroyRenderPass(rp)
	if len(dev.Framebuffers)+len(dev.RenderPasses) != 0 {
		t.Error("render targets left on device")
	}
}

func TestDescriptorLayoutDuplicateBinding(t *testing.T) {
	st, _ := newTestStorage(t)
	_, err := st.CreateDescriptorLayout(rhi.DescriptorLayoutDescription{
		Bindings: []rhi.DescriptorBinding{
			{Binding: 0, Type: rhi.DescriptorUniformBuffer},
			{Binding: 0, Type: rhi.DescriptorSampler},
		},
	})
	if !errors.Is(err, ErrInvalidDescription) {
		t.Errorf("CreateDescriptorLayout() error = %v, want ErrInvalidDescription", err)
	}
	if _, err := st.CreateDescriptor(12345); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("CreateDescriptor(unknown layout) error = %v", err)
	}
}

func TestImmediate(t *testing.T) {
	st, dev := newTestStorage(t)

	called := false
	err := st.Immediate(func(cmd rhi.CommandList) {
		called = true
		cmd.Dispatch(1, 1, 1)
	})
	if err != nil {
		t.Fatalf("Immediate() error = %v", err)
	}
	if !called {
		t.Fatal("Immediate() did not call fn")
	}
	if len(dev.Immediate) != 1 || len(dev.Immediate[0].Filter(mock.OpDispatch)) != 1 {
		t.Errorf("immediate submissions = %d, want one with a dispatch", len(dev.Immediate))
	}

	boom := errors.New("queue lost")
	dev.Fail("SubmitImmediate", boom)
	if err := st.Immediate(func(rhi.CommandList) {}); !errors.Is(err, boom) {
		t.Errorf("Immediate() error = %v, want %v", err, boom)
	}
}

func TestUploadImage(t *testing.T) {
	st, dev := newTestStorage(t)

	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := range 2 {
		for x := range 2 {
			src.Set(x, y, color.RGBA{R: 255, B: 10, A: 255})
		}
	}

	tests := []struct {
		name   string
		format gputypes.TextureFormat
		size   uint32
		first  []byte
	}{
		{"rgba same size", gputypes.TextureFormatRGBA8Unorm, 2, []byte{255, 0, 10, 255}},
		{"rgba upscaled", gputypes.TextureFormatRGBA8Unorm, 8, []byte{255, 0, 10, 255}},
		{"bgra swizzled", gputypes.TextureFormatBGRA8Unorm, 2, []byte{10, 0, 255, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := colorTexture(tt.size, tt.size)
			desc.Format = tt.format
			h := st.MustCreateTexture(desc)
			if err := st.UploadImage(h, src); err != nil {
				t.Fatalf("UploadImage() error = %v", err)
			}
			data := dev.TextureData[h]
			if len(data) != int(tt.size*tt.size*4) {
				t.Fatalf("uploaded %d bytes, want %d", len(data), tt.size*tt.size*4)
			}
			for i, b := range tt.first {
				if data[i] != b {
					t.Errorf("texel 0 = %v, want %v", data[:4], tt.first)
					break
				}
			}
		})
	}

	gray := colorTexture(4, 4)
	gray.Format = gputypes.TextureFormatR8Unorm
	g := st.MustCreateTexture(gray)
	if err := st.UploadImage(g, src); err != nil {
		t.Fatalf("UploadImage(R8) error = %v", err)
	}
	if n := len(dev.TextureData[g]); n != 16 {
		t.Errorf("R8 upload = %d bytes, want 16", n)
	}

	depth := colorTexture(4, 4)
	depth.Format = gputypes.TextureFormatDepth24PlusStencil8
	d := st.MustCreateTexture(depth)
	if err := st.UploadImage(d, src); !errors.Is(err, ErrUnsupportedUsage) {
		t.Errorf("UploadImage(depth) error = %v, want ErrUnsupportedUsage", err)
	}
}

func TestDestroyReleasesEverything(t *testing.T) {
	dev := mock.New()
	st, err := New(dev, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tex := st.MustCreateTexture(colorTexture(4, 4))
	if _, err := st.CreateTextureView(rhi.TextureViewDescription{Texture: tex}); err != nil {
		t.Fatal(err)
	}
	st.MustCreateBuffer(rhi.BufferDescription{Usage: gputypes.BufferUsageUniform, Size: 16})
	cs, _ := st.CreateShader("cs", rhi.ShaderDescription{WGSL: "cs"})
	cp := st.AddComputePipeline(rhi.ComputePipelineDescription{ComputeShader: cs})
	if err := st.CreatePipeline(cp); err != nil {
		t.Fatal(err)
	}

	st.Destroy()
	if n := dev.Live(); n != 0 {
		t.Errorf("device has %d live objects after Destroy, want 0 (calls: %v)", n, dev.Calls)
	}
	if st.Stats().TotalBytes() != 0 {
		t.Errorf("Stats() after Destroy = %+v", st.Stats())
	}
}
