package halrhi

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rhi"
)

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.Backend != gputypes.BackendVulkan {
		t.Errorf("Backend = %v, want Vulkan", o.Backend)
	}
	if o.FrameTimeout != DefaultFrameTimeout {
		t.Errorf("FrameTimeout = %v, want %v", o.FrameTimeout, DefaultFrameTimeout)
	}
	o = Options{FrameTimeout: time.Second}.withDefaults()
	if o.FrameTimeout != time.Second {
		t.Errorf("FrameTimeout = %v, want 1s", o.FrameTimeout)
	}
}

func TestRegistered(t *testing.T) {
	if !rhi.IsRegistered(rhi.BackendHAL) {
		t.Errorf("backend %q not registered, have %v", rhi.BackendHAL, rhi.Available())
	}
}

func TestLayoutUsage(t *testing.T) {
	tests := []struct {
		layout rhi.ImageLayout
		want   gputypes.TextureUsage
	}{
		{rhi.LayoutUndefined, 0},
		{rhi.LayoutGeneral, gputypes.TextureUsageStorageBinding},
		{rhi.LayoutColorAttachmentOptimal, gputypes.TextureUsageRenderAttachment},
		{rhi.LayoutDepthStencilAttachmentOptimal, gputypes.TextureUsageRenderAttachment},
		{rhi.LayoutShaderReadOnlyOptimal, gputypes.TextureUsageTextureBinding},
		{rhi.LayoutDepthStencilReadOnlyOptimal, gputypes.TextureUsageTextureBinding},
		{rhi.LayoutTransferSrcOptimal, gputypes.TextureUsageCopySrc},
		{rhi.LayoutTransferDstOptimal, gputypes.TextureUsageCopyDst},
	}
	for _, tt := range tests {
		t.Run(tt.layout.String(), func(t *testing.T) {
			if got := layoutUsage(tt.layout); got != tt.want {
				t.Errorf("layoutUsage(%v) = %v, want %v", tt.layout, got, tt.want)
			}
		})
	}
}

func TestLayoutEntry(t *testing.T) {
	e, err := layoutEntry(rhi.DescriptorBinding{
		Name: "params", Binding: 3, Type: rhi.DescriptorStorageBufferDynamic, Count: 1,
		Stages: gputypes.ShaderStageCompute,
	})
	if err != nil {
		t.Fatal(err)
	}
	if e.Binding != 3 || e.Buffer == nil || !e.Buffer.HasDynamicOffset ||
		e.Buffer.Type != gputypes.BufferBindingTypeStorage {
		t.Errorf("dynamic storage entry = %+v", e)
	}

	e, err = layoutEntry(rhi.DescriptorBinding{Name: "tex", Type: rhi.DescriptorSampledImage})
	if err != nil || e.Texture == nil {
		t.Errorf("sampled image entry = %+v, %v", e, err)
	}
	e, err = layoutEntry(rhi.DescriptorBinding{Name: "ubo", Type: rhi.DescriptorUniformBuffer})
	if err != nil || e.Buffer == nil || e.Buffer.HasDynamicOffset {
		t.Errorf("uniform entry = %+v, %v", e, err)
	}

	_, err = layoutEntry(rhi.DescriptorBinding{Name: "textures", Type: rhi.DescriptorSampledImage, Count: 16})
	if !errors.Is(err, rhi.ErrUnsupported) {
		t.Errorf("array binding error = %v, want ErrUnsupported", err)
	}
	_, err = layoutEntry(rhi.DescriptorBinding{Name: "bad"})
	if !errors.Is(err, rhi.ErrUnsupported) {
		t.Errorf("untyped binding error = %v, want ErrUnsupported", err)
	}
}

func TestSpirvWords(t *testing.T) {
	got := spirvWords([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	if want := []uint32{0x07230203, 0x00010000}; !slices.Equal(got, want) {
		t.Errorf("spirvWords() = %#x, want %#x", got, want)
	}
}

func TestShaderSourceRequiresCode(t *testing.T) {
	d := newDevice(nil, nil, Options{})
	if _, err := d.shaderSource(rhi.ShaderDescription{Label: "empty"}); !errors.Is(err, rhi.ErrUnsupported) {
		t.Errorf("shaderSource() error = %v, want ErrUnsupported", err)
	}
	src, err := d.shaderSource(rhi.ShaderDescription{SPIRV: []uint32{0x07230203}})
	if err != nil || len(src.SPIRV) != 1 {
		t.Errorf("shaderSource(SPIR-V) = %+v, %v", src, err)
	}
}

func TestDeviceLimits(t *testing.T) {
	d := newDevice(nil, nil, Options{})
	if got := d.Limits().MaxDescriptorArraySize; got != 1 {
		t.Errorf("MaxDescriptorArraySize = %d, want 1", got)
	}
}

func openOrSkip(t *testing.T) *Device {
	t.Helper()
	d, err := Open(Options{FrameTimeout: 10 * time.Second})
	if err != nil {
		t.Skipf("no GPU available: %v", err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func TestFrames(t *testing.T) {
	d := openOrSkip(t)

	if err := d.CreateBuffer(1, rhi.BufferDescription{
		Label: "test",
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
		Size:  64,
		Data:  make([]byte, 64),
	}); err != nil {
		t.Fatal(err)
	}
	if err := d.CreateBuffer(1, rhi.BufferDescription{Size: 4}); !errors.Is(err, rhi.ErrHandleInUse) {
		t.Errorf("CreateBuffer(live) error = %v, want ErrHandleInUse", err)
	}

	for i := range 4 {
		index := uint32(i % 2)
		cmd, err := d.BeginFrame(index)
		if err != nil {
			t.Fatalf("BeginFrame(%d) error = %v", index, err)
		}
		if err := d.EndFrame(index, cmd); err != nil {
			t.Fatalf("EndFrame(%d) error = %v", index, err)
		}
	}
	if err := d.WaitForIdle(); err != nil {
		t.Fatal(err)
	}
	if d.completed != 4 {
		t.Errorf("completed = %d, want 4", d.completed)
	}

	cmd, err := d.RequestImmediateCommandList()
	if err != nil {
		t.Fatal(err)
	}
	cmd.EndRenderPass()
	if err := d.SubmitImmediate(cmd); !errors.Is(err, errNoRenderPass) {
		t.Errorf("SubmitImmediate() error = %v, want the recording error", err)
	}
}
