package rhi

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestTextureDescriptionNormalized(t *testing.T) {
	tests := []struct {
		name       string
		desc       TextureDescription
		wantLayers uint32
	}{
		{"2D defaults", TextureDescription{Width: 4, Height: 4}, 1},
		{"cubemap defaults", TextureDescription{Type: TextureTypeCubemap, Width: 4, Height: 4}, 6},
		{"explicit layers kept", TextureDescription{Width: 4, Height: 4, LayerCount: 3}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.desc.Normalized()
			if got.LayerCount != tt.wantLayers {
				t.Errorf("LayerCount = %d, want %d", got.LayerCount, tt.wantLayers)
			}
			if got.Depth != 1 || got.MipLevelCount != 1 || got.SampleCount != 1 {
				t.Errorf("Normalized() = %+v, want depth/mips/samples of 1", got)
			}
		})
	}
}

func TestTextureDescriptionSizeBytes(t *testing.T) {
	tests := []struct {
		name string
		desc TextureDescription
		want uint64
	}{
		{
			name: "rgba 1080p",
			desc: TextureDescription{Width: 1920, Height: 1080, Format: gputypes.TextureFormatRGBA8Unorm},
			want: 1920 * 1080 * 4,
		},
		{
			name: "r8 with mips",
			desc: TextureDescription{Width: 4, Height: 4, MipLevelCount: 3, Format: gputypes.TextureFormatR8Unorm},
			want: 16 + 4 + 1,
		},
		{
			name: "cubemap",
			desc: TextureDescription{Type: TextureTypeCubemap, Width: 2, Height: 2, Format: gputypes.TextureFormatBGRA8Unorm},
			want: 2 * 2 * 4 * 6,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.desc.SizeBytes(); got != tt.want {
				t.Errorf("SizeBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFlagStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{StageNone.String(), "None"},
		{(StageEarlyFragmentTests | StageLateFragmentTests).String(), "EarlyFragmentTests|LateFragmentTests"},
		{AccessColorAttachmentWrite.String(), "ColorAttachmentWrite"},
		{(AccessShaderRead | AccessShaderWrite).String(), "ShaderRead|ShaderWrite"},
		{LayoutShaderReadOnlyOptimal.String(), "ShaderReadOnlyOptimal"},
		{ImageLayout(200).String(), "Unknown"},
		{DescriptorStorageBufferDynamic.String(), "StorageBufferDynamic"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestAccessIsWrite(t *testing.T) {
	if AccessShaderRead.IsWrite() {
		t.Error("ShaderRead reported as write")
	}
	if !(AccessShaderRead | AccessDepthStencilAttachmentWrite).IsWrite() {
		t.Error("DepthStencilAttachmentWrite not reported as write")
	}
}

func TestDescriptorTypeIsDynamic(t *testing.T) {
	if DescriptorUniformBuffer.IsDynamic() {
		t.Error("UniformBuffer reported dynamic")
	}
	if !DescriptorUniformBufferDynamic.IsDynamic() || !DescriptorStorageBufferDynamic.IsDynamic() {
		t.Error("dynamic buffer types not reported dynamic")
	}
}

func TestClearValues(t *testing.T) {
	c := ClearColor(0.1, 0.2, 0.3, 1)
	if c.Color.R != 0.1 || c.Color.A != 1 {
		t.Errorf("ClearColor() = %+v", c)
	}
	d := ClearDepth(1, 7)
	if d.Depth != 1 || d.Stencil != 7 {
		t.Errorf("ClearDepth() = %+v", d)
	}
}
