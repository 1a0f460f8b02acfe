package rhi

import "strings"

// PipelineStage is a bitmask of pipeline stages.
type PipelineStage uint32

// Pipeline stages.
const (
	StageNone                  PipelineStage = 0
	StageTopOfPipe             PipelineStage = 1 << 0
	StageDrawIndirect          PipelineStage = 1 << 1
	StageVertexInput           PipelineStage = 1 << 2
	StageVertexShader          PipelineStage = 1 << 3
	StageFragmentShader        PipelineStage = 1 << 4
	StageEarlyFragmentTests    PipelineStage = 1 << 5
	StageLateFragmentTests     PipelineStage = 1 << 6
	StageColorAttachmentOutput PipelineStage = 1 << 7
	StageComputeShader         PipelineStage = 1 << 8
	StageTransfer              PipelineStage = 1 << 9
	StageBottomOfPipe          PipelineStage = 1 << 10
)

var stageNames = []string{
	"TopOfPipe", "DrawIndirect", "VertexInput", "VertexShader",
	"FragmentShader", "EarlyFragmentTests", "LateFragmentTests",
	"ColorAttachmentOutput", "ComputeShader", "Transfer", "BottomOfPipe",
}

// String returns the set stage names joined by "|".
func (s PipelineStage) String() string {
	return flagString(uint32(s), stageNames)
}

// Access is a bitmask of memory access types.
type Access uint32

// Access flags.
const (
	AccessNone                        Access = 0
	AccessIndirectCommandRead         Access = 1 << 0
	AccessIndexRead                   Access = 1 << 1
	AccessVertexAttributeRead         Access = 1 << 2
	AccessUniformRead                 Access = 1 << 3
	AccessShaderRead                  Access = 1 << 4
	AccessShaderWrite                 Access = 1 << 5
	AccessColorAttachmentRead         Access = 1 << 6
	AccessColorAttachmentWrite        Access = 1 << 7
	AccessDepthStencilAttachmentRead  Access = 1 << 8
	AccessDepthStencilAttachmentWrite Access = 1 << 9
	AccessTransferRead                Access = 1 << 10
	AccessTransferWrite               Access = 1 << 11
	AccessHostRead                    Access = 1 << 12
	AccessHostWrite                   Access = 1 << 13
	AccessMemoryRead                  Access = 1 << 14
	AccessMemoryWrite                 Access = 1 << 15
)

var accessNames = []string{
	"IndirectCommandRead", "IndexRead", "VertexAttributeRead", "UniformRead",
	"ShaderRead", "ShaderWrite", "ColorAttachmentRead", "ColorAttachmentWrite",
	"DepthStencilAttachmentRead", "DepthStencilAttachmentWrite",
	"TransferRead", "TransferWrite", "HostRead", "HostWrite",
	"MemoryRead", "MemoryWrite",
}

// String returns the set access names joined by "|".
func (a Access) String() string {
	return flagString(uint32(a), accessNames)
}

// IsWrite reports whether a contains any write access.
func (a Access) IsWrite() bool {
	const writes = AccessShaderWrite | AccessColorAttachmentWrite |
		AccessDepthStencilAttachmentWrite | AccessTransferWrite |
		AccessHostWrite | AccessMemoryWrite
	return a&writes != 0
}

func flagString(v uint32, names []string) string {
	if v == 0 {
		return "None"
	}
	var parts []string
	for i, name := range names {
		if v&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// ImageLayout is the memory layout of an image subresource.
type ImageLayout uint8

// Image layouts.
const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachmentOptimal
	LayoutDepthStencilAttachmentOptimal
	LayoutDepthStencilReadOnlyOptimal
	LayoutShaderReadOnlyOptimal
	LayoutTransferSrcOptimal
	LayoutTransferDstOptimal
	LayoutPresentSrc
)

// String returns the layout name.
func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutGeneral:
		return "General"
	case LayoutColorAttachmentOptimal:
		return "ColorAttachmentOptimal"
	case LayoutDepthStencilAttachmentOptimal:
		return "DepthStencilAttachmentOptimal"
	case LayoutDepthStencilReadOnlyOptimal:
		return "DepthStencilReadOnlyOptimal"
	case LayoutShaderReadOnlyOptimal:
		return "ShaderReadOnlyOptimal"
	case LayoutTransferSrcOptimal:
		return "TransferSrcOptimal"
	case LayoutTransferDstOptimal:
		return "TransferDstOptimal"
	case LayoutPresentSrc:
		return "PresentSrc"
	default:
		return "Unknown"
	}
}

// MemoryBarrier orders all memory accesses between two stage sets.
type MemoryBarrier struct {
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess Access
	DstAccess Access
}

// ImageBarrier transitions a subresource range of a texture.
type ImageBarrier struct {
	Texture    TextureHandle
	SrcStage   PipelineStage
	DstStage   PipelineStage
	SrcAccess  Access
	DstAccess  Access
	SrcLayout  ImageLayout
	DstLayout  ImageLayout
	BaseLevel  uint32
	LevelCount uint32
	BaseLayer  uint32
	LayerCount uint32
}

// BufferBarrier orders accesses to a buffer range. Size 0 means the whole
// buffer.
type BufferBarrier struct {
	Buffer    BufferHandle
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess Access
	DstAccess Access
	Offset    uint64
	Size      uint64
}
