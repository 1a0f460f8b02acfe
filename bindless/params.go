// Package bindless packs per-draw shader parameters into a single buffer.
//
// Parameters are appended as ranges, each starting at a multiple of the
// device's dynamic offset alignment. Build uploads every range into one
// storage buffer and exposes it through one descriptor with a dynamic
// storage-buffer binding; a draw selects its parameters by passing the
// range offset as the dynamic offset:
//
//	params := bindless.New(storage.Limits())
//	off, _ := bindless.AddRange(params, MaterialParams{Albedo: tex})
//	_ = params.Build(storage)
//	cmd.BindDescriptor(pipeline, 1, params.Descriptor(), []uint32{off})
package bindless

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/rhi"
	"github.com/gogpu/rendergraph/storage"
)

var (
	// ErrAlreadyBuilt is returned when ranges are added to, or Build is
	// called on, parameters that are built and not yet destroyed.
	ErrAlreadyBuilt = errors.New("bindless: parameters already built")

	// ErrNotFixedSize is returned by AddRange for values without a fixed
	// binary layout (slices, strings, maps, pointers).
	ErrNotFixedSize = errors.New("bindless: value has no fixed size")
)

// DefaultAlignment is used when the device reports no offset alignment.
const DefaultAlignment = 256

// Range is one parameter block inside the parameter buffer.
type Range struct {
	Offset uint32
	Size   uint32
}

// DrawParameters collects parameter ranges and owns the buffer and
// descriptor they are uploaded to. The zero value is not usable; call New.
type DrawParameters struct {
	alignment uint32
	data      []byte
	ranges    []Range
	maxRange  uint32

	buffer     rhi.BufferHandle
	layout     rhi.DescriptorLayoutHandle
	descriptor rhi.DescriptorHandle
	built      bool
}

func slogger() *slog.Logger { return rendergraph.Logger() }

// New returns empty parameters aligned to the larger of the minimum
// uniform and storage buffer offset alignments of limits.
func New(limits rhi.Limits) *DrawParameters {
	align := max(limits.MinUniformBufferOffsetAlignment, limits.MinStorageBufferOffsetAlignment)
	if align == 0 {
		align = DefaultAlignment
	}
	return &DrawParameters{alignment: uint32(align)}
}

// Alignment returns the offset alignment of ranges.
func (p *DrawParameters) Alignment() uint32 { return p.alignment }

// AddRange appends the little-endian encoding of v and returns its offset.
// T must have a fixed size in the sense of encoding/binary: numbers,
// booleans, arrays and structs of those.
func AddRange[T any](p *DrawParameters, v T) (uint32, error) {
	n := binary.Size(v)
	if n < 0 || !fixedSize(reflect.TypeOf(v)) {
		return 0, fmt.Errorf("%w: %T", ErrNotFixedSize, v)
	}
	var buf bytes.Buffer
	buf.Grow(n)
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return 0, fmt.Errorf("bindless: encode %T: %w", v, err)
	}
	return p.AddBytes(buf.Bytes())
}

// fixedSize reports whether every value of t encodes to the same number of
// bytes. encoding/binary also sizes slices and pointers, which are not.
func fixedSize(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return fixedSize(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if !fixedSize(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// AddBytes appends a copy of b and returns its offset.
func (p *DrawParameters) AddBytes(b []byte) (uint32, error) {
	if p.built {
		return 0, ErrAlreadyBuilt
	}
	offset := uint32(len(p.data))
	size := uint32(len(b))
	p.data = append(p.data, b...)
	if pad := alignUp(size, p.alignment) - size; pad > 0 {
		p.data = append(p.data, make([]byte, pad)...)
	}
	p.ranges = append(p.ranges, Range{Offset: offset, Size: size})
	p.maxRange = max(p.maxRange, size)
	return offset, nil
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) / align * align
}

// Build uploads every range into one storage buffer and creates a
// descriptor whose binding 0 is a dynamic storage buffer over it.
func (p *DrawParameters) Build(s *storage.Storage) error {
	if p.built {
		return ErrAlreadyBuilt
	}

	size := uint64(max(len(p.data), int(p.alignment)))
	buffer, err := s.CreateBuffer(rhi.BufferDescription{
		Label: "bindless parameters",
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
		Size:  size,
		Data:  p.data,
	})
	if err != nil {
		return fmt.Errorf("bindless: create buffer: %w", err)
	}

	layout, err := s.CreateDescriptorLayout(rhi.DescriptorLayoutDescription{
		Label: "bindless parameters",
		Bindings: []rhi.DescriptorBinding{{
			Name:    "uDrawParams",
			Binding: 0,
			Type:    rhi.DescriptorStorageBufferDynamic,
			Count:   1,
			Stages:  gputypes.ShaderStageVertex | gputypes.ShaderStageFragment | gputypes.ShaderStageCompute,
		}},
	})
	if err != nil {
		s.DestroyBuffer(buffer)
		return fmt.Errorf("bindless: create descriptor layout: %w", err)
	}

	descriptor, err := s.CreateDescriptor(layout)
	if err == nil {
		err = s.WriteDescriptor(descriptor, rhi.DescriptorWrite{
			Binding: 0,
			Buffers: []rhi.BufferRange{{Buffer: buffer, Size: uint64(alignUp(max(p.maxRange, 1), p.alignment))}},
		})
	}
	if err != nil {
		s.DestroyDescriptor(descriptor)
		s.DestroyDescriptorLayout(layout)
		s.DestroyBuffer(buffer)
		return fmt.Errorf("bindless: create descriptor: %w", err)
	}

	p.buffer, p.layout, p.descriptor = buffer, layout, descriptor
	p.built = true
	slogger().Debug("bindless: parameters built",
		"ranges", len(p.ranges), "bytes", size, "alignment", p.alignment)
	return nil
}

// Built reports whether Build succeeded and Destroy was not called since.
func (p *DrawParameters) Built() bool { return p.built }

// Descriptor returns the descriptor created by Build.
func (p *DrawParameters) Descriptor() rhi.DescriptorHandle { return p.descriptor }

// DescriptorLayout returns the layout of Descriptor, for pipeline layouts.
func (p *DrawParameters) DescriptorLayout() rhi.DescriptorLayoutHandle { return p.layout }

// Buffer returns the buffer created by Build.
func (p *DrawParameters) Buffer() rhi.BufferHandle { return p.buffer }

// Size returns the number of bytes occupied by all ranges, padding
// included.
func (p *DrawParameters) Size() uint64 { return uint64(len(p.data)) }

// Ranges returns the ranges in insertion order.
func (p *DrawParameters) Ranges() []Range { return slices.Clone(p.ranges) }

// Data returns the bytes of a range.
func (p *DrawParameters) Data(r Range) []byte {
	return p.data[r.Offset : r.Offset+r.Size]
}

// Destroy releases the device objects and clears every range, so the
// parameters can be filled and built again.
func (p *DrawParameters) Destroy(s *storage.Storage) {
	if p.built {
		s.DestroyDescriptor(p.descriptor)
		s.DestroyDescriptorLayout(p.layout)
		s.DestroyBuffer(p.buffer)
	}
	p.buffer, p.layout, p.descriptor = rhi.InvalidHandle, rhi.InvalidHandle, rhi.InvalidHandle
	p.built = false
	p.data = p.data[:0]
	p.ranges = p.ranges[:0]
	p.maxRange = 0
}
