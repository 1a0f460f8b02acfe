package bindless

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/rendergraph/rhi"
	"github.com/gogpu/rendergraph/rhi/mock"
	"github.com/gogpu/rendergraph/storage"
)

type material struct {
	Albedo    uint32
	Normal    uint32
	Roughness float32
	Metallic  float32
}

type transform struct {
	Matrix [16]float32
}

func newStorage(t *testing.T, limits rhi.Limits) (*storage.Storage, *mock.Device) {
	t.Helper()
	dev := mock.NewWithLimits(limits)
	st, err := storage.New(dev, storage.Config{})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(st.Destroy)
	return st, dev
}

func TestAlignmentFromLimits(t *testing.T) {
	tests := []struct {
		name             string
		uniform, storage uint64
		want             uint32
	}{
		{"uniform larger", 256, 64, 256},
		{"storage larger", 64, 128, 128},
		{"zero limits", 0, 0, DefaultAlignment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(rhi.Limits{MinUniformBufferOffsetAlignment: tt.uniform, MinStorageBufferOffsetAlignment: tt.storage})
			if got := p.Alignment(); got != tt.want {
				t.Errorf("Alignment() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRangesAligned(t *testing.T) {
	p := New(rhi.Limits{MinUniformBufferOffsetAlignment: 64})

	sizes := []int{16, 64, 65, 1, 200, 0, 3}
	var offsets []uint32
	for _, n := range sizes {
		off, err := p.AddBytes(make([]byte, n))
		if err != nil {
			t.Fatalf("AddBytes(%d) error = %v", n, err)
		}
		offsets = append(offsets, off)
	}

	ranges := p.Ranges()
	if len(ranges) != len(sizes) {
		t.Fatalf("Ranges() len = %d, want %d", len(ranges), len(sizes))
	}
	for i, r := range ranges {
		if r.Offset != offsets[i] {
			t.Errorf("range %d offset = %d, AddBytes returned %d", i, r.Offset, offsets[i])
		}
		if r.Offset%64 != 0 {
			t.Errorf("range %d offset %d not aligned to 64", i, r.Offset)
		}
		if i > 0 {
			prev := ranges[i-1]
			if r.Offset < prev.Offset+alignUp(prev.Size, 64) {
				t.Errorf("range %d offset %d overlaps previous [%d,+%d)", i, r.Offset, prev.Offset, prev.Size)
			}
		}
	}
	if p.Size()%64 != 0 {
		t.Errorf("Size() = %d, not a multiple of the alignment", p.Size())
	}
}

func TestAddRangeEncodesLittleEndian(t *testing.T) {
	p := New(rhi.DefaultLimits())

	m := material{Albedo: 7, Normal: 9, Roughness: 0.5, Metallic: 1}
	off0, err := AddRange(p, m)
	if err != nil {
		t.Fatalf("AddRange(material) error = %v", err)
	}
	off1, err := AddRange(p, transform{Matrix: [16]float32{0: 1, 5: 1, 10: 1, 15: 1}})
	if err != nil {
		t.Fatalf("AddRange(transform) error = %v", err)
	}
	if off0 != 0 || off1 != 256 {
		t.Errorf("offsets = %d, %d; want 0, 256", off0, off1)
	}

	r := p.Ranges()
	if r[0].Size != 16 || r[1].Size != 64 {
		t.Fatalf("sizes = %d, %d; want 16, 64", r[0].Size, r[1].Size)
	}
	data := p.Data(r[0])
	if got := binary.LittleEndian.Uint32(data[0:]); got != 7 {
		t.Errorf("albedo = %d, want 7", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(data[8:])); got != 0.5 {
		t.Errorf("roughness = %v, want 0.5", got)
	}
}

func TestAddRangeRejectsVariableSize(t *testing.T) {
	type withSlice struct {
		Count   uint32
		Indices []uint32
	}
	value := material{Albedo: 1}
	tests := []struct {
		name string
		add  func(p *DrawParameters) (uint32, error)
	}{
		{"slice", func(p *DrawParameters) (uint32, error) { return AddRange(p, []uint32{1, 2}) }},
		{"byte slice", func(p *DrawParameters) (uint32, error) { return AddRange(p, []byte{1}) }},
		{"string", func(p *DrawParameters) (uint32, error) { return AddRange(p, "params") }},
		{"pointer", func(p *DrawParameters) (uint32, error) { return AddRange(p, &value) }},
		{"map", func(p *DrawParameters) (uint32, error) { return AddRange(p, map[string]uint32{"a": 1}) }},
		{"int", func(p *DrawParameters) (uint32, error) { return AddRange(p, 1) }},
		{"struct with slice", func(p *DrawParameters) (uint32, error) {
			return AddRange(p, withSlice{Count: 1, Indices: []uint32{4}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(rhi.DefaultLimits())
			if _, err := tt.add(p); !errors.Is(err, ErrNotFixedSize) {
				t.Errorf("AddRange(%s) error = %v, want ErrNotFixedSize", tt.name, err)
			}
			if len(p.Ranges()) != 0 {
				t.Error("failed AddRange left a range")
			}
		})
	}

	p := New(rhi.DefaultLimits())
	if _, err := AddRange(p, [4]float32{1, 2, 3, 4}); err != nil {
		t.Errorf("AddRange(array) error = %v", err)
	}
}

func TestBuild(t *testing.T) {
	st, dev := newStorage(t, rhi.DefaultLimits())
	p := New(st.Limits())

	if _, err := AddRange(p, material{Albedo: 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := AddRange(p, transform{}); err != nil {
		t.Fatal(err)
	}
	if err := p.Build(st); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !p.Built() {
		t.Error("Built() = false after Build")
	}

	buf, ok := dev.Buffers[p.Buffer()]
	if !ok {
		t.Fatal("parameter buffer not created")
	}
	if uint64(len(buf.Data)) != p.Size() {
		t.Errorf("buffer size = %d, want %d", len(buf.Data), p.Size())
	}
	if got := binary.LittleEndian.Uint32(buf.Data); got != 3 {
		t.Errorf("uploaded albedo = %d, want 3", got)
	}

	layout := dev.DescriptorLayouts[p.DescriptorLayout()]
	if len(layout.Bindings) != 1 || layout.Bindings[0].Type != rhi.DescriptorStorageBufferDynamic {
		t.Errorf("layout = %+v, want one dynamic storage buffer", layout)
	}
	d := dev.Descriptors[p.Descriptor()]
	if d == nil {
		t.Fatal("descriptor not created")
	}
	if r := d.Buffers[[2]uint32{0, 0}]; r.Buffer != p.Buffer() || r.Size != 256 {
		t.Errorf("descriptor binding = %+v, want buffer %d size 256", r, p.Buffer())
	}
}

func TestBuildEmpty(t *testing.T) {
	st, dev := newStorage(t, rhi.DefaultLimits())
	p := New(st.Limits())
	if err := p.Build(st); err != nil {
		t.Fatalf("Build() of empty parameters error = %v", err)
	}
	if _, ok := dev.Buffers[p.Buffer()]; !ok {
		t.Error("empty parameters have no buffer")
	}
}

func TestAlreadyBuilt(t *testing.T) {
	st, _ := newStorage(t, rhi.DefaultLimits())
	p := New(st.Limits())
	if _, err := p.AddBytes([]byte{1}); err != nil {
		t.Fatal(err)
	}
	if err := p.Build(st); err != nil {
		t.Fatal(err)
	}

	if _, err := p.AddBytes([]byte{2}); !errors.Is(err, ErrAlreadyBuilt) {
		t.Errorf("AddBytes after Build error = %v, want ErrAlreadyBuilt", err)
	}
	if _, err := AddRange(p, uint32(2)); !errors.Is(err, ErrAlreadyBuilt) {
		t.Errorf("AddRange after Build error = %v, want ErrAlreadyBuilt", err)
	}
	if err := p.Build(st); !errors.Is(err, ErrAlreadyBuilt) {
		t.Errorf("second Build error = %v, want ErrAlreadyBuilt", err)
	}
}

func TestDestroyResets(t *testing.T) {
	st, dev := newStorage(t, rhi.DefaultLimits())
	live := dev.Live()

	p := New(st.Limits())
	if _, err := p.AddBytes([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := p.Build(st); err != nil {
		t.Fatal(err)
	}
	p.Destroy(st)

	if got := dev.Live(); got != live {
		t.Errorf("live objects after Destroy = %d, want %d", got, live)
	}
	if p.Built() || p.Size() != 0 || len(p.Ranges()) != 0 {
		t.Errorf("Destroy left state: built %v size %d ranges %d", p.Built(), p.Size(), len(p.Ranges()))
	}
	if p.Buffer() != rhi.InvalidHandle || p.Descriptor() != rhi.InvalidHandle {
		t.Error("Destroy left handles")
	}

	off, err := p.AddBytes([]byte{4})
	if err != nil || off != 0 {
		t.Errorf("AddBytes after Destroy = %d, %v; want 0, nil", off, err)
	}
}

func TestBuildFailureReleases(t *testing.T) {
	st, dev := newStorage(t, rhi.DefaultLimits())
	live := dev.Live()

	boom := errors.New("out of descriptors")
	dev.Fail("CreateDescriptor", boom)

	p := New(st.Limits())
	if err := p.Build(st); !errors.Is(err, boom) {
		t.Fatalf("Build() error = %v, want %v", err, boom)
	}
	if p.Built() {
		t.Error("Built() = true after failed Build")
	}
	if got := dev.Live(); got != live {
		t.Errorf("live objects after failed Build = %d, want %d", got, live)
	}
}
