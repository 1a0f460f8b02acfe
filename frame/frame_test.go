package frame

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/rendergraph/rhi/mock"
)

func TestRing(t *testing.T) {
	r, err := NewRing(func(i uint32) (*[]uint32, error) {
		s := []uint32{i}
		return &s, nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	var indices []uint32
	for range 5 {
		indices = append(indices, r.Index())
		*r.Current() = append(*r.Current(), r.Index())
		r.Advance()
	}
	if want := []uint32{0, 1, 0, 1, 0}; !slices.Equal(indices, want) {
		t.Errorf("indices = %v, want %v", indices, want)
	}
	if got := *r.Slot(0); !slices.Equal(got, []uint32{0, 0, 0, 0}) {
		t.Errorf("slot 0 = %v", got)
	}
	if got := *r.Slot(1); !slices.Equal(got, []uint32{1, 1, 1}) {
		t.Errorf("slot 1 = %v", got)
	}

	n := 0
	r.Each(func(i uint32, v *[]uint32) {
		if (*v)[0] != i {
			t.Errorf("Each slot %d holds %v", i, *v)
		}
		n++
	})
	if n != NumFramesInFlight {
		t.Errorf("Each visited %d slots, want %d", n, NumFramesInFlight)
	}
}

func TestNewRingReleasesOnError(t *testing.T) {
	boom := errors.New("boom")
	var released []int
	_, err := NewRing(func(i uint32) (int, error) {
		if i == 1 {
			return 0, boom
		}
		return 10 + int(i), nil
	}, func(v int) { released = append(released, v) })
	if !errors.Is(err, boom) {
		t.Fatalf("NewRing() error = %v, want %v", err, boom)
	}
	if !slices.Equal(released, []int{10}) {
		t.Errorf("released = %v, want [10]", released)
	}
}

func TestLoop(t *testing.T) {
	dev := mock.New()
	loop := NewLoop(dev)

	for i := range 3 {
		index, cmd, err := loop.Begin()
		if err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if index != uint32(i%NumFramesInFlight) {
			t.Errorf("frame %d index = %d", i, index)
		}
		cmd.Dispatch(1, 1, 1)
		if err := loop.End(cmd); err != nil {
			t.Fatalf("End() error = %v", err)
		}
	}

	if want := []uint32{0, 1, 0}; !slices.Equal(dev.FrameWaits, want) {
		t.Errorf("fence waits = %v, want %v", dev.FrameWaits, want)
	}
	if len(dev.Submitted) != 3 || dev.Submitted[2].FrameIndex != 0 {
		t.Errorf("submitted %d lists", len(dev.Submitted))
	}
	if loop.Frame() != 3 || loop.Index() != 1 {
		t.Errorf("Frame() = %d Index() = %d, want 3 and 1", loop.Frame(), loop.Index())
	}
	if err := loop.Idle(); err != nil {
		t.Errorf("Idle() error = %v", err)
	}
}

func TestLoopMisuse(t *testing.T) {
	dev := mock.New()
	loop := NewLoop(dev)

	if err := loop.End(&mock.CommandList{}); !errors.Is(err, ErrNoFrame) {
		t.Errorf("End() without Begin error = %v, want ErrNoFrame", err)
	}
	_, cmd, err := loop.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := loop.Begin(); !errors.Is(err, ErrFrameActive) {
		t.Errorf("second Begin() error = %v, want ErrFrameActive", err)
	}

	boom := errors.New("device lost")
	dev.Fail("EndFrame", boom)
	if err := loop.End(cmd); !errors.Is(err, boom) {
		t.Errorf("End() error = %v, want %v", err, boom)
	}
	if loop.Frame() != 1 {
		t.Errorf("failed End did not finish the frame: Frame() = %d", loop.Frame())
	}

	dev.Fail("BeginFrame", boom)
	if _, _, err := loop.Begin(); !errors.Is(err, boom) {
		t.Errorf("Begin() error = %v, want %v", err, boom)
	}
	if _, _, err := loop.Begin(); err != nil {
		t.Errorf("Begin() after failed Begin error = %v", err)
	}
}
