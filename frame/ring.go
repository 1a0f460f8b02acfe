// Package frame drives frames in flight.
//
// The CPU records frame N+1 while the GPU still executes frame N. Data
// written every frame is therefore kept once per frame in flight, in a
// Ring, and the slot of a frame is reused only after Loop.Begin has waited
// for the GPU to finish the frame that last used it.
package frame

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/rendergraph"
)

// NumFramesInFlight is the number of frames the CPU may record ahead of
// the GPU.
const NumFramesInFlight = 2

// Frame errors.
var (
	ErrFrameActive = errors.New("frame: frame already begun")
	ErrNoFrame     = errors.New("frame: no frame begun")
)

func slogger() *slog.Logger { return rendergraph.Logger() }

// Ring holds one value per frame in flight.
type Ring[T any] struct {
	slots   [NumFramesInFlight]T
	counter uint64
}

// NewRing creates a ring whose slots are made by newSlot. If newSlot fails
// the slots made so far are passed to release, when not nil.
func NewRing[T any](newSlot func(index uint32) (T, error), release func(T)) (*Ring[T], error) {
	r := &Ring[T]{}
	for i := range NumFramesInFlight {
		v, err := newSlot(uint32(i))
		if err != nil {
			if release != nil {
				for j := range i {
					release(r.slots[j])
				}
			}
			return nil, fmt.Errorf("frame: slot %d: %w", i, err)
		}
		r.slots[i] = v
	}
	return r, nil
}

// Index returns the slot of the current frame.
func (r *Ring[T]) Index() uint32 { return uint32(r.counter % NumFramesInFlight) }

// Current returns the value of the current frame.
func (r *Ring[T]) Current() T { return r.slots[r.Index()] }

// Slot returns the value of slot i. It panics if i >= NumFramesInFlight.
func (r *Ring[T]) Slot(i uint32) T { return r.slots[i] }

// Advance moves to the next frame.
func (r *Ring[T]) Advance() { r.counter++ }

// Each calls fn for every slot in index order.
func (r *Ring[T]) Each(fn func(index uint32, v T)) {
	for i, v := range r.slots {
		fn(uint32(i), v)
	}
}
