package frame

import (
	"fmt"

	"github.com/gogpu/rendergraph/rhi"
)

// Loop paces frames on a device. Begin waits on the fence of the slot about
// to be reused; End submits and moves to the next slot.
//
//	for running {
//		index, cmd, err := loop.Begin()
//		...
//		g.Execute(cmd, index)
//		err = loop.End(cmd)
//	}
type Loop struct {
	device rhi.Device
	frame  uint64
	cmd    rhi.CommandList
}

// NewLoop returns a loop on device starting at frame 0.
func NewLoop(device rhi.Device) *Loop {
	return &Loop{device: device}
}

// Index returns the slot of the current frame.
func (l *Loop) Index() uint32 { return uint32(l.frame % NumFramesInFlight) }

// Frame returns the number of frames ended so far.
func (l *Loop) Frame() uint64 { return l.frame }

// Begin blocks until the GPU has finished the previous frame that used the
// current slot and returns the slot index and a command list to record
// into.
func (l *Loop) Begin() (uint32, rhi.CommandList, error) {
	if l.cmd != nil {
		return 0, nil, ErrFrameActive
	}
	index := l.Index()
	cmd, err := l.device.BeginFrame(index)
	if err != nil {
		return 0, nil, fmt.Errorf("frame: begin %d: %w", l.frame, err)
	}
	l.cmd = cmd
	return index, cmd, nil
}

// End submits cmd, which must come from the matching Begin, and advances
// to the next frame. The frame is over even when submission fails.
func (l *Loop) End(cmd rhi.CommandList) error {
	if l.cmd == nil {
		return ErrNoFrame
	}
	index := l.Index()
	l.cmd = nil
	l.frame++
	if err := l.device.EndFrame(index, cmd); err != nil {
		slogger().Warn("frame: submit failed", "frame", l.frame-1, "slot", index, "err", err)
		return fmt.Errorf("frame: end %d: %w", l.frame-1, err)
	}
	return nil
}

// Idle waits for every submitted frame to finish. Call it before
// rebuilding graphs or destroying resources used by frames in flight.
func (l *Loop) Idle() error {
	if err := l.device.WaitForIdle(); err != nil {
		return fmt.Errorf("frame: wait for idle: %w", err)
	}
	return nil
}
