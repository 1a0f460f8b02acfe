package storage

import (
	"fmt"

	"github.com/gogpu/rendergraph/rhi"
)

// MemoryStats reports the device memory owned through a Storage.
// Sizes are estimates computed from descriptions, not driver queries.
type MemoryStats struct {
	// TextureCount is the number of live textures, views excluded.
	TextureCount int

	// ViewCount is the number of live texture views.
	ViewCount int

	// TextureBytes is the estimated size of all live textures.
	TextureBytes uint64

	// BufferCount is the number of live buffers.
	BufferCount int

	// BufferBytes is the total size of all live buffers.
	BufferBytes uint64

	// PeakBytes is the highest TextureBytes+BufferBytes observed.
	PeakBytes uint64
}

// TotalBytes returns texture and buffer memory combined.
func (s MemoryStats) TotalBytes() uint64 {
	return s.TextureBytes + s.BufferBytes
}

// String returns a human-readable summary.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%d textures (%d views) %.1f MB, %d buffers %.1f MB, peak %.1f MB]",
		s.TextureCount, s.ViewCount, mb(s.TextureBytes),
		s.BufferCount, mb(s.BufferBytes),
		mb(s.PeakBytes))
}

func mb(b uint64) float64 { return float64(b) / (1024 * 1024) }

func (st *Storage) trackAlloc(textureBytes, bufferBytes uint64) {
	st.stats.TextureBytes += textureBytes
	st.stats.BufferBytes += bufferBytes
	st.stats.PeakBytes = max(st.stats.PeakBytes, st.stats.TotalBytes())
}

func (st *Storage) trackFree(textureBytes, bufferBytes uint64) {
	st.stats.TextureBytes -= textureBytes
	st.stats.BufferBytes -= bufferBytes
}

// Stats returns current memory statistics.
func (st *Storage) Stats() MemoryStats {
	s := st.stats
	st.textures.Each(func(_ rhi.TextureHandle, e textureEntry) {
		if e.view != nil {
			s.ViewCount++
		} else {
			s.TextureCount++
		}
	})
	s.BufferCount = st.buffers.Len()
	return s
}
