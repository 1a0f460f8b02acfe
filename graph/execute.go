package graph

import (
	"fmt"

	"github.com/gogpu/rendergraph/rhi"
)

// Execute records every compiled pass into cmd: the pass's barrier, then
// for graphics passes with attachments a render pass with a full-extent
// viewport and scissor around the executor call. Nothing is recorded when
// a pass has no executor.
func (g *Graph) Execute(cmd rhi.CommandList, frameIndex uint32) error {
	if !g.built || g.dirty != 0 {
		return fmt.Errorf("graph %q: %w", g.name, ErrNotBuilt)
	}
	for _, p := range g.compiled {
		if p.executor == nil {
			return fmt.Errorf("graph %q pass %q: %w", g.name, p.name, ErrMissingExecutor)
		}
	}

	for _, p := range g.compiled {
		if len(p.imageBarriers) > 0 || len(p.bufferBarriers) > 0 {
			cmd.PipelineBarrier(nil, p.imageBarriers, p.bufferBarriers)
		}

		inRenderPass := p.typ == PassGraphics && p.renderPass != rhi.InvalidHandle
		if inRenderPass {
			w, h := p.ctx.Width, p.ctx.Height
			cmd.BeginRenderPass(p.renderPass, p.framebuffer, [2]int32{}, [2]uint32{w, h})
			cmd.SetViewport(0, 0, float32(w), float32(h), 0, 1)
			cmd.SetScissor(0, 0, w, h)
		}

		p.executor(cmd, p.ctx, frameIndex)

		if inRenderPass {
			cmd.EndRenderPass()
		}
	}
	return nil
}
