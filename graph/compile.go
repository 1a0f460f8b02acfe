package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rhi"
)

// Compile validates the passes, drops dead ones, sorts the rest so every
// writer runs before the readers of what it wrote, and derives load
// operations and barriers. Build calls it when passes changed; calling it
// directly is only needed to inspect the schedule without a device.
func (g *Graph) Compile() error {
	if err := g.validate(); err != nil {
		return err
	}

	live := make([]*Pass, 0, len(g.passes))
	for _, p := range g.passes {
		if p.empty() {
			slogger().Debug("graph: dropping pass without reads or writes",
				"graph", g.name, "pass", p.name)
			continue
		}
		live = append(live, p)
	}

	sorted, err := sortPasses(live, g.edges(live))
	if err != nil {
		return err
	}
	if err := g.checkReads(sorted); err != nil {
		return err
	}

	g.deriveLoadOps(sorted)
	g.deriveBarriers(sorted)

	g.compiled = sorted
	slogger().Debug("graph: compiled",
		"graph", g.name, "passes", len(sorted), "dropped", len(g.passes)-len(sorted))
	return nil
}

func (g *Graph) validate() error {
	names := make(map[string]struct{}, len(g.passes))
	for _, p := range g.passes {
		if _, ok := names[p.name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicatePassName, p.name)
		}
		names[p.name] = struct{}{}

		for _, t := range slices.Concat(p.reads, p.writes) {
			if g.registry.get(t) == nil {
				return fmt.Errorf("pass %q token %d: %w", p.name, t, ErrUnknownToken)
			}
		}
		for _, t := range p.writes {
			if slices.Contains(p.reads, t) {
				return fmt.Errorf("%w: pass %q token %d", ErrReadWriteSamePass, p.name, t)
			}
		}
	}
	return nil
}

// edges returns, for every pass, the indices of the passes that read
// something it writes. A write of a texture also feeds readers of its
// views and, for a view, readers of its parent.
func (g *Graph) edges(passes []*Pass) [][]int {
	textureReaders := make(map[ResourceToken][]int)
	bufferReaders := make(map[rhi.BufferHandle][]int)
	for i, p := range passes {
		for _, t := range p.reads {
			textureReaders[t] = append(textureReaders[t], i)
		}
		for _, b := range p.bufferReads {
			bufferReaders[b.Buffer] = append(bufferReaders[b.Buffer], i)
		}
	}

	adj := make([][]int, len(passes))
	for i, p := range passes {
		seen := make(map[int]struct{})
		add := func(readers []int) {
			for _, r := range readers {
				if _, ok := seen[r]; ok || r == i {
					continue
				}
				seen[r] = struct{}{}
				adj[i] = append(adj[i], r)
			}
		}
		for _, t := range p.writes {
			for _, rel := range g.registry.related(t) {
				add(textureReaders[rel])
			}
		}
		for _, b := range p.bufferWrites {
			add(bufferReaders[b.Buffer])
		}
	}
	return adj
}

const (
	white = iota
	gray
	black
)

// sortPasses is a depth-first topological sort. Roots are visited in
// reverse declaration order and the post-order is reversed, so independent
// passes keep their declaration order.
func sortPasses(passes []*Pass, adj [][]int) ([]*Pass, error) {
	color := make([]uint8, len(passes))
	order := make([]int, 0, len(passes))
	var stack []int

	var visit func(i int) error
	visit = func(i int) error {
		color[i] = gray
		stack = append(stack, i)
		for _, next := range adj[i] {
			switch color[next] {
			case gray:
				return cycleError(passes, stack, next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		order = append(order, i)
		return nil
	}

	for i := len(passes) - 1; i >= 0; i-- {
		if color[i] != white {
			continue
		}
		if err := visit(i); err != nil {
			return nil, err
		}
	}

	sorted := make([]*Pass, len(order))
	for i, idx := range order {
		sorted[len(order)-1-i] = passes[idx]
	}
	return sorted, nil
}

func cycleError(passes []*Pass, stack []int, back int) error {
	start := slices.Index(stack, back)
	names := make([]string, 0, len(stack)-start+1)
	for _, i := range stack[start:] {
		names = append(names, passes[i].name)
	}
	names = append(names, passes[back].name)
	return fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(names, " -> "))
}

// checkReads rejects transient textures that are read but that no
// surviving pass writes, directly or through a related view.
func (g *Graph) checkReads(passes []*Pass) error {
	written := make(map[ResourceToken]struct{})
	for _, p := range passes {
		for _, t := range p.writes {
			written[t] = struct{}{}
		}
	}
	for _, p := range passes {
		for _, t := range p.reads {
			if !g.registry.transient(t) {
				continue
			}
			ok := false
			for _, rel := range g.registry.related(t) {
				if _, w := written[rel]; w {
					ok = true
					break
				}
			}
			if !ok {
				return fmt.Errorf("%w: pass %q token %d", ErrReadBeforeWrite, p.name, t)
			}
		}
	}
	return nil
}

// deriveLoadOps clears a write when none of the mips and layers it covers
// has been written by an earlier pass, and loads it otherwise. Every write
// is stored.
func (g *Graph) deriveLoadOps(passes []*Pass) {
	sub := newSubresources(g.registry)
	written := make(map[ResourceToken][]bool)
	for _, p := range passes {
		for i, t := range p.writes {
			r := sub.rangeOf(t)
			dims := sub.size(r.root)
			cells := written[r.root]
			if cells == nil {
				cells = make([]bool, dims[0]*dims[1])
				written[r.root] = cells
			}
			load := false
			for m := r.mip; m < r.mip+r.mips; m++ {
				for l := r.layer; l < r.layer+r.layers; l++ {
					c := cell(dims, m, l)
					load = load || cells[c]
					cells[c] = true
				}
			}

			a := &p.attachments[i]
			a.StoreOp = gputypes.StoreOpStore
			a.LoadOp = gputypes.LoadOpClear
			if load {
				a.LoadOp = gputypes.LoadOpLoad
			}
		}
	}
}
