package main

import (
	"testing"

	"github.com/gogpu/rendergraph/frame"
	"github.com/gogpu/rendergraph/rhi"
	"github.com/gogpu/rendergraph/rhi/mock"
	"github.com/gogpu/rendergraph/storage"
)

func TestReferenceGraph(t *testing.T) {
	st, err := storage.New(mock.New(), storage.Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Destroy)
	scene, err := frame.NewSceneData(st, frame.SceneLimits{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(scene.Destroy)

	g, err := referenceGraph(st, scene)
	if err != nil {
		t.Fatal(err)
	}
	g.SetFramebufferExtent(640, 480)
	if err := g.Build(st); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() { g.Destroy(st) })

	order := map[string]int{}
	for i, p := range g.CompiledPasses() {
		order[p.Name()] = i
	}
	if _, ok := order["debug overlay"]; ok {
		t.Error("empty pass was scheduled")
	}
	if len(order) != 5 {
		t.Fatalf("scheduled %d passes, want 5: %v", len(order), order)
	}
	before := [][2]string{
		{"shadows", "main"},
		{"cull", "main"},
		{"main", "bloom"},
		{"main", "tonemap"},
		{"bloom", "tonemap"},
	}
	for _, b := range before {
		if order[b[0]] >= order[b[1]] {
			t.Errorf("%q scheduled at %d, not before %q at %d", b[0], order[b[0]], b[1], order[b[1]])
		}
	}

	for _, p := range g.CompiledPasses() {
		if p.Name() != "bloom" {
			continue
		}
		if ctx := p.Context(); ctx.Width != 320 || ctx.Height != 240 {
			t.Errorf("bloom extent = %dx%d, want 320x240", ctx.Width, ctx.Height)
		}
	}
}

func TestReferenceGraphWithoutBindless(t *testing.T) {
	limits := rhi.DefaultLimits()
	limits.MaxDescriptorArraySize = 1
	st, err := storage.New(mock.NewWithLimits(limits), storage.Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Destroy)
	scene, err := frame.NewSceneData(st, frame.SceneLimits{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(scene.Destroy)

	g, err := referenceGraph(st, scene)
	if err != nil {
		t.Fatal(err)
	}
	g.SetFramebufferExtent(640, 480)
	if err := g.Build(st); err != nil {
		t.Errorf("Build() error = %v", err)
	}
	g.Destroy(st)
}
