// Command rgdump builds a reference frame graph and prints its schedule.
//
// It compiles and builds the graph on the selected backend, records one
// frame and prints the pass order, the barriers in front of every pass,
// the derived load operations and the device memory in use. With -resize
// it rebuilds the graph at a new framebuffer extent and prints the
// difference in memory.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/frame"
	"github.com/gogpu/rendergraph/graph"
	"github.com/gogpu/rendergraph/rhi"
	"github.com/gogpu/rendergraph/rhi/mock"
	"github.com/gogpu/rendergraph/storage"

	_ "github.com/gogpu/rendergraph/rhi/halrhi" // register the "hal" backend
)

func main() {
	var (
		backend = flag.String("backend", rhi.BackendMock, "device backend: mock, hal or empty for the first that opens")
		width   = flag.Uint("width", 1920, "framebuffer width")
		height  = flag.Uint("height", 1080, "framebuffer height")
		resize  = flag.String("resize", "", "rebuild at WxH after the first frame")
		verbose = flag.Bool("v", false, "log scheduler decisions to stderr")
	)
	flag.Parse()

	if *verbose {
		rendergraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	device, err := rhi.Open(*backend)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer device.Destroy()

	st, err := storage.New(device, storage.Config{})
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}
	defer st.Destroy()

	scenes, err := frame.NewRing(func(uint32) (*frame.SceneData, error) {
		return frame.NewSceneData(st, frame.SceneLimits{})
	}, (*frame.SceneData).Destroy)
	if err != nil {
		log.Fatalf("Failed to create scene data: %v", err)
	}
	defer scenes.Each(func(_ uint32, d *frame.SceneData) { d.Destroy() })

	g, err := referenceGraph(st, scenes.Current())
	if err != nil {
		log.Fatalf("Failed to declare graph: %v", err)
	}
	g.SetFramebufferExtent(uint32(*width), uint32(*height))
	defer g.Destroy(st)

	p := message.NewPrinter(language.English)
	loop := frame.NewLoop(device)

	if err := renderFrame(g, st, loop); err != nil {
		log.Fatalf("Frame failed: %v", err)
	}
	dump(p, g, st)

	if *resize != "" {
		var w, h uint32
		if _, err := fmt.Sscanf(*resize, "%dx%d", &w, &h); err != nil {
			log.Fatalf("Bad -resize %q: %v", *resize, err)
		}
		before := st.Stats()
		g.SetFramebufferExtent(w, h)
		scenes.Advance()
		if err := renderFrame(g, st, loop); err != nil {
			log.Fatalf("Frame after resize failed: %v", err)
		}
		after := st.Stats()
		p.Printf("\nresized to %dx%d: texture memory %d -> %d bytes\n", w, h, before.TextureBytes, after.TextureBytes)
	}

	if err := loop.Idle(); err != nil {
		log.Fatalf("Wait for idle: %v", err)
	}
}

// referenceGraph declares a forward renderer: shadow cascades, GPU
// culling, an MSAA main pass, bloom and tone mapping. Passes are declared
// out of order; Compile sorts them.
func referenceGraph(st *storage.Storage, scene *frame.SceneData) (*graph.Graph, error) {
	g := graph.New("reference")

	color := func(pct uint32, samples uint32) graph.TextureDescription {
		return graph.TextureDescription{
			TextureDescription: rhi.TextureDescription{
				Format:      gputypes.TextureFormatRGBA8Unorm,
				Usage:       gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
				Width:       pct,
				Height:      pct,
				SampleCount: samples,
			},
			SizeMethod: graph.SizeFramebufferRatio,
		}
	}

	shadowMap := g.Create(graph.TextureDescription{TextureDescription: rhi.TextureDescription{
		Label:      "shadow map",
		Format:     gputypes.TextureFormatDepth24PlusStencil8,
		Usage:      gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
		Width:      2048,
		Height:     2048,
		LayerCount: 4,
	}})
	msaa := g.Create(color(100, 4))
	depth := g.Create(graph.TextureDescription{
		TextureDescription: rhi.TextureDescription{
			Format:      gputypes.TextureFormatDepth24PlusStencil8,
			Usage:       gputypes.TextureUsageRenderAttachment,
			Width:       100,
			Height:      100,
			SampleCount: 4,
		},
		SizeMethod: graph.SizeFramebufferRatio,
	})
	hdr := g.Create(color(100, 1))
	bloomDesc := color(50, 1)
	bloomDesc.Usage |= gputypes.TextureUsageStorageBinding
	bloom := g.Create(bloomDesc)
	bloomHalf := g.MustCreateView(bloom, 0, 1, 0, 1)
	final := g.Create(color(100, 1))

	if st.Bindless() {
		if err := g.OnReady(hdr, func(h rhi.TextureHandle, s *storage.Storage) error {
			return s.AddToDescriptor(h)
		}); err != nil {
			return nil, err
		}
	} else {
		log.Printf("device has no bindless descriptor; the HDR target is bound per pass")
	}

	drawArgs, err := st.CreateBuffer(rhi.BufferDescription{
		Label: "draw arguments",
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageIndirect,
		Size:  4096,
	})
	if err != nil {
		return nil, err
	}
	sceneBuffers := scene.Buffers()

	nop := func(rhi.CommandList, graph.PassContext, uint32) {}

	tonemap := g.AddGraphicsPass("tonemap")
	tonemap.Read(hdr)
	tonemap.Read(bloomHalf)
	tonemap.Write(final, graph.AttachmentColor, rhi.ClearColor(0, 0, 0, 1))
	tonemap.SetExecutor(nop, nil)

	forward := g.AddGraphicsPass("main")
	forward.Read(shadowMap)
	forward.ReadBuffer(drawArgs, gputypes.BufferUsageIndirect)
	forward.ReadBuffer(sceneBuffers.Camera, gputypes.BufferUsageUniform)
	forward.Write(msaa, graph.AttachmentColor, rhi.ClearColor(0.1, 0.1, 0.1, 1))
	forward.Write(depth, graph.AttachmentDepth, rhi.ClearDepth(1, 0))
	forward.Write(hdr, graph.AttachmentResolve, rhi.ClearValue{})
	forward.SetExecutor(nop, nil)

	blur := g.AddComputePass("bloom")
	blur.Read(hdr)
	blur.Write(bloomHalf, graph.AttachmentColor, rhi.ClearValue{})
	blur.SetExecutor(nop, nil)

	cull := g.AddComputePass("cull")
	cull.ReadBuffer(sceneBuffers.MeshTransforms, gputypes.BufferUsageStorage)
	cull.WriteBuffer(drawArgs, gputypes.BufferUsageStorage)
	cull.SetExecutor(nop, nil)

	shadows := g.AddGraphicsPass("shadows")
	shadows.ReadBuffer(sceneBuffers.ShadowMaps, gputypes.BufferUsageStorage)
	shadows.Write(shadowMap, graph.AttachmentDepth, rhi.ClearDepth(1, 0))
	shadows.SetExecutor(nop, nil)

	// Declared but never used; Compile drops it.
	g.AddGraphicsPass("debug overlay")

	return g, nil
}

func renderFrame(g *graph.Graph, st *storage.Storage, loop *frame.Loop) error {
	if err := g.Build(st); err != nil {
		return err
	}
	index, cmd, err := loop.Begin()
	if err != nil {
		return err
	}
	if err := g.Execute(cmd, index); err != nil {
		_ = loop.End(cmd)
		return err
	}
	if list, ok := cmd.(*mock.CommandList); ok {
		ops := list.Ops()
		names := make([]string, len(ops))
		for i, op := range ops {
			names[i] = op.String()
		}
		log.Printf("frame %d recorded %d commands: %s", loop.Frame(), len(ops), strings.Join(names, " "))
	}
	return loop.End(cmd)
}

func dump(p *message.Printer, g *graph.Graph, st *storage.Storage) {
	w, h := g.FramebufferExtent()
	p.Printf("graph %q at %dx%d: %d of %d passes scheduled\n\n",
		g.Name(), w, h, len(g.CompiledPasses()), len(g.Passes()))

	for i, pass := range g.CompiledPasses() {
		ctx := pass.Context()
		p.Printf("%d. %-8s %-10s %dx%dx%d\n", i, pass.Type(), pass.Name(), ctx.Width, ctx.Height, ctx.Layers)
		for _, b := range pass.ImageBarriers() {
			p.Printf("     image  %3d  %s -> %s  [%s -> %s]\n",
				b.Texture, b.SrcLayout, b.DstLayout, b.SrcStage, b.DstStage)
		}
		for _, b := range pass.BufferBarriers() {
			p.Printf("     buffer %3d  %s -> %s  [%s -> %s]\n",
				b.Buffer, b.SrcAccess, b.DstAccess, b.SrcStage, b.DstStage)
		}
		for j, a := range pass.Attachments() {
			p.Printf("     write  %3d  %s load=%v store=%v\n",
				ctx.Writes[j], a.Type, a.LoadOp, a.StoreOp)
		}
	}

	s := st.Stats()
	p.Printf("\n%d textures (%d views): %d bytes\n", s.TextureCount, s.ViewCount, s.TextureBytes)
	p.Printf("%d buffers: %d bytes\n", s.BufferCount, s.BufferBytes)
	p.Printf("peak: %d bytes\n", s.PeakBytes)
}
