// Package rendergraph schedules GPU work for a frame from declared passes.
//
// # Overview
//
// Rendering code describes a frame as a set of passes. Each pass names the
// textures and buffers it reads and writes and registers an executor that
// records its commands. The graph orders the passes so that every producer
// runs before its consumers, realizes transient resources, derives load and
// store operations for attachments, computes the barriers between passes and
// finally records every pass in order.
//
// # Quick Start
//
//	st, err := storage.New(device, storage.Config{})
//	if err != nil {
//	    return err
//	}
//
//	g := graph.New("scene")
//	g.SetFramebufferExtent(1920, 1080)
//
//	hdr := g.Create(graph.TextureDescription{
//	    TextureDescription: rhi.TextureDescription{
//	        Width:  100,
//	        Height: 100,
//	        Format: gputypes.TextureFormatRGBA8Unorm,
//	        Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
//	    },
//	    SizeMethod: graph.SizeFramebufferRatio,
//	})
//
//	forward := g.AddGraphicsPass("main")
//	forward.Write(hdr, graph.AttachmentColor, rhi.ClearColor(0, 0, 0, 1))
//	forward.SetExecutor(drawScene, nil)
//
//	if err := g.Build(st); err != nil {
//	    return err
//	}
//
//	loop := frame.NewLoop(device)
//	idx, cmd, err := loop.Begin()
//	...
//	err = g.Execute(cmd, idx)
//	err = loop.End(cmd)
//
// # Architecture
//
// The module is organized into:
//   - rhi: device abstraction (handles, descriptions, barriers, command lists)
//   - rhi/halrhi: rhi.Device implemented on gogpu/wgpu HAL
//   - rhi/mock: recording device used by tests and tooling
//   - storage: handle factory and the global bindless descriptor
//   - bindless: aligned per-draw parameter buffer
//   - graph: resource registry, passes, compile, build and execute
//   - frame: frames in flight and per-frame scene data
//
// # Logging
//
// The module is silent by default. Call [SetLogger] to receive diagnostics
// from every sub-package.
package rendergraph

// Version information
const (
	// Version is the current version of the module
	Version = "0.3.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 3

	// VersionPatch is the patch version
	VersionPatch = 0
)
