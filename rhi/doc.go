// Package rhi defines the device abstraction the render graph records
// against.
//
// The package contains no GPU code. It defines opaque handles, resource
// descriptions, synchronization primitives and the [Device] and
// [CommandList] interfaces. Backends implement those interfaces:
//
//	               +-----------------+
//	               |  graph/storage  |
//	               +--------+--------+
//	                        |
//	               +--------v--------+
//	               |    rhi.Device   |
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|     halrhi      |          |      mock       |
//	|  (hal.Device)   |          |   (recording)   |
//	+--------+--------+          +-----------------+
//	         |
//	+--------v--------+
//	|   gogpu/wgpu    |
//	+-----------------+
//
// # Handles
//
// Resources are named by typed integer handles ([TextureHandle],
// [BufferHandle], ...). The caller allocates the handle and passes it to the
// matching Create method; the device keeps the mapping from handle to its own
// objects. Handle 0 is [InvalidHandle]. Texture and sampler handles double as
// array indices into the global bindless descriptor, which is why they are
// 32 bits wide.
//
// # Synchronization
//
// Barriers are described with Vulkan-style stage, access and layout flags
// ([PipelineStage], [Access], [ImageLayout]). Backends with implicit
// tracking may translate or ignore them.
//
// # Formats and usages
//
// Texture formats, texture and buffer usages, load and store operations and
// clear colors reuse the WebGPU enums from github.com/gogpu/gputypes.
package rhi
