// Package framepacer is the frame-presentation core that sits between a
// renderer and a Vulkan-class graphics device.
//
// It owns the swapchain, the per-frame synchronization primitives that bound
// how far the CPU may run ahead of the GPU, and the command buffer
// recording/submission protocol that turns a draw description into a
// presented image every tick.
//
// The sub-packages are layered leaves first:
//
//   - driver: backend-neutral object model (buffers, images, fences, queues...)
//   - resource: memory-backed buffers and image bundles
//   - command: command recorders and one-shot recording sessions
//   - swapchain: presentable image rotation, resize and suspension
//   - target: render pass, color/depth attachments and framebuffers
//   - frame: the per-tick orchestrator
//   - scene: a concrete drawer (pipeline, mesh, per-slot uniforms)
//   - vulkan: the vkngwrapper backend for package driver
package framepacer
