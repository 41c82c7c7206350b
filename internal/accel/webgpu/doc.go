// Package webgpu implements the accelerator driver on WebGPU through the
// zero-CGO go-webgpu bindings. The driver registers itself as "wgpu" on
// platforms where the native library is supported.
//
// Kernel entry points are compiled to WGSL compute shaders specialised for
// the work-group size of each launch. Scalar arguments are packed into a
// uniform block bound after the storage buffers, and local scratch memory
// becomes a workgroup array.
package webgpu
