// Package webgpu runs programs on the GPU through WebGPU: every kernel is
// printed as WGSL, compiled to a compute pipeline and dispatched over its
// grid. The adapter needs the wgpu-native library and is built on windows
// only.
package webgpu
