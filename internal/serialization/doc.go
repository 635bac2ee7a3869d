// Package serialization reads and writes buffer contents in the SafeTensors
// format.
//
// # Format
//
//	[8 bytes: header size, uint64 little endian]
//	[header: JSON object mapping tensor names to dtype, shape and data_offsets]
//	[data: raw little endian element bytes]
//
// Tensors are stored in name order. An optional "__metadata__" entry holds
// string pairs. Only F32 and F16 elements are supported, the two element
// types a compiled program can hold.
//
// The compiler CLI uses it to export constant buffers next to the kernel
// sources, to dump the buffers of a run and to load placeholder inputs.
package serialization
