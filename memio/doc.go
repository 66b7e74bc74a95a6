// Package memio adapts wazero guest linear memory to the stream interfaces
// datastruct packs into and unpacks from.
//
// # Stream
//
// A Stream is an io.ReadWriteSeeker whose positions are guest addresses:
//
//	s := memio.NewAt(mod.ExportedMemory("memory"), ptr)
//	rec, err := header.UnpackFrom(s)
//
// Reads stop at the end of memory with io.EOF. Writes past the end fail
// unless the stream was created with Grow, in which case memory grows by
// whole pages.
//
// # Allocator
//
// Store packs a record and copies it into memory obtained from a guest
// allocator, usually the component model's cabi_realloc export:
//
//	alloc := memio.WrapAllocator(ctx, mod.ExportedFunction("cabi_realloc"))
//	ptr, size, err := memio.Store(mem, alloc, rec, 8)
package memio
