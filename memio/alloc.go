package memio

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	ds "github.com/wippyai/datastruct"
)

// Allocator reserves guest memory.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// WrapAllocator wraps a cabi_realloc style export, or returns nil for a nil
// function.
func WrapAllocator(ctx context.Context, fn api.Function) Allocator {
	if fn == nil {
		return nil
	}
	return &FuncAllocator{Ctx: ctx, Fn: fn}
}

// FuncAllocator calls realloc(old_ptr, old_size, align, new_size).
type FuncAllocator struct {
	Ctx context.Context
	Fn  api.Function
}

// Alloc allocates size bytes aligned to align.
func (a *FuncAllocator) Alloc(size, align uint32) (uint32, error) {
	results, err := a.Fn.Call(a.Ctx, 0, 0, uint64(align), uint64(size))
	if err != nil {
		return 0, fmt.Errorf("allocation failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("allocation returned no result")
	}
	return uint32(results[0]), nil
}

// Free releases a block by reallocating it to zero bytes.
func (a *FuncAllocator) Free(ptr, size, align uint32) {
	_, _ = a.Fn.Call(a.Ctx, uint64(ptr), uint64(size), uint64(align), 0)
}

// Store packs rec into freshly allocated guest memory and returns its
// address and size. The block is freed again if packing fails.
func Store(mem api.Memory, alloc Allocator, rec *ds.Record, align uint32, opts ...ds.CallOption) (ptr, size uint32, err error) {
	n, err := rec.Sizeof(opts...)
	if err != nil {
		return 0, 0, err
	}
	size = uint32(n)
	if ptr, err = alloc.Alloc(size, align); err != nil {
		return 0, 0, err
	}
	if err = rec.Type().PackTo(rec, NewAt(mem, ptr), opts...); err != nil {
		alloc.Free(ptr, size, align)
		return 0, 0, err
	}
	return ptr, size, nil
}

// Load unpacks a st value stored at ptr.
func Load(mem api.Memory, st *ds.StructType, ptr uint32, opts ...ds.CallOption) (*ds.Record, error) {
	return st.UnpackFrom(NewAt(mem, ptr), opts...)
}
