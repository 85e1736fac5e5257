// Package memsys provides memory management and slab allocation for column buffers
// received over the wire and for tables cloned out of views
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

import (
	"github.com/apache/arrow/go/v8/arrow/memory"
)

// interface guard
var _ memory.Allocator = (*MMSA)(nil)

// Allocate implements memory.Allocator.
func (r *MMSA) Allocate(size int) []byte {
	buf, _ := r.AllocSize(int64(size))
	return buf
}

// Reallocate implements memory.Allocator; contents are preserved up to min(len(b), size).
func (r *MMSA) Reallocate(size int, b []byte) []byte {
	if size <= cap(b) {
		return b[:size]
	}
	nb := r.Allocate(size)
	copy(nb, b)
	if cap(b) > 0 {
		r.Free(b)
	}
	return nb
}

// Free implements memory.Allocator.
func (r *MMSA) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	r.free(b)
}
