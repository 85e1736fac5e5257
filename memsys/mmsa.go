// Package memsys provides memory management and slab allocation for column buffers
// received over the wire and for tables cloned out of views
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

import (
	"fmt"
	"strconv"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/atomic"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/nlog"
)

// ===================== Theory Of Operations (TOO) =============================
//
// MMSA is a slab allocator with power-of-two size classes in the range
// [min_slab_size, max_slab_size]. Each slab keeps a ring of reusable buffers
// split into `get` (allocating side) and `put` (freeing side) halves, swapped
// when the `get` half runs out.
//
// Allocations larger than the max slab size go to the heap and are tracked the
// same way, so that Outstanding() accounts for every byte handed out.
//
// MMSA implements the Arrow memory.Allocator interface, which makes it the
// allocator of every column buffer the exchange layer receives or clones.

const (
	maxDepth = 1024 // max number of cached buffers per slab
	minDepth = 4
)

type (
	MMSA struct {
		name        string
		rings       []*Slab
		outstanding atomic.Int64
		allocs      atomic.Int64
		heapAllocs  atomic.Int64
		minSize     int64
		maxSize     int64
	}
	Stats struct {
		Hits        []int64
		Outstanding int64
		Allocs      int64
		HeapAllocs  int64
	}
)

func NewMMSA(name string, config *cmn.MemsysConf) (*MMSA, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	r := &MMSA{name: name, minSize: int64(config.MinSlabSize), maxSize: int64(config.MaxSlabSize)}
	for size := r.minSize; size <= r.maxSize; size <<= 1 {
		slab := &Slab{m: r, bufSize: size, tag: r.name + "." + cos.ToSizeIEC(size, 0)}
		slab.get = make([][]byte, 0, minDepth)
		slab.put = make([][]byte, 0, minDepth)
		r.rings = append(r.rings, slab)
	}
	if cmn.Rom.FastV(4, cos.SmoduleMemsys) {
		nlog.Infoln(r.String())
	}
	return r, nil
}

// NewTestMMSA is a small-slab allocator for unit tests.
func NewTestMMSA(name string) *MMSA {
	r, err := NewMMSA(name, &cmn.MemsysConf{MinSlabSize: 64, MaxSlabSize: 64 * cos.KiB})
	cos.AssertNoErr(err)
	return r
}

func (r *MMSA) String() string {
	return "mmsa[" + r.name + ", slabs=" + strconv.Itoa(len(r.rings)) +
		" (" + cos.ToSizeIEC(r.minSize, 0) + " - " + cos.ToSizeIEC(r.maxSize, 0) + ")" +
		", outstanding=" + cos.ToSizeIEC(r.outstanding.Load(), 1) + "]"
}

func (r *MMSA) MaxSlabSize() int64 { return r.maxSize }

// total bytes (by capacity) allocated and not yet freed
func (r *MMSA) Outstanding() int64 { return r.outstanding.Load() }

// GetSlab returns the slab of exactly bufSize.
func (r *MMSA) GetSlab(bufSize int64) (*Slab, error) {
	for _, s := range r.rings {
		if s.bufSize == bufSize {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%s: no slab of size %d", r, bufSize)
}

// SelectSlab returns the smallest slab that fits size, or nil when size exceeds the max.
func (r *MMSA) SelectSlab(size int64) *Slab {
	for _, s := range r.rings {
		if size <= s.bufSize {
			return s
		}
	}
	return nil
}

// AllocSize returns a buffer of at least size bytes (len == size) and the slab it came from
// (nil for heap allocations).
func (r *MMSA) AllocSize(size int64) (buf []byte, slab *Slab) {
	if slab = r.SelectSlab(size); slab != nil {
		buf = slab.Alloc()
		return buf[:size], slab
	}
	r.heapAllocs.Inc()
	r.allocs.Inc()
	r.outstanding.Add(size)
	return make([]byte, size), nil
}

// Release drops every cached (free) buffer.
func (r *MMSA) Release() {
	for _, s := range r.rings {
		s.cleanup()
	}
}

func (r *MMSA) GetStats() *Stats {
	stats := &Stats{
		Hits:        make([]int64, len(r.rings)),
		Outstanding: r.outstanding.Load(),
		Allocs:      r.allocs.Load(),
		HeapAllocs:  r.heapAllocs.Load(),
	}
	for i, s := range r.rings {
		stats.Hits[i] = s.hits.Load()
	}
	return stats
}

func (r *MMSA) free(buf []byte) {
	size := int64(cap(buf))
	if size > r.maxSize {
		r.outstanding.Sub(size)
		return
	}
	slab, err := r.GetSlab(size)
	cos.AssertNoErr(err)
	slab.Free(buf)
}
