// Package atomic provides simple wrappers around numerics to enforce atomic access.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package atomic

import (
	"sync/atomic"
)

// detects copies of atomics (go vet copylocks)
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

//
// Int64
//

type Int64 struct {
	_ noCopy
	v int64
}

func NewInt64(i int64) *Int64 { return &Int64{v: i} }

func (i *Int64) Load() int64           { return atomic.LoadInt64(&i.v) }
func (i *Int64) Store(n int64)         { atomic.StoreInt64(&i.v, n) }
func (i *Int64) Add(n int64) int64     { return atomic.AddInt64(&i.v, n) }
func (i *Int64) Sub(n int64) int64     { return atomic.AddInt64(&i.v, -n) }
func (i *Int64) Inc() int64            { return atomic.AddInt64(&i.v, 1) }
func (i *Int64) Dec() int64            { return atomic.AddInt64(&i.v, -1) }
func (i *Int64) Swap(n int64) int64    { return atomic.SwapInt64(&i.v, n) }
func (i *Int64) CAS(old, n int64) bool { return atomic.CompareAndSwapInt64(&i.v, old, n) }

//
// Int32
//

type Int32 struct {
	_ noCopy
	v int32
}

func NewInt32(i int32) *Int32 { return &Int32{v: i} }

func (i *Int32) Load() int32           { return atomic.LoadInt32(&i.v) }
func (i *Int32) Store(n int32)         { atomic.StoreInt32(&i.v, n) }
func (i *Int32) Add(n int32) int32     { return atomic.AddInt32(&i.v, n) }
func (i *Int32) Inc() int32            { return atomic.AddInt32(&i.v, 1) }
func (i *Int32) Dec() int32            { return atomic.AddInt32(&i.v, -1) }
func (i *Int32) CAS(old, n int32) bool { return atomic.CompareAndSwapInt32(&i.v, old, n) }

//
// Uint32
//

type Uint32 struct {
	_ noCopy
	v uint32
}

func (u *Uint32) Load() uint32        { return atomic.LoadUint32(&u.v) }
func (u *Uint32) Store(n uint32)      { atomic.StoreUint32(&u.v, n) }
func (u *Uint32) Inc() uint32         { return atomic.AddUint32(&u.v, 1) }
func (u *Uint32) Add(n uint32) uint32 { return atomic.AddUint32(&u.v, n) }

//
// Bool
//

type Bool struct {
	_ noCopy
	v uint32
}

func NewBool(b bool) *Bool {
	a := &Bool{}
	a.Store(b)
	return a
}

func (b *Bool) Load() bool { return atomic.LoadUint32(&b.v) == 1 }

func (b *Bool) Store(n bool) { atomic.StoreUint32(&b.v, b2i(n)) }

func (b *Bool) CAS(old, n bool) bool {
	return atomic.CompareAndSwapUint32(&b.v, b2i(old), b2i(n))
}

// Toggle flips the value and returns the previous one
func (b *Bool) Toggle() bool {
	for {
		old := b.Load()
		if b.CAS(old, !old) {
			return old
		}
	}
}

func b2i(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
