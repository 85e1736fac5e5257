// Package memsys provides memory management and slab allocation for column buffers
// received over the wire and for tables cloned out of views
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

import (
	"sync"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/atomic"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/debug"
	"github.com/shxinding/blazingsql/cmn/nlog"
)

type Slab struct {
	m            *MMSA // pointer to the parent/creator
	tag          string
	get, put     [][]byte
	bufSize      int64
	hits         atomic.Int64
	pos          int
	muget, muput sync.Mutex
}

func (s *Slab) Size() int64 { return s.bufSize }
func (s *Slab) Tag() string { return s.tag }

// Alloc returns a zeroed buffer of exactly Size() bytes.
func (s *Slab) Alloc() (buf []byte) {
	s.muget.Lock()
	buf = s._alloc()
	s.muget.Unlock()
	clear(buf)
	s.m.allocs.Inc()
	s.m.outstanding.Add(s.bufSize)
	return
}

func (s *Slab) Free(bufs ...[]byte) {
	s.muput.Lock()
	for _, buf := range bufs {
		debug.Assert(int64(cap(buf)) == s.bufSize, s.tag, cap(buf))
		s.m.outstanding.Sub(s.bufSize)
		if len(s.put) < maxDepth {
			s.put = append(s.put, buf[:s.bufSize])
		}
	}
	s.muput.Unlock()
}

func (s *Slab) _alloc() (buf []byte) {
	if len(s.get) > s.pos { // fast path
		buf = s.get[s.pos]
		s.get[s.pos] = nil
		s.pos++
		s.hits.Inc()
		return
	}
	return s._allocSlow()
}

func (s *Slab) _allocSlow() (buf []byte) {
	s.muput.Lock()
	if cnt := minDepth - len(s.put); cnt > 0 {
		s.grow(cnt)
	}
	s.get, s.put = s.put, s.get[:0]
	s.muput.Unlock()

	s.pos = 0
	buf = s.get[s.pos]
	s.get[s.pos] = nil
	s.pos++
	return
}

// under muput
func (s *Slab) grow(cnt int) {
	if cmn.Rom.FastV(5, cos.SmoduleMemsys) {
		nlog.Infof("%s: grow by %d => %d", s.tag, cnt, len(s.put)+cnt)
	}
	for ; cnt > 0; cnt-- {
		s.put = append(s.put, make([]byte, s.bufSize))
	}
}

func (s *Slab) cleanup() {
	s.muget.Lock()
	s.muput.Lock()
	for i := s.pos; i < len(s.get); i++ {
		s.get[i] = nil
	}
	for i := range s.put {
		s.put[i] = nil
	}
	s.get = s.get[:0]
	s.put = s.put[:0]
	s.pos = 0
	s.muput.Unlock()
	s.muget.Unlock()
}
