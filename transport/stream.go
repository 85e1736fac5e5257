/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"sync"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/atomic"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/mono"
	"github.com/shxinding/blazingsql/cmn/nlog"
	"github.com/shxinding/blazingsql/core/meta"

	"github.com/pkg/errors"
)

var ErrStreamStopped = errors.New("stream stopped")

type (
	// XmitFunc delivers one frame to dst synchronously.
	XmitFunc func(dst *meta.Snode, hdr *FrameHdr, payload []byte) error

	frame struct {
		hdr     *FrameHdr
		cb      SentCB
		payload []byte
	}

	// Stream is a FIFO send queue to a single destination, drained by its own goroutine.
	Stream struct {
		dst    *meta.Snode
		xmit   XmitFunc
		workCh chan *frame
		lid    string
		wg     sync.WaitGroup
		mu     sync.RWMutex
		stats  struct {
			num  atomic.Int64
			size atomic.Int64
			errs atomic.Int64
		}
		stopped bool
	}

	// StreamBundle keeps one stream per destination, created on first use.
	StreamBundle struct {
		xmit    XmitFunc
		streams map[string]*Stream
		lid     string
		burst   int
		mu      sync.Mutex
		closed  bool
	}

	StreamStats struct {
		Num  int64 // frames
		Size int64 // bytes
		Errs int64
	}
)

////////////
// Stream //
////////////

func NewStream(dst *meta.Snode, burst int, xmit XmitFunc, lid string) *Stream {
	if burst <= 0 {
		burst = cmn.Rom.Burst()
	}
	s := &Stream{dst: dst, xmit: xmit, lid: lid + "=>" + dst.ID()}
	s.workCh = make(chan *frame, burst)
	s.wg.Add(1)
	go s.sendLoop()
	return s
}

func (s *Stream) String() string { return s.lid }

// Send enqueues a frame, blocking while the queue is full.
func (s *Stream) Send(hdr *FrameHdr, payload []byte, cb SentCB) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrStreamStopped
	}
	s.workCh <- &frame{hdr: hdr, payload: payload, cb: cb}
	s.mu.RUnlock()
	if cmn.Rom.FastV(5, cos.SmoduleTransport) {
		nlog.Infoln(s.lid, "send", hdr.String())
	}
	return nil
}

func (s *Stream) sendLoop() {
	defer s.wg.Done()
	for f := range s.workCh {
		started := mono.NanoTime()
		err := s.xmit(s.dst, f.hdr, f.payload)
		if err != nil {
			s.stats.errs.Inc()
			nlog.Errorln(s.lid, f.hdr.String(), "err:", err)
		} else {
			s.stats.num.Inc()
			s.stats.size.Add(int64(len(f.payload)))
			if cmn.Rom.FastV(5, cos.SmoduleTransport) {
				nlog.Infoln(s.lid, "sent", f.hdr.String(), mono.Since(started))
			}
		}
		if f.cb != nil {
			f.cb(f.hdr, err)
		}
	}
}

// Stop sends whatever is queued and terminates the stream.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.workCh)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Stream) GetStats() StreamStats {
	return StreamStats{Num: s.stats.num.Load(), Size: s.stats.size.Load(), Errs: s.stats.errs.Load()}
}

//////////////////
// StreamBundle //
//////////////////

func NewStreamBundle(lid string, burst int, xmit XmitFunc) *StreamBundle {
	return &StreamBundle{xmit: xmit, streams: make(map[string]*Stream, 8), lid: lid, burst: burst}
}

func (sb *StreamBundle) Send(dst *meta.Snode, hdr *FrameHdr, payload []byte, cb SentCB) error {
	sb.mu.Lock()
	if sb.closed {
		sb.mu.Unlock()
		return ErrStreamStopped
	}
	s, ok := sb.streams[dst.ID()]
	if !ok {
		s = NewStream(dst, sb.burst, sb.xmit, sb.lid)
		sb.streams[dst.ID()] = s
	}
	sb.mu.Unlock()
	return s.Send(hdr, payload, cb)
}

func (sb *StreamBundle) GetStats() map[string]StreamStats {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	m := make(map[string]StreamStats, len(sb.streams))
	for id, s := range sb.streams {
		m[id] = s.GetStats()
	}
	return m
}

// Close drains and stops all streams.
func (sb *StreamBundle) Close() error {
	sb.mu.Lock()
	if sb.closed {
		sb.mu.Unlock()
		return nil
	}
	sb.closed = true
	streams := sb.streams
	sb.mu.Unlock()
	for _, s := range streams {
		s.Stop()
	}
	return nil
}
