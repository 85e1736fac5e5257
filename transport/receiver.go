/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/shxinding/blazingsql/cache"
	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/atomic"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/mono"
	"github.com/shxinding/blazingsql/cmn/nlog"
	"github.com/shxinding/blazingsql/core/meta"
	"github.com/shxinding/blazingsql/core/table"
	"github.com/shxinding/blazingsql/stats"
	"github.com/shxinding/blazingsql/tracing"

	"github.com/apache/arrow/go/v8/arrow/memory"
	"github.com/pkg/errors"
)

var (
	errSlotSealed    = errors.New("slot already written")
	errSlotOverflow  = errors.New("write exceeds slot size")
	errAlreadyFinish = errors.New("already finished")
)

type (
	// Receiver reassembles one inbound logical message: it owns the receive buffers
	// until Finish decodes them into a table and routes the table into dst.
	// Single use.
	Receiver struct {
		smap      *meta.Smap
		hdr       *Header
		md        *meta.Metadata
		dst       cache.Machine
		mm        memory.Allocator
		tracker   *stats.Tracker
		bufs      []*memory.Buffer
		handed    []bool
		started   int64
		origin    int
		writers   int  // slots handed out and not yet sealed
		deferred  bool // release requested while writers > 0
		mu        sync.Mutex
		completed atomic.Int32
		finished  atomic.Bool
	}

	// Slot is a bounded writable view of one receive buffer, good for exactly one
	// full write. The receiver keeps ownership of the memory: the writer must not
	// retain the slot past that write.
	Slot struct {
		rx     *Receiver
		b      []byte
		off    int
		sealed bool
	}
)

// NewReceiver parses a begin-transmission header. The message lands in dst.
func NewReceiver(smap *meta.Smap, hdr []byte, dst cache.Machine, mm memory.Allocator) (*Receiver, error) {
	h, err := DecodeHeader(hdr)
	if err != nil {
		return nil, err
	}
	md, err := meta.FromWire(h.MD)
	if err != nil {
		return nil, err
	}
	return newReceiver(smap, h, md, dst, mm)
}

func newReceiver(smap *meta.Smap, h *Header, md *meta.Metadata, dst cache.Machine, mm memory.Allocator) (*Receiver, error) {
	if !md.Has(meta.KeyMessageID) {
		return nil, cmn.NewErrMissingMetadata(meta.KeyMessageID.String(), "")
	}
	if mm == nil {
		mm = memory.DefaultAllocator
	}
	r := &Receiver{
		smap:    smap,
		hdr:     h,
		md:      md,
		dst:     dst,
		mm:      mm,
		bufs:    make([]*memory.Buffer, len(h.Sizes)),
		handed:  make([]bool, len(h.Sizes)),
		started: mono.NanoTime(),
		origin:  -1,
	}
	if cmn.Rom.FastV(4, cos.SmoduleTransport) {
		nlog.Infoln("new", r.String())
	}
	return r, nil
}

func (r *Receiver) setTracker(t *stats.Tracker) {
	r.tracker = t
	t.RxBegin()
}

func (r *Receiver) String() string {
	return fmt.Sprintf("rx[%s %d/%d]", r.md.MessageID(), r.completed.Load(), len(r.bufs))
}

func (r *Receiver) Metadata() *meta.Metadata { return r.md }
func (r *Receiver) NumBuffers() int          { return len(r.bufs) }

func (r *Receiver) checkIndex(i int) error {
	if i < 0 || i >= len(r.bufs) {
		return cmn.NewErrBufferIndex(i, len(r.bufs))
	}
	return nil
}

func (r *Receiver) BufferSize(i int) (int64, error) {
	if err := r.checkIndex(i); err != nil {
		return 0, err
	}
	return r.hdr.Sizes[i], nil
}

// AllocateBuffer reserves storage for buffer i sized per the header.
func (r *Receiver) AllocateBuffer(i int) error {
	if err := r.checkIndex(i); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished.Load() {
		return errors.Wrapf(errAlreadyFinish, "%s: allocate buffer %d", r, i)
	}
	if r.bufs[i] != nil {
		return fmt.Errorf("%s: buffer %d already allocated", r, i)
	}
	buf := memory.NewResizableBuffer(r.mm)
	buf.Resize(int(r.hdr.Sizes[i]))
	r.bufs[i] = buf
	return nil
}

// GetBuffer hands out the (one and only) writable view of buffer i. The receiver
// holds on to its buffers until every handed-out slot has been filled.
func (r *Receiver) GetBuffer(i int) (*Slot, error) {
	if err := r.checkIndex(i); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished.Load() {
		return nil, errors.Wrapf(errAlreadyFinish, "%s: get buffer %d", r, i)
	}
	if r.bufs[i] == nil {
		return nil, fmt.Errorf("%s: buffer %d not allocated", r, i)
	}
	if r.handed[i] {
		return nil, fmt.Errorf("%s: buffer %d already handed out", r, i)
	}
	r.handed[i] = true
	r.writers++
	return &Slot{rx: r, b: r.bufs[i].Bytes()}, nil
}

// ConfirmTransmission counts one completed buffer; the call that completes the
// message finishes it.
func (r *Receiver) ConfirmTransmission() error {
	total := int32(len(r.bufs))
	n := r.completed.Inc()
	cos.Assertf(n <= total, "%s: confirmation %d exceeds the number of buffers", r, n)
	if n == total {
		return r.Finish()
	}
	return nil
}

func (r *Receiver) IsFinished() bool { return r.completed.Load() == int32(len(r.bufs)) }

// Finish decodes the buffers and pushes the table into the destination cache:
// keyed by message id, either as a bare table (specific cache) or with its metadata.
func (r *Receiver) Finish() (err error) {
	if !r.finished.CAS(false, true) {
		return errors.Wrap(errAlreadyFinish, r.String())
	}
	var (
		specific = r.md.SpecificCache()
		msgID    = r.md.MessageID()
		end      tracing.EndFunc
	)
	_, end = tracing.StartSpan(context.Background(), "xchg.finish",
		tracing.A("message_id", msgID), tracing.A("cache", r.dst.Name()))
	defer func() {
		end(err)
		r.tracker.RxEnd(specific, mono.Since(r.started), err)
	}()

	r.mu.Lock()
	bufs := append([]*memory.Buffer(nil), r.bufs...)
	r.mu.Unlock()
	tbl, err := table.Decode(r.hdr.Transports, bufs)
	r.release()
	if err != nil {
		return errors.Wrapf(err, "%s: decode", r)
	}
	if specific {
		r.dst.AddToCache(tbl, msgID, true)
	} else {
		r.dst.AddCacheData(cache.NewData(tbl, r.md), msgID, true)
	}
	if cmn.Rom.FastV(4, cos.SmoduleTransport) {
		nlog.Infof("%s: finished => %s (specific %t, %s)", r, r.dst.Name(), specific, mono.Since(r.started))
	}
	return nil
}

// abort drops an incomplete message
func (r *Receiver) abort(err error) {
	if !r.finished.CAS(false, true) {
		return
	}
	r.release()
	r.tracker.RxEnd(false, 0, err)
	nlog.Errorln(r.String(), "aborted:", err)
}

// frees the buffers, or defers that to the last in-flight slot
func (r *Receiver) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writers > 0 {
		r.deferred = true
		return
	}
	r.free()
}

func (r *Receiver) slotDone() {
	r.mu.Lock()
	r.writers--
	if r.writers == 0 && r.deferred {
		r.deferred = false
		r.free()
	}
	r.mu.Unlock()
}

func (r *Receiver) free() {
	for i, buf := range r.bufs {
		if buf != nil {
			buf.Release()
			r.bufs[i] = nil
		}
	}
}

// SenderNode resolves the origin from metadata, falling back to the transport-level origin.
func (r *Receiver) SenderNode() *meta.Snode {
	if r.smap == nil {
		return nil
	}
	if id := r.md.SenderID(); id != "" {
		if node := r.smap.GetNode(id); node != nil {
			return node
		}
	}
	if r.origin >= 0 && r.origin < r.smap.CountNodes() {
		return r.smap.Nodes[r.origin]
	}
	return nil
}

//////////
// Slot //
//////////

func (s *Slot) Len() int       { return len(s.b) }
func (s *Slot) Sealed() bool   { return s.sealed }
func (s *Slot) Remaining() int { return len(s.b) - s.off }

// Write may be called repeatedly until the slot is full.
func (s *Slot) Write(p []byte) (int, error) {
	if s.sealed {
		return 0, errSlotSealed
	}
	n := copy(s.b[s.off:], p)
	s.off += n
	if s.off == len(s.b) {
		s.seal()
	}
	if n < len(p) {
		return n, errSlotOverflow
	}
	return n, nil
}

// ReadFrom fills the slot from r in one go. The slot is spent either way.
func (s *Slot) ReadFrom(r io.Reader) (int64, error) {
	if s.sealed {
		return 0, errSlotSealed
	}
	n, err := io.ReadFull(r, s.b[s.off:])
	s.off += n
	s.seal()
	return int64(n), err
}

func (s *Slot) seal() {
	s.sealed = true
	s.b = nil
	if s.rx != nil {
		s.rx.slotDone()
	}
}
