/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"fmt"
	"io"
	"sync"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/nlog"
	"github.com/shxinding/blazingsql/core/meta"
	"github.com/shxinding/blazingsql/stats"

	"github.com/apache/arrow/go/v8/arrow/memory"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

const maxHeaderSize = 64 * cos.MiB

type (
	rxKey struct {
		msgID  int32
		origin uint16
	}

	// Listener dispatches inbound frames to per-message receivers. Frames of one
	// message are expected in order (begin-transmission first) and one at a time.
	// Close may race with frames in flight.
	Listener struct {
		smap    *meta.Smap
		router  Router
		mm      memory.Allocator
		tracker *stats.Tracker
		rxs     map[rxKey]*Receiver
		mu      sync.Mutex
	}
)

// interface guard
var _ Sink = (*Listener)(nil)

func NewListener(smap *meta.Smap, router Router, mm memory.Allocator, tracker *stats.Tracker) *Listener {
	return &Listener{
		smap:    smap,
		router:  router,
		mm:      mm,
		tracker: tracker,
		rxs:     make(map[rxKey]*Receiver, 64),
	}
}

// Pending returns the number of partially received messages.
func (l *Listener) Pending() int {
	l.mu.Lock()
	n := len(l.rxs)
	l.mu.Unlock()
	return n
}

func (l *Listener) RecvFrame(hdr *FrameHdr, r io.Reader) (err error) {
	l.tracker.FrameRecv(hdr.Size)
	if hdr.Tag.IsBegin() {
		err = l.begin(hdr, r)
	} else {
		err = l.recvBuffer(hdr, r)
	}
	if err != nil {
		l.tracker.Err(stats.ErrRecv)
		nlog.Errorln("recv", hdr.String(), "from", hdr.SenderID, "err:", err)
	}
	return err
}

func (l *Listener) begin(hdr *FrameHdr, r io.Reader) error {
	if hdr.Size > maxHeaderSize {
		return cmn.NewErrInvalidHeader("header frame too large (%d)", hdr.Size)
	}
	b := make([]byte, hdr.Size)
	if _, err := io.ReadFull(r, b); err != nil {
		return errors.Wrap(err, "read header frame")
	}
	h, err := DecodeHeader(b)
	if err != nil {
		return err
	}
	md, err := meta.FromWire(h.MD)
	if err != nil {
		return err
	}
	dst, err := l.router.Route(md)
	if err != nil {
		return errors.Wrapf(err, "route %q", md.MessageID())
	}
	rx, err := newReceiver(l.smap, h, md, dst, l.mm)
	if err != nil {
		return err
	}
	rx.origin = int(hdr.Tag.WorkerOrigin)
	rx.setTracker(l.tracker)

	if rx.NumBuffers() == 0 {
		return rx.Finish()
	}
	key := rxKey{msgID: hdr.Tag.MessageID, origin: hdr.Tag.WorkerOrigin}
	l.mu.Lock()
	if _, ok := l.rxs[key]; ok {
		l.mu.Unlock()
		rx.abort(errDuplicate)
		return fmt.Errorf("%s: duplicate begin-transmission", hdr.Tag)
	}
	l.rxs[key] = rx
	l.mu.Unlock()
	return nil
}

var errDuplicate = errors.New("duplicate")

func (l *Listener) recvBuffer(hdr *FrameHdr, r io.Reader) error {
	key := rxKey{msgID: hdr.Tag.MessageID, origin: hdr.Tag.WorkerOrigin}
	l.mu.Lock()
	rx := l.rxs[key]
	l.mu.Unlock()
	if rx == nil {
		return &cmn.ErrUnknownMessage{Tag: hdr.Tag.Uint64()}
	}
	if err := l.fill(rx, hdr, r); err != nil {
		l.drop(key)
		rx.abort(err)
		return err
	}
	err := rx.ConfirmTransmission()
	if rx.IsFinished() {
		l.drop(key)
	}
	return err
}

func (*Listener) fill(rx *Receiver, hdr *FrameHdr, r io.Reader) error {
	i := hdr.Tag.BufferIndex()
	size, err := rx.BufferSize(i)
	if err != nil {
		return err
	}
	if hdr.Compressed() {
		if hdr.RawSize != size {
			return fmt.Errorf("%s: raw size %d, expected %d", hdr.Tag, hdr.RawSize, size)
		}
		r = lz4.NewReader(r)
	} else if hdr.Size != size {
		return fmt.Errorf("%s: size %d, expected %d", hdr.Tag, hdr.Size, size)
	}
	if err := rx.AllocateBuffer(i); err != nil {
		return err
	}
	// a handed-out slot keeps the buffers alive until ReadFrom returns, even if
	// the message is aborted meanwhile
	slot, err := rx.GetBuffer(i)
	if err != nil {
		return err
	}
	if _, err := slot.ReadFrom(r); err != nil {
		return errors.Wrapf(err, "%s: fill buffer %d", hdr.Tag, i)
	}
	return nil
}

func (l *Listener) drop(key rxKey) {
	l.mu.Lock()
	delete(l.rxs, key)
	l.mu.Unlock()
}

// Close aborts every incomplete message.
func (l *Listener) Close() {
	l.mu.Lock()
	rxs := l.rxs
	l.rxs = make(map[rxKey]*Receiver)
	l.mu.Unlock()
	for _, rx := range rxs {
		rx.abort(errors.New("listener closed"))
	}
}
