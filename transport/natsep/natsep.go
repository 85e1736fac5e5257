// Package natsep is a transport endpoint over NATS: every node subscribes to its
// own subject and peers publish frames to it.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package natsep

import (
	"bytes"
	"fmt"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/nlog"
	"github.com/shxinding/blazingsql/core/meta"
	"github.com/shxinding/blazingsql/transport"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

const subjPrefix = "xchg."

type Endpoint struct {
	nc    *nats.Conn
	sub   *nats.Subscription
	self  *meta.Snode
	sink  transport.Sink
	sb    *transport.StreamBundle
	owned bool // connection dialed by Connect
}

// interface guard
var _ transport.Endpoint = (*Endpoint)(nil)

func Subject(id string) string { return subjPrefix + id }

// Connect dials url and attaches self.
func Connect(url string, self *meta.Snode, sink transport.Sink) (*Endpoint, error) {
	nc, err := nats.Connect(url, nats.Name("xchg-"+self.ID()))
	if err != nil {
		return nil, errors.Wrapf(err, "nats connect %s", url)
	}
	e, err := New(nc, self, sink)
	if err != nil {
		nc.Close()
		return nil, err
	}
	e.owned = true
	return e, nil
}

// New attaches self to an existing connection.
func New(nc *nats.Conn, self *meta.Snode, sink transport.Sink) (*Endpoint, error) {
	e := &Endpoint{nc: nc, self: self, sink: sink}
	sub, err := nc.Subscribe(Subject(self.ID()), e.recv)
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe %s", Subject(self.ID()))
	}
	// the subscription must be in place before peers publish
	if err := nc.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	e.sub = sub
	e.sb = transport.NewStreamBundle("nats:"+self.ID(), cmn.Rom.Burst(), e.xmit)
	return e, nil
}

func (e *Endpoint) Send(dst *meta.Snode, hdr *transport.FrameHdr, payload []byte, cb transport.SentCB) error {
	return e.sb.Send(dst, hdr, payload, cb)
}

func (e *Endpoint) xmit(dst *meta.Snode, hdr *transport.FrameHdr, payload []byte) error {
	if maxp := e.nc.MaxPayload(); int64(len(payload)) > maxp {
		return fmt.Errorf("%s: frame size %s exceeds nats max payload %s", hdr.Tag,
			cos.ToSizeIEC(int64(len(payload)), 0), cos.ToSizeIEC(maxp, 0))
	}
	msg := nats.NewMsg(Subject(dst.ID()))
	hdr.Export(msg.Header.Set)
	msg.Data = payload
	return e.nc.PublishMsg(msg)
}

// subscription callbacks run one at a time, in publish order
func (e *Endpoint) recv(m *nats.Msg) {
	hdr, err := transport.ImportFrameHdr(m.Header.Get, int64(len(m.Data)))
	if err != nil {
		nlog.Errorln(e.self.String(), "nats:", err)
		return
	}
	if err := e.sink.RecvFrame(hdr, bytes.NewReader(m.Data)); err != nil && cmn.Rom.FastV(4, cos.SmoduleTransport) {
		nlog.Warningln(e.self.String(), "nats: dropped", hdr.String())
	}
}

// Close drains the send queues, flushes, and unsubscribes.
func (e *Endpoint) Close() error {
	err := e.sb.Close()
	if errF := e.nc.Flush(); err == nil {
		err = errF
	}
	if errU := e.sub.Unsubscribe(); err == nil {
		err = errU
	}
	if e.owned {
		e.nc.Close()
	}
	return err
}
