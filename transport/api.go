/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"io"
	"strconv"

	"github.com/shxinding/blazingsql/cache"
	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/core/meta"

	"github.com/pkg/errors"
)

// frame flags
const (
	FlagCompressed cos.BitFlags = 1 << iota // lz4 frame; RawSize is the decompressed size
)

// frame header fields as carried by HTTP and NATS headers
const (
	HdrTag     = "X-Xchg-Tag"
	HdrSender  = "X-Xchg-Sender"
	HdrFlags   = "X-Xchg-Flags"
	HdrRawSize = "X-Xchg-Raw-Size"
)

type (
	FrameHdr struct {
		SenderID string
		Size     int64 // wire bytes
		RawSize  int64
		Tag      Tag
		Flags    cos.BitFlags
	}

	// Sink consumes inbound frames. The reader yields exactly hdr.Size bytes and is
	// valid only for the duration of the call.
	Sink interface {
		RecvFrame(hdr *FrameHdr, r io.Reader) error
	}
	RecvFunc func(hdr *FrameHdr, r io.Reader) error

	// SentCB is invoked exactly once per frame accepted by Endpoint.Send.
	SentCB func(hdr *FrameHdr, err error)

	// Endpoint delivers frames to other nodes, in order per destination.
	// When Send returns an error the callback is not invoked.
	// The payload must stay intact until the callback.
	Endpoint interface {
		Send(dst *meta.Snode, hdr *FrameHdr, payload []byte, cb SentCB) error
		Close() error
	}

	// Router selects the cache an inbound message lands in.
	Router interface {
		Route(md *meta.Metadata) (cache.Machine, error)
	}
	RouterFunc func(md *meta.Metadata) (cache.Machine, error)

	// CacheRouter sends specific-cache messages to the named cache (created on demand)
	// and everything else to the node's input message cache.
	CacheRouter struct {
		Caches *cache.Registry
		Input  cache.Machine
	}
)

var errNoRoute = errors.New("no route")

// interface guard
var (
	_ Sink   = RecvFunc(nil)
	_ Router = RouterFunc(nil)
	_ Router = (*CacheRouter)(nil)
)

func (f RecvFunc) RecvFrame(hdr *FrameHdr, r io.Reader) error { return f(hdr, r) }

func (f RouterFunc) Route(md *meta.Metadata) (cache.Machine, error) { return f(md) }

func (r *CacheRouter) Route(md *meta.Metadata) (cache.Machine, error) {
	if md.SpecificCache() && md.CacheID() != "" && r.Caches != nil {
		return r.Caches.GetOrCreate(md.CacheID()), nil
	}
	if r.Input == nil {
		return nil, errNoRoute
	}
	return r.Input, nil
}

//////////////
// FrameHdr //
//////////////

func (hdr *FrameHdr) Compressed() bool { return hdr.Flags.IsSet(FlagCompressed) }

// Export writes the header fields (all but Size, which the carrier provides).
func (hdr *FrameHdr) Export(set func(key, value string)) {
	set(HdrTag, strconv.FormatUint(hdr.Tag.Uint64(), 10))
	set(HdrSender, hdr.SenderID)
	if hdr.Flags != 0 {
		set(HdrFlags, strconv.FormatUint(uint64(hdr.Flags), 10))
	}
	set(HdrRawSize, strconv.FormatInt(hdr.RawSize, 10))
}

func ImportFrameHdr(get func(key string) string, size int64) (*FrameHdr, error) {
	hdr := &FrameHdr{SenderID: get(HdrSender), Size: size, RawSize: size}
	v, err := strconv.ParseUint(get(HdrTag), 10, 64)
	if err != nil {
		return nil, cmn.NewErrInvalidHeader("frame tag: %v", err)
	}
	hdr.Tag = ParseTag(v)
	if s := get(HdrFlags); s != "" {
		flags, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, cmn.NewErrInvalidHeader("frame flags: %v", err)
		}
		hdr.Flags = cos.BitFlags(flags)
	}
	if s := get(HdrRawSize); s != "" {
		if hdr.RawSize, err = strconv.ParseInt(s, 10, 64); err != nil || hdr.RawSize < 0 {
			return nil, cmn.NewErrInvalidHeader("frame raw size %q", s)
		}
	}
	return hdr, nil
}

func (hdr *FrameHdr) String() string {
	return hdr.Tag.String() + "(" + hdr.SenderID + ", " + strconv.FormatInt(hdr.Size, 10) + ")"
}
