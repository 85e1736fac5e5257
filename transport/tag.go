// Package transport moves logical messages (a begin-transmission header plus
// column buffers) between nodes and reassembles them on the receiving side.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"fmt"

	"github.com/shxinding/blazingsql/cmn/atomic"
	"github.com/shxinding/blazingsql/cmn/cos"
)

// MaxBuffers is the largest number of payload buffers one message can carry (frame 0 is reserved).
const MaxBuffers = 1<<16 - 1

type (
	// Tag addresses one frame of one logical message.
	Tag struct {
		MessageID    int32
		WorkerOrigin uint16
		FrameID      uint16 // 0: begin-transmission; i+1: buffer i
	}

	// Request is the completion record keyed by UID in the sender's in-flight map;
	// Completed is carried for wire compatibility.
	Request struct {
		Completed int32
		UID       int32
	}

	// IDGen hands out process-wide message ids.
	IDGen interface {
		Next() int32
	}
	Counter struct {
		v atomic.Int32
	}
)

// interface guard
var _ IDGen = (*Counter)(nil)

/////////
// Tag //
/////////

func NewTag(msgID int32, origin int) Tag {
	cos.Assertf(origin >= 0 && origin <= 0xffff, "worker origin %d out of range", origin)
	return Tag{MessageID: msgID, WorkerOrigin: uint16(origin)}
}

// Uint64 is the little-endian layout of {int32 message_id; uint16 worker_origin; uint16 frame_id}.
func (t Tag) Uint64() uint64 {
	return uint64(uint32(t.MessageID)) | uint64(t.WorkerOrigin)<<32 | uint64(t.FrameID)<<48
}

func ParseTag(v uint64) Tag {
	return Tag{MessageID: int32(uint32(v)), WorkerOrigin: uint16(v >> 32), FrameID: uint16(v >> 48)}
}

func (t Tag) IsBegin() bool    { return t.FrameID == 0 }
func (t Tag) BufferIndex() int { return int(t.FrameID) - 1 }

// Frame returns the tag of buffer i.
func (t Tag) Frame(i int) Tag {
	cos.Assertf(i >= 0 && i < MaxBuffers, "buffer index %d out of range", i)
	t.FrameID = uint16(i + 1)
	return t
}

func (t Tag) Begin() Tag {
	t.FrameID = 0
	return t
}

func (t Tag) String() string {
	return fmt.Sprintf("tag[%d/%d:%d]", t.WorkerOrigin, t.MessageID, t.FrameID)
}

/////////////
// Counter //
/////////////

// NewCounter returns a generator whose first id is start.
func NewCounter(start int32) *Counter {
	c := &Counter{}
	c.v.Store(start - 1)
	return c
}

func (c *Counter) Next() int32 { return c.v.Inc() }
