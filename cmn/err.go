// Package cmn provides common constants, types, and utilities for the exchange
// packages and the simulator.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"errors"
	"fmt"
	"strconv"
)

type (
	ErrBufferIndex struct {
		Index int
		Count int
	}
	ErrInvalidHeader struct {
		what string
	}
	ErrMissingMetadata struct {
		Key   string
		MsgID string
	}
	ErrInvalidMetadata struct {
		Key   string
		Value string
		err   error
	}
	ErrUnknownNode struct {
		ID string
	}
	ErrUnknownMessage struct {
		Tag uint64
	}
)

// use of a table handle after ownership transfer
var ErrTableMoved = errors.New("table has been moved")

func NewErrBufferIndex(index, count int) *ErrBufferIndex {
	return &ErrBufferIndex{Index: index, Count: count}
}

func (e *ErrBufferIndex) Error() string {
	return fmt.Sprintf("buffer index %d out of range [0, %d)", e.Index, e.Count)
}

func IsErrBufferIndex(err error) bool {
	var e *ErrBufferIndex
	return errors.As(err, &e)
}

func NewErrInvalidHeader(format string, a ...any) *ErrInvalidHeader {
	return &ErrInvalidHeader{what: fmt.Sprintf(format, a...)}
}

func (e *ErrInvalidHeader) Error() string { return "invalid message header: " + e.what }

func IsErrInvalidHeader(err error) bool {
	var e *ErrInvalidHeader
	return errors.As(err, &e)
}

func NewErrMissingMetadata(key, msgID string) *ErrMissingMetadata {
	return &ErrMissingMetadata{Key: key, MsgID: msgID}
}

func (e *ErrMissingMetadata) Error() string {
	if e.MsgID == "" {
		return "missing metadata " + strconv.Quote(e.Key)
	}
	return "message " + strconv.Quote(e.MsgID) + ": missing metadata " + strconv.Quote(e.Key)
}

func IsErrMissingMetadata(err error) bool {
	var e *ErrMissingMetadata
	return errors.As(err, &e)
}

func NewErrInvalidMetadata(key, value string, err error) *ErrInvalidMetadata {
	return &ErrInvalidMetadata{Key: key, Value: value, err: err}
}

func (e *ErrInvalidMetadata) Error() string {
	s := fmt.Sprintf("invalid metadata %s=%q", e.Key, e.Value)
	if e.err != nil {
		s += ": " + e.err.Error()
	}
	return s
}

func (e *ErrInvalidMetadata) Unwrap() error { return e.err }

func (e *ErrUnknownNode) Error() string { return "unknown node " + strconv.Quote(e.ID) }

func IsErrUnknownNode(err error) bool {
	var e *ErrUnknownNode
	return errors.As(err, &e)
}

func (e *ErrUnknownMessage) Error() string {
	return fmt.Sprintf("payload frame for unknown message (tag %#x)", e.Tag)
}

func IsErrUnknownMessage(err error) bool {
	var e *ErrUnknownMessage
	return errors.As(err, &e)
}
