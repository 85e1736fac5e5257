// Package meta: cluster-level metadata shared by the exchange layer - nodes, the
// cluster map, and the typed per-message metadata
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package meta

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/cos"
)

// Key enumerates the closed metadata vocabulary. Wire names are stable across the cluster:
// a new field gets a new key and never reuses an existing one.
type Key int

const (
	KeyKernelID Key = iota
	KeyQueryID
	KeyAddToSpecificCache
	KeyCacheID
	KeySenderWorkerID
	KeyWorkerIDs
	KeyTotalTableRows
	KeyMessageID
	KeyPartitionCount

	numKeys
)

var keyNames = [numKeys]string{
	KeyKernelID:           "kernel_id",
	KeyQueryID:            "query_id",
	KeyAddToSpecificCache: "add_to_specific_cache",
	KeyCacheID:            "cache_id",
	KeySenderWorkerID:     "sender_worker_id",
	KeyWorkerIDs:          "worker_ids",
	KeyTotalTableRows:     "total_table_rows",
	KeyMessageID:          "message_id",
	KeyPartitionCount:     "partition_count",
}

const (
	wireTrue  = "true"
	wireFalse = "false"
)

func (k Key) String() string {
	if k < 0 || k >= numKeys {
		return "key(" + strconv.Itoa(int(k)) + ")"
	}
	return keyNames[k]
}

func (k Key) flag() cos.BitFlags { return 1 << uint(k) }

func ParseKey(name string) (Key, bool) {
	for k, n := range keyNames {
		if n == name {
			return Key(k), true
		}
	}
	return numKeys, false
}

type (
	// KV is one wire-level metadata entry
	KV struct {
		Key   string `json:"k"`
		Value string `json:"v"`
	}

	// Metadata is the typed routing and planning record attached to every message.
	// Each closed key has its own field plus a presence bit; keys outside the closed
	// space are kept verbatim in `extra`.
	Metadata struct {
		extra          map[string]string
		queryID        string
		cacheID        string
		senderID       string
		messageID      string
		workerIDs      NodeIDs
		totalRows      int64
		partitionCount int64
		kernelID       int32
		specificCache  bool
		present        cos.BitFlags
	}
)

func NewMetadata() *Metadata { return &Metadata{} }

func (md *Metadata) Has(k Key) bool { return md.present.IsSet(k.flag()) }
func (md *Metadata) set(k Key)      { md.present = md.present.Set(k.flag()) }

//
// setters (chainable)
//

func (md *Metadata) SetKernelID(id int32) *Metadata {
	md.kernelID = id
	md.set(KeyKernelID)
	return md
}

func (md *Metadata) SetQueryID(id string) *Metadata {
	md.queryID = id
	md.set(KeyQueryID)
	return md
}

func (md *Metadata) SetSpecificCache(v bool) *Metadata {
	md.specificCache = v
	md.set(KeyAddToSpecificCache)
	return md
}

func (md *Metadata) SetCacheID(id string) *Metadata {
	md.cacheID = id
	md.set(KeyCacheID)
	return md
}

func (md *Metadata) SetSenderID(id string) *Metadata {
	md.senderID = id
	md.set(KeySenderWorkerID)
	return md
}

func (md *Metadata) SetWorkerIDs(ids NodeIDs) *Metadata {
	md.workerIDs = append(NodeIDs(nil), ids...)
	md.set(KeyWorkerIDs)
	return md
}

func (md *Metadata) SetTotalRows(n int64) *Metadata {
	md.totalRows = n
	md.set(KeyTotalTableRows)
	return md
}

func (md *Metadata) SetMessageID(id string) *Metadata {
	md.messageID = id
	md.set(KeyMessageID)
	return md
}

func (md *Metadata) SetPartitionCount(n int64) *Metadata {
	md.partitionCount = n
	md.set(KeyPartitionCount)
	return md
}

// SetExtra stores a key outside the closed vocabulary; closed keys must use their typed setters.
func (md *Metadata) SetExtra(key, value string) error {
	if _, ok := ParseKey(key); ok {
		return fmt.Errorf("metadata key %q is reserved", key)
	}
	if md.extra == nil {
		md.extra = make(map[string]string, 2)
	}
	md.extra[key] = value
	return nil
}

//
// getters
//

func (md *Metadata) KernelID() int32    { return md.kernelID }
func (md *Metadata) QueryID() string    { return md.queryID }
func (md *Metadata) CacheID() string    { return md.cacheID }
func (md *Metadata) SenderID() string   { return md.senderID }
func (md *Metadata) WorkerIDs() NodeIDs { return md.workerIDs }
func (md *Metadata) MessageID() string  { return md.messageID }

// SpecificCache is true only when the flag is present and set.
func (md *Metadata) SpecificCache() bool { return md.Has(KeyAddToSpecificCache) && md.specificCache }

func (md *Metadata) TotalRows() (int64, bool) { return md.totalRows, md.Has(KeyTotalTableRows) }

func (md *Metadata) PartitionCount() (int64, error) {
	if !md.Has(KeyPartitionCount) {
		return 0, cmn.NewErrMissingMetadata(KeyPartitionCount.String(), md.messageID)
	}
	return md.partitionCount, nil
}

func (md *Metadata) Extra(key string) (v string, ok bool) {
	v, ok = md.extra[key]
	return
}

// Merge copies every field present in other (other wins).
func (md *Metadata) Merge(other *Metadata) *Metadata {
	if other == nil {
		return md
	}
	for k := Key(0); k < numKeys; k++ {
		if !other.Has(k) {
			continue
		}
		switch k {
		case KeyKernelID:
			md.kernelID = other.kernelID
		case KeyQueryID:
			md.queryID = other.queryID
		case KeyAddToSpecificCache:
			md.specificCache = other.specificCache
		case KeyCacheID:
			md.cacheID = other.cacheID
		case KeySenderWorkerID:
			md.senderID = other.senderID
		case KeyWorkerIDs:
			md.workerIDs = append(NodeIDs(nil), other.workerIDs...)
		case KeyTotalTableRows:
			md.totalRows = other.totalRows
		case KeyMessageID:
			md.messageID = other.messageID
		case KeyPartitionCount:
			md.partitionCount = other.partitionCount
		}
		md.set(k)
	}
	for key, v := range other.extra {
		if md.extra == nil {
			md.extra = make(map[string]string, len(other.extra))
		}
		md.extra[key] = v
	}
	return md
}

func (md *Metadata) Clone() *Metadata { return NewMetadata().Merge(md) }

func (md *Metadata) Equal(other *Metadata) bool {
	a, b := md.Wire(), other.Wire()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

//
// wire form
//

func (md *Metadata) value(k Key) string {
	switch k {
	case KeyKernelID:
		return strconv.FormatInt(int64(md.kernelID), 10)
	case KeyQueryID:
		return md.queryID
	case KeyAddToSpecificCache:
		if md.specificCache {
			return wireTrue
		}
		return wireFalse
	case KeyCacheID:
		return md.cacheID
	case KeySenderWorkerID:
		return md.senderID
	case KeyWorkerIDs:
		return md.workerIDs.Wire()
	case KeyTotalTableRows:
		return strconv.FormatInt(md.totalRows, 10)
	case KeyMessageID:
		return md.messageID
	case KeyPartitionCount:
		return strconv.FormatInt(md.partitionCount, 10)
	default:
		return ""
	}
}

// Wire returns closed keys in enum order followed by extras sorted by key.
func (md *Metadata) Wire() []KV {
	kvs := make([]KV, 0, int(numKeys)+len(md.extra))
	for k := Key(0); k < numKeys; k++ {
		if md.Has(k) {
			kvs = append(kvs, KV{Key: k.String(), Value: md.value(k)})
		}
	}
	if len(md.extra) == 0 {
		return kvs
	}
	keys := make([]string, 0, len(md.extra))
	for key := range md.extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		kvs = append(kvs, KV{Key: key, Value: md.extra[key]})
	}
	return kvs
}

func (md *Metadata) Map() map[string]string {
	m := make(map[string]string, int(numKeys)+len(md.extra))
	for _, kv := range md.Wire() {
		m[kv.Key] = kv.Value
	}
	return m
}

func (md *Metadata) String() string { return cos.MustMarshalToString(md.Map()) }

func FromWire(kvs []KV) (*Metadata, error) {
	md := NewMetadata()
	for _, kv := range kvs {
		if err := md.setWire(kv.Key, kv.Value); err != nil {
			return nil, err
		}
	}
	return md, nil
}

func FromMap(m map[string]string) (*Metadata, error) {
	md := NewMetadata()
	for key, v := range m {
		if err := md.setWire(key, v); err != nil {
			return nil, err
		}
	}
	return md, nil
}

func (md *Metadata) setWire(key, v string) error {
	k, ok := ParseKey(key)
	if !ok {
		return md.SetExtra(key, v)
	}
	switch k {
	case KeyKernelID:
		id, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return cmn.NewErrInvalidMetadata(key, v, err)
		}
		md.SetKernelID(int32(id))
	case KeyQueryID:
		md.SetQueryID(v)
	case KeyAddToSpecificCache:
		switch v {
		case wireTrue:
			md.SetSpecificCache(true)
		case wireFalse:
			md.SetSpecificCache(false)
		default:
			return cmn.NewErrInvalidMetadata(key, v, nil)
		}
	case KeyCacheID:
		md.SetCacheID(v)
	case KeySenderWorkerID:
		md.SetSenderID(v)
	case KeyWorkerIDs:
		ids, err := ParseNodeIDs(v)
		if err != nil {
			return cmn.NewErrInvalidMetadata(key, v, err)
		}
		md.SetWorkerIDs(ids)
	case KeyTotalTableRows, KeyPartitionCount:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cmn.NewErrInvalidMetadata(key, v, err)
		}
		if k == KeyTotalTableRows {
			md.SetTotalRows(n)
		} else {
			md.SetPartitionCount(n)
		}
	case KeyMessageID:
		md.SetMessageID(v)
	}
	return nil
}
