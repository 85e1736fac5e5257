// Package cache provides the Cache Machine: a thread-safe, keyed FIFO of tables
// (with optional per-message metadata) that kernels and message receivers push
// into and downstream consumers pull from
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cache

import (
	"context"
	"errors"

	"github.com/shxinding/blazingsql/core/meta"
	"github.com/shxinding/blazingsql/core/table"
)

var ErrClosed = errors.New("cache machine closed")

type (
	// Machine is safe for any number of concurrent pushers and pullers.
	// Pushing transfers ownership of the table to the machine.
	Machine interface {
		Name() string
		// AddToCache pushes a bare table; false when dropped as a duplicate (alwaysAdd == false).
		AddToCache(tbl *table.Table, key string, alwaysAdd bool) bool
		// AddCacheData pushes a table with its metadata.
		AddCacheData(d *Data, key string, alwaysAdd bool) bool
		// PullCacheData blocks until an entry with the key is present or ctx is done.
		PullCacheData(ctx context.Context, key string) (*Data, error)
		// Pull blocks until any entry is present (FIFO) or ctx is done.
		Pull(ctx context.Context) (*Data, error)
		Len() int
		Close()
	}

	// Data is one cache entry. MD is nil for entries pushed with AddToCache.
	Data struct {
		Table *table.Table
		MD    *meta.Metadata
		key   string
	}
)

func NewData(tbl *table.Table, md *meta.Metadata) *Data {
	return &Data{Table: tbl.Move(), MD: md}
}

func (d *Data) Key() string              { return d.key }
func (d *Data) Metadata() *meta.Metadata { return d.MD }

// Release drops the table.
func (d *Data) Release() {
	if d != nil {
		d.Table.Release()
	}
}
