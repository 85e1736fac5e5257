// Package cmn provides common constants, types, and utilities for the exchange
// packages and the simulator.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"sync"
	ratomic "sync/atomic"

	"github.com/shxinding/blazingsql/cmn/nlog"
)

// GCO (Global Config Owner) is responsible for updating the config.
// Global Config is loaded at startup and then can be accessed/updated by other services.

type gco struct {
	c   ratomic.Pointer[Config]
	mtx sync.Mutex // [BeginUpdate -- CommitUpdate]
}

var GCO *gco

func init() {
	GCO = &gco{}
	GCO.Put(DefaultConfig())
}

func (gco *gco) Get() *Config { return gco.c.Load() }

func (gco *gco) Put(config *Config) {
	gco.c.Store(config)
	// update assorted read-mostly knobs
	Rom.Set(config)
	nlog.MaxSize = int64(config.Log.MaxSize)
}

func (gco *gco) Clone() *Config {
	config := &Config{}
	*config = *gco.Get()
	config.Log.Modules = append([]string(nil), config.Log.Modules...)
	return config
}

// NOTE: BeginUpdate must be followed by CommitUpdate or DiscardUpdate.
func (gco *gco) BeginUpdate() *Config {
	gco.mtx.Lock()
	return gco.Clone()
}

func (gco *gco) CommitUpdate(config *Config) {
	gco.Put(config)
	gco.mtx.Unlock()
}

func (gco *gco) DiscardUpdate() {
	gco.mtx.Unlock()
}
