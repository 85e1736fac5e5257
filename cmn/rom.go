// Package cmn provides common constants, types, and utilities for the exchange
// packages and the simulator.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	ratomic "sync/atomic"
)

// read-mostly and most often used config values: assigned at startup and updated
// via GCO.Put; datapath checks them without loading the whole config

type readMostly struct {
	level   ratomic.Int32
	modules ratomic.Int32
	burst   ratomic.Int32
	compr   ratomic.Bool
}

var Rom readMostly

func (rom *readMostly) Set(config *Config) {
	level, modules := config.Log.LogLevel().Parse()
	rom.level.Store(int32(level))
	rom.modules.Store(int32(modules))
	rom.burst.Store(int32(config.Transport.Burst))
	rom.compr.Store(config.Transport.Compression == CompressAlways)
}

// FastV reports whether to log at the given verbosity for the given smodule.
func (rom *readMostly) FastV(verbosity, smodule int) bool {
	return int(rom.level.Load()) >= verbosity || int(rom.modules.Load())&smodule != 0
}

func (rom *readMostly) Burst() int       { return int(rom.burst.Load()) }
func (rom *readMostly) Compressed() bool { return rom.compr.Load() }
