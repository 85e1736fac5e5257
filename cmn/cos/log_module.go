// Package cos provides common low-level types and utilities for all blazingsql exchange packages.
/*
 * Copyright (c) 2023-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"
	"strconv"
)

// see related: duration.go, size.go

const ferl = "invalid log.level %q (%d, %08b)"

const (
	SmoduleTransport = 1 << iota
	SmoduleMemsys
	SmoduleCache
	SmoduleShuffle
	SmoduleStats

	// NOTE: the last
	_smoduleLast
)

const maxLevel = 5

// NOTE: keep in-sync with the above
var Smodules = []string{"transport", "memsys", "cache", "shuffle", "stats"}

// LogLevel packs verbosity (low 3 bits) and a bitmask of smodules.
type LogLevel string

func (l LogLevel) Parse() (level, modules int) {
	value, err := strconv.Atoi(string(l))
	if err != nil {
		return 0, 0
	}
	level, modules = value&0x7, value>>3
	return
}

func (l *LogLevel) Set(level int, sm []string) {
	var modules int
	for i, a := range Smodules {
		for _, b := range sm {
			if a == b {
				modules |= 1 << i
			}
		}
	}
	*l = LogLevel(strconv.Itoa(level + modules<<3))
}

func (l LogLevel) Validate() (err error) {
	if _, e := strconv.Atoi(string(l)); e != nil {
		return fmt.Errorf("invalid log.level %q: %v", string(l), e)
	}
	level, modules := l.Parse()
	if level == 0 || level > maxLevel || modules >= _smoduleLast {
		err = fmt.Errorf(ferl, string(l), level, modules)
	}
	return
}

func (l LogLevel) String() (s string) {
	var (
		ms             string
		n              int
		level, modules = l.Parse()
	)
	s = strconv.Itoa(level)
	if modules == 0 {
		return
	}
	for i, sm := range Smodules {
		if modules&(1<<i) != 0 {
			ms += "," + sm
			n++
		}
	}
	if n == 0 {
		return
	}
	s += " (module" + Plural(n) + ": " + ms[1:] + ")"
	return
}
