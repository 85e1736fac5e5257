// Package mono provides low-level monotonic time
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

// process start; all readings are relative to it and therefore monotonic
var start = time.Now()

func NanoTime() int64 { return int64(time.Since(start)) }

// Since returns the elapsed duration since `started` (a NanoTime() reading)
func Since(started int64) time.Duration { return time.Duration(NanoTime() - started) }

func SinceNano(started int64) int64 { return NanoTime() - started }
