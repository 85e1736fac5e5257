// Package cos provides common low-level types and utilities for all blazingsql exchange packages.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

func Plural(num int) (s string) {
	if num != 1 {
		s = "s"
	}
	return
}

// LCG32 multiplier, seeds digests
const MLCG32 = 1103515245
