// Package cos provides common low-level types and utilities for all blazingsql exchange packages.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"
	"os"
)

func exitf(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
