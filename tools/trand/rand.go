// Package trand provides random values for dev tools and tests
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package trand

import (
	"math/rand/v2"
)

const letterRunes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func String(n int) string {
	b := make([]byte, n)
	for i := range n {
		b[i] = letterRunes[rand.IntN(len(letterRunes))]
	}
	return string(b)
}

func Int64s(n int, limit int64) []int64 {
	v := make([]int64, n)
	for i := range v {
		v[i] = rand.Int64N(limit)
	}
	return v
}

func Strings(n, length int) []string {
	v := make([]string, n)
	for i := range v {
		v[i] = String(1 + rand.IntN(length))
	}
	return v
}
