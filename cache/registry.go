// Package cache provides the Cache Machine: a thread-safe, keyed FIFO of tables
// (with optional per-message metadata) that kernels and message receivers push
// into and downstream consumers pull from
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cache

import (
	"sort"
	"sync"
)

// Registry holds a node's named caches: the per-kernel input caches and the
// specific caches (e.g. "output_0") that inbound messages are routed into.
type Registry struct {
	m  map[string]Machine
	mu sync.RWMutex
}

func NewRegistry() *Registry { return &Registry{m: make(map[string]Machine, 8)} }

func (r *Registry) Get(name string) Machine {
	r.mu.RLock()
	c := r.m[name]
	r.mu.RUnlock()
	return c
}

// GetOrCreate returns the named cache, creating an in-memory one on first use.
func (r *Registry) GetOrCreate(name string) Machine {
	if c := r.Get(name); c != nil {
		return c
	}
	r.mu.Lock()
	c, ok := r.m[name]
	if !ok {
		c = NewMem(name)
		r.m[name] = c
	}
	r.mu.Unlock()
	return c
}

func (r *Registry) Put(c Machine) {
	r.mu.Lock()
	r.m[c.Name()] = c
	r.mu.Unlock()
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.m))
	for name := range r.m {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) Close() {
	r.mu.Lock()
	for _, c := range r.m {
		c.Close()
	}
	r.mu.Unlock()
}
