// Package meta: cluster-level metadata shared by the exchange layer - nodes, the
// cluster map, and the typed per-message metadata
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package meta

import (
	"fmt"
	"strings"
)

// wire separator of the `worker_ids` metadata field
const NodeIDsSep = ","

// NodeIDs is an explicit, ordered set of target node ids.
// Comma-joining happens only at the wire boundary (see Wire and ParseNodeIDs).
type NodeIDs []string

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty node id")
	}
	if strings.Contains(id, NodeIDsSep) {
		return fmt.Errorf("invalid node id %q: contains %q", id, NodeIDsSep)
	}
	return nil
}

// NewNodeIDs validates ids and drops duplicates, preserving first occurrence order.
func NewNodeIDs(ids ...string) (NodeIDs, error) {
	set := make(NodeIDs, 0, len(ids))
	for _, id := range ids {
		if err := validateID(id); err != nil {
			return nil, err
		}
		if !set.Contains(id) {
			set = append(set, id)
		}
	}
	return set, nil
}

func ParseNodeIDs(s string) (NodeIDs, error) {
	if s == "" {
		return NodeIDs{}, nil
	}
	return NewNodeIDs(strings.Split(s, NodeIDsSep)...)
}

func (ids NodeIDs) Len() int { return len(ids) }

func (ids NodeIDs) Contains(id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func (ids NodeIDs) Wire() string { return strings.Join(ids, NodeIDsSep) }

func (ids NodeIDs) Equal(other NodeIDs) bool {
	if len(ids) != len(other) {
		return false
	}
	for i := range ids {
		if ids[i] != other[i] {
			return false
		}
	}
	return true
}
