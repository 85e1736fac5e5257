// Package meta: cluster-level metadata shared by the exchange layer - nodes, the
// cluster map, and the typed per-message metadata
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package meta

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/debug"

	"github.com/OneOfOne/xxhash"
)

const NodeNamePrefix = "n["

type (
	// Snode - a worker node participating in distributed query execution
	Snode struct {
		DaemonID string `json:"daemon_id"`
		PubURL   string `json:"pub_url"`
		// runtime
		idDigest uint64
		name     string
	}
	Nodes   []*Snode          // slice of Snodes
	NodeMap map[string]*Snode // map of Snodes: DaemonID => Snodes

	// Smap - ordered cluster membership; a node's index in the map is its worker origin
	Smap struct {
		UUID    string `json:"uuid"`
		Nodes   Nodes  `json:"nodes"`
		Version int64  `json:"version,string"`
		nmap    NodeMap
	}
)

///////////
// Snode //
///////////

func NewSnode(id, url string) *Snode {
	snode := &Snode{DaemonID: id, PubURL: url}
	snode.init()
	return snode
}

func (d *Snode) init() {
	d.idDigest = xxhash.ChecksumString64S(d.DaemonID, cos.MLCG32)
	d.name = NodeNamePrefix + d.DaemonID + "]"
}

func (d *Snode) Digest() uint64 {
	if d.idDigest == 0 {
		d.init()
	}
	return d.idDigest
}

func (d *Snode) ID() string  { return d.DaemonID }
func (d *Snode) URL() string { return d.PubURL }

func (d *Snode) String() string {
	if d.name == "" {
		return NodeNamePrefix + d.DaemonID + "]"
	}
	return d.name
}

// Equals compares identity; addressing may legitimately differ between views of the same node.
func (d *Snode) Equals(other *Snode) bool {
	return other != nil && d.DaemonID == other.DaemonID
}

func (d *Snode) Validate() error {
	if d == nil {
		return errors.New("nil node")
	}
	return validateID(d.DaemonID)
}

//////////
// Smap //
//////////

func NewSmap(nodes ...*Snode) (*Smap, error) {
	smap := &Smap{Nodes: make(Nodes, 0, len(nodes)), Version: 1, UUID: cos.GenUUID()}
	if err := smap.init(nodes); err != nil {
		return nil, err
	}
	return smap, nil
}

func (m *Smap) init(nodes Nodes) error {
	m.nmap = make(NodeMap, len(nodes))
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			return err
		}
		if osi, ok := m.nmap[n.DaemonID]; ok {
			return fmt.Errorf("duplicate node id: %s vs %s (%q, %q)", osi, n, osi.PubURL, n.PubURL)
		}
		n.init()
		m.nmap[n.DaemonID] = n
		m.Nodes = append(m.Nodes, n)
	}
	// the worker origin (see transport.Tag) is 16 bits wide
	if len(m.Nodes) > 1<<16 {
		return fmt.Errorf("too many nodes: %d", len(m.Nodes))
	}
	return nil
}

func (m *Smap) String() string {
	if m == nil {
		return "Smap <nil>"
	}
	return "Smap v" + strconv.FormatInt(m.Version, 10) + "[" + m.UUID + ", n=" + strconv.Itoa(len(m.Nodes)) + "]"
}

func (m *Smap) CountNodes() int { return len(m.Nodes) }

func (m *Smap) AllNodes() Nodes { return m.Nodes }

// all nodes but the one at selfIdx, in map order
func (m *Smap) AllOtherNodes(selfIdx int) Nodes {
	debug.Assert(selfIdx >= 0 && selfIdx < len(m.Nodes), selfIdx)
	others := make(Nodes, 0, len(m.Nodes)-1)
	others = append(others, m.Nodes[:selfIdx]...)
	return append(others, m.Nodes[selfIdx+1:]...)
}

// returns -1 when not present
func (m *Smap) NodeIndex(node *Snode) int {
	if node == nil {
		return -1
	}
	return m.IndexOf(node.DaemonID)
}

func (m *Smap) IndexOf(id string) int {
	for i, n := range m.Nodes {
		if n.DaemonID == id {
			return i
		}
	}
	return -1
}

func (m *Smap) GetNode(id string) *Snode { return m.nmap[id] }

func (m *Smap) NodeMap() NodeMap { return m.nmap }

// Resolve maps ids to nodes, failing on the first unknown id.
func (m *Smap) Resolve(ids NodeIDs) (Nodes, error) {
	nodes := make(Nodes, 0, len(ids))
	for _, id := range ids {
		n := m.nmap[id]
		if n == nil {
			return nil, &cmn.ErrUnknownNode{ID: id}
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (nodes Nodes) IDs() NodeIDs {
	ids := make(NodeIDs, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.DaemonID)
	}
	return ids
}

func (m NodeMap) Add(snode *Snode) { debug.Assert(m != nil); m[snode.DaemonID] = snode }

func (m NodeMap) Contains(id string) (exists bool) {
	_, exists = m[id]
	return
}
