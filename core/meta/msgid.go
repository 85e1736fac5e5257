// Package meta: cluster-level metadata shared by the exchange layer - nodes, the
// cluster map, and the typed per-message metadata
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package meta

import "strconv"

// MessageID is deterministic: prefix + {query}_{kernel}_{sender}.
// Nodes rely on it to name the peer messages they wait for.
func MessageID(prefix, queryID string, kernelID int32, senderID string) string {
	return prefix + queryID + "_" + strconv.FormatInt(int64(kernelID), 10) + "_" + senderID
}
