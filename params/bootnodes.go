// Copyright 2018 The klaytn Authors
// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.
//
// This file is derived from params/bootnodes.go (2018/06/04).
// Adapted for Vision Node: the teacher keyed bootnode URL lists by node
// type (CN/EN/PN) for Klaytn's tiered network. Vision Node has one peer
// tier, so the map collapses to a flat seed list; what's added is the
// compiled-in checkpoint pinning spec §6 requires (BOOTSTRAP_BLOCK_HASHES,
// BOOTSTRAP_CHECKPOINT_HEIGHT/HASH) and §4.6's hard checkpoint rule.

package params

import "github.com/vision-chain/vision-node/common"

// MainnetSeedPeers are the host:port addresses of the P2P bootstrap peers
// a fresh node dials to discover the rest of the network.
var MainnetSeedPeers = []string{
	// populated at mainnet launch; empty for test networks, which rely on
	// --peers.
}

// BootstrapCheckpointHeight/Hash anchor the chain permanently: any block
// that disagrees with the checkpoint at that height is rejected outright
// (spec §4.6), and no reorg may cross this height.
var (
	BootstrapCheckpointHeight uint64 = 100_000
	BootstrapCheckpointHash          = common.Hash{} // set at mainnet launch
)

// BootstrapBlockHashes pins the first ten block hashes so a new node can
// validate genesis linkage before it has any peers to ask.
var BootstrapBlockHashes [10]common.Hash
