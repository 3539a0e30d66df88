package config

import (
	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/params"
	"github.com/vision-chain/vision-node/types"
)

// genesisTimestamp is fixed so every node building genesis from the same
// ChainConfig derives the identical block hash.
const genesisTimestamp = 1_700_000_000

// easiestDifficulty is the loosest possible 128-bit target (every byte
// 0xff), so genesis mining always succeeds at nonce 0 without a real
// proof-of-work search.
var easiestDifficulty = types.Difficulty{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// BuildGenesis constructs the network's height-0 block: no transactions,
// the loosest difficulty, and the block reward routed to cfg.AdminAddress
// (spec's BOOTSTRAP_CHECKPOINT_HEIGHT=0 case — chain.New always pins
// genesis as the first checkpoint regardless of what height it's given).
func BuildGenesis(cfg *params.ChainConfig) *types.Block {
	block := &types.Block{
		Header: types.Header{
			Height:       0,
			Timestamp:    genesisTimestamp,
			Difficulty:   easiestDifficulty,
			MinerAddress: cfg.AdminAddress,
		},
	}
	block.Header.TxRoot = block.TxRoot()
	block.Header.ReceiptsRoot = types.ReceiptsRoot(nil)

	for nonce := uint64(0); ; nonce++ {
		hash := crypto.VerifyPoW(block.Header.PowPreimage(), nonce)
		if crypto.MeetsTarget(hash, [16]byte(block.Header.Difficulty)) {
			block.Header.Nonce = nonce
			break
		}
	}
	return block
}

// CompiledCheckpoints holds additional height->hash pins beyond genesis
// (spec §6's BOOTSTRAP_BLOCK_HASHES). Empty until a released network
// accumulates checkpoints worth compiling in; chain.Engine.AddCheckpoint
// takes each entry at startup.
var CompiledCheckpoints = map[uint64]common.Hash{}
