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
// Adapted for Vision Node: the original file held go-ethereum's EVM gas
// schedule (CallValueTransferGas, Sha3Gas, ...), none of which applies once
// the execution model is a fixed dispatch table instead of a bytecode VM
// (Turing-complete contracts are an explicit Non-goal). What survives is
// the shape: one file of tuned protocol constants plus the difficulty
// bound-divisor/genesis-difficulty trio, generalized from a single
// big.Int difficulty to our (mantissa, exponent) compact target.

package params

import (
	"math/big"
	"time"

	"github.com/vision-chain/vision-node/common"
)

// ChainConfig pins every genesis-time and protocol constant referenced
// across the spec into one configuration module (spec §9's "MAX_REORG_DEPTH
// and max_future_skew constants ... should be pinned in a single
// configuration module").
type ChainConfig struct {
	NetworkID uint64

	// Emission (spec §4.4 step 3)
	BaseEmission    uint64 // LAND smallest-unit emitted at height 0, halved every HalvingInterval
	HalvingInterval uint64
	Tithe           uint64 // per-block protocol tithe, split Miners/DevOps/Founders
	TitheMinersBps  uint64 // basis points of Tithe, out of 10000
	TitheDevOpsBps  uint64
	TitheFoundersBps uint64
	ProtocolFee     uint64 // fixed fee routed entirely to Miners bucket

	// Epoch payout (spec §4.4 step 5)
	EpochBlocks uint64

	// Mempool (spec §4.5)
	MinFee           uint64
	MempoolDepth     uint64 // max nonce lookahead per sender
	CriticalLaneCap  int
	BulkLaneCap      int
	MaxAgeBlocks     uint64
	GossipInvTTL     time.Duration

	// Chain engine (spec §4.6)
	MaxReorgDepth     uint64
	RetargetInterval  uint64
	RetargetClampDiv  uint64 // difficulty cannot move by more than this factor per retarget (4x)
	TargetBlockTime   time.Duration
	MaxFutureSkew     time.Duration
	OrphanPoolSize    int
	PendingBlocksSize int

	// Exchange (spec §4.4 step 4, exchange.place_order)
	ExchangeFeeBps uint64

	// Admin-gated dispatch (spec §4.4 supplemented admin.airdrop/
	// admin.set_gamemaster): the single address authorized to call them.
	// Genesis-pinned rather than governance-settable; handing it to
	// governance.execute is future work, not in scope here.
	AdminAddress common.Address

	// P2P (spec §4.7)
	MaxMessageSize  int
	RequestTimeout  time.Duration
	CompactBlockIDBytes int
}

// DefaultChainConfig is Vision Node's mainnet genesis configuration. Values
// not pinned by a testable property in spec §8 are chosen to match the
// concrete scenarios there (S1: base_emission=100 LAND, tithe=2 LAND split
// 50/30/20).
var DefaultChainConfig = &ChainConfig{
	NetworkID: 1,

	BaseEmission:     100_000_000_000, // 100 LAND at 1e9 smallest-units/LAND
	HalvingInterval:  2_100_000,
	Tithe:            2_000_000_000, // 2 LAND
	TitheMinersBps:   5000,
	TitheDevOpsBps:   3000,
	TitheFoundersBps: 2000,
	ProtocolFee:      2_000_000_000, // 2 LAND, routed entirely to Miners

	EpochBlocks: 10_080, // ~1 week at 60s blocks

	MinFee:          1_000,
	MempoolDepth:    64,
	CriticalLaneCap: 4096,
	BulkLaneCap:     32768,
	MaxAgeBlocks:    1440,
	GossipInvTTL:    10 * time.Minute,

	MaxReorgDepth:     100,
	RetargetInterval:  60,
	RetargetClampDiv:  4,
	TargetBlockTime:   60 * time.Second,
	MaxFutureSkew:     2 * time.Hour,
	OrphanPoolSize:    1024,
	PendingBlocksSize: 1024,

	ExchangeFeeBps: 10, // 0.1%

	MaxMessageSize:      4 * 1024 * 1024,
	RequestTimeout:      30 * time.Second,
	CompactBlockIDBytes: 8,
}

// TitheSplit returns the (miners, devops, founders) shares of the tithe for
// one block, applying basis-point rounding down with the remainder folded
// into the Miners share so the three shares always sum to exactly Tithe.
func (c *ChainConfig) TitheSplit() (miners, devops, founders uint64) {
	m, d, f := c.SplitThreeWay(new(big.Int).SetUint64(c.Tithe))
	return m.Uint64(), d.Uint64(), f.Uint64()
}

// SplitThreeWay divides amount across Miners/DevOps/Founders using the same
// basis-point ratio as the block tithe (50/30/20), applying basis-point
// rounding down with the remainder folded into the Miners share so the
// three shares always sum to exactly amount. big.Int-valued so it's equally
// safe for the protocol-scale tithe (TitheSplit, above) and for an
// arbitrary trade's exchange fee, which can be denominated in any token at
// any magnitude a user's order reaches.
func (c *ChainConfig) SplitThreeWay(amount *big.Int) (miners, devops, founders *big.Int) {
	devops = new(big.Int).Div(new(big.Int).Mul(amount, new(big.Int).SetUint64(c.TitheDevOpsBps)), big.NewInt(10000))
	founders = new(big.Int).Div(new(big.Int).Mul(amount, new(big.Int).SetUint64(c.TitheFoundersBps)), big.NewInt(10000))
	miners = new(big.Int).Sub(amount, new(big.Int).Add(devops, founders))
	return
}

// Halvings returns floor(height / HalvingInterval), capped so a shift never
// exceeds 63 (at which point emission is definitionally zero).
func (c *ChainConfig) Halvings(height uint64) uint64 {
	h := height / c.HalvingInterval
	if h > 63 {
		h = 63
	}
	return h
}

// BlockEmission computes the spec §4.4 step 3 emission for a given height.
func (c *ChainConfig) BlockEmission(height uint64) uint64 {
	return c.BaseEmission >> c.Halvings(height)
}
