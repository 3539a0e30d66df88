// Difficulty retargeting is an Open Question spec.md leaves to the
// implementer (§4.4 "difficulty matches retarget schedule", §9). Vision
// Node's choice, recorded in DESIGN.md: a Bitcoin-style windowed retarget —
// every RetargetInterval blocks, compare actual elapsed time against the
// ideal (RetargetInterval * TargetBlockTime) and scale the previous target
// by that ratio, clamped to +/- RetargetClampDiv so one outlier window can't
// swing difficulty by more than a bounded factor. Between retarget
// boundaries the target is pinned to the previous block's.
package state

import (
	"math/big"

	"github.com/vision-chain/vision-node/params"
	"github.com/vision-chain/vision-node/types"
)

// NextDifficulty computes the required difficulty for the block at height
// parent.Height+1, given the parent header and, if this height starts a new
// retarget window, the header RetargetInterval blocks back.
func NextDifficulty(cfg *params.ChainConfig, parent *types.Header, windowStart *types.Header) types.Difficulty {
	height := parent.Height + 1
	if height%cfg.RetargetInterval != 0 || windowStart == nil {
		return parent.Difficulty
	}

	actual := int64(parent.Timestamp) - int64(windowStart.Timestamp)
	ideal := int64(cfg.RetargetInterval) * int64(cfg.TargetBlockTime/1e9)
	if actual <= 0 {
		actual = 1
	}

	target := parent.Difficulty.BigInt()
	next := new(big.Int).Mul(target, big.NewInt(actual))
	next.Div(next, big.NewInt(ideal))

	minTarget := new(big.Int).Div(target, big.NewInt(int64(cfg.RetargetClampDiv)))
	maxTarget := new(big.Int).Mul(target, big.NewInt(int64(cfg.RetargetClampDiv)))
	if next.Cmp(minTarget) < 0 {
		next = minTarget
	}
	if next.Cmp(maxTarget) > 0 {
		next = maxTarget
	}
	return types.DifficultyFromBigInt(next)
}
