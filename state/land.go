// Adapted for Vision Node: land.stake/unstake maintain the landstake weight
// table SPEC_FULL.md §3 supplements, consumed by governance vote weighting
// and the epoch payout (spec §4.4 step 5). Grounded on state.go's balance
// accessor pattern — a weight table is just another (address -> u128) tree.
package state

import (
	"math/big"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/storage/database"
	"github.com/vision-chain/vision-node/types"
)

func (sm *StateMachine) LandStakeWeight(addr common.Address) (*big.Int, error) {
	raw, err := sm.get(database.TreeLandStake, addr.Bytes())
	if err == database.ErrKeyNotFound {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return types.DecodeBalance(raw)
}

func (sm *StateMachine) setLandStakeWeight(addr common.Address, weight *big.Int) {
	sm.put(database.TreeLandStake, addr.Bytes(), types.EncodeBalance(weight))
}

// StakeLand locks LAND from the free balance into the stake weight table;
// staked LAND counts 1:1 as vote/epoch-payout weight while locked.
func (sm *StateMachine) StakeLand(addr common.Address, amount *big.Int) error {
	if err := sm.AddBalance(addr, common.TokenLAND, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	weight, err := sm.LandStakeWeight(addr)
	if err != nil {
		return err
	}
	sm.setLandStakeWeight(addr, new(big.Int).Add(weight, amount))
	return nil
}

// UnstakeLand releases staked LAND back to the free balance.
func (sm *StateMachine) UnstakeLand(addr common.Address, amount *big.Int) error {
	weight, err := sm.LandStakeWeight(addr)
	if err != nil {
		return err
	}
	next := new(big.Int).Sub(weight, amount)
	if next.Sign() < 0 {
		return ErrNegativeBalance
	}
	sm.setLandStakeWeight(addr, next)
	return sm.AddBalance(addr, common.TokenLAND, amount)
}
