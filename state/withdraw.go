// Adapted for Vision Node: token.withdraw burns an external-chain IOU and
// opens a Withdrawal tracked Requested -> Broadcast -> Confirmed
// (SPEC_FULL.md §3's bridge-closing supplement). The out-of-process
// broadcaster (outside this node's scope per §1 Non-goals) advances
// Broadcast/Confirmed via the deposit-watcher's event interface; only
// Requested is produced by state-machine dispatch.
package state

import (
	"math/big"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
	"github.com/vision-chain/vision-node/storage/database"
	"github.com/vision-chain/vision-node/types"
)

func withdrawalKey(id common.Hash) []byte { return id.Bytes() }

func (sm *StateMachine) loadWithdrawal(id common.Hash) (*types.Withdrawal, error) {
	raw, err := sm.get(database.TreeWithdrawals, withdrawalKey(id))
	if err != nil {
		return nil, err
	}
	w := &types.Withdrawal{}
	if err := encoding.Decode(raw, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (sm *StateMachine) saveWithdrawal(w *types.Withdrawal) {
	sm.put(database.TreeWithdrawals, withdrawalKey(w.ID), encoding.Encode(w))
}

// Withdraw burns the IOU token and records a Requested withdrawal; the
// external token is identified by args.Chain (BTC/BCH/DOGE), matching the
// same token the deposit bridge credited.
func (sm *StateMachine) Withdraw(owner common.Address, seq uint64, args *WithdrawArgs) (*types.Withdrawal, error) {
	token := args.Chain.Token()
	if err := sm.AddBalance(owner, token, new(big.Int).Neg(args.Amount)); err != nil {
		return nil, err
	}
	w := &types.Withdrawal{
		ID:           common.BytesToHash(seqID(owner, seq)),
		Owner:        owner,
		Chain:        args.Chain,
		ExternalAddr: args.ExternalAddr,
		Amount:       args.Amount,
		Status:       types.WithdrawalRequested,
	}
	sm.saveWithdrawal(w)
	return w, nil
}

// AdvanceWithdrawal moves a withdrawal to Broadcast or Confirmed as the
// deposit-watcher bridge reports external chain progress; it never reverses
// a later status back to an earlier one.
func (sm *StateMachine) AdvanceWithdrawal(id common.Hash, status types.WithdrawalStatus) (*types.Withdrawal, error) {
	w, err := sm.loadWithdrawal(id)
	if err != nil {
		return nil, err
	}
	if status < w.Status {
		return nil, ErrUnauthorized
	}
	w.Status = status
	sm.saveWithdrawal(w)
	return w, nil
}
