// Adapted for Vision Node: htlc.create/claim/refund implement the
// hash-timelock leg of the BTC/BCH/DOGE bridge (spec §3's HTLC lifecycle:
// locked -> claimed | refunded). Grounded on the same storage pattern as
// exchange.go's order lookup; there is no teacher analog since Klaytn's
// service-chain bridge is an anchoring checkpoint scheme, not an HTLC.
package state

import (
	"math/big"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
	"github.com/vision-chain/vision-node/storage/database"
	"github.com/vision-chain/vision-node/types"
)

func htlcKey(id common.Hash) []byte { return id.Bytes() }

func (sm *StateMachine) loadHTLC(id common.Hash) (*types.HTLC, error) {
	raw, err := sm.get(database.TreeHTLCs, htlcKey(id))
	if err != nil {
		return nil, err
	}
	h := &types.HTLC{}
	if err := encoding.Decode(raw, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (sm *StateMachine) saveHTLC(h *types.HTLC) {
	sm.put(database.TreeHTLCs, htlcKey(h.ID), encoding.Encode(h))
}

// CreateHTLC locks sender funds behind a hashlock/timelock pair, identified
// by (sender, seq) the same way orders are (spec §3 "ID: unique").
func (sm *StateMachine) CreateHTLC(sender common.Address, seq uint64, args *HTLCCreateArgs) (*types.HTLC, error) {
	if err := sm.AddBalance(sender, args.Token, new(big.Int).Neg(args.Amount)); err != nil {
		return nil, err
	}
	h := &types.HTLC{
		ID:        common.BytesToHash(seqID(sender, seq)),
		Sender:    sender,
		Recipient: args.Recipient,
		Amount:    args.Amount,
		Token:     args.Token,
		Hashlock:  args.Hashlock,
		Timelock:  args.Timelock,
		State:     types.HTLCLocked,
	}
	sm.saveHTLC(h)
	return h, nil
}

// ClaimHTLC releases locked funds to Recipient once the correct preimage is
// presented; callable by anyone holding the preimage (spec §3).
func (sm *StateMachine) ClaimHTLC(args *HTLCIDArgs) (*types.HTLC, error) {
	h, err := sm.loadHTLC(args.ID)
	if err != nil {
		return nil, err
	}
	if h.State != types.HTLCLocked {
		return nil, ErrHTLCInvalidState
	}
	if !h.CheckPreimage(args.Preimage) {
		return nil, ErrHTLCBadPreimage
	}
	if err := sm.AddBalance(h.Recipient, h.Token, h.Amount); err != nil {
		return nil, err
	}
	h.State = types.HTLCClaimed
	sm.saveHTLC(h)
	return h, nil
}

// RefundHTLC returns locked funds to Sender once the block height has
// reached the timelock without a claim (spec §3); height is the block height applying this tx.
func (sm *StateMachine) RefundHTLC(args *HTLCIDArgs, height uint64) (*types.HTLC, error) {
	h, err := sm.loadHTLC(args.ID)
	if err != nil {
		return nil, err
	}
	if h.State != types.HTLCLocked {
		return nil, ErrHTLCInvalidState
	}
	if height < h.Timelock {
		return nil, ErrHTLCTimelockPending
	}
	if err := sm.AddBalance(h.Sender, h.Token, h.Amount); err != nil {
		return nil, err
	}
	h.State = types.HTLCRefunded
	sm.saveHTLC(h)
	return h, nil
}
