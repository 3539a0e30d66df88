// Dispatch wires a Transaction's (Module, Method) pair to the typed
// handlers in exchange.go/htlc.go/governance.go/land.go/admin.go/withdraw.go
// and state.go's Transfer, running within one block's Apply (spec §4.4 step
// 4 "tx dispatch loop"). Grounded on the shape of a fixed method table
// rather than a type switch on concrete struct types, generalizing
// blockchain/state_transition.go's single TransitionDb entry point to this
// chain's many (module, method) entry points.
package state

import (
	"math/big"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
	"github.com/vision-chain/vision-node/types"
)

// DispatchContext carries the per-tx facts dispatch needs beyond the args
// payload: who's calling and at what sequence/height.
type DispatchContext struct {
	Sender common.Address
	Seq    uint64 // tx nonce, reused as the placement/creation sequence number
	Height uint64
}

// Dispatch decodes tx.Args per (tx.Module, tx.Method) and runs the matching
// handler, returning the events a receipt should carry. Errors returned are
// mostly the ErrXxx vars in errors.go, which the caller maps to a
// types.FailureReason; an unknown order, HTLC or proposal id surfaces as
// database.ErrKeyNotFound, which falls to reasonFor's default reason.
func (sm *StateMachine) Dispatch(tx *types.Transaction, dctx DispatchContext) ([]*types.Event, error) {
	switch tx.Module {
	case types.ModuleToken:
		return sm.dispatchToken(tx, dctx)
	case types.ModuleExchange:
		return sm.dispatchExchange(tx, dctx)
	case types.ModuleHTLC:
		return sm.dispatchHTLC(tx, dctx)
	case types.ModuleGovernance:
		return sm.dispatchGovernance(tx, dctx)
	case types.ModuleLand:
		return sm.dispatchLand(tx, dctx)
	case types.ModuleAdmin:
		return sm.dispatchAdmin(tx, dctx)
	default:
		return nil, ErrUnknownMethod
	}
}

func (sm *StateMachine) dispatchToken(tx *types.Transaction, dctx DispatchContext) ([]*types.Event, error) {
	switch tx.Method {
	case types.MethodTransfer:
		args := &TransferArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		if err := sm.Transfer(dctx.Sender, args.To, args.Token, args.Amount); err != nil {
			return nil, err
		}
		ev := &transferEvent{From: dctx.Sender, To: args.To, Token: args.Token, Amount: args.Amount}
		return []*types.Event{{Kind: types.EventTransfer, Data: encoding.Encode(ev)}}, nil

	case types.MethodWithdraw:
		args := &WithdrawArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		w, err := sm.Withdraw(dctx.Sender, dctx.Seq, args)
		if err != nil {
			return nil, err
		}
		return []*types.Event{{Kind: types.EventDepositCredited, Data: w.ID.Bytes()}}, nil

	default:
		return nil, ErrUnknownMethod
	}
}

func (sm *StateMachine) dispatchExchange(tx *types.Transaction, dctx DispatchContext) ([]*types.Event, error) {
	switch tx.Method {
	case types.MethodPlaceOrder:
		args := &PlaceOrderArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		_, events, err := sm.PlaceOrder(dctx.Sender, dctx.Seq, dctx.Height, args)
		return events, err

	case types.MethodCancelOrder:
		args := &CancelOrderArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		o, err := sm.loadOrder(args.OrderID)
		if err != nil {
			return nil, err
		}
		if o.Owner != dctx.Sender {
			return nil, ErrUnauthorized
		}
		if _, err := sm.CancelOrder(args.OrderID); err != nil {
			return nil, err
		}
		return []*types.Event{{Kind: types.EventOrderCancelled, Data: args.OrderID.Bytes()}}, nil

	case types.MethodAmendOrder:
		// amend is cancel+re-insert, so the replacement order loses its
		// FIFO priority (SPEC_FULL.md §4.4), matching real CLOB semantics.
		cancelArgs := &CancelOrderArgs{}
		if err := encoding.Decode(tx.Args, cancelArgs); err != nil {
			return nil, ErrUnknownMethod
		}
		old, err := sm.loadOrder(cancelArgs.OrderID)
		if err != nil {
			return nil, err
		}
		if old.Owner != dctx.Sender {
			return nil, ErrUnauthorized
		}
		if _, err := sm.CancelOrder(cancelArgs.OrderID); err != nil {
			return nil, err
		}
		replacement := &PlaceOrderArgs{
			Pair: old.Pair, Side: old.Side, Price: old.Price,
			Size: old.Remaining(), TIF: old.TIF, Expiry: old.Expiry, PostOnly: old.PostOnly,
		}
		_, events, err := sm.PlaceOrder(dctx.Sender, dctx.Seq, dctx.Height, replacement)
		return append([]*types.Event{{Kind: types.EventOrderCancelled, Data: cancelArgs.OrderID.Bytes()}}, events...), err

	case types.MethodPairConfig:
		if dctx.Sender != sm.cfg.AdminAddress {
			return nil, ErrUnauthorized
		}
		args := &pairConfigArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		sm.SetPairConfig(args.Base, args.Quote, PairConfig{MinSize: args.MinSize, TickSize: args.TickSize})
		return nil, nil

	default:
		return nil, ErrUnknownMethod
	}
}

func (sm *StateMachine) dispatchHTLC(tx *types.Transaction, dctx DispatchContext) ([]*types.Event, error) {
	switch tx.Method {
	case types.MethodHTLCCreate:
		args := &HTLCCreateArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		h, err := sm.CreateHTLC(dctx.Sender, dctx.Seq, args)
		if err != nil {
			return nil, err
		}
		return []*types.Event{{Kind: types.EventHTLCCreated, Data: h.ID.Bytes()}}, nil

	case types.MethodHTLCClaim:
		args := &HTLCIDArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		h, err := sm.ClaimHTLC(args)
		if err != nil {
			return nil, err
		}
		return []*types.Event{{Kind: types.EventHTLCClaimed, Data: h.ID.Bytes()}}, nil

	case types.MethodHTLCRefund:
		args := &HTLCIDArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		h, err := sm.RefundHTLC(args, dctx.Height)
		if err != nil {
			return nil, err
		}
		if h.Sender != dctx.Sender {
			return nil, ErrUnauthorized
		}
		return []*types.Event{{Kind: types.EventHTLCRefunded, Data: h.ID.Bytes()}}, nil

	default:
		return nil, ErrUnknownMethod
	}
}

func (sm *StateMachine) dispatchGovernance(tx *types.Transaction, dctx DispatchContext) ([]*types.Event, error) {
	switch tx.Method {
	case types.MethodPropose:
		args := &proposeArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		p := sm.Propose(dctx.Sender, dctx.Seq, args.WeightKind, args.Payload, args.Deadline)
		return []*types.Event{{Kind: types.EventGovernanceExecuted, Data: p.ID.Bytes()}}, nil

	case types.MethodVote:
		args := &voteArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		_, err := sm.Vote(dctx.Sender, args.ProposalID, args.Support, dctx.Height)
		return nil, err

	case types.MethodExecute:
		args := &proposalIDArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		p, err := sm.Execute(args.ProposalID, dctx.Height)
		if err != nil {
			return nil, err
		}
		return []*types.Event{{Kind: types.EventGovernanceExecuted, Data: p.ID.Bytes()}}, nil

	case types.MethodCancelProposal:
		args := &proposalIDArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		_, err := sm.CancelProposal(dctx.Sender, args.ProposalID)
		return nil, err

	default:
		return nil, ErrUnknownMethod
	}
}

func (sm *StateMachine) dispatchLand(tx *types.Transaction, dctx DispatchContext) ([]*types.Event, error) {
	switch tx.Method {
	case types.MethodStake:
		args := &stakeArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		return nil, sm.StakeLand(dctx.Sender, args.Amount)

	case types.MethodUnstake:
		args := &stakeArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		return nil, sm.UnstakeLand(dctx.Sender, args.Amount)

	default:
		return nil, ErrUnknownMethod
	}
}

func (sm *StateMachine) dispatchAdmin(tx *types.Transaction, dctx DispatchContext) ([]*types.Event, error) {
	if dctx.Sender != sm.cfg.AdminAddress {
		return nil, ErrUnauthorized
	}
	switch tx.Method {
	case types.MethodAirdrop:
		args := &airdropArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		return nil, sm.Airdrop(args.To, args.Amount)

	case types.MethodSetGamemaster:
		args := &gamemasterArgs{}
		if err := encoding.Decode(tx.Args, args); err != nil {
			return nil, ErrUnknownMethod
		}
		sm.SetGamemaster(args.Addr)
		return nil, nil

	default:
		return nil, ErrUnknownMethod
	}
}

type transferEvent struct {
	From, To common.Address
	Token    common.Token
	Amount   *big.Int
}

func (e *transferEvent) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(e.From.Bytes())
	w.WriteFixed(e.To.Bytes())
	w.WriteBytes([]byte(e.Token))
	w.WriteFixed(bigToFixed16(e.Amount))
}

func (e *transferEvent) UnmarshalCanonical(r *encoding.Reader) error {
	from, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	e.From = common.BytesToAddress(from)
	to, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	e.To = common.BytesToAddress(to)
	token, err := r.ReadBytes()
	if err != nil {
		return err
	}
	e.Token = common.Token(token)
	amt, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	e.Amount = new(big.Int).SetBytes(amt)
	return nil
}
