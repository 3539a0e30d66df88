// Args structs are the typed payload behind Transaction.Args (spec §4.3's
// "tagged unions" applied per (module, method) instead of per top-level
// type, per the note in types/transaction.go). Each implements
// encoding.Marshaler/Unmarshaler so Transaction.Args round-trips exactly.
package state

import (
	"math/big"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
	"github.com/vision-chain/vision-node/types"
)

type TransferArgs struct {
	To     common.Address
	Token  common.Token
	Amount *big.Int
}

func (a *TransferArgs) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(a.To.Bytes())
	w.WriteBytes([]byte(a.Token))
	w.WriteFixed(bigToFixed16(a.Amount))
}

func (a *TransferArgs) UnmarshalCanonical(r *encoding.Reader) error {
	to, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	a.To = common.BytesToAddress(to)
	token, err := r.ReadBytes()
	if err != nil {
		return err
	}
	a.Token = common.Token(token)
	amt, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	a.Amount = new(big.Int).SetBytes(amt)
	return nil
}

type WithdrawArgs struct {
	Chain        common.ExternalChain
	ExternalAddr string
	Amount       *big.Int
}

func (a *WithdrawArgs) MarshalCanonical(w *encoding.Writer) {
	w.WriteBytes([]byte(a.Chain))
	w.WriteBytes([]byte(a.ExternalAddr))
	w.WriteFixed(bigToFixed16(a.Amount))
}

func (a *WithdrawArgs) UnmarshalCanonical(r *encoding.Reader) error {
	chain, err := r.ReadBytes()
	if err != nil {
		return err
	}
	a.Chain = common.ExternalChain(chain)
	addr, err := r.ReadBytes()
	if err != nil {
		return err
	}
	a.ExternalAddr = string(addr)
	amt, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	a.Amount = new(big.Int).SetBytes(amt)
	return nil
}

type PlaceOrderArgs struct {
	Pair     types.Pair
	Side     types.OrderSide
	Price    *big.Int
	Size     *big.Int
	TIF      types.TIF
	Expiry   uint64
	PostOnly bool
}

func (a *PlaceOrderArgs) MarshalCanonical(w *encoding.Writer) {
	w.WriteBytes([]byte(a.Pair.Base))
	w.WriteBytes([]byte(a.Pair.Quote))
	w.WriteTag(uint8(a.Side))
	w.WriteFixed(bigToFixed16(a.Price))
	w.WriteFixed(bigToFixed16(a.Size))
	w.WriteTag(uint8(a.TIF))
	w.WriteUint64(a.Expiry)
	w.WriteBool(a.PostOnly)
}

func (a *PlaceOrderArgs) UnmarshalCanonical(r *encoding.Reader) error {
	base, err := r.ReadBytes()
	if err != nil {
		return err
	}
	quote, err := r.ReadBytes()
	if err != nil {
		return err
	}
	a.Pair = types.Pair{Base: common.Token(base), Quote: common.Token(quote)}
	side, err := r.ReadTag()
	if err != nil {
		return err
	}
	a.Side = types.OrderSide(side)
	price, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	a.Price = new(big.Int).SetBytes(price)
	size, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	a.Size = new(big.Int).SetBytes(size)
	tif, err := r.ReadTag()
	if err != nil {
		return err
	}
	a.TIF = types.TIF(tif)
	if a.Expiry, err = r.ReadUint64(); err != nil {
		return err
	}
	if a.PostOnly, err = r.ReadBool(); err != nil {
		return err
	}
	return nil
}

type CancelOrderArgs struct {
	OrderID common.Hash
}

func (a *CancelOrderArgs) MarshalCanonical(w *encoding.Writer) { w.WriteFixed(a.OrderID.Bytes()) }
func (a *CancelOrderArgs) UnmarshalCanonical(r *encoding.Reader) error {
	id, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	a.OrderID = common.BytesToHash(id)
	return nil
}

type HTLCCreateArgs struct {
	Recipient common.Address
	Amount    *big.Int
	Token     common.Token
	Hashlock  common.Hash
	Timelock  uint64
}

func (a *HTLCCreateArgs) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(a.Recipient.Bytes())
	w.WriteFixed(bigToFixed16(a.Amount))
	w.WriteBytes([]byte(a.Token))
	w.WriteFixed(a.Hashlock.Bytes())
	w.WriteUint64(a.Timelock)
}

func (a *HTLCCreateArgs) UnmarshalCanonical(r *encoding.Reader) error {
	recipient, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	a.Recipient = common.BytesToAddress(recipient)
	amt, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	a.Amount = new(big.Int).SetBytes(amt)
	token, err := r.ReadBytes()
	if err != nil {
		return err
	}
	a.Token = common.Token(token)
	hashlock, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	a.Hashlock = common.BytesToHash(hashlock)
	if a.Timelock, err = r.ReadUint64(); err != nil {
		return err
	}
	return nil
}

type HTLCIDArgs struct {
	ID       common.Hash
	Preimage []byte // only set for htlc.claim
}

func (a *HTLCIDArgs) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(a.ID.Bytes())
	w.WriteBytes(a.Preimage)
}

func (a *HTLCIDArgs) UnmarshalCanonical(r *encoding.Reader) error {
	id, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	a.ID = common.BytesToHash(id)
	if a.Preimage, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

type pairConfigArgs struct {
	Base, Quote       common.Token
	MinSize, TickSize *big.Int
}

func (a *pairConfigArgs) MarshalCanonical(w *encoding.Writer) {
	w.WriteBytes([]byte(a.Base))
	w.WriteBytes([]byte(a.Quote))
	w.WriteFixed(bigToFixed16(a.MinSize))
	w.WriteFixed(bigToFixed16(a.TickSize))
}

func (a *pairConfigArgs) UnmarshalCanonical(r *encoding.Reader) error {
	base, err := r.ReadBytes()
	if err != nil {
		return err
	}
	a.Base = common.Token(base)
	quote, err := r.ReadBytes()
	if err != nil {
		return err
	}
	a.Quote = common.Token(quote)
	minSize, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	a.MinSize = new(big.Int).SetBytes(minSize)
	tick, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	a.TickSize = new(big.Int).SetBytes(tick)
	return nil
}

type proposeArgs struct {
	WeightKind types.ProposalWeightKind
	Payload    []byte
	Deadline   uint64
}

func (a *proposeArgs) MarshalCanonical(w *encoding.Writer) {
	w.WriteTag(uint8(a.WeightKind))
	w.WriteBytes(a.Payload)
	w.WriteUint64(a.Deadline)
}

func (a *proposeArgs) UnmarshalCanonical(r *encoding.Reader) error {
	kind, err := r.ReadTag()
	if err != nil {
		return err
	}
	a.WeightKind = types.ProposalWeightKind(kind)
	if a.Payload, err = r.ReadBytes(); err != nil {
		return err
	}
	if a.Deadline, err = r.ReadUint64(); err != nil {
		return err
	}
	return nil
}

type voteArgs struct {
	ProposalID common.Hash
	Support    bool
}

func (a *voteArgs) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(a.ProposalID.Bytes())
	w.WriteBool(a.Support)
}

func (a *voteArgs) UnmarshalCanonical(r *encoding.Reader) error {
	id, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	a.ProposalID = common.BytesToHash(id)
	if a.Support, err = r.ReadBool(); err != nil {
		return err
	}
	return nil
}

type proposalIDArgs struct {
	ProposalID common.Hash
}

func (a *proposalIDArgs) MarshalCanonical(w *encoding.Writer) { w.WriteFixed(a.ProposalID.Bytes()) }
func (a *proposalIDArgs) UnmarshalCanonical(r *encoding.Reader) error {
	id, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	a.ProposalID = common.BytesToHash(id)
	return nil
}

type stakeArgs struct {
	Amount *big.Int
}

func (a *stakeArgs) MarshalCanonical(w *encoding.Writer) { w.WriteFixed(bigToFixed16(a.Amount)) }
func (a *stakeArgs) UnmarshalCanonical(r *encoding.Reader) error {
	amt, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	a.Amount = new(big.Int).SetBytes(amt)
	return nil
}

type airdropArgs struct {
	To     common.Address
	Amount *big.Int
}

func (a *airdropArgs) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(a.To.Bytes())
	w.WriteFixed(bigToFixed16(a.Amount))
}

func (a *airdropArgs) UnmarshalCanonical(r *encoding.Reader) error {
	to, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	a.To = common.BytesToAddress(to)
	amt, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	a.Amount = new(big.Int).SetBytes(amt)
	return nil
}

type gamemasterArgs struct {
	Addr common.Address
}

func (a *gamemasterArgs) MarshalCanonical(w *encoding.Writer) { w.WriteFixed(a.Addr.Bytes()) }
func (a *gamemasterArgs) UnmarshalCanonical(r *encoding.Reader) error {
	addr, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	a.Addr = common.BytesToAddress(addr)
	return nil
}

func bigToFixed16(v *big.Int) []byte {
	var out [16]byte
	if v == nil {
		return out[:]
	}
	b := v.Bytes()
	if len(b) > 16 {
		panic("state: u128 value overflows 16 bytes")
	}
	copy(out[16-len(b):], b)
	return out[:]
}
