package types

import (
	"math/big"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/encoding"
)

type HTLCState uint8

const (
	HTLCLocked HTLCState = iota
	HTLCClaimed
	HTLCRefunded
)

// HTLC is a hash-timelocked settlement leg (spec §3).
type HTLC struct {
	ID        common.Hash
	Sender    common.Address
	Recipient common.Address
	Amount    *big.Int
	Token     common.Token
	Hashlock  common.Hash
	Timelock  uint64 // block height from which Sender may refund
	State     HTLCState
}

func (h *HTLC) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(h.ID.Bytes())
	w.WriteFixed(h.Sender.Bytes())
	w.WriteFixed(h.Recipient.Bytes())
	w.WriteFixed(bigToFixed16(h.Amount))
	w.WriteBytes([]byte(h.Token))
	w.WriteFixed(h.Hashlock.Bytes())
	w.WriteUint64(h.Timelock)
	w.WriteTag(uint8(h.State))
}

func (h *HTLC) UnmarshalCanonical(r *encoding.Reader) error {
	id, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	h.ID = common.BytesToHash(id)

	sender, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	h.Sender = common.BytesToAddress(sender)

	recipient, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	h.Recipient = common.BytesToAddress(recipient)

	amount, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	h.Amount = new(big.Int).SetBytes(amount)

	token, err := r.ReadBytes()
	if err != nil {
		return err
	}
	h.Token = common.Token(token)

	hashlock, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	h.Hashlock = common.BytesToHash(hashlock)

	if h.Timelock, err = r.ReadUint64(); err != nil {
		return err
	}
	state, err := r.ReadTag()
	if err != nil {
		return err
	}
	h.State = HTLCState(state)
	return nil
}

// CheckPreimage reports whether preimage hashes (BLAKE2b-256) to Hashlock.
func (h *HTLC) CheckPreimage(preimage []byte) bool {
	return crypto.Hash256(preimage) == h.Hashlock
}
