package types

import (
	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
)

// DepositStatus tags where a watched external deposit sits in the
// confirmation/credit pipeline (spec §4.8).
type DepositStatus uint8

const (
	DepositSeen       DepositStatus = iota // observed, below confirmation depth
	DepositConfirmed                       // reached chain-specific confirmation depth
	DepositCredited                        // IOU credited to the recipient, terminal
)

// DepositKey is the idempotency key spec §3/§4.4 step 6 requires: a credit
// for the same (chain, txid, vout) must never be applied twice.
type DepositKey struct {
	Chain common.ExternalChain
	TxID  common.Hash
	Vout  uint32
}

func (k DepositKey) Bytes() []byte {
	w := encoding.NewWriter()
	w.WriteBytes([]byte(k.Chain))
	w.WriteFixed(k.TxID.Bytes())
	w.WriteUint32(k.Vout)
	return w.Bytes()
}

// DepositCredit is the value stored in the external_deposits tree.
type DepositCredit struct {
	Key           DepositKey
	Recipient     common.Address
	Amount        uint64 // smallest-unit of Key.Chain.Token()
	Confirmations uint64
	Status        DepositStatus
}

func (d *DepositCredit) MarshalCanonical(w *encoding.Writer) {
	w.WriteBytes([]byte(d.Key.Chain))
	w.WriteFixed(d.Key.TxID.Bytes())
	w.WriteUint32(d.Key.Vout)
	w.WriteFixed(d.Recipient.Bytes())
	w.WriteUint64(d.Amount)
	w.WriteUint64(d.Confirmations)
	w.WriteTag(uint8(d.Status))
}

func (d *DepositCredit) UnmarshalCanonical(r *encoding.Reader) error {
	chain, err := r.ReadBytes()
	if err != nil {
		return err
	}
	d.Key.Chain = common.ExternalChain(chain)

	txid, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	d.Key.TxID = common.BytesToHash(txid)

	if d.Key.Vout, err = r.ReadUint32(); err != nil {
		return err
	}

	recipient, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	d.Recipient = common.BytesToAddress(recipient)

	if d.Amount, err = r.ReadUint64(); err != nil {
		return err
	}
	if d.Confirmations, err = r.ReadUint64(); err != nil {
		return err
	}
	status, err := r.ReadTag()
	if err != nil {
		return err
	}
	d.Status = DepositStatus(status)
	return nil
}

// Ready reports whether this deposit has reached the chain-specific
// confirmation depth required before it may be credited.
func (d *DepositCredit) Ready() bool {
	return d.Confirmations >= d.Key.Chain.MinConfirmations()
}
