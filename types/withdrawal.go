// Adapted for Vision Node: the mirror image of DepositCredit (spec §3's
// deposit bridge only goes one direction; SPEC_FULL.md §3 supplements the
// withdrawal path so the bridge closes). Grounded on deposit.go's shape.
package types

import (
	"math/big"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
)

type WithdrawalStatus uint8

const (
	WithdrawalRequested WithdrawalStatus = iota
	WithdrawalBroadcast
	WithdrawalConfirmed
)

// Withdrawal tracks one token.withdraw burn until the out-of-process
// broadcaster confirms it landed on the external chain.
type Withdrawal struct {
	ID           common.Hash
	Owner        common.Address
	Chain        common.ExternalChain
	ExternalAddr string
	Amount       *big.Int
	Status       WithdrawalStatus
}

func (w *Withdrawal) MarshalCanonical(e *encoding.Writer) {
	e.WriteFixed(w.ID.Bytes())
	e.WriteFixed(w.Owner.Bytes())
	e.WriteBytes([]byte(w.Chain))
	e.WriteBytes([]byte(w.ExternalAddr))
	e.WriteFixed(bigToFixed16(w.Amount))
	e.WriteTag(uint8(w.Status))
}

func (w *Withdrawal) UnmarshalCanonical(r *encoding.Reader) error {
	id, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	w.ID = common.BytesToHash(id)

	owner, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	w.Owner = common.BytesToAddress(owner)

	chain, err := r.ReadBytes()
	if err != nil {
		return err
	}
	w.Chain = common.ExternalChain(chain)

	addr, err := r.ReadBytes()
	if err != nil {
		return err
	}
	w.ExternalAddr = string(addr)

	amt, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	w.Amount = new(big.Int).SetBytes(amt)

	status, err := r.ReadTag()
	if err != nil {
		return err
	}
	w.Status = WithdrawalStatus(status)
	return nil
}
