package types

import (
	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/encoding"
)

// ReceiptStatus is ok or a tagged failure reason.
type ReceiptStatus uint8

const (
	StatusOK ReceiptStatus = iota
	StatusFailed
)

// FailureReason tags why a transaction failed, surfaced in the receipt so
// light clients don't have to re-derive it from dispatch logic.
type FailureReason uint8

const (
	ReasonNone FailureReason = iota
	ReasonInsufficientBalance
	ReasonBadNonce
	ReasonBadSignature
	ReasonLaneQuotaExceeded
	ReasonPostOnlyCross
	ReasonZeroSizeOrZeroPrice
	ReasonUnknownMethod
	ReasonUnauthorized
	ReasonHTLCInvalidState
	ReasonHTLCTimelockNotReached
	ReasonOverflow
)

// EventKind tags a Receipt's event payloads.
type EventKind uint8

const (
	EventTransfer EventKind = iota
	EventVaultPayout
	EventOrderPlaced
	EventOrderMatched
	EventOrderCancelled
	EventHTLCCreated
	EventHTLCClaimed
	EventHTLCRefunded
	EventGovernanceExecuted
	EventDepositCredited
)

// Event is one typed effect emitted during dispatch; Data is the
// canonical-encoded event-specific payload (spec §3 "events: [Event]").
type Event struct {
	Kind EventKind
	Data []byte
}

func (e *Event) MarshalCanonical(w *encoding.Writer) {
	w.WriteTag(uint8(e.Kind))
	w.WriteBytes(e.Data)
}

func (e *Event) UnmarshalCanonical(r *encoding.Reader) error {
	kind, err := r.ReadTag()
	if err != nil {
		return err
	}
	e.Kind = EventKind(kind)
	if e.Data, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// Receipt is a transaction's per-block outcome (spec §3).
type Receipt struct {
	TxHash   common.Hash
	Status   ReceiptStatus
	Reason   FailureReason
	Events   []*Event
	GasUsed  uint64
}

func (rc *Receipt) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(rc.TxHash.Bytes())
	w.WriteTag(uint8(rc.Status))
	w.WriteTag(uint8(rc.Reason))
	w.WriteUint32(uint32(len(rc.Events)))
	for _, ev := range rc.Events {
		w.WriteBytes(encoding.Encode(ev))
	}
	w.WriteUint64(rc.GasUsed)
}

func (rc *Receipt) UnmarshalCanonical(r *encoding.Reader) error {
	txHash, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	rc.TxHash = common.BytesToHash(txHash)

	status, err := r.ReadTag()
	if err != nil {
		return err
	}
	rc.Status = ReceiptStatus(status)

	reason, err := r.ReadTag()
	if err != nil {
		return err
	}
	rc.Reason = FailureReason(reason)

	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	rc.Events = make([]*Event, n)
	for i := range rc.Events {
		raw, err := r.ReadBytes()
		if err != nil {
			return err
		}
		ev := &Event{}
		if err := encoding.Decode(raw, ev); err != nil {
			return err
		}
		rc.Events[i] = ev
	}

	if rc.GasUsed, err = r.ReadUint64(); err != nil {
		return err
	}
	return nil
}

// ReceiptsRoot computes the merkle root over a block's receipts, reusing
// the same hash function as TxRoot (spec §4.2 "same BLAKE2b-256 hash").
func ReceiptsRoot(receipts []*Receipt) common.Hash {
	leaves := make([]common.Hash, len(receipts))
	for i, rc := range receipts {
		leaves[i] = crypto.Hash256(encoding.Encode(rc))
	}
	return crypto.MerkleRoot(leaves)
}
