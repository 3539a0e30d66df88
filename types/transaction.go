// Adapted for Vision Node: the teacher's TxInternalData zoo (one Go type
// per Klaytn transaction kind, selected by a TxType byte) is replaced by
// one Transaction envelope whose (TxModule, TxMethod) pair selects a typed
// Args payload — spec §4.3's tagged-union discriminant applied to the
// dispatch surface instead of to a parallel struct hierarchy, since every
// module/method pair here shares the same envelope fields (nonce, sender,
// tip, fee_limit, signature) that varied across the teacher's tx kinds.

package types

import (
	"crypto/ed25519"
	"fmt"
	"math/big"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/encoding"
)

// TxModule is the first half of a transaction's dispatch key.
type TxModule uint8

const (
	ModuleToken TxModule = iota
	ModuleExchange
	ModuleHTLC
	ModuleGovernance
	ModuleLand
	ModuleAdmin
)

// TxMethod is the second half; its meaning is scoped to its TxModule.
type TxMethod uint8

const (
	// token
	MethodTransfer TxMethod = iota
	MethodWithdraw
	// exchange
	MethodPlaceOrder
	MethodCancelOrder
	MethodAmendOrder
	MethodPairConfig
	// htlc
	MethodHTLCCreate
	MethodHTLCClaim
	MethodHTLCRefund
	// governance
	MethodPropose
	MethodVote
	MethodExecute
	MethodCancelProposal
	// land
	MethodStake
	MethodUnstake
	// admin
	MethodAirdrop
	MethodSetGamemaster
)

// Lane is derived from the (module, method) pair, never sender-declared
// (spec §3 "Lane derived from (module, method) table, not sender-declared").
type Lane uint8

const (
	LaneBulk Lane = iota
	LaneCritical
)

// LaneOf implements the fixed (module, method) -> lane table. Governance,
// settlement (HTLC), and admin operations are critical; transfers and
// exchange order flow are bulk.
func LaneOf(module TxModule, method TxMethod) Lane {
	switch module {
	case ModuleGovernance, ModuleAdmin:
		return LaneCritical
	case ModuleHTLC:
		return LaneCritical
	default:
		return LaneBulk
	}
}

// Transaction is the canonical envelope every dispatch method shares.
type Transaction struct {
	Nonce        uint64
	SenderPubKey ed25519.PublicKey // 32 bytes
	Module       TxModule
	Method       TxMethod
	Args         []byte // canonical-encoded Args struct for (Module, Method)
	Tip          *big.Int
	FeeLimit     *big.Int
	Sig          []byte // 64-byte Ed25519 signature, empty while signing

	cachedHash *common.Hash
}

// signingBytes encodes every field except Sig — the tx hash and the
// signature are both computed over this, per spec §4.2 ("Transaction hash
// = digest of canonical tx encoding excluding signature").
func (tx *Transaction) signingBytes() []byte {
	w := encoding.NewWriter()
	w.WriteUint64(tx.Nonce)
	w.WriteFixed(tx.SenderPubKey)
	w.WriteTag(uint8(tx.Module))
	w.WriteTag(uint8(tx.Method))
	w.WriteBytes(tx.Args)
	w.WriteFixed(bigToFixed16(tx.Tip))
	w.WriteFixed(bigToFixed16(tx.FeeLimit))
	return w.Bytes()
}

func (tx *Transaction) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(tx.signingBytes())
	w.WriteBytes(tx.Sig)
}

func (tx *Transaction) UnmarshalCanonical(r *encoding.Reader) error {
	var err error
	if tx.Nonce, err = r.ReadUint64(); err != nil {
		return err
	}
	pub, err := r.ReadFixed(ed25519.PublicKeySize)
	if err != nil {
		return err
	}
	tx.SenderPubKey = ed25519.PublicKey(pub)
	mod, err := r.ReadTag()
	if err != nil {
		return err
	}
	tx.Module = TxModule(mod)
	meth, err := r.ReadTag()
	if err != nil {
		return err
	}
	tx.Method = TxMethod(meth)
	if tx.Args, err = r.ReadBytes(); err != nil {
		return err
	}
	tip, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	tx.Tip = new(big.Int).SetBytes(tip)
	feeLimit, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	tx.FeeLimit = new(big.Int).SetBytes(feeLimit)
	if tx.Sig, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

func bigToFixed16(v *big.Int) []byte {
	var out [16]byte
	if v == nil {
		return out[:]
	}
	b := v.Bytes()
	if len(b) > 16 {
		panic("encoding: u128 value overflows 16 bytes")
	}
	copy(out[16-len(b):], b)
	return out[:]
}

// Hash is the tx hash used as its mempool/receipt key: BLAKE2b-256 over the
// signing bytes (excludes Sig).
func (tx *Transaction) Hash() common.Hash {
	if tx.cachedHash != nil {
		return *tx.cachedHash
	}
	h := crypto.Hash256(tx.signingBytes())
	tx.cachedHash = &h
	return h
}

// Sender recovers the sender's address from SenderPubKey.
func (tx *Transaction) Sender() common.Address {
	return crypto.PubKeyToAddress(tx.SenderPubKey)
}

// Sign computes and sets Sig over the signing bytes.
func (tx *Transaction) Sign(priv ed25519.PrivateKey) {
	tx.Sig = crypto.Sign(priv, tx.signingBytes())
	tx.cachedHash = nil
}

// VerifySignature checks Sig against SenderPubKey and the signing bytes.
func (tx *Transaction) VerifySignature() error {
	if !crypto.Verify(tx.SenderPubKey, tx.signingBytes(), tx.Sig) {
		return fmt.Errorf("types: %w", crypto.ErrInvalidSignature)
	}
	return nil
}

// Lane reports this transaction's mempool lane.
func (tx *Transaction) Lane() Lane {
	return LaneOf(tx.Module, tx.Method)
}
