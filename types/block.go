// Package types holds Vision Node's Data Model (spec §3/§4.3): Block,
// Transaction, Receipt, Order/Orderbook, HTLC, and Vault Buckets, each
// implementing encoding.Marshaler/Unmarshaler so their hash is bit-exact
// across peers.
//
// Grounded on the shape of the teacher's blockchain/types package — one
// struct per domain object, a TxSignatures-style embedded signature block,
// and a cached *common.Hash field recomputed lazily — generalized from
// Klaytn's bytecode/account-creation transaction zoo to this chain's fixed
// (module, method) dispatch table (tx_internal_data_value_transfer.go's
// shape is the closest analog kept).
package types

import (
	"math/big"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/encoding"
)

// Difficulty is a 128-bit unsigned compact target, stored big-endian.
type Difficulty [16]byte

func (d Difficulty) BigInt() *big.Int {
	return new(big.Int).SetBytes(d[:])
}

func DifficultyFromBigInt(v *big.Int) Difficulty {
	var d Difficulty
	b := v.Bytes()
	copy(d[16-len(b):], b)
	return d
}

// Header is the block's consensus-critical envelope; the PoW hash is
// derived (crypto.Scratchpad.PowHash over PowPreimage and Nonce), never
// stored in the canonical encoding (spec §3's "pow_hash (derived)").
type Header struct {
	Height       uint64
	ParentHash   common.Hash
	Timestamp    uint64
	Difficulty   Difficulty
	Nonce        uint64
	TxRoot       common.Hash
	ReceiptsRoot common.Hash
	StateRoot    common.Hash // optional checkpoint root; zero when unset
	MinerAddress common.Address
	Extra        []byte
}

func (h *Header) MarshalCanonical(w *encoding.Writer) {
	w.WriteUint64(h.Height)
	w.WriteFixed(h.ParentHash.Bytes())
	w.WriteUint64(h.Timestamp)
	w.WriteFixed(h.Difficulty[:])
	w.WriteUint64(h.Nonce)
	w.WriteFixed(h.TxRoot.Bytes())
	w.WriteFixed(h.ReceiptsRoot.Bytes())
	w.WriteFixed(h.StateRoot.Bytes())
	w.WriteFixed(h.MinerAddress.Bytes())
	w.WriteBytes(h.Extra)
}

func (h *Header) UnmarshalCanonical(r *encoding.Reader) error {
	var err error
	if h.Height, err = r.ReadUint64(); err != nil {
		return err
	}
	parent, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	h.ParentHash = common.BytesToHash(parent)
	if h.Timestamp, err = r.ReadUint64(); err != nil {
		return err
	}
	diff, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	copy(h.Difficulty[:], diff)
	if h.Nonce, err = r.ReadUint64(); err != nil {
		return err
	}
	txRoot, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	h.TxRoot = common.BytesToHash(txRoot)
	receiptsRoot, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	h.ReceiptsRoot = common.BytesToHash(receiptsRoot)
	stateRoot, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	h.StateRoot = common.BytesToHash(stateRoot)
	miner, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	h.MinerAddress = common.BytesToAddress(miner)
	if h.Extra, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// Hash returns the block hash: BLAKE2b-256 over the canonical header
// encoding (spec §4.2 — pow_hash is a separate, derived quantity computed
// by crypto.Scratchpad.PowHash over PowPreimage's bytes, the header
// without Nonce, plus the nonce).
func (h *Header) Hash() common.Hash {
	return crypto.Hash256(encoding.Encode(h))
}

// PowPreimage encodes every header field except Nonce, the input
// crypto.Scratchpad.PowHash combines with a candidate nonce during mining
// and validation — kept separate from Hash so the PoW digest and the block
// hash are never accidentally computed over the same bytes twice.
func (h *Header) PowPreimage() []byte {
	w := encoding.NewWriter()
	w.WriteUint64(h.Height)
	w.WriteFixed(h.ParentHash.Bytes())
	w.WriteUint64(h.Timestamp)
	w.WriteFixed(h.Difficulty[:])
	w.WriteFixed(h.TxRoot.Bytes())
	w.WriteFixed(h.ReceiptsRoot.Bytes())
	w.WriteFixed(h.StateRoot.Bytes())
	w.WriteFixed(h.MinerAddress.Bytes())
	w.WriteBytes(h.Extra)
	return w.Bytes()
}

// Block pairs a Header with its ordered transaction list. Chain-unique by
// (height, pow_hash) per spec §3.
type Block struct {
	Header Header
	Txs    []*Transaction
}

func (b *Block) MarshalCanonical(w *encoding.Writer) {
	b.Header.MarshalCanonical(w)
	w.WriteUint32(uint32(len(b.Txs)))
	for _, tx := range b.Txs {
		txBytes := encoding.Encode(tx)
		w.WriteBytes(txBytes)
	}
}

func (b *Block) UnmarshalCanonical(r *encoding.Reader) error {
	if err := b.Header.UnmarshalCanonical(r); err != nil {
		return err
	}
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	b.Txs = make([]*Transaction, n)
	for i := range b.Txs {
		raw, err := r.ReadBytes()
		if err != nil {
			return err
		}
		tx := &Transaction{}
		if err := encoding.Decode(raw, tx); err != nil {
			return err
		}
		b.Txs[i] = tx
	}
	return nil
}

func (b *Block) Hash() common.Hash { return b.Header.Hash() }

// TxRoot computes the merkle root over the block's transaction hashes,
// grounded on crypto.MerkleRoot (duplicate-last-leaf-on-odd-count rule,
// spec §4.2).
func (b *Block) TxRoot() common.Hash {
	leaves := make([]common.Hash, len(b.Txs))
	for i, tx := range b.Txs {
		leaves[i] = tx.Hash()
	}
	return crypto.MerkleRoot(leaves)
}
