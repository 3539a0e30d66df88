// Adapted for Vision Node: the teacher's blockchain/state package models
// one EVM-style account (balance + code + storage trie) per address; this
// chain has no contract storage, so the account surface collapses to the
// per-(address, token) balance map and per-address nonce spec §3 names.
// Kept the teacher's idiom of small value types with their own canonical
// codec rather than a single monolithic "Account" struct, since balances
// are looked up by (address, token) pair directly against the storage
// tree, not loaded as one blob per address.
package types

import (
	"math/big"

	"github.com/vision-chain/vision-node/encoding"
)

// Balance wraps the u128 balance stored for one (address, token) key.
type Balance struct {
	Amount *big.Int
}

func (b *Balance) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(bigToFixed16(b.Amount))
}

func (b *Balance) UnmarshalCanonical(r *encoding.Reader) error {
	raw, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	b.Amount = new(big.Int).SetBytes(raw)
	return nil
}

// EncodeBalance/DecodeBalance are thin convenience wrappers matching the
// storage tree's []byte values (spec §4.1 "balances ((addr, token) ->
// u128 LE)" — stored big-endian here, consistent with the rest of the
// canonical encoding; byte order is an implementation choice internal to
// storage values, not observed by peers).
func EncodeBalance(amount *big.Int) []byte {
	return encoding.Encode(&Balance{Amount: amount})
}

func DecodeBalance(b []byte) (*big.Int, error) {
	bal := &Balance{}
	if err := encoding.Decode(b, bal); err != nil {
		return nil, err
	}
	return bal.Amount, nil
}

// EncodeNonce/DecodeNonce store the per-address replay-protection counter.
func EncodeNonce(nonce uint64) []byte {
	w := encoding.NewWriter()
	w.WriteUint64(nonce)
	return w.Bytes()
}

func DecodeNonce(b []byte) (uint64, error) {
	return encoding.NewReader(b).ReadUint64()
}
