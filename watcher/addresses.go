package watcher

import (
	"fmt"
	"sync"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/crypto"
)

// AddressBook derives the deposit addresses this node watches and
// resolves an external address string reported by RPC back to the
// account that owns it ("addresses derived from the node's master
// seed", spec §4.8). Deriving the human-readable address string itself
// (Base58Check/Bech32/CashAddr encoding) is the out-of-process
// deposit-address-issuance tool's job; the watcher only needs to
// recognize one, which it does by decoding the string back to its
// 20-byte hash via the same crypto.Decode* functions C2 uses to parse
// withdrawal destinations, and comparing.
type AddressBook struct {
	seed []byte

	mu  sync.RWMutex
	byHash160 map[common.ExternalChain]map[[20]byte]common.Address
}

func NewAddressBook(seed []byte) *AddressBook {
	return &AddressBook{
		seed:      seed,
		byHash160: make(map[common.ExternalChain]map[[20]byte]common.Address),
	}
}

// Derive computes the deterministic hash160 a (chain, recipient, index)
// triple owns and registers it as watched. Calling it twice for the same
// triple returns the same hash160 and is a no-op the second time.
func (b *AddressBook) Derive(chain common.ExternalChain, recipient common.Address, index uint32) [20]byte {
	var idx [4]byte
	idx[0] = byte(index >> 24)
	idx[1] = byte(index >> 16)
	idx[2] = byte(index >> 8)
	idx[3] = byte(index)

	digest := crypto.Hash256(b.seed, []byte(chain), recipient.Bytes(), idx[:])
	var hash160 [20]byte
	copy(hash160[:], digest.Bytes()[:20])

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.byHash160[chain] == nil {
		b.byHash160[chain] = make(map[[20]byte]common.Address)
	}
	b.byHash160[chain][hash160] = recipient
	return hash160
}

// Lookup resolves an already-decoded hash160 to its owning account.
func (b *AddressBook) Lookup(chain common.ExternalChain, hash160 [20]byte) (common.Address, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	addr, ok := b.byHash160[chain][hash160]
	return addr, ok
}

// Recognize decodes an address string as reported by chain's RPC and
// resolves it to a watched recipient. The second return value is false
// (with a nil error) when the address decodes fine but isn't one of
// ours — not every deposit a watch-only wallet reports belongs to this
// node's customers.
func (b *AddressBook) Recognize(chain common.ExternalChain, address string) (common.Address, bool, error) {
	var hash160 [20]byte
	switch chain {
	case common.ChainBTC:
		h, _, err := crypto.DecodeBTCAddress(address)
		if err != nil {
			return common.Address{}, false, err
		}
		hash160 = h
	case common.ChainBCH:
		h, _, err := crypto.DecodeCashAddr(address)
		if err != nil {
			return common.Address{}, false, err
		}
		hash160 = h
	case common.ChainDOGE:
		h, _, err := crypto.DecodeDOGEAddress(address)
		if err != nil {
			return common.Address{}, false, err
		}
		hash160 = h
	default:
		return common.Address{}, false, fmt.Errorf("watcher: unsupported chain %q", chain)
	}
	recipient, ok := b.Lookup(chain, hash160)
	return recipient, ok, nil
}
