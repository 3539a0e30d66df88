// Adapted for Vision Node: admin.airdrop/set_gamemaster and
// exchange.pair_config are the admin-key-gated surface SPEC_FULL.md §4.4
// supplements; the AdminAddress sender check is their only gate. Authorization
// itself — comparing the tx sender to cfg.AdminAddress — is the dispatch
// layer's job (dispatch.go), not this file's; these functions assume the
// caller already checked.
package state

import (
	"math/big"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
	"github.com/vision-chain/vision-node/storage/database"
)

var gamemasterKey = []byte("gamemaster")

// Airdrop mints GAME tokens directly to a recipient, bypassing the normal
// balance-conservation invariant the way a protocol-level mint must (spec
// §7's admin surface).
func (sm *StateMachine) Airdrop(to common.Address, amount *big.Int) error {
	return sm.AddBalance(to, common.TokenGAME, amount)
}

// SetGamemaster records a gamemaster address, distinct from the chain
// AdminAddress (spec-named set_gamemaster). Gamemaster reads it back; no
// dispatch path consults it, so it grants no permission: Airdrop stays
// gated on AdminAddress.
func (sm *StateMachine) SetGamemaster(addr common.Address) {
	sm.put(database.TreeTokenomics, gamemasterKey, addr.Bytes())
}

func (sm *StateMachine) Gamemaster() (common.Address, error) {
	raw, err := sm.get(database.TreeTokenomics, gamemasterKey)
	if err == database.ErrKeyNotFound {
		return common.Address{}, nil
	}
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(raw), nil
}

// PairConfig is the admin-set trading parameters for one pair (minimum
// order size, tick size); exchange.pair_config is read-only to everyone but
// the chain admin.
type PairConfig struct {
	MinSize  *big.Int
	TickSize *big.Int
}

func pairConfigTreeKey(base, quote common.Token) []byte {
	return append([]byte("pair_cfg:"), pairKeyRaw(base, quote)...)
}

func pairKeyRaw(base, quote common.Token) []byte {
	return append(append([]byte(base), ':'), []byte(quote)...)
}

func (sm *StateMachine) SetPairConfig(base, quote common.Token, cfg PairConfig) {
	w := encoding.NewWriter()
	w.WriteFixed(bigToFixed16(cfg.MinSize))
	w.WriteFixed(bigToFixed16(cfg.TickSize))
	sm.put(database.TreeTokenomics, pairConfigTreeKey(base, quote), w.Bytes())
}

func (sm *StateMachine) PairConfigFor(base, quote common.Token) (PairConfig, error) {
	raw, err := sm.get(database.TreeTokenomics, pairConfigTreeKey(base, quote))
	if err == database.ErrKeyNotFound {
		return PairConfig{MinSize: big.NewInt(0), TickSize: big.NewInt(1)}, nil
	}
	if err != nil {
		return PairConfig{}, err
	}
	r := encoding.NewReader(raw)
	minSize, err := r.ReadFixed(16)
	if err != nil {
		return PairConfig{}, err
	}
	tick, err := r.ReadFixed(16)
	if err != nil {
		return PairConfig{}, err
	}
	return PairConfig{MinSize: new(big.Int).SetBytes(minSize), TickSize: new(big.Int).SetBytes(tick)}, nil
}
