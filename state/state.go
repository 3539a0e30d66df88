// Package state implements the State Machine (C4): the deterministic
// apply(prev_state, block) -> (new_state, receipts) function spec §4.4
// names, plus the balance/nonce/vault-bucket accessors every dispatch
// method shares.
//
// Grounded on blockchain/state_transition.go's shape: one struct holding
// the mutable transition context, one entry point returning receipts.
// The teacher's version holds an *evm.EVM and a vm.StateDB because its
// transitions run bytecode against a Merkle-Patricia state trie; neither
// exists here (no Turing-complete contracts, no state trie — balances and
// nonces live directly in storage.Store trees), so StateMachine holds a
// *database.Store and params.ChainConfig instead.
package state

import (
	"math/big"
	"time"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/params"
	"github.com/vision-chain/vision-node/storage/database"
	"github.com/vision-chain/vision-node/types"
)

// StateMachine owns the mutable transition context for one apply() call.
// It is not safe for concurrent use; the chain engine (C6) serializes
// access via its single chain thread (spec §5).
type StateMachine struct {
	store *database.Store
	cfg   *params.ChainConfig

	// now returns the wall-clock time Apply checks a header's timestamp
	// against (spec §8's future-skew boundary). Defaults to time.Now;
	// overridable via SetClock so tests can pin "now" instead of racing
	// the real clock.
	now func() time.Time

	// batch accumulates every write this transition produces; Apply does
	// not write it, Commit (run by the chain engine after a successful
	// Apply) writes it as one AtomicBatch, so a rejected block (or
	// a crash mid-transition) never leaves partial state (spec §4.1 "every
	// block-commit is one batch").
	batch []database.WriteOp

	// pending mirrors in-flight writes so later reads within the same
	// Apply call see this block's own effects before the batch commits.
	pending map[string][]byte
	deleted map[string]bool
}

func New(store *database.Store, cfg *params.ChainConfig) *StateMachine {
	return &StateMachine{
		store:   store,
		cfg:     cfg,
		now:     time.Now,
		pending: make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// SetClock overrides the wall clock Apply checks header timestamps
// against. Intended for tests exercising the future-skew boundary.
func (sm *StateMachine) SetClock(now func() time.Time) {
	sm.now = now
}

func pendingKey(tree database.Tree, key []byte) string {
	return string(tree) + ":" + string(key)
}

func (sm *StateMachine) get(tree database.Tree, key []byte) ([]byte, error) {
	pk := pendingKey(tree, key)
	if sm.deleted[pk] {
		return nil, database.ErrKeyNotFound
	}
	if v, ok := sm.pending[pk]; ok {
		return v, nil
	}
	return sm.store.Tree(tree).Get(key)
}

func (sm *StateMachine) put(tree database.Tree, key, value []byte) {
	pk := pendingKey(tree, key)
	sm.pending[pk] = value
	delete(sm.deleted, pk)
	sm.batch = append(sm.batch, database.WriteOp{Tree: tree, Key: key, Value: value})
}

func (sm *StateMachine) del(tree database.Tree, key []byte) {
	pk := pendingKey(tree, key)
	sm.deleted[pk] = true
	delete(sm.pending, pk)
	sm.batch = append(sm.batch, database.WriteOp{Tree: tree, Key: key, Delete: true})
}

// Commit flushes every write this transition produced in one atomic batch.
func (sm *StateMachine) Commit() error {
	if len(sm.batch) == 0 {
		return nil
	}
	if err := sm.store.AtomicBatch(sm.batch); err != nil {
		return err
	}
	sm.batch = nil
	sm.pending = make(map[string][]byte)
	sm.deleted = make(map[string]bool)
	return nil
}

// Discard drops every uncommitted write; used when a block fails
// validation partway through apply().
func (sm *StateMachine) Discard() {
	sm.batch = nil
	sm.pending = make(map[string][]byte)
	sm.deleted = make(map[string]bool)
}

func balanceKey(addr common.Address, token common.Token) []byte {
	return append(append([]byte(nil), addr.Bytes()...), []byte(token)...)
}

// Balance returns the current balance of (addr, token), zero if unset.
func (sm *StateMachine) Balance(addr common.Address, token common.Token) (*big.Int, error) {
	raw, err := sm.get(database.TreeBalances, balanceKey(addr, token))
	if err == database.ErrKeyNotFound {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return types.DecodeBalance(raw)
}

func (sm *StateMachine) SetBalance(addr common.Address, token common.Token, amount *big.Int) {
	sm.put(database.TreeBalances, balanceKey(addr, token), types.EncodeBalance(amount))
}

// AddBalance credits amount (which may be negative to debit) to (addr,
// token); returns ErrNegativeBalance if the result would go negative
// (spec §3 "No balance may transiently go negative").
func (sm *StateMachine) AddBalance(addr common.Address, token common.Token, delta *big.Int) error {
	bal, err := sm.Balance(addr, token)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(bal, delta)
	if next.Sign() < 0 {
		return ErrNegativeBalance
	}
	sm.SetBalance(addr, token, next)
	return nil
}

// Transfer atomically debits from and credits to the same token; it never
// leaves only one side applied.
func (sm *StateMachine) Transfer(from, to common.Address, token common.Token, amount *big.Int) error {
	if err := sm.AddBalance(from, token, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	return sm.AddBalance(to, token, amount)
}

func nonceKey(addr common.Address) []byte { return addr.Bytes() }

func (sm *StateMachine) Nonce(addr common.Address) (uint64, error) {
	raw, err := sm.get(database.TreeNonces, nonceKey(addr))
	if err == database.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return types.DecodeNonce(raw)
}

func (sm *StateMachine) SetNonce(addr common.Address, nonce uint64) {
	sm.put(database.TreeNonces, nonceKey(addr), types.EncodeNonce(nonce))
}

// vault buckets are tracked as ordinary (bucket-address, token) balances
// under a synthetic address namespace, keeping one accessor surface for
// every token-holding entity instead of a parallel bucket ledger.
func vaultAddress(bucket types.VaultBucket) common.Address {
	return common.BytesToAddress(append([]byte("vault:"), []byte(bucket)...))
}

func (sm *StateMachine) VaultBalance(bucket types.VaultBucket, token common.Token) (*big.Int, error) {
	return sm.Balance(vaultAddress(bucket), token)
}

func (sm *StateMachine) CreditVault(bucket types.VaultBucket, token common.Token, amount *big.Int) error {
	return sm.AddBalance(vaultAddress(bucket), token, amount)
}

func (sm *StateMachine) DebitVault(bucket types.VaultBucket, token common.Token, amount *big.Int) error {
	return sm.AddBalance(vaultAddress(bucket), token, new(big.Int).Neg(amount))
}
