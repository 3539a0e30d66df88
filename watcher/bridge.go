package watcher

import (
	"context"
	"sync"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/log"
	"github.com/vision-chain/vision-node/state"
	"github.com/vision-chain/vision-node/types"
)

type depositKey struct {
	chain common.ExternalChain
	txid  common.Hash
	vout  uint32
}

func keyOf(ev DepositEvent) depositKey {
	return depositKey{chain: ev.Chain, txid: ev.TxID, vout: ev.Vout}
}

// Bridge buffers every chain's DepositEvents and exposes the pull-based
// drain_confirmed spec §4.8 names: the chain thread calls DrainConfirmed
// once per block-apply step rather than being pushed events mid-apply,
// keeping the state transition itself a pure function of (prior state,
// block, these deposits) as §4.4 requires.
type Bridge struct {
	mu      sync.Mutex
	pending map[depositKey]DepositEvent
	log     log.Logger
}

func NewBridge() *Bridge {
	return &Bridge{
		pending: make(map[depositKey]DepositEvent),
		log:     log.NewModuleLogger(log.ModuleWatcher).With("component", "bridge"),
	}
}

// Consume drains one Broker's Subscribe channel until ctx is cancelled
// or the channel closes, folding each sighting into the pending buffer.
// Run one Consume per watched chain's broker.
func (b *Bridge) Consume(ctx context.Context, broker Broker) {
	sub := broker.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			b.ingest(ev)
		}
	}
}

// ingest folds one sighting into the buffer. A later sighting of the
// same (chain, txid, vout) replaces the earlier one only if it reports
// at least as many confirmations — confirmation counts never regress
// on a stable chain, so a lower count means a stale or reordered poll
// result, not new information.
func (b *Bridge) ingest(ev DepositEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := keyOf(ev)
	if existing, ok := b.pending[k]; ok && existing.Confirmations > ev.Confirmations {
		return
	}
	b.pending[k] = ev
}

// DrainConfirmed returns, and removes from the buffer, every pending
// deposit that has reached its chain's required confirmation depth —
// spec §4.8's drain_confirmed(min_conf_by_chain) -> Vec<DepositEvent>.
// A chain absent from minConfByChain falls back to its own
// ExternalChain.MinConfirmations().
func (b *Bridge) DrainConfirmed(minConfByChain map[common.ExternalChain]uint64) []DepositEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []DepositEvent
	for k, ev := range b.pending {
		min, ok := minConfByChain[ev.Chain]
		if !ok {
			min = ev.Chain.MinConfirmations()
		}
		if ev.Confirmations >= min {
			out = append(out, ev)
			delete(b.pending, k)
		}
	}
	return out
}

// Pending reports how many sightings are buffered but not yet
// confirmed, for operational metrics.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// ToPendingDeposits converts drained sightings into the state machine's
// block-apply input (spec §4.4 step 6). It does not perform the
// idempotency check or the balance credit itself — that's
// StateMachine.Apply's job, keyed on the external_deposits tree — this
// is purely a shape adapter so the watcher package never duplicates
// crediting logic that already lives in the state package.
func ToPendingDeposits(events []DepositEvent) []state.PendingDeposit {
	deposits := make([]state.PendingDeposit, len(events))
	for i, ev := range events {
		deposits[i] = state.PendingDeposit{Credit: &types.DepositCredit{
			Key: types.DepositKey{
				Chain: ev.Chain,
				TxID:  ev.TxID,
				Vout:  ev.Vout,
			},
			Recipient:     ev.Recipient,
			Amount:        ev.Amount,
			Confirmations: ev.Confirmations,
			Status:        types.DepositConfirmed,
		}}
	}
	return deposits
}
