package watcher

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/log"
)

// Watcher is one independent task per external chain, suspended on HTTP
// RPC calls between polls and never on the chain thread — "Deposit
// watchers are independent tasks per external chain, emitting events
// into an MPSC channel drained by the chain thread at block-apply time"
// (spec §5).
type Watcher interface {
	Chain() common.ExternalChain
	Run(ctx context.Context)
}

// PollConfig is one watcher's tunables. Spec §4.8 only names "poll
// remote full-nodes"; endpoint and cadence are a deployment's choice.
type PollConfig struct {
	Chain        common.ExternalChain
	RPCURL       string
	RPCUser      string
	RPCPass      string
	PollInterval time.Duration
}

// RPCWatcher is the concrete Watcher: it polls one bitcoind-family node
// via listsinceblock, resolves every reported deposit against an
// AddressBook, and publishes a DepositEvent for each one this node
// recognizes as its own.
type RPCWatcher struct {
	cfg    PollConfig
	rpc    *ChainRPC
	book   *AddressBook
	broker Broker
	log    log.Logger

	lastBlockHash string
}

func NewRPCWatcher(cfg PollConfig, book *AddressBook, broker Broker) *RPCWatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &RPCWatcher{
		cfg:    cfg,
		rpc:    NewChainRPC(cfg.RPCURL, cfg.RPCUser, cfg.RPCPass),
		book:   book,
		broker: broker,
		log:    log.NewModuleLogger(log.ModuleWatcher).With("chain", string(cfg.Chain)),
	}
}

func (w *RPCWatcher) Chain() common.ExternalChain { return w.cfg.Chain }

// Run polls until ctx is cancelled. A failed round is logged and
// retried on the next tick rather than aborting the watcher — a
// temporarily unreachable full node shouldn't take the whole bridge
// down.
func (w *RPCWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := w.pollOnce(ctx); err != nil {
			w.log.Warn("poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce is one listsinceblock round: every reported receive against
// one of our watched addresses becomes a DepositEvent, published
// regardless of whether it's the first sighting or a re-sighting with
// more confirmations — the Bridge, not the watcher, decides when a
// sighting is done moving.
func (w *RPCWatcher) pollOnce(ctx context.Context) error {
	txs, newLast, err := w.rpc.ListSinceBlock(ctx, w.lastBlockHash)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		if tx.Category != "receive" {
			continue
		}
		recipient, ok, err := w.book.Recognize(w.cfg.Chain, tx.Address)
		if err != nil {
			w.log.Debug("unrecognized address encoding", "address", tx.Address, "err", err)
			continue
		}
		if !ok {
			continue
		}
		txid, err := hashFromHex(tx.TxID)
		if err != nil {
			w.log.Warn("bad txid from remote node", "txid", tx.TxID, "err", err)
			continue
		}
		ev := DepositEvent{
			Chain:         w.cfg.Chain,
			TxID:          txid,
			Vout:          tx.Vout,
			Address:       tx.Address,
			Recipient:     recipient,
			Amount:        satoshis(tx.Amount),
			Confirmations: tx.Confirmations,
			BlockHeight:   tx.BlockHeight,
			SeenAt:        time.Now(),
		}
		if err := w.broker.Publish(ev); err != nil {
			w.log.Warn("failed to publish deposit event", "err", err)
		}
	}
	w.lastBlockHash = newLast
	return nil
}

func hashFromHex(s string) (common.Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("watcher: txid %q has %d bytes, want %d", s, len(b), common.HashLength)
	}
	return common.BytesToHash(b), nil
}

// satoshis converts a bitcoind-family RPC amount (a decimal coin count)
// to the smallest-unit integer IOU balances are kept in; every chain
// this bridge watches uses 8 decimal places.
func satoshis(amount float64) uint64 {
	if amount < 0 {
		return 0
	}
	return uint64(amount*1e8 + 0.5)
}
