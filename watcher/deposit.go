// Package watcher implements the deposit watcher bridge (spec §4.8):
// one polling task per external chain (BTC, BCH, DOGE) observes deposits
// to addresses this node derived from its own master seed, and a Bridge
// buffers those sightings until they clear their chain's confirmation
// depth, at which point the chain thread drains them into the state
// machine's block-apply step (state.PendingDeposit, step 6).
//
// Grounded on datasync/chaindatafetcher's Repository/EventBroker split:
// watchers only publish; something else (here, the Bridge) consumes and
// checkpoints, mirroring chaindata_fetcher.go's reqCh/chainCh pair and
// kafka/repository.go's thin Repository-over-broker.Publish shape.
package watcher

import (
	"time"

	"github.com/vision-chain/vision-node/common"
)

// DepositEvent is one sighting of a deposit to a watched address, as
// reported by an external chain's full node. A watcher republishes the
// same (Chain, TxID, Vout) on every poll with an updated Confirmations
// count until the Bridge drains it; the event itself carries no state
// beyond what was observed this round.
type DepositEvent struct {
	Chain         common.ExternalChain
	TxID          common.Hash
	Vout          uint32
	Address       string
	Recipient     common.Address
	Amount        uint64 // smallest unit of Chain.Token()
	Confirmations uint64
	BlockHeight   uint64
	SeenAt        time.Time
}
