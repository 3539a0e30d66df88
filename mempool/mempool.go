// Package mempool implements the Mempool (C5): two lane-scoped queues
// admitting, prioritizing, and evicting transactions ahead of block
// assembly (spec §4.5).
//
// Grounded on the teacher's node/sc/bridge_tx_pool.go: a mutex-guarded
// pool with an `all map[common.Hash]*types.Transaction` by-hash index for
// idempotent duplicate handling, sized via a config struct the way
// BridgeTxPoolConfig sizes its queue. The teacher's per-sender
// bridgeTxSortedMap (itself not present in the retrieval pack, referenced
// but not defined) is replaced here with a plain slice sorted on read:
// at this pool's scale (CriticalLaneCap/BulkLaneCap in the low tens of
// thousands) a sort-on-select is equivalent to a maintained heap and
// needs no separate invariant to keep correct across admit/evict/gc,
// standard library only (container/heap gives no capability a sort.Slice
// doesn't at this scale, so reaching for it would only add bookkeeping).
package mempool

import (
	"math/big"
	"sort"
	"sync"

	"github.com/rcrowley/go-metrics"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
	"github.com/vision-chain/vision-node/params"
	"github.com/vision-chain/vision-node/types"
)

// StateReader is the minimal state surface admission needs: the sender's
// current on-chain nonce and balance. Satisfied by *state.StateMachine
// without this package importing state (which would create an import
// cycle, since state's C4 tests have no need of a mempool).
type StateReader interface {
	Nonce(addr common.Address) (uint64, error)
	Balance(addr common.Address, token common.Token) (*big.Int, error)
}

// RejectReason tags why admit() refused a transaction (spec §4.5
// "Accepted / Rejected(reason)").
type RejectReason uint8

const (
	ReasonNone RejectReason = iota
	ReasonBadSignature
	ReasonNonceTooLow
	ReasonNonceTooHigh
	ReasonFeeLimitTooLow
	ReasonInsufficientBalance
	ReasonLaneFull
)

// Outcome is admit()'s result: either Accepted (Hash is the tx's hash,
// identical for a duplicate re-submission) or rejected with a reason.
type Outcome struct {
	Accepted bool
	Hash     common.Hash
	Reason   RejectReason
}

type entry struct {
	tx         *types.Transaction
	size       int
	admittedAt uint64 // height at admission, for gc's max_age_blocks
	seq        uint64 // monotonic arrival order, priority tie-break
}

// lane is one FIFO-with-priority queue: entries ordered by
// (tip_per_byte desc, arrival asc) per spec §4.5.
type lane struct {
	cap     int
	entries []*entry
}

func (l *lane) sorted() []*entry {
	out := append([]*entry(nil), l.entries...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		// a.tip/a.size vs b.tip/b.size, descending, compared by cross
		// multiplication so no float division ever enters a consensus-
		// adjacent ordering decision.
		lhs := new(big.Int).Mul(a.tx.Tip, big.NewInt(int64(b.size)))
		rhs := new(big.Int).Mul(b.tx.Tip, big.NewInt(int64(a.size)))
		if cmp := lhs.Cmp(rhs); cmp != 0 {
			return cmp > 0
		}
		return a.seq < b.seq
	})
	return out
}

func (l *lane) removeByHash(hash common.Hash) {
	for i, e := range l.entries {
		if e.tx.Hash() == hash {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

// Pool is the whole Mempool: admission, lane accounting, block selection,
// post-block cleanup, and aging eviction (spec §4.5's five operations).
type Pool struct {
	mu    sync.Mutex
	cfg   *params.ChainConfig
	state StateReader

	critical *lane
	bulk     *lane
	byHash   map[common.Hash]*entry
	nextSeq  uint64

	acceptedCounter metrics.Counter
	rejectedCounter metrics.Counter
}

func New(cfg *params.ChainConfig, state StateReader) *Pool {
	return &Pool{
		cfg:             cfg,
		state:           state,
		critical:        &lane{cap: cfg.CriticalLaneCap},
		bulk:            &lane{cap: cfg.BulkLaneCap},
		byHash:          make(map[common.Hash]*entry),
		acceptedCounter: metrics.NewRegisteredCounter("mempool/accepted", nil),
		rejectedCounter: metrics.NewRegisteredCounter("mempool/rejected", nil),
	}
}

func (p *Pool) laneFor(tx *types.Transaction) *lane {
	if tx.Lane() == types.LaneCritical {
		return p.critical
	}
	return p.bulk
}

// Admit runs spec §4.5's admission rules: valid signature, nonce in
// [sender_nonce, sender_nonce+mempool_depth], fee_limit >= min_fee,
// sender balance >= the worst-case LAND debit (the fee_limit — the only
// debit admission can verify without simulating dispatch), and lane
// capacity. A tx already in the pool is accepted idempotently.
func (p *Pool) Admit(tx *types.Transaction, height uint64) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := tx.Hash()
	if _, ok := p.byHash[hash]; ok {
		return Outcome{Accepted: true, Hash: hash}
	}

	if err := tx.VerifySignature(); err != nil {
		p.rejectedCounter.Inc(1)
		return Outcome{Hash: hash, Reason: ReasonBadSignature}
	}

	sender := tx.Sender()
	nonce, err := p.state.Nonce(sender)
	if err != nil {
		p.rejectedCounter.Inc(1)
		return Outcome{Hash: hash, Reason: ReasonNonceTooLow}
	}
	if tx.Nonce < nonce {
		p.rejectedCounter.Inc(1)
		return Outcome{Hash: hash, Reason: ReasonNonceTooLow}
	}
	if tx.Nonce > nonce+p.cfg.MempoolDepth {
		p.rejectedCounter.Inc(1)
		return Outcome{Hash: hash, Reason: ReasonNonceTooHigh}
	}

	if tx.FeeLimit.Cmp(new(big.Int).SetUint64(p.cfg.MinFee)) < 0 {
		p.rejectedCounter.Inc(1)
		return Outcome{Hash: hash, Reason: ReasonFeeLimitTooLow}
	}

	bal, err := p.state.Balance(sender, common.TokenLAND)
	if err != nil || bal.Cmp(tx.FeeLimit) < 0 {
		p.rejectedCounter.Inc(1)
		return Outcome{Hash: hash, Reason: ReasonInsufficientBalance}
	}

	ln := p.laneFor(tx)
	if len(ln.entries) >= ln.cap {
		p.rejectedCounter.Inc(1)
		return Outcome{Hash: hash, Reason: ReasonLaneFull}
	}

	e := &entry{tx: tx, size: len(encoding.Encode(tx)), admittedAt: height, seq: p.nextSeq}
	p.nextSeq++
	ln.entries = append(ln.entries, e)
	p.byHash[hash] = e
	p.acceptedCounter.Inc(1)
	return Outcome{Accepted: true, Hash: hash}
}

// SelectForBlock returns transactions for the next block: the critical
// lane fully exhausted by priority order before the bulk lane, bounded
// by maxCount and the cumulative encoded size maxSizeBytes.
func (p *Pool) SelectForBlock(maxSizeBytes, maxCount int) []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*types.Transaction
	size := 0
	for _, ln := range []*lane{p.critical, p.bulk} {
		for _, e := range ln.sorted() {
			if len(out) >= maxCount {
				return out
			}
			if size+e.size > maxSizeBytes {
				continue
			}
			out = append(out, e.tx)
			size += e.size
		}
	}
	return out
}

// OnBlockApplied removes every included transaction and, for each sender
// touched by the block, evicts now-stale pooled transactions whose nonce
// has fallen behind the sender's new on-chain nonce (spec §4.5
// "removes included and invalidated").
func (p *Pool) OnBlockApplied(block *types.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()

	touched := make(map[common.Address]bool)
	for _, tx := range block.Txs {
		hash := tx.Hash()
		if _, ok := p.byHash[hash]; ok {
			p.critical.removeByHash(hash)
			p.bulk.removeByHash(hash)
			delete(p.byHash, hash)
		}
		touched[tx.Sender()] = true
	}

	for sender := range touched {
		nonce, err := p.state.Nonce(sender)
		if err != nil {
			continue
		}
		p.evictStaleNonces(sender, nonce)
	}
}

func (p *Pool) evictStaleNonces(sender common.Address, nonce uint64) {
	for _, ln := range []*lane{p.critical, p.bulk} {
		kept := ln.entries[:0:0]
		for _, e := range ln.entries {
			if e.tx.Sender() == sender && e.tx.Nonce < nonce {
				delete(p.byHash, e.tx.Hash())
				continue
			}
			kept = append(kept, e)
		}
		ln.entries = kept
	}
}

// GC evicts transactions aged past max_age_blocks or whose fee_limit has
// fallen below the current min_fee floor (spec §4.5 "gc(now)").
func (p *Pool) GC(now uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	minFee := new(big.Int).SetUint64(p.cfg.MinFee)
	for _, ln := range []*lane{p.critical, p.bulk} {
		kept := ln.entries[:0:0]
		for _, e := range ln.entries {
			aged := now > e.admittedAt && now-e.admittedAt > p.cfg.MaxAgeBlocks
			belowFloor := e.tx.FeeLimit.Cmp(minFee) < 0
			if aged || belowFloor {
				delete(p.byHash, e.tx.Hash())
				continue
			}
			kept = append(kept, e)
		}
		ln.entries = kept
	}
}

// Len reports the number of pooled transactions per lane, for metrics
// and tests.
func (p *Pool) Len() (critical, bulk int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.critical.entries), len(p.bulk.entries)
}

// Has reports whether hash is currently pooled.
func (p *Pool) Has(hash common.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byHash[hash]
	return ok
}

// Get returns the pooled transaction for hash, for the P2P layer's
// GetTx/Tx request-response path.
func (p *Pool) Get(hash common.Hash) (*types.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byHash[hash]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// GetByShortID scans the pool for a transaction whose hash's first 8 bytes
// equal id, for compact-block reconstruction (spec §4.7): the announcer
// identifies each tx by short id rather than resending it in full, and the
// receiver fills in whatever it already has pooled. A linear scan is
// adequate here since it only runs once per accepted announcement and the
// pool is bounded by CriticalLaneCap+BulkLaneCap.
func (p *Pool) GetByShortID(id [8]byte) (*types.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for hash, e := range p.byHash {
		if [8]byte(hash[:8]) == id {
			return e.tx, true
		}
	}
	return nil, false
}
