package p2p

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
	"github.com/vision-chain/vision-node/log"
	"github.com/vision-chain/vision-node/types"
)

const (
	maxKnownTxs    = 32768
	maxKnownBlocks = 1024

	handshakeTimeout = 10 * time.Second
)

// propEvent is a newly accepted block queued for announcement, mirroring
// the teacher's node/cn/peer.go propEvent.
type propEvent struct {
	block *types.Block
}

// Peer is one connected node: a framed connection plus the per-peer state
// spec §4.7 tracks in its peer registry (url/last_seen/score/
// handshake_version/network_id) and the known-block/known-tx de-dup sets
// that keep gossip from re-sending what a peer already has.
//
// Grounded on the teacher's node/cn/peer.go basePeer: the same mutex-guarded
// head/queued-channel/term shape, generalized from klaytn's devp2p
// transport to this chain's own frameReadWriter, and using common.Cache's
// hash-keyed LRU for the known-block/known-tx de-dup sets.
type Peer struct {
	id   string
	addr string // remote dial/listen address, for reconnection and logging
	conn *frameReadWriter

	log log.Logger

	mu          sync.RWMutex
	head        common.Hash
	headHeight  uint64
	version     uint32
	networkID   uint64
	nodeTag     string
	lastSeen    time.Time

	knownBlocks common.Cache
	knownTxs    common.Cache

	queuedTxs   chan []*types.Transaction
	queuedProps chan *propEvent
	queuedAnns  chan *types.Block

	term chan struct{}
	once sync.Once
}

func newPeer(id, addr string, conn net.Conn) (*Peer, error) {
	knownBlocks, err := common.NewHashCache(maxKnownBlocks)
	if err != nil {
		return nil, err
	}
	knownTxs, err := common.NewHashCache(maxKnownTxs)
	if err != nil {
		return nil, err
	}
	p := &Peer{
		id:          id,
		addr:        addr,
		conn:        newFrameReadWriter(conn),
		log:         log.NewModuleLogger(log.ModuleP2P).With("peer", id),
		knownBlocks: knownBlocks,
		knownTxs:    knownTxs,
		queuedTxs:   make(chan []*types.Transaction, 128),
		queuedProps: make(chan *propEvent, 16),
		queuedAnns:  make(chan *types.Block, 16),
		term:        make(chan struct{}),
		lastSeen:    time.Now(),
	}
	return p, nil
}

// ID is the peer's identifier within this node: Server assigns "in-N" to
// inbound and "out-<addr>" to outbound connections; tests use arbitrary
// strings.
func (p *Peer) ID() string { return p.id }

func (p *Peer) Addr() string { return p.addr }

// Head returns the peer's last-announced best hash/height.
func (p *Peer) Head() (common.Hash, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.head, p.headHeight
}

func (p *Peer) SetHead(hash common.Hash, height uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.head = hash
	p.headHeight = height
	p.lastSeen = time.Now()
}

func (p *Peer) NetworkID() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.networkID
}

func (p *Peer) Version() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

func (p *Peer) LastSeen() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeen
}

func (p *Peer) touch() {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

// Handshake performs the bidirectional Hello exchange spec §4.7 requires
// before any other message is processed: "On connect, peers exchange
// (version, network_id, best_height, best_hash, node_tag)". ticket is
// presented to admission-gated peers; pass nil when none is configured.
func (p *Peer) Handshake(networkID uint64, bestHeight uint64, bestHash common.Hash, nodeTag string, ticket []byte) error {
	outgoing := &HelloData{
		Version:    ProtocolVersion,
		NetworkID:  networkID,
		BestHeight: bestHeight,
		BestHash:   bestHash,
		NodeTag:    nodeTag,
		Ticket:     ticket,
	}

	errc := make(chan error, 2)
	var theirs HelloData
	go func() { errc <- p.conn.WriteMsg(HelloMsg, encoding.Encode(outgoing)) }()
	go func() {
		m, err := p.conn.ReadMsg(handshakeTimeout)
		if err != nil {
			errc <- err
			return
		}
		if m.Code != HelloMsg {
			errc <- newPeerError(ErrNoHelloMsg, "got code %d", m.Code)
			return
		}
		errc <- encoding.Decode(m.Payload, &theirs)
	}()
	for i := 0; i < 2; i++ {
		if err := <-errc; err != nil {
			return err
		}
	}

	if theirs.Version != ProtocolVersion {
		return newPeerError(ErrProtocolVersionMismatch, "peer speaks %d, want %d", theirs.Version, ProtocolVersion)
	}
	if theirs.NetworkID != networkID {
		return newPeerError(ErrNetworkIDMismatch, "peer network %d, want %d", theirs.NetworkID, networkID)
	}

	p.mu.Lock()
	p.version = theirs.Version
	p.networkID = theirs.NetworkID
	p.head = theirs.BestHash
	p.headHeight = theirs.BestHeight
	p.nodeTag = theirs.NodeTag
	p.lastSeen = time.Now()
	p.mu.Unlock()
	return nil
}

// KnowsBlock/KnowsTx report whether this peer has already seen a given
// hash, so the broadcast path doesn't re-send what it sent (or received)
// before.
func (p *Peer) KnowsBlock(hash common.Hash) bool { return p.knownBlocks.Contains(hash) }
func (p *Peer) KnowsTx(hash common.Hash) bool    { return p.knownTxs.Contains(hash) }

func (p *Peer) AddToKnownBlocks(hash common.Hash) { p.knownBlocks.Add(hash) }
func (p *Peer) AddToKnownTxs(hash common.Hash)    { p.knownTxs.Add(hash) }

// Send writes one message directly, bypassing the queued broadcast
// channels; used for request/response traffic (GetHeaders/Headers,
// GetBlock/Block, and so on) where ordering against a specific request
// matters more than de-duplication.
func (p *Peer) Send(code uint8, data encoding.Marshaler) error {
	return p.conn.WriteMsg(code, encoding.Encode(data))
}

// ReadMsg blocks for the next frame (or until deadline elapses, when
// nonzero), decoding it into its wire struct. Handle loops call this once
// per iteration.
func (p *Peer) ReadMsg(deadline time.Duration) (uint8, encoding.Unmarshaler, error) {
	m, err := p.conn.ReadMsg(deadline)
	if err != nil {
		return 0, nil, err
	}
	v, err := decodePayload(m.Code, m.Payload)
	if err != nil {
		return m.Code, nil, err
	}
	return m.Code, v, nil
}

// AsyncSendNewBlock queues a freshly-accepted block for tip-gossip
// announcement (spec §4.7 "tip gossip"); it drops the announcement rather
// than blocking the caller if this peer's queue is already full, since a
// slow peer shouldn't stall propagation to the rest of the network.
func (p *Peer) AsyncSendNewBlock(block *types.Block) {
	select {
	case p.queuedProps <- &propEvent{block: block}:
	default:
		p.log.Debug("dropping block announcement, queue full", "height", block.Header.Height)
	}
}

// AsyncSendTransactions queues transactions for inventory-style gossip.
func (p *Peer) AsyncSendTransactions(txs []*types.Transaction) {
	select {
	case p.queuedTxs <- txs:
	default:
		p.log.Debug("dropping tx announcement, queue full", "count", len(txs))
	}
}

// Broadcast is the peer's single writer goroutine: every outbound message
// not part of a request/response exchange funnels through here so writes
// to the underlying conn never interleave. Mirrors the teacher's
// basePeer.Broadcast select loop over queuedTxs/queuedProps/queuedAnns/term.
func (p *Peer) Broadcast() {
	for {
		select {
		case txs := <-p.queuedTxs:
			hashes := make([]common.Hash, 0, len(txs))
			for _, tx := range txs {
				h := tx.Hash()
				if p.KnowsTx(h) {
					continue
				}
				hashes = append(hashes, h)
				p.AddToKnownTxs(h)
			}
			if len(hashes) == 0 {
				continue
			}
			if err := p.Send(InvTxMsg, &InvTxData{hashListData{Hashes: hashes}}); err != nil {
				p.log.Debug("failed to send tx inventory", "err", err)
				return
			}
		case ev := <-p.queuedProps:
			h := ev.block.Header.Hash()
			if p.KnowsBlock(h) {
				continue
			}
			p.AddToKnownBlocks(h)
			announce := &AnnounceCompactData{Block: CompactBlock{
				Header:       &ev.block.Header,
				ShortIDs:     shortIDsFor(ev.block),
				PrefilledTxs: nil,
			}}
			if err := p.Send(AnnounceCompactMsg, announce); err != nil {
				p.log.Debug("failed to send block announcement", "err", err)
				return
			}
		case block := <-p.queuedAnns:
			h := block.Header.Hash()
			if p.KnowsBlock(h) {
				continue
			}
			p.AddToKnownBlocks(h)
			if err := p.Send(BlockMsg, &BlockData{Block: block}); err != nil {
				p.log.Debug("failed to send block", "err", err)
				return
			}
		case <-p.term:
			return
		}
	}
}

// shortIDsFor derives each transaction's 8-byte short id as the first 8
// bytes of its hash, matching CompactBlock's doc comment.
func shortIDsFor(block *types.Block) [][8]byte {
	ids := make([][8]byte, len(block.Txs))
	for i, tx := range block.Txs {
		h := tx.Hash()
		copy(ids[i][:], h.Bytes())
	}
	return ids
}

// Close terminates the broadcast loop and the underlying connection. Safe
// to call more than once.
func (p *Peer) Close() {
	p.once.Do(func() {
		close(p.term)
		p.conn.Close()
	})
}

func (p *Peer) String() string {
	return fmt.Sprintf("Peer{%s@%s}", p.id, p.addr)
}
