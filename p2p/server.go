// Server wires the per-peer connection plumbing (peer.go), the strike/ban
// registry, and the headers-first syncer into a running node: it listens
// for inbound connections, dials the configured outbound peer list, and
// runs each connection's request/response and gossip loop for as long as
// the peer stays up.
//
// Grounded on the teacher's node/server.go shape wasn't retrieved into the
// pack (networks/p2p only carries the Kademlia table, not the rlpx
// Server), so this generalizes from node/cn/backend.go's own
// listen-then-protocol-manager wiring and from this package's own
// peer.go/registry.go/sync.go, which already assume exactly this
// lifecycle: Handshake, Register, Broadcast() writer goroutine, a single
// reader goroutine per connection.
package p2p

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vision-chain/vision-node/chain"
	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/log"
	"github.com/vision-chain/vision-node/mempool"
	"github.com/vision-chain/vision-node/types"
)

// pingInterval is how often an idle connection's steady-state loop
// sends a keepalive, so a dead peer is struck on timeout instead of
// held forever.
const pingInterval = 30 * time.Second

// TxPool is the subset of mempool.Pool the server's gossip handlers need;
// kept narrow so server.go doesn't import the whole mempool API surface.
type TxPool interface {
	Admit(tx *types.Transaction, height uint64) mempool.Outcome
	Get(hash common.Hash) (*types.Transaction, bool)
	Has(hash common.Hash) bool
	GetByShortID(id [8]byte) (*types.Transaction, bool)
}

// Server is the node's single P2P endpoint: one listener, a registry of
// live peers, and a syncer driving catch-up against each.
type Server struct {
	networkID uint64
	nodeTag   string

	engine *chain.Engine
	pool   TxPool
	reg    *Registry
	syncer *Syncer
	log    log.Logger

	listener net.Listener
	nextID   uint64

	wg     sync.WaitGroup
	quit   chan struct{}
	closed int32
}

func NewServer(networkID uint64, nodeTag string, engine *chain.Engine, pool TxPool) *Server {
	reg := NewRegistry()
	return &Server{
		networkID: networkID,
		nodeTag:   nodeTag,
		engine:    engine,
		pool:      pool,
		reg:       reg,
		syncer:    NewSyncer(engine),
		log:       log.NewModuleLogger(log.ModuleP2P),
		quit:      make(chan struct{}),
	}
}

// Registry exposes the live peer set, e.g. for an admin/status surface.
func (s *Server) Registry() *Registry { return s.reg }

// Addr returns the listener's bound address, for callers (tests, a status
// endpoint) that started Listen on port 0 and need the port the OS picked.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Listen opens the inbound TCP listener on port and starts the accept
// loop. Call once, before Run.
func (s *Server) Listen(port uint16) error {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(int(port))))
	if err != nil {
		return fmt.Errorf("p2p: listen on port %d: %w", port, err)
	}
	s.listener = ln
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.Warn("accept failed", "err", err)
				return
			}
		}
		if s.reg.IsBanned(conn.RemoteAddr().String()) {
			conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleInbound(conn)
		}()
	}
}

func (s *Server) handleInbound(conn net.Conn) {
	id := fmt.Sprintf("in-%d", atomic.AddUint64(&s.nextID, 1))
	p, err := newPeer(id, conn.RemoteAddr().String(), conn)
	if err != nil {
		conn.Close()
		return
	}
	s.runPeer(p)
}

// DialPeers connects to every address in peers (host:port), retrying
// forever in the background on failure so a configured peer that's briefly
// unreachable at startup still eventually joins.
func (s *Server) DialPeers(peers []string) {
	for _, addr := range peers {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		s.wg.Add(1)
		go s.dialLoop(addr)
	}
}

func (s *Server) dialLoop(addr string) {
	defer s.wg.Done()
	backoff := time.Second
	for {
		select {
		case <-s.quit:
			return
		default:
		}
		if s.reg.IsBanned(addr) {
			return
		}
		conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
		if err != nil {
			s.log.Debug("dial failed, retrying", "addr", addr, "err", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-s.quit:
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		id := fmt.Sprintf("out-%s", addr)
		p, err := newPeer(id, addr, conn)
		if err != nil {
			conn.Close()
			continue
		}
		s.runPeer(p) // blocks until the connection drops, then we redial
	}
}

// runPeer performs the handshake, registers the peer, and drives its
// lifetime: an outbound Broadcast() writer, one initial sync pass, then
// the steady-state serve loop. Returns once the connection is gone.
func (s *Server) runPeer(p *Peer) {
	head, height := s.engine.BestTip()
	if err := p.Handshake(s.networkID, height, head, s.nodeTag, nil); err != nil {
		s.log.Debug("handshake failed", "peer", p.ID(), "err", err)
		p.Close()
		return
	}
	if err := s.reg.Register(p); err != nil {
		s.log.Debug("registration refused", "peer", p.ID(), "err", err)
		p.Close()
		return
	}
	defer s.reg.Unregister(p.ID())
	defer p.Close()

	go p.Broadcast()

	if err := s.syncer.CatchUpWith(s.reg, p); err != nil {
		s.log.Debug("initial sync failed", "peer", p.ID(), "err", err)
	}

	s.serveLoop(p)
}

// serveLoop answers inbound requests and gossip for the rest of a
// connection's life. Request/response exchanges initiated by us (sync's
// CatchUpWith) only ever run before this loop starts or are triggered
// from inside it, never concurrently with it, so there is exactly one
// reader of the connection at any instant.
func (s *Server) serveLoop(p *Peer) {
	for {
		code, v, err := p.ReadMsg(pingInterval * 2)
		if err != nil {
			return
		}
		p.touch()
		s.reg.Touch(p.ID())

		switch code {
		case GetHeadersMsg:
			req := v.(*GetHeadersData)
			resp, err := s.syncer.HandleGetHeaders(req)
			if err != nil {
				s.log.Debug("HandleGetHeaders failed", "peer", p.ID(), "err", err)
				continue
			}
			if err := p.Send(HeadersMsg, resp); err != nil {
				return
			}

		case GetBlockMsg:
			req := v.(*GetBlockData)
			resp, err := s.syncer.HandleGetBlock(req)
			if err != nil {
				s.log.Debug("HandleGetBlock failed", "peer", p.ID(), "err", err)
				continue
			}
			if err := p.Send(BlockMsg, resp); err != nil {
				return
			}

		case GetBlockTxnsMsg:
			req := v.(*GetBlockTxnsData)
			block, ok := s.engine.Block(req.Hash)
			if !ok {
				continue
			}
			txs := make([]*types.Transaction, 0, len(req.Indices))
			for _, idx := range req.Indices {
				if int(idx) < len(block.Txs) {
					txs = append(txs, block.Txs[idx])
				}
			}
			if err := p.Send(BlockTxnsMsg, &BlockTxnsData{Hash: req.Hash, Txs: txs}); err != nil {
				return
			}

		case AnnounceCompactMsg:
			req := v.(*AnnounceCompactData)
			h := req.Block.Header.Hash()
			if p.KnowsBlock(h) {
				continue
			}
			p.AddToKnownBlocks(h)
			if _, ok := s.engine.Block(h); ok {
				continue
			}
			block, err := s.reconstructCompactBlock(p, &req.Block)
			if err != nil {
				// Genuine short-id miss the follow-up round couldn't
				// resolve (stale mempool, a dropped GetBlockTxns reply,
				// a bad tx root): fall back to a full headers+bodies
				// catch-up rather than getting stuck on this
				// announcement.
				s.log.Debug("compact block reconstruction failed, falling back to full sync", "peer", p.ID(), "err", err)
				if err := s.syncer.CatchUpWith(s.reg, p); err != nil {
					s.log.Debug("catch-up after announce failed", "peer", p.ID(), "err", err)
				}
				continue
			}
			if _, _, err := s.engine.Accept(block, nil); err != nil {
				s.log.Debug("rejecting reconstructed compact block", "peer", p.ID(), "err", err)
				s.reg.Strike(p.ID(), StrikeInvalidBlock)
			}

		case InvTxMsg:
			inv := v.(*InvTxData)
			var want []common.Hash
			for _, h := range inv.Hashes {
				if p.KnowsTx(h) {
					continue
				}
				p.AddToKnownTxs(h)
				if !s.pool.Has(h) {
					want = append(want, h)
				}
			}
			if len(want) > 0 {
				if err := p.Send(GetTxMsg, &GetTxData{hashListData{Hashes: want}}); err != nil {
					return
				}
			}

		case GetTxMsg:
			req := v.(*GetTxData)
			for _, h := range req.Hashes {
				tx, ok := s.pool.Get(h)
				if !ok {
					continue
				}
				if err := p.Send(TxMsg, &TxData{Tx: tx}); err != nil {
					return
				}
			}

		case TxMsg:
			txd := v.(*TxData)
			h := txd.Tx.Hash()
			p.AddToKnownTxs(h)
			_, height := s.engine.BestTip()
			outcome := s.pool.Admit(txd.Tx, height)
			if !outcome.Accepted {
				s.reg.Strike(p.ID(), StrikeInvalidTx)
				continue
			}
			s.Broadcast(p.ID(), func(peer *Peer) { peer.AsyncSendTransactions([]*types.Transaction{txd.Tx}) })

		case PingMsg:
			ping := v.(*PingData)
			if err := p.Send(PongMsg, &PongData{Nonce: ping.Nonce}); err != nil {
				return
			}

		case PongMsg:
			// no-op; ReadMsg's deadline reset on any frame is the only
			// liveness signal this loop needs.

		default:
			s.reg.Strike(p.ID(), StrikeProtocolViolation)
			return
		}
	}
}

// reconstructCompactBlock fills in a CompactBlock announcement's
// transactions from the local mempool by short id, and requests only the
// genuine misses from the announcing peer via GetBlockTxns (spec §4.7's
// compact-blocks bandwidth saving: don't resend what the receiver already
// has pooled). Returns an error if any index can't be filled, or if the
// assembled block's tx root doesn't match the announced header, so the
// caller can fall back to a full sync instead of accepting a bad block.
func (s *Server) reconstructCompactBlock(p *Peer, cb *CompactBlock) (*types.Block, error) {
	txs := make([]*types.Transaction, len(cb.ShortIDs))
	var missing []uint32
	for i, id := range cb.ShortIDs {
		if tx, ok := s.pool.GetByShortID(id); ok {
			txs[i] = tx
			continue
		}
		missing = append(missing, uint32(i))
	}

	if len(missing) > 0 {
		if err := p.Send(GetBlockTxnsMsg, &GetBlockTxnsData{Hash: cb.Header.Hash(), Indices: missing}); err != nil {
			return nil, err
		}
		code, v, err := p.ReadMsg(requestTimeout)
		if err != nil {
			return nil, err
		}
		resp, ok := v.(*BlockTxnsData)
		if !ok || code != BlockTxnsMsg {
			return nil, newPeerError(ErrInvalidMsgCode, "expected BlockTxns, got code %d", code)
		}
		if len(resp.Txs) != len(missing) {
			return nil, fmt.Errorf("p2p: BlockTxns returned %d txs for %d requested indices", len(resp.Txs), len(missing))
		}
		for i, idx := range missing {
			txs[idx] = resp.Txs[i]
		}
	}

	block := &types.Block{Header: *cb.Header, Txs: txs}
	if block.TxRoot() != cb.Header.TxRoot {
		return nil, fmt.Errorf("p2p: reconstructed compact block's tx root does not match its announced header")
	}
	return block, nil
}

// Broadcast runs fn for every registered peer except fromPeerID, the one a
// message arrived from (each peer's known-tx/known-block de-dup still
// applies, this just skips the redundant round trip back to its source).
func (s *Server) Broadcast(fromPeerID string, fn func(*Peer)) {
	s.reg.Broadcast(func(p *Peer) {
		if p.ID() == fromPeerID {
			return
		}
		fn(p)
	})
}

// AnnounceBlock fans a freshly accepted block out to every connected peer,
// for the chain engine's accept path to call after a local or synced
// block becomes canonical.
func (s *Server) AnnounceBlock(block *types.Block) {
	s.reg.Broadcast(func(p *Peer) { p.AsyncSendNewBlock(block) })
}

// Shutdown closes the listener and every live peer connection, then waits
// for all server goroutines to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	s.reg.Broadcast(func(p *Peer) { p.Close() })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
