package p2p

import (
	"sync"
	"time"

	"github.com/vision-chain/vision-node/log"
)

// Strike reasons, each weighted by how severe the violation is (spec §7:
// "Block validation errors -> block rejected, peer score decremented;
// severe violations (signature forgery, checkpoint mismatch) -> peer
// banned").
type StrikeReason int

const (
	StrikeProtocolViolation StrikeReason = iota
	StrikeInvalidTx
	StrikeInvalidBlock
	StrikeTimeout
	StrikeSevere // signature forgery, checkpoint fork: immediate ban
)

func (r StrikeReason) weight() int {
	switch r {
	case StrikeTimeout:
		return 5
	case StrikeInvalidTx:
		return 10
	case StrikeProtocolViolation:
		return 20
	case StrikeInvalidBlock:
		return 30
	case StrikeSevere:
		return scoreCeiling // any single severe strike exhausts the budget
	default:
		return 0
	}
}

// scoreCeiling is the starting/maximum score a peer can carry; banCutoff is
// the floor a decremented score crosses into a ban.
const (
	scoreCeiling = 100
	banCutoff    = 0
)

// PeerInfo is the read-only snapshot spec §4.7's peer registry exposes:
// peers[peer_id] = {url, last_seen, score, handshake_version, network_id}.
type PeerInfo struct {
	PeerID           string
	Addr             string
	LastSeen         time.Time
	Score            int
	HandshakeVersion uint32
	NetworkID        uint64
	Banned           bool
}

type entry struct {
	peer    *Peer
	score   int
	banned  bool
}

// Registry tracks every connected (and recently banned) peer, enforcing the
// strike/ban policy and serving the sync layer's "heaviest known peer"
// queries. Reads dominate writes (spec §5: "Peer registry is behind a
// read-write lock; reads dominate"), grounded on the same posture the
// teacher's node/cn peer set takes with its own RWMutex-guarded map.
type Registry struct {
	mu      sync.RWMutex
	peers   map[string]*entry
	bannedAddrs map[string]struct{}

	log log.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		peers:       make(map[string]*entry),
		bannedAddrs: make(map[string]struct{}),
		log:         log.NewModuleLogger(log.ModuleP2P),
	}
}

// Register adds a freshly handshaken peer at full score. It refuses a peer
// whose address is currently banned.
func (r *Registry) Register(p *Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, banned := r.bannedAddrs[p.Addr()]; banned {
		return newPeerError(ErrBannedPeer, "%s", p.Addr())
	}
	r.peers[p.ID()] = &entry{peer: p, score: scoreCeiling}
	r.log.Info("peer registered", "peer", p.ID(), "addr", p.Addr())
	return nil
}

// Unregister removes a peer from the active set (on disconnect) without
// affecting its ban status.
func (r *Registry) Unregister(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, peerID)
}

// Strike applies a violation's weight to a peer's score, banning it
// (closing the connection and blacklisting its address) once the score
// crosses banCutoff or the reason is severe.
func (r *Registry) Strike(peerID string, reason StrikeReason) {
	r.mu.Lock()
	e, ok := r.peers[peerID]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.score -= reason.weight()
	banNow := e.score <= banCutoff
	score := e.score
	addr := e.peer.Addr()
	if banNow {
		e.banned = true
		r.bannedAddrs[addr] = struct{}{}
		delete(r.peers, peerID)
	}
	r.mu.Unlock()

	r.log.Warn("peer strike", "peer", peerID, "reason", reason, "score", score, "banned", banNow)
	if banNow {
		e.peer.Close()
	}
}

// IsBanned reports whether addr is currently blacklisted, for the listener
// to reject a reconnection attempt before the handshake even starts.
func (r *Registry) IsBanned(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, banned := r.bannedAddrs[addr]
	return banned
}

func (r *Registry) Touch(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.peers[peerID]; ok {
		e.peer.touch()
	}
}

// Get returns the live Peer for an id, for handlers that need to send a
// direct response.
func (r *Registry) Get(peerID string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.peers[peerID]
	if !ok {
		return nil, false
	}
	return e.peer, true
}

// Snapshot returns the registry's current view, for diagnostics and the
// sync layer's peer-selection logic.
func (r *Registry) Snapshot() []PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerInfo, 0, len(r.peers))
	for id, e := range r.peers {
		out = append(out, PeerInfo{
			PeerID:           id,
			Addr:             e.peer.Addr(),
			LastSeen:         e.peer.LastSeen(),
			Score:            e.score,
			HandshakeVersion: e.peer.Version(),
			NetworkID:        e.peer.NetworkID(),
			Banned:           e.banned,
		})
	}
	return out
}

// BestPeer returns the connected peer with the greatest announced height,
// the sync layer's initial catch-up target. Returns false when no peers
// are connected.
func (r *Registry) BestPeer() (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *Peer
	var bestHeight uint64
	for _, e := range r.peers {
		_, height := e.peer.Head()
		if best == nil || height > bestHeight {
			best = e.peer
			bestHeight = height
		}
	}
	return best, best != nil
}

// Broadcast calls fn for every connected peer, letting the sync layer fan a
// block or tx announcement out without the registry importing types
// itself.
func (r *Registry) Broadcast(fn func(*Peer)) {
	r.mu.RLock()
	peers := make([]*Peer, 0, len(r.peers))
	for _, e := range r.peers {
		peers = append(peers, e.peer)
	}
	r.mu.RUnlock()
	for _, p := range peers {
		fn(p)
	}
}

// Len reports how many peers are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
