package p2p

import (
	"fmt"
	"time"

	"github.com/vision-chain/vision-node/chain"
	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/log"
	"github.com/vision-chain/vision-node/types"
)

// headersPerRound bounds a single GetHeaders/Headers round trip, keeping
// any one request's response under the framing layer's size cap and
// letting sync progress be observed incrementally.
const headersPerRound = 2048

// requestTimeout is the per-round-trip deadline named for P2P requests
// ("P2P requests have explicit deadlines (e.g., 30s for a block body)").
const requestTimeout = 30 * time.Second

// Syncer drives the headers-first catch-up protocol against one peer at a
// time: validate PoW and parent linkage on headers alone, then fetch
// bodies in order and hand each to the chain engine. Sync is
// single-threaded per peer (ordered request/response) but independent
// Syncer instances may run concurrently across peers — the chain engine
// itself serializes Accept.
type Syncer struct {
	engine *chain.Engine
	log    log.Logger
}

func NewSyncer(engine *chain.Engine) *Syncer {
	return &Syncer{engine: engine, log: log.NewModuleLogger(log.ModuleSync)}
}

// CatchUpWith pulls headers then bodies from peer until the engine's best
// tip is no longer behind the peer's announced height, or a header fails
// validation.
func (s *Syncer) CatchUpWith(reg *Registry, peer *Peer) error {
	for {
		_, localHeight := s.engine.BestTip()
		_, peerHeight := peer.Head()
		if peerHeight <= localHeight {
			return nil
		}

		count := uint64(headersPerRound)
		if remaining := peerHeight - localHeight; remaining < count {
			count = remaining
		}
		headers, err := s.requestHeaders(peer, localHeight+1, count)
		if err != nil {
			reg.Strike(peer.ID(), StrikeTimeout)
			return err
		}
		if len(headers) == 0 {
			return nil
		}

		if err := s.validateHeaderChain(localHeight, headers); err != nil {
			reg.Strike(peer.ID(), StrikeProtocolViolation)
			return err
		}

		for _, hdr := range headers {
			block, err := s.requestBlock(peer, hdr.Hash())
			if err != nil {
				reg.Strike(peer.ID(), StrikeTimeout)
				return err
			}
			accepted, depth, err := s.engine.Accept(block, nil)
			if err != nil {
				reg.Strike(peer.ID(), StrikeInvalidBlock)
				return fmt.Errorf("sync: rejecting block at height %d from %s: %w", hdr.Height, peer.ID(), err)
			}
			if accepted {
				s.log.Info("synced block", "height", hdr.Height, "peer", peer.ID(), "reorg_depth", depth)
			}
		}
	}
}

func (s *Syncer) requestHeaders(peer *Peer, fromHeight, count uint64) ([]*types.Header, error) {
	if err := peer.Send(GetHeadersMsg, &GetHeadersData{FromHeight: fromHeight, Count: count}); err != nil {
		return nil, err
	}
	code, v, err := peer.ReadMsg(requestTimeout)
	if err != nil {
		return nil, err
	}
	if code != HeadersMsg {
		return nil, newPeerError(ErrInvalidMsgCode, "expected Headers, got code %d", code)
	}
	return v.(*HeadersData).Headers, nil
}

func (s *Syncer) requestBlock(peer *Peer, hash common.Hash) (*types.Block, error) {
	if err := peer.Send(GetBlockMsg, &GetBlockData{Hash: hash}); err != nil {
		return nil, err
	}
	code, v, err := peer.ReadMsg(requestTimeout)
	if err != nil {
		return nil, err
	}
	if code != BlockMsg {
		return nil, newPeerError(ErrInvalidMsgCode, "expected Block, got code %d", code)
	}
	return v.(*BlockData).Block, nil
}

// validateHeaderChain checks PoW and parent linkage without touching
// bodies or state, the cheap filter spec §4.7 runs before committing to a
// body-download round ("validates PoW and linkage without downloading
// bodies").
func (s *Syncer) validateHeaderChain(expectParentHeight uint64, headers []*types.Header) error {
	wantHeight := expectParentHeight + 1
	for i, hdr := range headers {
		if hdr.Height != wantHeight {
			return fmt.Errorf("sync: header %d has height %d, want %d", i, hdr.Height, wantHeight)
		}
		if i > 0 && hdr.ParentHash != headers[i-1].Hash() {
			return fmt.Errorf("sync: header %d does not chain to the previous header", i)
		}
		hash := crypto.VerifyPoW(hdr.PowPreimage(), hdr.Nonce)
		if !crypto.MeetsTarget(hash, [16]byte(hdr.Difficulty)) {
			return fmt.Errorf("sync: header at height %d fails PoW check", hdr.Height)
		}
		wantHeight++
	}
	return nil
}

// HandleGetHeaders answers a peer's header request by walking the local
// canonical chain backward from its current best tip, the simplest
// correct implementation available without a dedicated height index: the
// chain engine keeps a hash-keyed node map, not a height-keyed one, so
// ranges are resolved by following ParentHash links.
func (s *Syncer) HandleGetHeaders(req *GetHeadersData) (*HeadersData, error) {
	tipHash, tipHeight := s.engine.BestTip()
	if req.FromHeight > tipHeight {
		return &HeadersData{}, nil
	}
	count := req.Count
	if max := tipHeight - req.FromHeight + 1; count > max {
		count = max
	}

	out := make([]*types.Header, count)
	hash := tipHash
	for {
		block, ok := s.engine.Block(hash)
		if !ok {
			return nil, fmt.Errorf("sync: canonical block %s missing from store", hash)
		}
		if block.Header.Height >= req.FromHeight && block.Header.Height < req.FromHeight+count {
			out[block.Header.Height-req.FromHeight] = &block.Header
		}
		if block.Header.Height <= req.FromHeight {
			break
		}
		hash = block.Header.ParentHash
	}
	return &HeadersData{Headers: out}, nil
}

// HandleGetBlock answers a direct block-by-hash request.
func (s *Syncer) HandleGetBlock(req *GetBlockData) (*BlockData, error) {
	block, ok := s.engine.Block(req.Hash)
	if !ok {
		return nil, fmt.Errorf("sync: unknown block %s", req.Hash)
	}
	return &BlockData{Block: block}, nil
}
