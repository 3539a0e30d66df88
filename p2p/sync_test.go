package p2p

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/chain"
	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/encoding"
	"github.com/vision-chain/vision-node/params"
	"github.com/vision-chain/vision-node/storage/database"
	"github.com/vision-chain/vision-node/types"
)

func easiestDifficulty() types.Difficulty {
	var d types.Difficulty
	for i := range d {
		d[i] = 0xff
	}
	return d
}

func minedHeader(t *testing.T, h *types.Header) {
	t.Helper()
	h.Difficulty = easiestDifficulty()
	for nonce := uint64(0); nonce < 1000; nonce++ {
		h.Nonce = nonce
		hash := crypto.VerifyPoW(h.PowPreimage(), h.Nonce)
		if crypto.MeetsTarget(hash, [16]byte(h.Difficulty)) {
			return
		}
	}
	t.Fatal("could not find a nonce meeting the easiest difficulty in 1000 tries")
}

func buildBlock(t *testing.T, height uint64, parentHash common.Hash, timestamp uint64, miner common.Address) *types.Block {
	t.Helper()
	b := &types.Block{Header: types.Header{
		Height:       height,
		ParentHash:   parentHash,
		Timestamp:    timestamp,
		MinerAddress: miner,
	}}
	b.Header.TxRoot = b.TxRoot()
	b.Header.ReceiptsRoot = types.ReceiptsRoot(nil)
	minedHeader(t, &b.Header)
	return b
}

func newMemStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.Open(database.Config{DBType: database.MemDB})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestEngineWithChain(t *testing.T, height int) (*chain.Engine, *types.Block) {
	t.Helper()
	miner := common.BytesToAddress([]byte("genesis-miner"))
	genesis := buildBlock(t, 0, common.Hash{}, 1000, miner)

	store := newMemStore(t)
	factory := func() (*database.Store, error) { return newMemStore(t), nil }

	cfg := *params.DefaultChainConfig
	e, err := chain.New(&cfg, store, factory, genesis)
	require.NoError(t, err)

	parent := genesis
	for i := 1; i <= height; i++ {
		blk := buildBlock(t, uint64(i), parent.Header.Hash(), 1000+uint64(i)*60, miner)
		accepted, _, err := e.Accept(blk, nil)
		require.NoError(t, err)
		require.True(t, accepted)
		parent = blk
	}
	return e, genesis
}

func TestSyncer_HandleGetHeaders_ReturnsRequestedRange(t *testing.T) {
	e, _ := newTestEngineWithChain(t, 5)
	s := NewSyncer(e)

	resp, err := s.HandleGetHeaders(&GetHeadersData{FromHeight: 2, Count: 3})
	require.NoError(t, err)
	require.Len(t, resp.Headers, 3)
	require.Equal(t, uint64(2), resp.Headers[0].Height)
	require.Equal(t, uint64(4), resp.Headers[2].Height)
}

func TestSyncer_HandleGetHeaders_ClampsCountPastTip(t *testing.T) {
	e, _ := newTestEngineWithChain(t, 2)
	s := NewSyncer(e)

	resp, err := s.HandleGetHeaders(&GetHeadersData{FromHeight: 1, Count: 100})
	require.NoError(t, err)
	require.Len(t, resp.Headers, 2)
}

func TestSyncer_HandleGetBlock_ReturnsKnownBlock(t *testing.T) {
	e, genesis := newTestEngineWithChain(t, 1)
	s := NewSyncer(e)

	resp, err := s.HandleGetBlock(&GetBlockData{Hash: genesis.Header.Hash()})
	require.NoError(t, err)
	require.Equal(t, genesis.Header.Hash(), resp.Block.Header.Hash())
}

// serveOneRound answers exactly one request/response pair over conn using
// syncer's handlers, standing in for the peer-side message loop a running
// node would run continuously.
func serveOneRound(t *testing.T, conn net.Conn, s *Syncer) {
	t.Helper()
	server := newFrameReadWriter(conn)
	m, err := server.ReadMsg(time.Second)
	require.NoError(t, err)
	switch m.Code {
	case GetHeadersMsg:
		var req GetHeadersData
		require.NoError(t, encoding.Decode(m.Payload, &req))
		resp, err := s.HandleGetHeaders(&req)
		require.NoError(t, err)
		require.NoError(t, server.WriteMsg(HeadersMsg, encoding.Encode(resp)))
	case GetBlockMsg:
		var req GetBlockData
		require.NoError(t, encoding.Decode(m.Payload, &req))
		resp, err := s.HandleGetBlock(&req)
		require.NoError(t, err)
		require.NoError(t, server.WriteMsg(BlockMsg, encoding.Encode(resp)))
	default:
		t.Fatalf("unexpected message code %d", m.Code)
	}
}

func TestSyncer_CatchUpWith_PullsHeadersThenBodiesFromAheadPeer(t *testing.T) {
	serverEngine, _ := newTestEngineWithChain(t, 3)
	serverSyncer := NewSyncer(serverEngine)

	clientEngine, _ := newTestEngineWithChain(t, 0)
	clientSyncer := NewSyncer(clientEngine)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	peer, err := newPeer("server", "peer-addr", client)
	require.NoError(t, err)
	peer.SetHead(common.Hash{}, 3) // announced via a prior handshake in a real run

	reg := NewRegistry()
	require.NoError(t, reg.Register(peer))

	done := make(chan error, 1)
	go func() { done <- clientSyncer.CatchUpWith(reg, peer) }()

	// Drive the server side: one GetHeaders round, then three GetBlock
	// rounds (heights 1, 2, 3).
	for i := 0; i < 4; i++ {
		serveOneRound(t, server, serverSyncer)
	}

	require.NoError(t, <-done)
	_, height := clientEngine.BestTip()
	require.Equal(t, uint64(3), height)
}
