package p2p

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/types"
)

func pairedPeers(t *testing.T) (*Peer, *Peer) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	a, err := newPeer("peer-a", "10.0.0.1:9000", client)
	require.NoError(t, err)
	b, err := newPeer("peer-b", "10.0.0.2:9000", server)
	require.NoError(t, err)
	return a, b
}

func TestHandshake_AgreesOnNetworkIDAndExchangesHead(t *testing.T) {
	a, b := pairedPeers(t)
	tip := common.BytesToHash([]byte("tip"))

	errc := make(chan error, 2)
	go func() { errc <- a.Handshake(1, 10, tip, "node-a", nil) }()
	go func() { errc <- b.Handshake(1, 20, common.BytesToHash([]byte("other-tip")), "node-b", nil) }()

	require.NoError(t, <-errc)
	require.NoError(t, <-errc)

	head, height := a.Head()
	require.Equal(t, common.BytesToHash([]byte("other-tip")), head)
	require.Equal(t, uint64(20), height)

	head, height = b.Head()
	require.Equal(t, tip, head)
	require.Equal(t, uint64(10), height)
}

func TestHandshake_RejectsMismatchedNetworkID(t *testing.T) {
	a, b := pairedPeers(t)

	errc := make(chan error, 2)
	go func() { errc <- a.Handshake(1, 0, common.Hash{}, "node-a", nil) }()
	go func() { errc <- b.Handshake(2, 0, common.Hash{}, "node-b", nil) }()

	err1 := <-errc
	err2 := <-errc
	// At least one side must observe the mismatch (both do, since both
	// decode the other's network id before comparing to their own).
	require.True(t, err1 != nil || err2 != nil)
}

func TestKnownCaches_DedupeRepeatedHashes(t *testing.T) {
	a, _ := pairedPeers(t)
	h := common.BytesToHash([]byte("block-1"))

	require.False(t, a.KnowsBlock(h))
	a.AddToKnownBlocks(h)
	require.True(t, a.KnowsBlock(h))

	tx := common.BytesToHash([]byte("tx-1"))
	require.False(t, a.KnowsTx(tx))
	a.AddToKnownTxs(tx)
	require.True(t, a.KnowsTx(tx))
}

func TestBroadcast_SkipsAlreadyKnownBlockAndSendsNew(t *testing.T) {
	a, b := pairedPeers(t)
	go a.Broadcast()
	defer a.Close()

	block := unminedBlock(1, common.Hash{})
	a.AsyncSendNewBlock(block)

	code, v, err := b.ReadMsg(time.Second)
	require.NoError(t, err)
	require.Equal(t, uint8(AnnounceCompactMsg), code)
	announce := v.(*AnnounceCompactData)
	require.Equal(t, block.Header.Height, announce.Block.Header.Height)

	// A second announcement of the same block is suppressed by the
	// known-blocks cache; b should see nothing further within a short
	// window.
	a.AsyncSendNewBlock(block)
	_, err = b.conn.ReadMsg(200 * time.Millisecond)
	require.Error(t, err)
}

func unminedBlock(height uint64, parent common.Hash) *types.Block {
	b := &types.Block{
		Header: types.Header{
			Height:       height,
			ParentHash:   parent,
			Timestamp:    1000,
			MinerAddress: common.BytesToAddress([]byte("miner")),
		},
	}
	b.Header.TxRoot = b.TxRoot()
	b.Header.ReceiptsRoot = types.ReceiptsRoot(nil)
	return b
}
