package p2p

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/common"
)

func newRegisteredPeer(t *testing.T, reg *Registry, id, addr string) *Peer {
	t.Helper()
	client, _ := net.Pipe()
	t.Cleanup(func() { client.Close() })
	p, err := newPeer(id, addr, client)
	require.NoError(t, err)
	require.NoError(t, reg.Register(p))
	return p
}

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	reg := NewRegistry()
	p := newRegisteredPeer(t, reg, "peer-1", "1.2.3.4:9000")
	require.Equal(t, 1, reg.Len())

	got, ok := reg.Get("peer-1")
	require.True(t, ok)
	require.Equal(t, p, got)

	reg.Unregister("peer-1")
	require.Equal(t, 0, reg.Len())
}

func TestRegistry_StrikeDecrementsScoreWithoutBanningOnMinorViolations(t *testing.T) {
	reg := NewRegistry()
	newRegisteredPeer(t, reg, "peer-1", "1.2.3.4:9000")

	reg.Strike("peer-1", StrikeTimeout)
	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, scoreCeiling-StrikeTimeout.weight(), snap[0].Score)
	require.False(t, snap[0].Banned)
	require.False(t, reg.IsBanned("1.2.3.4:9000"))
}

func TestRegistry_SevereStrikeBansImmediately(t *testing.T) {
	reg := NewRegistry()
	newRegisteredPeer(t, reg, "peer-1", "1.2.3.4:9000")

	reg.Strike("peer-1", StrikeSevere)

	require.Equal(t, 0, reg.Len())
	require.True(t, reg.IsBanned("1.2.3.4:9000"))
	_, ok := reg.Get("peer-1")
	require.False(t, ok)
}

func TestRegistry_RepeatedMinorStrikesEventuallyBan(t *testing.T) {
	reg := NewRegistry()
	newRegisteredPeer(t, reg, "peer-1", "1.2.3.4:9000")

	for i := 0; i < 10 && reg.Len() > 0; i++ {
		reg.Strike("peer-1", StrikeInvalidBlock)
	}
	require.Equal(t, 0, reg.Len())
	require.True(t, reg.IsBanned("1.2.3.4:9000"))
}

func TestRegistry_BannedAddrRejectsReregistration(t *testing.T) {
	reg := NewRegistry()
	newRegisteredPeer(t, reg, "peer-1", "1.2.3.4:9000")
	reg.Strike("peer-1", StrikeSevere)

	client, _ := net.Pipe()
	defer client.Close()
	p, err := newPeer("peer-1-retry", "1.2.3.4:9000", client)
	require.NoError(t, err)
	err = reg.Register(p)
	require.Error(t, err)
}

func TestRegistry_BestPeerPicksGreatestHeight(t *testing.T) {
	reg := NewRegistry()
	low := newRegisteredPeer(t, reg, "peer-low", "1.1.1.1:9000")
	high := newRegisteredPeer(t, reg, "peer-high", "2.2.2.2:9000")

	low.SetHead(common.Hash{}, 5)
	high.SetHead(common.Hash{}, 50)

	best, ok := reg.BestPeer()
	require.True(t, ok)
	require.Equal(t, high.ID(), best.ID())
}

func TestRegistry_BroadcastVisitsEveryPeer(t *testing.T) {
	reg := NewRegistry()
	newRegisteredPeer(t, reg, "peer-1", "1.1.1.1:9000")
	newRegisteredPeer(t, reg, "peer-2", "2.2.2.2:9000")

	visited := map[string]bool{}
	reg.Broadcast(func(p *Peer) { visited[p.ID()] = true })
	require.True(t, visited["peer-1"])
	require.True(t, visited["peer-2"])
}
