package miner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/types"
)

func easiestDifficulty() types.Difficulty {
	var d types.Difficulty
	for i := range d {
		d[i] = 0xff
	}
	return d
}

func unminedBlock(height uint64, parent common.Hash) *types.Block {
	b := &types.Block{
		Header: types.Header{
			Height:       height,
			ParentHash:   parent,
			Timestamp:    1000,
			Difficulty:   easiestDifficulty(),
			MinerAddress: common.BytesToAddress([]byte("miner")),
		},
	}
	b.Header.TxRoot = b.TxRoot()
	b.Header.ReceiptsRoot = types.ReceiptsRoot(nil)
	return b
}

func TestPool_FindsNonceMeetingEasiestDifficulty(t *testing.T) {
	p, err := New(ProfileBalanced)
	require.NoError(t, err)
	defer p.Stop()

	block := unminedBlock(1, common.Hash{})
	p.SubmitWork(block)

	select {
	case r := <-p.Results:
		require.Equal(t, block, r.Task.Block)
		hash := crypto.VerifyPoW(r.Header.PowPreimage(), r.Header.Nonce)
		require.True(t, crypto.MeetsTarget(hash, [16]byte(r.Header.Difficulty)))
	case <-time.After(5 * time.Second):
		t.Fatal("no solved header reported within 5s")
	}
}

func TestPool_SubmitWorkCancelsInFlightSearch(t *testing.T) {
	p, err := New(ProfileLaptop)
	require.NoError(t, err)
	defer p.Stop()

	// A block template whose target is 1, one above the tightest possible
	// (0), makes an immediate solution within one batch astronomically unlikely, so the
	// first result received must come from the replacement task submitted
	// right after.
	hard := unminedBlock(1, common.Hash{})
	var tight types.Difficulty
	tight[15] = 1
	hard.Header.Difficulty = tight
	p.SubmitWork(hard)

	easy := unminedBlock(2, common.Hash{})
	p.SubmitWork(easy)

	select {
	case r := <-p.Results:
		require.Equal(t, easy, r.Task.Block)
	case <-time.After(5 * time.Second):
		t.Fatal("no solved header reported within 5s")
	}
}

func TestProfile_WorkerCounts(t *testing.T) {
	require.Equal(t, 1, ProfileLaptop.Workers())
	require.Equal(t, 4, ProfileBalanced.Workers())
	require.Equal(t, 16, ProfileBeast.Workers())
}
