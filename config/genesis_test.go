package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/params"
)

func TestBuildGenesis_ProducesAValidSelfConsistentBlock(t *testing.T) {
	cfg := *params.DefaultChainConfig
	cfg.AdminAddress = common.BytesToAddress([]byte("admin"))

	genesis := BuildGenesis(&cfg)

	require.Equal(t, uint64(0), genesis.Header.Height)
	require.Equal(t, common.Hash{}, genesis.Header.ParentHash)
	require.Equal(t, cfg.AdminAddress, genesis.Header.MinerAddress)
	require.Equal(t, genesis.TxRoot(), genesis.Header.TxRoot)
	require.Empty(t, genesis.Txs)

	hash := crypto.VerifyPoW(genesis.Header.PowPreimage(), genesis.Header.Nonce)
	require.True(t, crypto.MeetsTarget(hash, [16]byte(genesis.Header.Difficulty)))
}

func TestBuildGenesis_IsDeterministicForTheSameChainConfig(t *testing.T) {
	cfg := *params.DefaultChainConfig
	cfg.AdminAddress = common.BytesToAddress([]byte("admin"))

	a := BuildGenesis(&cfg)
	b := BuildGenesis(&cfg)
	require.Equal(t, a.Header.Hash(), b.Header.Hash())
}

func TestCompiledCheckpoints_StartsEmpty(t *testing.T) {
	require.Empty(t, CompiledCheckpoints)
}
