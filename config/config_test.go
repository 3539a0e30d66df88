package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/params"
)

func TestDefault_IsSelfConsistentWithDefaultChainConfig(t *testing.T) {
	cfg := Default()
	require.Equal(t, params.DefaultChainConfig.NetworkID, cfg.NetworkID)
	require.Equal(t, params.DefaultChainConfig.EpochBlocks, cfg.EpochBlocks)
	require.True(t, cfg.EnableEmission)
	require.Equal(t, params.RoleStandalone.String(), cfg.Role)
}

func TestLoad_DecodesKnownFieldsAndRejectsUnknownOnes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vision.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
Port = 40404
Role = "constellation"
EnableMining = true
`), 0o644))

	cfg := Default()
	require.NoError(t, Load(path, cfg))
	require.Equal(t, uint16(40404), cfg.Port)
	require.Equal(t, "constellation", cfg.Role)
	require.True(t, cfg.EnableMining)

	badPath := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(badPath, []byte(`NotARealField = 1`), 0o644))
	require.Error(t, Load(badPath, Default()))
}

func TestApplyEnv_OverridesFromVisionPrefixedVars(t *testing.T) {
	for k, v := range map[string]string{
		envPort:             "7777",
		envDataDir:          "/tmp/vision-data",
		envPeers:            " 1.2.3.4:30303 , 5.6.7.8:30303 ,",
		envAdminToken:       "s3cr3t",
		envEpochBlocks:      "500",
		envParcelWeightMult: "3",
		envEnableEmission:   "false",
		envAllowSeedExport:  "true",
	} {
		t.Setenv(k, v)
	}

	cfg := Default()
	require.NoError(t, ApplyEnv(cfg))
	require.Equal(t, uint16(7777), cfg.Port)
	require.Equal(t, "/tmp/vision-data", cfg.DataDir)
	require.Equal(t, []string{"1.2.3.4:30303", "5.6.7.8:30303"}, cfg.Peers)
	require.Equal(t, "s3cr3t", cfg.AdminToken)
	require.Equal(t, uint64(500), cfg.EpochBlocks)
	require.Equal(t, uint64(3), cfg.ParcelWeightMult)
	require.False(t, cfg.EnableEmission)
	require.True(t, cfg.AllowSeedExport)
}

func TestApplyEnv_RejectsAMalformedNumericVar(t *testing.T) {
	t.Setenv(envPort, "not-a-number")
	require.Error(t, ApplyEnv(Default()))
}

func TestApplyToChainConfig_OverridesWithoutMutatingTheBase(t *testing.T) {
	base := *params.DefaultChainConfig
	cfg := Default()
	cfg.NetworkID = 99
	cfg.EpochBlocks = 42
	cfg.EnableEmission = false

	out := cfg.ApplyToChainConfig(&base)
	require.Equal(t, uint64(99), out.NetworkID)
	require.Equal(t, uint64(42), out.EpochBlocks)
	require.Equal(t, uint64(0), out.BaseEmission)
	require.Equal(t, params.DefaultChainConfig.NetworkID, base.NetworkID, "ApplyToChainConfig must not mutate its base argument")
}

func TestApplyToChainConfig_LeavesEpochBlocksAloneWhenUnset(t *testing.T) {
	base := *params.DefaultChainConfig
	cfg := Default()
	cfg.EpochBlocks = 0

	out := cfg.ApplyToChainConfig(&base)
	require.Equal(t, base.EpochBlocks, out.EpochBlocks)
}
