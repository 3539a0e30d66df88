// Package config layers a node's runtime settings the way the teacher's
// cmd/utils/nodecmd/dumpconfigcmd.go does: compiled-in defaults, then an
// optional TOML file, then environment variables, then command-line
// flags, each able to override the one before it.
//
// Grounded on dumpconfigcmd.go's tomlSettings (NormFieldName/FieldToKey
// that keep TOML keys identical to Go struct field names, MissingField
// that hard-errors on an unrecognized key) and its klayConfig/loadConfig
// pair, generalized from klaytn's CN/Node config pair down to this node's
// single flat Config.
package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/naoina/toml"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/params"
	"github.com/vision-chain/vision-node/storage/database"
)

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("config: field %q is not defined in %s", field, rt.String())
	},
}

// Config is one node process's full runtime configuration (spec §6).
type Config struct {
	DataDir      string
	Port         uint16
	Peers        []string
	Role         string // "constellation" or "standalone"
	EnableMining bool
	Reset        bool

	DBType           database.DBType
	LevelDBCacheSize int
	LevelDBHandles   int

	AdminToken      string // VISION_ADMIN_TOKEN; parsed and stored only: no component reads it and no token check exists
	AllowSeedExport bool   // VISION_ALLOW_SEED_EXPORT; off by default; parsed and stored only: no seed-export path exists

	NetworkID        uint64
	EpochBlocks      uint64
	EnableEmission   bool   // VISION_TOK_ENABLE_EMISSION; when false, ApplyToChainConfig sets BaseEmission to 0
	ParcelWeightMult uint64 // VISION_PARCEL_WEIGHT_MULT; see DESIGN.md, currently a pass-through with no consumer

	WatcherRPC map[common.ExternalChain]ChainRPCEndpoint
}

// ChainRPCEndpoint is one external chain's watcher RPC connection info.
type ChainRPCEndpoint struct {
	URL  string
	User string
	Pass string
}

// Default returns the compiled-in baseline every node starts from before
// a config file, environment variables, or flags are applied.
func Default() *Config {
	return &Config{
		DataDir:          "./data",
		Port:             30303,
		Role:             params.RoleStandalone.String(),
		DBType:           database.BadgerDB,
		LevelDBCacheSize: 256,
		LevelDBHandles:   256,
		NetworkID:        params.DefaultChainConfig.NetworkID,
		EpochBlocks:      params.DefaultChainConfig.EpochBlocks,
		EnableEmission:   true,
		WatcherRPC:       map[common.ExternalChain]ChainRPCEndpoint{},
	}
}

// Load decodes a TOML file over cfg, the same load-over-defaults shape as
// the teacher's loadConfig.
func Load(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		return fmt.Errorf("%s, %v", path, err)
	}
	return err
}

// env-var names, verbatim from spec §6.
const (
	envPort             = "VISION_PORT"
	envDataDir          = "VISION_DATA_DIR"
	envPeers            = "VISION_PEERS"
	envAdminToken       = "VISION_ADMIN_TOKEN"
	envEpochBlocks      = "VISION_EPOCH_BLOCKS"
	envParcelWeightMult = "VISION_PARCEL_WEIGHT_MULT"
	envEnableEmission   = "VISION_TOK_ENABLE_EMISSION"
	envAllowSeedExport  = "VISION_ALLOW_SEED_EXPORT"
)

// ApplyEnv overrides cfg with whichever VISION_* environment variables are
// set, the layer between a config file and CLI flags.
func ApplyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(envPort); ok {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envPort, err)
		}
		cfg.Port = uint16(n)
	}
	if v, ok := os.LookupEnv(envDataDir); ok && v != "" {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv(envPeers); ok {
		cfg.Peers = splitCSV(v)
	}
	if v, ok := os.LookupEnv(envAdminToken); ok {
		cfg.AdminToken = v
	}
	if v, ok := os.LookupEnv(envEpochBlocks); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envEpochBlocks, err)
		}
		cfg.EpochBlocks = n
	}
	if v, ok := os.LookupEnv(envParcelWeightMult); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envParcelWeightMult, err)
		}
		cfg.ParcelWeightMult = n
	}
	if v, ok := os.LookupEnv(envEnableEmission); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envEnableEmission, err)
		}
		cfg.EnableEmission = b
	}
	if v, ok := os.LookupEnv(envAllowSeedExport); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envAllowSeedExport, err)
		}
		cfg.AllowSeedExport = b
	}
	return nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ApplyToChainConfig folds the subset of Config that overrides a protocol
// constant into a copy of base, leaving base itself untouched.
func (cfg *Config) ApplyToChainConfig(base *params.ChainConfig) *params.ChainConfig {
	out := *base
	out.NetworkID = cfg.NetworkID
	if cfg.EpochBlocks != 0 {
		out.EpochBlocks = cfg.EpochBlocks
	}
	if !cfg.EnableEmission {
		out.BaseEmission = 0
	}
	return &out
}

// StoreConfig builds the database.Config this node's store opens with.
func (cfg *Config) StoreConfig() database.Config {
	return database.Config{
		Dir:              cfg.DataDir,
		DBType:           cfg.DBType,
		LevelDBCacheSize: cfg.LevelDBCacheSize,
		LevelDBHandles:   cfg.LevelDBHandles,
	}
}
