// Command vision-node runs one Vision Node process: storage, the chain
// engine, the mempool, the P2P server, the deposit watcher bridge, and
// (when enabled) a mining worker pool.
//
// Grounded on the teacher's cmd/klay/main.go and cmd/utils/nodecmd flag
// wiring, retargeted from cli.v1's geth-derived command tree onto this
// chain's much smaller flag set (spec §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/vision-chain/vision-node/chain"
	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/config"
	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/log"
	"github.com/vision-chain/vision-node/mempool"
	"github.com/vision-chain/vision-node/miner"
	"github.com/vision-chain/vision-node/p2p"
	"github.com/vision-chain/vision-node/params"
	"github.com/vision-chain/vision-node/state"
	"github.com/vision-chain/vision-node/storage/database"
	"github.com/vision-chain/vision-node/watcher"
)

// Exit codes, spec §6.
const (
	exitClean          = 0
	exitInvalidArgs    = 2
	exitStorageLocked  = 3
	exitSchemaMismatch = 4
)

func main() {
	app := cli.NewApp()
	app.Name = "vision-node"
	app.Usage = "run a Vision Node PoW/LAND chain process"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "TOML configuration file"},
		cli.IntFlag{Name: "port", Usage: "P2P listen port"},
		cli.StringFlag{Name: "data", Usage: "data directory"},
		cli.BoolFlag{Name: "reset", Usage: "wipe the data directory before starting"},
		cli.BoolFlag{Name: "enable-mining", Usage: "run a local mining worker pool"},
		cli.StringFlag{Name: "peers", Usage: "comma-separated host:port peer list"},
		cli.StringFlag{Name: "role", Usage: "constellation|standalone"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		if ec, ok := err.(cli.ExitCoder); ok {
			os.Exit(ec.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInvalidArgs)
	}
}

func run(ctx *cli.Context) error {
	cfg := config.Default()
	if file := ctx.String("config"); file != "" {
		if err := config.Load(file, cfg); err != nil {
			return cli.NewExitError(fmt.Sprintf("vision-node: loading config: %v", err), exitInvalidArgs)
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return cli.NewExitError(fmt.Sprintf("vision-node: %v", err), exitInvalidArgs)
	}
	applyFlags(ctx, cfg)

	role, err := params.ParseRole(cfg.Role)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("vision-node: %v", err), exitInvalidArgs)
	}

	logger := log.NewModuleLogger(log.ModuleNode)

	if cfg.Reset {
		if err := os.RemoveAll(cfg.DataDir); err != nil {
			return cli.NewExitError(fmt.Sprintf("vision-node: --reset: %v", err), exitInvalidArgs)
		}
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return cli.NewExitError(fmt.Sprintf("vision-node: creating data dir: %v", err), exitInvalidArgs)
	}

	store, err := database.Open(cfg.StoreConfig())
	if err != nil {
		if err == database.ErrStorageLocked {
			return cli.NewExitError(err.Error(), exitStorageLocked)
		}
		if err == database.ErrSchemaTooNew {
			return cli.NewExitError(err.Error(), exitSchemaMismatch)
		}
		return cli.NewExitError(err.Error(), exitInvalidArgs)
	}

	chainCfg := cfg.ApplyToChainConfig(params.DefaultChainConfig)
	if chainCfg.AdminAddress == (common.Address{}) {
		chainCfg.AdminAddress = nodeIdentity(cfg.DataDir).address
	}

	newStore := func() (*database.Store, error) {
		return database.Open(database.Config{DBType: database.MemDB})
	}

	genesis := config.BuildGenesis(chainCfg)
	engine, err := chain.New(chainCfg, store, newStore, genesis)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("vision-node: building chain: %v", err), exitInvalidArgs)
	}
	for height, hash := range config.CompiledCheckpoints {
		engine.AddCheckpoint(height, hash)
	}

	pool := mempool.New(chainCfg, engine.StateMachine())

	ident := nodeIdentity(cfg.DataDir)
	srv := p2p.NewServer(chainCfg.NetworkID, role.String(), engine, pool)
	if err := srv.Listen(cfg.Port); err != nil {
		return cli.NewExitError(err.Error(), exitInvalidArgs)
	}
	srv.DialPeers(cfg.Peers)

	bridge := watcher.NewBridge()
	book := watcher.NewAddressBook(ident.privateKey)
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	for chainName, ep := range cfg.WatcherRPC {
		pc := watcher.PollConfig{Chain: chainName, RPCURL: ep.URL, RPCUser: ep.User, RPCPass: ep.Pass, PollInterval: 30 * time.Second}
		broker := watcher.NewMemoryBroker(64)
		w := watcher.NewRPCWatcher(pc, book, broker)
		go w.Run(watchCtx)
		go bridge.Consume(watchCtx, broker)
	}

	var miners *miner.Pool
	if cfg.EnableMining && role == params.RoleConstellation {
		miners, err = miner.New(miner.ProfileBalanced)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("vision-node: starting miner: %v", err), exitInvalidArgs)
		}
	}

	runLoop := newNodeLoop(chainCfg, engine, pool, bridge, srv, miners, ident.address)
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	go runLoop.run(loopCtx)

	logger.Info("vision-node started", "role", role.String(), "port", cfg.Port, "data", cfg.DataDir, "mining", cfg.EnableMining)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	cancelLoop()
	cancelWatch()
	if miners != nil {
		miners.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown did not complete cleanly", "err", err)
	}
	return nil
}

func applyFlags(ctx *cli.Context, cfg *config.Config) {
	if ctx.IsSet("port") {
		cfg.Port = uint16(ctx.Int("port"))
	}
	if ctx.IsSet("data") {
		cfg.DataDir = ctx.String("data")
	}
	if ctx.IsSet("reset") {
		cfg.Reset = ctx.Bool("reset")
	}
	if ctx.IsSet("enable-mining") {
		cfg.EnableMining = ctx.Bool("enable-mining")
	}
	if ctx.IsSet("peers") {
		for _, p := range strings.Split(ctx.String("peers"), ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Peers = append(cfg.Peers, p)
			}
		}
	}
	if ctx.IsSet("role") {
		cfg.Role = ctx.String("role")
	}
}

type identity struct {
	privateKey []byte
	address    common.Address
}

// nodeIdentity loads this node's Ed25519 key from <dataDir>/nodekey,
// generating and persisting one on first run. The private key also seeds
// the watcher AddressBook's deposit-address derivation, so restoring from
// backup restores every previously derived deposit address too.
func nodeIdentity(dataDir string) identity {
	path := filepath.Join(dataDir, "nodekey")
	if raw, err := os.ReadFile(path); err == nil && len(raw) == 64 {
		pub := raw[32:]
		return identity{privateKey: raw, address: crypto.PubKeyToAddress(pub)}
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		panic(fmt.Sprintf("vision-node: generating node key: %v", err))
	}
	if err := os.MkdirAll(dataDir, 0o755); err == nil {
		_ = os.WriteFile(path, kp.Private, 0o600)
	}
	return identity{privateKey: kp.Private, address: crypto.PubKeyToAddress(kp.Public)}
}

// nodeLoop assembles and mines candidate blocks, feeding confirmed
// deposits and mined blocks back into the chain engine.
type nodeLoop struct {
	cfg      *params.ChainConfig
	engine   *chain.Engine
	pool     *mempool.Pool
	bridge   *watcher.Bridge
	server   *p2p.Server
	miners   *miner.Pool
	coinbase common.Address
	log      log.Logger

	// pendingDeposits is the deposit set drained for whichever template is
	// currently out at the miner pool. PrepareBlock's ReceiptsRoot preview
	// and the later Accept call for the same block must see the identical
	// slice, or the receipts root a miner found a nonce for won't match
	// what Accept recomputes — so it's drained once per template and
	// reused, never redrained at acceptance time.
	pendingDeposits []state.PendingDeposit
}

func newNodeLoop(cfg *params.ChainConfig, engine *chain.Engine, pool *mempool.Pool, bridge *watcher.Bridge, server *p2p.Server, miners *miner.Pool, coinbase common.Address) *nodeLoop {
	return &nodeLoop{cfg: cfg, engine: engine, pool: pool, bridge: bridge, server: server, miners: miners, coinbase: coinbase, log: log.NewModuleLogger(log.ModuleNode)}
}

func (l *nodeLoop) run(ctx context.Context) {
	if l.miners == nil {
		<-ctx.Done()
		return
	}

	l.submitNextTemplate()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-l.miners.Results:
			block := res.Task.Block
			block.Header.Nonce = res.Header.Nonce
			accepted, depth, err := l.engine.Accept(block, l.pendingDeposits)
			if err != nil {
				l.log.Warn("mined block rejected", "err", err)
			} else if accepted {
				l.log.Info("mined block accepted", "height", block.Header.Height, "reorg_depth", depth)
				l.pool.OnBlockApplied(block)
				l.server.AnnounceBlock(block)
			}
			l.submitNextTemplate()
		case <-ticker.C:
			l.submitNextTemplate()
		}
	}
}

// drainDeposits pulls every sighting that has cleared its chain's
// confirmation depth out of the bridge and shapes it for Engine.Accept.
func (l *nodeLoop) drainDeposits() []state.PendingDeposit {
	events := l.bridge.DrainConfirmed(nil)
	if len(events) == 0 {
		return nil
	}
	return watcher.ToPendingDeposits(events)
}

// submitNextTemplate builds a candidate block on top of the current tip
// and hands it to the miner pool; a new tip or a new epoch of pooled
// transactions invalidates whatever search was in flight.
func (l *nodeLoop) submitNextTemplate() {
	tipHash, tipHeight := l.engine.BestTip()
	txs := l.pool.SelectForBlock(l.cfg.MaxMessageSize/2, 4096)
	l.pendingDeposits = l.drainDeposits()
	block, err := l.engine.PrepareBlock(tipHash, tipHeight+1, uint64(time.Now().Unix()), l.coinbase, txs, l.pendingDeposits)
	if err != nil {
		l.log.Warn("failed to prepare block template", "err", err)
		return
	}
	l.miners.SubmitWork(block)
}
