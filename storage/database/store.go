// Adapted for Vision Node: generalizes the teacher's DBManager (one backend
// selected by DBConfig.DBType, chain-data partitions addressed through
// fixed accessor methods) into the spec §4.1 tree-keyed Store: one open
// backend, named trees addressed by string instead of a fixed enum of chain
// partitions, and a real mixed put/delete atomic_batch spanning any set of
// trees in one commit (the teacher's Batch only ever accumulated Puts for a
// single already-prefixed table).

package database

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/vision-chain/vision-node/log"
)

// Config selects the backend and tuning knobs for Open, grounded on the
// teacher's DBConfig (Dir/DBType/LevelDBCacheSize/LevelDBHandles survive
// under the same names; ChildChainIndexing and the partitioned-DB knobs
// don't, since this chain has one partition and no child-chain concept).
type Config struct {
	Dir              string
	DBType           DBType
	LevelDBCacheSize int
	LevelDBHandles   int
}

// Store is the single opened storage handle a node process holds for its
// whole lifetime: one backend database, a process-exclusive lock on Dir,
// and the named trees layered over it via key-prefixing.
type Store struct {
	cfg  Config
	db   Database
	lock *pathLock
	log  log.Logger
}

// Open acquires the exclusive path lock, opens the selected backend, and
// runs any pending schema migration before returning. Returns
// ErrStorageLocked if another process already holds dir.
func Open(cfg Config) (*Store, error) {
	logger := log.NewModuleLogger(log.ModuleStorage).With("dir", cfg.Dir, "backend", string(cfg.DBType))

	if cfg.DBType == MemDB {
		s := &Store{cfg: cfg, db: newMemoryDB(), log: logger}
		if err := s.runMigrations(); err != nil {
			return nil, err
		}
		return s, nil
	}

	lock, err := acquirePathLock(cfg.Dir)
	if err != nil {
		return nil, err
	}

	var db Database
	switch cfg.DBType {
	case BadgerDB:
		db, err = newBadgerDB(cfg.Dir)
	case LevelDB:
		db, err = newLevelDB(cfg.Dir, cfg.LevelDBCacheSize, cfg.LevelDBHandles)
	default:
		err = errors.Errorf("storage: unknown backend %q", cfg.DBType)
	}
	if err != nil {
		lock.release()
		return nil, err
	}

	s := &Store{cfg: cfg, db: db, lock: lock, log: logger}
	if err := s.runMigrations(); err != nil {
		db.Close()
		lock.release()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.db.Close()
	if s.lock != nil {
		return s.lock.release()
	}
	return nil
}

// TreeHandle is a key-prefixed view over the Store for one named tree.
type TreeHandle struct {
	store  *Store
	prefix []byte
}

func (s *Store) Tree(t Tree) *TreeHandle {
	return &TreeHandle{store: s, prefix: treePrefix(t)}
}

func (h *TreeHandle) key(k []byte) []byte {
	return append(append([]byte(nil), h.prefix...), k...)
}

func (h *TreeHandle) Get(key []byte) ([]byte, error) {
	return h.store.db.Get(h.key(key))
}

func (h *TreeHandle) Has(key []byte) (bool, error) {
	return h.store.db.Has(h.key(key))
}

func (h *TreeHandle) Put(key, value []byte) error {
	return h.store.db.Put(h.key(key), value)
}

func (h *TreeHandle) Delete(key []byte) error {
	return h.store.db.Delete(h.key(key))
}

// RangeScan walks every key in the tree beginning with subPrefix, handing
// the caller back the key with the tree's own prefix already stripped.
func (h *TreeHandle) RangeScan(subPrefix []byte, fn func(key, value []byte) bool) error {
	full := h.key(subPrefix)
	return h.store.db.RangeScan(full, func(key, value []byte) bool {
		return fn(key[len(h.prefix):], value)
	})
}

// WriteOp is one entry of an atomic_batch: a put or delete against a named
// tree. Multiple ops across different trees commit together in one call to
// AtomicBatch, matching spec §4.1's "atomic_batch(&[Op]) -> Result".
type WriteOp struct {
	Tree   Tree
	Key    []byte
	Value  []byte
	Delete bool
}

// AtomicBatch commits every op or none of them: the state machine's apply()
// relies on this to make a block's balance/nonce/order/receipt writes
// indivisible (spec §4.4's "apply either commits fully or not at all").
func (s *Store) AtomicBatch(ops []WriteOp) error {
	b := s.db.NewBatch()
	for _, op := range ops {
		full := append(append([]byte(nil), treePrefix(op.Tree)...), op.Key...)
		if op.Delete {
			if err := b.Delete(full); err != nil {
				return err
			}
			continue
		}
		if err := b.Put(full, op.Value); err != nil {
			return err
		}
	}
	return b.Write()
}

// --- schema versioning / migration ---

var schemaVersionKey = []byte("schema_version")

// CurrentSchemaVersion is bumped whenever a migration is added below.
const CurrentSchemaVersion uint64 = 1

// migration transforms a store from one schema version to the next. Keyed
// by the version it migrates FROM.
type migration func(s *Store) error

// migrations is empty at v1 (genesis schema); the spec's worked example of
// renaming a "cash_orders" tree to "market_cash_orders" would register here
// as migrations[1] when a v2 schema is introduced.
var migrations = map[uint64]migration{}

func (s *Store) schemaVersion() (uint64, error) {
	tokenomics := s.Tree(TreeTokenomics)
	raw, err := tokenomics.Get(schemaVersionKey)
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (s *Store) setSchemaVersion(v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return s.Tree(TreeTokenomics).Put(schemaVersionKey, buf)
}

// runMigrations applies every registered migration in order starting from
// the on-disk version, rejecting a store whose schema is newer than this
// binary knows how to read.
func (s *Store) runMigrations() error {
	version, err := s.schemaVersion()
	if err != nil {
		return err
	}
	if version == 0 {
		return s.setSchemaVersion(CurrentSchemaVersion)
	}
	if version > CurrentSchemaVersion {
		return ErrSchemaTooNew
	}

	for version < CurrentSchemaVersion {
		m, ok := migrations[version]
		if !ok {
			return errors.Errorf("storage: no migration registered from schema v%d", version)
		}
		s.log.Info("running schema migration", "from", version)
		if err := m(s); err != nil {
			return errors.Wrapf(err, "storage: migration from v%d failed", version)
		}
		version++
		if err := s.setSchemaVersion(version); err != nil {
			return err
		}
	}
	return nil
}
