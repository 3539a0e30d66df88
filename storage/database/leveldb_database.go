// Adapted for Vision Node: kept the teacher's levelDB shape (compaction/disk
// metrics collected via rcrowley/go-metrics, the corruption-recovery retry
// in NewLDBDatabase, OpenFileLimit) and its file-level lock semantics
// (goleveldb itself takes an exclusive flock on its own LOCK file; the
// store's process-exclusive path lock is the separate one in lock.go);
// added RangeScan over NewIterator(util.BytesPrefix) and a mixed put/delete
// Batch in place of the teacher's put-only one.

package database

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/syndtr/goleveldb/leveldb"
	lvlerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/vision-chain/vision-node/log"
)

const OpenFileLimit = 64

func getLDBOptions(ldbCacheSize, numHandles int) *opt.Options {
	return &opt.Options{
		OpenFilesCacheCapacity: numHandles,
		BlockCacheCapacity:     ldbCacheSize / 2 * opt.MiB,
		WriteBuffer:            ldbCacheSize / 4 * opt.MiB,
		Filter:                 nil,
		CompactionTableSize:    2 * opt.MiB,
	}
}

type levelDB struct {
	fn string
	db *leveldb.DB

	compTimeMeter  metrics.Meter
	compReadMeter  metrics.Meter
	compWriteMeter metrics.Meter
	diskReadMeter  metrics.Meter
	diskWriteMeter metrics.Meter

	quitLock sync.Mutex
	quitChan chan chan error

	log log.Logger
}

func newLevelDB(dbDir string, cacheSize, handles int) (*levelDB, error) {
	if err := ensureDir(dbDir); err != nil {
		return nil, errors.Wrapf(err, "levelDB: prepare dir %s", dbDir)
	}
	if handles < 16 {
		handles = 16
	}
	if cacheSize < 16 {
		cacheSize = 16
	}

	ldbLogger := log.NewModuleLogger(log.ModuleStorage).With("dbDir", dbDir)
	opts := getLDBOptions(cacheSize, handles)

	db, err := leveldb.OpenFile(dbDir, opts)
	if _, corrupted := err.(*lvlerrors.ErrCorrupted); corrupted {
		ldbLogger.Warn("recovering corrupted leveldb", "err", err)
		db, err = leveldb.RecoverFile(dbDir, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "levelDB: open %s", dbDir)
	}

	ldb := &levelDB{fn: dbDir, db: db, log: ldbLogger}
	ldb.meterize(3 * time.Second)
	return ldb, nil
}

func (db *levelDB) Type() DBType { return LevelDB }
func (db *levelDB) Path() string { return db.fn }

func (db *levelDB) Put(key, value []byte) error {
	return db.db.Put(key, value, nil)
}

func (db *levelDB) Has(key []byte) (bool, error) {
	return db.db.Has(key, nil)
}

func (db *levelDB) Get(key []byte) ([]byte, error) {
	val, err := db.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrKeyNotFound
	}
	return val, err
}

func (db *levelDB) Delete(key []byte) error {
	return db.db.Delete(key, nil)
}

func (db *levelDB) RangeScan(prefix []byte, fn func(key, value []byte) bool) error {
	it := db.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		key := append([]byte(nil), it.Key()...)
		val := append([]byte(nil), it.Value()...)
		if !fn(key, val) {
			break
		}
	}
	return it.Error()
}

func (db *levelDB) Close() {
	db.quitLock.Lock()
	defer db.quitLock.Unlock()

	if db.quitChan != nil {
		errc := make(chan error)
		db.quitChan <- errc
		if err := <-errc; err != nil {
			db.log.Error("metrics collection failed", "err", err)
		}
		db.quitChan = nil
	}
	if err := db.db.Close(); err != nil {
		db.log.Error("failed to close database", "err", err)
		return
	}
	db.log.Info("database closed")
}

// meterize wires the compaction/disk-io meters the teacher's levelDB always
// collected, then starts the periodic sampler goroutine.
func (db *levelDB) meterize(refresh time.Duration) {
	prefix := fmt.Sprintf("storage/leveldb/%s/", db.fn)
	db.compTimeMeter = metrics.NewRegisteredMeter(prefix+"compaction/time", nil)
	db.compReadMeter = metrics.NewRegisteredMeter(prefix+"compaction/read", nil)
	db.compWriteMeter = metrics.NewRegisteredMeter(prefix+"compaction/write", nil)
	db.diskReadMeter = metrics.NewRegisteredMeter(prefix+"disk/read", nil)
	db.diskWriteMeter = metrics.NewRegisteredMeter(prefix+"disk/write", nil)

	if !metrics.Enabled {
		return
	}

	db.quitLock.Lock()
	db.quitChan = make(chan chan error)
	db.quitLock.Unlock()

	go db.meter(refresh)
}

func (db *levelDB) meter(refresh time.Duration) {
	s := new(leveldb.DBStats)

	var prevCompRead, prevCompWrite int64
	var prevCompTime time.Duration
	var prevRead, prevWrite uint64

	var errc chan error
	var merr error

hasError:
	for {
		merr = db.db.Stats(s)
		if merr != nil {
			break
		}

		var currCompRead, currCompWrite int64
		var currCompTime time.Duration
		for i := range s.LevelDurations {
			currCompTime += s.LevelDurations[i]
			currCompRead += s.LevelRead[i]
			currCompWrite += s.LevelWrite[i]
		}

		db.compTimeMeter.Mark(int64(currCompTime.Seconds() - prevCompTime.Seconds()))
		db.compReadMeter.Mark(currCompRead - prevCompRead)
		db.compWriteMeter.Mark(currCompWrite - prevCompWrite)
		prevCompTime, prevCompRead, prevCompWrite = currCompTime, currCompRead, currCompWrite

		db.diskReadMeter.Mark(int64(s.IORead - prevRead))
		db.diskWriteMeter.Mark(int64(s.IOWrite - prevWrite))
		prevRead, prevWrite = s.IORead, s.IOWrite

		select {
		case errc = <-db.quitChan:
			break hasError
		case <-time.After(refresh):
		}
	}

	if errc == nil {
		errc = <-db.quitChan
	}
	errc <- merr
}

func (db *levelDB) NewBatch() Batch {
	return &ldbBatch{db: db.db, b: new(leveldb.Batch)}
}

type ldbBatch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *ldbBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *ldbBatch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

func (b *ldbBatch) ValueSize() int { return b.size }
func (b *ldbBatch) Write() error   { return b.db.Write(b.b, nil) }
func (b *ldbBatch) Reset()         { b.b.Reset(); b.size = 0 }
