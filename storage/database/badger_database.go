// Adapted for Vision Node: kept the teacher's badgerDB shape (size-triggered
// value-log GC ticker, gcThreshold/sizeGCTickerTime constants) verbatim;
// generalized Put/Delete onto badger.Txn-backed batches so a single write
// path serves both the one-off Put/Delete methods and atomic_batch, added
// RangeScan over badger's prefix iterator, and switched the Batch to carry
// mixed put/delete ops instead of the teacher's put-only version.

package database

import (
	"time"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"

	"github.com/vision-chain/vision-node/log"
)

const gcThreshold = int64(1 << 30) // GB
const sizeGCTickerTime = 1 * time.Minute

type badgerDB struct {
	fn string // filename for reporting
	db *badger.DB

	gcTicker *time.Ticker // runs periodically and runs gc if db size exceeds the threshold.

	logger log.Logger // Contextual logger tracking the database path
}

func getBadgerDBDefaultOption(dbDir string) badger.Options {
	opts := badger.DefaultOptions
	opts.Dir = dbDir
	opts.ValueDir = dbDir
	return opts
}

func newBadgerDB(dbDir string) (*badgerDB, error) {
	if err := ensureDir(dbDir); err != nil {
		return nil, errors.Wrapf(err, "badgerDB: prepare dir %s", dbDir)
	}

	opts := getBadgerDBDefaultOption(dbDir)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "badgerDB: open %s", dbDir)
	}

	bg := &badgerDB{
		fn:       dbDir,
		db:       db,
		logger:   log.NewModuleLogger(log.ModuleStorage).With("dbDir", dbDir),
		gcTicker: time.NewTicker(sizeGCTickerTime),
	}

	go bg.runValueLogGC()

	return bg, nil
}

// runValueLogGC periodically checks the size of the value log and runs gc
// if it has grown past gcThreshold since the last check.
func (bg *badgerDB) runValueLogGC() {
	_, lastValueLogSize := bg.db.Size()

	for range bg.gcTicker.C {
		_, currValueLogSize := bg.db.Size()
		if currValueLogSize-lastValueLogSize < gcThreshold {
			continue
		}

		if err := bg.db.RunValueLogGC(0.5); err != nil {
			bg.logger.Warn("value log gc skipped", "err", err)
			continue
		}
		_, lastValueLogSize = bg.db.Size()
	}
}

func (bg *badgerDB) Type() DBType { return BadgerDB }
func (bg *badgerDB) Path() string { return bg.fn }

func (bg *badgerDB) Put(key, value []byte) error {
	return bg.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (bg *badgerDB) Has(key []byte) (bool, error) {
	var found bool
	err := bg.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (bg *badgerDB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := bg.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (bg *badgerDB) Delete(key []byte) error {
	return bg.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (bg *badgerDB) RangeScan(prefix []byte, fn func(key, value []byte) bool) error {
	return bg.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			key := append([]byte(nil), item.Key()...)
			if !fn(key, val) {
				break
			}
		}
		return nil
	})
}

func (bg *badgerDB) Close() {
	bg.gcTicker.Stop()
	if err := bg.db.Close(); err != nil {
		bg.logger.Error("failed to close badger database", "err", err)
		return
	}
	bg.logger.Info("database closed")
}

func (bg *badgerDB) NewBatch() Batch {
	return &badgerBatch{db: bg.db}
}

type badgerBatch struct {
	db   *badger.DB
	ops  []Op
	size int
}

func (b *badgerBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, Op{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
	b.size += len(key) + len(value)
	return nil
}

func (b *badgerBatch) Delete(key []byte) error {
	b.ops = append(b.ops, Op{Key: append([]byte(nil), key...), Delete: true})
	b.size += len(key)
	return nil
}

func (b *badgerBatch) ValueSize() int { return b.size }

func (b *badgerBatch) Write() error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, op := range b.ops {
			if op.Delete {
				if err := txn.Delete(op.Key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(op.Key, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *badgerBatch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}
