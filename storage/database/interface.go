// Adapted for Vision Node: the teacher's Database/Batch interfaces weren't
// present in the retrieval (only the badger/leveldb implementations against
// them), so their shape is reconstructed from every call site in
// badger_database.go and leveldb_database.go (Put/Has/Get/Delete/Close/
// NewBatch/Meter/Type/Path, plus the key-prefix Table wrapper both backends
// independently reimplement). What's added here is the spec's named-tree
// vocabulary: Store.Tree(name) returns the same kind of key-prefixed handle
// the teacher calls "table", just renamed and given range-scan and a real
// atomic batch with mixed put/delete ops instead of the teacher's put-only
// Batch.

package database

import "errors"

// DBType selects the on-disk engine backing a Store.
type DBType string

const (
	BadgerDB DBType = "badger"
	LevelDB  DBType = "leveldb"
	MemDB    DBType = "memory"
)

// Database is the raw key-value contract both backends satisfy before any
// tree-prefixing is applied.
type Database interface {
	Type() DBType
	Path() string

	Put(key, value []byte) error
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error

	// RangeScan iterates keys with the given prefix in ascending order,
	// calling fn(key, value) for each; fn returning false stops iteration.
	RangeScan(prefix []byte, fn func(key, value []byte) bool) error

	NewBatch() Batch
	Close()
}

// Op is one operation inside an atomic batch: Delete is true for a
// tombstone, false for a Put of Value.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Batch accumulates a set of writes that commit together or not at all,
// grounded on the teacher's badgerBatch/ldbBatch shape but generalized to
// mixed put/delete (the teacher's Batch only ever Put).
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	ValueSize() int
	Write() error
	Reset()
}

var (
	// ErrStorageLocked is returned by Open when another process already
	// holds the exclusive path lock (spec §4.1's crash-consistency /
	// single-writer requirement).
	ErrStorageLocked = errors.New("storage: database path is locked by another process")
	ErrKeyNotFound   = errors.New("storage: key not found")
	ErrSchemaTooNew  = errors.New("storage: on-disk schema is newer than this binary supports")
)
