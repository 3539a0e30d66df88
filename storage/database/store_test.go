package database

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, dbType DBType) *Store {
	t.Helper()
	if dbType == MemDB {
		s, err := Open(Config{DBType: MemDB})
		require.NoError(t, err)
		return s
	}

	dir, err := ioutil.TempDir("", "vision-node-storage-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := Open(Config{Dir: dir, DBType: dbType, LevelDBCacheSize: 16, LevelDBHandles: 16})
	require.NoError(t, err)
	return s
}

func TestStore_TreePutGetDelete(t *testing.T) {
	for _, dbType := range []DBType{MemDB, LevelDB} {
		s := openTestStore(t, dbType)
		defer s.Close()

		balances := s.Tree(TreeBalances)
		require.NoError(t, balances.Put([]byte("addr1"), []byte("100")))

		got, err := balances.Get([]byte("addr1"))
		require.NoError(t, err)
		assert.Equal(t, "100", string(got))

		has, err := balances.Has([]byte("addr1"))
		require.NoError(t, err)
		assert.True(t, has)

		require.NoError(t, balances.Delete([]byte("addr1")))
		_, err = balances.Get([]byte("addr1"))
		assert.ErrorIs(t, err, ErrKeyNotFound)
	}
}

func TestStore_TreesAreIsolatedByPrefix(t *testing.T) {
	s := openTestStore(t, MemDB)
	defer s.Close()

	require.NoError(t, s.Tree(TreeBalances).Put([]byte("k"), []byte("balance-value")))
	require.NoError(t, s.Tree(TreeNonces).Put([]byte("k"), []byte("nonce-value")))

	got, err := s.Tree(TreeBalances).Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "balance-value", string(got))

	got, err = s.Tree(TreeNonces).Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "nonce-value", string(got))
}

func TestStore_AtomicBatchAllOrNothing(t *testing.T) {
	s := openTestStore(t, MemDB)
	defer s.Close()

	err := s.AtomicBatch([]WriteOp{
		{Tree: TreeBalances, Key: []byte("a"), Value: []byte("1")},
		{Tree: TreeNonces, Key: []byte("a"), Value: []byte("0")},
	})
	require.NoError(t, err)

	got, err := s.Tree(TreeBalances).Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))

	got, err = s.Tree(TreeNonces).Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "0", string(got))
}

func TestStore_RangeScanOrdersByKeyAndStripsPrefix(t *testing.T) {
	s := openTestStore(t, MemDB)
	defer s.Close()

	orders := s.Tree(TreeOrders)
	require.NoError(t, orders.Put([]byte("order-2"), []byte("b")))
	require.NoError(t, orders.Put([]byte("order-1"), []byte("a")))

	var keys []string
	require.NoError(t, orders.RangeScan([]byte("order-"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	assert.Equal(t, []string{"order-1", "order-2"}, keys)
}

func TestStore_SchemaVersionInitializesOnFirstOpen(t *testing.T) {
	s := openTestStore(t, MemDB)
	defer s.Close()

	v, err := s.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)
}

func TestOpen_SecondOpenOnSameDirFailsWithStorageLocked(t *testing.T) {
	dir, err := ioutil.TempDir("", "vision-node-storage-lock-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	first, err := Open(Config{Dir: dir, DBType: LevelDB, LevelDBCacheSize: 16, LevelDBHandles: 16})
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(Config{Dir: dir, DBType: LevelDB, LevelDBCacheSize: 16, LevelDBHandles: 16})
	assert.ErrorIs(t, err, ErrStorageLocked)
}
