// Adapted for Vision Node: the teacher kept a MemDatabase for unit tests
// and for the in-memory "table" used to index bloom-filter sections; here it
// gives tests a Store with no disk I/O and backs the throwaway stores
// cmd/vision-node hands the chain engine for fork replay.

package database

import "sync"

type memoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newMemoryDB() *memoryDB {
	return &memoryDB{data: make(map[string][]byte)}
}

func (m *memoryDB) Type() DBType { return MemDB }
func (m *memoryDB) Path() string { return "" }

func (m *memoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *memoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

type memKV struct {
	k, v []byte
}

func (m *memoryDB) RangeScan(prefix []byte, fn func(key, value []byte) bool) error {
	m.mu.RLock()
	var matches []memKV
	for k, v := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == string(prefix) {
			matches = append(matches, memKV{[]byte(k), append([]byte(nil), v...)})
		}
	}
	m.mu.RUnlock()

	sortKVs(matches)
	for _, e := range matches {
		if !fn(e.k, e.v) {
			break
		}
	}
	return nil
}

func sortKVs(matches []memKV) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && string(matches[j-1].k) > string(matches[j].k); j-- {
			matches[j-1], matches[j] = matches[j], matches[j-1]
		}
	}
}

func (m *memoryDB) Close() {}

func (m *memoryDB) NewBatch() Batch {
	return &memBatch{db: m}
}

type memBatch struct {
	db  *memoryDB
	ops []Op
}

func (b *memBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, Op{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	b.ops = append(b.ops, Op{Key: append([]byte(nil), key...), Delete: true})
	return nil
}

func (b *memBatch) ValueSize() int {
	n := 0
	for _, op := range b.ops {
		n += len(op.Key) + len(op.Value)
	}
	return n
}

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.Delete {
			delete(b.db.data, string(op.Key))
			continue
		}
		b.db.data[string(op.Key)] = op.Value
	}
	return nil
}

func (b *memBatch) Reset() { b.ops = b.ops[:0] }
