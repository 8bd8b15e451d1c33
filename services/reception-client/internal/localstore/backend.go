package localstore

import (
	"context"
	"sort"
	"sync"
)

// Ops is the key/value surface every backend offers. Values are opaque
// bytes; index maps a name to the value records are looked up by.
type Ops interface {
	Get(ctx context.Context, collection, key string) ([]byte, bool, error)
	Put(ctx context.Context, collection, key string, value []byte, index map[string]string) error
	Delete(ctx context.Context, collection, key string) error
	// QueryByIndex returns matching values in first-insertion order. An
	// empty name returns the whole collection.
	QueryByIndex(ctx context.Context, collection, name, value string) ([][]byte, error)
}

// Backend is a durable Ops with multi-write atomicity.
type Backend interface {
	Ops
	Atomic(ctx context.Context, fn func(Ops) error) error
	Close() error
}

type memRecord struct {
	value []byte
	index map[string]string
	seq   uint64
}

// MemoryBackend keeps everything in process. Used by tests and when no
// database path is configured.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string]map[string]memRecord
	seq  uint64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: map[string]map[string]memRecord{}}
}

func (m *MemoryBackend) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Get(ctx, collection, key)
}

func (m *MemoryBackend) Put(ctx context.Context, collection, key string, value []byte, index map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Put(ctx, collection, key, value, index)
}

func (m *MemoryBackend) Delete(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Delete(ctx, collection, key)
}

func (m *MemoryBackend) QueryByIndex(ctx context.Context, collection, name, value string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().QueryByIndex(ctx, collection, name, value)
}

// Atomic runs fn against a copy and publishes it only when fn succeeds.
func (m *MemoryBackend) Atomic(_ context.Context, fn func(Ops) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := &memView{data: make(map[string]map[string]memRecord, len(m.data)), seq: m.seq}
	for c, recs := range m.data {
		cp := make(map[string]memRecord, len(recs))
		for k, r := range recs {
			cp[k] = r
		}
		work.data[c] = cp
	}
	if err := fn(work); err != nil {
		return err
	}
	m.data, m.seq = work.data, work.seq
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) view() *memView {
	return &memView{data: m.data, seq: m.seq, commit: func(seq uint64) { m.seq = seq }}
}

type memView struct {
	data   map[string]map[string]memRecord
	seq    uint64
	commit func(seq uint64)
}

func (v *memView) Get(_ context.Context, collection, key string) ([]byte, bool, error) {
	r, ok := v.data[collection][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), r.value...), true, nil
}

func (v *memView) Put(_ context.Context, collection, key string, value []byte, index map[string]string) error {
	recs, ok := v.data[collection]
	if !ok {
		recs = map[string]memRecord{}
		v.data[collection] = recs
	}
	seq := recs[key].seq
	if seq == 0 {
		v.seq++
		seq = v.seq
		if v.commit != nil {
			v.commit(v.seq)
		}
	}
	idx := make(map[string]string, len(index))
	for k, val := range index {
		idx[k] = val
	}
	recs[key] = memRecord{value: append([]byte(nil), value...), index: idx, seq: seq}
	return nil
}

func (v *memView) Delete(_ context.Context, collection, key string) error {
	delete(v.data[collection], key)
	return nil
}

func (v *memView) QueryByIndex(_ context.Context, collection, name, value string) ([][]byte, error) {
	var hits []memRecord
	for _, r := range v.data[collection] {
		if name == "" || r.index[name] == value {
			hits = append(hits, r)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })
	out := make([][]byte, 0, len(hits))
	for _, r := range hits {
		out = append(out, append([]byte(nil), r.value...))
	}
	return out, nil
}
