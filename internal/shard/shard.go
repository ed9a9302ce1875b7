// Package shard provides a string-keyed map split into independently locked
// shards, so that operations on unrelated keys do not contend.
package shard

import (
	"hash/fnv"

	"github.com/c-pro/geche"
)

const DefaultShards = 32

type Map[V any] struct {
	shards []*geche.Locker[string, V]
}

func New[V any](shards int) *Map[V] {
	if shards <= 0 {
		shards = DefaultShards
	}
	m := &Map[V]{shards: make([]*geche.Locker[string, V], shards)}
	for i := range m.shards {
		m.shards[i] = geche.NewLocker[string, V](geche.NewMapCache[string, V]())
	}
	return m
}

func (m *Map[V]) shard(key string) *geche.Locker[string, V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

// Update runs fn while the shard owning key is locked. fn gets the current
// value and whether it exists, and returns the value to store and whether to
// keep the key at all.
func (m *Map[V]) Update(key string, fn func(v V, ok bool) (V, bool)) {
	tx := m.shard(key).Lock()
	defer tx.Unlock()

	cur, err := tx.Get(key)
	next, keep := fn(cur, err == nil)
	if keep {
		tx.Set(key, next)
		return
	}
	if err == nil {
		_ = tx.Del(key)
	}
}

// View runs fn while the shard owning key is locked, without modifying it.
func (m *Map[V]) View(key string, fn func(v V, ok bool)) {
	tx := m.shard(key).Lock()
	defer tx.Unlock()

	cur, err := tx.Get(key)
	fn(cur, err == nil)
}

func (m *Map[V]) Get(key string) (V, bool) {
	var (
		v  V
		ok bool
	)
	m.View(key, func(cur V, found bool) {
		v, ok = cur, found
	})
	return v, ok
}

func (m *Map[V]) Set(key string, v V) {
	m.Update(key, func(V, bool) (V, bool) { return v, true })
}

func (m *Map[V]) Delete(key string) {
	m.Update(key, func(cur V, _ bool) (V, bool) { return cur, false })
}

// Len locks shards one at a time, so the total is not an atomic snapshot.
func (m *Map[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		tx := s.Lock()
		n += tx.Len()
		tx.Unlock()
	}
	return n
}

// Snapshot copies all entries, one shard at a time.
func (m *Map[V]) Snapshot() map[string]V {
	out := make(map[string]V)
	for _, s := range m.shards {
		tx := s.Lock()
		for k, v := range tx.Snapshot() {
			out[k] = v
		}
		tx.Unlock()
	}
	return out
}
