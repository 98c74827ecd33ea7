package engine

import (
	"hash/fnv"
	"sync"
)

// logPointer identifies one command record: the segment that holds it and
// its byte offset within that segment's file.
type logPointer struct {
	segmentID uint64
	offset    uint64
}

// shardedIndex is the in-memory key index: a concurrent map from key to
// logPointer supporting lock-free-ish lookup (only the owning shard's
// RWMutex is taken, read-locked) and per-shard locked insert/remove.
// Grounded on the sharded-map technique shown in the retrieval pack's
// hashindex reference (intellect4all-storage-engines), since no teacher
// go.mod imports an off-the-shelf concurrent map library (e.g. no
// sync.Map-replacement or dashmap-equivalent dependency appears anywhere
// in the pack) — this is hand-rolled on sync.RWMutex for that reason.
const indexShardCount = 32

type indexShard struct {
	mu sync.RWMutex
	m  map[string]logPointer
}

type shardedIndex struct {
	shards [indexShardCount]*indexShard
}

func newShardedIndex() *shardedIndex {
	idx := &shardedIndex{}
	for i := range idx.shards {
		idx.shards[i] = &indexShard{m: make(map[string]logPointer)}
	}
	return idx
}

func (s *shardedIndex) shardFor(key string) *indexShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%indexShardCount]
}

// lookup returns the pointer for key and whether it was present.
func (s *shardedIndex) lookup(key string) (logPointer, bool) {
	shard := s.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	p, ok := shard.m[key]
	return p, ok
}

// publish records (or overwrites) key's pointer.
func (s *shardedIndex) publish(key string, p logPointer) {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.m[key] = p
}

// delete removes key, reporting whether it was present.
func (s *shardedIndex) delete(key string) bool {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, ok := shard.m[key]; !ok {
		return false
	}
	delete(shard.m, key)
	return true
}

// forEach calls fn for every (key, pointer) currently in the index. Used
// only by compaction's classification pass, which needs a full scan; each
// shard is locked for the duration of its own iteration only.
func (s *shardedIndex) forEach(fn func(key string, p logPointer)) {
	for _, shard := range s.shards {
		shard.mu.RLock()
		for k, p := range shard.m {
			fn(k, p)
		}
		shard.mu.RUnlock()
	}
}
