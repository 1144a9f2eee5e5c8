// Package sharded provides a string set split across independently locked
// shards, so concurrent backup workers rarely contend on the same mutex.
package sharded

import (
	"hash/fnv"
	"sync"
)

// numSetShards must be a power of two for the bitwise modulus in shardIndex.
const numSetShards = 64

type setShard struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// ShardedSet is a concurrent set of strings.
type ShardedSet []*setShard

// NewShardedSet returns an empty set.
func NewShardedSet() *ShardedSet {
	s := make(ShardedSet, numSetShards)
	for i := 0; i < numSetShards; i++ {
		s[i] = &setShard{items: make(map[string]struct{})}
	}
	return &s
}

// shardIndex hashes key with FNV-1a and folds it onto the shard count.
func shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() & uint32(numSetShards-1))
}

func (s *ShardedSet) getShard(key string) *setShard {
	return (*s)[shardIndex(key)]
}

// Store adds key to the set.
func (s *ShardedSet) Store(key string) {
	shard := s.getShard(key)
	shard.mu.Lock()
	shard.items[key] = struct{}{}
	shard.mu.Unlock()
}

// Has checks only for the presence of a key.
func (s *ShardedSet) Has(key string) bool {
	shard := s.getShard(key)
	shard.mu.RLock()
	_, exists := shard.items[key]
	shard.mu.RUnlock()
	return exists
}
