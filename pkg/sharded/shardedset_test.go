package sharded

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func TestShardedSet_Basic(t *testing.T) {
	s := NewShardedSet()
	key := filepath.Join("dst", "a", "b")

	if s.Has(key) {
		t.Errorf("Has(%q) = true; want false for non-existent key", key)
	}

	s.Store(key)
	if !s.Has(key) {
		t.Errorf("Has(%q) = false; want true after storing", key)
	}

	// Storing twice is a no-op.
	s.Store(key)
	if !s.Has(key) {
		t.Errorf("Has(%q) = false; want true after storing twice", key)
	}

	if parent := filepath.Dir(key); s.Has(parent) {
		t.Errorf("Has(%q) = true; parents are not stored implicitly", parent)
	}
}

// Writers and readers racing on overlapping directory keys must never lose a
// stored key.
func TestShardedSet_Concurrent(t *testing.T) {
	s := NewShardedSet()
	numGoroutines := 50
	numKeys := 200
	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for g := 0; g < numGoroutines; g++ {
		g := g
		go func() {
			defer wg.Done()
			for j := 0; j < numKeys; j++ {
				key := fmt.Sprintf("dir-%d", j)
				if g%2 == 0 {
					s.Store(key)
				} else {
					s.Has(key)
				}
			}
		}()
	}
	wg.Wait()

	for j := 0; j < numKeys; j++ {
		key := fmt.Sprintf("dir-%d", j)
		if !s.Has(key) {
			t.Errorf("Has(%q) = false after concurrent stores", key)
		}
	}
}
