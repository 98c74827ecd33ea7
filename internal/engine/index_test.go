package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShardedIndexPublishLookupDelete(t *testing.T) {
	idx := newShardedIndex()

	_, ok := idx.lookup("missing")
	require.False(t, ok)

	idx.publish("key1", logPointer{segmentID: 1, offset: 10})
	p, ok := idx.lookup("key1")
	require.True(t, ok)
	require.Equal(t, logPointer{segmentID: 1, offset: 10}, p)

	idx.publish("key1", logPointer{segmentID: 2, offset: 20})
	p, ok = idx.lookup("key1")
	require.True(t, ok)
	require.Equal(t, logPointer{segmentID: 2, offset: 20}, p)

	require.True(t, idx.delete("key1"))
	_, ok = idx.lookup("key1")
	require.False(t, ok)
	require.False(t, idx.delete("key1"))
}

func TestShardedIndexForEachVisitsEveryEntry(t *testing.T) {
	idx := newShardedIndex()
	const n = 200
	for i := 0; i < n; i++ {
		idx.publish(fmt.Sprintf("key-%d", i), logPointer{segmentID: uint64(i), offset: uint64(i)})
	}

	seen := make(map[string]bool)
	idx.forEach(func(key string, p logPointer) {
		seen[key] = true
	})
	require.Len(t, seen, n)
}

func TestShardedIndexConcurrentAccess(t *testing.T) {
	idx := newShardedIndex()
	var wg sync.WaitGroup
	const n = 500
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%50)
			idx.publish(key, logPointer{segmentID: uint64(i), offset: uint64(i)})
			idx.lookup(key)
		}()
	}
	wg.Wait()
}
