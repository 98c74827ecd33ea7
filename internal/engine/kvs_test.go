package engine

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksandarhr/kvs/internal/kvserror"
)

func openTestStore(t *testing.T) (*KvStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(dir, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, dir
}

func TestGetStoredValueSurvivesReopen(t *testing.T) {
	store, dir := openTestStore(t)
	require.NoError(t, store.Set("key1", "value1"))

	value, ok, err := store.Get("key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value1", value)

	require.NoError(t, store.Close())

	reopened, err := Open(dir, nil, nil)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err = reopened.Get("key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value1", value)
}

func TestOverwriteValueSurvivesReopen(t *testing.T) {
	store, dir := openTestStore(t)
	require.NoError(t, store.Set("key1", "value1"))
	require.NoError(t, store.Set("key1", "value2"))

	value, ok, err := store.Get("key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value2", value)

	require.NoError(t, store.Close())

	reopened, err := Open(dir, nil, nil)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err = reopened.Get("key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value2", value)
}

func TestMissingKeySurvivesReopen(t *testing.T) {
	store, dir := openTestStore(t)

	_, ok, err := store.Get("absent")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Close())

	reopened, err := Open(dir, nil, nil)
	require.NoError(t, err)
	defer reopened.Close()

	_, ok, err = reopened.Get("absent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoveAbsentKeyIsError(t *testing.T) {
	store, _ := openTestStore(t)
	err := store.Remove("absent")
	require.ErrorIs(t, err, kvserror.ErrKeyNotFound)
}

func TestRemoveDeletesKey(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, store.Set("key1", "value1"))
	require.NoError(t, store.Remove("key1"))

	_, ok, err := store.Get("key1")
	require.NoError(t, err)
	require.False(t, ok)

	err = store.Remove("key1")
	require.ErrorIs(t, err, kvserror.ErrKeyNotFound)
}

func TestConcurrentSetSurvivesReopen(t *testing.T) {
	store, dir := openTestStore(t)

	const n = 1000
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			value := fmt.Sprintf("value-%d", i)
			require.NoError(t, store.Set(key, value))
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		want := fmt.Sprintf("value-%d", i)
		value, ok, err := store.Get(key)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, value)
	}

	require.NoError(t, store.Close())

	reopened, err := Open(dir, nil, nil)
	require.NoError(t, err)
	defer reopened.Close()

	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		want := fmt.Sprintf("value-%d", i)
		value, ok, err := reopened.Get(key)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, value)
	}
}

// TestCompactionReclaimsSpaceAndSurvivesReopen repeatedly overwrites a
// single key across enough writes to force several segment rotations under
// the default rotation threshold. SetRotationMinSize/SetCompactionDensityPercent
// are deliberately not used here: they are once-settable for the whole
// process (see config.go), so by the time this test runs another test in
// this package has very likely already opened a store and locked the
// defaults in. Every segment left behind by an earlier overwrite holds zero
// live keys once the key moves to a newer segment, so compaction reclaims
// it unconditionally (it never even needs the migrate path) — this holds
// under any rotation threshold, not just a tuned-down one.
func TestCompactionReclaimsSpaceAndSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir, nil, nil)
	require.NoError(t, err)

	const n = 10000
	for i := 0; i < n; i++ {
		value := fmt.Sprintf("value-%06d-%s", i, padding())
		require.NoError(t, store.Set("same-key", value))
	}
	finalValue := fmt.Sprintf("value-%06d-%s", n-1, padding())

	require.NoError(t, store.Close())

	reopened, err := Open(dir, nil, nil)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.Get("same-key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, finalValue, value)

	// Without reclamation every rotated-out segment sticks around, so the
	// directory would grow in proportion to n (each record is 102 bytes, so
	// 1,020,000 bytes at n=10000, above the 786,432-byte bound below).
	// With reclamation at most the still-referenced previous segment plus
	// the still-filling active one survive, bounded by a small multiple of
	// the rotation threshold regardless of n.
	sizeAfter := diskUsage(t, reopened.dir)
	require.Less(t, sizeAfter, int64(rotationMinSizeBytes())*3)
}

func padding() string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func diskUsage(t *testing.T, dir string) int64 {
	t.Helper()
	var total int64
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		require.NoError(t, err)
		total += fi.Size()
	}
	return total
}
