package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksandarhr/kvs/internal/kvserror"
)

func TestBoltEngineGetSetRemove(t *testing.T) {
	dir := t.TempDir()
	eng, err := OpenBolt(dir)
	require.NoError(t, err)
	defer eng.Close()

	_, ok, err := eng.Get("key1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, eng.Set("key1", "value1"))
	value, ok, err := eng.Get("key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value1", value)

	require.NoError(t, eng.Set("key1", "value2"))
	value, ok, err = eng.Get("key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value2", value)

	require.NoError(t, eng.Remove("key1"))
	_, ok, err = eng.Get("key1")
	require.NoError(t, err)
	require.False(t, ok)

	err = eng.Remove("key1")
	require.ErrorIs(t, err, kvserror.ErrKeyNotFound)
}

func TestBoltEngineRejectsWrongEngineDirectory(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(dir, nil, nil)
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	_, err = OpenBolt(dir)
	require.ErrorIs(t, err, kvserror.ErrWrongEngine)
}
