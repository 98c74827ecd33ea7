package client_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aleksandarhr/kvs/internal/acceptor"
	"github.com/aleksandarhr/kvs/internal/client"
	"github.com/aleksandarhr/kvs/internal/dispatch"
	"github.com/aleksandarhr/kvs/internal/engine"
	"github.com/aleksandarhr/kvs/internal/kvserror"
	"github.com/aleksandarhr/kvs/internal/threadpool"
)

func startServer(t *testing.T) (addr string, shutdown func()) {
	t.Helper()

	eng, err := engine.Open(t.TempDir(), nil, nil)
	require.NoError(t, err)

	workers := threadpool.NewSharedQueuePool(2, nil)
	acceptorWorkers := threadpool.NewSharedQueuePool(2, nil)
	acceptorPool, err := acceptor.New("127.0.0.1:0", 2, acceptorWorkers, nil)
	require.NoError(t, err)

	server := dispatch.New(eng, acceptorPool, workers, nil, nil)

	done := make(chan struct{})
	go func() {
		server.Run()
		close(done)
	}()

	return acceptorPool.Addr().String(), func() {
		server.Shutdown()
		<-done
		workers.Shutdown()
		acceptorWorkers.Shutdown()
		_ = eng.Close()
	}
}

func TestClientRoundTrip(t *testing.T) {
	addr, shutdown := startServer(t)
	defer shutdown()

	c := client.New(addr).WithTimeout(2 * time.Second)

	require.NoError(t, c.Set("a", "1"))

	value, ok, err := c.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", value)

	_, ok, err = c.Get("never-set")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClientRemoveMissingKeyReturnsSentinel(t *testing.T) {
	addr, shutdown := startServer(t)
	defer shutdown()

	c := client.New(addr).WithTimeout(2 * time.Second)

	err := c.Remove("missing")
	require.ErrorIs(t, err, kvserror.ErrKeyNotFound)
}

func TestClientDialFailureReturnsError(t *testing.T) {
	c := client.New("127.0.0.1:1").WithTimeout(200 * time.Millisecond)
	_, _, err := c.Get("a")
	require.Error(t, err)
}
