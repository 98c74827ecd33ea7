package threadpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSharedQueuePoolRunsJobs(t *testing.T) {
	pool := NewSharedQueuePool(4, nil)
	defer pool.Shutdown()

	var n int64
	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		pool.Spawn(func() {
			atomic.AddInt64(&n, 1)
			wg.Done()
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs did not complete in time")
	}
	require.EqualValues(t, 100, atomic.LoadInt64(&n))
}

func TestSharedQueuePoolRespawnsAfterPanic(t *testing.T) {
	pool := NewSharedQueuePool(1, nil)
	defer pool.Shutdown()

	pool.Spawn(func() { panic("boom") })

	var ran int64
	done := make(chan struct{})
	pool.Spawn(func() {
		atomic.StoreInt64(&ran, 1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not recover from panic")
	}
	require.EqualValues(t, 1, atomic.LoadInt64(&ran))
}

func TestSharedQueuePoolSpawnAfterShutdownDoesNotBlock(t *testing.T) {
	pool := NewSharedQueuePool(1, nil)
	pool.Shutdown()

	done := make(chan struct{})
	go func() {
		pool.Spawn(func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Spawn blocked after shutdown")
	}
}
