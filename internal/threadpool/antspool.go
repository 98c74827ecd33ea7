package threadpool

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/panjf2000/ants/v2"

	"github.com/aleksandarhr/kvs/internal/kvserror"
)

// AntsPool wraps a pre-warmed, auto-scaling goroutine pool from
// panjf2000/ants/v2 — the Go-ecosystem analogue of the work-stealing pool
// original_source builds over rayon in thread_pool/rayon.rs. No repo in
// the retrieval pack imports a goroutine-pool library, so this dependency
// is named rather than grounded in a teacher file (see DESIGN.md).
type AntsPool struct {
	pool   *ants.Pool
	logger log.Logger
}

var _ ThreadPool = (*AntsPool)(nil)

// NewAntsPool builds an ants.Pool capped at n concurrent goroutines.
// Mirrors rayon.rs's ThreadPoolBuilder::new().num_threads(threads).build().
func NewAntsPool(n int, logger log.Logger) (*AntsPool, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if n < 1 {
		n = 1
	}
	p, err := ants.NewPool(n, ants.WithPanicHandler(func(r interface{}) {
		level.Error(logger).Log("msg", "ants pool job panicked", "panic", r)
	}))
	if err != nil {
		return nil, kvserror.Wrapf(kvserror.ErrThread, "build ants pool: %v", err)
	}
	return &AntsPool{pool: p, logger: logger}, nil
}

// Spawn submits job to the pool. ants.Pool itself guarantees the worker
// count recovers from a panicking job (via the configured PanicHandler),
// matching the "panicking job must not reduce the pool's steady-state
// thread count" requirement in spec.md §4.3. The pool runs in ants'
// default blocking mode: when all n goroutines are busy, Spawn waits
// until one becomes free.
func (p *AntsPool) Spawn(fn func()) {
	if err := p.pool.Submit(fn); err != nil {
		level.Debug(p.logger).Log("msg", "ants pool submit failed", "err", err)
	}
}

// Shutdown releases the pool's goroutines.
func (p *AntsPool) Shutdown() {
	p.pool.Release()
}
