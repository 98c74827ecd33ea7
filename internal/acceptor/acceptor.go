// Package acceptor implements the multi-listener acceptor pool: N workers
// sharing one bound TCP socket, pushing accepted connections onto a
// queue the server dispatcher consumes. Grounded on
// original_source/src/server/spawned_listener.rs, translated from a
// rayon-backed fan-out into Go goroutines run through a threadpool.ThreadPool.
package acceptor

import (
	"net"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/aleksandarhr/kvs/internal/threadpool"
)

// Pool runs n acceptor workers against one net.Listener, each looping on
// Accept and pushing the resulting net.Conn onto Connections.
type Pool struct {
	listener    net.Listener
	n           int
	pool        threadpool.ThreadPool
	logger      log.Logger
	Connections chan net.Conn

	shutdown chan struct{}
	stopped  chan struct{}
}

// New binds addr and prepares a pool of n acceptors; call Start to begin
// accepting.
func New(addr string, n int, pool threadpool.ThreadPool, logger log.Logger) (*Pool, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if n < 1 {
		n = 1
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Pool{
		listener:    ln,
		n:           n,
		pool:        pool,
		logger:      logger,
		Connections: make(chan net.Conn, 64),
		shutdown:    make(chan struct{}),
		stopped:     make(chan struct{}, n),
	}, nil
}

// Addr returns the bound listener's address.
func (p *Pool) Addr() net.Addr { return p.listener.Addr() }

// Start launches the n acceptor loops through the underlying ThreadPool,
// mirroring spawned_listener.rs spawning one closure per CPU onto its
// rayon pool.
func (p *Pool) Start() {
	for i := 0; i < p.n; i++ {
		id := i
		p.pool.Spawn(func() { p.acceptLoop(id) })
	}
}

func (p *Pool) acceptLoop(id int) {
	defer func() { p.stopped <- struct{}{} }()
	for {
		select {
		case <-p.shutdown:
			level.Debug(p.logger).Log("msg", "acceptor stopping", "id", id)
			return
		default:
		}

		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-p.shutdown:
				return
			default:
				level.Error(p.logger).Log("msg", "accept error", "id", id, "err", err)
				continue
			}
		}

		select {
		case <-p.shutdown:
			_ = conn.Close()
			return
		case p.Connections <- conn:
		}
	}
}

// Stop publishes a shutdown signal, dials the listening address once to
// unblock any acceptor parked inside Accept (spec.md §4.4), and closes
// the shared listener — which, unlike a single dial, reliably unblocks
// every acceptor goroutine blocked in Accept at once rather than just
// the one that happens to receive that one dial's connection.
func (p *Pool) Stop() {
	close(p.shutdown)
	if conn, err := net.DialTimeout("tcp", p.listener.Addr().String(), time.Second); err == nil {
		_ = conn.Close()
	}
	_ = p.listener.Close()
	for i := 0; i < p.n; i++ {
		<-p.stopped
	}
}
