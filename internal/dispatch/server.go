// Package dispatch implements the server state machine described in
// spec.md §4.5: Starting -> Ready -> ShuttingDown -> Shutdown, consuming
// a queue of connection/lifecycle messages and running each request
// against the engine on a worker pool.
package dispatch

import (
	"errors"
	"net"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/aleksandarhr/kvs/internal/acceptor"
	"github.com/aleksandarhr/kvs/internal/engine"
	"github.com/aleksandarhr/kvs/internal/kvserror"
	"github.com/aleksandarhr/kvs/internal/metrics"
	"github.com/aleksandarhr/kvs/internal/threadpool"
	"github.com/aleksandarhr/kvs/internal/wire"
)

// State is the dispatcher's lifecycle state.
type State int

const (
	StateStarting State = iota
	StateReady
	StateShuttingDown
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateReady:
		return "Ready"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// messageKind discriminates the dispatcher's internal queue, matching
// spec.md §4.5's Connection/Ready/ShuttingDown/Shutdown message kinds.
type messageKind int

const (
	msgConnection messageKind = iota
	msgReady
	msgShuttingDown
	msgShutdown
)

type message struct {
	kind messageKind
	conn net.Conn
}

// Server is the request-serving dispatcher: it owns the acceptor pool and
// a worker pool, and runs the state machine in its own goroutine.
type Server struct {
	engine   engine.KvsEngine
	acceptor *acceptor.Pool
	workers  threadpool.ThreadPool
	logger   log.Logger
	metrics  *metrics.ServerMetrics

	queue chan message
	state State

	stoppedCh chan struct{}
}

// New builds a dispatcher over eng, with acceptorPool feeding accepted
// connections and workers executing each request.
func New(eng engine.KvsEngine, acceptorPool *acceptor.Pool, workers threadpool.ThreadPool, logger log.Logger, m *metrics.ServerMetrics) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		engine:    eng,
		acceptor:  acceptorPool,
		workers:   workers,
		logger:    logger,
		metrics:   m,
		queue:     make(chan message, 256),
		state:     StateStarting,
		stoppedCh: make(chan struct{}),
	}
}

// Run starts the acceptor pool, a goroutine forwarding acceptor.Pool's
// Connections into the dispatch queue, and runs the dispatch loop until
// Shutdown. It returns once the loop has exited.
func (s *Server) Run() {
	s.queue <- message{kind: msgReady}
	s.acceptor.Start()
	go s.forwardConnections()
	s.loop()
}

func (s *Server) forwardConnections() {
	for conn := range s.acceptor.Connections {
		s.queue <- message{kind: msgConnection, conn: conn}
	}
}

func (s *Server) loop() {
	for {
		msg := <-s.queue
		switch msg.kind {
		case msgConnection:
			s.handleConnection(msg.conn)
		case msgReady:
			s.state = StateReady
			level.Info(s.logger).Log("msg", "server ready")
		case msgShuttingDown:
			s.state = StateShuttingDown
			level.Info(s.logger).Log("msg", "server shutting down")
			s.acceptor.Stop()
			s.queue <- message{kind: msgShutdown}
		case msgShutdown:
			s.state = StateShutdown
			level.Info(s.logger).Log("msg", "server shutdown complete")
			close(s.stoppedCh)
			return
		}
	}
}

// handleConnection submits one request's decode/execute/encode cycle to
// the worker pool, matching spec.md §4.5's per-connection dispatch.
func (s *Server) handleConnection(conn net.Conn) {
	s.workers.Spawn(func() {
		start := time.Now()
		outcome, cmdKind := s.serveOne(conn)
		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(cmdKind, outcome).Inc()
			s.metrics.RequestDuration.Observe(time.Since(start).Seconds())
		}
	})
}

func (s *Server) serveOne(conn net.Conn) (outcome, cmdKind string) {
	defer conn.Close()

	cmd, _, err := wire.DecodeCommand(conn)
	if err != nil {
		level.Error(s.logger).Log("msg", "decode command failed", "err", err)
		return "decode_error", "unknown"
	}

	resp, kind := s.execute(cmd)
	if err := wire.EncodeResponse(conn, resp); err != nil {
		level.Error(s.logger).Log("msg", "encode response failed", "err", err)
		return "encode_error", kind
	}
	if resp.IsErr() {
		return "command_error", kind
	}
	return "ok", kind
}

func (s *Server) execute(cmd wire.Command) (wire.CommandResponse, string) {
	switch {
	case cmd.IsSet():
		if err := s.engine.Set(cmd.Key, cmd.Value); err != nil {
			return wire.ErrNoValue(err.Error()), "set"
		}
		return wire.OkNoValue(), "set"
	case cmd.IsGet():
		value, ok, err := s.engine.Get(cmd.Key)
		if err != nil {
			return wire.ErrValue(err.Error()), "get"
		}
		return wire.OkValue(value, ok), "get"
	case cmd.IsRemove():
		if err := s.engine.Remove(cmd.Key); err != nil {
			if errors.Is(err, kvserror.ErrKeyNotFound) {
				return wire.ErrNoValue("Key not found"), "remove"
			}
			return wire.ErrNoValue(err.Error()), "remove"
		}
		return wire.OkNoValue(), "remove"
	default:
		return wire.ErrNoValue("unknown command"), "unknown"
	}
}

// Shutdown requests a graceful stop and blocks until the dispatch loop
// has exited.
func (s *Server) Shutdown() {
	s.queue <- message{kind: msgShuttingDown}
	<-s.stoppedCh
}

// State returns the dispatcher's current lifecycle state.
func (s *Server) State() State { return s.state }
