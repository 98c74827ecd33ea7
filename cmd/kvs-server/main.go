// Command kvs-server runs the key-value store's TCP server: it binds
// --addr, opens the engine named by --engine in ./log_index, and serves
// requests until interrupted. Flag parsing and process wiring live here,
// outside the core's scope (spec.md §1).
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aleksandarhr/kvs/internal/acceptor"
	"github.com/aleksandarhr/kvs/internal/dispatch"
	"github.com/aleksandarhr/kvs/internal/engine"
	"github.com/aleksandarhr/kvs/internal/logging"
	"github.com/aleksandarhr/kvs/internal/metrics"
	"github.com/aleksandarhr/kvs/internal/threadpool"
)

// logDirectoryPrefix is joined with the current working directory to
// form the engine's on-disk directory, matching spec.md §6.2.
const logDirectoryPrefix = "log_index"

func main() {
	addr := flag.String("addr", "127.0.0.1:4000", "server listen address")
	engineName := flag.String("engine", "kvs", "storage engine: kvs or sled")
	workers := flag.Int("workers", runtime.NumCPU(), "request worker pool size")
	acceptors := flag.Int("acceptors", 2, "acceptor pool size")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on (disabled if empty)")
	flag.Parse()

	logger := logging.New()

	if err := run(*addr, *engineName, *workers, *acceptors, *metricsAddr, logger); err != nil {
		level.Error(logger).Log("msg", "fatal startup error", "err", err)
		os.Exit(1)
	}
}

func run(addr, engineName string, workerCount, acceptorCount int, metricsAddr string, logger log.Logger) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	dir := filepath.Join(cwd, logDirectoryPrefix)

	var eng engine.KvsEngine
	switch engine.Name(engineName) {
	case engine.NameKvs:
		kv, err := engine.Open(dir, logger, nil)
		if err != nil {
			return err
		}
		defer kv.Close()
		eng = kv
	case engine.NameSled:
		bolt, err := engine.OpenBolt(dir)
		if err != nil {
			return err
		}
		defer bolt.Close()
		eng = bolt
	default:
		return fmt.Errorf("unknown engine %q", engineName)
	}

	workerPool := threadpool.NewSharedQueuePool(workerCount, logger)
	defer workerPool.Shutdown()

	acceptorWorkers, err := threadpool.NewAntsPool(acceptorCount, logger)
	if err != nil {
		return err
	}
	defer acceptorWorkers.Shutdown()

	acceptorPool, err := acceptor.New(addr, acceptorCount, acceptorWorkers, logger)
	if err != nil {
		return err
	}

	serverMetrics := metrics.NewServerMetrics(nil)
	server := dispatch.New(eng, acceptorPool, workerPool, logger, serverMetrics)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				level.Error(logger).Log("msg", "metrics server stopped", "err", err)
			}
		}()
		level.Info(logger).Log("msg", "serving metrics", "addr", metricsAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		server.Shutdown()
	}()

	level.Info(logger).Log("msg", "listening", "addr", acceptorPool.Addr().String(), "engine", engineName)
	server.Run()
	return nil
}
