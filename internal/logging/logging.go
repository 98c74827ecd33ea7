// Package logging wires up the go-kit/log logger shared by the engine,
// dispatcher, and acceptor pool, with a level filter driven by KVS_LOG —
// this module's equivalent of the reference implementation's RUST_LOG
// (spec.md §6.4).
package logging

import (
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// New builds a logger that writes logfmt lines to stderr, filtered to the
// level named by the KVS_LOG environment variable (debug, info, warn,
// error; defaults to info).
func New() log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	return level.NewFilter(logger, filterOption(os.Getenv("KVS_LOG")))
}

func filterOption(envValue string) level.Option {
	switch strings.ToLower(strings.TrimSpace(envValue)) {
	case "debug":
		return level.AllowDebug()
	case "warn", "warning":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
