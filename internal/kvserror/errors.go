// Package kvserror defines the uniform error taxonomy shared by the
// engine, wire codec, and server dispatch layers.
package kvserror

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Sentinel errors. Compare with errors.Is, never by string.
var (
	ErrKeyNotFound   = xerrors.New("key not found")
	ErrIO            = xerrors.New("io error")
	ErrSerialization = xerrors.New("serialization error")
	ErrLogIndexID    = xerrors.New("can't create or detect log index id")
	ErrLogIndexParse = xerrors.New("can't parse log index id")
	ErrWrongEngine   = xerrors.New("wrong engine selected")
	ErrPoison        = xerrors.New("internal lock poisoned")
	ErrThread        = xerrors.New("thread pool error")
)

// KvsError wraps a sentinel with request-local context while preserving
// the sentinel for errors.Is matching and capturing the call site via
// xerrors.Frame, the way the rest of this codebase's errors carry their
// origin instead of a bare string.
type KvsError struct {
	frame xerrors.Frame
	sent  error
	msg   string
}

func (e *KvsError) Error() string {
	if e.msg == "" {
		return e.sent.Error()
	}
	return fmt.Sprintf("%s: %s", e.sent.Error(), e.msg)
}

func (e *KvsError) Unwrap() error { return e.sent }

// FormatError implements xerrors.Formatter so %+v prints the call chain.
func (e *KvsError) FormatError(p xerrors.Printer) error {
	p.Print(e.Error())
	e.frame.Format(p)
	return nil
}

// Wrap attaches msg as context to a sentinel error; errors.Is(err,
// sentinel) still succeeds against the returned error.
func Wrap(sentinel error, msg string) error {
	return &KvsError{sent: sentinel, msg: msg, frame: xerrors.Caller(1)}
}

// Wrapf is Wrap with fmt.Sprintf-style formatting.
func Wrapf(sentinel error, format string, args ...interface{}) error {
	return Wrap(sentinel, fmt.Sprintf(format, args...))
}

// GeneralError is the catch-all string error surfaced over the wire for
// conditions that have no dedicated sentinel (e.g. a peer's malformed
// CommandResponse.Err payload, reconstructed on the client side).
func GeneralError(msg string) error {
	return &KvsError{sent: xerrors.New(msg), frame: xerrors.Caller(1)}
}
