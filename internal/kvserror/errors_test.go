package kvserror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinelForErrorsIs(t *testing.T) {
	err := Wrap(ErrKeyNotFound, "get missing")
	require.True(t, errors.Is(err, ErrKeyNotFound))
	require.False(t, errors.Is(err, ErrIO))
	require.Contains(t, err.Error(), "key not found")
	require.Contains(t, err.Error(), "get missing")
}

func TestWrapfFormats(t *testing.T) {
	err := Wrapf(ErrLogIndexParse, "bad id %q", "xyz")
	require.True(t, errors.Is(err, ErrLogIndexParse))
	require.Contains(t, err.Error(), `bad id "xyz"`)
}

func TestGeneralErrorCarriesMessageOnly(t *testing.T) {
	err := GeneralError("Key not found")
	require.EqualError(t, err, "Key not found")
}

func TestWrapWithoutMessageFallsBackToSentinel(t *testing.T) {
	err := Wrap(ErrIO, "")
	require.EqualError(t, err, "io error")
}
