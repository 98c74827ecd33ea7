package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksandarhr/kvs/internal/kvserror"
)

func TestCommandEncodeDecode(t *testing.T) {
	for scenario, cmd := range map[string]Command{
		"set":    NewSet("key1", "value1"),
		"get":    NewGet("key1"),
		"remove": NewRemove("key1"),
	} {
		t.Run(scenario, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := EncodeCommand(&buf, cmd)
			require.NoError(t, err)
			require.Equal(t, buf.Len(), n)

			decoded, read, err := DecodeCommand(&buf)
			require.NoError(t, err)
			require.Equal(t, n, read)
			require.Equal(t, cmd, decoded)
			require.Equal(t, 0, buf.Len())
		})
	}
}

func TestDecodeCommandAdvancesExactlyOneRecord(t *testing.T) {
	var buf bytes.Buffer
	_, err := EncodeCommand(&buf, NewSet("a", "1"))
	require.NoError(t, err)
	_, err = EncodeCommand(&buf, NewGet("b"))
	require.NoError(t, err)

	first, _, err := DecodeCommand(&buf)
	require.NoError(t, err)
	require.True(t, first.IsSet())

	second, _, err := DecodeCommand(&buf)
	require.NoError(t, err)
	require.True(t, second.IsGet())
	require.Equal(t, "b", second.Key)
}

func TestDecodeCommandEmptyStreamIsEOF(t *testing.T) {
	_, _, err := DecodeCommand(&bytes.Buffer{})
	require.ErrorIs(t, err, io.EOF)
}

func TestDecodeCommandTruncatedIsSerializationError(t *testing.T) {
	var buf bytes.Buffer
	_, err := EncodeCommand(&buf, NewSet("key", "value"))
	require.NoError(t, err)

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	_, _, err = DecodeCommand(truncated)
	require.ErrorIs(t, err, kvserror.ErrSerialization)
	require.NotErrorIs(t, err, io.EOF)
}
