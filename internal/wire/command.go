// Package wire implements the length-prefixed binary codec commands and
// responses are framed in, both over the TCP connection between client
// and server and on disk between segment records. Framing follows the
// teacher's store.go convention: every variable-length field is preceded
// by its own 8-byte big-endian length, so a reader positioned at a record
// start can decode exactly one record and stop at the next record start.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/aleksandarhr/kvs/internal/kvserror"
)

// the encoding used for every length prefix and tag in this package.
var enc = binary.BigEndian

// lenWidth is the width in bytes of a length prefix, matching the
// teacher's store.go lenWidth constant.
const lenWidth = 8

// Command tags, written as a single byte ahead of the field payload.
const (
	tagSet byte = iota
	tagGet
	tagRemove
)

// Command is a tagged union of the three mutating/reading operations the
// engine accepts. Exactly one of the Set/Get/Remove-shaped field sets is
// meaningful, selected by Tag.
type Command struct {
	Tag   byte
	Key   string
	Value string // only meaningful when Tag == tagSet
}

// NewSet builds a Set command.
func NewSet(key, value string) Command { return Command{Tag: tagSet, Key: key, Value: value} }

// NewGet builds a Get command.
func NewGet(key string) Command { return Command{Tag: tagGet, Key: key} }

// NewRemove builds a Remove command.
func NewRemove(key string) Command { return Command{Tag: tagRemove, Key: key} }

// IsSet, IsGet, IsRemove discriminate the tagged union.
func (c Command) IsSet() bool    { return c.Tag == tagSet }
func (c Command) IsGet() bool    { return c.Tag == tagGet }
func (c Command) IsRemove() bool { return c.Tag == tagRemove }

func writeString(w io.Writer, s string) (int, error) {
	if err := binary.Write(w, enc, uint64(len(s))); err != nil {
		return 0, err
	}
	n, err := io.WriteString(w, s)
	return n + lenWidth, err
}

func readString(r io.Reader) (string, int, error) {
	lenBuf := make([]byte, lenWidth)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return "", 0, err
	}
	size := enc.Uint64(lenBuf)
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", 0, err
	}
	return string(buf), lenWidth + int(size), nil
}

// EncodeCommand writes one self-delimiting Command record to w, returning
// the number of bytes written.
func EncodeCommand(w io.Writer, c Command) (int, error) {
	n := 0
	if _, err := w.Write([]byte{c.Tag}); err != nil {
		return n, kvserror.Wrap(kvserror.ErrIO, "write command tag")
	}
	n++
	wrote, err := writeString(w, c.Key)
	n += wrote
	if err != nil {
		return n, kvserror.Wrap(kvserror.ErrIO, "write command key")
	}
	if c.Tag == tagSet {
		wrote, err = writeString(w, c.Value)
		n += wrote
		if err != nil {
			return n, kvserror.Wrap(kvserror.ErrIO, "write command value")
		}
	}
	return n, nil
}

// DecodeCommand reads exactly one Command record from r, advancing r past
// it. A truncated or malformed record returns kvserror.ErrSerialization
// (unless the stream ended exactly between records, in which case io.EOF
// is returned so callers distinguish "no more records" from "corrupt
// record").
func DecodeCommand(r io.Reader) (Command, int, error) {
	tagBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, tagBuf); err != nil {
		if err == io.EOF {
			return Command{}, 0, io.EOF
		}
		return Command{}, 0, kvserror.Wrap(kvserror.ErrSerialization, "truncated command tag")
	}
	n := 1
	var c Command
	c.Tag = tagBuf[0]
	if c.Tag != tagSet && c.Tag != tagGet && c.Tag != tagRemove {
		return Command{}, n, kvserror.Wrapf(kvserror.ErrSerialization, "unknown command tag %d", c.Tag)
	}
	key, wrote, err := readString(r)
	n += wrote
	if err != nil {
		return Command{}, n, kvserror.Wrap(kvserror.ErrSerialization, "truncated command key")
	}
	c.Key = key
	if c.Tag == tagSet {
		value, wrote, err := readString(r)
		n += wrote
		if err != nil {
			return Command{}, n, kvserror.Wrap(kvserror.ErrSerialization, "truncated command value")
		}
		c.Value = value
	}
	return c, n, nil
}
