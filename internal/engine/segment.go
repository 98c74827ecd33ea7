package engine

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tysonmote/gommap"

	"github.com/aleksandarhr/kvs/internal/kvserror"
	"github.com/aleksandarhr/kvs/internal/wire"
)

// segmentPath returns the on-disk path for segment id within dir. The
// basename is the decimal segment id, matching spec.md §3's "Segment
// file: ... Its basename is a nonnegative integer ID."
func segmentPath(dir string, id uint64) string {
	return filepath.Join(dir, uintToString(id))
}

// segmentWriter is the append-only writer for the active segment.
// Grounded on the teacher's store.go: a buffered writer over an
// O_APPEND file, tracking size so IsMaxed-equivalent checks are O(1).
// Callers serialize access to a segmentWriter themselves (KvStore's
// top-level writeMu); this type holds no lock of its own.
type segmentWriter struct {
	id   uint64
	file *os.File
	buf  *bufio.Writer
	size uint64
}

func newSegmentWriter(dir string, id uint64) (*segmentWriter, error) {
	f, err := os.OpenFile(segmentPath(dir, id), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, kvserror.Wrap(kvserror.ErrIO, "open segment for append")
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, kvserror.Wrap(kvserror.ErrIO, "stat new segment")
	}
	return &segmentWriter{id: id, file: f, buf: bufio.NewWriter(f), size: uint64(fi.Size())}, nil
}

// append writes cmd to the segment and flushes it through to the OS
// before returning, per spec.md §4.2's "the record is flushed through the
// buffered writer to the OS." It returns the byte offset the record
// started at, for use as a logPointer.
func (w *segmentWriter) append(cmd wire.Command) (offset uint64, err error) {
	offset = w.size
	n, err := wire.EncodeCommand(w.buf, cmd)
	w.size += uint64(n)
	if err != nil {
		return offset, kvserror.Wrap(kvserror.ErrIO, "append command to segment")
	}
	if err := w.buf.Flush(); err != nil {
		return offset, kvserror.Wrap(kvserror.ErrIO, "flush segment writer")
	}
	return offset, nil
}

func (w *segmentWriter) close() error {
	if err := w.buf.Flush(); err != nil {
		return kvserror.Wrap(kvserror.ErrIO, "flush segment writer on close")
	}
	return w.file.Close()
}

// segmentReader serves Get lookups against one sealed or active segment.
// It memory-maps the file read-only, generalizing the teacher's index.go
// mmap technique from fixed-width index entries to the self-delimiting
// variable-length command records this engine stores. Because the active
// segment keeps growing after the mapping is taken, the reader remaps
// lazily whenever a read would run past the currently-mapped length —
// this is what lets "a reader positioned at a record start... end at the
// next record start" hold even while the writer is concurrently
// extending the file (spec.md §5).
type segmentReader struct {
	mu        sync.Mutex
	file      *os.File
	mm        gommap.MMap
	mappedLen int64
}

func newSegmentReader(dir string, id uint64) (*segmentReader, error) {
	f, err := os.Open(segmentPath(dir, id))
	if err != nil {
		return nil, kvserror.Wrap(kvserror.ErrIO, "open segment for read")
	}
	r := &segmentReader{file: f}
	if err := r.remapLocked(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (r *segmentReader) remapLocked() error {
	fi, err := r.file.Stat()
	if err != nil {
		return kvserror.Wrap(kvserror.ErrIO, "stat segment for remap")
	}
	if r.mm != nil {
		_ = r.mm.UnsafeUnmap()
		r.mm = nil
	}
	if fi.Size() == 0 {
		r.mappedLen = 0
		return nil
	}
	mm, err := gommap.Map(r.file.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
	if err != nil {
		return kvserror.Wrap(kvserror.ErrIO, "mmap segment")
	}
	r.mm = mm
	r.mappedLen = fi.Size()
	return nil
}

// readAt decodes exactly one command record starting at offset.
func (r *segmentReader) readAt(offset uint64) (wire.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		if r.mm != nil && int64(offset) < r.mappedLen {
			cmd, _, err := wire.DecodeCommand(bytes.NewReader(r.mm[offset:r.mappedLen]))
			if err == nil {
				return cmd, nil
			}
			if attempt == 1 {
				return wire.Command{}, err
			}
		}
		if err := r.remapLocked(); err != nil {
			return wire.Command{}, err
		}
	}
	return wire.Command{}, kvserror.Wrap(kvserror.ErrSerialization, "truncated segment record")
}

func (r *segmentReader) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mm != nil {
		_ = r.mm.UnsafeUnmap()
	}
	return r.file.Close()
}

// replaySegment decodes every record in the segment file at path from
// offset 0 to EOF, invoking fn with each record and the byte offset it
// started at. A truncated trailing record (the length prefix for a field
// is present but the field's bytes are cut short, or the tag byte itself
// is missing) is treated as the end of a cleanly-recovered segment rather
// than a hard error, resolving the open question in spec.md §9 in favor
// of "truncate to last good boundary" (see DESIGN.md).
func replaySegment(path string, fn func(offset uint64, cmd wire.Command)) error {
	f, err := os.Open(path)
	if err != nil {
		return kvserror.Wrap(kvserror.ErrIO, "open segment for replay")
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var offset uint64
	for {
		cmd, n, err := wire.DecodeCommand(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// partial trailing record from a crash mid-append: stop
			// replay here instead of refusing to open the engine.
			return nil
		}
		fn(offset, cmd)
		offset += uint64(n)
	}
}

func uintToString(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
