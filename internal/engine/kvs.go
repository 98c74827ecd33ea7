package engine

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/aleksandarhr/kvs/internal/kvserror"
	"github.com/aleksandarhr/kvs/internal/metrics"
	"github.com/aleksandarhr/kvs/internal/wire"
)

// sentinelFile names the file recording which engine created a
// directory, generalized from the server's engine-check (originally a
// server-side concern in the Rust reference) into an engine-level
// invariant so both KvStore and BoltEngine enforce it identically.
const sentinelFile = "engine"

// indexState mirrors spec.md's LogIndexState: Ready or Compacting. While
// Compacting, rotation is skipped on the write path to avoid recursive
// compaction (spec.md §4.2.4 step 1, §5).
type indexState int

const (
	stateReady indexState = iota
	stateCompacting
)

// metadataState holds everything about segment bookkeeping that isn't
// the index or the active writer itself: the list of known segment ids,
// which one is active, and the compaction state. Guarded by its own
// RWMutex so a reader can cheaply snapshot the active id without
// contending with a writer that only needs the writer lock (spec.md §5).
type metadataState struct {
	mu       sync.RWMutex
	ids      []uint64
	activeID uint64
	state    indexState
}

// segmentReaders is the concurrent map of segment id -> *segmentReader.
// Guarded by its own mutex, matching spec.md §5 option (b): "a concurrent
// map of readers with per-entry mutual exclusion" (each segmentReader
// additionally guards its own mmap against concurrent remaps).
type segmentReaders struct {
	mu      sync.Mutex
	readers map[uint64]*segmentReader
}

func newSegmentReaders() *segmentReaders {
	return &segmentReaders{readers: make(map[uint64]*segmentReader)}
}

func (s *segmentReaders) get(id uint64) (*segmentReader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.readers[id]
	return r, ok
}

func (s *segmentReaders) add(id uint64, r *segmentReader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers[id] = r
}

func (s *segmentReaders) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.readers[id]; ok {
		_ = r.close()
		delete(s.readers, id)
	}
}

// KvStore is the log-structured engine: an append-only segmented write
// log, an in-memory key index, recovery by replay, rotation, and online
// compaction. It implements KvsEngine and is the module's primary
// subject.
//
// KvStore is a cheaply-clonable handle in spirit: callers share a single
// *KvStore (Go interface/pointer semantics already give every caller the
// same underlying state), with per-field synchronization chosen for its
// access pattern exactly as spec.md §5 prescribes:
//   - index: shardedIndex, lock-free-ish lookup, per-shard locked mutation
//   - readers: segmentReaders, own map lock + per-reader mmap lock
//   - writer: guarded by writerMu (only one appender at a time)
//   - meta: guarded by its own RWMutex
//   - writeMu: top-level write-ordering mutex serializing Set/Remove and
//     keeping the append atomic with the index publish
type KvStore struct {
	dir     string
	index   *shardedIndex
	readers *segmentReaders

	writerMu sync.RWMutex
	writer   *segmentWriter

	meta *metadataState

	writeMu sync.Mutex

	metrics *metrics.EngineMetrics
	logger  log.Logger
}

var _ KvsEngine = (*KvStore)(nil)

// Open creates the directory if absent, verifies or writes the engine
// sentinel, enumerates and replays existing segments, and returns a
// ready-to-use KvStore.
func Open(path string, logger log.Logger, reg metrics.Registerer) (*KvStore, error) {
	lockConfig()
	if logger == nil {
		logger = log.NewNopLogger()
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, kvserror.Wrap(kvserror.ErrIO, "create engine directory")
	}
	if err := checkOrWriteSentinel(path, NameKvs); err != nil {
		return nil, err
	}

	store := &KvStore{
		dir:     path,
		index:   newShardedIndex(),
		readers: newSegmentReaders(),
		meta:    &metadataState{},
		metrics: metrics.NewEngineMetrics(reg),
		logger:  logger,
	}

	ids, err := readSegmentIDs(path)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids = []uint64{0}
	}
	store.meta.ids = ids
	store.meta.activeID = ids[len(ids)-1]

	for _, id := range ids {
		// touch the file into existence before replay/reader-open so a
		// brand new directory's id-0 segment exists on disk.
		if _, err := os.OpenFile(segmentPath(path, id), os.O_RDWR|os.O_CREATE, 0644); err != nil {
			return nil, kvserror.Wrap(kvserror.ErrIO, "create segment file")
		}
		if err := replaySegment(segmentPath(path, id), func(offset uint64, cmd wire.Command) {
			if cmd.IsSet() {
				store.index.publish(cmd.Key, logPointer{segmentID: id, offset: offset})
			} else if cmd.IsRemove() {
				store.index.delete(cmd.Key)
			}
		}); err != nil {
			return nil, err
		}
		reader, err := newSegmentReader(path, id)
		if err != nil {
			return nil, err
		}
		store.readers.add(id, reader)
	}

	writer, err := newSegmentWriter(path, store.meta.activeID)
	if err != nil {
		return nil, err
	}
	store.writer = writer

	level.Debug(store.logger).Log("msg", "engine opened", "dir", path, "segments", len(ids))
	return store, nil
}

func checkOrWriteSentinel(dir string, name Name) error {
	file := filepath.Join(dir, sentinelFile)
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return os.WriteFile(file, []byte(name), 0644)
	}
	contents, err := os.ReadFile(file)
	if err != nil {
		return kvserror.Wrap(kvserror.ErrIO, "read engine sentinel")
	}
	if strings.TrimSpace(string(contents)) != string(name) {
		return kvserror.ErrWrongEngine
	}
	return nil
}

func readSegmentIDs(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, kvserror.Wrap(kvserror.ErrIO, "read engine directory")
	}
	var ids []uint64
	for _, e := range entries {
		if e.IsDir() || e.Name() == sentinelFile {
			continue
		}
		id, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			return nil, kvserror.Wrap(kvserror.ErrLogIndexParse, e.Name())
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Get reads the index for key's pointer, then decodes the record at that
// pointer from its segment's reader. Never takes writeMu, so concurrent
// Get calls proceed fully in parallel with each other and with Set/Remove
// (spec.md §5).
func (s *KvStore) Get(key string) (string, bool, error) {
	ptr, ok := s.index.lookup(key)
	if !ok {
		return "", false, nil
	}
	reader, ok := s.readers.get(ptr.segmentID)
	if !ok {
		return "", false, kvserror.Wrapf(kvserror.ErrIO, "no reader for segment %d", ptr.segmentID)
	}
	cmd, err := reader.readAt(ptr.offset)
	if err != nil {
		// index entry is left intact; a retried Get may succeed once
		// concurrent writes/remaps settle (spec.md §4.2.5).
		return "", false, err
	}
	if !cmd.IsSet() {
		return "", false, kvserror.Wrap(kvserror.ErrSerialization, "index points at non-Set record")
	}
	return cmd.Value, true, nil
}

// Set appends a Set record to the active segment and publishes its
// pointer to the index. The append and the index publish happen while
// writeMu is held, so a concurrent Get that observes the new pointer
// always reads a committed record (spec.md §5's ordering guarantee).
func (s *KvStore) Set(key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.maybeRotate()

	ptr, err := s.appendLocked(wire.NewSet(key, value))
	if err != nil {
		return err
	}
	s.index.publish(key, ptr)

	s.maybeRotate()
	return nil
}

// Remove appends a Remove record and deletes key from the index. Returns
// kvserror.ErrKeyNotFound if key is absent, the only domain error remove
// produces (spec.md §4.2.5).
func (s *KvStore) Remove(key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, ok := s.index.lookup(key); !ok {
		return kvserror.ErrKeyNotFound
	}

	s.maybeRotate()

	if _, err := s.appendLocked(wire.NewRemove(key)); err != nil {
		return err
	}
	s.index.delete(key)

	s.maybeRotate()
	return nil
}

// appendLocked writes cmd to the active segment. Caller must hold
// writeMu.
func (s *KvStore) appendLocked(cmd wire.Command) (logPointer, error) {
	s.writerMu.RLock()
	writer := s.writer
	s.writerMu.RUnlock()

	offset, err := writer.append(cmd)
	if err != nil {
		// I/O failure on append: the index is not updated by the
		// caller, so the failed write stays invisible (spec.md §4.2.5).
		return logPointer{}, err
	}

	s.meta.mu.RLock()
	activeID := s.meta.activeID
	s.meta.mu.RUnlock()

	return logPointer{segmentID: activeID, offset: offset}, nil
}

// maybeRotate is checked at the start and end of every write, matching
// spec.md §4.2.3. It is a no-op while compaction is in progress, which is
// what prevents compaction's own re-entrant appends from recursively
// triggering rotation/compaction (spec.md §9).
func (s *KvStore) maybeRotate() {
	s.meta.mu.RLock()
	compacting := s.meta.state == stateCompacting
	s.meta.mu.RUnlock()
	if compacting {
		return
	}

	s.writerMu.RLock()
	size := s.writer.size
	s.writerMu.RUnlock()
	if size <= rotationMinSizeBytes() {
		return
	}

	if err := s.rotate(); err != nil {
		level.Error(s.logger).Log("msg", "segment rotation failed", "err", err)
		return
	}
	s.compact()
}

// rotate closes out the active segment and promotes a new one with
// activeID+1, matching spec.md §4.2.3 steps 1-3.
func (s *KvStore) rotate() error {
	s.meta.mu.Lock()
	newID := s.meta.activeID + 1
	s.meta.mu.Unlock()

	newWriter, err := newSegmentWriter(s.dir, newID)
	if err != nil {
		return err
	}
	newReader, err := newSegmentReader(s.dir, newID)
	if err != nil {
		return err
	}

	s.writerMu.Lock()
	oldWriter := s.writer
	s.writer = newWriter
	s.writerMu.Unlock()
	_ = oldWriter.close()

	s.readers.add(newID, newReader)

	s.meta.mu.Lock()
	s.meta.activeID = newID
	s.meta.ids = append(s.meta.ids, newID)
	s.meta.mu.Unlock()

	s.metrics.SegmentRotations.Inc()
	level.Debug(s.logger).Log("msg", "segment rotated", "id", newID)
	return nil
}

// Close flushes and closes the active writer and every segment reader.
// File handles are released here, matching spec.md §5's "file handles
// are closed when... the engine handle's last clone drops" (this module
// has no reference-counted Drop, so Close is the explicit equivalent).
func (s *KvStore) Close() error {
	s.writerMu.Lock()
	err := s.writer.close()
	s.writerMu.Unlock()

	s.readers.mu.Lock()
	for id, r := range s.readers.readers {
		if cerr := r.close(); cerr != nil && err == nil {
			err = cerr
		}
		delete(s.readers.readers, id)
	}
	s.readers.mu.Unlock()
	return err
}
