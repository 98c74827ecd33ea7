package engine

import (
	"os"

	"github.com/go-kit/log/level"

	"github.com/aleksandarhr/kvs/internal/wire"
)

// compactionAction classifies what happens to a known segment during one
// compaction pass, mirroring spec.md §4.2.4's CompactionAction.
type compactionAction int

const (
	actionNone compactionAction = iota
	actionMigrate
	actionRemove
)

// compact implements spec.md §4.2.4 exactly. Caller must already hold
// writeMu (compact is only ever invoked from maybeRotate, itself only
// reached from within Set/Remove while writeMu is held), since migration
// re-enters the append path directly rather than through Set/Remove to
// avoid re-locking writeMu.
func (s *KvStore) compact() {
	s.meta.mu.Lock()
	s.meta.state = stateCompacting
	activeID := s.meta.activeID
	knownIDs := append([]uint64(nil), s.meta.ids...)
	s.meta.mu.Unlock()

	defer func() {
		s.meta.mu.Lock()
		s.meta.state = stateReady
		s.meta.mu.Unlock()
	}()

	// Step 2: classification. Build records-per-segment by scanning the
	// index, then compare each segment's live count against the busiest
	// segment's (M).
	recordsPerSegment := make(map[uint64][]string) // segment id -> keys
	s.index.forEach(func(key string, p logPointer) {
		recordsPerSegment[p.segmentID] = append(recordsPerSegment[p.segmentID], key)
	})

	var maxLive int
	for _, keys := range recordsPerSegment {
		if len(keys) > maxLive {
			maxLive = len(keys)
		}
	}

	actions := make(map[uint64]compactionAction, len(knownIDs))
	var migrationKeys []string
	for _, id := range knownIDs {
		keys := recordsPerSegment[id]
		switch {
		case len(keys) == 0 && id != activeID:
			actions[id] = actionRemove
		case maxLive > 0 && len(keys)*100/maxLive <= int(compactionDensityPct()):
			actions[id] = actionMigrate
			migrationKeys = append(migrationKeys, keys...)
		default:
			actions[id] = actionNone
		}
	}

	if len(migrationKeys) == 0 && !anyMarked(actions, actionRemove) {
		return
	}

	// Step 3: migration. Re-append every live record from a Migrate
	// segment via the normal write path so the index is updated to the
	// new (active-segment) location.
	for _, key := range migrationKeys {
		ptr, ok := s.index.lookup(key)
		if !ok {
			// key was removed concurrently is impossible here since
			// writeMu is held for the whole compaction; a key absent
			// from the index at this point was never live to begin
			// with (defensive, not expected).
			continue
		}
		reader, ok := s.readers.get(ptr.segmentID)
		if !ok {
			level.Error(s.logger).Log("msg", "compaction: missing reader", "segment", ptr.segmentID)
			continue
		}
		cmd, err := reader.readAt(ptr.offset)
		if err != nil {
			level.Error(s.logger).Log("msg", "compaction: read failed", "err", err, "key", key)
			continue
		}
		newPtr, err := s.appendLocked(wire.NewSet(key, cmd.Value))
		if err != nil {
			level.Error(s.logger).Log("msg", "compaction: migrate append failed", "err", err, "key", key)
			continue
		}
		s.index.publish(key, newPtr)
		// rotation during compaction is a no-op on this path: state is
		// still stateCompacting, so maybeRotate below short-circuits.
		s.maybeRotate()
	}

	// Step 4: reclamation. Re-classify every Migrate segment as Remove,
	// then delete every Remove-marked segment file. The active segment can
	// be marked Migrate (and so Remove) when its own density is low; the
	// id check below keeps it from ever being deleted.
	for id, action := range actions {
		if action == actionMigrate {
			actions[id] = actionRemove
		}
	}

	removed := 0
	for id, action := range actions {
		if action != actionRemove || id == activeID {
			continue
		}
		s.readers.remove(id)
		if err := os.Remove(segmentPath(s.dir, id)); err != nil && !os.IsNotExist(err) {
			level.Error(s.logger).Log("msg", "compaction: failed to remove segment", "err", err, "segment", id)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.meta.mu.Lock()
		kept := make([]uint64, 0, len(s.meta.ids))
		for _, id := range s.meta.ids {
			if actions[id] == actionRemove && id != activeID {
				continue
			}
			kept = append(kept, id)
		}
		s.meta.ids = kept
		s.meta.mu.Unlock()
	}

	s.metrics.CompactionRuns.Inc()
	s.metrics.SegmentsReclaimed.Add(float64(removed))
	level.Debug(s.logger).Log("msg", "compaction complete", "segments_removed", removed, "records_migrated", len(migrationKeys))
}

func anyMarked(actions map[uint64]compactionAction, want compactionAction) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}
