package core

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Region is a directory on disk, a process-local id, and the registry
// of segments currently mapped from it. A live transaction's
// mutual-exclusion rule (the dirty flag) is enforced under mu, the sole
// cross-call interlock.
type Region struct {
	id     int
	dir    string
	reg    *registry
	mu     sync.Mutex
	logger *zap.SugaredLogger
}

// newRegion creates the region directory if absent and returns an
// empty, freshly registered Region.
func newRegion(id int, dir string, mode os.FileMode, logger *zap.SugaredLogger) (*Region, error) {
	if err := os.MkdirAll(dir, mode); err != nil {
		return nil, newErr(CodeStorage, "Init", err)
	}
	return &Region{id: id, dir: dir, reg: newRegistry(), logger: logger}, nil
}

// Map ensures the data file exists and is at least size bytes, replays
// and truncates every log in the region (the only recovery point),
// reads the data file into a fresh buffer, and registers a descriptor
// for it. Mapping the same segment name twice in a live region is a
// usage error.
func (r *Region) Map(segName string, size int) ([]byte, error) {
	if strings.HasSuffix(segName, logSuffix) {
		return nil, newErr(CodeUsage, "Map", ErrReservedName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reg.getByName(segName); ok {
		return nil, newErr(CodeUsage, "Map", ErrAlreadyMapped)
	}

	if err := ensureData(r.dir, segName, size); err != nil {
		return nil, newErr(CodeStorage, "Map", err)
	}

	if err := truncateLog(r.dir, r.logger); err != nil {
		return nil, newErr(CodeStorage, "Map", err)
	}

	data, err := readSegmentData(r.dir, segName)
	if err != nil {
		return nil, newErr(CodeStorage, "Map", err)
	}

	d := &descriptor{name: segName, dir: r.dir, base: data}
	r.reg.put(d)

	r.logger.Debugw("mapped segment", "segment", segName, "length", len(data))
	return data, nil
}

// Unmap discards the descriptor and frees the registry entry. A live
// transaction still holding base is undefined behavior upstream of this
// call; this implementation fails loudly instead of silently corrupting
// state.
func (r *Region) Unmap(base []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.reg.get(base)
	if !ok {
		return newErr(CodeUsage, "Unmap", ErrNotMapped)
	}
	if d.dirty {
		return newErr(CodeUsage, "Unmap", ErrConflict)
	}

	r.reg.erase(base)
	r.logger.Debugw("unmapped segment", "segment", d.name)
	return nil
}

// Destroy erases both backing files. Calling it on a mapped segment is
// a usage error; calling it on an absent one succeeds — it always
// removes both the data file and its log, scrubbing any stale log
// along with it.
func (r *Region) Destroy(segName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reg.getByName(segName); ok {
		return newErr(CodeUsage, "Destroy", ErrSegmentMapped)
	}

	if err := removeSegment(r.dir, segName); err != nil {
		return newErr(CodeStorage, "Destroy", err)
	}
	return nil
}

// TruncateLog replays every log file in the region into its data file,
// then empties it. Map already calls this implicitly; this method
// exists for callers that want to shrink logs without mapping a new
// segment.
func (r *Region) TruncateLog() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := truncateLog(r.dir, r.logger); err != nil {
		return newErr(CodeStorage, "TruncateLog", err)
	}
	return nil
}

// BeginTrans acquires exclusive ownership of bases within this region.
func (r *Region) BeginTrans(bases [][]byte) (*Transaction, error) {
	return BeginTrans(r, bases)
}
