// Package rvm implements Recoverable Virtual Memory: segments of process
// memory whose mutations, enclosed in a transaction, are either
// atomically durable or cleanly reverted, and whose last committed state
// survives a crash. See core for the storage, recovery, and transaction
// machinery; this package is a thin wrapper over it.
package rvm

import (
	"os"

	"go.uber.org/zap"

	"github.com/rvmlib/rvm/core"
)

// Sentinel errors, re-exported from core so callers can branch with
// errors.Is without importing the internal engine package.
var (
	ErrAlreadyMapped  = core.ErrAlreadyMapped
	ErrNotMapped      = core.ErrNotMapped
	ErrSegmentMapped  = core.ErrSegmentMapped
	ErrConflict       = core.ErrConflict
	ErrNotInTx        = core.ErrNotInTx
	ErrOutOfRange     = core.ErrOutOfRange
	ErrTooManyRegions = core.ErrTooManyRegions
	ErrReservedName   = core.ErrReservedName
)

// Option configures a Manager at construction time.
type Option func(*core.Manager)

// WithMaxRegions overrides the default limit of 128 regions per Manager.
func WithMaxRegions(n int) Option { return Option(core.WithMaxRegions(n)) }

// WithLogger sets the diagnostic sink every region created by this
// Manager inherits. Defaults to a no-op logger.
func WithLogger(l *zap.SugaredLogger) Option { return Option(core.WithLogger(l)) }

// WithDirMode overrides the permission mode used when a region directory
// is created lazily on first Init. Defaults to 0o755.
func WithDirMode(mode os.FileMode) Option { return Option(core.WithDirMode(mode)) }

// Manager owns the regions a process has initialized.
type Manager struct {
	inner *core.Manager
}

// NewManager builds a Manager. A process may hold several independently,
// each with its own region cap and logger.
func NewManager(opts ...Option) *Manager {
	copts := make([]core.ManagerOption, len(opts))
	for i, o := range opts {
		copts[i] = core.ManagerOption(o)
	}
	return &Manager{inner: core.NewManager(copts...)}
}

// Region is a directory-rooted namespace of segments.
type Region struct {
	inner *core.Region
}

// Transaction is a bounded window during which one set of segments may
// be mutated atomically.
type Transaction struct {
	inner *core.Transaction
}

// Init creates (or reopens) the region rooted at directory.
func (m *Manager) Init(directory string) (*Region, error) {
	r, err := m.inner.Init(directory)
	if err != nil {
		return nil, err
	}
	return &Region{inner: r}, nil
}

// Map binds segName to an in-memory buffer of at least size bytes,
// replaying and truncating every outstanding log in the region first.
// The returned slice's address is stable until Unmap.
func (r *Region) Map(segName string, size int) ([]byte, error) {
	return r.inner.Map(segName, size)
}

// Unmap releases base and its descriptor. base must not be owned by a
// live transaction.
func (r *Region) Unmap(base []byte) error {
	return r.inner.Unmap(base)
}

// Destroy deletes segName's backing files. It is an error to destroy a
// currently mapped segment.
func (r *Region) Destroy(segName string) error {
	return r.inner.Destroy(segName)
}

// TruncateLog replays every segment's log into its data file and empties
// the logs. Map already does this implicitly for the whole region.
func (r *Region) TruncateLog() error {
	return r.inner.TruncateLog()
}

// BeginTrans acquires exclusive ownership of every base in bases,
// all-or-nothing. On conflict it returns a wrapped ErrConflict and
// leaves every descriptor untouched.
func (r *Region) BeginTrans(bases [][]byte) (*Transaction, error) {
	tx, err := r.inner.BeginTrans(bases)
	if err != nil {
		return nil, err
	}
	return &Transaction{inner: tx}, nil
}

// AboutToModify records the pre-image of base[offset:offset+size] so it
// can be restored on abort. Call it before mutating that range.
func (tx *Transaction) AboutToModify(base []byte, offset, size int) error {
	return tx.inner.AboutToModify(base, offset, size)
}

// CommitTrans appends one redo record per undo entry, fsyncs, and
// releases the transaction's segments. On storage failure the
// transaction's segments remain dirty so a retry is possible.
func (tx *Transaction) CommitTrans() error {
	return tx.inner.CommitTrans()
}

// AbortTrans restores every owned segment's pre-images in LIFO order and
// releases the transaction's segments. No disk I/O occurs.
func (tx *Transaction) AbortTrans() error {
	return tx.inner.AbortTrans()
}
