package core

import (
	"fmt"

	"github.com/google/uuid"
)

// Transaction is an ephemeral region, the set of segment bases it owns,
// and a transient identifier sufficient to correlate it across
// diagnostics. The identifier is a uuid.UUID rather than a bare counter,
// useful here purely for log correlation, since a single region never
// runs two transactions concurrently on the same segment.
type Transaction struct {
	ID     uuid.UUID
	region *Region
	bases  [][]byte
}

// BeginTrans resolves every base via the registry, and only if every
// one is found and undirtied does it mark them all dirty — all-or-
// nothing acquisition, with no intermediate publication. Any miss
// leaves every descriptor untouched and returns ErrConflict.
func BeginTrans(region *Region, bases [][]byte) (*Transaction, error) {
	region.mu.Lock()
	defer region.mu.Unlock()

	descs := make([]*descriptor, len(bases))
	for i, b := range bases {
		d, ok := region.reg.get(b)
		if !ok || d.dirty {
			return nil, newErr(CodeUsage, "BeginTrans", ErrConflict)
		}
		descs[i] = d
	}

	for _, d := range descs {
		d.dirty = true
	}

	tx := &Transaction{ID: uuid.New(), region: region, bases: bases}
	region.logger.Debugw("begin transaction", "tx", tx.ID.String(), "segments", len(bases))
	return tx, nil
}

// descFor returns the descriptor for base, but only if base belongs to
// this transaction's owned set. A base outside that set is rejected
// with no state change.
func (tx *Transaction) descFor(base []byte) (*descriptor, bool) {
	target := basePtr(base)
	for _, b := range tx.bases {
		if basePtr(b) == target {
			return tx.region.reg.get(base)
		}
	}
	return nil, false
}

// AboutToModify captures the pre-image of base[offset:offset+size] and
// pushes it onto the segment's undo stack before the caller mutates
// memory in place.
func (tx *Transaction) AboutToModify(base []byte, offset, size int) error {
	tx.region.mu.Lock()
	defer tx.region.mu.Unlock()

	d, ok := tx.descFor(base)
	if !ok {
		return newErr(CodeUsage, "AboutToModify", ErrNotInTx)
	}
	if offset < 0 || size < 0 || offset+size > d.length() {
		return newErr(CodeUsage, "AboutToModify", ErrOutOfRange)
	}

	before := make([]byte, size)
	copy(before, d.base[offset:offset+size])
	d.undo.push(undoEntry{offset: offset, size: size, before: before})
	return nil
}

// CommitTrans, for each owned segment in input order, drains its undo
// stack oldest-first and appends one redo record per entry holding the
// post-image (the live value at commit time), fsyncs, clears dirty, and
// discards the undo entries. A storage failure leaves the dirty flag
// set so a retry is possible, instead of silently losing the lock.
func (tx *Transaction) CommitTrans() error {
	tx.region.mu.Lock()
	defer tx.region.mu.Unlock()

	for _, base := range tx.bases {
		d, ok := tx.region.reg.get(base)
		if !ok {
			continue // unmapped mid-transaction; nothing left to commit for it
		}

		entries := d.undo.drainFront()
		if len(entries) == 0 {
			d.dirty = false
			continue
		}

		records := make([][]byte, len(entries))
		for i, e := range entries {
			records[i] = encodeRecord(e.offset, d.base[e.offset:e.offset+e.size])
		}

		if err := appendLogRecords(d.dir, d.name, records); err != nil {
			// Put the drained entries back so retrying CommitTrans (or an
			// eventual AbortTrans) still has something to act on.
			for _, e := range entries {
				d.undo.push(e)
			}
			return newErr(CodeStorage, "CommitTrans", fmt.Errorf("segment %q: %w", d.name, err))
		}

		d.dirty = false
	}

	tx.region.logger.Debugw("commit transaction", "tx", tx.ID.String())
	return nil
}

// AbortTrans, for each owned segment, pops undo entries in LIFO order,
// restoring each pre-image into memory, then clears dirty. No disk I/O
// occurs.
func (tx *Transaction) AbortTrans() error {
	tx.region.mu.Lock()
	defer tx.region.mu.Unlock()

	for _, base := range tx.bases {
		d, ok := tx.region.reg.get(base)
		if !ok {
			continue
		}

		for _, e := range d.undo.popAll() {
			copy(d.base[e.offset:e.offset+e.size], e.before)
		}
		d.dirty = false
	}

	tx.region.logger.Debugw("abort transaction", "tx", tx.ID.String())
	return nil
}
