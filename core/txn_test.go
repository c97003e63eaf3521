package core

import (
	"errors"
	"testing"
)

// TestCommitSurvivesSimulatedCrash covers S1: a committed write is
// visible to a fresh Map call against the same directory, as if the
// process had crashed and restarted (a new Region, sharing no in-memory
// state with the first, is mapped against the same directory).
func TestCommitSurvivesSimulatedCrash(t *testing.T) {
	r, dir, cleanup := SetupTempRegion(t)
	defer cleanup()

	base, err := r.Map("s1", 100)
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	tx, err := r.BeginTrans([][]byte{base})
	if err != nil {
		t.Fatalf("BeginTrans failed: %v", err)
	}
	if err := tx.AboutToModify(base, 0, 5); err != nil {
		t.Fatalf("AboutToModify failed: %v", err)
	}
	copy(base[0:5], "HELLO")
	if err := tx.CommitTrans(); err != nil {
		t.Fatalf("CommitTrans failed: %v", err)
	}

	// Simulate a crash: a brand-new region over the same directory,
	// sharing no registry or descriptor state with r.
	m2 := NewManager()
	r2, err := m2.Init(dir)
	if err != nil {
		t.Fatalf("re-Init failed: %v", err)
	}
	base2, err := r2.Map("s1", 100)
	if err != nil {
		t.Fatalf("re-Map failed: %v", err)
	}
	if string(base2[0:5]) != "HELLO" {
		t.Errorf("base2[0:5] = %q, want %q", base2[0:5], "HELLO")
	}
}

// TestAbortRestoresPreImage covers S2.
func TestAbortRestoresPreImage(t *testing.T) {
	r, _, cleanup := SetupTempRegion(t)
	defer cleanup()

	base, err := r.Map("s1", 100)
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	tx, err := r.BeginTrans([][]byte{base})
	if err != nil {
		t.Fatalf("BeginTrans failed: %v", err)
	}
	if err := tx.AboutToModify(base, 0, 5); err != nil {
		t.Fatalf("AboutToModify failed: %v", err)
	}
	copy(base[0:5], "HELLO")
	if err := tx.CommitTrans(); err != nil {
		t.Fatalf("CommitTrans failed: %v", err)
	}

	tx2, err := r.BeginTrans([][]byte{base})
	if err != nil {
		t.Fatalf("second BeginTrans failed: %v", err)
	}
	if err := tx2.AboutToModify(base, 0, 5); err != nil {
		t.Fatalf("AboutToModify failed: %v", err)
	}
	copy(base[0:5], "WORLD")
	if err := tx2.AbortTrans(); err != nil {
		t.Fatalf("AbortTrans failed: %v", err)
	}

	if string(base[0:5]) != "HELLO" {
		t.Errorf("base[0:5] = %q, want %q", base[0:5], "HELLO")
	}
}

// TestOverlapConflict covers S3: a second BeginTrans over a segment set
// that overlaps a live transaction fails, and the non-overlapping
// segment in the failed request is left untouched.
func TestOverlapConflict(t *testing.T) {
	r, _, cleanup := SetupTempRegion(t)
	defer cleanup()

	b1, _ := r.Map("s1", 10)
	b2, _ := r.Map("s2", 10)
	b3, _ := r.Map("s3", 10)

	tx1, err := r.BeginTrans([][]byte{b1, b2})
	if err != nil {
		t.Fatalf("first BeginTrans failed: %v", err)
	}

	if _, err := r.BeginTrans([][]byte{b2, b3}); !errors.Is(err, ErrConflict) {
		t.Errorf("second BeginTrans: got %v, want ErrConflict", err)
	}

	d1, _ := r.reg.get(b1)
	d3, _ := r.reg.get(b3)
	if !d1.dirty {
		t.Error("first tx's descriptor should remain dirty after the conflicting attempt")
	}
	if d3.dirty {
		t.Error("b3's descriptor must not be marked dirty by the failed attempt")
	}

	if err := tx1.CommitTrans(); err != nil {
		t.Fatalf("CommitTrans failed: %v", err)
	}
}

// TestLIFOAbortOrdering covers S6: two overlapping about_to_modify calls
// on the same range must unwind most-recent-first.
func TestLIFOAbortOrdering(t *testing.T) {
	r, _, cleanup := SetupTempRegion(t)
	defer cleanup()

	base, err := r.Map("s1", 10)
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	tx, err := r.BeginTrans([][]byte{base})
	if err != nil {
		t.Fatalf("BeginTrans failed: %v", err)
	}

	copy(base[0:4], "AAAA")
	if err := tx.AboutToModify(base, 0, 4); err != nil {
		t.Fatalf("first AboutToModify failed: %v", err)
	}
	copy(base[0:4], "BBBB")

	if err := tx.AboutToModify(base, 0, 4); err != nil {
		t.Fatalf("second AboutToModify failed: %v", err)
	}
	copy(base[0:4], "CCCC")

	if err := tx.AbortTrans(); err != nil {
		t.Fatalf("AbortTrans failed: %v", err)
	}

	if string(base[0:4]) != "AAAA" {
		t.Errorf("base[0:4] = %q, want %q", base[0:4], "AAAA")
	}
}

func TestAboutToModifyRejectsBaseNotInTx(t *testing.T) {
	r, _, cleanup := SetupTempRegion(t)
	defer cleanup()

	b1, _ := r.Map("s1", 10)
	b2, _ := r.Map("s2", 10)

	tx, err := r.BeginTrans([][]byte{b1})
	if err != nil {
		t.Fatalf("BeginTrans failed: %v", err)
	}
	if err := tx.AboutToModify(b2, 0, 4); !errors.Is(err, ErrNotInTx) {
		t.Errorf("got %v, want ErrNotInTx", err)
	}
}

func TestAboutToModifyRejectsOutOfRange(t *testing.T) {
	r, _, cleanup := SetupTempRegion(t)
	defer cleanup()

	base, err := r.Map("s1", 10)
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	tx, err := r.BeginTrans([][]byte{base})
	if err != nil {
		t.Fatalf("BeginTrans failed: %v", err)
	}
	if err := tx.AboutToModify(base, 8, 4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("got %v, want ErrOutOfRange", err)
	}
}

func TestAboutToModifyZeroSizeIsNoop(t *testing.T) {
	r, _, cleanup := SetupTempRegion(t)
	defer cleanup()

	base, err := r.Map("s1", 10)
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	tx, err := r.BeginTrans([][]byte{base})
	if err != nil {
		t.Fatalf("BeginTrans failed: %v", err)
	}
	if err := tx.AboutToModify(base, 0, 0); err != nil {
		t.Errorf("zero-size AboutToModify should succeed, got %v", err)
	}
	if err := tx.CommitTrans(); err != nil {
		t.Errorf("CommitTrans after zero-size entry should succeed, got %v", err)
	}
}
