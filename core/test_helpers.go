package core

import (
	"os"
	"testing"

	"go.uber.org/zap"
)

// noopLogger is the diagnostic sink tests use when they only care about
// behavior, not the warnings a recovery pass logs along the way.
func noopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// SetupTempRegion creates a fresh Manager and region rooted at a
// temporary directory. The returned cleanup removes the directory; it
// does not attempt to close anything, since a Region holds no open file
// handles between calls.
func SetupTempRegion(tb testing.TB, opts ...ManagerOption) (r *Region, dir string, cleanup func()) {
	tb.Helper()

	dir, err := os.MkdirTemp("", "rvm_test_*")
	if err != nil {
		tb.Fatalf("MkdirTemp failed: %v", err)
	}

	m := NewManager(opts...)
	r, err = m.Init(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		tb.Fatalf("Init(%q) failed: %v", dir, err)
	}

	cleanup = func() {
		_ = os.RemoveAll(dir)
	}
	return r, dir, cleanup
}
