package core

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

// lenPrefix is the width of the data file's leading length field, fixed at
// 32 bits little-endian so region directories are portable across hosts
// and across runs on the same host.
const lenPrefix = 4

func logPath(dir, segName string) string  { return filepath.Join(dir, segName+".log") }
func dataPath(dir, segName string) string { return filepath.Join(dir, segName) }

// syncFileAndDir fsyncs f, then fsyncs the directory containing it, so a
// crash right after this call cannot un-durable what the caller just wrote.
// Any write meant to survive a crash must be followed by this before the
// caller is told it succeeded.
func syncFileAndDir(f *os.File) error {
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", f.Name(), err)
	}
	dir, err := os.Open(filepath.Dir(f.Name()))
	if err != nil {
		return fmt.Errorf("open dir of %s: %w", f.Name(), err)
	}
	defer dir.Close() // nolint:errcheck
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("sync dir of %s: %w", f.Name(), err)
	}
	return nil
}

// ensureData creates the data file with wantLen zero bytes if absent (and
// an empty log file alongside it), or extends it in place, preserving the
// leading bytes and zero-filling the tail, if it already exists but is
// shorter than wantLen.
func ensureData(dir, segName string, wantLen int) error {
	dp := dataPath(dir, segName)

	f, err := os.OpenFile(dp, os.O_RDWR, 0o644)
	if os.IsNotExist(err) {
		return createData(dir, segName, wantLen)
	}
	if err != nil {
		return fmt.Errorf("open data file %q: %w", dp, err)
	}
	defer f.Close() // nolint:errcheck

	curLen, err := readLengthPrefix(f)
	if err != nil {
		return fmt.Errorf("read length prefix %q: %w", dp, err)
	}
	if curLen >= wantLen {
		return nil
	}

	return extendData(f, curLen, wantLen)
}

func createData(dir, segName string, size int) error {
	dp := dataPath(dir, segName)
	f, err := os.OpenFile(dp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create data file %q: %w", dp, err)
	}
	defer f.Close() // nolint:errcheck

	buf := make([]byte, lenPrefix+size)
	binary.LittleEndian.PutUint32(buf[:lenPrefix], uint32(size))
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("write data file %q: %w", dp, err)
	}
	if err := syncFileAndDir(f); err != nil {
		return err
	}

	lp := logPath(dir, segName)
	lf, err := os.OpenFile(lp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create log file %q: %w", lp, err)
	}
	defer lf.Close() // nolint:errcheck
	return syncFileAndDir(lf)
}

func extendData(f *os.File, curLen, wantLen int) error {
	// Rewrite the length prefix, then append zero bytes for the grown tail.
	var lp [lenPrefix]byte
	binary.LittleEndian.PutUint32(lp[:], uint32(wantLen))
	if _, err := f.WriteAt(lp[:], 0); err != nil {
		return fmt.Errorf("rewrite length prefix %q: %w", f.Name(), err)
	}

	pad := make([]byte, wantLen-curLen)
	if _, err := f.WriteAt(pad, lenPrefix+int64(curLen)); err != nil {
		return fmt.Errorf("zero-extend %q: %w", f.Name(), err)
	}
	return syncFileAndDir(f)
}

func readLengthPrefix(f *os.File) (int, error) {
	var lp [lenPrefix]byte
	if _, err := f.ReadAt(lp[:], 0); err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint32(lp[:])), nil
}

// readSegmentData reads the length prefix then exactly length bytes into
// a freshly allocated buffer.
func readSegmentData(dir, segName string) ([]byte, error) {
	dp := dataPath(dir, segName)
	f, err := os.OpenFile(dp, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open data file %q: %w", dp, err)
	}
	defer f.Close() // nolint:errcheck

	length, err := readLengthPrefix(f)
	if err != nil {
		return nil, fmt.Errorf("read length prefix %q: %w", dp, err)
	}

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, lenPrefix); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read data %q: %w", dp, err)
	}
	return buf, nil
}

// appendLogRecords opens <path>.log in append mode once, writes every
// record for this segment's commit, then fsyncs the file and its
// directory exactly once before the caller observes success.
func appendLogRecords(dir, segName string, records [][]byte) error {
	if len(records) == 0 {
		return nil
	}

	lp := logPath(dir, segName)
	f, err := os.OpenFile(lp, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %q: %w", lp, err)
	}
	defer f.Close() // nolint:errcheck

	for _, rec := range records {
		if _, err := f.Write(rec); err != nil {
			return fmt.Errorf("append log %q: %w", lp, err)
		}
	}
	return syncFileAndDir(f)
}

// replayView holds the two mappings recovery needs: a read-only view of
// the log and a read/write view of the data file.
type replayView struct {
	logFile  *os.File
	dataFile *os.File
	logMap   mmap.MMap
	dataMap  mmap.MMap
}

func mapForReplay(dir, segName string) (rv *replayView, rerr error) {
	lp, dp := logPath(dir, segName), dataPath(dir, segName)

	logFile, err := os.OpenFile(lp, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %q: %w", lp, err)
	}
	defer func() {
		if rerr != nil {
			logFile.Close() // nolint:errcheck
		}
	}()

	dataFile, err := os.OpenFile(dp, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open data %q: %w", dp, err)
	}
	defer func() {
		if rerr != nil {
			dataFile.Close() // nolint:errcheck
		}
	}()

	info, err := logFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log %q: %w", lp, err)
	}
	rv = &replayView{logFile: logFile, dataFile: dataFile}

	if info.Size() > 0 {
		rv.logMap, err = mmap.Map(logFile, mmap.RDONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("mmap log %q: %w", lp, err)
		}
	}

	rv.dataMap, err = mmap.Map(dataFile, mmap.RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap data %q: %w", dp, err)
	}

	return rv, nil
}

// close syncs the data mapping (msync) before unmapping both views, per
// the data mapping must be durable before the log is reset.
func (rv *replayView) close() error {
	var errs []error
	if rv.dataMap != nil {
		if err := rv.dataMap.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("msync data: %w", err))
		}
		if err := rv.dataMap.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("munmap data: %w", err))
		}
	}
	if rv.logMap != nil {
		if err := rv.logMap.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("munmap log: %w", err))
		}
	}
	if err := rv.dataFile.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := rv.logFile.Close(); err != nil {
		errs = append(errs, err)
	}
	return joinErrs(errs)
}

// resetLog removes and recreates <path>.log as an empty file, synced so
// the truncation itself survives a crash. Callers must only empty the
// log after the data mapping it fed has already been synced.
func resetLog(dir, segName string) error {
	lp := logPath(dir, segName)
	if err := os.Remove(lp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove log %q: %w", lp, err)
	}
	f, err := os.OpenFile(lp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("recreate log %q: %w", lp, err)
	}
	defer f.Close() // nolint:errcheck
	return syncFileAndDir(f)
}

// removeSegment deletes both sibling files, succeeding if either or both
// are already absent.
func removeSegment(dir, segName string) error {
	dp, lp := dataPath(dir, segName), logPath(dir, segName)
	if err := os.Remove(dp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove data %q: %w", dp, err)
	}
	if err := os.Remove(lp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove log %q: %w", lp, err)
	}
	return nil
}
