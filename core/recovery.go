package core

import (
	"fmt"
	"os"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

const logSuffix = ".log"

// truncateLog scans the region directory for log files, replays each
// non-empty one into its data file, then empties it. Directory order is
// unspecified and correctness does not depend on it, since each log
// only touches its own data file.
func truncateLog(dir string, logger *zap.SugaredLogger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read region dir %q: %w", dir, err)
	}

	logStems := mapset.NewSet[string]()
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, logSuffix) {
			continue
		}
		logStems.Add(strings.TrimSuffix(name, logSuffix))
	}

	for segName := range logStems.Iter() {
		if _, err := os.Stat(dataPath(dir, segName)); os.IsNotExist(err) {
			logger.Warnw("log file has no matching data file, skipping", "segment", segName)
			continue
		}

		if err := replaySegment(dir, segName, logger); err != nil {
			return fmt.Errorf("replay segment %q: %w", segName, err)
		}
	}

	return nil
}

// replaySegment applies one segment's log to its data file and empties
// the log, syncing the data mapping before the log is reset, so a crash
// mid-truncate only causes a harmless re-replay on the next boot.
func replaySegment(dir, segName string, logger *zap.SugaredLogger) error {
	info, err := os.Stat(logPath(dir, segName))
	if err != nil {
		return fmt.Errorf("stat log %q: %w", segName, err)
	}
	if info.Size() == 0 {
		return nil
	}

	rv, err := mapForReplay(dir, segName)
	if err != nil {
		return newErr(CodeStorage, "replaySegment", err)
	}

	applyLog(rv.logMap, rv.dataMap, segName, logger)

	// close() msyncs the data mapping before unmapping both views, so by
	// the time it returns the applied records are durable.
	if err := rv.close(); err != nil {
		return newErr(CodeStorage, "replaySegment", err)
	}

	// The data mapping is durable and unmapped before the log is reset,
	// a crash mid-truncate at worst causes the same log to be replayed
	// again on next boot.
	return resetLog(dir, segName)
}

// applyLog walks a mapped log from offset 0, copying each record's
// payload into the data mapping, and stops at the first header or
// payload that doesn't fully fit — a torn trailing record from a crash
// mid-append, discarded as non-fatal corruption.
func applyLog(logMap, dataMap []byte, segName string, logger *zap.SugaredLogger) {
	pos := 0
	for pos < len(logMap) {
		size, offset, ok := decodeRecordHeader(logMap[pos:])
		if !ok {
			logger.Warnw("torn log header discarded", "segment", segName, "pos", pos)
			return
		}

		payloadStart := pos + recHdrLen
		payloadEnd := payloadStart + size
		if payloadEnd > len(logMap) {
			logger.Warnw("torn log payload discarded", "segment", segName, "pos", pos)
			return
		}

		dst := lenPrefix + offset
		copy(dataMap[dst:dst+size], logMap[payloadStart:payloadEnd])

		pos = payloadEnd
	}
}
