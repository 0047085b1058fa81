package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/downfa11-org/go-recordlog/pkg/types"
	"github.com/downfa11-org/go-recordlog/util"
)

// CommitStore is the commit index as seen by the log files.
type CommitStore interface {
	types.Committer
	types.PositionFinder
	HasCommits(partitionID uint32) bool
}

type ManagerConfig struct {
	Dir            string
	LogCount       int
	PartitionCount int
	FlushInterval  time.Duration
}

// LogManager owns one writer and one reader per log file. Partition p lives in
// log p mod LogCount.
type LogManager struct {
	mu             sync.Mutex
	writers        []*LogWriter
	readers        []*LogReader
	partitionCount int
}

func LogPath(dir string, log int) string {
	return filepath.Join(dir, fmt.Sprintf("%d.log", log))
}

// NewLogManager opens every log file under cfg.Dir and recovers the next
// offset of each partition from the commit store and the log contents.
func NewLogManager(cfg ManagerConfig, commits CommitStore) (*LogManager, error) {
	if cfg.LogCount <= 0 {
		return nil, fmt.Errorf("log count must be positive, got %d", cfg.LogCount)
	}
	if cfg.PartitionCount <= 0 {
		return nil, fmt.Errorf("partition count must be positive, got %d", cfg.PartitionCount)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", cfg.Dir, err)
	}

	lm := &LogManager{partitionCount: cfg.PartitionCount}
	for i := 0; i < cfg.LogCount; i++ {
		path := LogPath(cfg.Dir, i)
		if _, err := truncateTornTail(path); err != nil {
			_ = lm.CloseAll()
			return nil, fmt.Errorf("repair %s: %w", path, err)
		}
		reader := NewLogReader(path)

		offsets := make(map[uint32]uint64)
		for p := i; p < cfg.PartitionCount; p += cfg.LogCount {
			next, err := recoverNextOffset(reader, commits, uint32(p))
			if err != nil {
				_ = lm.CloseAll()
				return nil, fmt.Errorf("recover partition %d: %w", p, err)
			}
			offsets[uint32(p)] = next
			util.Debug("[%s] partition %d is at offset %d", path, p, next)
		}

		writer, err := NewLogWriter(WriterConfig{
			Path:          path,
			Offsets:       offsets,
			FlushInterval: cfg.FlushInterval,
		}, commits)
		if err != nil {
			_ = lm.CloseAll()
			return nil, err
		}
		lm.writers = append(lm.writers, writer)
		lm.readers = append(lm.readers, reader)
	}

	util.Info("opened %d logs in %s for %d partitions", cfg.LogCount, cfg.Dir, cfg.PartitionCount)
	return lm, nil
}

// recoverNextOffset scans the partition from its last commit and resumes one
// past the highest offset on disk. Records that reached the file without a
// commit still hold their offsets.
func recoverNextOffset(reader *LogReader, commits CommitStore, partitionID uint32) (uint64, error) {
	latest := commits.LatestCommit(partitionID)
	records, err := reader.Query(partitionID, latest.Position)
	if err != nil {
		return 0, err
	}
	if n := len(records); n > 0 {
		return records[n-1].Offset + 1, nil
	}
	if !commits.HasCommits(partitionID) {
		return latest.Offset, nil
	}
	return latest.Offset + 1, nil
}

func (lm *LogManager) logIndex(partitionID uint32) (int, error) {
	if int64(partitionID) >= int64(lm.partitionCount) {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", types.ErrUnknownPartition, partitionID, lm.partitionCount)
	}
	return int(partitionID) % len(lm.writers), nil
}

// Writer returns the writer of the log that holds partitionID.
func (lm *LogManager) Writer(partitionID uint32) (*LogWriter, error) {
	i, err := lm.logIndex(partitionID)
	if err != nil {
		return nil, err
	}
	return lm.writers[i], nil
}

// Reader returns the reader of the log that holds partitionID.
func (lm *LogManager) Reader(partitionID uint32) (*LogReader, error) {
	i, err := lm.logIndex(partitionID)
	if err != nil {
		return nil, err
	}
	return lm.readers[i], nil
}

func (lm *LogManager) LogCount() int {
	return len(lm.writers)
}

func (lm *LogManager) PartitionCount() int {
	return lm.partitionCount
}

// FlushAll flushes every log now instead of waiting for the next tick.
func (lm *LogManager) FlushAll() error {
	var errs []error
	for _, w := range lm.writers {
		if err := w.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseAll drains and closes every writer.
func (lm *LogManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var errs []error
	for _, w := range lm.writers {
		util.Debug("Closing log writer for %s", w.Path())
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", w.Path(), err))
		}
	}
	return errors.Join(errs...)
}
