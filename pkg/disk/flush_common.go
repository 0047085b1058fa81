package disk

import (
	"fmt"
	"sort"
	"time"

	"github.com/downfa11-org/go-recordlog/pkg/metrics"
	"github.com/downfa11-org/go-recordlog/pkg/segment"
	"github.com/downfa11-org/go-recordlog/pkg/types"
	"github.com/downfa11-org/go-recordlog/util"
	"github.com/google/uuid"
)

func (w *LogWriter) flushLoop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = w.Flush()
		case <-w.done:
			return
		}
	}
}

// Flush swaps out the queued records, appends them and commits their
// positions. Every queued record is resolved with the returned error.
// Only one flush runs at a time.
func (w *LogWriter) Flush() error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.active
	w.active = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	flushID := uuid.NewString()
	start := time.Now()
	n, err := w.writeBatch(flushID, batch)
	metrics.ObserveFlush(time.Since(start), len(batch), n, err)
	if err != nil {
		util.Error("flush %s of %s failed, rejecting %d records: %v", flushID, w.path, len(batch), err)
	}

	for _, pw := range batch {
		pw.resolve(err)
	}
	return err
}

// writeBatch encodes one segment per partition, appends them with a single
// write and fsync, then commits each segment's starting position. A failed
// batch is truncated off the log again; offsets handed out for it are never
// reused.
func (w *LogWriter) writeBatch(flushID string, batch []*PendingWrite) (int, error) {
	if w.file == nil {
		return 0, fmt.Errorf("%w: %s", types.ErrWriterClosed, w.path)
	}

	groups := make(map[uint32][]types.Record)
	size := 0
	for _, pw := range batch {
		groups[pw.PartitionID] = append(groups[pw.PartitionID], pw.record)
		size += segment.ItemSize(pw.record.Key, pw.record.Value)
	}

	partitions := make([]uint32, 0, len(groups))
	for p := range groups {
		partitions = append(partitions, p)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	buf := make([]byte, 0, size+len(groups)*segment.HeaderSize)
	commits := make([]types.PartitionCommit, 0, len(groups))
	for _, p := range partitions {
		records := groups[p]
		sort.Slice(records, func(i, j int) bool { return records[i].Offset < records[j].Offset })

		commits = append(commits, types.PartitionCommit{
			PartitionID: p,
			Offset:      records[0].Offset,
			Position:    w.position + uint64(len(buf)),
		})

		var err error
		if buf, err = segment.AppendEncode(buf, p, records[0].Offset, records); err != nil {
			return 0, fmt.Errorf("%w: encode partition %d: %w", types.ErrDurability, p, err)
		}
	}

	n, err := w.file.Write(buf)
	if err != nil {
		w.rollback(n)
		return n, fmt.Errorf("%w: append to %s: %v", types.ErrDurability, w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		w.rollback(n)
		return n, fmt.Errorf("%w: sync %s: %v", types.ErrDurability, w.path, err)
	}

	if err := w.committer.SaveCommits(commits); err != nil {
		w.rollback(n)
		return n, fmt.Errorf("%w: commit flush %s: %w", types.ErrDurability, flushID, err)
	}
	w.position += uint64(n)

	util.Debug("flush %s: %d records in %d segments, %d bytes appended to %s", flushID, len(batch), len(commits), n, w.path)
	return n, nil
}
