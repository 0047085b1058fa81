package disk

import (
	"context"
	"errors"
	"os"

	"github.com/downfa11-org/go-recordlog/pkg/types"
	"github.com/downfa11-org/go-recordlog/util"
)

// PendingWrite is a record waiting for its flush. It is resolved exactly once.
type PendingWrite struct {
	PartitionID uint32
	record      types.Record
	done        chan struct{}
	err         error
}

func newPendingWrite(partitionID uint32, record types.Record) *PendingWrite {
	return &PendingWrite{
		PartitionID: partitionID,
		record:      record,
		done:        make(chan struct{}),
	}
}

// Offset is the offset assigned at Write time. It is only durable once Wait
// returns without error.
func (p *PendingWrite) Offset() uint64 {
	return p.record.Offset
}

func (p *PendingWrite) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the record is flushed or ctx is done. Cancelling ctx does
// not cancel the write.
func (p *PendingWrite) Wait(ctx context.Context) (uint64, error) {
	select {
	case <-p.done:
		if p.err != nil {
			return 0, p.err
		}
		return p.record.Offset, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *PendingWrite) resolve(err error) {
	p.err = err
	close(p.done)
}

func (w *LogWriter) Path() string {
	return w.path
}

// Position returns the byte position the next flush will append at.
func (w *LogWriter) Position() uint64 {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	return w.position
}

// NextOffset returns the offset the next Write to partitionID gets.
func (w *LogWriter) NextOffset(partitionID uint32) (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	o, ok := w.offsets[partitionID]
	return o, ok
}

// Pending returns the number of records queued for the next flush.
func (w *LogWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active)
}

// Close stops the flush loop, flushes everything still queued and closes the
// log file. Writes after Close fail with ErrWriterClosed.
func (w *LogWriter) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		close(w.done)
		w.shutdown.Wait()

		w.closeErr = w.Flush()

		w.flushMu.Lock()
		defer w.flushMu.Unlock()
		if err := w.file.Sync(); err != nil {
			util.Error("log writer %s: sync on close failed: %v", w.path, err)
			if w.closeErr == nil {
				w.closeErr = err
			}
		}
		if err := w.file.Close(); err != nil && w.closeErr == nil {
			w.closeErr = err
		}
		w.file = nil
	})
	return w.closeErr
}

func closeQuietly(f *os.File) {
	if err := f.Close(); err != nil {
		util.Error("file close error: %v", err)
	}
}

// truncateTornTail cuts everything after the last complete segment of the log,
// such as a segment torn by a crash mid-append, and returns the new size.
func truncateTornTail(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	end, err := NewLogReader(path).completeEnd()
	if err != nil {
		return 0, err
	}
	size := uint64(info.Size())
	if end >= size {
		return size, nil
	}

	util.Warn("log %s: truncating %d bytes after the last complete segment at %d", path, size-end, end)
	if err := os.Truncate(path, int64(end)); err != nil {
		return 0, err
	}
	return end, nil
}

// rollback cuts a failed append of n bytes off the log. The cursor only moves
// past those bytes when they cannot be removed.
func (w *LogWriter) rollback(n int) {
	if n == 0 {
		return
	}
	if err := w.file.Truncate(int64(w.position)); err != nil {
		util.Error("log %s: failed to truncate %d bytes of a failed flush: %v", w.path, n, err)
		w.position += uint64(n)
	}
}
