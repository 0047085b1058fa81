package disk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/downfa11-org/go-recordlog/pkg/types"
	"github.com/downfa11-org/go-recordlog/util"
)

const DefaultFlushInterval = 250 * time.Millisecond

// WriterConfig describes one log file and the partitions appended to it.
type WriterConfig struct {
	Path string
	// Offsets holds the next offset to assign for every partition owned by the log.
	Offsets       map[uint32]uint64
	FlushInterval time.Duration
}

// LogWriter batches records of several partitions and appends them to a
// single log file, one segment per partition per flush.
type LogWriter struct {
	path      string
	committer types.Committer

	mu      sync.Mutex // offsets, active, closed
	offsets map[uint32]uint64
	active  []*PendingWrite
	closed  bool

	flushMu  sync.Mutex // file, position
	file     *os.File
	position uint64

	interval  time.Duration
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	shutdown  sync.WaitGroup
}

// NewLogWriter opens cfg.Path for appending and starts the flush loop. Bytes
// after the last complete segment are cut first; the running position starts
// at the resulting file size.
func NewLogWriter(cfg WriterConfig, committer types.Committer) (*LogWriter, error) {
	if committer == nil {
		return nil, fmt.Errorf("log writer %s: nil committer", cfg.Path)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if _, err := truncateTornTail(cfg.Path); err != nil {
		return nil, fmt.Errorf("failed to repair log file: %w", err)
	}

	file, err := openLog(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		closeQuietly(file)
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	offsets := make(map[uint32]uint64, len(cfg.Offsets))
	for p, o := range cfg.Offsets {
		offsets[p] = o
	}

	w := &LogWriter{
		path:      cfg.Path,
		committer: committer,
		offsets:   offsets,
		file:      file,
		position:  uint64(info.Size()),
		interval:  interval,
		done:      make(chan struct{}),
	}

	util.Debug("log writer %s opened at position %d with %d partitions", w.path, w.position, len(offsets))

	w.shutdown.Add(1)
	go func() {
		defer w.shutdown.Done()
		w.flushLoop()
	}()

	return w, nil
}

// Write assigns the next offset of partitionID to the record and queues it for
// the next flush. The returned PendingWrite resolves once the record is durable.
func (w *LogWriter) Write(partitionID uint32, key, value string) (*PendingWrite, error) {
	if err := types.ValidateRecord(key, value); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, types.ErrWriterClosed
	}
	offset, ok := w.offsets[partitionID]
	if !ok {
		return nil, fmt.Errorf("%w: partition %d is not served by %s", types.ErrUnknownPartition, partitionID, w.path)
	}
	w.offsets[partitionID] = offset + 1

	pw := newPendingWrite(partitionID, types.NewRecord(offset, key, value))
	w.active = append(w.active, pw)
	return pw, nil
}

// WriteSync writes a record and waits until it is durable or ctx is done.
func (w *LogWriter) WriteSync(ctx context.Context, partitionID uint32, key, value string) (uint64, error) {
	pw, err := w.Write(partitionID, key, value)
	if err != nil {
		return 0, err
	}
	return pw.Wait(ctx)
}
