package disk_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/downfa11-org/go-recordlog/pkg/disk"
	"github.com/downfa11-org/go-recordlog/pkg/segment"
	"github.com/downfa11-org/go-recordlog/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCommitter struct {
	mu      sync.Mutex
	batches [][]types.PartitionCommit
	err     error
}

func (c *recordingCommitter) SaveCommits(commits []types.PartitionCommit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	batch := make([]types.PartitionCommit, len(commits))
	copy(batch, commits)
	c.batches = append(c.batches, batch)
	return nil
}

func (c *recordingCommitter) Batches() [][]types.PartitionCommit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}

func (c *recordingCommitter) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// newManualWriter returns a writer whose ticker never fires during a test, so
// flushes happen only through Flush.
func newManualWriter(t *testing.T, offsets map[uint32]uint64) (*disk.LogWriter, *recordingCommitter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "0.log")
	committer := &recordingCommitter{}
	w, err := disk.NewLogWriter(disk.WriterConfig{
		Path:          path,
		Offsets:       offsets,
		FlushInterval: time.Hour,
	}, committer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, committer, path
}

func write(t *testing.T, w *disk.LogWriter, partitionID uint32, key, value string) *disk.PendingWrite {
	t.Helper()
	pw, err := w.Write(partitionID, key, value)
	require.NoError(t, err)
	return pw
}

func wait(t *testing.T, pw *disk.PendingWrite) uint64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	offset, err := pw.Wait(ctx)
	require.NoError(t, err)
	return offset
}

func TestWriteAssignsSequentialOffsets(t *testing.T) {
	w, committer, path := newManualWriter(t, map[uint32]uint64{0: 1, 4: 7})

	a := write(t, w, 0, "k1", "v1")
	b := write(t, w, 4, "k2", "v2")
	c := write(t, w, 0, "k3", "v3")
	assert.Equal(t, uint64(1), a.Offset())
	assert.Equal(t, uint64(7), b.Offset())
	assert.Equal(t, uint64(2), c.Offset())
	assert.Equal(t, 3, w.Pending())

	require.NoError(t, w.Flush())
	assert.Equal(t, uint64(1), wait(t, a))
	assert.Equal(t, uint64(7), wait(t, b))
	assert.Equal(t, uint64(2), wait(t, c))
	assert.Equal(t, 0, w.Pending())

	p0Size := uint64(segment.HeaderSize + segment.ItemSize("k1", "v1") + segment.ItemSize("k3", "v3"))
	batches := committer.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []types.PartitionCommit{
		{PartitionID: 0, Offset: 1, Position: 0},
		{PartitionID: 4, Offset: 7, Position: p0Size},
	}, batches[0])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	first, err := segment.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []types.Record{{Offset: 1, Key: "k1", Value: "v1"}, {Offset: 2, Key: "k3", Value: "v3"}}, first.Records)
	second, err := segment.Decode(data[p0Size:])
	require.NoError(t, err)
	assert.Equal(t, []types.Record{{Offset: 7, Key: "k2", Value: "v2"}}, second.Records)

	assert.Equal(t, uint64(len(data)), w.Position())
	next, ok := w.NextOffset(0)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), next)
}

func TestEmptyFlushIsNoop(t *testing.T) {
	w, committer, path := newManualWriter(t, map[uint32]uint64{0: 1})

	require.NoError(t, w.Flush())
	assert.Empty(t, committer.Batches())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestWriteRejectsInvalidRecords(t *testing.T) {
	w, _, _ := newManualWriter(t, map[uint32]uint64{0: 1})

	_, err := w.Write(3, "k", "v")
	assert.ErrorIs(t, err, types.ErrUnknownPartition)

	big := make([]byte, types.MaxValueSize+1)
	_, err = w.Write(0, "k", string(big))
	assert.ErrorIs(t, err, types.ErrRecordTooLarge)
	_, err = w.Write(0, string(big[:types.MaxKeySize+1]), "v")
	assert.ErrorIs(t, err, types.ErrRecordTooLarge)

	// rejected records do not consume offsets
	pw := write(t, w, 0, "k", "v")
	assert.Equal(t, uint64(1), pw.Offset())
	assert.Equal(t, 1, w.Pending())
}

func TestConcurrentWritesGetDistinctOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")
	w, err := disk.NewLogWriter(disk.WriterConfig{
		Path:          path,
		Offsets:       map[uint32]uint64{0: 1},
		FlushInterval: 5 * time.Millisecond,
	}, &recordingCommitter{})
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	const producers, perProducer = 8, 50
	offsets := make(chan uint64, producers*perProducer)
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for j := 0; j < perProducer; j++ {
				offset, err := w.WriteSync(ctx, 0, "key", "value")
				if err != nil {
					t.Errorf("WriteSync failed: %v", err)
					return
				}
				offsets <- offset
			}
		}()
	}
	wg.Wait()
	close(offsets)

	seen := make(map[uint64]bool)
	for o := range offsets {
		assert.False(t, seen[o], "offset %d assigned twice", o)
		seen[o] = true
	}
	require.Len(t, seen, producers*perProducer)
	for o := uint64(1); o <= producers*perProducer; o++ {
		assert.True(t, seen[o], "offset %d missing", o)
	}

	records, err := disk.NewLogReader(path).Query(0, 0)
	require.NoError(t, err)
	require.Len(t, records, producers*perProducer)
	for i, r := range records {
		assert.Equal(t, uint64(i+1), r.Offset)
	}
}

func TestFlushFailureRejectsWholeBatch(t *testing.T) {
	w, committer, path := newManualWriter(t, map[uint32]uint64{0: 1, 1: 1})
	injected := errors.New("index unavailable")
	committer.SetErr(injected)

	a := write(t, w, 0, "a", "1")
	b := write(t, w, 1, "b", "2")

	err := w.Flush()
	assert.ErrorIs(t, err, types.ErrDurability)
	assert.ErrorIs(t, err, injected)

	for _, pw := range []*disk.PendingWrite{a, b} {
		<-pw.Done()
		_, err := pw.Wait(context.Background())
		assert.ErrorIs(t, err, types.ErrDurability)
	}

	// the failed append is cut off the log, its offsets stay burned
	assert.Equal(t, uint64(0), w.Position())
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())

	committer.SetErr(nil)
	c := write(t, w, 0, "c", "3")
	require.NoError(t, w.Flush())
	assert.Equal(t, uint64(2), wait(t, c))

	batches := committer.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, types.PartitionCommit{PartitionID: 0, Offset: 2, Position: 0}, batches[0][0])

	records, err := disk.NewLogReader(path).Query(0, 0)
	require.NoError(t, err)
	assert.Equal(t, []types.Record{{Offset: 2, Key: "c", Value: "3"}}, records)
}

func TestWaitHonoursContext(t *testing.T) {
	w, _, _ := newManualWriter(t, map[uint32]uint64{0: 1})
	pw := write(t, w, 0, "k", "v")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pw.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// the write itself still completes
	require.NoError(t, w.Flush())
	assert.Equal(t, uint64(1), wait(t, pw))
}

func TestCloseDrainsQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")
	committer := &recordingCommitter{}
	w, err := disk.NewLogWriter(disk.WriterConfig{
		Path:          path,
		Offsets:       map[uint32]uint64{2: 10},
		FlushInterval: time.Hour,
	}, committer)
	require.NoError(t, err)

	pending := []*disk.PendingWrite{
		write(t, w, 2, "a", "1"),
		write(t, w, 2, "b", "2"),
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.Equal(t, uint64(10), wait(t, pending[0]))
	assert.Equal(t, uint64(11), wait(t, pending[1]))
	require.Len(t, committer.Batches(), 1)

	_, err = w.Write(2, "c", "3")
	assert.ErrorIs(t, err, types.ErrWriterClosed)

	records, err := disk.NewLogReader(path).Query(2, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestWriterAppendsAfterExistingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")
	existing, err := segment.Encode(0, 1, []types.Record{{Offset: 1, Key: "old", Value: "record"}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, existing, 0o644))

	committer := &recordingCommitter{}
	w, err := disk.NewLogWriter(disk.WriterConfig{
		Path:          path,
		Offsets:       map[uint32]uint64{0: 2},
		FlushInterval: time.Hour,
	}, committer)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	assert.Equal(t, uint64(len(existing)), w.Position())

	pw := write(t, w, 0, "new", "record")
	require.NoError(t, w.Flush())
	assert.Equal(t, uint64(2), wait(t, pw))
	assert.Equal(t, uint64(len(existing)), committer.Batches()[0][0].Position)

	records, err := disk.NewLogReader(path).Query(0, 0)
	require.NoError(t, err)
	assert.Equal(t, []types.Record{
		{Offset: 1, Key: "old", Value: "record"},
		{Offset: 2, Key: "new", Value: "record"},
	}, records)
}

func TestNewLogWriterRequiresCommitter(t *testing.T) {
	_, err := disk.NewLogWriter(disk.WriterConfig{Path: filepath.Join(t.TempDir(), "0.log")}, nil)
	assert.Error(t, err)
}

func TestNewLogWriterTruncatesTornTail(t *testing.T) {
	complete, err := segment.Encode(0, 1, []types.Record{{Offset: 1, Key: "kept", Value: "record"}})
	require.NoError(t, err)
	torn, err := segment.Encode(0, 2, []types.Record{{Offset: 2, Key: "torn", Value: "record"}})
	require.NoError(t, err)

	tests := []struct {
		name string
		tail []byte
	}{
		{"partial header", torn[:segment.HeaderSize-3]},
		{"partial payload", torn[:segment.HeaderSize+6]},
		{"garbage", []byte("not a segment header at all")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "0.log")
			require.NoError(t, os.WriteFile(path, append(append([]byte{}, complete...), tt.tail...), 0o644))

			committer := &recordingCommitter{}
			w, err := disk.NewLogWriter(disk.WriterConfig{
				Path:          path,
				Offsets:       map[uint32]uint64{0: 2},
				FlushInterval: time.Hour,
			}, committer)
			require.NoError(t, err)
			defer func() { _ = w.Close() }()

			assert.Equal(t, uint64(len(complete)), w.Position())
			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, int64(len(complete)), info.Size())

			pw := write(t, w, 0, "after", "restart")
			require.NoError(t, w.Flush())
			assert.Equal(t, uint64(2), wait(t, pw))
			assert.Equal(t, uint64(len(complete)), committer.Batches()[0][0].Position)

			records, err := disk.NewLogReader(path).Query(0, 0)
			require.NoError(t, err)
			assert.Equal(t, []types.Record{
				{Offset: 1, Key: "kept", Value: "record"},
				{Offset: 2, Key: "after", Value: "restart"},
			}, records)
		})
	}
}
