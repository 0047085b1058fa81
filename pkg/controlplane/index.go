package controlplane

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/downfa11-org/go-recordlog/pkg/metrics"
	"github.com/downfa11-org/go-recordlog/pkg/types"
	"github.com/downfa11-org/go-recordlog/util"
)

const IndexFileName = "metadata.ndjson"

// indexLine is the on-disk form of a commit. Offsets are strings so 64-bit
// values survive JSON consumers that only have float64 numbers.
type indexLine struct {
	PartitionID uint32 `json:"partitionId"`
	Offset      uint64 `json:"offset,string"`
	Position    uint64 `json:"position"`
}

// CommitIndex maps partition offsets to log file positions and persists every
// commit to an append-only NDJSON file.
type CommitIndex struct {
	mu             sync.RWMutex
	commits        map[uint32][]types.PartitionCommit
	partitionCount int

	path string
	file *os.File
	size int64
}

// OpenCommitIndex opens (or creates) the index file at path and replays it.
func OpenCommitIndex(path string, partitionCount int) (*CommitIndex, error) {
	if partitionCount <= 0 {
		return nil, fmt.Errorf("partition count must be positive, got %d", partitionCount)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}

	ci := &CommitIndex{
		commits:        make(map[uint32][]types.PartitionCommit, partitionCount),
		partitionCount: partitionCount,
		path:           path,
		file:           f,
	}
	for p := 0; p < partitionCount; p++ {
		ci.commits[uint32(p)] = nil
	}

	if err := ci.load(); err != nil {
		if cerr := f.Close(); cerr != nil {
			util.Error("failed to close index file: %v", cerr)
		}
		return nil, err
	}
	return ci, nil
}

func (ci *CommitIndex) load() error {
	if _, err := ci.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek index file: %w", err)
	}

	reader := bufio.NewReader(ci.file)
	var validEnd int64
	lineNo := 0
	loaded, skipped := 0, 0

	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			if len(line) > 0 {
				util.Warn("index %s: dropping unterminated trailing line (%d bytes)", ci.path, len(line))
			}
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read index file: %w", err)
		}
		validEnd += int64(len(line))
		lineNo++

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		commit, err := ci.parseLine(trimmed)
		if err != nil {
			util.Warn("index %s line %d skipped: %v", ci.path, lineNo, err)
			skipped++
			metrics.IndexLinesSkipped.Inc()
			continue
		}
		ci.commits[commit.PartitionID] = append(ci.commits[commit.PartitionID], commit)
		loaded++
	}

	// A crash mid-append leaves a partial last line; cut it so the next
	// append starts on a fresh line.
	if err := ci.file.Truncate(validEnd); err != nil {
		return fmt.Errorf("failed to truncate index file: %w", err)
	}
	if _, err := ci.file.Seek(validEnd, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek index file: %w", err)
	}
	ci.size = validEnd

	util.Info("index %s loaded: %d commits, %d lines skipped", ci.path, loaded, skipped)
	return nil
}

func (ci *CommitIndex) parseLine(line []byte) (types.PartitionCommit, error) {
	var l indexLine
	if err := json.Unmarshal(line, &l); err != nil {
		return types.PartitionCommit{}, fmt.Errorf("%w: %v", types.ErrCorruptIndexLine, err)
	}
	existing, ok := ci.commits[l.PartitionID]
	if !ok {
		return types.PartitionCommit{}, fmt.Errorf("%w: partition %d out of range", types.ErrCorruptIndexLine, l.PartitionID)
	}
	if n := len(existing); n > 0 && l.Offset <= existing[n-1].Offset {
		return types.PartitionCommit{}, fmt.Errorf("%w: offset %d not above %d", types.ErrCorruptIndexLine, l.Offset, existing[n-1].Offset)
	}
	return types.PartitionCommit{PartitionID: l.PartitionID, Offset: l.Offset, Position: l.Position}, nil
}

// LatestCommit returns the last commit of a partition, or the default commit
// when the partition has none.
func (ci *CommitIndex) LatestCommit(partitionID uint32) types.PartitionCommit {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	commits := ci.commits[partitionID]
	if len(commits) == 0 {
		return types.DefaultCommit(partitionID)
	}
	return commits[len(commits)-1]
}

// HasCommits reports whether the partition has at least one persisted commit.
func (ci *CommitIndex) HasCommits(partitionID uint32) bool {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	return len(ci.commits[partitionID]) > 0
}

// SaveCommits validates the whole batch, persists it with one write and one
// fsync, then applies it in memory. Nothing is applied if any step fails.
func (ci *CommitIndex) SaveCommits(commits []types.PartitionCommit) error {
	if len(commits) == 0 {
		return nil
	}

	ci.mu.Lock()
	defer ci.mu.Unlock()

	if ci.file == nil {
		return fmt.Errorf("%w: commit index closed", types.ErrDurability)
	}

	last := make(map[uint32]types.PartitionCommit, len(commits))
	for _, c := range commits {
		prev, seen := last[c.PartitionID]
		if !seen {
			existing, ok := ci.commits[c.PartitionID]
			if !ok {
				return fmt.Errorf("%w: invalid partition id %d", types.ErrCommitRejected, c.PartitionID)
			}
			if n := len(existing); n > 0 {
				prev, seen = existing[n-1], true
			}
		}
		if seen {
			if c.Offset <= prev.Offset {
				return fmt.Errorf("%w: partition %d offset %d must be greater than latest offset %d",
					types.ErrCommitRejected, c.PartitionID, c.Offset, prev.Offset)
			}
			if c.Position < prev.Position {
				return fmt.Errorf("%w: partition %d position %d behind latest position %d",
					types.ErrCommitRejected, c.PartitionID, c.Position, prev.Position)
			}
		}
		last[c.PartitionID] = c
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, c := range commits {
		if err := enc.Encode(indexLine{PartitionID: c.PartitionID, Offset: c.Offset, Position: c.Position}); err != nil {
			return fmt.Errorf("%w: encode commit: %v", types.ErrDurability, err)
		}
	}

	if err := ci.persist(buf.Bytes()); err != nil {
		return err
	}

	for _, c := range commits {
		ci.commits[c.PartitionID] = append(ci.commits[c.PartitionID], c)
	}
	return nil
}

func (ci *CommitIndex) persist(data []byte) error {
	if _, err := ci.file.Write(data); err != nil {
		ci.rollback()
		return fmt.Errorf("%w: append index: %v", types.ErrDurability, err)
	}
	if err := ci.file.Sync(); err != nil {
		ci.rollback()
		return fmt.Errorf("%w: sync index: %v", types.ErrDurability, err)
	}
	ci.size += int64(len(data))
	return nil
}

// rollback cuts a partially written batch so the file keeps whole lines only.
func (ci *CommitIndex) rollback() {
	if err := ci.file.Truncate(ci.size); err != nil {
		util.Error("index %s: failed to truncate after write failure: %v", ci.path, err)
		return
	}
	if _, err := ci.file.Seek(ci.size, io.SeekStart); err != nil {
		util.Error("index %s: failed to seek after write failure: %v", ci.path, err)
	}
}

// FindPosition returns the position of the commit with the highest offset not
// above offset. It returns 0 when no such commit exists.
func (ci *CommitIndex) FindPosition(partitionID uint32, offset uint64) uint64 {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	commits := ci.commits[partitionID]
	if len(commits) == 0 || offset < commits[0].Offset {
		return 0
	}

	// first commit with Offset > offset
	idx := sort.Search(len(commits), func(i int) bool {
		return commits[i].Offset > offset
	})
	return commits[idx-1].Position
}

// Commits returns a copy of the commits of a partition.
func (ci *CommitIndex) Commits(partitionID uint32) []types.PartitionCommit {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	out := make([]types.PartitionCommit, len(ci.commits[partitionID]))
	copy(out, ci.commits[partitionID])
	return out
}

func (ci *CommitIndex) PartitionCount() int {
	return ci.partitionCount
}

func (ci *CommitIndex) Path() string {
	return ci.path
}

// Close releases the index file. Later SaveCommits calls fail.
func (ci *CommitIndex) Close() error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if ci.file == nil {
		return nil
	}
	err := ci.file.Close()
	ci.file = nil
	return err
}
