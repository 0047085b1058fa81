package disk

import (
	"errors"
	"fmt"
	"os"

	"github.com/downfa11-org/go-recordlog/pkg/metrics"
	"github.com/downfa11-org/go-recordlog/pkg/segment"
	"github.com/downfa11-org/go-recordlog/pkg/types"
	"github.com/downfa11-org/go-recordlog/util"
	"golang.org/x/exp/mmap"
)

// LogReader reads segments back from a log file. It keeps no state between
// calls, so it is safe for concurrent use alongside the writer.
type LogReader struct {
	path string
}

func NewLogReader(path string) *LogReader {
	return &LogReader{path: path}
}

func (r *LogReader) Path() string {
	return r.path
}

// Query returns the records of partitionID stored from position onwards, in
// ascending offset order. position does not need to point at a segment
// boundary; reading starts at the first segment header found at or after it.
func (r *LogReader) Query(partitionID uint32, position uint64) ([]types.Record, error) {
	records := []types.Record{}
	err := r.walk(position, func(_ uint64, h segment.Header) bool {
		return h.PartitionID == partitionID
	}, func(_ uint64, seg segment.Segment) error {
		records = append(records, seg.Records...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Scan hands every complete segment of the file to fn together with its
// position. A non-nil error from fn stops the scan and is returned.
func (r *LogReader) Scan(fn func(position uint64, seg segment.Segment) error) error {
	return r.walk(0, nil, fn)
}

// walk decodes the segments accepted by want, starting at the first magic at
// or after position. It stops at a bad magic or at a segment that extends past
// the end of the file.
func (r *LogReader) walk(position uint64, want func(uint64, segment.Header) bool, fn func(uint64, segment.Segment) error) error {
	reader, err := mmap.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("mmap open failed: %w", err)
	}
	defer reader.Close()

	size := uint64(reader.Len())
	if size == 0 || position+segment.HeaderSize > size {
		return nil
	}

	cursor, ok := findMagic(reader, position, size)
	if !ok {
		return nil
	}

	headerBuf := make([]byte, segment.HeaderSize)
	for cursor+segment.HeaderSize <= size {
		if _, err := reader.ReadAt(headerBuf, int64(cursor)); err != nil {
			return fmt.Errorf("read header at %d: %w", cursor, err)
		}
		h, err := segment.DecodeHeader(headerBuf)
		if err != nil {
			util.Warn("log %s: corrupt segment header at position %d, stopping read", r.path, cursor)
			metrics.CorruptSegments.Inc()
			break
		}

		end := cursor + segment.HeaderSize + uint64(h.PayloadSize)
		if end > size {
			util.Debug("log %s: partial segment at position %d (%d of %d bytes)", r.path, cursor, size-cursor, end-cursor)
			break
		}

		if want == nil || want(cursor, h) {
			payload := make([]byte, h.PayloadSize)
			if _, err := reader.ReadAt(payload, int64(cursor+segment.HeaderSize)); err != nil {
				return fmt.Errorf("read payload at %d: %w", cursor, err)
			}
			records, err := segment.DecodePayload(h, payload)
			if err != nil {
				util.Warn("log %s: corrupt segment payload at position %d, stopping read: %v", r.path, cursor, err)
				metrics.CorruptSegments.Inc()
				break
			}
			seg := segment.Segment{PartitionID: h.PartitionID, StartOffset: h.StartOffset, Records: records}
			if err := fn(cursor, seg); err != nil {
				return err
			}
		}
		cursor = end
	}
	return nil
}

// completeEnd returns the position right after the last complete segment of
// the file, or 0 when the file is missing or holds none.
func (r *LogReader) completeEnd() (uint64, error) {
	var end uint64
	err := r.walk(0, func(position uint64, h segment.Header) bool {
		end = position + segment.HeaderSize + uint64(h.PayloadSize)
		return false
	}, nil)
	return end, err
}

// findMagic slides a 4-byte window forward one byte at a time from position
// until it matches the segment magic with room for a full header behind it.
func findMagic(reader *mmap.ReaderAt, position, size uint64) (uint64, bool) {
	window := make([]byte, 4)
	for pos := position; pos+segment.HeaderSize <= size; pos++ {
		if _, err := reader.ReadAt(window, int64(pos)); err != nil {
			return 0, false
		}
		if segment.HasMagic(window) {
			return pos, true
		}
	}
	return 0, false
}
