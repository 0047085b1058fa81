package segment

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/downfa11-org/go-recordlog/pkg/types"
)

// Segment is one partition's contiguous run of records for a single flush.
type Segment struct {
	PartitionID uint32
	StartOffset uint64
	Records     []types.Record
}

// ItemSize returns the encoded size of one payload item.
func ItemSize(key, value string) int {
	return 2*lengthSize + len(key) + len(value)
}

// PayloadSize returns the encoded payload size of records, without the header.
func PayloadSize(records []types.Record) int {
	size := 0
	for _, r := range records {
		size += ItemSize(r.Key, r.Value)
	}
	return size
}

// Encode serializes records into a header followed by one payload item per record.
func Encode(partitionID uint32, startOffset uint64, records []types.Record) ([]byte, error) {
	return AppendEncode(nil, partitionID, startOffset, records)
}

// AppendEncode is like Encode but appends the segment to dst. On error dst is
// returned unchanged.
func AppendEncode(dst []byte, partitionID uint32, startOffset uint64, records []types.Record) ([]byte, error) {
	for i, r := range records {
		if r.Offset != startOffset+uint64(i) {
			return dst, fmt.Errorf("%w: record %d has offset %d, expected %d",
				types.ErrInvariantViolation, i, r.Offset, startOffset+uint64(i))
		}
		if err := types.ValidateRecord(r.Key, r.Value); err != nil {
			return dst, fmt.Errorf("record at offset %d: %w", r.Offset, err)
		}
	}

	payloadSize := PayloadSize(records)
	if uint64(payloadSize) > math.MaxUint32 {
		return dst, fmt.Errorf("%w: payload of %d bytes does not fit the header", types.ErrInvariantViolation, payloadSize)
	}

	start := len(dst)
	out := grow(dst, HeaderSize+payloadSize)
	buf := out[start:]

	Header{
		PartitionID: partitionID,
		StartOffset: startOffset,
		PayloadSize: uint32(payloadSize),
	}.put(buf)

	pos := HeaderSize
	for _, r := range records {
		binary.BigEndian.PutUint32(buf[pos:], uint32(len(r.Key)))
		pos += lengthSize
		pos += copy(buf[pos:], r.Key)

		binary.BigEndian.PutUint32(buf[pos:], uint32(len(r.Value)))
		pos += lengthSize
		pos += copy(buf[pos:], r.Value)
	}

	if pos != HeaderSize+payloadSize {
		return dst, fmt.Errorf("%w: wrote %d payload bytes, computed %d",
			types.ErrInvariantViolation, pos-HeaderSize, payloadSize)
	}
	return out, nil
}

func grow(b []byte, n int) []byte {
	if cap(b)-len(b) >= n {
		return b[:len(b)+n]
	}
	out := make([]byte, len(b)+n, 2*cap(b)+n)
	copy(out, b)
	return out
}

// Decode parses a full segment. Offsets are assigned from the header's start
// offset in payload order.
func Decode(data []byte) (Segment, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return Segment{}, err
	}
	end := HeaderSize + int(h.PayloadSize)
	if len(data) < end {
		return Segment{}, fmt.Errorf("%w: payload needs %d bytes, got %d", ErrShortBuffer, h.PayloadSize, len(data)-HeaderSize)
	}

	records, err := DecodePayload(h, data[HeaderSize:end])
	if err != nil {
		return Segment{}, err
	}
	return Segment{PartitionID: h.PartitionID, StartOffset: h.StartOffset, Records: records}, nil
}

// DecodePayload parses the payload items that follow header h.
func DecodePayload(h Header, payload []byte) ([]types.Record, error) {
	if len(payload) < int(h.PayloadSize) {
		return nil, fmt.Errorf("%w: payload needs %d bytes, got %d", ErrShortBuffer, h.PayloadSize, len(payload))
	}
	payload = payload[:h.PayloadSize]

	records := make([]types.Record, 0, 8)
	offset := h.StartOffset
	pos := 0
	for pos < len(payload) {
		key, n, err := readField(payload, pos)
		if err != nil {
			return nil, fmt.Errorf("key at offset %d: %w", offset, err)
		}
		pos = n

		value, n, err := readField(payload, pos)
		if err != nil {
			return nil, fmt.Errorf("value at offset %d: %w", offset, err)
		}
		pos = n

		records = append(records, types.NewRecord(offset, key, value))
		offset++
	}
	return records, nil
}

func readField(payload []byte, pos int) (string, int, error) {
	if pos+lengthSize > len(payload) {
		return "", 0, fmt.Errorf("%w: length prefix past payload end", ErrShortBuffer)
	}
	n := int(binary.BigEndian.Uint32(payload[pos:]))
	pos += lengthSize
	if n > len(payload)-pos {
		return "", 0, fmt.Errorf("%w: field of %d bytes past payload end", ErrShortBuffer, n)
	}
	return string(payload[pos : pos+n]), pos + n, nil
}
