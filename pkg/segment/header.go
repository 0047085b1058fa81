package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Magic      uint32 = 0xABCD1234
	HeaderSize        = 20 // magic(4) + partitionId(4) + startOffset(8) + payloadSize(4)
	lengthSize        = 4
)

var (
	ErrBadMagic    = errors.New("segment header magic mismatch")
	ErrShortBuffer = errors.New("segment buffer too short")
)

// Header precedes every segment in a log file.
type Header struct {
	PartitionID uint32
	StartOffset uint64
	PayloadSize uint32
}

// MarshalBinary encodes the header into its fixed 20-byte form.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	h.put(buf)
	return buf, nil
}

func (h Header) put(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint32(buf[4:8], h.PartitionID)
	binary.BigEndian.PutUint64(buf[8:16], h.StartOffset)
	binary.BigEndian.PutUint32(buf[16:20], h.PayloadSize)
}

// DecodeHeader reads a header from the first HeaderSize bytes of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrShortBuffer, HeaderSize, len(data))
	}
	if !HasMagic(data) {
		return Header{}, ErrBadMagic
	}
	return Header{
		PartitionID: binary.BigEndian.Uint32(data[4:8]),
		StartOffset: binary.BigEndian.Uint64(data[8:16]),
		PayloadSize: binary.BigEndian.Uint32(data[16:20]),
	}, nil
}

// HasMagic reports whether data starts with the segment magic.
func HasMagic(data []byte) bool {
	return len(data) >= lengthSize && binary.BigEndian.Uint32(data[:lengthSize]) == Magic
}
