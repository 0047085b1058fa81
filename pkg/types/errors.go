package types

import "errors"

var (
	// ErrRecordTooLarge is returned when a key or value exceeds its size limit.
	ErrRecordTooLarge = errors.New("record exceeds size limit")
	// ErrCommitRejected is returned when a commit batch fails validation.
	ErrCommitRejected = errors.New("commit rejected")
	// ErrInvariantViolation signals an upstream bug such as non-contiguous offsets.
	ErrInvariantViolation = errors.New("invariant violation")
	ErrUnknownPartition   = errors.New("unknown partition")
	// ErrDurability is returned when appended bytes or commits could not be persisted.
	ErrDurability       = errors.New("durability failure")
	ErrCorruptIndexLine = errors.New("corrupt index line")
	ErrWriterClosed     = errors.New("writer closed")
)
