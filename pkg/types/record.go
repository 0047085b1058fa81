package types

import "fmt"

const (
	MaxKeySize   = 1024
	MaxValueSize = 1024
)

// Record represents a single key/value entry of a partition.
type Record struct {
	Offset uint64
	Key    string
	Value  string
}

func NewRecord(offset uint64, key, value string) Record {
	return Record{Offset: offset, Key: key, Value: value}
}

func (r Record) String() string {
	return fmt.Sprintf("%d | %s | %s", r.Offset, r.Key, r.Value)
}

// ValidateRecord checks the key and value size limits of a record.
func ValidateRecord(key, value string) error {
	if len(key) > MaxKeySize {
		return fmt.Errorf("%w: key is %d bytes, limit %d", ErrRecordTooLarge, len(key), MaxKeySize)
	}
	if len(value) > MaxValueSize {
		return fmt.Errorf("%w: value is %d bytes, limit %d", ErrRecordTooLarge, len(value), MaxValueSize)
	}
	return nil
}
