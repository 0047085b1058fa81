package types

// PartitionCommit states that the segment of PartitionID starting at Offset
// begins at byte Position of its log file.
type PartitionCommit struct {
	PartitionID uint32
	Offset      uint64
	Position    uint64
}

// DefaultCommit seeds a partition that has never been committed.
func DefaultCommit(partitionID uint32) PartitionCommit {
	return PartitionCommit{PartitionID: partitionID, Offset: 1, Position: 0}
}
