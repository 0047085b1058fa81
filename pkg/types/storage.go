package types

// Committer persists the commits produced by a flush.
type Committer interface {
	SaveCommits(commits []PartitionCommit) error
}

// PositionFinder maps a partition offset to a log file position.
type PositionFinder interface {
	FindPosition(partitionID uint32, offset uint64) uint64
	LatestCommit(partitionID uint32) PartitionCommit
}

type RecordQuerier interface {
	Query(partitionID uint32, position uint64) ([]Record, error)
}
