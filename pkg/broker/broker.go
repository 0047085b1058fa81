package broker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/downfa11-org/go-recordlog/pkg/cache"
	"github.com/downfa11-org/go-recordlog/pkg/config"
	"github.com/downfa11-org/go-recordlog/pkg/controlplane"
	"github.com/downfa11-org/go-recordlog/pkg/disk"
	"github.com/downfa11-org/go-recordlog/pkg/metrics"
	"github.com/downfa11-org/go-recordlog/pkg/types"
	"github.com/downfa11-org/go-recordlog/util"
)

// Broker ties the commit index, the log files and the tail cache together
// behind produce and fetch.
type Broker struct {
	index *controlplane.CommitIndex
	logs  *disk.LogManager
	cache *cache.TailCache

	closeOnce sync.Once
	closeErr  error
}

func New(cfg *config.Config) (*Broker, error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", cfg.LogDir, err)
	}

	index, err := controlplane.OpenCommitIndex(filepath.Join(cfg.LogDir, controlplane.IndexFileName), cfg.PartitionCount)
	if err != nil {
		return nil, err
	}

	logs, err := disk.NewLogManager(disk.ManagerConfig{
		Dir:            cfg.LogDir,
		LogCount:       cfg.LogCount,
		PartitionCount: cfg.PartitionCount,
		FlushInterval:  cfg.FlushInterval(),
	}, index)
	if err != nil {
		if cerr := index.Close(); cerr != nil {
			util.Error("failed to close commit index: %v", cerr)
		}
		return nil, err
	}

	util.Info("broker ready: %d partitions over %d logs in %s", cfg.PartitionCount, cfg.LogCount, cfg.LogDir)
	return &Broker{
		index: index,
		logs:  logs,
		cache: cache.NewTailCache(),
	}, nil
}

// Produce appends a record and returns its offset once it is durable.
func (b *Broker) Produce(ctx context.Context, partitionID uint32, key, value string) (uint64, error) {
	start := time.Now()

	writer, err := b.logs.Writer(partitionID)
	if err != nil {
		return 0, err
	}
	offset, err := writer.WriteSync(ctx, partitionID, key, value)
	if err != nil {
		return 0, err
	}

	metrics.ObserveProduce(time.Since(start))
	return offset, nil
}

// Fetch reads the records written since the last fetch into the tail cache
// and returns every cached record of the partition.
func (b *Broker) Fetch(partitionID uint32) ([]types.Record, error) {
	start := time.Now()

	reader, err := b.logs.Reader(partitionID)
	if err != nil {
		return nil, err
	}

	latest := b.cache.LatestOffset(partitionID)
	position := b.index.FindPosition(partitionID, latest)
	tail, err := reader.Query(partitionID, position)
	if err != nil {
		return nil, fmt.Errorf("query partition %d at %d: %w", partitionID, position, err)
	}
	util.Debug("[%d]: last cached offset %d, read %d records from position %d", partitionID, latest, len(tail), position)

	b.cache.Insert(partitionID, tail)
	records := b.cache.Get(partitionID)

	metrics.ObserveFetch(time.Since(start), len(records))
	return records, nil
}

func (b *Broker) PartitionCount() int {
	return b.logs.PartitionCount()
}

// Close drains every writer and then closes the commit index.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		logErr := b.logs.CloseAll()
		indexErr := b.index.Close()
		b.closeErr = errors.Join(logErr, indexErr)
		util.Info("broker closed")
	})
	return b.closeErr
}
