// Command idxtree-perf drives concurrent writers and readers against one
// in-process index and reports throughput.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sushant-115/idxtree/core/indexing/idxtree"
	"github.com/sushant-115/idxtree/core/indexmanager"
	"github.com/sushant-115/idxtree/pkg/logger"
	"github.com/sushant-115/idxtree/pkg/telemetry"
	"go.uber.org/zap"
)

var (
	records    = flag.Int("records", 200000, "Number of records to insert")
	writers    = flag.Int("writers", 20, "Concurrent writers")
	readers    = flag.Int("readers", 10, "Concurrent readers")
	pageSize   = flag.Uint("page_size", idxtree.DefaultPageSize, "Page size in bytes")
	maxEntries = flag.Int("max_entries", 0, "Entries per page; 0 derives it from the page size")
)

const indexName = "perf"

func main() {
	flag.Parse()
	zlogger, err := logger.New(logger.Config{Level: "info", Format: "console", Service: "idxtree-perf"})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	manager, err := indexmanager.NewTreeIndexManager(zlogger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)), telemetry.Noop())
	if err != nil {
		zlogger.Fatal("failed to create index manager", zap.Error(err))
	}
	ctx := context.Background()
	if _, err := manager.CreateIndex(ctx, indexName, indexmanager.IndexConfig{
		PageSize:   uint32(*pageSize),
		KeySize:    8,
		MaxEntries: *maxEntries,
	}); err != nil {
		zlogger.Fatal("failed to create index", zap.Error(err))
	}

	report(zlogger, "write", *records, write(ctx, zlogger, manager))
	report(zlogger, "read", *records, read(ctx, zlogger, manager))

	if err := manager.CheckIndex(ctx, indexName); err != nil {
		zlogger.Fatal("index failed its consistency check", zap.Error(err))
	}
	info, err := manager.IndexStats(ctx, indexName)
	if err != nil {
		zlogger.Fatal("failed to read stats", zap.Error(err))
	}
	zlogger.Info("final shape",
		zap.Int("height", info.Stats.Height),
		zap.Int("pages", info.Stats.Pages),
		zap.Uint64("splits", info.Stats.Splits),
	)
}

// permutedKey spreads sequential ids across the key space.
func permutedKey(i int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i)*0x9E3779B97F4A7C15)
	return b
}

func write(ctx context.Context, zlogger *zap.Logger, index indexmanager.RecordIndex) time.Duration {
	start := time.Now()
	var wg sync.WaitGroup
	sem := make(chan struct{}, *writers)
	for i := 0; i < *records; i++ {
		i := i
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			loc := idxtree.RecordLocator{PageNum: uint32(i / 64), SlotNum: uint32(i % 64)}
			if err := index.AddRecord(ctx, indexName, permutedKey(i), loc); err != nil {
				zlogger.Error("write failed", zap.Int("record", i), zap.Error(err))
			}
		}()
	}
	wg.Wait()
	return time.Since(start)
}

func read(ctx context.Context, zlogger *zap.Logger, index indexmanager.RecordIndex) time.Duration {
	start := time.Now()
	var wg sync.WaitGroup
	var misses atomic.Int64
	sem := make(chan struct{}, *readers)
	for i := 0; i < *records; i++ {
		i := i
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			loc, found, err := index.FindRecord(ctx, indexName, permutedKey(i))
			switch {
			case err != nil:
				zlogger.Error("read failed", zap.Int("record", i), zap.Error(err))
			case !found:
				misses.Add(1)
			case loc.PageNum != uint32(i/64) || loc.SlotNum != uint32(i%64):
				zlogger.Error("locator mismatch", zap.Int("record", i))
			}
		}()
	}
	wg.Wait()
	if n := misses.Load(); n > 0 {
		zlogger.Error("records not found", zap.Int64("misses", n))
	}
	return time.Since(start)
}

func report(zlogger *zap.Logger, phase string, n int, elapsed time.Duration) {
	zlogger.Info("phase complete",
		zap.String("phase", phase),
		zap.Int("records", n),
		zap.Duration("elapsed", elapsed),
		zap.Float64("ops_per_sec", float64(n)/elapsed.Seconds()),
	)
}
