// Seed program: fills a store with integer keys 0..n-1.
// Run: go run ./cmd/seed -n 10000 -records 5
// Then inspect: go run ./cmd/inspect_store <path>
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"time"

	bplus "PagedKV/bplustree"
	"PagedKV/config"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	path := flag.String("path", "", "store file (overrides config)")
	n := flag.Int("n", 10000, "number of keys to insert")
	records := flag.Int("records", 0, "records per page (0 = computed)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	if *path != "" {
		cfg.Path = *path
	}
	if *records != 0 {
		cfg.RecordsPerPage = *records
	}

	logger, err := cfg.Logger()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	tree, err := bplus.Open(cfg.Path, cfg.TreeOptions(logger))
	if err != nil {
		logger.Fatal("open store", zap.String("path", cfg.Path), zap.Error(err))
	}
	defer tree.Close()

	start := time.Now()
	key := make([]byte, 8)
	for i := 0; i < *n; i++ {
		binary.BigEndian.PutUint64(key, uint64(i))
		if err := tree.Insert(key, []byte(fmt.Sprintf("value-%d", i))); err != nil {
			logger.Fatal("insert", zap.Int("key", i), zap.Error(err))
		}
	}
	if err := tree.Sync(); err != nil {
		logger.Fatal("sync", zap.Error(err))
	}
	elapsed := time.Since(start)

	stats, err := tree.Stats()
	if err != nil {
		logger.Fatal("stats", zap.Error(err))
	}
	fmt.Printf("Inserted %s keys into %s in %s\n", humanize.Comma(int64(*n)), cfg.Path, elapsed.Round(time.Millisecond))
	fmt.Printf("  records=%s height=%d pages=%s size=%s\n",
		humanize.Comma(int64(stats.Count)), stats.Height, humanize.Comma(int64(stats.Pages)), humanize.Bytes(uint64(stats.Bytes)))
	fmt.Printf("  leaf splits=%d branch splits=%d root growths=%d\n", stats.LeafSplits, stats.BranchSplits, stats.RootGrowths)
	fmt.Printf("  cache hits=%d misses=%d evictions=%d\n", stats.Cache.Hits, stats.Cache.Misses, stats.Cache.Evictions)
}
