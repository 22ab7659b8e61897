package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	bplus "PagedKV/bplustree"
	"PagedKV/config"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const help = `commands:
  insert <key> <value>   add a record (duplicates are kept)
  get <key>              print the first value stored under key
  scan [from]            print records in key order
  stats                  tree and cache counters
  check                  verify the tree structure
  exit`

func main() {
	configPath := flag.String("config", "", "YAML config file")
	path := flag.String("path", "", "store file (overrides config)")
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

	fmt.Printf("store %s (%s)\n", cfg.Path, tree.Layout())
	scanner := bufio.NewScanner(os.Stdin)
	// REPL
	for {
		fmt.Print("kv> ")

		if !scanner.Scan() { // Ctrl+D pressed
			break
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if strings.EqualFold(fields[0], "exit") {
			break
		}
		if err := run(tree, fields); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func run(tree *bplus.BPlusTree, fields []string) error {
	switch strings.ToLower(fields[0]) {
	case "insert":
		if len(fields) < 3 {
			return fmt.Errorf("usage: insert <key> <value>")
		}
		return tree.Insert([]byte(fields[1]), []byte(strings.Join(fields[2:], " ")))

	case "get":
		if len(fields) != 2 {
			return fmt.Errorf("usage: get <key>")
		}
		value, found, err := tree.Search([]byte(fields[1]))
		if err != nil {
			return err
		}
		if !found {
			fmt.Printf("%s not found\n", fields[1])
			return nil
		}
		fmt.Printf("%s --> %s\n", fields[1], value)
		return nil

	case "scan":
		var it *bplus.Iterator
		var err error
		if len(fields) > 1 {
			it, err = tree.SeekGE([]byte(fields[1]))
		} else {
			it, err = tree.First()
		}
		if err != nil {
			return err
		}
		defer it.Close()
		for ok := it.Valid(); ok; ok = it.Next() {
			fmt.Printf("%s --> %s\n", it.Key(), it.Value())
		}
		return it.Err()

	case "stats":
		s, err := tree.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("records=%s height=%d pages=%s size=%s\n",
			humanize.Comma(int64(s.Count)), s.Height, humanize.Comma(int64(s.Pages)), humanize.Bytes(uint64(s.Bytes)))
		fmt.Printf("splits leaf=%d branch=%d root=%d descents left=%d right=%d\n",
			s.LeafSplits, s.BranchSplits, s.RootGrowths, s.LeftDescents, s.RightDescents)
		fmt.Printf("cache %d/%d pages, hit rate %.1f%%, evictions=%d; lookup hits=%d misses=%d\n",
			s.Cache.Resident, s.Cache.Capacity, s.Cache.HitRate()*100, s.Cache.Evictions, s.LookupHits, s.LookupMisses)
		return nil

	case "check":
		if err := tree.Check(); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil

	case "help":
		fmt.Println(help)
		return nil
	}
	return fmt.Errorf("unknown command %q (try help)", fields[0])
}
