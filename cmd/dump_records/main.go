// dump_records prints every record of a store in key order, then checks the
// tree structure. Usage: go run ./cmd/dump_records [-from key] <path-to-store>
package main

import (
	"flag"
	"fmt"
	"os"
	"unicode/utf8"

	bplus "PagedKV/bplustree"

	"github.com/dustin/go-humanize"
)

func main() {
	from := flag.String("from", "", "start at the first key >= this one")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-from key] <store.dat>\n", os.Args[0])
		os.Exit(1)
	}
	path := flag.Arg(0)
	if _, err := os.Stat(path); err != nil {
		fail(err)
	}

	tree, err := bplus.Open(path, bplus.Options{ReadOnly: true})
	if err != nil {
		fail(err)
	}
	defer tree.Close()

	var it *bplus.Iterator
	if *from != "" {
		it, err = tree.SeekGE([]byte(*from))
	} else {
		it, err = tree.First()
	}
	if err != nil {
		fail(err)
	}
	defer it.Close()

	n := 0
	for ok := it.Valid(); ok; ok = it.Next() {
		fmt.Printf("%s\t%s\n", show(it.Key()), show(it.Value()))
		n++
	}
	if err := it.Err(); err != nil {
		fail(err)
	}

	if err := tree.Check(); err != nil {
		fmt.Fprintf(os.Stderr, "check: %v\n", err)
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "%s records\n", humanize.Comma(int64(n)))
}

func show(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return fmt.Sprintf("%x", b)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
