// Inspect a store file.
// Usage: go run ./cmd/inspect_store <path-to-store>
package main

import (
	"fmt"
	"os"

	bplus "PagedKV/bplustree"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <store.dat>\n", os.Args[0])
		os.Exit(1)
	}
	path := os.Args[1]
	if err := bplus.InspectFile(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
