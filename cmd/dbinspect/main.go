// Command dbinspect prints the schema version, seed state and record counts of a library store.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/listenupapp/bookshelf/internal/config"
	"github.com/listenupapp/bookshelf/internal/schema"
	"github.com/listenupapp/bookshelf/internal/store"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Store.InMemory {
		log.Fatal("Nothing to inspect: store is configured in memory")
	}

	db, err := store.Open(store.Options{Path: cfg.Store.DBPath()})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	fmt.Println("=== Database Inspection ===")
	fmt.Println()

	version, err := db.Version(ctx)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("Path:           %s\n", cfg.Store.DBPath())
	fmt.Printf("Schema version: %d (current %d)\n", version, schema.Version)

	if version == 0 {
		fmt.Println("Store has never been initialized.")
		return
	}

	seeded, err := schema.Seeded(ctx, db)
	if err != nil {
		log.Fatalf("Failed to read seed state: %v", err)
	}
	fmt.Printf("Seeded:         %v\n", seeded)
	fmt.Println()

	collections := db.Collections()
	names := make([]string, len(collections))
	for i, c := range collections {
		names[i] = c.Name
	}

	counts := make(map[string]int, len(collections))
	err = db.View(ctx, names, func(tx *store.Txn) error {
		for _, name := range names {
			c, err := tx.Collection(name)
			if err != nil {
				return err
			}
			n, err := c.Count()
			if err != nil {
				return err
			}
			counts[name] = n
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to count records: %v", err)
	}

	fmt.Printf("%-14s %8s  %s\n", "COLLECTION", "RECORDS", "INDEXES")
	for _, c := range collections {
		indexes := make([]string, len(c.Indexes))
		for i, idx := range c.Indexes {
			indexes[i] = idx.Name
			if idx.Unique {
				indexes[i] += " (unique)"
			}
		}
		fmt.Printf("%-14s %8d  %s\n", c.Name, counts[c.Name], strings.Join(indexes, ", "))
	}
}
