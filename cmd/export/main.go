// Command export writes the library into a standalone SQLite file.
//
// Usage:
//
//	export -out library.sqlite [-overwrite] [-- server flags such as -data-path]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/listenupapp/bookshelf/internal/config"
	"github.com/listenupapp/bookshelf/internal/export"
	"github.com/listenupapp/bookshelf/internal/logger"
	"github.com/listenupapp/bookshelf/internal/schema"
	"github.com/listenupapp/bookshelf/internal/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("out", "bookshelf.sqlite", "Target SQLite file")
	overwrite := fs.Bool("overwrite", false, "Replace the target file if it exists")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(fs.Args())
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	})

	db, err := store.Open(store.Options{
		Path:     cfg.Store.DBPath(),
		InMemory: cfg.Store.InMemory,
		Logger:   log.Logger,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	// An unseeded store is exported as is; only the schema is brought up to date.
	if err := schema.Initialize(ctx, db, schema.Options{SkipSeed: true, Logger: log.Logger}); err != nil {
		return err
	}

	stats, err := export.ToSQLite(ctx, db, *out, export.Options{
		Overwrite: *overwrite,
		Logger:    log.Logger,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Exported %d books, %d authors, %d tags to %s\n", stats.Books, stats.Authors, stats.Tags, *out)
	if stats.Skipped > 0 {
		fmt.Printf("Skipped %d links to missing records\n", stats.Skipped)
	}
	return nil
}
