// stratabench builds an entity graph in one or more units of work and
// flushes it to a database, then prints statement statistics.
//
//	go run ./cmd/stratabench -config stratabench.yaml
//
// A minimal configuration:
//
//	driver: sqlite
//	dsn: file:bench.db
//	create_schema: true
//	graph:
//	  scopes: 4
//	  authors: 100
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
)

func main() {
	path := flag.String("config", "stratabench.yaml", "path to the configuration file")
	flag.Parse()
	if err := run(context.Background(), *path, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "stratabench: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string, stdout, stderr io.Writer) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.Level(cfg.LogLevel)}))

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	defer db.Close()
	if cfg.CreateSchema {
		if err := createSchema(ctx, db, cfg.Dialect()); err != nil {
			return err
		}
	}
	stats := sql.NewStatsDriver(db,
		sql.WithSlowThreshold(cfg.SlowThreshold),
		sql.WithSlowQueryLog(logger),
	)
	var drv dialect.Driver = stats
	if slog.Level(cfg.LogLevel) <= slog.LevelDebug {
		drv = sql.NewDebugDriver(stats, logger)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := range cfg.Graph.Scopes {
		g.Go(func() error {
			return seed(gctx, drv, cfg, logger, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(sql.NewStatsCollector("stratabench", stats.QueryStats()))
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	fmt.Fprintf(stdout, "seeded %d scope(s) in %s\n", cfg.Graph.Scopes, time.Since(start).Round(time.Millisecond))
	fmt.Fprintln(stdout, stats.QueryStats().Stats())
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fmt.Fprintf(stdout, "%s %g\n", mf.GetName(), m.GetCounter().GetValue())
		}
	}
	return nil
}

// seed builds one scope's graph, flushes it, updates every book and
// flushes again, then reads the first author back in a fresh scope.
func seed(ctx context.Context, drv dialect.Driver, cfg *Config, logger *slog.Logger, scope int) error {
	em := strata.NewEntityManager(drv, registry, strata.WithLogger(logger))
	flush := em.Flush
	if cfg.Transactional {
		flush = em.FlushTx
	}

	tags := make([]*strata.Entity, cfg.Graph.Tags)
	for i := range tags {
		tag, err := em.Create(tagMeta, map[string]any{"name": fmt.Sprintf("tag-%d-%d", scope, i)})
		if err != nil {
			return err
		}
		tags[i] = tag
	}
	var (
		first *strata.Entity
		books []*strata.Entity
	)
	for i := range cfg.Graph.Authors {
		author, err := em.Create(authorMeta, map[string]any{"firstName": fmt.Sprintf("author-%d-%d", scope, i)})
		if err != nil {
			return err
		}
		if first == nil {
			first = author
		}
		for j := range cfg.Graph.BooksPerAuthor {
			book, err := em.Create(bookMeta, map[string]any{
				"title":  fmt.Sprintf("book-%d-%d-%d", scope, i, j),
				"pages":  100 + j,
				"author": author,
				"tags":   tags,
			})
			if err != nil {
				return err
			}
			books = append(books, book)
		}
	}
	if err := flush(ctx); err != nil {
		return fmt.Errorf("scope %d: %w", scope, err)
	}

	for _, book := range books {
		if err := book.Set("title", fmt.Sprintf("%s (2nd ed.)", book.Get("title"))); err != nil {
			return err
		}
	}
	if err := flush(ctx); err != nil {
		return fmt.Errorf("scope %d: %w", scope, err)
	}
	logger.InfoContext(ctx, "scope seeded", "scope", em.ID(), "entities", len(em.Entities()))

	if first == nil {
		return nil
	}
	return verify(ctx, drv, cfg, first.ID())
}

// verify reloads an author and its books in a fresh scope.
func verify(ctx context.Context, drv dialect.Driver, cfg *Config, authorID int64) error {
	em := strata.NewEntityManager(drv, registry)
	author, err := em.Load(ctx, authorMeta, authorID)
	if err != nil {
		return err
	}
	books, err := author.Collection("books").Load(ctx)
	if err != nil {
		return err
	}
	if len(books) != cfg.Graph.BooksPerAuthor {
		return fmt.Errorf("author %d: expected %d books, got %d", authorID, cfg.Graph.BooksPerAuthor, len(books))
	}
	for _, book := range books {
		tags, err := book.Collection("tags").Load(ctx)
		if err != nil {
			return err
		}
		if len(tags) != cfg.Graph.Tags {
			return fmt.Errorf("%s: expected %d tags, got %d", book, cfg.Graph.Tags, len(tags))
		}
	}
	return nil
}
