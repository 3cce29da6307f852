// catalog-ingest bulk-loads supplier product feeds: gzipped JSONL files, one
// product per line, upserted by product name. Files are processed
// concurrently, one reader goroutine per feed file.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/kirashop/storefront/internal/storage/postgres"
)

// maxLineBytes caps a single feed line; anything larger is a malformed feed.
const maxLineBytes = 1 << 20

const progressEvery = 10_000

type feedProduct struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Category    string          `json:"category"`
	InStock     bool            `json:"in_stock"`
	Quantity    int             `json:"quantity"`
}

const upsertSQL = `
INSERT INTO products (name, description, price, image_url, category, in_stock, quantity)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (name) DO UPDATE SET
	description = EXCLUDED.description,
	price = EXCLUDED.price,
	image_url = EXCLUDED.image_url,
	category = EXCLUDED.category,
	in_stock = EXCLUDED.in_stock,
	quantity = EXCLUDED.quantity,
	updated_at = now()
`

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing feed files")
	flag.StringVar(&pattern, "pattern", "products-*.jsonl.gz", "feed file glob pattern")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "glob feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no feed files matching %s in %s", pattern, dataDir)
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("ingesting feed files", slog.Int("files", len(files)))

	var total atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for _, file := range files {
		g.Go(func() error {
			n, err := ingestFile(ctx, pool, file)
			if err != nil {
				return errors.Wrapf(err, "ingest %s", file)
			}
			total.Add(n)
			slog.Info("feed file done", slog.String("file", file), slog.Int64("products", n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("all feeds ingested", slog.Int64("products", total.Load()))
	return nil
}

func ingestFile(ctx context.Context, pool *pgxpool.Pool, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var count int64
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var p feedProduct
		if err := json.Unmarshal(line, &p); err != nil {
			return count, errors.Wrapf(err, "parse line %d", count+1)
		}
		if p.Name == "" {
			return count, errors.Errorf("line %d: product name is empty", count+1)
		}

		if _, err := pool.Exec(ctx, upsertSQL,
			p.Name, p.Description, p.Price, p.ImageURL, p.Category, p.InStock, p.Quantity,
		); err != nil {
			return count, errors.Wrapf(err, "upsert %s", p.Name)
		}

		if count++; count%progressEvery == 0 {
			slog.Info("progress", slog.String("file", path), slog.Int64("products", count))
		}
	}
	if err := scanner.Err(); err != nil {
		return count, errors.Wrap(err, "scan")
	}
	return count, nil
}
