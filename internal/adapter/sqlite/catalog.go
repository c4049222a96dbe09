// Package sqlite keeps a catalog of loaded mosaic products in a SQLite file.
// The pipeline uses it to skip products that were already published and the
// HTTP server reads the most recent product from it.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/storm-mosaic-etl/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const (
	selectExistsSQL = `SELECT 1 FROM products WHERE id = ?`
	insertSQL       = `INSERT INTO products (id, var, region, observed_at, processed_at, max_value, payload)
VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`
	selectLatestSQL = `SELECT payload FROM products ORDER BY rowid DESC LIMIT 1`
)

// Catalog implements pipeline.Deduper and the HTTP latest-product source.
type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the catalog at path and applies the schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Catalog, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog open: %w", err)
	}
	// One writer; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog schema: %w", err)
	}

	logger.Info("product catalog opened", "path", path)
	return &Catalog{db: db, logger: logger}, nil
}

// Unseen returns the products whose IDs are not in the catalog, dropping
// repeats within the batch. Order is preserved.
func (c *Catalog) Unseen(ctx context.Context, products []domain.MosaicProduct) ([]domain.MosaicProduct, error) {
	fresh := make([]domain.MosaicProduct, 0, len(products))
	inBatch := make(map[string]struct{}, len(products))

	for _, p := range products {
		if _, dup := inBatch[p.ID]; dup {
			continue
		}
		inBatch[p.ID] = struct{}{}

		var one int
		err := c.db.QueryRowContext(ctx, selectExistsSQL, p.ID).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			fresh = append(fresh, p)
		case err != nil:
			return nil, fmt.Errorf("catalog lookup %s: %w", p.ID, err)
		}
	}
	return fresh, nil
}

// Record stores the products in one transaction. Products already present
// are left untouched.
func (c *Catalog) Record(ctx context.Context, products []domain.MosaicProduct) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("catalog prepare: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, p := range products {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("catalog encode %s: %w", p.ID, err)
		}
		res, err := stmt.ExecContext(ctx,
			p.ID, p.VarName, p.RegionID,
			p.ObservedAt.UTC().Format(time.RFC3339),
			p.ProcessedAt.UTC().Format(time.RFC3339Nano),
			p.MaxValue, string(payload),
		)
		if err != nil {
			return fmt.Errorf("catalog insert %s: %w", p.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("catalog insert %s: %w", p.ID, err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog commit: %w", err)
	}
	c.logger.Debug("catalog recorded products", "inserted", inserted, "batch_size", len(products))
	return nil
}

// LatestProduct returns the product recorded last.
func (c *Catalog) LatestProduct(ctx context.Context) (domain.MosaicProduct, bool, error) {
	var payload string
	err := c.db.QueryRowContext(ctx, selectLatestSQL).Scan(&payload)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.MosaicProduct{}, false, nil
	case err != nil:
		return domain.MosaicProduct{}, false, fmt.Errorf("catalog latest: %w", err)
	}

	var p domain.MosaicProduct
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return domain.MosaicProduct{}, false, fmt.Errorf("catalog decode latest: %w", err)
	}
	return p, true, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func buildDSN(path string) (string, error) {
	if path == "" {
		return "", errors.New("catalog path is empty")
	}

	// Ensure directory exists for file-backed sqlite db
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
	}

	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
