// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/tululu-archiver/internal/crawler"
)

// DefaultTable receives book rows when no table is configured.
const DefaultTable = "books"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidTableName reports whether name is safe to interpolate as a table.
func ValidTableName(name string) bool {
	return validTableName.MatchString(name)
}

// BookStoreConfig controls the Postgres connection pool used for book rows.
type BookStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// BookStore writes book records into Postgres, one row per record, inside a
// single transaction per run.
type BookStore struct {
	pool  txBeginner
	table string
}

// NewBookStore creates a Postgres-backed BookStore using the provided config.
func NewBookStore(ctx context.Context, cfg BookStoreConfig) (*BookStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sinks.postgres.dsn is required")
	}
	table, err := tableOrDefault(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &BookStore{pool: pool, table: table}, nil
}

// NewBookStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewBookStoreWithPool(pool txBeginner, table string) (*BookStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	table, err := tableOrDefault(table)
	if err != nil {
		return nil, err
	}
	return &BookStore{pool: pool, table: table}, nil
}

func tableOrDefault(table string) (string, error) {
	if table == "" {
		return DefaultTable, nil
	}
	if !ValidTableName(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *BookStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreBooks inserts records in crawl order. position is the zero-based index
// of the record within the run. Either every row is written or none is.
func (s *BookStore) StoreBooks(ctx context.Context, runID uuid.UUID, records []crawler.BookRecord) (err error) {
	if s == nil || s.pool == nil {
		return errors.New("book store is not configured")
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	position,
	title,
	author,
	img_src,
	book_path,
	comments,
	genres
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, s.table)

	for i, record := range records {
		args, argErr := bookArgs(runID, i, record)
		if argErr != nil {
			return argErr
		}
		if _, err = tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert book %q: %w", record.Title, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit books: %w", err)
	}
	return nil
}

func bookArgs(runID uuid.UUID, position int, record crawler.BookRecord) ([]any, error) {
	comments, err := json.Marshal(nonNil(record.Comments))
	if err != nil {
		return nil, fmt.Errorf("marshal comments: %w", err)
	}
	genres, err := json.Marshal(nonNil(record.Genres))
	if err != nil {
		return nil, fmt.Errorf("marshal genres: %w", err)
	}
	return []any{
		runID.String(),
		position,
		record.Title,
		record.Author,
		record.ImagePath,
		record.TextPath,
		comments,
		genres,
	}, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
