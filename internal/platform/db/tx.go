package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxOptions configures a transaction. A zero StatementTimeout leaves the
// server default in place.
type TxOptions struct {
	IsoLevel         pgx.TxIsoLevel
	ReadOnly         bool
	StatementTimeout time.Duration
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, db TxBeginner, fn func(pgx.Tx) error) error {
	return WithTxOptions(ctx, db, TxOptions{IsoLevel: pgx.RepeatableRead}, fn)
}

// WithSnapshot runs fn in a read-only RepeatableRead transaction so every
// query inside it observes the same snapshot.
func WithSnapshot(ctx context.Context, db TxBeginner, statementTimeout time.Duration, fn func(pgx.Tx) error) error {
	return WithTxOptions(ctx, db, TxOptions{
		IsoLevel:         pgx.RepeatableRead,
		ReadOnly:         true,
		StatementTimeout: statementTimeout,
	}, fn)
}

// WithTxOptions executes fn within a transaction configured by opts.
func WithTxOptions(ctx context.Context, db TxBeginner, opts TxOptions, fn func(pgx.Tx) error) error {
	access := pgx.ReadWrite
	if opts.ReadOnly {
		access = pgx.ReadOnly
	}
	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: opts.IsoLevel, AccessMode: access})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if opts.StatementTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("platform/db: set statement_timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
