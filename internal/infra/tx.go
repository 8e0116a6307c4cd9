// README: Transaction runner with per-transaction lock and statement timeouts.
package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"yatra/internal/failure"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so stores can run the
// same statements inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TxRunner struct {
	pool             *pgxpool.Pool
	lockTimeout      time.Duration
	statementTimeout time.Duration
}

func NewTxRunner(pool *pgxpool.Pool, lockTimeout, statementTimeout time.Duration) *TxRunner {
	return &TxRunner{pool: pool, lockTimeout: lockTimeout, statementTimeout: statementTimeout}
}

func (r *TxRunner) Pool() *pgxpool.Pool {
	return r.pool
}

// Run executes fn in a READ COMMITTED transaction. Any error from fn rolls the
// transaction back; the returned error is classified by failure.FromDB so lock
// and statement timeouts surface as transient.
func (r *TxRunner) Run(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return failure.FromDB(op+": begin", err)
	}
	defer tx.Rollback(ctx)

	if err := r.applyTimeouts(ctx, tx); err != nil {
		return failure.FromDB(op+": timeouts", err)
	}
	if err := fn(tx); err != nil {
		return failure.FromDB(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return failure.FromDB(op+": commit", err)
	}
	return nil
}

func (r *TxRunner) applyTimeouts(ctx context.Context, tx pgx.Tx) error {
	if r.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, millis(r.lockTimeout)); err != nil {
			return err
		}
	}
	if r.statementTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('statement_timeout', $1, true)`, millis(r.statementTimeout)); err != nil {
			return err
		}
	}
	return nil
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}
