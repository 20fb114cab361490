package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const defaultTxTimeout = 5 * time.Second

type txKey struct{}

// Executor is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx.
type Executor interface {
	sqlx.ExtContext
}

// Conn returns the transaction bound to ctx, or db when none is active.
func Conn(ctx context.Context, db *sqlx.DB) Executor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok && tx != nil {
		return tx
	}
	return db
}

// TxRunner opens database transactions and carries them through the context so
// repositories called inside fn share the same commit.
type TxRunner struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTxRunner builds a runner bound to db.
func NewTxRunner(db *sqlx.DB) *TxRunner {
	return &TxRunner{db: db, timeout: defaultTxTimeout}
}

// RunInTx executes fn inside a transaction. Nested calls reuse the outer transaction.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
