package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"rainfall-platform/pkg/logging"
)

// Tx is an instrumented transaction handle. Query methods mirror PostgresDB so
// repositories can time and log statements the same way inside and outside a
// transaction.
type Tx struct {
	tx *sqlx.Tx
	p  *PostgresDB
}

// Commit commits the transaction
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		t.p.metrics.RecordDBError("transaction_commit_error")
		return err
	}
	return nil
}

// Rollback aborts the transaction. Calling it after Commit is a no-op.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.p.metrics.RecordDBError("transaction_rollback_error")
		return err
	}
	return nil
}

// ExecContext executes a command inside the transaction
func (t *Tx) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	timer := time.Now()
	defer t.p.observe(ctx, queryType, timer)

	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		t.p.metrics.RecordDBError("exec_error")
		t.p.logger.Error(ctx, "[DB_TX_EXEC_ERROR] Command failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return nil, err
	}
	return result, nil
}

// GetContext runs a single-row query inside the transaction
func (t *Tx) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer t.p.observe(ctx, queryType, timer)

	err := t.tx.GetContext(ctx, dest, query, args...)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		t.p.metrics.RecordDBError("get_error")
		t.p.logger.Error(ctx, "[DB_TX_GET_ERROR] Get query failed", logging.Fields{
			"query_type": queryType,
		}, err)
	}
	return err
}

// SelectContext runs a multi-row query inside the transaction
func (t *Tx) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer t.p.observe(ctx, queryType, timer)

	err := t.tx.SelectContext(ctx, dest, query, args...)
	if err != nil {
		t.p.metrics.RecordDBError("select_error")
		t.p.logger.Error(ctx, "[DB_TX_SELECT_ERROR] Select query failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return err
	}
	return nil
}
