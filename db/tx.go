package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

const (
	postgresUniqueValueViolationErrorCode = "23505"
	postgresQueryCanceledErrorCode        = "57014"
)

// UpdateInTx runs fn in a transaction and commits it when fn returns no error.
func UpdateInTx(
	ctx context.Context,
	db *sqlx.DB,
	isolation sql.IsolationLevel,
	fn func(ctx context.Context, tx *sqlx.Tx) error,
) (err error) {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	defer func() {
		if err == nil {
			return
		}
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			err = errors.Join(err, rollbackErr)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// UpdateInTxWithTimeout bounds the whole transaction by timeout, both on the
// client side and with a server side statement_timeout. Running out of time
// rolls everything back and reports entity.ErrTransactionTimeout.
func UpdateInTxWithTimeout(
	ctx context.Context,
	db *sqlx.DB,
	isolation sql.IsolationLevel,
	timeout time.Duration,
	fn func(ctx context.Context, tx *sqlx.Tx) error,
) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := UpdateInTx(ctx, db, isolation, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds()))
		if err != nil {
			return fmt.Errorf("could not set statement timeout: %w", err)
		}

		return fn(ctx, tx)
	})
	if err != nil && isTimeout(ctx, err) {
		return fmt.Errorf("%w: %w", entity.ErrTransactionTimeout, err)
	}

	return err
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}

	var psqlErr *pq.Error
	return errors.As(err, &psqlErr) && psqlErr.Code == postgresQueryCanceledErrorCode
}

func IsErrorUniqueViolation(err error) bool {
	var psqlErr *pq.Error
	return errors.As(err, &psqlErr) && psqlErr.Code == postgresUniqueValueViolationErrorCode
}
