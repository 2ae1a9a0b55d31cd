package vouchers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	if db == nil {
		panic("db must be set")
	}

	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, v entity.Voucher) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO vouchers (
			voucher_id, code, discount_type, discount_value, max_discount_amount, min_order_value,
			usage_limit, used_count, per_user_limit, route_ids, valid_from, valid_until, is_active
		) VALUES (
			:voucher_id, :code, :discount_type, :discount_value, :max_discount_amount, :min_order_value,
			:usage_limit, :used_count, :per_user_limit, :route_ids, :valid_from, :valid_until, :is_active
		)
		ON CONFLICT (voucher_id) DO NOTHING
	`, v)
	if err != nil {
		return fmt.Errorf("could not insert voucher %s: %w", v.Code, err)
	}

	return nil
}

func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (entity.Voucher, error) {
	var v entity.Voucher
	err := r.db.GetContext(ctx, &v, `SELECT * FROM vouchers WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Voucher{}, entity.ErrNotFound
	}
	if err != nil {
		return entity.Voucher{}, fmt.Errorf("could not get voucher %s: %w", code, err)
	}

	return v, nil
}

func (r *PostgresRepository) CountUserUsages(ctx context.Context, voucherID, userID string) (int, error) {
	return countUserUsages(ctx, r.db, voucherID, userID)
}

// Redeem applies the voucher to a booking inside tx. The global cap is enforced by
// the conditional increment, and the row lock it takes serializes the per user
// check of concurrent redemptions of the same voucher.
func Redeem(ctx context.Context, tx *sqlx.Tx, v entity.Voucher, usage entity.VoucherUsage) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE vouchers
		SET used_count = used_count + 1
		WHERE voucher_id = $1 AND is_active AND (usage_limit IS NULL OR used_count < usage_limit)
	`, v.ID)
	if err != nil {
		return fmt.Errorf("could not increment voucher usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get affected rows: %w", err)
	}
	if n == 0 {
		return entity.VoucherRejectedError{Code: v.Code, Reason: entity.VoucherLimitReached}
	}

	if v.PerUserLimit != nil {
		used, err := countUserUsages(ctx, tx, v.ID, usage.UserID)
		if err != nil {
			return err
		}
		if used >= *v.PerUserLimit {
			return entity.VoucherRejectedError{Code: v.Code, Reason: entity.VoucherPerUserLimit}
		}
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO voucher_usages (usage_id, voucher_id, booking_id, user_id, discount_amount)
		VALUES (:usage_id, :voucher_id, :booking_id, :user_id, :discount_amount)
	`, usage)
	if err != nil {
		return fmt.Errorf("could not insert voucher usage: %w", err)
	}

	return nil
}

func countUserUsages(ctx context.Context, q sqlx.QueryerContext, voucherID, userID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count, `
		SELECT COUNT(*) FROM voucher_usages WHERE voucher_id = $1 AND user_id = $2
	`, voucherID, userID)
	if err != nil {
		return 0, fmt.Errorf("could not count voucher usages: %w", err)
	}

	return count, nil
}
