package entity

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFixed      DiscountType = "FIXED"
)

type Voucher struct {
	ID                string              `json:"voucher_id" db:"voucher_id"`
	Code              string              `json:"code" db:"code"`
	DiscountType      DiscountType        `json:"discount_type" db:"discount_type"`
	DiscountValue     decimal.Decimal     `json:"discount_value" db:"discount_value"`
	MaxDiscountAmount decimal.NullDecimal `json:"max_discount_amount" db:"max_discount_amount"`
	MinOrderValue     decimal.NullDecimal `json:"min_order_value" db:"min_order_value"`
	UsageLimit        *int                `json:"usage_limit,omitempty" db:"usage_limit"`
	UsedCount         int                 `json:"used_count" db:"used_count"`
	PerUserLimit      *int                `json:"per_user_limit,omitempty" db:"per_user_limit"`
	RouteIDs          pq.StringArray      `json:"route_ids" db:"route_ids"`
	ValidFrom         time.Time           `json:"valid_from" db:"valid_from"`
	ValidUntil        time.Time           `json:"valid_until" db:"valid_until"`
	IsActive          bool                `json:"is_active" db:"is_active"`
}

// AppliesToRoute reports whether the voucher may be used on the route. A voucher
// without route restrictions applies everywhere.
func (v Voucher) AppliesToRoute(routeID string) bool {
	if len(v.RouteIDs) == 0 {
		return true
	}
	for _, id := range v.RouteIDs {
		if id == routeID {
			return true
		}
	}
	return false
}

type VoucherUsage struct {
	ID             string          `json:"id" db:"usage_id"`
	VoucherID      string          `json:"voucher_id" db:"voucher_id"`
	BookingID      string          `json:"booking_id" db:"booking_id"`
	UserID         string          `json:"user_id" db:"user_id"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	UsedAt         time.Time       `json:"used_at" db:"used_at"`
}
