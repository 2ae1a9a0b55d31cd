package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

var hundred = decimal.NewFromInt(100)

type Breakdown struct {
	TotalPrice     decimal.Decimal `json:"total_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalPrice     decimal.Decimal `json:"final_price"`
}

func Quote(basePrice decimal.Decimal, seatCount int) decimal.Decimal {
	return basePrice.Mul(decimal.NewFromInt(int64(seatCount)))
}

// VoucherContext is what a voucher is checked against.
type VoucherContext struct {
	Buyer     entity.Buyer
	RouteID   string
	Total     decimal.Decimal
	Now       time.Time
	UserUsage int
}

// ValidateVoucher runs every pre-transaction voucher check. The global usage
// cap is checked again inside the booking transaction.
func ValidateVoucher(v entity.Voucher, vc VoucherContext) error {
	reject := func(reason entity.VoucherRejectReason) error {
		return entity.VoucherRejectedError{Code: v.Code, Reason: reason}
	}

	if vc.Buyer.IsGuest() {
		return reject(entity.VoucherGuestNotAllowed)
	}
	if !v.IsActive || vc.Now.Before(v.ValidFrom) {
		return reject(entity.VoucherInvalid)
	}
	if !v.ValidUntil.IsZero() && vc.Now.After(v.ValidUntil) {
		return reject(entity.VoucherExpired)
	}
	if v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit {
		return reject(entity.VoucherLimitReached)
	}
	if v.PerUserLimit != nil && vc.UserUsage >= *v.PerUserLimit {
		return reject(entity.VoucherPerUserLimit)
	}
	if !v.AppliesToRoute(vc.RouteID) {
		return reject(entity.VoucherRouteMismatch)
	}
	if v.MinOrderValue.Valid && vc.Total.LessThan(v.MinOrderValue.Decimal) {
		return reject(entity.VoucherMinimumNotMet)
	}

	return nil
}

// Discount never exceeds the total, so the final price is never negative.
func Discount(v entity.Voucher, total decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal

	switch v.DiscountType {
	case entity.DiscountTypePercentage:
		discount = total.Mul(v.DiscountValue).Div(hundred).Round(0)
		if v.MaxDiscountAmount.Valid && discount.GreaterThan(v.MaxDiscountAmount.Decimal) {
			discount = v.MaxDiscountAmount.Decimal
		}
	case entity.DiscountTypeFixed:
		discount = v.DiscountValue
	}

	if discount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(discount, total)
}

func Price(basePrice decimal.Decimal, seatCount int, voucher *entity.Voucher) Breakdown {
	total := Quote(basePrice, seatCount)
	discount := decimal.Zero
	if voucher != nil {
		discount = Discount(*voucher, total)
	}

	return Breakdown{
		TotalPrice:     total,
		DiscountAmount: discount,
		FinalPrice:     total.Sub(discount),
	}
}
