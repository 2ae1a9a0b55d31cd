package pricing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giaotrandev/booking-app-sub000/entity"
	"github.com/giaotrandev/booking-app-sub000/pricing"
)

func percent10() entity.Voucher {
	return entity.Voucher{
		Code:              "PERCENT10",
		DiscountType:      entity.DiscountTypePercentage,
		DiscountValue:     decimal.NewFromInt(10),
		MaxDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(15_000)),
		ValidFrom:         time.Now().Add(-time.Hour),
		ValidUntil:        time.Now().Add(time.Hour),
		IsActive:          true,
	}
}

func TestPrice_without_voucher(t *testing.T) {
	b := pricing.Price(decimal.NewFromInt(100_000), 2, nil)

	assert.True(t, decimal.NewFromInt(200_000).Equal(b.TotalPrice))
	assert.True(t, b.DiscountAmount.IsZero())
	assert.True(t, decimal.NewFromInt(200_000).Equal(b.FinalPrice))
}

func TestPrice_percentage_capped(t *testing.T) {
	v := percent10()
	b := pricing.Price(decimal.NewFromInt(100_000), 2, &v)

	assert.True(t, decimal.NewFromInt(15_000).Equal(b.DiscountAmount), b.DiscountAmount.String())
	assert.True(t, decimal.NewFromInt(185_000).Equal(b.FinalPrice), b.FinalPrice.String())
}

func TestPrice_percentage_below_cap(t *testing.T) {
	v := percent10()
	b := pricing.Price(decimal.NewFromInt(50_000), 2, &v)

	assert.True(t, decimal.NewFromInt(10_000).Equal(b.DiscountAmount), b.DiscountAmount.String())
	assert.True(t, decimal.NewFromInt(90_000).Equal(b.FinalPrice))
}

func TestPrice_fixed_never_negative(t *testing.T) {
	v := entity.Voucher{
		DiscountType:  entity.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(500_000),
	}
	b := pricing.Price(decimal.NewFromInt(100_000), 1, &v)

	assert.True(t, decimal.NewFromInt(100_000).Equal(b.DiscountAmount))
	assert.True(t, b.FinalPrice.IsZero())
	assert.True(t, b.FinalPrice.Equal(b.TotalPrice.Sub(b.DiscountAmount)))
}

func TestValidateVoucher(t *testing.T) {
	now := time.Now()
	user := entity.Buyer{UserID: "user-1"}
	one := 1

	testCases := []struct {
		name    string
		modify  func(v *entity.Voucher, vc *pricing.VoucherContext)
		expects entity.VoucherRejectReason
	}{
		{
			name:    "guest",
			modify:  func(v *entity.Voucher, vc *pricing.VoucherContext) { vc.Buyer = entity.Buyer{GuestName: "g"} },
			expects: entity.VoucherGuestNotAllowed,
		},
		{
			name:    "inactive",
			modify:  func(v *entity.Voucher, vc *pricing.VoucherContext) { v.IsActive = false },
			expects: entity.VoucherInvalid,
		},
		{
			name:    "expired",
			modify:  func(v *entity.Voucher, vc *pricing.VoucherContext) { v.ValidUntil = now.Add(-time.Minute) },
			expects: entity.VoucherExpired,
		},
		{
			name: "global limit",
			modify: func(v *entity.Voucher, vc *pricing.VoucherContext) {
				v.UsageLimit = &one
				v.UsedCount = 1
			},
			expects: entity.VoucherLimitReached,
		},
		{
			name: "per user limit",
			modify: func(v *entity.Voucher, vc *pricing.VoucherContext) {
				v.PerUserLimit = &one
				vc.UserUsage = 1
			},
			expects: entity.VoucherPerUserLimit,
		},
		{
			name:    "route mismatch",
			modify:  func(v *entity.Voucher, vc *pricing.VoucherContext) { v.RouteIDs = []string{"other-route"} },
			expects: entity.VoucherRouteMismatch,
		},
		{
			name: "minimum not met",
			modify: func(v *entity.Voucher, vc *pricing.VoucherContext) {
				v.MinOrderValue = decimal.NewNullDecimal(decimal.NewFromInt(300_000))
			},
			expects: entity.VoucherMinimumNotMet,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := percent10()
			vc := pricing.VoucherContext{
				Buyer:   user,
				RouteID: "route-1",
				Total:   decimal.NewFromInt(200_000),
				Now:     now,
			}
			tc.modify(&v, &vc)

			err := pricing.ValidateVoucher(v, vc)

			var rejected entity.VoucherRejectedError
			require.ErrorAs(t, err, &rejected)
			assert.Equal(t, tc.expects, rejected.Reason)
		})
	}

	t.Run("valid", func(t *testing.T) {
		v := percent10()
		v.RouteIDs = []string{"route-1"}
		err := pricing.ValidateVoucher(v, pricing.VoucherContext{
			Buyer:   user,
			RouteID: "route-1",
			Total:   decimal.NewFromInt(200_000),
			Now:     now,
		})
		assert.NoError(t, err)
	})
}
