package payment

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

const (
	TransferIn  = "in"
	TransferOut = "out"

	transactionDateLayout = "2006-01-02 15:04:05"
)

var referencePattern = regexp.MustCompile(`BK[A-Z0-9]{10}`)

// Notification is a bank transfer reported by the payment gateway webhook.
type Notification struct {
	ID              int64           `json:"id"`
	Gateway         string          `json:"gateway"`
	TransactionDate string          `json:"transactionDate"`
	AccountNumber   string          `json:"accountNumber"`
	Code            *string         `json:"code"`
	Content         string          `json:"content"`
	TransferType    string          `json:"transferType"`
	TransferAmount  decimal.Decimal `json:"transferAmount"`
	Accumulated     decimal.Decimal `json:"accumulated"`
	ReferenceCode   string          `json:"referenceCode"`
	Description     string          `json:"description"`
}

func (n Notification) Validate() error {
	if n.ID == 0 {
		return fmt.Errorf("%w: missing transaction id", entity.ErrInvalidPayload)
	}
	if n.Gateway == "" {
		return fmt.Errorf("%w: missing gateway", entity.ErrInvalidPayload)
	}
	if n.TransferType != TransferIn && n.TransferType != TransferOut {
		return fmt.Errorf("%w: unknown transfer type %q", entity.ErrInvalidPayload, n.TransferType)
	}
	if n.TransferAmount.IsNegative() {
		return fmt.Errorf("%w: negative amount", entity.ErrInvalidPayload)
	}
	return nil
}

// Reference returns the booking payment reference found in the transfer, if any.
func (n Notification) Reference() (string, bool) {
	candidates := []string{n.Content, n.Description}
	if n.Code != nil {
		candidates = append([]string{*n.Code}, candidates...)
	}

	for _, c := range candidates {
		if ref := referencePattern.FindString(strings.ToUpper(c)); ref != "" {
			return ref, true
		}
	}
	return "", false
}

// PaidAt is the gateway transaction time, or fallback when the gateway sent none.
func (n Notification) PaidAt(loc *time.Location, fallback time.Time) time.Time {
	t, err := time.ParseInLocation(transactionDateLayout, n.TransactionDate, loc)
	if err != nil {
		return fallback
	}
	return t
}
