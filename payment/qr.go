package payment

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultQRTemplate = "https://qr.sepay.vn/img?acc={account}&bank={bank}&amount={amount}&des={reference}"

// QRBuilder renders the transfer QR code URL shown to the buyer.
type QRBuilder struct {
	BankAccount string
	BankCode    string
	Template    string
}

func (q QRBuilder) Build(reference string, amount decimal.Decimal) string {
	template := q.Template
	if template == "" {
		template = DefaultQRTemplate
	}

	return strings.NewReplacer(
		"{account}", url.QueryEscape(q.BankAccount),
		"{bank}", url.QueryEscape(q.BankCode),
		"{amount}", amount.Round(0).String(),
		"{reference}", url.QueryEscape(reference),
	).Replace(template)
}
