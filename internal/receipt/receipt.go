// Package receipt turns committed ledger output into human-readable text:
// per-entry descriptions for ledger views and invoice-style receipts for
// recharges. Read-only over committed state.
package receipt

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"credits/internal/store"
)

var actionLabels = map[string]string{
	"boost_24h":            "24h listing boost",
	"boost_7d":             "7-day listing boost",
	"unlock_lead":          "Premium lead unlock",
	"request_verification": "Verification request",
}

// DescribeSpend maps a spend to the display text stored on its ledger entry.
func DescribeSpend(action, referenceType, referenceID string) string {
	label, ok := actionLabels[action]
	if !ok {
		label = action
	}
	if referenceType == "" {
		return label
	}
	return fmt.Sprintf("%s (%s %s)", label, referenceType, referenceID)
}

func DescribeRecharge(source string, amount int64) string {
	if source == "" {
		source = "manual"
	}
	return fmt.Sprintf("Credit purchase of %d via %s", amount, source)
}

// Receipt is the renderer input for a recharge invoice. Money fields are
// formatted strings so the PDF layer downstream never does arithmetic.
type Receipt struct {
	Number    string `json:"number"`
	AccountID string `json:"account_id"`
	OwnerID   string `json:"owner_id"`
	Credits   int64  `json:"credits"`
	UnitPrice string `json:"unit_price"`
	Total     string `json:"total"`
	Currency  string `json:"currency"`
	IssuedAt  string `json:"issued_at"`
}

// Render builds a receipt for a committed credit entry at the given unit
// price per credit.
func Render(account store.Account, entry store.LedgerEntry, unitPrice decimal.Decimal, priceCurrency string) Receipt {
	total := unitPrice.Mul(decimal.NewFromInt(entry.Amount)).RoundBank(2)
	ref := entry.ID
	if len(ref) > 8 {
		ref = ref[:8]
	}
	return Receipt{
		Number:    fmt.Sprintf("RCP-%s-%s", entry.CreatedAt.UTC().Format("20060102"), ref),
		AccountID: account.ID,
		OwnerID:   account.OwnerID,
		Credits:   entry.Amount,
		UnitPrice: unitPrice.StringFixedBank(2),
		Total:     total.StringFixedBank(2),
		Currency:  priceCurrency,
		IssuedAt:  entry.CreatedAt.UTC().Format(time.RFC3339),
	}
}
