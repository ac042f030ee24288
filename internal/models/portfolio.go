package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio is the per-portfolio aggregate record. CashBalance is the sum
// of Amount over every transaction in the ledger; it is overwritten by the
// reconciler and never edited directly.
type Portfolio struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PortfolioSnapshot is the reconciled view served to read endpoints and
// cached in redis: the full position set plus the cash balance.
type PortfolioSnapshot struct {
	PortfolioID string          `json:"portfolio_id"`
	Positions   []*Position     `json:"positions"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	GeneratedAt time.Time       `json:"generated_at"`
}
