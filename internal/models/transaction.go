package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types. Quantity is positive for buy/dividend_reinvest,
// negative for sell, zero for dividend and cash.
const (
	TypeBuy              = "buy"
	TypeSell             = "sell"
	TypeDividend         = "dividend"
	TypeDividendReinvest = "dividend_reinvest"
	TypeCash             = "cash"
)

// ErrMalformedTransaction indicates a transaction record is missing a
// required field for its type and cannot be accepted into the ledger.
var ErrMalformedTransaction = errors.New("malformed transaction")

// Transaction is a single immutable ledger entry for a portfolio.
// Amount is the signed cash impact in the portfolio's base currency
// (positive = inflow). Date is the economic date of the event, not the
// record's write time.
type Transaction struct {
	ID          string              `json:"id"`
	PortfolioID string              `json:"portfolio_id"`
	Type        string              `json:"type"`
	Ticker      string              `json:"ticker,omitempty"`
	Date        time.Time           `json:"date"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Price       decimal.NullDecimal `json:"price"`
	Amount      decimal.Decimal     `json:"amount"`
	Notes       string              `json:"notes,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Validate checks the structural requirements for the transaction's type.
// A buy with a null price is valid (it is simply excluded from cost basis);
// only truly unusable records are rejected.
func (t *Transaction) Validate() error {
	switch t.Type {
	case TypeBuy, TypeSell, TypeDividend, TypeDividendReinvest, TypeCash:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedTransaction, t.Type)
	}
	if t.Type != TypeCash && t.Ticker == "" {
		return fmt.Errorf("%w: %s transaction requires a ticker", ErrMalformedTransaction, t.Type)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrMalformedTransaction)
	}
	return nil
}

// ContributesToCost reports whether the transaction adds to a ticker's
// cost basis: acquisition types with positive quantity and a known price.
func (t *Transaction) ContributesToCost() bool {
	if t.Type != TypeBuy && t.Type != TypeDividendReinvest {
		return false
	}
	return t.Quantity.IsPositive() && t.Price.Valid
}
