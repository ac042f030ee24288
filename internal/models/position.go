package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the materialized holding for one (portfolio, ticker) pair.
// Quantity, PurchasePrice and PurchaseDate are fully derived from the
// transaction ledger and are only ever written by the reconciler.
// ThesisID and Notes are sticky user-owned annotations: they are edited
// directly and must survive every reconciliation pass untouched.
type Position struct {
	PortfolioID   string              `json:"portfolio_id"`
	Ticker        string              `json:"ticker"`
	Quantity      decimal.Decimal     `json:"quantity"`
	PurchasePrice decimal.NullDecimal `json:"purchase_price"`
	PurchaseDate  time.Time           `json:"purchase_date"`
	ThesisID      string              `json:"thesis_id,omitempty"`
	Notes         string              `json:"notes,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// PositionAnnotations carries the sticky half of a Position for the
// direct-edit endpoint. Nil fields are left unchanged.
type PositionAnnotations struct {
	ThesisID *string `json:"thesis_id"`
	Notes    *string `json:"notes"`
}
