package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbase/portfolio-ledger/internal/models"
)

// TickerFacts holds the derived state accumulated for one ticker during a
// fold: net signed quantity, lifetime cost contributions, and the earliest
// date of any transaction touching the ticker.
type TickerFacts struct {
	Ticker       string
	Quantity     decimal.Decimal
	CostSum      decimal.Decimal
	CostQuantity decimal.Decimal
	EarliestDate time.Time
}

// AveragePrice returns the weighted average cost basis for the ticker, or
// an invalid decimal when no transaction contributed to cost. The basis is
// a lifetime average of contributions: sells reduce quantity but never the
// accumulated cost, so the average is unchanged by partial disposals. This
// is the documented accounting convention, not tax-lot math.
func (f *TickerFacts) AveragePrice() decimal.NullDecimal {
	if !f.CostSum.IsPositive() || !f.CostQuantity.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: f.CostSum.Div(f.CostQuantity), Valid: true}
}

// Result is the complete target state for a portfolio produced by Reduce:
// per-ticker facts plus the aggregate cash balance.
type Result struct {
	Tickers map[string]*TickerFacts
	Cash    decimal.Decimal
}

// Reduce folds the full transaction list of a portfolio into its target
// state. It is a pure function: no I/O, no hidden state, same input always
// yields the same Result. The list may arrive in any order; every
// accumulated value is order-independent.
func Reduce(txs []*models.Transaction) *Result {
	res := &Result{Tickers: make(map[string]*TickerFacts)}

	for _, tx := range txs {
		res.Cash = res.Cash.Add(tx.Amount)

		if tx.Ticker == "" {
			continue
		}

		facts, ok := res.Tickers[tx.Ticker]
		if !ok {
			facts = &TickerFacts{Ticker: tx.Ticker, EarliestDate: tx.Date}
			res.Tickers[tx.Ticker] = facts
		}

		facts.Quantity = facts.Quantity.Add(tx.Quantity)
		if tx.ContributesToCost() {
			facts.CostSum = facts.CostSum.Add(tx.Quantity.Mul(tx.Price.Decimal))
			facts.CostQuantity = facts.CostQuantity.Add(tx.Quantity)
		}
		if tx.Date.Before(facts.EarliestDate) {
			facts.EarliestDate = tx.Date
		}
	}

	return res
}
