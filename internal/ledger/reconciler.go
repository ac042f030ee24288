package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbase/portfolio-ledger/internal/metrics"
	"github.com/finbase/portfolio-ledger/internal/models"
)

// Store is the persistence surface the reconciler consumes. The reconciler
// is the only writer of position data and the cash balance; everything
// else must mutate transactions only.
type Store interface {
	ListTransactions(portfolioID string) ([]*models.Transaction, error)
	ListPositions(portfolioID string) ([]*models.Position, error)
	UpsertPosition(p *models.Position) error
	DeletePosition(portfolioID, ticker string) error
	WriteCashBalance(portfolioID string, balance decimal.Decimal) error
}

// Reconciler rebuilds a portfolio's materialized state (positions + cash
// balance) from its complete transaction ledger. Each pass is a full
// recomputation, so repeated invocation is idempotent and a failed pass is
// healed by the next successful one.
type Reconciler struct {
	store Store
	locks *portfolioLocks
}

// NewReconciler creates a Reconciler backed by the given store.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{
		store: store,
		locks: newPortfolioLocks(),
	}
}

// Reconcile recomputes the portfolio's position set and cash balance from
// its transaction ledger and writes the result to the store. Passes for
// the same portfolio are serialized, so the materialized state always
// reflects the ledger as of the most recent completed write. Store errors
// abort the pass and are surfaced without retry; callers may safely
// re-invoke after transient failures.
func (r *Reconciler) Reconcile(portfolioID string) error {
	lock := r.locks.get(portfolioID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	err := r.reconcile(portfolioID)
	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReconcilePasses.WithLabelValues("error").Inc()
		return err
	}
	metrics.ReconcilePasses.WithLabelValues("success").Inc()
	return nil
}

func (r *Reconciler) reconcile(portfolioID string) error {
	txs, err := r.store.ListTransactions(portfolioID)
	if err != nil {
		return fmt.Errorf("reconcile %s: list transactions: %w", portfolioID, err)
	}

	target := Reduce(txs)

	existing, err := r.store.ListPositions(portfolioID)
	if err != nil {
		return fmt.Errorf("reconcile %s: list positions: %w", portfolioID, err)
	}
	prior := make(map[string]*models.Position, len(existing))
	for _, p := range existing {
		prior[p.Ticker] = p
	}

	// Stale positions first: a ticker whose folded quantity dropped to
	// zero or below, or whose transactions were deleted entirely, must
	// not survive the pass.
	for ticker := range prior {
		facts, ok := target.Tickers[ticker]
		if ok && facts.Quantity.IsPositive() {
			continue
		}
		if err := r.store.DeletePosition(portfolioID, ticker); err != nil {
			return fmt.Errorf("reconcile %s: delete position %s: %w", portfolioID, ticker, err)
		}
		metrics.PositionsDeleted.Inc()
	}

	for ticker, facts := range target.Tickers {
		if !facts.Quantity.IsPositive() {
			continue
		}
		pos := &models.Position{
			PortfolioID:   portfolioID,
			Ticker:        ticker,
			Quantity:      facts.Quantity,
			PurchasePrice: facts.AveragePrice(),
			PurchaseDate:  facts.EarliestDate,
		}
		// Sticky annotations are carried over from the prior position,
		// never recomputed.
		if prev, ok := prior[ticker]; ok {
			pos.ThesisID = prev.ThesisID
			pos.Notes = prev.Notes
		}
		if err := r.store.UpsertPosition(pos); err != nil {
			return fmt.Errorf("reconcile %s: upsert position %s: %w", portfolioID, ticker, err)
		}
		metrics.PositionsUpserted.Inc()
	}

	if err := r.store.WriteCashBalance(portfolioID, target.Cash); err != nil {
		return fmt.Errorf("reconcile %s: write cash balance: %w", portfolioID, err)
	}

	return nil
}
