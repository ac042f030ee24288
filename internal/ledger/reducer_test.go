package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbase/portfolio-ledger/internal/models"
)

// ---------------------------------------------------------------------------
// Mock Store
// ---------------------------------------------------------------------------

type mockStore struct {
	mu        sync.Mutex
	txs       map[string][]*models.Transaction
	positions map[string]map[string]*models.Position
	cash      map[string]decimal.Decimal

	listTxErr error
	upsertErr error

	// overlap detection for the serialization test
	inFlight map[string]bool
	overlaps int
}

func newMockStore() *mockStore {
	return &mockStore{
		txs:       map[string][]*models.Transaction{},
		positions: map[string]map[string]*models.Position{},
		cash:      map[string]decimal.Decimal{},
		inFlight:  map[string]bool{},
	}
}

func (m *mockStore) addTransaction(tx *models.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.PortfolioID] = append(m.txs[tx.PortfolioID], tx)
}

func (m *mockStore) removeTransaction(portfolioID, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.txs[portfolioID][:0]
	for _, tx := range m.txs[portfolioID] {
		if tx.ID != id {
			kept = append(kept, tx)
		}
	}
	m.txs[portfolioID] = kept
}

func (m *mockStore) ListTransactions(portfolioID string) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listTxErr != nil {
		return nil, m.listTxErr
	}
	if m.inFlight[portfolioID] {
		m.overlaps++
	}
	m.inFlight[portfolioID] = true
	out := make([]*models.Transaction, len(m.txs[portfolioID]))
	copy(out, m.txs[portfolioID])
	return out, nil
}

func (m *mockStore) ListPositions(portfolioID string) ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Position
	for _, p := range m.positions[portfolioID] {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockStore) UpsertPosition(p *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if m.positions[p.PortfolioID] == nil {
		m.positions[p.PortfolioID] = map[string]*models.Position{}
	}
	cp := *p
	m.positions[p.PortfolioID][p.Ticker] = &cp
	return nil
}

func (m *mockStore) DeletePosition(portfolioID, ticker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions[portfolioID], ticker)
	return nil
}

func (m *mockStore) WriteCashBalance(portfolioID string, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[portfolioID] = false
	m.cash[portfolioID] = balance
	return nil
}

func (m *mockStore) position(portfolioID, ticker string) *models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[portfolioID][ticker]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (m *mockStore) setPosition(p *models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.positions[p.PortfolioID] == nil {
		m.positions[p.PortfolioID] = map[string]*models.Position{}
	}
	m.positions[p.PortfolioID][p.Ticker] = p
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func price(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func tx(id, portfolioID, typ, ticker string, date time.Time, qty, amount string, p decimal.NullDecimal) *models.Transaction {
	return &models.Transaction{
		ID:          id,
		PortfolioID: portfolioID,
		Type:        typ,
		Ticker:      ticker,
		Date:        date,
		Quantity:    dec(qty),
		Price:       p,
		Amount:      dec(amount),
	}
}

// ---------------------------------------------------------------------------
// Reduce (pure fold) tests
// ---------------------------------------------------------------------------

func TestReduce_CostBasisLifetimeAverage(t *testing.T) {
	d := time.Now()
	txs := []*models.Transaction{
		tx("1", "p1", models.TypeBuy, "X", d, "10", "-1000", price("100")),
		tx("2", "p1", models.TypeBuy, "X", d, "10", "-2000", price("200")),
	}

	res := Reduce(txs)
	facts := res.Tickers["X"]
	require.NotNil(t, facts)
	assert.True(t, facts.Quantity.Equal(dec("20")))
	avg := facts.AveragePrice()
	require.True(t, avg.Valid)
	assert.True(t, avg.Decimal.Equal(dec("150")), "got %s", avg.Decimal)

	// A partial sale reduces quantity but never the accumulated cost, so
	// the average stays put.
	txs = append(txs, tx("3", "p1", models.TypeSell, "X", d, "-5", "900", price("180")))
	res = Reduce(txs)
	facts = res.Tickers["X"]
	assert.True(t, facts.Quantity.Equal(dec("15")))
	avg = facts.AveragePrice()
	require.True(t, avg.Valid)
	assert.True(t, avg.Decimal.Equal(dec("150")), "got %s", avg.Decimal)
}

func TestReduce_EarliestDateIgnoresEntryOrder(t *testing.T) {
	txs := []*models.Transaction{
		tx("1", "p1", models.TypeBuy, "X", day(t, "2023-01-10"), "5", "-500", price("100")),
		tx("2", "p1", models.TypeBuy, "X", day(t, "2022-06-01"), "5", "-400", price("80")),
	}

	res := Reduce(txs)
	assert.Equal(t, day(t, "2022-06-01"), res.Tickers["X"].EarliestDate)

	// Non-contributing types still count toward the earliest date.
	txs = append(txs, tx("3", "p1", models.TypeDividend, "X", day(t, "2021-12-31"), "0", "7", decimal.NullDecimal{}))
	res = Reduce(txs)
	assert.Equal(t, day(t, "2021-12-31"), res.Tickers["X"].EarliestDate)
}

func TestReduce_CashSumsAllTransactions(t *testing.T) {
	d := time.Now()
	txs := []*models.Transaction{
		tx("1", "p1", models.TypeCash, "", d, "0", "10000", decimal.NullDecimal{}),
		tx("2", "p1", models.TypeBuy, "X", d, "10", "-1500", price("150")),
		tx("3", "p1", models.TypeDividend, "X", d, "0", "12.50", decimal.NullDecimal{}),
		tx("4", "p1", models.TypeSell, "X", d, "-4", "720", price("180")),
	}

	res := Reduce(txs)
	assert.True(t, res.Cash.Equal(dec("9232.50")), "got %s", res.Cash)
}

func TestReduce_BuyWithoutPriceExcludedFromCostBasis(t *testing.T) {
	d := time.Now()
	txs := []*models.Transaction{
		tx("1", "p1", models.TypeBuy, "X", d, "10", "0", decimal.NullDecimal{}),
	}

	res := Reduce(txs)
	facts := res.Tickers["X"]
	assert.True(t, facts.Quantity.Equal(dec("10")))
	assert.False(t, facts.AveragePrice().Valid)
}

// ---------------------------------------------------------------------------
// Reconciler tests
// ---------------------------------------------------------------------------

func TestReconciler_EndToEnd(t *testing.T) {
	store := newMockStore()
	store.addTransaction(tx("1", "p1", models.TypeBuy, "AAPL", day(t, "2024-01-05"), "10", "-1500", price("150")))
	store.addTransaction(tx("2", "p1", models.TypeDividend, "AAPL", day(t, "2024-04-05"), "0", "12", decimal.NullDecimal{}))
	store.addTransaction(tx("3", "p1", models.TypeSell, "AAPL", day(t, "2024-06-01"), "-4", "720", price("180")))

	r := NewReconciler(store)
	require.NoError(t, r.Reconcile("p1"))

	pos := store.position("p1", "AAPL")
	require.NotNil(t, pos)
	assert.True(t, pos.Quantity.Equal(dec("6")))
	require.True(t, pos.PurchasePrice.Valid)
	assert.True(t, pos.PurchasePrice.Decimal.Equal(dec("150")))
	assert.Equal(t, day(t, "2024-01-05"), pos.PurchaseDate)
	assert.True(t, store.cash["p1"].Equal(dec("-768")), "got %s", store.cash["p1"])
}

func TestReconciler_Idempotent(t *testing.T) {
	store := newMockStore()
	store.addTransaction(tx("1", "p1", models.TypeBuy, "AAPL", day(t, "2024-01-05"), "10", "-1500", price("150")))
	store.addTransaction(tx("2", "p1", models.TypeCash, "", day(t, "2024-01-01"), "0", "5000", decimal.NullDecimal{}))

	r := NewReconciler(store)
	require.NoError(t, r.Reconcile("p1"))

	first, err := store.ListPositions("p1")
	require.NoError(t, err)
	firstCash := store.cash["p1"]

	require.NoError(t, r.Reconcile("p1"))

	second, err := store.ListPositions("p1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, firstCash.Equal(store.cash["p1"]))
}

func TestReconciler_CashConservationAcrossEdits(t *testing.T) {
	store := newMockStore()
	r := NewReconciler(store)

	store.addTransaction(tx("1", "p1", models.TypeCash, "", day(t, "2024-01-01"), "0", "1000", decimal.NullDecimal{}))
	require.NoError(t, r.Reconcile("p1"))
	assert.True(t, store.cash["p1"].Equal(dec("1000")))

	store.addTransaction(tx("2", "p1", models.TypeBuy, "X", day(t, "2024-02-01"), "3", "-300", price("100")))
	require.NoError(t, r.Reconcile("p1"))
	assert.True(t, store.cash["p1"].Equal(dec("700")))

	store.removeTransaction("p1", "1")
	require.NoError(t, r.Reconcile("p1"))
	assert.True(t, store.cash["p1"].Equal(dec("-300")), "got %s", store.cash["p1"])
}

func TestReconciler_RemovesZeroQuantityPositions(t *testing.T) {
	store := newMockStore()
	store.addTransaction(tx("1", "p1", models.TypeBuy, "X", day(t, "2024-01-05"), "10", "-1000", price("100")))
	store.addTransaction(tx("2", "p1", models.TypeSell, "X", day(t, "2024-02-05"), "-10", "1100", price("110")))

	r := NewReconciler(store)
	require.NoError(t, r.Reconcile("p1"))
	assert.Nil(t, store.position("p1", "X"))
}

func TestReconciler_RemovesPositionsWithoutTransactions(t *testing.T) {
	// A position left over from transactions that were since deleted must
	// not survive a pass.
	store := newMockStore()
	store.setPosition(&models.Position{PortfolioID: "p1", Ticker: "GONE", Quantity: dec("5")})
	store.addTransaction(tx("1", "p1", models.TypeBuy, "X", day(t, "2024-01-05"), "2", "-200", price("100")))

	r := NewReconciler(store)
	require.NoError(t, r.Reconcile("p1"))
	assert.Nil(t, store.position("p1", "GONE"))
	assert.NotNil(t, store.position("p1", "X"))
}

func TestReconciler_PreservesStickyAnnotations(t *testing.T) {
	store := newMockStore()
	store.addTransaction(tx("1", "p1", models.TypeBuy, "AAPL", day(t, "2024-01-05"), "10", "-1500", price("150")))
	store.addTransaction(tx("2", "p1", models.TypeBuy, "MSFT", day(t, "2024-01-06"), "5", "-2000", price("400")))

	r := NewReconciler(store)
	require.NoError(t, r.Reconcile("p1"))

	// Direct user edit of the sticky half.
	pos := store.position("p1", "AAPL")
	require.NotNil(t, pos)
	pos.ThesisID = "thesis-42"
	pos.Notes = "long term hold"
	store.setPosition(pos)

	// An unrelated mutation on a different ticker triggers another pass.
	store.addTransaction(tx("3", "p1", models.TypeBuy, "MSFT", day(t, "2024-03-01"), "5", "-2100", price("420")))
	require.NoError(t, r.Reconcile("p1"))

	pos = store.position("p1", "AAPL")
	require.NotNil(t, pos)
	assert.Equal(t, "thesis-42", pos.ThesisID)
	assert.Equal(t, "long term hold", pos.Notes)
}

func TestReconciler_StoreErrorAbortsPass(t *testing.T) {
	store := newMockStore()
	store.listTxErr = errors.New("connection refused")

	r := NewReconciler(store)
	err := r.Reconcile("p1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "list transactions")

	store.listTxErr = nil
	store.addTransaction(tx("1", "p1", models.TypeBuy, "X", day(t, "2024-01-05"), "1", "-100", price("100")))
	store.upsertErr = errors.New("write failed")
	err = r.Reconcile("p1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "upsert position")
}

func TestReconciler_SerializesPassesPerPortfolio(t *testing.T) {
	store := newMockStore()
	for i := 0; i < 20; i++ {
		store.addTransaction(tx("1", "p1", models.TypeCash, "", day(t, "2024-01-01"), "0", "10", decimal.NullDecimal{}))
	}

	r := NewReconciler(store)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Reconcile("p1"))
		}()
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Zero(t, store.overlaps, "reconcile passes for the same portfolio overlapped")
}
