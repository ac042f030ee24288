package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbase/portfolio-ledger/internal/models"
)

func TestUpsertPosition_DoesNotTouchStickyColumns(t *testing.T) {
	db, mock := newMockDB(t)

	// The conflict clause must only update the derived columns.
	mock.ExpectExec(`ON CONFLICT \(portfolio_id, ticker\)\s+DO UPDATE SET\s+quantity = EXCLUDED.quantity,\s+purchase_price = EXCLUDED.purchase_price,\s+purchase_date = EXCLUDED.purchase_date,\s+updated_at = EXCLUDED.updated_at`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := &models.Position{
		PortfolioID:   "p1",
		Ticker:        "AAPL",
		Quantity:      decimal.NewFromInt(6),
		PurchasePrice: decimal.NullDecimal{Decimal: decimal.NewFromInt(150), Valid: true},
		PurchaseDate:  time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.UpsertPosition(p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPositions_NullPurchasePrice(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"portfolio_id", "ticker", "quantity", "purchase_price", "purchase_date", "thesis_id", "notes", "created_at", "updated_at"}).
		AddRow("p1", "GIFT", "10", nil, now, nil, "shares gifted, no cost basis", now, now)

	mock.ExpectQuery(`(?s)SELECT .+ FROM positions\s+WHERE portfolio_id = \$1`).
		WithArgs("p1").
		WillReturnRows(rows)

	positions, err := db.ListPositions("p1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.False(t, positions[0].PurchasePrice.Valid)
	assert.Empty(t, positions[0].ThesisID)
	assert.Equal(t, "shares gifted, no cost basis", positions[0].Notes)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePositionAnnotations_PartialUpdate(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE positions SET updated_at = \$3, thesis_id = \$4 WHERE portfolio_id = \$1 AND ticker = \$2`).
		WithArgs("p1", "AAPL", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	thesis := "thesis-42"
	err := db.UpdatePositionAnnotations("p1", "AAPL", models.PositionAnnotations{ThesisID: &thesis})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteCashBalance_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE portfolios SET cash_balance = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.WriteCashBalance("missing", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
