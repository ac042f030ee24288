package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbase/portfolio-ledger/internal/models"
)

// CreatePortfolio inserts a new portfolio with a zero cash balance.
func (db *DB) CreatePortfolio(p *models.Portfolio) error {
	query := `
		INSERT INTO portfolios (id, name, cash_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`
	now := time.Now()
	if _, err := db.conn.Exec(query, p.ID, p.Name, p.CashBalance, now); err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// GetPortfolio retrieves a portfolio with its denormalized cash balance.
func (db *DB) GetPortfolio(id string) (*models.Portfolio, error) {
	query := `
		SELECT id, name, cash_balance, created_at, updated_at
		FROM portfolios
		WHERE id = $1
	`
	var p models.Portfolio
	err := db.conn.QueryRow(query, id).Scan(
		&p.ID, &p.Name, &p.CashBalance, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("portfolio %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %s: %w", id, err)
	}
	return &p, nil
}

// WriteCashBalance overwrites the portfolio's aggregate cash balance. Only
// the reconciler calls this.
func (db *DB) WriteCashBalance(portfolioID string, balance decimal.Decimal) error {
	query := `UPDATE portfolios SET cash_balance = $2, updated_at = $3 WHERE id = $1`
	result, err := db.conn.Exec(query, portfolioID, balance, time.Now())
	if err != nil {
		return fmt.Errorf("failed to write cash balance: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("portfolio %s: %w", portfolioID, ErrNotFound)
	}
	return nil
}
