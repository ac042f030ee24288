package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbase/portfolio-ledger/internal/models"
)

const transactionColumns = `id, portfolio_id, type, ticker, date, quantity, price, amount, notes, created_at, updated_at`

// CreateTransaction inserts a new ledger entry.
func (db *DB) CreateTransaction(tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, portfolio_id, type, ticker, date, quantity, price, amount, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	now := time.Now()
	_, err := db.conn.Exec(query,
		tx.ID, tx.PortfolioID, tx.Type, nullString(tx.Ticker), tx.Date,
		tx.Quantity, nullDecimal(tx.Price), tx.Amount, tx.Notes, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	tx.CreatedAt = now
	tx.UpdatedAt = now
	return nil
}

// GetTransaction retrieves a single transaction by id within a portfolio.
func (db *DB) GetTransaction(portfolioID, id string) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE portfolio_id = $1 AND id = $2
	`
	tx, err := scanTransaction(db.conn.QueryRow(query, portfolioID, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return tx, nil
}

// ListTransactions returns the complete ledger for a portfolio. The
// reconciler depends on getting the full set in one call; there is no
// pagination on purpose.
func (db *DB) ListTransactions(portfolioID string) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE portfolio_id = $1
		ORDER BY date, created_at
	`
	rows, err := db.conn.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

// UpdateTransaction replaces every user-editable field of a transaction.
func (db *DB) UpdateTransaction(tx *models.Transaction) error {
	query := `
		UPDATE transactions SET
			type = $3, ticker = $4, date = $5, quantity = $6, price = $7,
			amount = $8, notes = $9, updated_at = $10
		WHERE portfolio_id = $1 AND id = $2
	`
	tx.UpdatedAt = time.Now()
	result, err := db.conn.Exec(query,
		tx.PortfolioID, tx.ID, tx.Type, nullString(tx.Ticker), tx.Date,
		tx.Quantity, nullDecimal(tx.Price), tx.Amount, tx.Notes, tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", tx.ID, err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, ErrNotFound)
	}
	return nil
}

// DeleteTransaction removes a transaction from the ledger.
func (db *DB) DeleteTransaction(portfolioID, id string) error {
	result, err := db.conn.Exec(`DELETE FROM transactions WHERE portfolio_id = $1 AND id = $2`, portfolioID, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var ticker, priceStr, notes sql.NullString

	err := row.Scan(
		&tx.ID, &tx.PortfolioID, &tx.Type, &ticker, &tx.Date,
		&tx.Quantity, &priceStr, &tx.Amount, &notes, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ticker.Valid {
		tx.Ticker = ticker.String
	}
	if priceStr.Valid {
		p, err := decimal.NewFromString(priceStr.String)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", priceStr.String, err)
		}
		tx.Price = decimal.NullDecimal{Decimal: p, Valid: true}
	}
	if notes.Valid {
		tx.Notes = notes.String
	}
	return &tx, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDecimal(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal
}
