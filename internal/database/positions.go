package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbase/portfolio-ledger/internal/models"
)

const positionColumns = `portfolio_id, ticker, quantity, purchase_price, purchase_date, thesis_id, notes, created_at, updated_at`

// ListPositions returns all materialized positions for a portfolio.
func (db *DB) ListPositions(portfolioID string) ([]*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE portfolio_id = $1
		ORDER BY ticker
	`
	rows, err := db.conn.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// GetPosition retrieves the position for one ticker.
func (db *DB) GetPosition(portfolioID, ticker string) (*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE portfolio_id = $1 AND ticker = $2
	`
	p, err := scanPosition(db.conn.QueryRow(query, portfolioID, ticker))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("position %s: %w", ticker, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %s: %w", ticker, err)
	}
	return p, nil
}

// UpsertPosition writes the derived half of a position. On conflict only
// the derived columns are updated; the sticky thesis_id/notes columns keep
// whatever the user last wrote through UpdatePositionAnnotations.
func (db *DB) UpsertPosition(p *models.Position) error {
	query := `
		INSERT INTO positions (
			portfolio_id, ticker, quantity, purchase_price, purchase_date,
			thesis_id, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (portfolio_id, ticker)
		DO UPDATE SET
			quantity = EXCLUDED.quantity,
			purchase_price = EXCLUDED.purchase_price,
			purchase_date = EXCLUDED.purchase_date,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	_, err := db.conn.Exec(query,
		p.PortfolioID, p.Ticker, p.Quantity, nullDecimal(p.PurchasePrice),
		p.PurchaseDate, nullString(p.ThesisID), p.Notes, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", p.Ticker, err)
	}
	p.UpdatedAt = now
	return nil
}

// DeletePosition removes the position for a ticker. Deleting a position
// that does not exist is not an error; the reconciler converges either way.
func (db *DB) DeletePosition(portfolioID, ticker string) error {
	_, err := db.conn.Exec(`DELETE FROM positions WHERE portfolio_id = $1 AND ticker = $2`, portfolioID, ticker)
	if err != nil {
		return fmt.Errorf("failed to delete position %s: %w", ticker, err)
	}
	return nil
}

// UpdatePositionAnnotations writes the sticky user-owned fields of a
// position. Nil fields are left untouched. This is the only writer of
// thesis_id/notes; the reconciler never modifies them.
func (db *DB) UpdatePositionAnnotations(portfolioID, ticker string, ann models.PositionAnnotations) error {
	query := `UPDATE positions SET updated_at = $3`
	args := []interface{}{portfolioID, ticker, time.Now()}
	argIdx := 4

	if ann.ThesisID != nil {
		query += fmt.Sprintf(", thesis_id = $%d", argIdx)
		args = append(args, nullString(*ann.ThesisID))
		argIdx++
	}
	if ann.Notes != nil {
		query += fmt.Sprintf(", notes = $%d", argIdx)
		args = append(args, *ann.Notes)
		argIdx++
	}

	query += ` WHERE portfolio_id = $1 AND ticker = $2`

	result, err := db.conn.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update annotations for %s: %w", ticker, err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("position %s: %w", ticker, ErrNotFound)
	}
	return nil
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	var purchasePrice, thesisID, notes sql.NullString

	err := row.Scan(
		&p.PortfolioID, &p.Ticker, &p.Quantity, &purchasePrice, &p.PurchaseDate,
		&thesisID, &notes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if purchasePrice.Valid {
		price, err := decimal.NewFromString(purchasePrice.String)
		if err != nil {
			return nil, fmt.Errorf("invalid purchase price %q: %w", purchasePrice.String, err)
		}
		p.PurchasePrice = decimal.NullDecimal{Decimal: price, Valid: true}
	}
	if thesisID.Valid {
		p.ThesisID = thesisID.String
	}
	if notes.Valid {
		p.Notes = notes.String
	}
	return &p, nil
}
