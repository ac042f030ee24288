package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/finbase/portfolio-ledger/internal/models"
)

// TransactionsRepository defines the ledger write surface the consumer needs.
type TransactionsRepository interface {
	CreateTransaction(tx *models.Transaction) error
}

// Reconciler triggers a full materialization pass for a portfolio.
type Reconciler interface {
	Reconcile(portfolioID string) error
}

// LedgerConsumer ingests transaction batches from an external brokerage
// feed, appends them to the ledger, and reconciles every touched
// portfolio.
type LedgerConsumer struct {
	reader     *kafka.Reader
	repo       TransactionsRepository
	reconciler Reconciler
}

// NewLedgerConsumer creates a Kafka consumer for imported transactions.
func NewLedgerConsumer(brokers []string, topic, groupID string, repo TransactionsRepository, reconciler Reconciler) *LedgerConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID + "-ledger",
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &LedgerConsumer{
		reader:     reader,
		repo:       repo,
		reconciler: reconciler,
	}
}

// Start begins consuming messages from Kafka
func (c *LedgerConsumer) Start(ctx context.Context) error {
	log.Printf("Starting Kafka ledger consumer for topic: %s", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			log.Println("Ledger consumer shutting down...")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				log.Printf("Error reading ledger message: %v", err)
				continue
			}

			if err := c.processMessage(msg); err != nil {
				log.Printf("Error processing ledger message: %v", err)
				// Continue processing other messages
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *LedgerConsumer) processMessage(msg kafka.Message) error {
	var event models.TransactionsEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal transactions event: %w", err)
	}

	if event.EventType != "TRANSACTIONS_IMPORT" {
		log.Printf("Ignoring event type: %s", event.EventType)
		return nil
	}

	log.Printf("Processing transactions import: %d entries from %s",
		len(event.Data.Transactions), event.Source)

	touched := map[string]bool{}
	inserted := 0

	for _, td := range event.Data.Transactions {
		tx, err := c.convertTransactionData(td)
		if err != nil {
			log.Printf("Warning: skipping transaction for %s: %v", td.Ticker, err)
			continue
		}
		if err := c.repo.CreateTransaction(tx); err != nil {
			return fmt.Errorf("failed to insert transaction for portfolio %s: %w", tx.PortfolioID, err)
		}
		touched[tx.PortfolioID] = true
		inserted++
	}

	// One reconcile pass per touched portfolio, after the whole batch is
	// durable. Each pass recomputes from scratch, so batching this way is
	// safe.
	for portfolioID := range touched {
		if err := c.reconciler.Reconcile(portfolioID); err != nil {
			return fmt.Errorf("failed to reconcile portfolio %s: %w", portfolioID, err)
		}
	}

	log.Printf("Imported %d transactions across %d portfolios", inserted, len(touched))
	return nil
}

// convertTransactionData parses feed strings into a validated ledger entry.
func (c *LedgerConsumer) convertTransactionData(td models.TransactionData) (*models.Transaction, error) {
	if td.PortfolioID == "" {
		return nil, fmt.Errorf("%w: missing portfolio id", models.ErrMalformedTransaction)
	}

	date, err := time.Parse("2006-01-02", td.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", td.Date, err)
	}

	quantity := decimal.Zero
	if td.Quantity != "" {
		quantity, err = decimal.NewFromString(td.Quantity)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity %q: %w", td.Quantity, err)
		}
	}

	amount, err := decimal.NewFromString(td.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", td.Amount, err)
	}

	var price decimal.NullDecimal
	if td.Price != "" {
		p, err := decimal.NewFromString(td.Price)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", td.Price, err)
		}
		price = decimal.NullDecimal{Decimal: p, Valid: true}
	}

	tx := &models.Transaction{
		ID:          uuid.NewString(),
		PortfolioID: td.PortfolioID,
		Type:        td.Type,
		Ticker:      td.Ticker,
		Date:        date,
		Quantity:    quantity,
		Price:       price,
		Amount:      amount,
		Notes:       td.Notes,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// Close closes the Kafka consumer
func (c *LedgerConsumer) Close() error {
	return c.reader.Close()
}
