package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/finbase/portfolio-ledger/internal/models"
)

// Event types published to the ledger events topic.
const (
	EventTransactionRecorded = "TRANSACTION_RECORDED"
	EventPortfolioReconciled = "PORTFOLIO_RECONCILED"
)

// Producer publishes ledger lifecycle events. Publishing is best-effort:
// handlers log failures but never fail a request over them.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a Kafka producer for the given topic.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	return &Producer{writer: writer}
}

// PublishTransactionRecorded announces a durable ledger write.
func (p *Producer) PublishTransactionRecorded(ctx context.Context, tx *models.Transaction) error {
	return p.publish(ctx, tx.PortfolioID, models.LedgerEvent{
		EventType:   EventTransactionRecorded,
		PortfolioID: tx.PortfolioID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Data:        tx,
	})
}

// PublishPortfolioReconciled announces a completed reconcile pass.
func (p *Producer) PublishPortfolioReconciled(ctx context.Context, portfolioID string) error {
	return p.publish(ctx, portfolioID, models.LedgerEvent{
		EventType:   EventPortfolioReconciled,
		PortfolioID: portfolioID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (p *Producer) publish(ctx context.Context, key string, event models.LedgerEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.EventType, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.EventType, err)
	}
	return nil
}

// Close closes the Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
