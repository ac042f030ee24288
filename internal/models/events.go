package models

// TransactionsEvent is a Kafka message carrying a batch of ledger entries
// imported from an external brokerage feed.
type TransactionsEvent struct {
	EventType string                `json:"event_type"`
	Source    string                `json:"source"`
	Timestamp string                `json:"timestamp"`
	Data      TransactionsEventData `json:"data"`
}

// TransactionsEventData contains the imported transactions.
type TransactionsEventData struct {
	Transactions []TransactionData `json:"transactions"`
	TotalCount   int               `json:"total_count"`
}

// TransactionData is a single transaction from the import feed. Numeric
// fields arrive as strings and are parsed into decimals on ingest.
type TransactionData struct {
	PortfolioID string `json:"portfolio_id"`
	Type        string `json:"type"`
	Ticker      string `json:"ticker"`
	Date        string `json:"date"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	Amount      string `json:"amount"`
	Notes       string `json:"notes"`
}

// LedgerEvent is published after ledger mutations and reconcile passes.
type LedgerEvent struct {
	EventType   string      `json:"event_type"`
	PortfolioID string      `json:"portfolio_id"`
	Timestamp   string      `json:"timestamp"`
	Data        interface{} `json:"data,omitempty"`
}
