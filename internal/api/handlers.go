package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/finbase/portfolio-ledger/internal/database"
	"github.com/finbase/portfolio-ledger/internal/kafka"
	"github.com/finbase/portfolio-ledger/internal/ledger"
	"github.com/finbase/portfolio-ledger/internal/models"
	"github.com/finbase/portfolio-ledger/internal/redis"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db          *database.DB
	reconciler  *ledger.Reconciler
	producer    *kafka.Producer
	redis       *redis.Client
	snapshotTTL time.Duration
}

// NewHandler creates a new Handler
func NewHandler(db *database.DB, reconciler *ledger.Reconciler, producer *kafka.Producer, redisClient *redis.Client, snapshotTTL time.Duration) *Handler {
	return &Handler{
		db:          db,
		reconciler:  reconciler,
		producer:    producer,
		redis:       redisClient,
		snapshotTTL: snapshotTTL,
	}
}

// transactionRequest is the wire shape of a ledger entry. Date is a plain
// calendar day; price may be null.
type transactionRequest struct {
	Type     string              `json:"type"`
	Ticker   string              `json:"ticker"`
	Date     string              `json:"date"`
	Quantity decimal.Decimal     `json:"quantity"`
	Price    decimal.NullDecimal `json:"price"`
	Amount   decimal.Decimal     `json:"amount"`
	Notes    string              `json:"notes"`
}

func (req *transactionRequest) toTransaction(portfolioID, id string) (*models.Transaction, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, err
	}
	tx := &models.Transaction{
		ID:          id,
		PortfolioID: portfolioID,
		Type:        req.Type,
		Ticker:      req.Ticker,
		Date:        date,
		Quantity:    req.Quantity,
		Price:       req.Price,
		Amount:      req.Amount,
		Notes:       req.Notes,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// CreatePortfolio handles POST /portfolios
func (h *Handler) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	portfolio := &models.Portfolio{
		ID:   uuid.NewString(),
		Name: req.Name,
	}
	if err := h.db.CreatePortfolio(portfolio); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, portfolio)
}

// GetPortfolio handles GET /portfolios/{id}
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolio, err := h.db.GetPortfolio(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, portfolio)
}

// CreateTransaction handles POST /portfolios/{id}/transactions. The
// transaction is written first, then a full reconcile pass runs before the
// response: a success means the materialized positions and cash balance
// already reflect the new entry.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := req.toTransaction(portfolioID, uuid.NewString())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.db.CreateTransaction(tx); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.producer != nil {
		if err := h.producer.PublishTransactionRecorded(r.Context(), tx); err != nil {
			log.Printf("Failed to publish transaction event: %v", err)
		}
	}

	if err := h.afterLedgerMutation(r.Context(), portfolioID); err != nil {
		// The transaction is durable; only the materialized view is stale.
		http.Error(w, "transaction recorded but reconciliation failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusCreated, tx)
}

// ListTransactions handles GET /portfolios/{id}/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.db.ListTransactions(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	respondJSON(w, http.StatusOK, txs)
}

// GetTransaction handles GET /portfolios/{id}/transactions/{txID}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tx, err := h.db.GetTransaction(vars["id"], vars["txID"])
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

// UpdateTransaction handles PUT /portfolios/{id}/transactions/{txID}. The
// edit replaces every field; the reducer re-derives from scratch, so no
// delta tracking is needed.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	portfolioID := vars["id"]

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := req.toTransaction(portfolioID, vars["txID"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.db.UpdateTransaction(tx); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	if err := h.afterLedgerMutation(r.Context(), portfolioID); err != nil {
		http.Error(w, "transaction updated but reconciliation failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, tx)
}

// DeleteTransaction handles DELETE /portfolios/{id}/transactions/{txID}
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	portfolioID := vars["id"]

	if err := h.db.DeleteTransaction(portfolioID, vars["txID"]); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	if err := h.afterLedgerMutation(r.Context(), portfolioID); err != nil {
		http.Error(w, "transaction deleted but reconciliation failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetPositions handles GET /portfolios/{id}/positions, serving the cached
// snapshot when available.
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]

	if h.redis != nil {
		snap, err := h.redis.GetSnapshot(r.Context(), portfolioID)
		if err == nil {
			respondJSON(w, http.StatusOK, snap)
			return
		}
		if !redis.IsCacheMiss(err) {
			log.Printf("Snapshot cache read failed: %v", err)
		}
	}

	snap, err := h.buildSnapshot(portfolioID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	if h.redis != nil {
		if err := h.redis.SetSnapshot(r.Context(), snap, h.snapshotTTL); err != nil {
			log.Printf("Snapshot cache write failed: %v", err)
		}
	}

	respondJSON(w, http.StatusOK, snap)
}

// UpdatePositionAnnotations handles PATCH /portfolios/{id}/positions/{ticker}.
// Only the sticky user-owned fields can be edited here; the derived fields
// belong to the reconciler.
func (h *Handler) UpdatePositionAnnotations(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	portfolioID := vars["id"]
	ticker := vars["ticker"]

	var ann models.PositionAnnotations
	if err := json.NewDecoder(r.Body).Decode(&ann); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if ann.ThesisID == nil && ann.Notes == nil {
		http.Error(w, "nothing to update", http.StatusBadRequest)
		return
	}

	if err := h.db.UpdatePositionAnnotations(portfolioID, ticker, ann); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	h.invalidateSnapshot(r.Context(), portfolioID)

	pos, err := h.db.GetPosition(portfolioID, ticker)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, pos)
}

// Reconcile handles POST /portfolios/{id}/reconcile, an explicit re-run
// for healing a portfolio after a failed pass.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]

	if err := h.afterLedgerMutation(r.Context(), portfolioID); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	snap, err := h.buildSnapshot(portfolioID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// afterLedgerMutation runs the reconcile pass that must follow every
// ledger mutation, then drops the stale cached snapshot and announces the
// pass. Cache and event failures are logged, not surfaced.
func (h *Handler) afterLedgerMutation(ctx context.Context, portfolioID string) error {
	if err := h.reconciler.Reconcile(portfolioID); err != nil {
		return err
	}

	h.invalidateSnapshot(ctx, portfolioID)

	if h.producer != nil {
		if err := h.producer.PublishPortfolioReconciled(ctx, portfolioID); err != nil {
			log.Printf("Failed to publish reconcile event: %v", err)
		}
	}
	return nil
}

func (h *Handler) invalidateSnapshot(ctx context.Context, portfolioID string) {
	if h.redis == nil {
		return
	}
	if err := h.redis.InvalidateSnapshot(ctx, portfolioID); err != nil {
		log.Printf("Snapshot cache invalidation failed: %v", err)
	}
}

func (h *Handler) buildSnapshot(portfolioID string) (*models.PortfolioSnapshot, error) {
	portfolio, err := h.db.GetPortfolio(portfolioID)
	if err != nil {
		return nil, err
	}
	positions, err := h.db.ListPositions(portfolioID)
	if err != nil {
		return nil, err
	}
	if positions == nil {
		positions = []*models.Position{}
	}
	return &models.PortfolioSnapshot{
		PortfolioID: portfolioID,
		Positions:   positions,
		CashBalance: portfolio.CashBalance,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  map[string]string{},
	}
	services := health["services"].(map[string]string)
	allHealthy := true

	// Check database
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			services["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			services["postgres"] = "healthy"
		}
	} else {
		services["postgres"] = "not configured"
		allHealthy = false
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			services["redis"] = "unhealthy: " + err.Error()
		} else {
			services["redis"] = "healthy"
		}
	} else {
		services["redis"] = "not configured"
	}

	// Check Kafka producer
	if h.producer != nil {
		services["kafka"] = "configured"
	} else {
		services["kafka"] = "not configured"
	}

	if !allHealthy {
		health["status"] = "degraded"
	}

	respondJSON(w, http.StatusOK, health)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrMalformedTransaction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
