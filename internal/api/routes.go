package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check and metrics
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Portfolio routes
	api.HandleFunc("/portfolios", handler.CreatePortfolio).Methods("POST")
	api.HandleFunc("/portfolios/{id}", handler.GetPortfolio).Methods("GET")
	api.HandleFunc("/portfolios/{id}/reconcile", handler.Reconcile).Methods("POST")

	// Ledger routes; every mutation triggers a reconcile pass
	api.HandleFunc("/portfolios/{id}/transactions", handler.CreateTransaction).Methods("POST")
	api.HandleFunc("/portfolios/{id}/transactions", handler.ListTransactions).Methods("GET")
	api.HandleFunc("/portfolios/{id}/transactions/{txID}", handler.GetTransaction).Methods("GET")
	api.HandleFunc("/portfolios/{id}/transactions/{txID}", handler.UpdateTransaction).Methods("PUT")
	api.HandleFunc("/portfolios/{id}/transactions/{txID}", handler.DeleteTransaction).Methods("DELETE")

	// Position routes (read-only except sticky annotations)
	api.HandleFunc("/portfolios/{id}/positions", handler.GetPositions).Methods("GET")
	api.HandleFunc("/portfolios/{id}/positions/{ticker}", handler.UpdatePositionAnnotations).Methods("PATCH")

	return r
}
