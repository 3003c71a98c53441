// Package handler exposes the coordinator's in-flight operations over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"greenchain/internal/coordinator"
	"greenchain/internal/platform/metrics"
	"greenchain/internal/platform/middleware"
	"greenchain/internal/transport/http/shared"
	"greenchain/pkg/domain"
	"greenchain/pkg/requestcontext"
)

// PendingLister reports submitted operations still awaiting confirmation.
type PendingLister interface {
	Pending(account domain.Address) []*coordinator.Pending
}

// Handler handles operation endpoints.
type Handler struct {
	logger       *slog.Logger
	coordinator  PendingLister
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new operations Handler.
func New(coord PendingLister, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		coordinator:  coord,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the operation routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	opsRouter := chi.NewRouter()
	opsRouter.Use(middleware.Recovery(h.logger))
	opsRouter.Use(middleware.RequestID)
	opsRouter.Use(middleware.Logger(h.logger))
	opsRouter.Use(middleware.Timeout(10 * time.Second))
	opsRouter.Use(middleware.LatencyMiddleware(h.metrics))
	opsRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	opsRouter.Get("/pending", h.handlePending)

	r.Mount("/v1/operations", opsRouter)
}

type pendingResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Subject     string `json:"subject"`
	Amount      string `json:"amount,omitempty"`
	Tx          string `json:"tx"`
	SubmittedAt string `json:"submitted_at"`
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	account := requestcontext.Account(r.Context())
	pending := h.coordinator.Pending(account)

	resp := make([]pendingResponse, 0, len(pending))
	for _, p := range pending {
		item := pendingResponse{
			ID:          p.ID.String(),
			Kind:        string(p.Kind),
			Subject:     p.Subject,
			Tx:          string(p.Tx),
			SubmittedAt: p.SubmittedAt.UTC().Format(time.RFC3339),
		}
		if p.Amount != nil {
			item.Amount = p.Amount.Dec()
		}
		resp = append(resp, item)
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}
