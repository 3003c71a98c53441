// Package handler exposes role administration over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"greenchain/internal/coordinator"
	"greenchain/internal/platform/metrics"
	"greenchain/internal/platform/middleware"
	"greenchain/internal/roles/models"
	"greenchain/internal/transport/http/shared"
	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
	"greenchain/pkg/requestcontext"
)

// Coordinator submits role changes to the ledger.
type Coordinator interface {
	ChangeRole(ctx context.Context, actor, holder domain.Address, kind models.Kind, grant bool) (*coordinator.Result, error)
}

// Authority answers capability questions and keeps the change history.
type Authority interface {
	HasCapability(ctx context.Context, account domain.Address, kind models.Kind) (bool, error)
	History(ctx context.Context, account domain.Address) []models.Grant
}

// Handler handles role endpoints.
type Handler struct {
	logger       *slog.Logger
	coordinator  Coordinator
	authority    Authority
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new role Handler.
func New(
	coord Coordinator,
	authority Authority,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		coordinator:  coord,
		authority:    authority,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the role routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	roleRouter := chi.NewRouter()
	roleRouter.Use(middleware.Recovery(h.logger))
	roleRouter.Use(middleware.RequestID)
	roleRouter.Use(middleware.Logger(h.logger))
	roleRouter.Use(middleware.Timeout(30 * time.Second))
	roleRouter.Use(middleware.ContentTypeJSON)
	roleRouter.Use(middleware.LatencyMiddleware(h.metrics))
	roleRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	roleRouter.Post("/", h.handleChangeRole)
	roleRouter.Get("/{account}/history", h.handleHistory)
	roleRouter.Get("/{account}/{role}", h.handleCheck)

	r.Mount("/v1/roles", roleRouter)
}

type changeRoleRequest struct {
	Holder string `json:"holder"`
	Role   string `json:"role"`
	Grant  bool   `json:"grant"`
}

type grantResponse struct {
	Holder    string `json:"holder"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	ChangedBy string `json:"changed_by"`
	ChangedAt string `json:"changed_at"`
}

func (h *Handler) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Account(ctx)

	var req changeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	holder, err := domain.ParseAddress(req.Holder)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid holder address"))
		return
	}
	kind, err := models.ParseKind(req.Role)
	if err != nil {
		shared.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "unknown role %q", req.Role))
		return
	}

	res, err := h.coordinator.ChangeRole(ctx, actor, holder, kind, req.Grant)
	if err != nil {
		h.logger.WarnContext(ctx, "role change failed",
			"holder", holder.Short(),
			"role", string(kind),
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"kind":  string(res.Kind),
		"tx":    string(res.Tx),
		"block": res.Block,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	grants := h.authority.History(r.Context(), account)
	resp := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		resp = append(resp, grantResponse{
			Holder:    g.Holder.String(),
			Role:      string(g.Kind),
			Active:    g.Active,
			ChangedBy: g.ChangedBy.String(),
			ChangedAt: g.ChangedAt.UTC().Format(time.RFC3339),
		})
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := accountParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	kind, err := models.ParseKind(chi.URLParam(r, "role"))
	if err != nil {
		shared.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "unknown role %q", chi.URLParam(r, "role")))
		return
	}
	held, err := h.authority.HasCapability(ctx, account, kind)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"account": account.String(),
		"role":    string(kind),
		"held":    held,
	})
}

func accountParam(r *http.Request) (domain.Address, error) {
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		return domain.ZeroAddress, dErrors.New(dErrors.CodeBadRequest, "invalid account address")
	}
	return account, nil
}
