// Package handler exposes the certificate lifecycle over HTTP. Write
// endpoints delegate to the transaction coordinator; reads come from the
// lifecycle registry's mirror.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"greenchain/internal/coordinator"
	"greenchain/internal/ledger"
	"greenchain/internal/lifecycle/models"
	"greenchain/internal/platform/metrics"
	"greenchain/internal/platform/middleware"
	"greenchain/internal/transport/http/shared"
	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
	"greenchain/pkg/requestcontext"
)

// Coordinator defines the lifecycle operations the handler submits.
type Coordinator interface {
	MintCertificate(ctx context.Context, actor domain.Address, params ledger.MintParams) (*coordinator.Result, error)
	ApproveCertificate(ctx context.Context, actor domain.Address, id domain.CertificateID) (*coordinator.Result, error)
	RetireCertificate(ctx context.Context, actor domain.Address, id domain.CertificateID) (*coordinator.Result, error)
	BridgeMint(ctx context.Context, actor, to domain.Address, id domain.CertificateID, amount *uint256.Int) (*coordinator.Result, error)
}

// Registry defines the read side.
type Registry interface {
	Get(ctx context.Context, id domain.CertificateID) (*models.CreditUnit, error)
	List(ctx context.Context) ([]*models.CreditUnit, error)
	StateOf(ctx context.Context, id domain.CertificateID) (models.State, error)
}

// Handler handles certificate endpoints.
type Handler struct {
	logger       *slog.Logger
	coordinator  Coordinator
	registry     Registry
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new certificate Handler.
func New(
	coord Coordinator,
	registry Registry,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		coordinator:  coord,
		registry:     registry,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the certificate routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	creditRouter := chi.NewRouter()
	creditRouter.Use(middleware.Recovery(h.logger))
	creditRouter.Use(middleware.RequestID)
	creditRouter.Use(middleware.Logger(h.logger))
	creditRouter.Use(middleware.Timeout(30 * time.Second))
	creditRouter.Use(middleware.ContentTypeJSON)
	creditRouter.Use(middleware.LatencyMiddleware(h.metrics))
	creditRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	creditRouter.Post("/", h.handleMint)
	creditRouter.Get("/", h.handleList)
	creditRouter.Get("/{id}", h.handleGet)
	creditRouter.Post("/{id}/approve", h.handleApprove)
	creditRouter.Post("/{id}/retire", h.handleRetire)
	creditRouter.Post("/{id}/bridge", h.handleBridge)

	r.Mount("/v1/credits", creditRouter)
}

type mintRequest struct {
	ID          uint64 `json:"id"`
	To          string `json:"to"`
	ProjectName string `json:"project_name"`
	Standard    string `json:"standard"`
	VintageYear int    `json:"vintage_year"`
	Location    string `json:"location"`
	TokenURI    string `json:"token_uri"`
	Amount      string `json:"amount"`
}

type bridgeRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type resultResponse struct {
	Kind        string `json:"kind"`
	Tx          string `json:"tx,omitempty"`
	Block       uint64 `json:"block,omitempty"`
	AlreadyDone bool   `json:"already_done,omitempty"`
}

type creditResponse struct {
	ID          uint64 `json:"id"`
	Owner       string `json:"owner"`
	ProjectName string `json:"project_name"`
	Standard    string `json:"standard"`
	VintageYear int    `json:"vintage_year"`
	Location    string `json:"location,omitempty"`
	TokenURI    string `json:"token_uri,omitempty"`
	Amount      string `json:"amount"`
	Bridged     string `json:"bridged"`
	State       string `json:"state"`
	MintedAt    string `json:"minted_at"`
	ApprovedAt  string `json:"approved_at,omitempty"`
	RetiredAt   string `json:"retired_at,omitempty"`
}

func toResultResponse(res *coordinator.Result) resultResponse {
	return resultResponse{
		Kind:        string(res.Kind),
		Tx:          string(res.Tx),
		Block:       res.Block,
		AlreadyDone: res.AlreadyDone,
	}
}

func toCreditResponse(unit *models.CreditUnit) creditResponse {
	resp := creditResponse{
		ID:          uint64(unit.ID),
		Owner:       unit.Owner.String(),
		ProjectName: unit.ProjectName,
		Standard:    unit.Standard,
		VintageYear: unit.VintageYear,
		Location:    unit.Location,
		TokenURI:    unit.TokenURI,
		Amount:      unit.Amount.Dec(),
		Bridged:     unit.Bridged.Dec(),
		State:       string(unit.State),
		MintedAt:    unit.MintedAt.UTC().Format(time.RFC3339),
	}
	if !unit.ApprovedAt.IsZero() {
		resp.ApprovedAt = unit.ApprovedAt.UTC().Format(time.RFC3339)
	}
	if !unit.RetiredAt.IsZero() {
		resp.RetiredAt = unit.RetiredAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Account(ctx)

	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	to, err := domain.ParseAddress(req.To)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid recipient address"))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	res, err := h.coordinator.MintCertificate(ctx, actor, ledger.MintParams{
		ID:          domain.CertificateID(req.ID),
		To:          to,
		ProjectName: req.ProjectName,
		Standard:    req.Standard,
		VintageYear: req.VintageYear,
		Location:    req.Location,
		TokenURI:    req.TokenURI,
		Amount:      amount,
	})
	if err != nil {
		h.logOperationFailure(ctx, "mint", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toResultResponse(res))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "approve", h.coordinator.ApproveCertificate)
}

func (h *Handler) handleRetire(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "retire", h.coordinator.RetireCertificate)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, name string,
	op func(context.Context, domain.Address, domain.CertificateID) (*coordinator.Result, error)) {
	ctx := r.Context()
	actor := requestcontext.Account(ctx)

	id, err := certificateID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	res, err := op(ctx, actor, id)
	if err != nil {
		h.logOperationFailure(ctx, name, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResultResponse(res))
}

func (h *Handler) handleBridge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Account(ctx)

	id, err := certificateID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req bridgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	to := actor
	if req.To != "" {
		to, err = domain.ParseAddress(req.To)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid recipient address"))
			return
		}
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	res, err := h.coordinator.BridgeMint(ctx, actor, to, id, amount)
	if err != nil {
		h.logOperationFailure(ctx, "bridge", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResultResponse(res))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := certificateID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	unit, err := h.registry.Get(ctx, id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toCreditResponse(unit))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	units, err := h.registry.List(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	resp := make([]creditResponse, 0, len(units))
	for _, unit := range units {
		resp = append(resp, toCreditResponse(unit))
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) logOperationFailure(ctx context.Context, operation string, err error) {
	requestID := middleware.GetRequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "certificate operation failed",
			"operation", operation,
			"request_id", requestID,
			"error", err.Error(),
		)
		return
	}
	h.logger.WarnContext(ctx, "certificate operation rejected",
		"operation", operation,
		"request_id", requestID,
		"error", err.Error(),
	)
}

func certificateID(r *http.Request) (domain.CertificateID, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "invalid certificate id %q", raw)
	}
	return domain.CertificateID(id), nil
}

func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "amount is required")
	}
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid amount %q", s)
	}
	return amount, nil
}
