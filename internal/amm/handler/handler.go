// Package handler exposes the AMM pools over HTTP: live pool state, quotes,
// and the swap and zap-in operations.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"greenchain/internal/amm/poolregistry"
	"greenchain/internal/coordinator"
	"greenchain/internal/platform/metrics"
	"greenchain/internal/platform/middleware"
	"greenchain/internal/transport/http/shared"
	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
	"greenchain/pkg/requestcontext"
)

// Coordinator quotes and executes pool trades.
type Coordinator interface {
	QuoteSwap(ctx context.Context, pool, tokenIn domain.Address, amountIn *uint256.Int) (*coordinator.SwapQuote, error)
	QuoteZap(ctx context.Context, pool, token domain.Address, amountIn *uint256.Int) (*coordinator.ZapQuote, error)
	Swap(ctx context.Context, actor, pool, tokenIn domain.Address, amountIn *uint256.Int) (*coordinator.SwapResult, error)
	ZapIn(ctx context.Context, actor, pool, token domain.Address, amountIn *uint256.Int) (*coordinator.ZapResult, error)
}

// Registry reads pool and position state.
type Registry interface {
	Snapshot(ctx context.Context) ([]*poolregistry.View, error)
	View(ctx context.Context, addr domain.Address) (*poolregistry.View, error)
	PositionOf(ctx context.Context, addr, account domain.Address) (*poolregistry.Position, error)
}

// Handler handles pool endpoints.
type Handler struct {
	logger       *slog.Logger
	coordinator  Coordinator
	registry     Registry
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new pool Handler.
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

// Register registers the pool routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	poolRouter := chi.NewRouter()
	poolRouter.Use(middleware.Recovery(h.logger))
	poolRouter.Use(middleware.RequestID)
	poolRouter.Use(middleware.Logger(h.logger))
	poolRouter.Use(middleware.Timeout(30 * time.Second))
	poolRouter.Use(middleware.ContentTypeJSON)
	poolRouter.Use(middleware.LatencyMiddleware(h.metrics))
	poolRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	poolRouter.Get("/", h.handleList)
	poolRouter.Get("/{pool}", h.handleView)
	poolRouter.Get("/{pool}/positions/{account}", h.handlePosition)
	poolRouter.Post("/{pool}/swap/quote", h.handleSwapQuote)
	poolRouter.Post("/{pool}/zap/quote", h.handleZapQuote)
	poolRouter.Post("/{pool}/swap", h.handleSwap)
	poolRouter.Post("/{pool}/zap", h.handleZap)

	r.Mount("/v1/pools", poolRouter)
}

type tradeRequest struct {
	TokenIn  string `json:"token_in"`
	AmountIn string `json:"amount_in"`
}

type viewResponse struct {
	Pool             string `json:"pool"`
	CertificateToken string `json:"certificate_token"`
	Reserve0         string `json:"reserve0"`
	Reserve1         string `json:"reserve1"`
	TotalSupply      string `json:"total_supply"`
	FeeBps           uint64 `json:"fee_bps"`
}

type positionResponse struct {
	Pool     string `json:"pool"`
	Account  string `json:"account"`
	Shares   string `json:"shares"`
	ShareWad string `json:"share_wad"`
	Amount0  string `json:"amount0"`
	Amount1  string `json:"amount1"`
}

func toViewResponse(v *poolregistry.View) viewResponse {
	return viewResponse{
		Pool:             v.Pool.String(),
		CertificateToken: v.CertificateToken.String(),
		Reserve0:         v.Reserve0.Dec(),
		Reserve1:         v.Reserve1.Dec(),
		TotalSupply:      v.TotalSupply.Dec(),
		FeeBps:           v.FeeBps,
	}
}

func toPositionResponse(p *poolregistry.Position) positionResponse {
	return positionResponse{
		Pool:     p.Pool.String(),
		Account:  p.Account.String(),
		Shares:   p.Shares.Dec(),
		ShareWad: p.ShareWad.Dec(),
		Amount0:  p.Amount0.Dec(),
		Amount1:  p.Amount1.Dec(),
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	views, err := h.registry.Snapshot(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	resp := make([]viewResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toViewResponse(v))
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	view, err := h.registry.View(r.Context(), pool)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toViewResponse(view))
}

func (h *Handler) handlePosition(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account address"))
		return
	}
	position, err := h.registry.PositionOf(r.Context(), pool, account)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toPositionResponse(position))
}

func (h *Handler) handleSwapQuote(w http.ResponseWriter, r *http.Request) {
	pool, token, amount, err := tradeParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	quote, err := h.coordinator.QuoteSwap(r.Context(), pool, token, amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"pool":       quote.Pool.String(),
		"token_in":   quote.TokenIn.String(),
		"amount_in":  quote.AmountIn.Dec(),
		"amount_out": quote.AmountOut.Dec(),
		"fee_bps":    quote.FeeBps,
	})
}

func (h *Handler) handleZapQuote(w http.ResponseWriter, r *http.Request) {
	pool, token, amount, err := tradeParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	quote, err := h.coordinator.QuoteZap(r.Context(), pool, token, amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"pool":            quote.Pool.String(),
		"token":           quote.Token.String(),
		"amount_in":       quote.AmountIn.Dec(),
		"swap_portion":    quote.SwapPortion.Dec(),
		"deposit_portion": quote.DepositPortion.Dec(),
		"counter_amount":  quote.CounterAmount.Dec(),
		"fee_bps":         quote.FeeBps,
	})
}

func (h *Handler) handleSwap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Account(ctx)

	pool, token, amount, err := tradeParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	res, err := h.coordinator.Swap(ctx, actor, pool, token, amount)
	if err != nil {
		h.logTradeFailure(ctx, "swap", pool, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"kind":       string(res.Kind),
		"tx":         string(res.Tx),
		"block":      res.Block,
		"amount_out": res.AmountOut.Dec(),
	})
}

func (h *Handler) handleZap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Account(ctx)

	pool, token, amount, err := tradeParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	res, err := h.coordinator.ZapIn(ctx, actor, pool, token, amount)
	if err != nil {
		h.logTradeFailure(ctx, "zap", pool, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"kind":            string(res.Kind),
		"tx":              string(res.Tx),
		"block":           res.Block,
		"swap_portion":    res.SwapPortion.Dec(),
		"deposit_portion": res.DepositPortion.Dec(),
		"position":        toPositionResponse(res.Position),
	})
}

func (h *Handler) logTradeFailure(ctx context.Context, operation string, pool domain.Address, err error) {
	h.logger.WarnContext(ctx, "pool operation failed",
		"operation", operation,
		"pool", pool.Short(),
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}

func poolParam(r *http.Request) (domain.Address, error) {
	pool, err := domain.ParseAddress(chi.URLParam(r, "pool"))
	if err != nil {
		return domain.ZeroAddress, dErrors.New(dErrors.CodeBadRequest, "invalid pool address")
	}
	return pool, nil
}

func tradeParams(r *http.Request) (pool, token domain.Address, amount *uint256.Int, err error) {
	pool, err = poolParam(r)
	if err != nil {
		return domain.ZeroAddress, domain.ZeroAddress, nil, err
	}
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return domain.ZeroAddress, domain.ZeroAddress, nil,
			dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	token, err = domain.ParseAddress(req.TokenIn)
	if err != nil {
		return domain.ZeroAddress, domain.ZeroAddress, nil,
			dErrors.New(dErrors.CodeBadRequest, "invalid input token address")
	}
	if req.AmountIn == "" {
		return domain.ZeroAddress, domain.ZeroAddress, nil,
			dErrors.New(dErrors.CodeBadRequest, "amount_in is required")
	}
	amount, err = uint256.FromDecimal(req.AmountIn)
	if err != nil {
		return domain.ZeroAddress, domain.ZeroAddress, nil,
			dErrors.Newf(dErrors.CodeBadRequest, "invalid amount %q", req.AmountIn)
	}
	return pool, token, amount, nil
}
