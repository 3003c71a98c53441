package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/suite"

	"greenchain/internal/amm/poolregistry"
	"greenchain/internal/coordinator"
	jwttoken "greenchain/internal/jwt_token"
	"greenchain/internal/ledger/ledgertest"
	lifecyclesvc "greenchain/internal/lifecycle/service"
	lifecyclestore "greenchain/internal/lifecycle/store"
	rolesvc "greenchain/internal/roles/service"
	"greenchain/pkg/domain"
)

const (
	fungibleAddr = domain.Address("0x00000000000000000000000000000000000000f0")
	tokenA       = domain.Address("0x00000000000000000000000000000000000000a1")
	poolAddr     = domain.Address("0x00000000000000000000000000000000000000aa")
	traderAddr   = domain.Address("0x0000000000000000000000000000000000000005")
)

type PoolHandlerSuite struct {
	suite.Suite
	ledger *ledgertest.Ledger
	jwt    *jwttoken.JWTService
	router http.Handler
}

func TestPoolHandlerSuite(t *testing.T) {
	suite.Run(t, new(PoolHandlerSuite))
}

func (s *PoolHandlerSuite) SetupTest() {
	s.ledger = ledgertest.New(fungibleAddr)
	s.ledger.CreatePool(poolAddr, tokenA, fungibleAddr,
		uint256.NewInt(1000), uint256.NewInt(1000), 30)
	s.ledger.SeedBalance(fungibleAddr, traderAddr, uint256.NewInt(100))

	clients := s.ledger.Clients()
	authority := rolesvc.NewAuthority(clients.Certificates, clients.Fungible)
	registry := lifecyclesvc.NewRegistry(lifecyclestore.NewInMemory(), authority, clients.Certificates)
	pools := poolregistry.New(clients.Factory, clients.Pools)
	s.Require().NoError(pools.Refresh(context.Background()))
	coord := coordinator.New(clients, registry, authority, pools)

	s.jwt = jwttoken.NewJWTService("test-signing-key", "greenchain", "greenchain-api")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := New(coord, pools, logger, nil, jwttoken.NewJWTServiceAdapter(s.jwt))
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *PoolHandlerSuite) request(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	token, err := s.jwt.GenerateAccessToken(traderAddr, time.Hour)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *PoolHandlerSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (s *PoolHandlerSuite) swapBody(amount string) string {
	return `{"token_in":"` + fungibleAddr.String() + `","amount_in":"` + amount + `"}`
}

func (s *PoolHandlerSuite) TestListAndView() {
	list := s.request(http.MethodGet, "/v1/pools", "")
	s.Require().Equal(http.StatusOK, list.Code)
	var views []map[string]any
	s.Require().NoError(json.Unmarshal(list.Body.Bytes(), &views))
	s.Require().Len(views, 1)
	s.Equal(poolAddr.String(), views[0]["pool"])

	view := s.request(http.MethodGet, "/v1/pools/"+poolAddr.String(), "")
	s.Require().Equal(http.StatusOK, view.Code)
	resp := s.decode(view)
	s.Equal("1000", resp["reserve0"])
	s.Equal("1000", resp["reserve1"])
	s.Equal(float64(30), resp["fee_bps"])
}

func (s *PoolHandlerSuite) TestSwapQuote() {
	w := s.request(http.MethodPost, "/v1/pools/"+poolAddr.String()+"/swap/quote", s.swapBody("100"))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("90", s.decode(w)["amount_out"])
}

func (s *PoolHandlerSuite) TestSwapExecutes() {
	w := s.request(http.MethodPost, "/v1/pools/"+poolAddr.String()+"/swap", s.swapBody("100"))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	resp := s.decode(w)
	s.Equal("90", resp["amount_out"])
	s.NotEmpty(resp["tx"])

	s.Equal(uint64(90), s.ledger.TokenBalanceOf(tokenA, traderAddr).Uint64())
	s.Equal(uint64(0), s.ledger.FungibleBalanceOf(traderAddr).Uint64())
}

func (s *PoolHandlerSuite) TestSwapUnknownPoolIsNotFound() {
	unknown := domain.Address("0x00000000000000000000000000000000000000bb")
	w := s.request(http.MethodPost, "/v1/pools/"+unknown.String()+"/swap/quote", s.swapBody("100"))
	s.Require().Equal(http.StatusNotFound, w.Code)
	s.Equal("not_found", s.decode(w)["error"])
}

func (s *PoolHandlerSuite) TestSwapRejectsForeignToken() {
	w := s.request(http.MethodPost, "/v1/pools/"+poolAddr.String()+"/swap/quote",
		`{"token_in":"0x00000000000000000000000000000000000000cc","amount_in":"100"}`)
	s.Require().Equal(http.StatusBadRequest, w.Code)
	s.Equal("bad_request", s.decode(w)["error"])
}

func (s *PoolHandlerSuite) TestPositionOfStranger() {
	w := s.request(http.MethodGet,
		"/v1/pools/"+poolAddr.String()+"/positions/"+traderAddr.String(), "")
	s.Require().Equal(http.StatusOK, w.Code)
	resp := s.decode(w)
	s.Equal("0", resp["shares"])
	s.Equal("0", resp["share_wad"])
}
