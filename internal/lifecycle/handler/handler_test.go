package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
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
	issuerAddr   = domain.Address("0x0000000000000000000000000000000000000001")
	approverAddr = domain.Address("0x0000000000000000000000000000000000000002")
	userAddr     = domain.Address("0x0000000000000000000000000000000000000006")
)

type CreditHandlerSuite struct {
	suite.Suite
	ledger *ledgertest.Ledger
	jwt    *jwttoken.JWTService
	router http.Handler
}

func TestCreditHandlerSuite(t *testing.T) {
	suite.Run(t, new(CreditHandlerSuite))
}

func (s *CreditHandlerSuite) SetupTest() {
	s.ledger = ledgertest.New(fungibleAddr)
	s.ledger.SeedRole(ledgertest.ScopeCertificate, ledgertest.RoleIssuer, issuerAddr)
	s.ledger.SeedRole(ledgertest.ScopeCertificate, ledgertest.RoleApprover, approverAddr)

	clients := s.ledger.Clients()
	authority := rolesvc.NewAuthority(clients.Certificates, clients.Fungible)
	registry := lifecyclesvc.NewRegistry(lifecyclestore.NewInMemory(), authority, clients.Certificates)
	pools := poolregistry.New(clients.Factory, clients.Pools)
	coord := coordinator.New(clients, registry, authority, pools)

	s.jwt = jwttoken.NewJWTService("test-signing-key", "greenchain", "greenchain-api")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := New(coord, registry, logger, nil, jwttoken.NewJWTServiceAdapter(s.jwt))
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *CreditHandlerSuite) request(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *CreditHandlerSuite) tokenFor(account domain.Address) string {
	token, err := s.jwt.GenerateAccessToken(account, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *CreditHandlerSuite) mintBody(id uint64) string {
	payload, err := json.Marshal(map[string]any{
		"id":           id,
		"to":           userAddr.String(),
		"project_name": "Mangrove Restoration",
		"standard":     "VCS",
		"vintage_year": 2024,
		"location":     "Mekong Delta",
		"amount":       "100",
	})
	s.Require().NoError(err)
	return string(payload)
}

func (s *CreditHandlerSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (s *CreditHandlerSuite) TestMint() {
	w := s.request(http.MethodPost, "/v1/credits", s.tokenFor(issuerAddr), s.mintBody(1))
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	resp := s.decode(w)
	s.Equal("mint", resp["kind"])
	s.NotEmpty(resp["tx"])

	s.Equal(uint64(100), s.ledger.CertificateBalanceOf(userAddr, 1).Uint64())
}

func (s *CreditHandlerSuite) TestMintRequiresToken() {
	w := s.request(http.MethodPost, "/v1/credits", "", s.mintBody(1))
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *CreditHandlerSuite) TestMintWithoutIssuerRoleIsForbidden() {
	w := s.request(http.MethodPost, "/v1/credits", s.tokenFor(userAddr), s.mintBody(1))
	s.Require().Equal(http.StatusForbidden, w.Code)
	s.Equal("unauthorized", s.decode(w)["error"])
}

func (s *CreditHandlerSuite) TestMintRejectsMalformedBody() {
	w := s.request(http.MethodPost, "/v1/credits", s.tokenFor(issuerAddr), "{not json")
	s.Require().Equal(http.StatusBadRequest, w.Code)
	s.Equal("bad_request", s.decode(w)["error"])
}

func (s *CreditHandlerSuite) TestApproveIsIdempotent() {
	s.Require().Equal(http.StatusCreated,
		s.request(http.MethodPost, "/v1/credits", s.tokenFor(issuerAddr), s.mintBody(1)).Code)

	first := s.request(http.MethodPost, "/v1/credits/1/approve", s.tokenFor(approverAddr), "{}")
	s.Require().Equal(http.StatusOK, first.Code, first.Body.String())
	s.Nil(s.decode(first)["already_done"])

	second := s.request(http.MethodPost, "/v1/credits/1/approve", s.tokenFor(approverAddr), "{}")
	s.Require().Equal(http.StatusOK, second.Code)
	s.Equal(true, s.decode(second)["already_done"])
}

func (s *CreditHandlerSuite) TestBridgeUnapprovedIsConflict() {
	s.ledger.SeedRole(ledgertest.ScopeFungible, ledgertest.RoleBridge, userAddr)
	s.Require().Equal(http.StatusCreated,
		s.request(http.MethodPost, "/v1/credits", s.tokenFor(issuerAddr), s.mintBody(1)).Code)

	w := s.request(http.MethodPost, "/v1/credits/1/bridge", s.tokenFor(userAddr), `{"amount":"50"}`)
	s.Require().Equal(http.StatusConflict, w.Code, w.Body.String())
	s.Equal("invalid_state", s.decode(w)["error"])
}

func (s *CreditHandlerSuite) TestGetAndList() {
	s.Require().Equal(http.StatusCreated,
		s.request(http.MethodPost, "/v1/credits", s.tokenFor(issuerAddr), s.mintBody(1)).Code)

	get := s.request(http.MethodGet, "/v1/credits/1", s.tokenFor(userAddr), "")
	s.Require().Equal(http.StatusOK, get.Code)
	resp := s.decode(get)
	s.Equal("minted", resp["state"])
	s.Equal("100", resp["amount"])
	s.Equal(userAddr.String(), resp["owner"])

	list := s.request(http.MethodGet, "/v1/credits", s.tokenFor(userAddr), "")
	s.Require().Equal(http.StatusOK, list.Code)
	var items []map[string]any
	s.Require().NoError(json.Unmarshal(list.Body.Bytes(), &items))
	s.Len(items, 1)
}

func (s *CreditHandlerSuite) TestGetUnknownCertificateIsNotFound() {
	w := s.request(http.MethodGet, "/v1/credits/42", s.tokenFor(userAddr), "")
	s.Require().Equal(http.StatusNotFound, w.Code)
	s.Equal("not_found", s.decode(w)["error"])
}
