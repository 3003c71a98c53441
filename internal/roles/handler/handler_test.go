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
	adminAddr    = domain.Address("0x0000000000000000000000000000000000000004")
	userAddr     = domain.Address("0x0000000000000000000000000000000000000006")
)

type RoleHandlerSuite struct {
	suite.Suite
	ledger *ledgertest.Ledger
	jwt    *jwttoken.JWTService
	router http.Handler
}

func TestRoleHandlerSuite(t *testing.T) {
	suite.Run(t, new(RoleHandlerSuite))
}

func (s *RoleHandlerSuite) SetupTest() {
	s.ledger = ledgertest.New(fungibleAddr)
	s.ledger.SeedRole(ledgertest.ScopeCertificate, ledgertest.RoleAdmin, adminAddr)
	s.ledger.SeedRole(ledgertest.ScopeFungible, ledgertest.RoleAdmin, adminAddr)

	clients := s.ledger.Clients()
	authority := rolesvc.NewAuthority(clients.Certificates, clients.Fungible)
	registry := lifecyclesvc.NewRegistry(lifecyclestore.NewInMemory(), authority, clients.Certificates)
	pools := poolregistry.New(clients.Factory, clients.Pools)
	coord := coordinator.New(clients, registry, authority, pools)

	s.jwt = jwttoken.NewJWTService("test-signing-key", "greenchain", "greenchain-api")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := New(coord, authority, logger, nil, jwttoken.NewJWTServiceAdapter(s.jwt))
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *RoleHandlerSuite) request(method, path string, as domain.Address, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	token, err := s.jwt.GenerateAccessToken(as, time.Hour)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RoleHandlerSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func grantBody(holder domain.Address, role string, grant bool) string {
	payload, _ := json.Marshal(map[string]any{
		"holder": holder.String(),
		"role":   role,
		"grant":  grant,
	})
	return string(payload)
}

func (s *RoleHandlerSuite) TestAdminGrantsRole() {
	w := s.request(http.MethodPost, "/v1/roles", adminAddr, grantBody(userAddr, "ISSUER_ROLE", true))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.NotEmpty(s.decode(w)["tx"])

	check := s.request(http.MethodGet, "/v1/roles/"+userAddr.String()+"/ISSUER_ROLE", userAddr, "")
	s.Require().Equal(http.StatusOK, check.Code)
	s.Equal(true, s.decode(check)["held"])
}

func (s *RoleHandlerSuite) TestNonAdminCannotGrant() {
	w := s.request(http.MethodPost, "/v1/roles", userAddr, grantBody(userAddr, "ISSUER_ROLE", true))
	s.Require().Equal(http.StatusForbidden, w.Code)
	s.Equal("unauthorized", s.decode(w)["error"])
}

func (s *RoleHandlerSuite) TestUnknownRoleIsBadRequest() {
	w := s.request(http.MethodPost, "/v1/roles", adminAddr, grantBody(userAddr, "JANITOR_ROLE", true))
	s.Require().Equal(http.StatusBadRequest, w.Code)
}

func (s *RoleHandlerSuite) TestHistoryRecordsChanges() {
	s.Require().Equal(http.StatusOK,
		s.request(http.MethodPost, "/v1/roles", adminAddr, grantBody(userAddr, "BRIDGE_ROLE", true)).Code)
	s.Require().Equal(http.StatusOK,
		s.request(http.MethodPost, "/v1/roles", adminAddr, grantBody(userAddr, "BRIDGE_ROLE", false)).Code)

	w := s.request(http.MethodGet, "/v1/roles/"+userAddr.String()+"/history", userAddr, "")
	s.Require().Equal(http.StatusOK, w.Code)
	var grants []map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &grants))
	s.Require().Len(grants, 2)
	s.Equal(true, grants[0]["active"])
	s.Equal(false, grants[1]["active"])
	s.Equal(adminAddr.String(), grants[0]["changed_by"])
}
