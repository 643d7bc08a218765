package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	jwttoken "medcourier/internal/jwt_token"
	"medcourier/internal/platform/config"
	platformmetrics "medcourier/internal/platform/metrics"
	"medcourier/pkg/requestcontext"
)

type RouterSuite struct {
	suite.Suite
	cfg    config.Config
	router http.Handler
	tokens *jwttoken.JWTService
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupSuite() {
	cfg, err := config.FromEnv()
	s.Require().NoError(err)
	cfg.Auth.JWTSigningKey = "router-test-key"
	s.cfg = cfg

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := newApplication(cfg, log, newMemoryBackends(), nil)
	s.T().Cleanup(func() { _ = app.security.Close() })

	s.router = newRouter(cfg, log, app, platformmetrics.NewWithRegisterer(prometheus.NewRegistry()), nil)
	s.tokens = jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
}

func (s *RouterSuite) do(method, path, body, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) token(role requestcontext.Role, actorID string) string {
	tok, err := s.tokens.GenerateAccessToken(actorID, role, time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *RouterSuite) TestHealthzIsPublic() {
	rec := s.do(http.MethodGet, "/healthz", "", "")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestDomainRoutesRequireBearerToken() {
	for _, path := range []string{"/shipments", "/drivers/abc", "/shifts/abc/current"} {
		rec := s.do(http.MethodGet, path, "", "")
		s.Equal(http.StatusUnauthorized, rec.Code, path)
	}

	rec := s.do(http.MethodGet, "/shipments", "", "not-a-jwt")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestAdminRegistersDriver() {
	rec := s.do(http.MethodPost, "/drivers", `{"name":"Ana Ruiz","certifications":["un3373"]}`,
		s.token(requestcontext.RoleAdmin, "admin-1"))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.NotEmpty(body["id"])
}

func (s *RouterSuite) TestDriverCannotRegisterDrivers() {
	rec := s.do(http.MethodPost, "/drivers", `{"name":"Ana Ruiz"}`,
		s.token(requestcontext.RoleDriver, "d-1"))
	s.Equal(http.StatusForbidden, rec.Code)
}

func TestHealthHandlerReportsFailingBackends(t *testing.T) {
	h := healthHandler(map[string]healthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["postgres"] != "ok" || body["redis"] != "connection refused" {
		t.Fatalf("unexpected body %v", body)
	}
}
