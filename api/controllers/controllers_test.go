package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/api/middleware"
	"github.com/angelmondragon/orderledger/internal/pricing"
	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/enums"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}

func TestHealthLive(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthLive(testConfig()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "test", resp.Header().Get("X-OrderLedger-Env"))
}

func TestHealthReadyReportsFailedDependencies(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	resp := httptest.NewRecorder()
	HealthReady(testConfig(), nil, Dependency{Name: "db", Pinger: ok}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	HealthReady(testConfig(), nil, Dependency{Name: "db", Pinger: ok}, Dependency{Name: "redis", Pinger: down}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.Contains(t, resp.Body.String(), "redis")
}

type stubQuoter struct {
	lines  []pricing.CartLine
	coupon string
}

func (s *stubQuoter) Quote(_ context.Context, lines []pricing.CartLine, coupon string) (*pricing.Quote, error) {
	s.lines = lines
	s.coupon = coupon
	return &pricing.Quote{SubtotalCents: 20000, DiscountCents: 2000, TotalCents: 18000}, nil
}

func TestCheckoutQuote(t *testing.T) {
	svc := &stubQuoter{}
	body := `{"lines":[{"product_id":"` + uuid.NewString() + `","quantity":2}],"coupon_code":"SAVE10"}`
	req := httptest.NewRequest(http.MethodPost, "/checkout/quote", strings.NewReader(body))
	req = req.WithContext(middleware.WithActor(req.Context(), uuid.New(), enums.ActorRoleBuyer))

	resp := httptest.NewRecorder()
	CheckoutQuote(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"total_cents":18000`)
	require.Equal(t, "SAVE10", svc.coupon)
	require.Len(t, svc.lines, 1)
}

func TestCheckoutQuoteRequiresIdentity(t *testing.T) {
	resp := httptest.NewRecorder()
	CheckoutQuote(&stubQuoter{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/checkout/quote", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}
