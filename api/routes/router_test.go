package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopfeed-backend/internal/catalog"
	"github.com/angelmondragon/shopfeed-backend/internal/orders"
	"github.com/angelmondragon/shopfeed-backend/internal/users"
	pkgAuth "github.com/angelmondragon/shopfeed-backend/pkg/auth"
	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
)

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) {
	return true, nil
}

type stubCatalog struct {
	catalog.Service
}

func (stubCatalog) ListCategories(context.Context) ([]catalog.CategoryDTO, error) {
	return []catalog.CategoryDTO{{ID: 1, Name: "Phones"}}, nil
}

func (stubCatalog) GetShopState(context.Context, int64) (*catalog.ShopState, error) {
	return &catalog.ShopState{Name: "Svyaznoy", State: true}, nil
}

type stubOrders struct {
	orders.Service
}

func (stubOrders) GetBasket(context.Context, int64) (*orders.OrderDTO, error) {
	return nil, nil
}

type stubUsers struct {
	users.Service
}

func (stubUsers) Login(context.Context, string, string) (*users.LoginResult, error) {
	return &users.LoginResult{Token: "token"}, nil
}

type denyingLimiter struct {
	scopes []string
}

func (d *denyingLimiter) FixedWindowAllow(_ context.Context, scope string, _ int64, _ time.Duration) (bool, int64, error) {
	d.scopes = append(d.scopes, scope)
	return false, 99, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		AuthRateLimit: config.AuthRateLimitConfig{
			LoginWindow:     time.Minute,
			LoginIPLimit:    5,
			LoginEmailLimit: 5,
		},
	}
}

func newTestRouter(cfg *config.Config, limiter RateLimiter) http.Handler {
	return NewRouter(Deps{
		Config:   cfg,
		Logger:   logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard}),
		Sessions: stubSessions{},
		Limiter:  limiter,
		Catalog:  stubCatalog{},
		Orders:   stubOrders{},
		Users:    stubUsers{},
	})
}

func buildToken(t *testing.T, cfg *config.Config, userType enums.UserType) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:   5,
		UserType: userType,
		JTI:      "session-5",
	})
	require.NoError(t, err)
	return token
}

func TestPublicCatalogNeedsNoToken(t *testing.T) {
	router := newTestRouter(testConfig(), nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/categories", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `[{"id":1,"name":"Phones"}]`, resp.Body.String())
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	router := newTestRouter(testConfig(), nil)
	for _, target := range []string{"/basket", "/order", "/user/details", "/partner/state", "/results?task_id=x"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, target, nil))

		require.Equal(t, http.StatusForbidden, resp.Code, target)
		var body map[string]any
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, map[string]any{"Status": false, "Error": "Log in required"}, body, target)
	}
}

func TestBasketAcceptsToken(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/basket", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserTypeBuyer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `[]`, resp.Body.String())
}

func TestPartnerRoutesRequireShop(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)

	buyer := httptest.NewRequest(http.MethodGet, "/partner/state", nil)
	buyer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserTypeBuyer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, buyer)
	require.Equal(t, http.StatusForbidden, resp.Code)
	assert.Contains(t, resp.Body.String(), shopsOnlyMessage)

	shop := httptest.NewRequest(http.MethodGet, "/partner/state", nil)
	shop.Header.Set("Authorization", "Token "+buildToken(t, cfg, enums.UserTypeShop))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, shop)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"name":"Svyaznoy","state":true}`, resp.Body.String())
}

func TestLoginIsRateLimited(t *testing.T) {
	limiter := &denyingLimiter{}
	router := newTestRouter(testConfig(), limiter)

	req := httptest.NewRequest(http.MethodPost, "/user/login", strings.NewReader(`{"email":"a@example.com","password":"pw"}`))
	req.RemoteAddr = "10.0.0.1:5555"
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.NotEmpty(t, limiter.scopes)
	assert.True(t, strings.HasPrefix(limiter.scopes[0], "login:"))
}

func TestLoginWithoutLimiter(t *testing.T) {
	router := newTestRouter(testConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/user/login", strings.NewReader(`{"email":"a@example.com","password":"pw"}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"Status":true,"Token":"token"}`, resp.Body.String())
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(testConfig(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

type recordingObserver struct {
	routes []string
	codes  []int
}

func (o *recordingObserver) ObserveRequest(_ string, route string, status int, _ time.Duration) {
	o.routes = append(o.routes, route)
	o.codes = append(o.codes, status)
}

func TestRequestsReportRoutePattern(t *testing.T) {
	obs := &recordingObserver{}
	router := NewRouter(Deps{
		Config:   testConfig(),
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Sessions: stubSessions{},
		Observer: obs,
		Catalog:  stubCatalog{},
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/categories", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotEmpty(t, resp.Header().Get("X-Request-Id"))

	assert.Equal(t, []string{"/categories"}, obs.routes)
	assert.Equal(t, []int{http.StatusOK}, obs.codes)
}
