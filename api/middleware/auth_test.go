package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/shopfeed-backend/pkg/auth"
	"github.com/angelmondragon/shopfeed-backend/pkg/auth/session"
	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(ctx context.Context, accessID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.ok, nil
}

func mintTestToken(t *testing.T, userID int64, userType enums.UserType) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{
		UserID:   userID,
		UserType: userType,
		JTI:      session.NewAccessID(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func assertLoginRequired(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["Status"] != false || body["Error"] != "Log in required" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assertLoginRequired(t, rec)
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assertLoginRequired(t, rec)
}

func TestAuthRejectsRevokedSession(t *testing.T) {
	handler := Auth(testJWT, stubSessionVerifier{ok: false}, nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintTestToken(t, 7, enums.UserTypeBuyer))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assertLoginRequired(t, rec)
}

func TestAuthSessionStoreFailure(t *testing.T) {
	handler := Auth(testJWT, stubSessionVerifier{err: errors.New("redis down")}, nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintTestToken(t, 7, enums.UserTypeBuyer))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	var gotID int64
	var gotType enums.UserType
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = UserIDFromContext(r.Context())
		gotType = UserTypeFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	for _, scheme := range []string{"Bearer ", "Token ", ""} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", scheme+mintTestToken(t, 42, enums.UserTypeShop))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("scheme %q: expected 200 got %d", scheme, rec.Code)
		}
		if gotID != 42 || gotType != enums.UserTypeShop {
			t.Fatalf("unexpected identity %d %s", gotID, gotType)
		}
	}
}

func TestRequireUserType(t *testing.T) {
	handler := RequireUserType("Shops only", nil, enums.UserTypeShop)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/partner/state", nil)
	req = req.WithContext(WithUser(req.Context(), 1, enums.UserTypeBuyer))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["Error"] != "Shops only" {
		t.Fatalf("unexpected body %v", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/partner/state", nil)
	req = req.WithContext(WithUser(req.Context(), 1, enums.UserTypeShop))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}
