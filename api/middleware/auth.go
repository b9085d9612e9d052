package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/shopfeed-backend/api/responses"
	pkgAuth "github.com/angelmondragon/shopfeed-backend/pkg/auth"
	"github.com/angelmondragon/shopfeed-backend/pkg/auth/session"
	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
)

// Auth validates a bearer token against its server-side session and seeds the
// request context with the caller. Every failure answers 403 "Log in required".
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.ID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
				return
			}

			if verifier != nil {
				ok, err := verifier.HasSession(r.Context(), claims.ID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !ok {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
					return
				}
			}

			ctx := WithUser(r.Context(), claims.UserID, claims.UserType)
			if logg != nil {
				ctx = logg.WithUser(ctx, claims.UserID, claims.UserType.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	if len(raw) > 6 && strings.EqualFold(raw[:6], "token ") {
		return strings.TrimSpace(raw[6:])
	}
	return raw
}
