package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/shopfeed-backend/api/responses"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
)

const maxRateLimitBody = 64 << 10

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// AuthRateLimitPolicy throttles one credential endpoint per client address
// and per submitted email. A zero limit disables that dimension.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

// subject is one counted dimension of a request, e.g. "ip" -> "1.2.3.4".
type subject struct {
	dimension string
	value     string
	limit     int
}

// subjects reads the body when the email dimension is on and puts it back for
// the next handler.
func (p AuthRateLimitPolicy) subjects(r *http.Request) ([]subject, error) {
	var out []subject
	if p.ipLimit > 0 {
		if ip := remoteHost(r); ip != "" {
			out = append(out, subject{"ip", ip, p.ipLimit})
		}
	}
	if p.emailLimit > 0 && r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRateLimitBody))
		if err != nil {
			return nil, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		var payload struct {
			Email string `json:"email"`
		}
		if json.Unmarshal(body, &payload) == nil {
			if email := strings.ToLower(strings.TrimSpace(payload.Email)); email != "" {
				sum := sha256.Sum256([]byte(email))
				out = append(out, subject{"email", hex.EncodeToString(sum[:]), p.emailLimit})
			}
		}
	}
	return out, nil
}

// AuthRateLimit rejects with RATE_LIMIT_EXCEEDED once any dimension of policy
// is over its limit for the current window. The client address is taken from
// RemoteAddr, so chi's RealIP must run first when behind a proxy.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || !policy.enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			subjects, err := policy.subjects(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			for _, s := range subjects {
				scope := policy.name + ":" + s.dimension + ":" + s.value
				allowed, count, err := store.FixedWindowAllow(ctx, scope, int64(s.limit), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy":    policy.name,
							"dimension": s.dimension,
							"attempts":  count,
							"limit":     s.limit,
						}), "auth.rate_limited")
					}
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
