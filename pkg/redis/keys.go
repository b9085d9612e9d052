package redis

import "strings"

const defaultNamespace = "sf"

// Keyspace builds colon separated keys under a namespace. The zero value uses "sf".
type Keyspace struct {
	Namespace string
}

func (k Keyspace) CacheKey(parts ...string) string {
	return k.join("cache", parts...)
}

func (k Keyspace) LeaseKey(parts ...string) string {
	return k.join("lease", parts...)
}

func (k Keyspace) RateLimitKey(scope string) string {
	return k.join("rate_limit", scope)
}

// AccessSessionKey is keyed by the access token's jti.
func (k Keyspace) AccessSessionKey(accessID string) string {
	return k.join("session", "access", accessID)
}

func (k Keyspace) PasswordResetKey(token string) string {
	return k.join("password_reset", token)
}

func (k Keyspace) join(kind string, parts ...string) string {
	ns := k.Namespace
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	b.WriteByte(':')
	b.WriteString(kind)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
