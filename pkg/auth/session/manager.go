// Package session keeps one Redis entry per issued access token so a token
// stops working as soon as its entry is gone.
package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	pkgredis "github.com/angelmondragon/shopfeed-backend/pkg/redis"
	"github.com/google/uuid"
)

var ErrBlankAccessID = errors.New("access id is required")

type store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker is what the auth middleware needs.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type Manager struct {
	store store
	ttl   time.Duration
}

// NewManager ties session lifetime to the access token TTL.
func NewManager(client *pkgredis.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.TTL() <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &Manager{store: client, ttl: cfg.TTL()}, nil
}

func (m *Manager) key(accessID string) (string, error) {
	accessID = strings.TrimSpace(accessID)
	if accessID == "" {
		return "", ErrBlankAccessID
	}
	return m.store.AccessSessionKey(accessID), nil
}

// Create stores the owning user id under the token's jti.
func (m *Manager) Create(ctx context.Context, accessID string, userID int64) error {
	if userID <= 0 {
		return errors.New("user id is required")
	}
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, strconv.FormatInt(userID, 10), m.ttl)
}

func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	key, err := m.key(accessID)
	if err != nil {
		return false, err
	}
	_, err = m.store.Get(ctx, key)
	switch {
	case errors.Is(err, pkgredis.ErrNil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// NewAccessID returns the jti for a token about to be minted.
func NewAccessID() string {
	return uuid.NewString()
}
