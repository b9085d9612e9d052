package catalog

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"github.com/angelmondragon/shopfeed-backend/pkg/redis"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu      sync.Mutex
	values  map[string]string
	sets    int
	failGet bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", errors.New("connection refused")
	}
	v, ok := m.values[key]
	if !ok {
		return "", redis.ErrNil
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	case string:
		m.values[key] = v
	}
	m.sets++
	return nil
}

func (m *memoryCache) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := strconv.ParseInt(m.values[key], 10, 64)
	n++
	m.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *memoryCache) CacheKey(parts ...string) string {
	return "sf:cache:" + strings.Join(parts, ":")
}

type countingRepo struct {
	Repository
	listShops int
}

func (c *countingRepo) ListShops(ctx context.Context, acceptingOnly bool) ([]models.Shop, error) {
	c.listShops++
	return c.Repository.ListShops(ctx, acceptingOnly)
}

func newTestService(t *testing.T, cache CacheStore) (Service, *countingRepo, Repository) {
	t.Helper()
	conn := dbtest.Open(t)
	base := NewRepository(conn)
	repo := &countingRepo{Repository: base}
	svc, err := NewService(ServiceParams{
		Repository: repo,
		Cache:      cache,
		Config:     config.CatalogConfig{ShopsCacheTTL: time.Hour, CategoriesCacheTTL: time.Hour, ListingsCacheTTL: time.Hour},
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)

	owner := seedPartner(t, conn, "partner@example.com")
	_, err = base.UpsertShop(context.Background(), owner.ID, "Shop", nil)
	require.NoError(t, err)
	return svc, repo, base
}

func TestListShopsServedFromCacheUntilStateChanges(t *testing.T) {
	cache := newMemoryCache()
	svc, repo, base := newTestService(t, cache)
	ctx := context.Background()

	shops, err := svc.ListShops(ctx)
	require.NoError(t, err)
	require.Len(t, shops, 1)
	_, err = svc.ListShops(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.listShops)

	shop, err := base.ListShops(ctx, false)
	require.NoError(t, err)
	require.NoError(t, svc.SetShopState(ctx, shop[0].UserID, false))

	shops, err = svc.ListShops(ctx)
	require.NoError(t, err)
	require.Empty(t, shops)
	require.Equal(t, 2, repo.listShops)
}

func TestCacheFailuresFallThroughToDatabase(t *testing.T) {
	cache := newMemoryCache()
	cache.failGet = true
	svc, repo, _ := newTestService(t, cache)

	shops, err := svc.ListShops(context.Background())
	require.NoError(t, err)
	require.Len(t, shops, 1)
	require.Equal(t, 1, repo.listShops)
	require.Zero(t, cache.sets)
}

func TestServiceWithoutCacheReadsDatabase(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.ListShops(ctx)
	require.NoError(t, err)
	_, err = svc.ListShops(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.listShops)
	svc.InvalidateCache(ctx)
}

func TestShopStateRequiresShop(t *testing.T) {
	svc, _, base := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.GetShopState(ctx, 999)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.True(t, pkgerrors.IsCode(svc.SetShopState(ctx, 999, true), pkgerrors.CodeNotFound))

	shops, err := base.ListShops(ctx, false)
	require.NoError(t, err)
	state, err := svc.GetShopState(ctx, shops[0].UserID)
	require.NoError(t, err)
	require.Equal(t, ShopState{Name: "Shop", State: true}, *state)
}

func TestExportRendersLiveCatalog(t *testing.T) {
	svc, _, base := newTestService(t, nil)
	ctx := context.Background()
	shops, err := base.ListShops(ctx, false)
	require.NoError(t, err)
	shop := shops[0]

	_, err = base.UpsertCategory(ctx, shop.ID, 5, "Phones")
	require.NoError(t, err)
	listing := seedListing(t, base, shop.ID, 5, 42, "iPhone", 1000)
	param, err := base.UpsertParameter(ctx, "color")
	require.NoError(t, err)
	require.NoError(t, base.CreateListingParameter(ctx, listing.ID, param.ID, "black"))

	doc, err := svc.Export(ctx, shop.UserID)
	require.NoError(t, err)
	require.Equal(t, "Shop", doc.Shop)
	require.Equal(t, []DocumentCategory{{ID: 5, Name: "Phones"}}, doc.Categories)
	require.Equal(t, []DocumentGood{{
		ID:         42,
		Category:   5,
		Name:       "iPhone",
		Price:      1000,
		PriceRRC:   1010,
		Quantity:   5,
		Parameters: map[string]string{"color": "black"},
	}}, doc.Goods)
}

func TestExportHandlerDecodesPayload(t *testing.T) {
	svc, _, base := newTestService(t, nil)
	ctx := context.Background()
	shops, err := base.ListShops(ctx, false)
	require.NoError(t, err)

	task := &models.Task{Payload: []byte(`{"user_id":` + strconv.FormatInt(shops[0].UserID, 10) + `}`)}
	out, err := ExportHandler(svc).Handle(ctx, task)
	require.NoError(t, err)
	require.Equal(t, "Shop", out.(*Document).Shop)

	_, err = ExportHandler(svc).Handle(ctx, &models.Task{Payload: []byte(`{}`)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
