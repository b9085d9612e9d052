package ingest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/shopfeed-backend/internal/catalog"
	"github.com/angelmondragon/shopfeed-backend/internal/tasks"
	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/db"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"github.com/angelmondragon/shopfeed-backend/pkg/redis"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memoryLeases struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryLeases() *memoryLeases {
	return &memoryLeases{values: map[string]string{}}
}

func (m *memoryLeases) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLeases) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redis.ErrNil
	}
	return v, nil
}

func (m *memoryLeases) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryLeases) LeaseKey(parts ...string) string {
	return "sf:lease:" + strings.Join(parts, ":")
}

type stubInvalidator struct{ calls int }

func (s *stubInvalidator) InvalidateCache(context.Context) { s.calls++ }

type fixture struct {
	svc     *Service
	conn    *gorm.DB
	repo    catalog.Repository
	leases  *memoryLeases
	cache   *stubInvalidator
	ownerID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	owner := models.User{Email: "partner@example.com", PasswordHash: "x", Type: enums.UserTypeShop, IsActive: true}
	require.NoError(t, conn.Create(&owner).Error)

	fx := &fixture{
		conn:    conn,
		repo:    catalog.NewRepository(conn),
		leases:  newMemoryLeases(),
		cache:   &stubInvalidator{},
		ownerID: owner.ID,
	}
	svc, err := NewService(ServiceParams{
		DB:         db.Wrap(conn),
		Repository: fx.repo,
		Cache:      fx.cache,
		Fetcher:    NewHTTPFetcher(time.Second, 1<<20),
		Leases:     fx.leases,
		Config:     config.CatalogConfig{IngestLeaseTTL: time.Minute},
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	fx.svc = svc
	return fx
}

func (fx *fixture) counts(t *testing.T) map[string]int64 {
	t.Helper()
	out := map[string]int64{}
	for name, model := range map[string]any{
		"shops":              &models.Shop{},
		"categories":         &models.Category{},
		"products":           &models.Product{},
		"listings":           &models.Listing{},
		"parameters":         &models.Parameter{},
		"listing_parameters": &models.ListingParameter{},
	} {
		var n int64
		require.NoError(t, fx.conn.Model(model).Count(&n).Error)
		out[name] = n
	}
	return out
}

func inline(doc string) *string { return &doc }

func TestRunIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.svc.Run(ctx, Payload{UserID: fx.ownerID, Document: inline(shopDocument)})
	require.NoError(t, err)
	afterFirst := fx.counts(t)
	require.Equal(t, map[string]int64{
		"shops": 1, "categories": 2, "products": 2, "listings": 2, "parameters": 4, "listing_parameters": 4,
	}, afterFirst)

	second, err := fx.svc.Run(ctx, Payload{UserID: fx.ownerID, Document: inline(shopDocument)})
	require.NoError(t, err)
	require.Equal(t, afterFirst, fx.counts(t))
	require.Equal(t, first, second)
	require.Equal(t, 2, fx.cache.calls)
	require.Empty(t, fx.leases.values)
}

func TestRunResultMatchesExport(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	result, err := fx.svc.Run(ctx, Payload{UserID: fx.ownerID, Document: inline(shopDocument)})
	require.NoError(t, err)

	exported, err := catalog.ExportShop(ctx, fx.repo, fx.ownerID)
	require.NoError(t, err)
	require.Equal(t, exported, result)
	require.Equal(t, "Связной", result.Shop)
	require.Len(t, result.Goods, 2)
}

func TestRunMissingPriceLeavesStoreUntouched(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.Run(ctx, Payload{UserID: fx.ownerID, Document: inline(shopDocument)})
	require.NoError(t, err)
	before := fx.counts(t)

	broken := strings.Replace(shopDocument, "    price: 300\n", "", 1)
	_, err = fx.svc.Run(ctx, Payload{UserID: fx.ownerID, Document: inline(broken)})
	require.Equal(t, pkgerrors.CodeParse, pkgerrors.CodeOf(err))
	require.Equal(t, before, fx.counts(t))
}

func TestRunRollsBackOnConflict(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.Run(ctx, Payload{UserID: fx.ownerID, Document: inline(shopDocument)})
	require.NoError(t, err)
	before := fx.counts(t)

	duplicated := shopDocument + `  - id: 4672670
    category: 15
    model: again
    name: Чехол
    price: 1
    price_rrc: 1
    quantity: 1
`
	_, err = fx.svc.Run(ctx, Payload{UserID: fx.ownerID, Document: inline(duplicated)})
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	require.Equal(t, before, fx.counts(t))
}

func TestRunDefersWhileLeaseIsHeld(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.leases.values["sf:lease:ingest:shop:"+itoa(fx.ownerID)] = "other-worker"

	_, err := fx.svc.Run(ctx, Payload{UserID: fx.ownerID, Document: inline(shopDocument)})
	require.True(t, errors.Is(err, tasks.ErrRetryLater))
	require.Zero(t, fx.counts(t)["listings"])
	require.Equal(t, "other-worker", fx.leases.values["sf:lease:ingest:shop:"+itoa(fx.ownerID)])
}

func TestRunFetchesURLAndRecordsIt(t *testing.T) {
	fx := newFixture(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, shopDocument)
	}))
	defer server.Close()

	_, err := fx.svc.Run(context.Background(), Payload{UserID: fx.ownerID, URL: inline(server.URL + "/shop1.yaml")})
	require.NoError(t, err)

	shop, err := fx.repo.FindShopByOwner(context.Background(), fx.ownerID)
	require.NoError(t, err)
	require.Equal(t, server.URL+"/shop1.yaml", *shop.URL)
}

func TestRunValidatesPayload(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Run(ctx, Payload{UserID: fx.ownerID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = fx.svc.Run(ctx, Payload{UserID: fx.ownerID, URL: inline("http://x"), Document: inline("shop: x")})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = fx.svc.Run(ctx, Payload{Document: inline(shopDocument)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestHandleDecodesTaskPayload(t *testing.T) {
	fx := newFixture(t)
	task := &models.Task{Payload: []byte(`{"user_id":` + itoa(fx.ownerID) + `,"document":` + quote(shopDocument) + `}`)}

	out, err := fx.svc.Handle(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, "Связной", out.(*catalog.Document).Shop)
}
