package tasks

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type workerFixture struct {
	worker   *Worker
	gateway  *Gateway
	repo     Repository
	registry *Registry
	now      time.Time
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	registry := NewRegistry()
	fx := &workerFixture{repo: repo, registry: registry, now: time.Now().UTC()}
	clock := func() time.Time { return fx.now }

	gw, err := NewGateway(GatewayParams{Repository: repo, Retention: time.Hour, Clock: clock})
	require.NoError(t, err)

	worker, err := NewWorker(WorkerParams{
		Config: config.TasksConfig{
			Workers:       1,
			PollInterval:  10 * time.Millisecond,
			LeaseDuration: time.Minute,
			MaxAttempts:   2,
			RetryDelay:    time.Second,
		},
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Repository: repo,
		Registry:   registry,
		Clock:      clock,
	})
	require.NoError(t, err)

	fx.worker = worker
	fx.gateway = gw
	return fx
}

func (fx *workerFixture) submit(t *testing.T, kind enums.TaskKind) uuid.UUID {
	t.Helper()
	owner := int64(1)
	id, err := fx.gateway.Submit(context.Background(), kind, &owner, map[string]any{"user_id": 1})
	require.NoError(t, err)
	return id
}

func (fx *workerFixture) load(t *testing.T, id uuid.UUID) *models.Task {
	t.Helper()
	task, err := fx.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, task)
	return task
}

func TestWorkerStoresHandlerResult(t *testing.T) {
	fx := newWorkerFixture(t)
	require.NoError(t, fx.registry.Register(enums.TaskKindExport, HandlerFunc(func(ctx context.Context, task *models.Task) (any, error) {
		var payload struct {
			UserID int64 `json:"user_id"`
		}
		require.NoError(t, task.Payload.Decode(&payload))
		return map[string]any{"exported_for": payload.UserID}, nil
	})))

	id := fx.submit(t, enums.TaskKindExport)
	processed, err := fx.worker.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	status, err := fx.gateway.Status(context.Background(), id, 1)
	require.NoError(t, err)
	require.Equal(t, enums.TaskStatusSucceeded, status.Status)
	require.JSONEq(t, `{"exported_for":1}`, string(status.Result))
}

func TestWorkerIdleQueue(t *testing.T) {
	fx := newWorkerFixture(t)
	processed, err := fx.worker.ProcessNext(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestWorkerDefersOnRetryLater(t *testing.T) {
	fx := newWorkerFixture(t)
	require.NoError(t, fx.registry.Register(enums.TaskKindIngest, HandlerFunc(func(context.Context, *models.Task) (any, error) {
		return nil, ErrRetryLater
	})))

	id := fx.submit(t, enums.TaskKindIngest)
	_, err := fx.worker.ProcessNext(context.Background())
	require.NoError(t, err)

	task := fx.load(t, id)
	require.Equal(t, enums.TaskStatusPending, task.Status)
	require.True(t, task.AvailableAt.After(fx.now))

	// not runnable until the delay passes
	processed, err := fx.worker.ProcessNext(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestWorkerFailsTypedErrorsImmediately(t *testing.T) {
	fx := newWorkerFixture(t)
	require.NoError(t, fx.registry.Register(enums.TaskKindIngest, HandlerFunc(func(context.Context, *models.Task) (any, error) {
		return nil, pkgerrors.New(pkgerrors.CodeParse, "goods[0]: price is required")
	})))

	id := fx.submit(t, enums.TaskKindIngest)
	_, err := fx.worker.ProcessNext(context.Background())
	require.NoError(t, err)

	task := fx.load(t, id)
	require.Equal(t, enums.TaskStatusFailed, task.Status)
	require.NotNil(t, task.Error)
	require.Equal(t, "PARSE_ERROR: goods[0]: price is required", *task.Error)
	require.Equal(t, 1, task.Attempts)
}

func TestWorkerRetriesTransientErrorsUntilMaxAttempts(t *testing.T) {
	fx := newWorkerFixture(t)
	calls := 0
	require.NoError(t, fx.registry.Register(enums.TaskKindExport, HandlerFunc(func(context.Context, *models.Task) (any, error) {
		calls++
		return nil, errors.New("connection reset")
	})))

	id := fx.submit(t, enums.TaskKindExport)
	_, err := fx.worker.ProcessNext(context.Background())
	require.NoError(t, err)
	require.Equal(t, enums.TaskStatusPending, fx.load(t, id).Status)

	fx.now = fx.now.Add(time.Minute)
	_, err = fx.worker.ProcessNext(context.Background())
	require.NoError(t, err)

	task := fx.load(t, id)
	require.Equal(t, enums.TaskStatusFailed, task.Status)
	require.Equal(t, 2, task.Attempts)
	require.Equal(t, 2, calls)
}

func TestWorkerRecoversHandlerPanic(t *testing.T) {
	fx := newWorkerFixture(t)
	fx.worker.maxAttempts = 1
	require.NoError(t, fx.registry.Register(enums.TaskKindNotify, HandlerFunc(func(context.Context, *models.Task) (any, error) {
		panic("nil map")
	})))

	id := fx.submit(t, enums.TaskKindNotify)
	_, err := fx.worker.ProcessNext(context.Background())
	require.NoError(t, err)

	task := fx.load(t, id)
	require.Equal(t, enums.TaskStatusFailed, task.Status)
	require.Contains(t, *task.Error, "handler panic")
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	fx := newWorkerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.worker.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	h := HandlerFunc(func(context.Context, *models.Task) (any, error) { return nil, nil })
	require.NoError(t, registry.Register(enums.TaskKindExport, h))
	require.Error(t, registry.Register(enums.TaskKindExport, h))
	require.Error(t, registry.Register(enums.TaskKind("bogus"), h))
	require.Equal(t, []enums.TaskKind{enums.TaskKindExport}, registry.Kinds())
}
