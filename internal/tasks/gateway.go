package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/shopfeed-backend/pkg/db/types"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/metrics"
	"github.com/google/uuid"
)

// StatusResult is the externally visible state of a task.
type StatusResult struct {
	ID     uuid.UUID
	Status enums.TaskStatus
	Result json.RawMessage
	Error  string
}

// GatewayParams wires the gateway.
type GatewayParams struct {
	Repository Repository
	Metrics    *metrics.TaskMetrics
	// Retention hides finished tasks older than this window from Status.
	Retention time.Duration
	Clock     func() time.Time
}

// Gateway is the submission/status boundary of the task queue.
type Gateway struct {
	repo      Repository
	metrics   *metrics.TaskMetrics
	retention time.Duration
	now       func() time.Time
}

// NewGateway constructs a Gateway.
func NewGateway(params GatewayParams) (*Gateway, error) {
	if params.Repository == nil {
		return nil, errors.New("task repository is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Gateway{
		repo:      params.Repository,
		metrics:   params.Metrics,
		retention: params.Retention,
		now:       clock,
	}, nil
}

// Submit persists a pending task and returns its id without waiting for execution.
func (g *Gateway) Submit(ctx context.Context, kind enums.TaskKind, submittedBy *int64, payload any) (uuid.UUID, error) {
	if !kind.IsValid() {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown task kind")
	}
	doc, err := dbtypes.NewJSONDocument(payload)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode task payload")
	}
	if len(doc) == 0 {
		doc = dbtypes.JSONDocument("{}")
	}

	now := g.now().UTC()
	task := &models.Task{
		ID:          uuid.New(),
		Kind:        kind,
		Status:      enums.TaskStatusPending,
		Payload:     doc,
		SubmittedBy: submittedBy,
		AvailableAt: now,
		CreatedAt:   now,
	}
	if err := g.repo.Create(ctx, task); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue task")
	}
	g.metrics.IncSubmitted(string(kind))
	return task.ID, nil
}

// Status reports the task state as seen by requester. Unknown tasks, tasks
// past retention and tasks submitted by someone else all read as not_found.
func (g *Gateway) Status(ctx context.Context, id uuid.UUID, requester int64) (*StatusResult, error) {
	notFound := &StatusResult{ID: id, Status: enums.TaskStatusNotFound}
	if id == uuid.Nil {
		return notFound, nil
	}

	task, err := g.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load task")
	}
	if task == nil || task.SubmittedBy == nil || *task.SubmittedBy != requester {
		return notFound, nil
	}
	if g.expired(task) {
		return notFound, nil
	}

	out := &StatusResult{ID: task.ID, Status: task.Status}
	switch task.Status {
	case enums.TaskStatusSucceeded:
		out.Result = json.RawMessage(task.Result)
	case enums.TaskStatusFailed:
		if task.Error != nil {
			out.Error = *task.Error
		}
	}
	return out, nil
}

func (g *Gateway) expired(task *models.Task) bool {
	if g.retention <= 0 || task.FinishedAt == nil {
		return false
	}
	return task.FinishedAt.Before(g.now().Add(-g.retention))
}
