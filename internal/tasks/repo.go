package tasks

import (
	"context"
	"time"

	"github.com/angelmondragon/shopfeed-backend/internal/repo"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/shopfeed-backend/pkg/db/types"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes persistence helpers for the task queue.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Claim(ctx context.Context, now time.Time, lease time.Duration) (*models.Task, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, result dbtypes.JSONDocument, now time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) error
	Requeue(ctx context.Context, id uuid.UUID, reason string, availableAt time.Time) error
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a task repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: repo.NewBase(tx)}
}

func (r *repositoryImpl) Create(ctx context.Context, task *models.Task) error {
	return r.DB(ctx).Create(task).Error
}

// FindByID returns nil when the task does not exist.
func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return repo.TakeOne[models.Task](r.DB(ctx).Where("id = ?", id))
}

// Claim leases the oldest runnable task to the caller. Pending tasks whose
// available_at has passed are runnable, as are running tasks whose lease
// expired (their worker died). Rows locked by other claimers are skipped.
func (r *repositoryImpl) Claim(ctx context.Context, now time.Time, lease time.Duration) (*models.Task, error) {
	var claimed *models.Task
	err := r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(
				"(status = ? AND available_at <= ?) OR (status = ? AND leased_until < ?)",
				enums.TaskStatusPending, now, enums.TaskStatusRunning, now,
			).
			Order("available_at ASC").
			Limit(1).
			Find(&task).Error
		if err != nil {
			return err
		}
		if task.ID == uuid.Nil {
			return nil
		}

		leasedUntil := now.Add(lease)
		updates := map[string]any{
			"status":       enums.TaskStatusRunning,
			"attempts":     task.Attempts + 1,
			"leased_until": leasedUntil,
		}
		if task.StartedAt == nil {
			updates["started_at"] = now
		}
		if err := tx.Model(&models.Task{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
			return err
		}

		task.Status = enums.TaskStatusRunning
		task.Attempts++
		task.LeasedUntil = &leasedUntil
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *repositoryImpl) MarkSucceeded(ctx context.Context, id uuid.UUID, result dbtypes.JSONDocument, now time.Time) error {
	return r.DB(ctx).
		Model(&models.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       enums.TaskStatusSucceeded,
			"result":       result,
			"error":        nil,
			"leased_until": nil,
			"finished_at":  now,
		}).Error
}

func (r *repositoryImpl) MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) error {
	return r.DB(ctx).
		Model(&models.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       enums.TaskStatusFailed,
			"error":        reason,
			"leased_until": nil,
			"finished_at":  now,
		}).Error
}

func (r *repositoryImpl) Requeue(ctx context.Context, id uuid.UUID, reason string, availableAt time.Time) error {
	return r.DB(ctx).
		Model(&models.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       enums.TaskStatusPending,
			"error":        reason,
			"leased_until": nil,
			"available_at": availableAt,
		}).Error
}

func (r *repositoryImpl) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.DB(ctx).
		Where("status IN ? AND finished_at < ?", []enums.TaskStatus{enums.TaskStatusSucceeded, enums.TaskStatusFailed}, cutoff).
		Delete(&models.Task{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
