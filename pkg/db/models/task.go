package models

import (
	"time"

	dbtypes "github.com/angelmondragon/shopfeed-backend/pkg/db/types"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	"github.com/google/uuid"
)

// Task is a durable unit of background work.
type Task struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Kind        enums.TaskKind       `gorm:"column:kind;type:text;not null"`
	Status      enums.TaskStatus     `gorm:"column:status;type:text;not null;index"`
	Payload     dbtypes.JSONDocument `gorm:"column:payload;type:jsonb;not null"`
	Result      dbtypes.JSONDocument `gorm:"column:result;type:jsonb"`
	Error       *string              `gorm:"column:error"`
	Attempts    int                  `gorm:"column:attempts;not null;default:0"`
	SubmittedBy *int64               `gorm:"column:submitted_by"`
	AvailableAt time.Time            `gorm:"column:available_at;not null"`
	LeasedUntil *time.Time           `gorm:"column:leased_until"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	StartedAt   *time.Time           `gorm:"column:started_at"`
	FinishedAt  *time.Time           `gorm:"column:finished_at"`
}
