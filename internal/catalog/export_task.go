package catalog

import (
	"context"

	"github.com/angelmondragon/shopfeed-backend/internal/tasks"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
)

// ExportPayload is the body of an export task.
type ExportPayload struct {
	UserID int64 `json:"user_id"`
}

// ExportHandler runs export tasks against the service.
func ExportHandler(svc Service) tasks.Handler {
	return tasks.HandlerFunc(func(ctx context.Context, task *models.Task) (any, error) {
		var payload ExportPayload
		if err := task.Payload.Decode(&payload); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode export payload")
		}
		if payload.UserID <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
		}
		return svc.Export(ctx, payload.UserID)
	})
}
