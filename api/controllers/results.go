package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopfeed-backend/api/responses"
	"github.com/angelmondragon/shopfeed-backend/internal/tasks"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
)

const taskNotFoundMessage = "task not found"

// TaskStatusReader resolves task state for the submitting user.
type TaskStatusReader interface {
	Status(ctx context.Context, id uuid.UUID, requester int64) (*tasks.StatusResult, error)
}

// Results serves GET /results?task_id=. Unknown, foreign and expired ids are
// all reported as 404.
func Results(reader TaskStatusReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		raw := strings.TrimSpace(r.URL.Query().Get("task_id"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, missingArguments("task_id"))
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, taskNotFoundMessage))
			return
		}

		status, err := reader.Status(r.Context(), id, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if status.Status == enums.TaskStatusNotFound {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, taskNotFoundMessage))
			return
		}

		fields := map[string]any{
			"Task_id": id.String(),
			"State":   status.Status,
			"Results": status.Result,
		}
		if status.Error != "" {
			fields["Error"] = status.Error
		}
		responses.WriteStatus(w, fields)
	}
}
