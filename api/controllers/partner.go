package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopfeed-backend/api/responses"
	"github.com/angelmondragon/shopfeed-backend/api/validators"
	"github.com/angelmondragon/shopfeed-backend/internal/catalog"
	"github.com/angelmondragon/shopfeed-backend/internal/ingest"
	"github.com/angelmondragon/shopfeed-backend/internal/orders"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"github.com/angelmondragon/shopfeed-backend/pkg/pagination"
)

// TaskSubmitter enqueues background work on behalf of a request.
type TaskSubmitter interface {
	Submit(ctx context.Context, kind enums.TaskKind, submittedBy *int64, payload any) (uuid.UUID, error)
}

type partnerUpdateRequest struct {
	URL      *string `json:"url"`
	Document *string `json:"document"`
}

// PartnerUpdate queues a catalog replacement from a URL or an inline document.
func PartnerUpdate(tasks TaskSubmitter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req partnerUpdateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		url := trimmedOrNil(req.URL)
		document := trimmedOrNil(req.Document)
		if url == nil && document == nil {
			responses.WriteError(r.Context(), logg, w, missingArguments("url"))
			return
		}
		if url != nil && document != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "supply either url or document").
				WithDetails(map[string]string{"url": "conflicts with document"}))
			return
		}
		if url != nil && !validators.HTTPURL(*url) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid url").
				WithDetails(map[string]string{"url": "invalid url"}))
			return
		}

		taskID, err := tasks.Submit(r.Context(), enums.TaskKindIngest, &userID, ingest.Payload{
			UserID:   userID,
			URL:      url,
			Document: document,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteStatus(w, map[string]any{"Task_id": taskID.String()})
	}
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// PartnerState serves GET /partner/state.
func PartnerState(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := svc.GetShopState(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

type partnerStateRequest struct {
	State *flexString `json:"state"`
}

// PartnerSetState serves POST /partner/state.
func PartnerSetState(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req partnerStateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.State == nil {
			responses.WriteError(r.Context(), logg, w, missingArguments("state"))
			return
		}
		state, err := validators.ParseBoolString(string(*req.State))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetShopState(r.Context(), userID, state); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteStatus(w, nil)
	}
}

// PartnerOrders serves GET /partner/orders?limit=&cursor=.
func PartnerOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListPartnerOrders(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

type partnerOrderStateRequest struct {
	ID    *flexInt `json:"id"`
	State string   `json:"state"`
}

// PartnerUpdateOrder serves PUT /partner/orders.
func PartnerUpdateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req partnerOrderStateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var missing []string
		if req.ID == nil {
			missing = append(missing, "id")
		}
		if strings.TrimSpace(req.State) == "" {
			missing = append(missing, "state")
		}
		if len(missing) > 0 {
			responses.WriteError(r.Context(), logg, w, missingArguments(missing...))
			return
		}
		state, err := enums.ParseOrderState(strings.ToLower(strings.TrimSpace(req.State)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order state").
				WithDetails(map[string]string{"state": "unknown order state"}))
			return
		}

		if err := svc.UpdateOrderState(r.Context(), userID, int64(*req.ID), state); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteStatus(w, nil)
	}
}

// PartnerExport queues an export of the caller's catalog.
func PartnerExport(tasks TaskSubmitter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		taskID, err := tasks.Submit(r.Context(), enums.TaskKindExport, &userID, catalog.ExportPayload{UserID: userID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteStatus(w, map[string]any{"Task_id": taskID.String()})
	}
}
