package controllers

import (
	"net/http"

	"github.com/angelmondragon/shopfeed-backend/api/responses"
	"github.com/angelmondragon/shopfeed-backend/api/validators"
	"github.com/angelmondragon/shopfeed-backend/internal/orders"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
)

// BasketGet returns the caller's basket as a one element list, or [] when
// there is none yet.
func BasketGet(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		basket, err := svc.GetBasket(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := []orders.OrderDTO{}
		if basket != nil {
			out = append(out, *basket)
		}
		responses.WriteSuccess(w, out)
	}
}

func BasketAdd(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var items []orders.AddItem
		if err := decodeItems(r, &items); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AddItems(r.Context(), userID, items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBatch(w, "Created", result)
	}
}

func BasketUpdate(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var items []orders.UpdateItem
		if err := decodeItems(r, &items); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.UpdateItems(r.Context(), userID, items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBatch(w, "Updated", result)
	}
}

func BasketDelete(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req itemsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !req.Items.present() {
			responses.WriteError(r.Context(), logg, w, missingArguments("items"))
			return
		}
		ids, err := req.Items.ids()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RemoveItems(r.Context(), userID, ids)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBatch(w, "Deleted", result)
	}
}

func decodeItems(r *http.Request, dest any) error {
	var req itemsRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		return err
	}
	if !req.Items.present() {
		return missingArguments("items")
	}
	return req.Items.decode(dest)
}

// writeBatch reports applied entries under countKey and any skipped ones under Errors.
func writeBatch(w http.ResponseWriter, countKey string, result *orders.BatchResult) {
	fields := map[string]any{countKey: result.Count}
	if len(result.Errors) > 0 {
		fields["Errors"] = result.Errors
	}
	responses.WriteStatus(w, fields)
}

// OrderList returns the caller's placed orders, newest first.
func OrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListOrders(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if list == nil {
			list = []orders.OrderDTO{}
		}
		responses.WriteSuccess(w, list)
	}
}

type placeOrderRequest struct {
	ID      *flexInt `json:"id"`
	Contact *flexInt `json:"contact"`
}

// OrderPlace moves the basket to the new state with a delivery contact.
func OrderPlace(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req placeOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var missing []string
		if req.ID == nil {
			missing = append(missing, "id")
		}
		if req.Contact == nil {
			missing = append(missing, "contact")
		}
		if len(missing) > 0 {
			responses.WriteError(r.Context(), logg, w, missingArguments(missing...))
			return
		}
		if err := svc.PlaceOrder(r.Context(), userID, int64(*req.ID), int64(*req.Contact)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteStatus(w, nil)
	}
}
