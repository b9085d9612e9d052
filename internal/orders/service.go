// Package orders implements the basket and order lifecycle.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"github.com/angelmondragon/shopfeed-backend/pkg/pagination"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier delivers user-facing notifications once a change has committed.
type Notifier interface {
	Notify(ctx context.Context, kind enums.NotificationKind, recipientID int64, payload any) error
}

// Service defines basket mutations, checkout and order fulfilment.
type Service interface {
	AddItems(ctx context.Context, userID int64, items []AddItem) (*BatchResult, error)
	UpdateItems(ctx context.Context, userID int64, items []UpdateItem) (*BatchResult, error)
	RemoveItems(ctx context.Context, userID int64, lineIDs []int64) (*BatchResult, error)
	GetBasket(ctx context.Context, userID int64) (*OrderDTO, error)
	PlaceOrder(ctx context.Context, userID, orderID, contactID int64) error
	ListOrders(ctx context.Context, userID int64) ([]OrderDTO, error)
	ListPartnerOrders(ctx context.Context, partnerID int64, params pagination.Params) (*pagination.Page[OrderDTO], error)
	UpdateOrderState(ctx context.Context, partnerID, orderID int64, state enums.OrderState) error
}

// ServiceParams wires the orders service.
type ServiceParams struct {
	DB         txRunner
	Repository Repository
	Notifier   Notifier
	Logger     *logger.Logger
}

type service struct {
	tx       txRunner
	repo     Repository
	notifier Notifier
	logg     *logger.Logger
}

// NewService builds an orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       params.DB,
		repo:     params.Repository,
		notifier: params.Notifier,
		logg:     params.Logger,
	}, nil
}

func itemError(index int, id int64, code pkgerrors.Code, message string) ItemError {
	return ItemError{Index: index, ID: id, Code: string(code), Message: message}
}

// lockedBasket locks the user row, then finds or creates the basket and
// locks its row. Two requests racing on one basket queue on these locks.
func lockedBasket(ctx context.Context, repo Repository, userID int64, create bool) (*models.Order, error) {
	if err := repo.LockUser(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user not found")
		}
		return nil, err
	}
	basket, err := repo.FindBasket(ctx, userID)
	if err != nil {
		return nil, err
	}
	if basket == nil {
		if !create {
			return nil, nil
		}
		return repo.CreateBasket(ctx, userID)
	}
	return repo.LockOrder(ctx, basket.ID, userID)
}

// AddItems creates one line per listing not yet in the basket. Entries that
// cannot be added are reported and skipped; existing lines are never changed.
func (s *service) AddItems(ctx context.Context, userID int64, items []AddItem) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "items are required")
	}
	result := &BatchResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		basket, err := lockedBasket(ctx, repo, userID, true)
		if err != nil {
			return err
		}

		seen := map[int64]struct{}{}
		for i, item := range items {
			if item.Invalid != "" {
				result.Errors = append(result.Errors, itemError(i, item.ListingID, pkgerrors.CodeValidation, item.Invalid))
				continue
			}
			if item.Quantity <= 0 {
				result.Errors = append(result.Errors, itemError(i, item.ListingID, pkgerrors.CodeValidation, "quantity must be a positive integer"))
				continue
			}
			listing, err := repo.FindLiveListing(ctx, item.ListingID)
			if err != nil {
				return err
			}
			if listing == nil {
				result.Errors = append(result.Errors, itemError(i, item.ListingID, pkgerrors.CodeReference, "listing not found"))
				continue
			}
			if _, dup := seen[item.ListingID]; dup {
				result.Errors = append(result.Errors, itemError(i, item.ListingID, pkgerrors.CodeConflict, "listing is already in the basket"))
				continue
			}
			exists, err := repo.LineExists(ctx, basket.ID, item.ListingID)
			if err != nil {
				return err
			}
			if exists {
				result.Errors = append(result.Errors, itemError(i, item.ListingID, pkgerrors.CodeConflict, "listing is already in the basket"))
				continue
			}
			line := &models.OrderLine{OrderID: basket.ID, ListingID: item.ListingID, Quantity: item.Quantity}
			if err := repo.CreateLine(ctx, line); err != nil {
				return err
			}
			seen[item.ListingID] = struct{}{}
			result.Count++
		}
		return nil
	})
	if err != nil {
		return nil, wrapDependency(err, "add basket items")
	}
	return result, nil
}

// UpdateItems sets line quantities independently; unknown lines are reported.
func (s *service) UpdateItems(ctx context.Context, userID int64, items []UpdateItem) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "items are required")
	}
	result := &BatchResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		basket, err := lockedBasket(ctx, repo, userID, false)
		if err != nil {
			return err
		}
		for i, item := range items {
			if item.Invalid != "" {
				result.Errors = append(result.Errors, itemError(i, item.ID, pkgerrors.CodeValidation, item.Invalid))
				continue
			}
			if item.Quantity <= 0 {
				result.Errors = append(result.Errors, itemError(i, item.ID, pkgerrors.CodeValidation, "quantity must be a positive integer"))
				continue
			}
			if basket == nil {
				result.Errors = append(result.Errors, itemError(i, item.ID, pkgerrors.CodeReference, "line not found in basket"))
				continue
			}
			updated, err := repo.UpdateLineQuantity(ctx, basket.ID, item.ID, item.Quantity)
			if err != nil {
				return err
			}
			if !updated {
				result.Errors = append(result.Errors, itemError(i, item.ID, pkgerrors.CodeReference, "line not found in basket"))
				continue
			}
			result.Count++
		}
		return nil
	})
	if err != nil {
		return nil, wrapDependency(err, "update basket items")
	}
	return result, nil
}

// RemoveItems deletes the listed basket lines and reports ids it did not own.
func (s *service) RemoveItems(ctx context.Context, userID int64, lineIDs []int64) (*BatchResult, error) {
	if len(lineIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "items are required")
	}
	result := &BatchResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		basket, err := lockedBasket(ctx, repo, userID, false)
		if err != nil {
			return err
		}
		owned := map[int64]struct{}{}
		if basket != nil {
			found, err := repo.FindLineIDs(ctx, basket.ID, lineIDs)
			if err != nil {
				return err
			}
			for _, id := range found {
				owned[id] = struct{}{}
			}
		}

		toDelete := make([]int64, 0, len(owned))
		for i, id := range lineIDs {
			if _, ok := owned[id]; !ok {
				result.Errors = append(result.Errors, itemError(i, id, pkgerrors.CodeReference, "line not found in basket"))
				continue
			}
			toDelete = append(toDelete, id)
			delete(owned, id)
		}
		if basket == nil || len(toDelete) == 0 {
			return nil
		}
		deleted, err := repo.DeleteLines(ctx, basket.ID, toDelete)
		if err != nil {
			return err
		}
		result.Count = deleted
		return nil
	})
	if err != nil {
		return nil, wrapDependency(err, "remove basket items")
	}
	return result, nil
}

// GetBasket returns nil when the user has no basket.
func (s *service) GetBasket(ctx context.Context, userID int64) (*OrderDTO, error) {
	basket, err := s.repo.FindBasket(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load basket")
	}
	if basket == nil {
		return nil, nil
	}
	order, err := s.repo.FindOrder(ctx, basket.ID, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load basket lines")
	}
	if order == nil {
		return nil, nil
	}
	dto := ToOrderDTO(*order)
	return &dto, nil
}

// PlaceOrder turns the user's non-empty basket into a new order delivered to
// one of the user's contacts.
func (s *service) PlaceOrder(ctx context.Context, userID, orderID, contactID int64) error {
	if orderID <= 0 || contactID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "id and contact are required")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, orderID, userID)
		if err != nil {
			return err
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeReference, "order not found")
		}
		if order.State != enums.OrderStateBasket {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has already been placed").
				WithDetails(map[string]string{"state": string(order.State)})
		}
		lines, err := repo.CountLines(ctx, order.ID)
		if err != nil {
			return err
		}
		if lines == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "basket is empty")
		}
		contact, err := repo.FindContact(ctx, contactID, userID)
		if err != nil {
			return err
		}
		if contact == nil {
			return pkgerrors.New(pkgerrors.CodeReference, "contact not found")
		}
		placed, err := repo.MarkPlaced(ctx, order.ID, contact.ID)
		if err != nil {
			return err
		}
		if !placed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has already been placed")
		}
		return nil
	})
	if err != nil {
		return wrapDependency(err, "place order")
	}

	s.notify(ctx, enums.NotificationKindOrderPlaced, userID, map[string]any{"order_id": orderID})
	return nil
}

func (s *service) ListOrders(ctx context.Context, userID int64) ([]OrderDTO, error) {
	orders, err := s.repo.ListUserOrders(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	out := make([]OrderDTO, 0, len(orders))
	for _, order := range orders {
		out = append(out, ToOrderDTO(order))
	}
	return out, nil
}

// ListPartnerOrders pages through orders holding the partner's listings. Each
// order shows, and totals, only the partner's own lines.
func (s *service) ListPartnerOrders(ctx context.Context, partnerID int64, params pagination.Params) (*pagination.Page[OrderDTO], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	orders, err := s.repo.ListPartnerOrders(ctx, partnerID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list partner orders")
	}

	page := pagination.Build(orders, params.Limit, orderCursor, ToOrderDTO)
	return &page, nil
}

func orderCursor(o models.Order) pagination.Cursor {
	return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
}

// UpdateOrderState overwrites the state of a placed order holding the
// partner's listings. Any state but basket is accepted regardless of the
// current one.
func (s *service) UpdateOrderState(ctx context.Context, partnerID, orderID int64, state enums.OrderState) error {
	if orderID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "id is required")
	}
	if !state.IsValid() || state == enums.OrderStateBasket {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order state").
			WithDetails(map[string]string{"state": string(state)})
	}

	var buyerID int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindPartnerOrder(ctx, partnerID, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		buyerID = order.UserID
		return repo.UpdateState(ctx, order.ID, state)
	})
	if err != nil {
		return wrapDependency(err, "update order state")
	}

	s.notify(ctx, enums.NotificationKindOrderStateChanged, buyerID, map[string]any{"order_id": orderID, "state": state})
	return nil
}

func (s *service) notify(ctx context.Context, kind enums.NotificationKind, recipientID int64, payload map[string]any) {
	if err := s.notifier.Notify(ctx, kind, recipientID, payload); err != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"notification_kind": kind,
			"recipient_id":      recipientID,
		}), "orders.notify_failed", err)
	}
}

func wrapDependency(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
