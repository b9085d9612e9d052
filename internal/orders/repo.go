package orders

import (
	"context"

	"github.com/angelmondragon/shopfeed-backend/internal/repo"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	"github.com/angelmondragon/shopfeed-backend/pkg/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines persistence operations for baskets and orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	LockUser(ctx context.Context, userID int64) error
	FindBasket(ctx context.Context, userID int64) (*models.Order, error)
	CreateBasket(ctx context.Context, userID int64) (*models.Order, error)
	LockOrder(ctx context.Context, orderID, userID int64) (*models.Order, error)

	FindLiveListing(ctx context.Context, listingID int64) (*models.Listing, error)
	LineExists(ctx context.Context, orderID, listingID int64) (bool, error)
	CreateLine(ctx context.Context, line *models.OrderLine) error
	UpdateLineQuantity(ctx context.Context, orderID, lineID, quantity int64) (bool, error)
	FindLineIDs(ctx context.Context, orderID int64, ids []int64) ([]int64, error)
	DeleteLines(ctx context.Context, orderID int64, ids []int64) (int64, error)
	CountLines(ctx context.Context, orderID int64) (int64, error)

	FindContact(ctx context.Context, contactID, userID int64) (*models.Contact, error)
	MarkPlaced(ctx context.Context, orderID, contactID int64) (bool, error)

	FindOrder(ctx context.Context, orderID, userID int64) (*models.Order, error)
	ListUserOrders(ctx context.Context, userID int64) ([]models.Order, error)
	ListPartnerOrders(ctx context.Context, partnerID int64, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	FindPartnerOrder(ctx context.Context, partnerID, orderID int64) (*models.Order, error)
	UpdateState(ctx context.Context, orderID int64, state enums.OrderState) error
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: repo.NewBase(tx)}
}

func forUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

// LockUser serializes basket creation per user.
func (r *repositoryImpl) LockUser(ctx context.Context, userID int64) error {
	var user models.User
	return r.DB(ctx).Clauses(forUpdate()).Select("id").Where("id = ?", userID).Take(&user).Error
}

func (r *repositoryImpl) FindBasket(ctx context.Context, userID int64) (*models.Order, error) {
	return repo.TakeOne[models.Order](r.DB(ctx).Where("user_id = ? AND state = ?", userID, enums.OrderStateBasket))
}

func (r *repositoryImpl) CreateBasket(ctx context.Context, userID int64) (*models.Order, error) {
	order := &models.Order{UserID: userID, State: enums.OrderStateBasket}
	if err := r.DB(ctx).Omit(clause.Associations).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// LockOrder loads the user's order row FOR UPDATE; nil when it does not exist
// or belongs to someone else.
func (r *repositoryImpl) LockOrder(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	return repo.TakeOne[models.Order](r.DB(ctx).Clauses(forUpdate()).Where("id = ? AND user_id = ?", orderID, userID))
}

func (r *repositoryImpl) FindLiveListing(ctx context.Context, listingID int64) (*models.Listing, error) {
	return repo.TakeOne[models.Listing](r.DB(ctx).Where("id = ? AND archived_at IS NULL", listingID))
}

func (r *repositoryImpl) LineExists(ctx context.Context, orderID, listingID int64) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.OrderLine{}).
		Where("order_id = ? AND listing_id = ?", orderID, listingID).
		Count(&count).Error
	return count > 0, err
}

func (r *repositoryImpl) CreateLine(ctx context.Context, line *models.OrderLine) error {
	return r.DB(ctx).Omit(clause.Associations).Create(line).Error
}

func (r *repositoryImpl) UpdateLineQuantity(ctx context.Context, orderID, lineID, quantity int64) (bool, error) {
	result := r.DB(ctx).Model(&models.OrderLine{}).
		Where("id = ? AND order_id = ?", lineID, orderID).
		Update("quantity", quantity)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) FindLineIDs(ctx context.Context, orderID int64, ids []int64) ([]int64, error) {
	var found []int64
	if len(ids) == 0 {
		return found, nil
	}
	err := r.DB(ctx).Model(&models.OrderLine{}).
		Where("order_id = ? AND id IN ?", orderID, ids).
		Pluck("id", &found).Error
	return found, err
}

func (r *repositoryImpl) DeleteLines(ctx context.Context, orderID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.DB(ctx).Where("order_id = ? AND id IN ?", orderID, ids).Delete(&models.OrderLine{})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) CountLines(ctx context.Context, orderID int64) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.OrderLine{}).Where("order_id = ?", orderID).Count(&count).Error
	return count, err
}

func (r *repositoryImpl) FindContact(ctx context.Context, contactID, userID int64) (*models.Contact, error) {
	return repo.TakeOne[models.Contact](r.DB(ctx).Where("id = ? AND user_id = ?", contactID, userID))
}

// MarkPlaced moves a basket to new. It reports false when the order has
// already left the basket state.
func (r *repositoryImpl) MarkPlaced(ctx context.Context, orderID, contactID int64) (bool, error) {
	result := r.DB(ctx).Model(&models.Order{}).
		Where("id = ? AND state = ?", orderID, enums.OrderStateBasket).
		Updates(map[string]any{"state": enums.OrderStateNew, "contact_id": contactID})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindOrder loads one of the user's orders with all lines resolved.
func (r *repositoryImpl) FindOrder(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	return repo.TakeOne[models.Order](withLines(r.DB(ctx), nil).Where("id = ? AND user_id = ?", orderID, userID))
}

// ListUserOrders returns placed orders, newest first.
func (r *repositoryImpl) ListUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := withLines(r.DB(ctx), nil).
		Where("user_id = ? AND state <> ?", userID, enums.OrderStateBasket).
		Order("created_at DESC, id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListPartnerOrders pages through placed orders that contain at least one of
// the partner's listings. Only the partner's own lines are loaded.
func (r *repositoryImpl) ListPartnerOrders(ctx context.Context, partnerID int64, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := withLines(r.DB(ctx), &partnerID).
		Where("state <> ?", enums.OrderStateBasket).
		Where("EXISTS (?)", partnerLines(r.DB(ctx), partnerID))
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var orders []models.Order
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindPartnerOrder returns a placed order containing the partner's listings.
func (r *repositoryImpl) FindPartnerOrder(ctx context.Context, partnerID, orderID int64) (*models.Order, error) {
	return repo.TakeOne[models.Order](r.DB(ctx).Clauses(forUpdate()).
		Where("id = ? AND state <> ?", orderID, enums.OrderStateBasket).
		Where("EXISTS (?)", partnerLines(r.DB(ctx), partnerID)))
}

func (r *repositoryImpl) UpdateState(ctx context.Context, orderID int64, state enums.OrderState) error {
	return r.DB(ctx).Model(&models.Order{}).Where("id = ?", orderID).Update("state", state).Error
}

func partnerListingIDs(db *gorm.DB, partnerID int64) *gorm.DB {
	return db.Table("listings").
		Select("listings.id").
		Joins("JOIN shops ON shops.id = listings.shop_id").
		Where("shops.user_id = ?", partnerID)
}

func partnerLines(db *gorm.DB, partnerID int64) *gorm.DB {
	return db.Table("order_lines").
		Select("1").
		Where("order_lines.order_id = orders.id").
		Where("order_lines.listing_id IN (?)", partnerListingIDs(db, partnerID))
}

// withLines batch loads lines with their listing, product, category,
// parameters and the delivery contact. A partner id restricts lines to that
// partner's listings.
func withLines(db *gorm.DB, partnerID *int64) *gorm.DB {
	linesScope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Order("order_lines.id ASC")
		if partnerID != nil {
			tx = tx.Where("order_lines.listing_id IN (?)", partnerListingIDs(db.Session(&gorm.Session{NewDB: true}), *partnerID))
		}
		return tx
	}
	return db.Model(&models.Order{}).
		Preload("Contact").
		Preload("Lines", linesScope).
		Preload("Lines.Listing.Product.Category").
		Preload("Lines.Listing.Parameters", func(tx *gorm.DB) *gorm.DB { return tx.Order("listing_parameters.id ASC") }).
		Preload("Lines.Listing.Parameters.Parameter")
}
