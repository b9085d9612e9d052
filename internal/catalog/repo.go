package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/shopfeed-backend/internal/repo"
	"github.com/angelmondragon/shopfeed-backend/pkg/db"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the catalog store. Write operations are meant to run on a
// repository bound to a transaction through WithTx.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	UpsertShop(ctx context.Context, ownerID int64, name string, url *string) (*models.Shop, error)
	FindShopByOwner(ctx context.Context, ownerID int64) (*models.Shop, error)
	SetShopState(ctx context.Context, ownerID int64, state bool) (bool, error)
	UpsertCategory(ctx context.Context, shopID, id int64, name string) (*models.Category, error)
	UpsertProduct(ctx context.Context, name string, categoryID int64) (*models.Product, error)
	ReplaceListings(ctx context.Context, shopID int64, now time.Time) (ReplaceStats, error)
	CreateListing(ctx context.Context, listing *models.Listing) error
	UpsertParameter(ctx context.Context, name string) (*models.Parameter, error)
	CreateListingParameter(ctx context.Context, listingID, parameterID int64, value string) error

	ListShops(ctx context.Context, acceptingOnly bool) ([]models.Shop, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]models.Listing, error)
	ShopCategories(ctx context.Context, shopID int64) ([]models.Category, error)
	ShopListings(ctx context.Context, shopID int64) ([]models.Listing, error)
}

// ReplaceStats reports what happened to a shop's previous listings.
type ReplaceStats struct {
	Deleted  int64
	Archived int64
	// BasketLines counts lines dropped from open baskets.
	BasketLines int64
}

type shopCategory struct {
	ShopID     int64 `gorm:"primaryKey"`
	CategoryID int64 `gorm:"primaryKey"`
}

func (shopCategory) TableName() string { return "shop_categories" }

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(conn)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: repo.NewBase(tx)}
}

// UpsertShop resolves the owner's shop, creating it on first ingestion. The
// name always follows the latest document; the url is only overwritten when given.
func (r *repositoryImpl) UpsertShop(ctx context.Context, ownerID int64, name string, url *string) (*models.Shop, error) {
	shop, err := r.FindShopByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		shop = &models.Shop{UserID: ownerID, Name: name, URL: url, State: true}
		if err := r.DB(ctx).Omit(clause.Associations).Create(shop).Error; err != nil {
			return nil, err
		}
		return shop, nil
	}

	updates := map[string]any{}
	if shop.Name != name {
		updates["name"] = name
		shop.Name = name
	}
	if url != nil && (shop.URL == nil || *shop.URL != *url) {
		updates["url"] = *url
		shop.URL = url
	}
	if len(updates) == 0 {
		return shop, nil
	}
	if err := r.DB(ctx).Model(&models.Shop{}).Where("id = ?", shop.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	return shop, nil
}

// FindShopByOwner returns nil when the user has no shop yet.
func (r *repositoryImpl) FindShopByOwner(ctx context.Context, ownerID int64) (*models.Shop, error) {
	return repo.TakeOne[models.Shop](r.DB(ctx).Where("user_id = ?", ownerID))
}

func (r *repositoryImpl) SetShopState(ctx context.Context, ownerID int64, state bool) (bool, error) {
	result := r.DB(ctx).Model(&models.Shop{}).Where("user_id = ?", ownerID).Update("state", state)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpsertCategory resolves a category by id and name and attaches it to the
// shop. An existing id carrying a different name is a conflict.
func (r *repositoryImpl) UpsertCategory(ctx context.Context, shopID, id int64, name string) (*models.Category, error) {
	category := models.Category{ID: id, Name: name}
	if err := r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&category).Error; err != nil {
		return nil, err
	}

	var stored models.Category
	if err := r.DB(ctx).Where("id = ?", id).Take(&stored).Error; err != nil {
		return nil, err
	}
	if stored.Name != name {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("category %d already exists as %q", id, stored.Name)).
			WithDetails(map[string]any{"category_id": id, "name": name, "existing_name": stored.Name})
	}

	link := shopCategory{ShopID: shopID, CategoryID: id}
	if err := r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *repositoryImpl) UpsertProduct(ctx context.Context, name string, categoryID int64) (*models.Product, error) {
	var product models.Product
	err := r.DB(ctx).Where("name = ? AND category_id = ?", name, categoryID).Take(&product).Error
	if err == nil {
		return &product, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	product = models.Product{Name: name, CategoryID: categoryID}
	if err := r.DB(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&product).Error; err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeReference, fmt.Sprintf("category %d is not declared", categoryID))
		}
		return nil, err
	}
	// re-read by natural key: with DO NOTHING the insert may have been skipped
	product = models.Product{}
	if err := r.DB(ctx).Where("name = ? AND category_id = ?", name, categoryID).Take(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// ReplaceListings clears the shop's live listings. Open baskets lose their
// lines for those listings first, so only placed orders pin a listing. Pinned
// listings are archived to keep historical prices; the rest are deleted
// together with their parameters.
func (r *repositoryImpl) ReplaceListings(ctx context.Context, shopID int64, now time.Time) (ReplaceStats, error) {
	var stats ReplaceStats
	live := r.DB(ctx).Model(&models.Listing{}).Select("id").Where("shop_id = ? AND archived_at IS NULL", shopID)

	baskets := r.DB(ctx).Model(&models.Order{}).Select("id").Where("state = ?", enums.OrderStateBasket)
	dropped := r.DB(ctx).Where("listing_id IN (?) AND order_id IN (?)", live, baskets).Delete(&models.OrderLine{})
	if dropped.Error != nil {
		return stats, dropped.Error
	}
	stats.BasketLines = dropped.RowsAffected

	referenced := r.DB(ctx).Table("order_lines").Select("1").Where("order_lines.listing_id = listings.id")
	archived := r.DB(ctx).Model(&models.Listing{}).
		Where("shop_id = ? AND archived_at IS NULL", shopID).
		Where("EXISTS (?)", referenced).
		Update("archived_at", now)
	if archived.Error != nil {
		return stats, archived.Error
	}
	stats.Archived = archived.RowsAffected

	if err := r.DB(ctx).Where("listing_id IN (?)", live).Delete(&models.ListingParameter{}).Error; err != nil {
		return stats, err
	}

	deleted := r.DB(ctx).Where("shop_id = ? AND archived_at IS NULL", shopID).Delete(&models.Listing{})
	if deleted.Error != nil {
		return stats, deleted.Error
	}
	stats.Deleted = deleted.RowsAffected
	return stats, nil
}

func (r *repositoryImpl) CreateListing(ctx context.Context, listing *models.Listing) error {
	err := r.DB(ctx).Omit(clause.Associations).Create(listing).Error
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err,
			fmt.Sprintf("good %d is listed twice for the same product", listing.ExternalID))
	}
	return err
}

func (r *repositoryImpl) UpsertParameter(ctx context.Context, name string) (*models.Parameter, error) {
	var parameter models.Parameter
	err := r.DB(ctx).Where("name = ?", name).Take(&parameter).Error
	if err == nil {
		return &parameter, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	parameter = models.Parameter{Name: name}
	if err := r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&parameter).Error; err != nil {
		return nil, err
	}
	parameter = models.Parameter{}
	if err := r.DB(ctx).Where("name = ?", name).Take(&parameter).Error; err != nil {
		return nil, err
	}
	return &parameter, nil
}

// CreateListingParameter fails with a conflict when the pair already has a value.
func (r *repositoryImpl) CreateListingParameter(ctx context.Context, listingID, parameterID int64, value string) error {
	row := models.ListingParameter{ListingID: listingID, ParameterID: parameterID, Value: value}
	err := r.DB(ctx).Omit(clause.Associations).Create(&row).Error
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "listing parameter already set").
			WithDetails(map[string]int64{"listing_id": listingID, "parameter_id": parameterID})
	}
	return err
}

func (r *repositoryImpl) ListShops(ctx context.Context, acceptingOnly bool) ([]models.Shop, error) {
	query := r.DB(ctx).Model(&models.Shop{})
	if acceptingOnly {
		query = query.Where("state = ?", true)
	}
	var shops []models.Shop
	if err := query.Order("id ASC").Find(&shops).Error; err != nil {
		return nil, err
	}
	return shops, nil
}

func (r *repositoryImpl) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := r.DB(ctx).Order("id ASC").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// ListListings returns live listings of shops accepting orders. Products,
// categories and parameters are batch loaded, one query per relation.
func (r *repositoryImpl) ListListings(ctx context.Context, filter ListingFilter) ([]models.Listing, error) {
	query := r.DB(ctx).Model(&models.Listing{}).
		Select("listings.*").
		Joins("JOIN shops ON shops.id = listings.shop_id AND shops.state = ?", true).
		Where("listings.archived_at IS NULL")
	if filter.ShopID != nil {
		query = query.Where("listings.shop_id = ?", *filter.ShopID)
	}
	if filter.CategoryID != nil {
		query = query.
			Joins("JOIN products ON products.id = listings.product_id").
			Where("products.category_id = ?", *filter.CategoryID)
	}

	var listings []models.Listing
	err := withListingRelations(query).Order("listings.id ASC").Find(&listings).Error
	if err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *repositoryImpl) ShopCategories(ctx context.Context, shopID int64) ([]models.Category, error) {
	var categories []models.Category
	err := r.DB(ctx).
		Joins("JOIN shop_categories ON shop_categories.category_id = categories.id").
		Where("shop_categories.shop_id = ?", shopID).
		Order("categories.id ASC").
		Find(&categories).Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// ShopListings returns the shop's live listings regardless of its state.
func (r *repositoryImpl) ShopListings(ctx context.Context, shopID int64) ([]models.Listing, error) {
	var listings []models.Listing
	query := r.DB(ctx).Where("shop_id = ? AND archived_at IS NULL", shopID)
	if err := withListingRelations(query).Order("id ASC").Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

func withListingRelations(query *gorm.DB) *gorm.DB {
	return query.
		Preload("Product.Category").
		Preload("Parameters", func(tx *gorm.DB) *gorm.DB { return tx.Order("listing_parameters.id ASC") }).
		Preload("Parameters.Parameter")
}
