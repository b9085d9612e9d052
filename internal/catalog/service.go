package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
)

// Service exposes catalog reads and shop management.
type Service interface {
	ListShops(ctx context.Context) ([]ShopDTO, error)
	ListCategories(ctx context.Context) ([]CategoryDTO, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]ListingDTO, error)
	GetShopState(ctx context.Context, ownerID int64) (*ShopState, error)
	SetShopState(ctx context.Context, ownerID int64, state bool) error
	Export(ctx context.Context, ownerID int64) (*Document, error)
	InvalidateCache(ctx context.Context)
}

// ServiceParams wires the catalog service. Cache is optional.
type ServiceParams struct {
	Repository Repository
	Cache      CacheStore
	Config     config.CatalogConfig
	Logger     *logger.Logger
}

type service struct {
	repo  Repository
	cache *readCache
	cfg   config.CatalogConfig
	logg  *logger.Logger
}

// NewService builds a catalog service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, errors.New("catalog repository required")
	}
	return &service{
		repo:  params.Repository,
		cache: &readCache{store: params.Cache, logg: params.Logger},
		cfg:   params.Config,
		logg:  params.Logger,
	}, nil
}

// ListShops returns the shops currently accepting orders.
func (s *service) ListShops(ctx context.Context) ([]ShopDTO, error) {
	return loadCached(ctx, s.cache, s.cfg.ShopsCacheTTL, func() ([]ShopDTO, error) {
		shops, err := s.repo.ListShops(ctx, true)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shops")
		}
		out := make([]ShopDTO, 0, len(shops))
		for _, shop := range shops {
			out = append(out, ToShopDTO(shop))
		}
		return out, nil
	}, "shops")
}

func (s *service) ListCategories(ctx context.Context) ([]CategoryDTO, error) {
	return loadCached(ctx, s.cache, s.cfg.CategoriesCacheTTL, func() ([]CategoryDTO, error) {
		categories, err := s.repo.ListCategories(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
		}
		out := make([]CategoryDTO, 0, len(categories))
		for _, category := range categories {
			out = append(out, ToCategoryDTO(category))
		}
		return out, nil
	}, "categories")
}

func (s *service) ListListings(ctx context.Context, filter ListingFilter) ([]ListingDTO, error) {
	return loadCached(ctx, s.cache, s.cfg.ListingsCacheTTL, func() ([]ListingDTO, error) {
		listings, err := s.repo.ListListings(ctx, filter)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list listings")
		}
		out := make([]ListingDTO, 0, len(listings))
		for _, listing := range listings {
			out = append(out, ToListingDTO(listing))
		}
		return out, nil
	}, "listings", "shop", optionalID(filter.ShopID), "category", optionalID(filter.CategoryID))
}

func (s *service) GetShopState(ctx context.Context, ownerID int64) (*ShopState, error) {
	shop, err := s.repo.FindShopByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	if shop == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
	}
	return &ShopState{Name: shop.Name, State: shop.State}, nil
}

// SetShopState toggles whether the owner's shop accepts orders.
func (s *service) SetShopState(ctx context.Context, ownerID int64, state bool) error {
	found, err := s.repo.SetShopState(ctx, ownerID, state)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shop state")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
	}
	s.cache.Bump(ctx)
	return nil
}

// Export renders the owner's live catalog in the upload document format.
func (s *service) Export(ctx context.Context, ownerID int64) (*Document, error) {
	return ExportShop(ctx, s.repo, ownerID)
}

func (s *service) InvalidateCache(ctx context.Context) {
	s.cache.Bump(ctx)
}

// ExportShop builds the document from any repository, including one bound to
// an open transaction.
func ExportShop(ctx context.Context, repo Repository, ownerID int64) (*Document, error) {
	shop, err := repo.FindShopByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	if shop == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
	}

	categories, err := repo.ShopCategories(ctx, shop.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop categories")
	}
	listings, err := repo.ShopListings(ctx, shop.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("load listings of shop %d", shop.ID))
	}

	doc := &Document{
		Shop:       shop.Name,
		Categories: make([]DocumentCategory, 0, len(categories)),
		Goods:      make([]DocumentGood, 0, len(listings)),
	}
	for _, category := range categories {
		doc.Categories = append(doc.Categories, DocumentCategory{ID: category.ID, Name: category.Name})
	}
	for _, listing := range listings {
		params := make(map[string]string, len(listing.Parameters))
		for _, p := range listing.Parameters {
			params[p.Parameter.Name] = p.Value
		}
		doc.Goods = append(doc.Goods, DocumentGood{
			ID:         listing.ExternalID,
			Category:   listing.Product.CategoryID,
			Model:      listing.Model,
			Name:       listing.Product.Name,
			Price:      listing.Price,
			PriceRRC:   listing.PriceRRC,
			Quantity:   listing.Quantity,
			Parameters: params,
		})
	}
	sort.SliceStable(doc.Goods, func(i, j int) bool { return doc.Goods[i].ID < doc.Goods[j].ID })
	return doc, nil
}
