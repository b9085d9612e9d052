// Package ingest replaces a shop's catalog from a partner price list.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/shopfeed-backend/internal/catalog"
	"github.com/angelmondragon/shopfeed-backend/internal/tasks"
	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/lock"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"gorm.io/gorm"
)

// Payload is the body of an ingest task. Exactly one of URL and Document is set.
type Payload struct {
	UserID   int64   `json:"user_id"`
	URL      *string `json:"url,omitempty"`
	Document *string `json:"document,omitempty"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LeaseStore is the redis surface used for the per-shop ingestion lease.
type LeaseStore interface {
	lock.Store
	LeaseKey(parts ...string) string
}

type cacheInvalidator interface {
	InvalidateCache(ctx context.Context)
}

// ServiceParams wires the ingestion service.
type ServiceParams struct {
	DB         txRunner
	Repository catalog.Repository
	Cache      cacheInvalidator
	Fetcher    Fetcher
	Leases     LeaseStore
	Config     config.CatalogConfig
	Logger     *logger.Logger
	Clock      func() time.Time
}

// Service runs ingestion: fetch, parse, then an all-or-nothing apply.
type Service struct {
	db      txRunner
	repo    catalog.Repository
	cache   cacheInvalidator
	fetcher Fetcher
	leases  LeaseStore
	cfg     config.CatalogConfig
	logg    *logger.Logger
	now     func() time.Time
}

// Result summarises a successful run.
type Result struct {
	ShopID   int64
	Listings int
	Archived int64
	Deleted  int64
	// BasketLines is how many open-basket lines pointed at replaced listings.
	BasketLines int64
}

// NewService validates dependencies and returns an ingestion service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Repository == nil {
		return nil, errors.New("catalog repository required")
	}
	if params.Fetcher == nil {
		return nil, errors.New("fetcher required")
	}
	if params.Leases == nil {
		return nil, errors.New("lease store required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:      params.DB,
		repo:    params.Repository,
		cache:   params.Cache,
		fetcher: params.Fetcher,
		leases:  params.Leases,
		cfg:     params.Config,
		logg:    params.Logger,
		now:     clock,
	}, nil
}

// Handle is the tasks.Handler for ingest tasks. The result is the shop's
// exported catalog as committed by this run.
func (s *Service) Handle(ctx context.Context, task *models.Task) (any, error) {
	var payload Payload
	if err := task.Payload.Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode ingest payload")
	}
	return s.Run(ctx, payload)
}

// Run ingests one document for the payload's owner.
func (s *Service) Run(ctx context.Context, payload Payload) (*catalog.Document, error) {
	if payload.UserID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}
	hasURL := payload.URL != nil && strings.TrimSpace(*payload.URL) != ""
	hasDoc := payload.Document != nil && strings.TrimSpace(*payload.Document) != ""
	if hasURL == hasDoc {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "exactly one of url or document is required")
	}

	ctx = s.logg.WithField(ctx, "shop_owner_id", payload.UserID)

	var data []byte
	var sourceURL *string
	if hasURL {
		source := strings.TrimSpace(*payload.URL)
		fetched, err := s.fetcher.Fetch(ctx, source)
		if err != nil {
			return nil, err
		}
		data = fetched
		sourceURL = &source
	} else {
		data = []byte(*payload.Document)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}

	lease, err := lock.NewRedisLock(s.leases, s.leases.LeaseKey("ingest", "shop", strconv.FormatInt(payload.UserID, 10)), s.cfg.IngestLeaseTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build ingest lease")
	}
	acquired, err := lease.Acquire(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire ingest lease")
	}
	if !acquired {
		s.logg.Info(ctx, "ingest.lease_busy")
		return nil, tasks.ErrRetryLater
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "ingest.lease_release_failed", err)
		}
	}()

	var (
		result   Result
		exported *catalog.Document
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		applied, err := s.apply(ctx, repo, payload.UserID, sourceURL, doc)
		if err != nil {
			return err
		}
		result = applied
		exported, err = catalog.ExportShop(ctx, repo, payload.UserID)
		return err
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply catalog")
	}

	if s.cache != nil {
		s.cache.InvalidateCache(ctx)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"shop_id":      result.ShopID,
		"listings":     result.Listings,
		"archived":     result.Archived,
		"deleted":      result.Deleted,
		"basket_lines": result.BasketLines,
	}), "ingest.applied")
	return exported, nil
}

func (s *Service) apply(ctx context.Context, repo catalog.Repository, ownerID int64, url *string, doc *catalog.Document) (Result, error) {
	shop, err := repo.UpsertShop(ctx, ownerID, doc.Shop, url)
	if err != nil {
		return Result{}, err
	}
	result := Result{ShopID: shop.ID}

	for _, c := range doc.Categories {
		if _, err := repo.UpsertCategory(ctx, shop.ID, c.ID, c.Name); err != nil {
			return result, err
		}
	}

	stats, err := repo.ReplaceListings(ctx, shop.ID, s.now().UTC())
	if err != nil {
		return result, err
	}
	result.Archived = stats.Archived
	result.Deleted = stats.Deleted
	result.BasketLines = stats.BasketLines

	for _, good := range doc.Goods {
		product, err := repo.UpsertProduct(ctx, good.Name, good.Category)
		if err != nil {
			return result, err
		}
		listing := &models.Listing{
			ProductID:  product.ID,
			ShopID:     shop.ID,
			ExternalID: good.ID,
			Model:      good.Model,
			Quantity:   good.Quantity,
			Price:      good.Price,
			PriceRRC:   good.PriceRRC,
		}
		if err := repo.CreateListing(ctx, listing); err != nil {
			return result, err
		}
		names := make([]string, 0, len(good.Parameters))
		for name := range good.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			value := good.Parameters[name]
			parameter, err := repo.UpsertParameter(ctx, name)
			if err != nil {
				return result, err
			}
			if err := repo.CreateListingParameter(ctx, listing.ID, parameter.ID, value); err != nil {
				return result, fmt.Errorf("good %d: %w", good.ID, err)
			}
		}
		result.Listings++
	}
	return result, nil
}
