package controllers

import (
	"net/http"

	"github.com/angelmondragon/shopfeed-backend/api/responses"
	"github.com/angelmondragon/shopfeed-backend/api/validators"
	"github.com/angelmondragon/shopfeed-backend/internal/catalog"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
)

// CategoryList serves GET /categories.
func CategoryList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := svc.ListCategories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, categories)
	}
}

// ShopList serves GET /shops: shops currently accepting orders.
func ShopList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shops, err := svc.ListShops(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shops)
	}
}

// ProductList serves GET /products?shop_id=&category_id=.
func ProductList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := validators.ParseQueryID(r, "shop_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		categoryID, err := validators.ParseQueryID(r, "category_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listings, err := svc.ListListings(r.Context(), catalog.ListingFilter{ShopID: shopID, CategoryID: categoryID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listings)
	}
}
