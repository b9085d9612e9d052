package catalog

import "github.com/angelmondragon/shopfeed-backend/pkg/db/models"

// ShopDTO is the public view of a shop.
type ShopDTO struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	State bool    `json:"state"`
	URL   *string `json:"url"`
}

// ShopState is what a partner sees about their own shop.
type ShopState struct {
	Name  string `json:"name"`
	State bool   `json:"state"`
}

type CategoryDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ProductDTO struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type ParameterDTO struct {
	Parameter string `json:"parameter"`
	Value     string `json:"value"`
}

// ListingDTO is a listing with its product, category and parameters resolved.
type ListingDTO struct {
	ID         int64          `json:"id"`
	Model      string         `json:"model"`
	Product    ProductDTO     `json:"product"`
	Shop       int64          `json:"shop"`
	Quantity   int64          `json:"quantity"`
	Price      int64          `json:"price"`
	PriceRRC   int64          `json:"price_rrc"`
	Parameters []ParameterDTO `json:"product_parameters"`
}

// ListingFilter narrows ListListings. Nil fields do not filter.
type ListingFilter struct {
	ShopID     *int64
	CategoryID *int64
}

// Document is a shop's full catalog in the price list format partners upload.
type Document struct {
	Shop       string             `json:"shop"`
	Categories []DocumentCategory `json:"categories"`
	Goods      []DocumentGood     `json:"goods"`
}

type DocumentCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DocumentGood is one listing. ID is the partner's external identifier.
type DocumentGood struct {
	ID         int64             `json:"id"`
	Category   int64             `json:"category"`
	Model      string            `json:"model"`
	Name       string            `json:"name"`
	Price      int64             `json:"price"`
	PriceRRC   int64             `json:"price_rrc"`
	Quantity   int64             `json:"quantity"`
	Parameters map[string]string `json:"parameters"`
}

func ToShopDTO(shop models.Shop) ShopDTO {
	return ShopDTO{ID: shop.ID, Name: shop.Name, State: shop.State, URL: shop.URL}
}

func ToCategoryDTO(category models.Category) CategoryDTO {
	return CategoryDTO{ID: category.ID, Name: category.Name}
}

// ToListingDTO expects Product.Category and Parameters.Parameter to be preloaded.
func ToListingDTO(listing models.Listing) ListingDTO {
	params := make([]ParameterDTO, 0, len(listing.Parameters))
	for _, p := range listing.Parameters {
		params = append(params, ParameterDTO{Parameter: p.Parameter.Name, Value: p.Value})
	}
	return ListingDTO{
		ID:    listing.ID,
		Model: listing.Model,
		Product: ProductDTO{
			Name:     listing.Product.Name,
			Category: listing.Product.Category.Name,
		},
		Shop:       listing.ShopID,
		Quantity:   listing.Quantity,
		Price:      listing.Price,
		PriceRRC:   listing.PriceRRC,
		Parameters: params,
	}
}
