package models

import "time"

// Shop belongs to exactly one partner user.
type Shop struct {
	ID        int64     `gorm:"primaryKey"`
	UserID    int64     `gorm:"column:user_id;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;not null"`
	URL       *string   `gorm:"column:url"`
	State     bool      `gorm:"column:state;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	User       User       `gorm:"constraint:OnDelete:CASCADE"`
	Categories []Category `gorm:"many2many:shop_categories;constraint:OnDelete:CASCADE"`
}

// Category ids come from partner documents, so they are never generated.
type Category struct {
	ID   int64  `gorm:"primaryKey;autoIncrement:false"`
	Name string `gorm:"column:name;not null"`
}

type Product struct {
	ID         int64  `gorm:"primaryKey"`
	CategoryID int64  `gorm:"column:category_id;not null;uniqueIndex:idx_products_name_category,priority:2"`
	Name       string `gorm:"column:name;not null;uniqueIndex:idx_products_name_category,priority:1"`

	Category Category
}

// Listing is a shop's sellable instance of a product. Archived listings are
// frozen history kept for the order lines that reference them.
type Listing struct {
	ID         int64      `gorm:"primaryKey"`
	ProductID  int64      `gorm:"column:product_id;not null;index"`
	ShopID     int64      `gorm:"column:shop_id;not null;index"`
	ExternalID int64      `gorm:"column:external_id;not null"`
	Model      string     `gorm:"column:model;not null;default:''"`
	Quantity   int64      `gorm:"column:quantity;not null"`
	Price      int64      `gorm:"column:price;not null"`
	PriceRRC   int64      `gorm:"column:price_rrc;not null"`
	ArchivedAt *time.Time `gorm:"column:archived_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`

	Product    Product
	Shop       Shop               `gorm:"constraint:OnDelete:CASCADE"`
	Parameters []ListingParameter `gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE"`
}

type Parameter struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"column:name;not null;uniqueIndex"`
}

type ListingParameter struct {
	ID          int64  `gorm:"primaryKey"`
	ListingID   int64  `gorm:"column:listing_id;not null;uniqueIndex:idx_listing_parameters_pair,priority:1"`
	ParameterID int64  `gorm:"column:parameter_id;not null;uniqueIndex:idx_listing_parameters_pair,priority:2"`
	Value       string `gorm:"column:value;not null"`

	Parameter Parameter
}
