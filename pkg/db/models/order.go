package models

import (
	"time"

	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
)

// Order starts life as the user's basket and carries a contact once placed.
type Order struct {
	ID        int64            `gorm:"primaryKey"`
	UserID    int64            `gorm:"column:user_id;not null;index"`
	State     enums.OrderState `gorm:"column:state;type:text;not null"`
	ContactID *int64           `gorm:"column:contact_id"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`

	User    User        `gorm:"constraint:OnDelete:CASCADE"`
	Contact *Contact    `gorm:"constraint:OnDelete:SET NULL"`
	Lines   []OrderLine `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

type OrderLine struct {
	ID        int64 `gorm:"primaryKey"`
	OrderID   int64 `gorm:"column:order_id;not null;uniqueIndex:idx_order_lines_pair,priority:1"`
	ListingID int64 `gorm:"column:listing_id;not null;uniqueIndex:idx_order_lines_pair,priority:2"`
	Quantity  int64 `gorm:"column:quantity;not null"`

	Listing Listing `gorm:"constraint:OnDelete:RESTRICT"`
}
