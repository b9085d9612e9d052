package models

import (
	"time"

	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
)

// User is either a shop partner or a buyer.
type User struct {
	ID           int64          `gorm:"primaryKey"`
	Email        string         `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string         `gorm:"column:password_hash;not null"`
	FirstName    string         `gorm:"column:first_name;not null"`
	LastName     string         `gorm:"column:last_name;not null"`
	Company      string         `gorm:"column:company;not null"`
	Position     string         `gorm:"column:position;not null"`
	Type         enums.UserType `gorm:"column:type;type:text;not null"`
	IsActive     bool           `gorm:"column:is_active;not null"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`

	Contacts []Contact `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Contact is a delivery address owned by a user.
type Contact struct {
	ID        int64  `gorm:"primaryKey"`
	UserID    int64  `gorm:"column:user_id;not null;index"`
	City      string `gorm:"column:city;not null"`
	Street    string `gorm:"column:street;not null"`
	House     string `gorm:"column:house;not null;default:''"`
	Structure string `gorm:"column:structure;not null;default:''"`
	Building  string `gorm:"column:building;not null;default:''"`
	Apartment string `gorm:"column:apartment;not null;default:''"`
	Phone     string `gorm:"column:phone;not null"`
}

// EmailConfirmationToken is consumed when the owner confirms their email.
type EmailConfirmationToken struct {
	ID        int64     `gorm:"primaryKey"`
	UserID    int64     `gorm:"column:user_id;not null;index"`
	Key       string    `gorm:"column:key;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`

	User User `gorm:"constraint:OnDelete:CASCADE"`
}
