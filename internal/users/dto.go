package users

import (
	"strings"

	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
)

// UserDTO is the transport shape that omits credentials.
type UserDTO struct {
	ID        int64          `json:"id"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Email     string         `json:"email"`
	Company   string         `json:"company"`
	Position  string         `json:"position"`
	Type      enums.UserType `json:"type"`
	Contacts  []ContactDTO   `json:"contacts"`
}

type ContactDTO struct {
	ID        int64  `json:"id"`
	City      string `json:"city"`
	Street    string `json:"street"`
	House     string `json:"house"`
	Structure string `json:"structure"`
	Building  string `json:"building"`
	Apartment string `json:"apartment"`
	Phone     string `json:"phone"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Company      string
	Position     string
	Type         enums.UserType
}

// RegisterInput is the body of POST /user/register.
type RegisterInput struct {
	FirstName string `json:"first_name" validate:"required,max=40"`
	LastName  string `json:"last_name" validate:"required,max=40"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	Company   string `json:"company" validate:"required,max=40"`
	Position  string `json:"position" validate:"required,max=40"`
	Type      string `json:"type" validate:"omitempty,oneof=shop buyer"`
}

// UpdateDetailsInput carries the fields of POST /user/details; nil fields are left as is.
type UpdateDetailsInput struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=40"`
	LastName  *string `json:"last_name" validate:"omitempty,max=40"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Password  *string `json:"password" validate:"omitempty,min=8"`
	Company   *string `json:"company" validate:"omitempty,max=40"`
	Position  *string `json:"position" validate:"omitempty,max=40"`
}

// ContactInput is the body of POST /user/contact.
type ContactInput struct {
	City      string `json:"city" validate:"required,max=50"`
	Street    string `json:"street" validate:"required,max=100"`
	House     string `json:"house" validate:"max=15"`
	Structure string `json:"structure" validate:"max=15"`
	Building  string `json:"building" validate:"max=15"`
	Apartment string `json:"apartment" validate:"max=15"`
	Phone     string `json:"phone" validate:"required,max=20"`
}

// ContactUpdateInput is the body of PUT /user/contact.
type ContactUpdateInput struct {
	ID        int64   `json:"id" validate:"required,gt=0"`
	City      *string `json:"city" validate:"omitempty,max=50"`
	Street    *string `json:"street" validate:"omitempty,max=100"`
	House     *string `json:"house" validate:"omitempty,max=15"`
	Structure *string `json:"structure" validate:"omitempty,max=15"`
	Building  *string `json:"building" validate:"omitempty,max=15"`
	Apartment *string `json:"apartment" validate:"omitempty,max=15"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	contacts := make([]ContactDTO, 0, len(u.Contacts))
	for _, c := range u.Contacts {
		contacts = append(contacts, ToContactDTO(c))
	}
	return &UserDTO{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Company:   u.Company,
		Position:  u.Position,
		Type:      u.Type,
		Contacts:  contacts,
	}
}

func ToContactDTO(c models.Contact) ContactDTO {
	return ContactDTO{
		ID:        c.ID,
		City:      c.City,
		Street:    c.Street,
		House:     c.House,
		Structure: c.Structure,
		Building:  c.Building,
		Apartment: c.Apartment,
		Phone:     c.Phone,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		Email:        NormalizeEmail(c.Email),
		PasswordHash: c.PasswordHash,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		Company:      c.Company,
		Position:     c.Position,
		Type:         c.Type,
		IsActive:     false,
	}
}

// NormalizeEmail lowercases and trims an address before it is stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
