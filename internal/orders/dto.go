package orders

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/shopfeed-backend/internal/catalog"
	"github.com/angelmondragon/shopfeed-backend/internal/users"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
)

// OrderDTO is an order with resolved lines and its computed total.
type OrderDTO struct {
	ID       int64             `json:"id"`
	Items    []OrderLineDTO    `json:"ordered_items"`
	State    enums.OrderState  `json:"state"`
	Created  time.Time         `json:"dt"`
	TotalSum int64             `json:"total_sum"`
	Contact  *users.ContactDTO `json:"contact"`
}

type OrderLineDTO struct {
	ID       int64              `json:"id"`
	Listing  catalog.ListingDTO `json:"product_info"`
	Quantity int64              `json:"quantity"`
}

// AddItem asks for quantity units of a listing. Numbers may arrive as JSON
// numbers or numeric strings; anything else sets Invalid instead of failing
// the decode, so the rest of the batch still applies.
type AddItem struct {
	ListingID int64  `json:"product_info"`
	Quantity  int64  `json:"quantity"`
	Invalid   string `json:"-"`
}

func (a *AddItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ListingID json.RawMessage `json:"product_info"`
		Quantity  json.RawMessage `json:"quantity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		*a = AddItem{Invalid: "item must be an object"}
		return nil
	}
	var problems []string
	a.ListingID = wholeNumber(raw.ListingID, "product_info", &problems)
	a.Quantity = wholeNumber(raw.Quantity, "quantity", &problems)
	a.Invalid = strings.Join(problems, "; ")
	return nil
}

// UpdateItem sets the quantity of an existing basket line. Decoding follows
// the AddItem rules.
type UpdateItem struct {
	ID       int64  `json:"id"`
	Quantity int64  `json:"quantity"`
	Invalid  string `json:"-"`
}

func (u *UpdateItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		Quantity json.RawMessage `json:"quantity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		*u = UpdateItem{Invalid: "item must be an object"}
		return nil
	}
	var problems []string
	u.ID = wholeNumber(raw.ID, "id", &problems)
	u.Quantity = wholeNumber(raw.Quantity, "quantity", &problems)
	u.Invalid = strings.Join(problems, "; ")
	return nil
}

// wholeNumber reads 3 or "3". Missing and null values read as zero, which the
// service rejects on its own terms.
func wholeNumber(raw json.RawMessage, field string, problems *[]string) int64 {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0
	}
	if strings.HasPrefix(text, `"`) {
		var quoted string
		if err := json.Unmarshal(raw, &quoted); err != nil {
			*problems = append(*problems, field+" must be an integer")
			return 0
		}
		text = strings.TrimSpace(quoted)
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		*problems = append(*problems, field+" must be an integer")
		return 0
	}
	return v
}

// ItemError names a batch entry that was skipped.
type ItemError struct {
	Index   int    `json:"index"`
	ID      int64  `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchResult reports a basket batch: how many entries applied and which were skipped.
type BatchResult struct {
	Count  int64       `json:"count"`
	Errors []ItemError `json:"errors,omitempty"`
}

// ToOrderDTO expects lines with Listing.Product.Category and
// Listing.Parameters.Parameter loaded.
func ToOrderDTO(order models.Order) OrderDTO {
	items := make([]OrderLineDTO, 0, len(order.Lines))
	for _, line := range order.Lines {
		items = append(items, OrderLineDTO{
			ID:       line.ID,
			Listing:  catalog.ToListingDTO(line.Listing),
			Quantity: line.Quantity,
		})
	}
	dto := OrderDTO{
		ID:       order.ID,
		Items:    items,
		State:    order.State,
		Created:  order.CreatedAt,
		TotalSum: Total(order.Lines),
	}
	if order.Contact != nil {
		contact := users.ToContactDTO(*order.Contact)
		dto.Contact = &contact
	}
	return dto
}
