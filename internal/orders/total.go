package orders

import "github.com/angelmondragon/shopfeed-backend/pkg/db/models"

// Total is the sum of quantity times unit price over the lines. Every order
// view computes its total here; lines must have Listing loaded.
func Total(lines []models.OrderLine) int64 {
	var sum int64
	for _, line := range lines {
		sum += line.Quantity * line.Listing.Price
	}
	return sum
}
