package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is a product snapshot plus the selected quantity.
type CartItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Images    []Image         `json:"images,omitempty"`
	ShopID    string          `json:"shop_id,omitempty"`
	Quantity  int             `json:"quantity"`
}

// NewCartItem snapshots a product into a cart line with quantity 1.
func NewCartItem(p Product) CartItem {
	images := make([]Image, len(p.Images))
	copy(images, p.Images)
	return CartItem{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		Images:    images,
		ShopID:    p.ShopID,
		Quantity:  1,
	}
}

// LineTotal returns price * quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartSnapshot is the persisted form of a cart. UpdatedAt decides which of
// several stored snapshots is the most recent one.
type CartSnapshot struct {
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ItemCount returns the sum of all quantities.
func (s CartSnapshot) ItemCount() int {
	var count int
	for _, item := range s.Items {
		count += item.Quantity
	}
	return count
}

// Subtotal returns the sum of price * quantity over all lines.
func (s CartSnapshot) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// FindItemIndex returns the index of the line for productID, or -1.
func (s CartSnapshot) FindItemIndex(productID string) int {
	for i := range s.Items {
		if s.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}
