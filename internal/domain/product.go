package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog entry as returned by the backend.
// Prices are expressed in the base currency (XAF).
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ShopID      string          `json:"shop_id,omitempty"`
	Category    string          `json:"category,omitempty"`
	Featured    bool            `json:"featured,omitempty"`
	Images      []Image         `json:"images,omitempty"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
}

// Image is a product or site image reference.
type Image struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	IsPrimary bool   `json:"is_primary,omitempty"`
}

// PrimaryImage returns the image flagged primary, else the first one.
func (p *Product) PrimaryImage() (Image, bool) {
	for _, img := range p.Images {
		if img.IsPrimary {
			return img, true
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0], true
	}
	return Image{}, false
}

// ProductPage is a page of products from GET /products.
type ProductPage struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// ProductFilter holds the query parameters accepted by GET /products.
type ProductFilter struct {
	Search   string
	Category string
	ShopID   string
	Page     int
	PageSize int
}

// Shop is a merchant storefront owned by a single user.
type Shop struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// DisplaySettings are the storefront display toggles served by GET /display/settings.
type DisplaySettings struct {
	ShowFeatured    bool              `json:"show_featured"`
	ShowCarousel    bool              `json:"show_carousel"`
	ProductsPerPage int               `json:"products_per_page"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// SiteImage is a carousel or banner image served by GET /site-images/visible.
type SiteImage struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Position int    `json:"position"`
	Visible  bool   `json:"visible"`
}
