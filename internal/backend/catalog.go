package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// ListProducts returns a page of products matching f.
func (c *Client) ListProducts(ctx context.Context, f domain.ProductFilter) (domain.ProductPage, error) {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.ShopID != "" {
		q.Set("shop_id", f.ShopID)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		q.Set("limit", strconv.Itoa(f.PageSize))
	}

	var raw json.RawMessage
	if err := c.do(ctx, call{method: http.MethodGet, path: "/products", query: q, auth: optional, out: &raw}); err != nil {
		return domain.ProductPage{}, err
	}

	page, err := decodeProductPage(raw)
	if err != nil {
		return domain.ProductPage{}, err
	}
	if page.Page == 0 {
		page.Page = max(f.Page, 1)
	}
	if page.PageSize == 0 {
		page.PageSize = f.PageSize
	}
	return page, nil
}

// decodeProductPage accepts a bare array, {"data": [...], "total": n} and
// {"products": [...], "total": n}.
func decodeProductPage(raw json.RawMessage) (domain.ProductPage, error) {
	if len(raw) == 0 {
		return domain.ProductPage{Products: []domain.Product{}}, nil
	}

	if raw[0] == '[' {
		var products []domain.Product
		if err := json.Unmarshal(raw, &products); err != nil {
			return domain.ProductPage{}, apperrors.Internal(fmt.Errorf("decode products: %w", err))
		}
		return domain.ProductPage{Products: products, Total: len(products)}, nil
	}

	var body struct {
		Data     []domain.Product `json:"data"`
		Products []domain.Product `json:"products"`
		Total    int              `json:"total"`
		Page     int              `json:"page"`
		PageSize int              `json:"page_size"`
		Limit    int              `json:"limit"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return domain.ProductPage{}, apperrors.Internal(fmt.Errorf("decode products: %w", err))
	}

	page := domain.ProductPage{
		Products: body.Products,
		Total:    body.Total,
		Page:     body.Page,
		PageSize: body.PageSize,
	}
	if page.Products == nil {
		page.Products = body.Data
	}
	if page.Products == nil {
		page.Products = []domain.Product{}
	}
	if page.PageSize == 0 {
		page.PageSize = body.Limit
	}
	if page.Total == 0 {
		page.Total = len(page.Products)
	}
	return page, nil
}

// GetProduct returns one product.
func (c *Client) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := c.doJSON(ctx, http.MethodGet, "/products/"+url.PathEscape(id), optional, nil, &p)
	return p, err
}

// FeaturedProducts returns the products flagged for the home page.
func (c *Client) FeaturedProducts(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	err := c.doJSON(ctx, http.MethodGet, "/products/featured", optional, nil, &out)
	return nonNil(out), err
}

// ListShops returns all shops.
func (c *Client) ListShops(ctx context.Context) ([]domain.Shop, error) {
	var out []domain.Shop
	err := c.doJSON(ctx, http.MethodGet, "/shops", optional, nil, &out)
	return nonNil(out), err
}

// GetShop returns one shop.
func (c *Client) GetShop(ctx context.Context, id string) (domain.Shop, error) {
	var s domain.Shop
	err := c.doJSON(ctx, http.MethodGet, "/shops/"+url.PathEscape(id), optional, nil, &s)
	return s, err
}

// DisplaySettings returns the storefront display toggles.
func (c *Client) DisplaySettings(ctx context.Context) (domain.DisplaySettings, error) {
	var s domain.DisplaySettings
	err := c.doJSON(ctx, http.MethodGet, "/display/settings", anonymous, nil, &s)
	return s, err
}

// VisibleSiteImages returns the carousel and banner images currently shown.
func (c *Client) VisibleSiteImages(ctx context.Context) ([]domain.SiteImage, error) {
	var out []domain.SiteImage
	err := c.doJSON(ctx, http.MethodGet, "/site-images/visible", anonymous, nil, &out)
	return nonNil(out), err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
