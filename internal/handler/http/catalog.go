package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storefront"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/pkg/slug"
)

// ProductView is a product with its price formatted in the session currency.
type ProductView struct {
	domain.Product
	Slug           string `json:"slug"`
	FormattedPrice string `json:"formatted_price"`
}

// ProductPageView is a page of products.
type ProductPageView struct {
	Products []ProductView `json:"products"`
	pagination.Meta
}

func productView(sf *storefront.Storefront, p domain.Product) ProductView {
	return ProductView{
		Product:        p,
		Slug:           slug.WithID(p.Name, p.ID),
		FormattedPrice: sf.Currency.FormatPrice(p.Price),
	}
}

func productViews(sf *storefront.Storefront, products []domain.Product) []ProductView {
	out := make([]ProductView, len(products))
	for i, p := range products {
		out[i] = productView(sf, p)
	}
	return out
}

// productFilter reads the listing query. Bad numbers fall back to defaults.
func productFilter(r *http.Request) domain.ProductFilter {
	q := r.URL.Query()
	page := pagination.FromRequest(r)
	return domain.ProductFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		ShopID:   q.Get("shop_id"),
		Page:     page.Page,
		PageSize: page.Limit,
	}
}

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	sf := storefrontFrom(r)
	filter := productFilter(r)
	page, err := sf.Backend.ListProducts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// Older backend endpoints omit the paging echo.
	if page.Page == 0 {
		page.Page = filter.Page
	}
	if page.PageSize == 0 {
		page.PageSize = filter.PageSize
	}
	h.respond(w, r, http.StatusOK, ProductPageView{
		Products: productViews(sf, page.Products),
		Meta:     pagination.NewMeta(page.Total, page.Page, page.PageSize),
	})
}

// FeaturedProducts handles GET /api/products/featured.
func (h *Handler) FeaturedProducts(w http.ResponseWriter, r *http.Request) {
	sf := storefrontFrom(r)
	products, err := sf.Backend.FeaturedProducts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, productViews(sf, products))
}

// GetProduct handles GET /api/products/{id} and records the view.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	sf := storefrontFrom(r)
	p, err := sf.Backend.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := sf.Prefs.RecordView(r.Context(), p); err != nil {
		// The product is still worth showing.
		logger.FromContext(r.Context()).WarnContext(r.Context(), "failed to record product view",
			slog.String("product_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
	h.respond(w, r, http.StatusOK, productView(sf, p))
}

// ListShops handles GET /api/shops.
func (h *Handler) ListShops(w http.ResponseWriter, r *http.Request) {
	shops, err := storefrontFrom(r).Backend.ListShops(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, shops)
}

// GetShop handles GET /api/shops/{id}.
func (h *Handler) GetShop(w http.ResponseWriter, r *http.Request) {
	shop, err := storefrontFrom(r).Backend.GetShop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, shop)
}

// DisplaySettings handles GET /api/settings/display.
func (h *Handler) DisplaySettings(w http.ResponseWriter, r *http.Request) {
	s, err := storefrontFrom(r).Backend.DisplaySettings(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, s)
}

// SiteImages handles GET /api/site-images.
func (h *Handler) SiteImages(w http.ResponseWriter, r *http.Request) {
	images, err := storefrontFrom(r).Backend.VisibleSiteImages(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, images)
}
