package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storefront"
)

// AddItemRequest adds one unit of a product to the cart.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

// UpdateQuantityRequest sets a line quantity. Zero removes the line.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

// CartLineView is a cart line with display prices.
type CartLineView struct {
	domain.CartItem
	FormattedPrice string `json:"formatted_price"`
	FormattedTotal string `json:"formatted_total"`
}

// CartView is the cart as shown to the UI.
type CartView struct {
	Items             []CartLineView  `json:"items"`
	ItemCount         int             `json:"item_count"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	FormattedSubtotal string          `json:"formatted_subtotal"`
	Currency          string          `json:"currency"`
}

func cartView(sf *storefront.Storefront, snap domain.CartSnapshot) CartView {
	lines := make([]CartLineView, len(snap.Items))
	for i, item := range snap.Items {
		lines[i] = CartLineView{
			CartItem:       item,
			FormattedPrice: sf.Currency.FormatPrice(item.Price),
			FormattedTotal: sf.Currency.FormatPrice(item.LineTotal()),
		}
	}
	subtotal := snap.Subtotal()
	return CartView{
		Items:             lines,
		ItemCount:         snap.ItemCount(),
		Subtotal:          subtotal,
		FormattedSubtotal: sf.Currency.FormatPrice(subtotal),
		Currency:          sf.Currency.Preference().CurrencyCode,
	}
}

// GetCart handles GET /api/cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sf := storefrontFrom(r)
	h.respond(w, r, http.StatusOK, cartView(sf, sf.Cart.Snapshot()))
}

// AddItem handles POST /api/cart/items. Price and stock come from the
// backend, never from the request.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	sf := storefrontFrom(r)
	product, err := sf.Backend.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	snap, err := sf.Cart.AddItem(r.Context(), product)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, cartView(sf, snap))
}

// UpdateQuantity handles PATCH /api/cart/items/{productID}.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}

	sf := storefrontFrom(r)
	snap, err := sf.Cart.UpdateQuantity(r.Context(), chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, cartView(sf, snap))
}

// RemoveItem handles DELETE /api/cart/items/{productID}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sf := storefrontFrom(r)
	snap, err := sf.Cart.RemoveItem(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, cartView(sf, snap))
}

// ClearCart handles DELETE /api/cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sf := storefrontFrom(r)
	snap, err := sf.Cart.Clear(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, cartView(sf, snap))
}
