package http

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/backend"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storefront"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const (
	maxUploadBytes = 32 << 20
	imagesField    = "images"
)

var adminRoles = []string{domain.RoleAdmin, domain.RoleSuperAdmin}

// DeleteImagesRequest is the body of DELETE /api/admin/images.
type DeleteImagesRequest struct {
	ImageIDs []string `json:"image_ids" validate:"required,min=1,dive,required"`
}

// requireRole rejects anonymous callers with 401 and callers holding none
// of roles with 403. The backend enforces the same rules; this only saves
// a round trip.
func (h *Handler) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sf := storefrontFrom(r)
			if err := sf.Session.RequireAuthenticated(); err != nil {
				h.fail(w, r, err)
				return
			}
			if !sf.Session.HasAnyRole(roles...) {
				h.fail(w, r, apperrors.Forbidden("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// confirmed reports whether the destructive action was confirmed and
// answers 428 when it was not.
func (h *Handler) confirmed(w http.ResponseWriter, r *http.Request, action string) bool {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); ok {
		return true
	}
	h.fail(w, r, apperrors.ConfirmationRequired(action))
	return false
}

// canManageShop allows admins and the owner of the shop.
func canManageShop(r *http.Request, sf *storefront.Storefront, shopID string) error {
	if err := sf.Session.RequireAuthenticated(); err != nil {
		return err
	}
	if sf.Session.HasAnyRole(adminRoles...) {
		return nil
	}
	shop, err := sf.Backend.GetShop(r.Context(), shopID)
	if err != nil {
		return err
	}
	if !sf.Session.IsShopOwner(shop) {
		return apperrors.Forbidden("you do not own this shop")
	}
	return nil
}

// ListUsers handles GET /api/admin/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := storefrontFrom(r).Backend.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, users)
}

// UpdateUser handles PUT /api/admin/users/{id}.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var in backend.UserUpdate
	if !h.decode(w, r, &in) {
		return
	}
	u, err := storefrontFrom(r).Backend.UpdateUser(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, u)
}

// ListRoles handles GET /api/admin/roles.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := storefrontFrom(r).Backend.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, roles)
}

// CreateRole handles POST /api/admin/roles.
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var in backend.RoleInput
	if !h.decode(w, r, &in) {
		return
	}
	role, err := storefrontFrom(r).Backend.CreateRole(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, role)
}

// UpdateRole handles PUT /api/admin/roles/{id}.
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var in backend.RoleInput
	if !h.decode(w, r, &in) {
		return
	}
	role, err := storefrontFrom(r).Backend.UpdateRole(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, role)
}

// DeleteRole handles DELETE /api/admin/roles/{id}?confirm=true.
func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	if !h.confirmed(w, r, "delete role") {
		return
	}
	if err := storefrontFrom(r).Backend.DeleteRole(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.noContent(w, r)
}

// CreateShop handles POST /api/admin/shops.
func (h *Handler) CreateShop(w http.ResponseWriter, r *http.Request) {
	var in backend.ShopInput
	if !h.decode(w, r, &in) {
		return
	}
	sf := storefrontFrom(r)
	u := sf.Session.User()
	if u == nil {
		h.fail(w, r, apperrors.Unauthorized("authentication required"))
		return
	}
	if !sf.Session.HasAnyRole(adminRoles...) {
		// Owners can only create shops for themselves.
		in.OwnerID = u.ID
	}
	shop, err := sf.Backend.CreateShop(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, shop)
}

// DeleteShop handles DELETE /api/admin/shops/{id}?confirm=true.
func (h *Handler) DeleteShop(w http.ResponseWriter, r *http.Request) {
	sf := storefrontFrom(r)
	id := chi.URLParam(r, "id")
	if err := canManageShop(r, sf, id); err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.confirmed(w, r, "delete shop") {
		return
	}
	if err := sf.Backend.DeleteShop(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.noContent(w, r)
}

// UploadImages handles POST /api/admin/products/{id}/images as
// multipart/form-data with one or more "images" parts.
func (h *Handler) UploadImages(w http.ResponseWriter, r *http.Request) {
	sf := storefrontFrom(r)
	productID := chi.URLParam(r, "id")

	product, err := sf.Backend.GetProduct(r.Context(), productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := canManageShop(r, sf, product.ShopID); err != nil {
		h.fail(w, r, err)
		return
	}

	files, err := readUploads(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	images, err := sf.Backend.UploadProductImages(r.Context(), productID, files)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, images)
}

func readUploads(w http.ResponseWriter, r *http.Request) ([]backend.ImageUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, apperrors.InvalidInput("request must be multipart/form-data")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[imagesField]
	if len(headers) == 0 {
		return nil, apperrors.InvalidInput("at least one image is required")
	}
	if len(headers) > backend.MaxImagesPerUpload {
		return nil, apperrors.InvalidInput(fmt.Sprintf("at most %d images per upload", backend.MaxImagesPerUpload))
	}

	files := make([]backend.ImageUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %q: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %q: %w", fh.Filename, err)
		}
		files = append(files, backend.ImageUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}

// DeleteImages handles DELETE /api/admin/images?confirm=true.
func (h *Handler) DeleteImages(w http.ResponseWriter, r *http.Request) {
	if !h.confirmed(w, r, "delete images") {
		return
	}
	var req DeleteImagesRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := storefrontFrom(r).Backend.DeleteImages(r.Context(), req.ImageIDs); err != nil {
		h.fail(w, r, err)
		return
	}
	h.noContent(w, r)
}

// SetPrimaryImage handles PUT /api/admin/images/{id}/primary.
func (h *Handler) SetPrimaryImage(w http.ResponseWriter, r *http.Request) {
	if err := storefrontFrom(r).Backend.SetPrimaryImage(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.noContent(w, r)
}
