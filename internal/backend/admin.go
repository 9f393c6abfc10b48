package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/utafrali/storefront/internal/domain"
)

// ShopInput is the body of POST /shops.
type ShopInput struct {
	Name        string `json:"name" validate:"required,min=2,max=120"`
	Description string `json:"description" validate:"max=2000"`
	OwnerID     string `json:"owner_id,omitempty"`
}

// UserUpdate is the body of PUT /users/:id. Nil fields are left unchanged.
type UserUpdate struct {
	FirstName *string  `json:"first_name,omitempty" validate:"omitempty,min=1,max=100"`
	LastName  *string  `json:"last_name,omitempty" validate:"omitempty,min=1,max=100"`
	Email     *string  `json:"email,omitempty" validate:"omitempty,email"`
	Phone     *string  `json:"phone,omitempty" validate:"omitempty,e164"`
	Roles     []string `json:"roles,omitempty"`
}

// RoleInput is the body of POST /roles and PUT /roles/:id.
type RoleInput struct {
	Name        string `json:"name" validate:"required,min=2,max=50"`
	Description string `json:"description" validate:"max=500"`
}

// CreateShop creates a shop.
func (c *Client) CreateShop(ctx context.Context, in ShopInput) (domain.Shop, error) {
	var s domain.Shop
	err := c.doJSON(ctx, http.MethodPost, "/shops", required, in, &s)
	return s, err
}

// DeleteShop deletes a shop.
func (c *Client) DeleteShop(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/shops/"+url.PathEscape(id), required, nil, nil)
}

// ListUsers returns all users.
func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	err := c.doJSON(ctx, http.MethodGet, "/users", required, nil, &out)
	return nonNil(out), err
}

// UpdateUser updates a user.
func (c *Client) UpdateUser(ctx context.Context, id string, in UserUpdate) (domain.User, error) {
	var u domain.User
	err := c.doJSON(ctx, http.MethodPut, "/users/"+url.PathEscape(id), required, in, &u)
	return u, err
}

// ListRoles returns all roles.
func (c *Client) ListRoles(ctx context.Context) ([]domain.Role, error) {
	var out []domain.Role
	err := c.doJSON(ctx, http.MethodGet, "/roles", required, nil, &out)
	return nonNil(out), err
}

// CreateRole creates a role.
func (c *Client) CreateRole(ctx context.Context, in RoleInput) (domain.Role, error) {
	var r domain.Role
	err := c.doJSON(ctx, http.MethodPost, "/roles", required, in, &r)
	return r, err
}

// UpdateRole updates a role.
func (c *Client) UpdateRole(ctx context.Context, id string, in RoleInput) (domain.Role, error) {
	var r domain.Role
	err := c.doJSON(ctx, http.MethodPut, "/roles/"+url.PathEscape(id), required, in, &r)
	return r, err
}

// DeleteRole deletes a role.
func (c *Client) DeleteRole(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/roles/"+url.PathEscape(id), required, nil, nil)
}
