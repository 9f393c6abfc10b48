package domain

// Well-known role names used for UI gating. Enforcement lives in the backend.
const (
	RoleAdmin      = "Admin"
	RoleSuperAdmin = "SuperAdmin"
	RoleShopOwner  = "ShopOwner"
)

// Role is a named capability.
type Role struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// User is the authenticated identity.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Verified  bool   `json:"verified,omitempty"`
	Roles     []Role `json:"roles"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// HasRole reports whether the user carries the named role. Names are case-sensitive.
func (u *User) HasRole(name string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Identity is an authenticated session: a bearer token and its user.
// A valid Identity always has both.
type Identity struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Valid reports whether both halves of the identity are present.
func (i *Identity) Valid() bool {
	return i != nil && i.Token != "" && i.User != nil
}
