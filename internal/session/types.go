package session

import (
	"errors"
	"strings"
	"time"
)

// Role represents a privilege tier in Usagedeck.
type Role string

const (
	// RoleUser can see analytics scoped to their own tenant only.
	RoleUser Role = "USER"

	// RoleAdmin manages users and settings within a single tenant.
	// Still confined to the tenant's data.
	RoleAdmin Role = "ADMIN"

	// RoleSuperadmin is Usagedeck staff: may query across tenants and
	// access tenant-crossing views.
	RoleSuperadmin Role = "SUPERADMIN"
)

// roleRank orders roles by privilege. Higher rank means more privilege.
var roleRank = map[Role]int{
	RoleUser:       0,
	RoleAdmin:      1,
	RoleSuperadmin: 2,
}

// ParseRole converts a wire role string to a Role. Unrecognised values map
// to RoleUser: the backend is authoritative, so an unknown role must degrade
// to least privilege rather than block rendering.
func ParseRole(s string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleSuperadmin:
		return RoleSuperadmin
	default:
		return RoleUser
	}
}

// AtLeast reports whether the role has at least the privilege of min.
// Every authorisation check in the console is expressed this way — there is
// no exact-match role list anywhere.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// Session is the authenticated identity plus credential for the current login.
type Session struct {
	Token        string    `json:"-"` // never serialised
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Role         Role      `json:"role"`
	CustomerID   string    `json:"customerId"`
	CustomerName string    `json:"customerName"`
	ExpiresIn    int64     `json:"expiresIn"` // seconds, as reported by the backend
	CreatedAt    time.Time `json:"createdAt"`
}

// Sentinel errors for session operations.
var (
	// ErrNoSession is returned by Store.Get when no complete session exists.
	ErrNoSession = errors.New("no session")
)
