package identity

import (
	"errors"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("identity: authentication required")
	ErrForbidden       = errors.New("identity: forbidden")
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the already-authenticated caller of a core operation.
type Identity struct {
	UserID string
	Role   Role
}

// New validates the pair handed over by the authentication collaborator.
// An empty role defaults to RoleUser.
func New(userID string, role string) (Identity, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Identity{}, ErrUnauthenticated
	}
	r := Role(strings.ToLower(strings.TrimSpace(role)))
	if r == "" {
		r = RoleUser
	}
	if r != RoleUser && r != RoleAdmin {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: userID, Role: r}, nil
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// CanAccess reports whether the caller owns the resource or is an admin.
func (i Identity) CanAccess(ownerID string) bool {
	return i.IsAdmin() || (i.UserID != "" && i.UserID == ownerID)
}

// RequireAdmin returns ErrForbidden for non-admin callers.
func (i Identity) RequireAdmin() error {
	if !i.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
