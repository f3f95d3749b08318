package model

import "time"

type APIKeyPermissions struct {
	Read   bool `json:"read"`
	Create bool `json:"create"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
}

// DefaultAPIKeyPermissions allows everything except deletes.
func DefaultAPIKeyPermissions() APIKeyPermissions {
	return APIKeyPermissions{Read: true, Create: true, Update: true, Delete: false}
}

type Permission string

const (
	PermissionNone   Permission = ""
	PermissionRead   Permission = "read"
	PermissionCreate Permission = "create"
	PermissionUpdate Permission = "update"
	PermissionDelete Permission = "delete"
)

func (p APIKeyPermissions) Allows(perm Permission) bool {
	switch perm {
	case PermissionNone:
		return true
	case PermissionRead:
		return p.Read
	case PermissionCreate:
		return p.Create
	case PermissionUpdate:
		return p.Update
	case PermissionDelete:
		return p.Delete
	default:
		return false
	}
}

type APIKey struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	KeyHash     string            `json:"-"`
	KeyPrefix   string            `json:"keyPrefix"`
	UserID      string            `json:"userId"`
	Permissions APIKeyPermissions `json:"permissions"`
	IsActive    bool              `json:"isActive"`
	LastUsedAt  *time.Time        `json:"lastUsedAt,omitempty"`
	ExpiresAt   *time.Time        `json:"expiresAt,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Credential is what a validated API key resolves to.
type Credential struct {
	UserID      string            `json:"userId"`
	APIKeyID    string            `json:"apiKeyId"`
	Permissions APIKeyPermissions `json:"permissions"`
}
