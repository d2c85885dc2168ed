package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// API key scopes.
const (
	ScopeRead   = "read"
	ScopeWrite  = "write"
	ScopeDelete = "delete"
	ScopeAdmin  = "admin"
)

// APIKeyStatus is derived from expiry and revocation, never stored.
type APIKeyStatus string

const (
	APIKeyActive  APIKeyStatus = "active"
	APIKeyExpired APIKeyStatus = "expired"
	APIKeyRevoked APIKeyStatus = "revoked"
)

// Scopes is stored as a comma separated column.
type Scopes []string

// Value implements driver.Valuer.
func (s Scopes) Value() (driver.Value, error) {
	return strings.Join(s, ","), nil
}

// Scan implements sql.Scanner.
func (s *Scopes) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*s = Scopes{}
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scopes: unsupported type %T", src)
	}
	out := Scopes{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*s = out
	return nil
}

// Allows reports whether the set grants scope. admin grants everything.
func (s Scopes) Allows(scope string) bool {
	for _, have := range s {
		if have == scope || have == ScopeAdmin {
			return true
		}
	}
	return false
}

// APIKey is a long-lived credential a user creates from settings. Only a
// bcrypt hash of the secret is kept; Prefix identifies the row on lookup.
type APIKey struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_api_keys_user" json:"user_id"`
	Name         string     `gorm:"size:100;not null" json:"name"`
	Prefix       string     `gorm:"size:16;uniqueIndex;not null" json:"prefix"`
	HashedSecret string     `gorm:"not null" json:"-"`
	Scopes       Scopes     `gorm:"type:varchar(64);not null" json:"scopes"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (APIKey) TableName() string {
	return "api_keys"
}

// BeforeCreate assigns an id when the caller did not.
func (k *APIKey) BeforeCreate(_ *gorm.DB) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	return nil
}

// StatusAt reports the key's status at now.
func (k *APIKey) StatusAt(now time.Time) APIKeyStatus {
	if k.RevokedAt != nil {
		return APIKeyRevoked
	}
	if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
		return APIKeyExpired
	}
	return APIKeyActive
}
