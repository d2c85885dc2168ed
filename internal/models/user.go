// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a person known to the identity provider. The ID is the provider's
// subject, so rows are only ever upserted, never assigned locally.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email       string    `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName *string   `gorm:"size:100" json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// Name returns the display name, falling back to the email.
func (u User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Email
}
