// Package account authenticates the people whose devices are limited.
package account

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin      = "admin"
	RoleSubscriber = "subscriber"

	// CapabilityManageOptions guards every administrative operation.
	CapabilityManageOptions = "manage_options"
	CapabilityRead          = "read"
)

var roleCapabilities = map[string][]string{
	RoleAdmin:      {CapabilityManageOptions, CapabilityRead},
	RoleSubscriber: {CapabilityRead},
}

type Account struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

// Name is what greets the user in emails.
func (a Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

// HasCapability reports whether any of roles grants capability.
func HasCapability(roles []string, capability string) bool {
	for _, role := range roles {
		if slices.Contains(roleCapabilities[role], capability) {
			return true
		}
	}
	return false
}
