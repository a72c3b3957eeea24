package models

import (
	"time"
)

// Agent represents a registered remote worker. The token is an opaque bearer
// credential resolved by the authentication collaborator before any call
// reaches this core.
type Agent struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Token      string     `json:"-"`
	IsEnabled  bool       `json:"isEnabled"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
