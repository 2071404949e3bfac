package tenant

import (
	"time"
)

// Tenant is the isolation boundary for one customer organization.
// Tenants are created at signup and never hard-deleted; deactivation is a
// status change.
type Tenant struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)
