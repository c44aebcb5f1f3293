package domain

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus is the lifecycle state of a provisioned instance.
type TenantStatus string

const (
	TenantStatusPending      TenantStatus = "pending"      // records created, no resources yet
	TenantStatusProvisioning TenantStatus = "provisioning" // external resource creation in progress
	TenantStatusActive       TenantStatus = "active"
	TenantStatusFailed       TenantStatus = "failed" // resumable, not terminal
	TenantStatusSuspended    TenantStatus = "suspended"
	TenantStatusDeleted      TenantStatus = "deleted" // terminal, soft delete
)

// Terminal reports whether no further transition is allowed from s.
func (s TenantStatus) Terminal() bool {
	return s == TenantStatusDeleted
}

// CanDelete reports whether a tenant in state s may be deleted.
func (s TenantStatus) CanDelete() bool {
	switch s {
	case TenantStatusActive, TenantStatusSuspended, TenantStatusFailed:
		return true
	}
	return false
}

// Tenant is one provisioned application instance belonging to one customer.
// Namespace, Domain and the subscription that created the tenant are each
// globally unique. Tenants are never physically deleted.
type Tenant struct {
	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"owner_id"`
	Email   string    `json:"email"`

	// Cluster identifiers. ReleaseName equals Namespace; AppID is the
	// underscore-only identifier the in-instance installer accepts.
	Namespace   string `json:"namespace"`
	ReleaseName string `json:"release_name"`
	AppID       string `json:"app_id"`

	Domain string       `json:"domain"`
	Plan   string       `json:"plan"`
	Status TenantStatus `json:"status"`

	// Tenant database credentials on the shared database server.
	DBName     string `json:"db_name"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"-"`

	// Instance administrator account generated by the setup installer.
	AdminUsername string `json:"admin_username"`
	AdminPassword string `json:"-"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeployedAt *time.Time `json:"deployed_at,omitempty"`
}
