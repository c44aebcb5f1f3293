package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TenantStore interface {
	// CreateWithSubscription persists a new tenant together with its
	// subscription and the opening provisioning log row in one transaction.
	// A unique violation on any of the identity columns is reported as a
	// conflict so callers can re-read instead of double-provisioning.
	CreateWithSubscription(ctx context.Context, t *Tenant, sub *Subscription, plog *ProvisioningLog) error

	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetByNamespace(ctx context.Context, namespace string) (*Tenant, error)
	GetBySubscriptionID(ctx context.Context, externalID string) (*Tenant, error)
	List(ctx context.Context, limit, offset int) ([]Tenant, int, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status TenantStatus) error
	// MarkDeployed transitions the tenant to active, stamps the deployment
	// time and records the generated instance-admin credential.
	MarkDeployed(ctx context.Context, id uuid.UUID, adminPassword string) error
}

type SubscriptionStore interface {
	GetByExternalID(ctx context.Context, externalID string) (*Subscription, error)
	UpdateStatus(ctx context.Context, externalID, status string) error
	UpdatePeriod(ctx context.Context, externalID string, start, end time.Time) error
	MarkCanceled(ctx context.Context, externalID string, at time.Time) error
}

type ProvisioningLogStore interface {
	Create(ctx context.Context, l *ProvisioningLog) error
	// Close stamps the attempt's final status and completion time. Closed
	// rows are never touched again.
	Close(ctx context.Context, id uuid.UUID, status, message, errorDetails string) error
	// EventProcessed is the idempotency guard: it reports whether a log row
	// already records the given billing event id.
	EventProcessed(ctx context.Context, eventID string) (bool, error)
}
