package domain

import (
	"time"

	"github.com/google/uuid"
)

// Billing status values mirrored from the provider.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusUnpaid   = "unpaid"
	SubscriptionStatusCanceled = "canceled"
)

// Subscription mirrors one external billing subscription. Exactly one exists
// per tenant; the external id is the idempotency key for "does this tenant
// already exist". Cancellation is a status value, never a row deletion.
type Subscription struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`

	ExternalID string `json:"external_id"`
	CustomerID string `json:"customer_id"`
	PriceID    string `json:"price_id"`

	Status             string     `json:"status"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
