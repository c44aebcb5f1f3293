package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProvisioningAction is the kind of lifecycle operation an attempt performed.
type ProvisioningAction string

const (
	ActionCreate  ProvisioningAction = "create"
	ActionUpdate  ProvisioningAction = "update"
	ActionSuspend ProvisioningAction = "suspend"
	ActionResume  ProvisioningAction = "resume"
	ActionDelete  ProvisioningAction = "delete"
)

// Attempt status values for a provisioning log row.
const (
	AttemptStarted   = "started"
	AttemptCompleted = "completed"
	AttemptFailed    = "failed"
)

// ProvisioningLog is one row of the append-only audit trail. A row carrying a
// billing event id means that event has been fully handled; this is the basis
// of event deduplication. Rows are closed once and never mutated afterward.
type ProvisioningLog struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`

	Action       ProvisioningAction `json:"action"`
	Status       string             `json:"status"`
	Message      string             `json:"message,omitempty"`
	ErrorDetails string             `json:"error_details,omitempty"`

	// EventID is the triggering billing event, when one exists.
	EventID string `json:"event_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
