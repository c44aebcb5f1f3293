package domain

import "time"

// BillingEvent is the closed set of billing provider events this system
// reacts to. Each variant carries its own typed payload; handlers switch
// exhaustively over the concrete types rather than dispatching on strings.
type BillingEvent interface {
	// EventID returns the provider's unique id for this delivery.
	EventID() string
	billingEvent()
}

// CheckoutCompleted signals a completed subscription purchase. It is the only
// event that provisions resources, so it alone carries the event id into the
// idempotency guard.
type CheckoutCompleted struct {
	ID             string
	SubscriptionID string
	CustomerID     string
	CustomerEmail  string
	PriceID        string
}

// SubscriptionUpdated signals a billing status change on an existing
// subscription (renewal, plan change, delinquency).
type SubscriptionUpdated struct {
	ID             string
	SubscriptionID string
	Status         string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// SubscriptionDeleted signals cancellation. The tenant is suspended, not
// deleted; removal happens after an out-of-band grace period.
type SubscriptionDeleted struct {
	ID             string
	SubscriptionID string
}

// PaymentFailed signals a failed payment attempt.
type PaymentFailed struct {
	ID             string
	SubscriptionID string
}

// PaymentSucceeded signals a successful payment (typically a renewal).
type PaymentSucceeded struct {
	ID             string
	SubscriptionID string
}

func (e CheckoutCompleted) EventID() string   { return e.ID }
func (e SubscriptionUpdated) EventID() string { return e.ID }
func (e SubscriptionDeleted) EventID() string { return e.ID }
func (e PaymentFailed) EventID() string       { return e.ID }
func (e PaymentSucceeded) EventID() string    { return e.ID }

func (CheckoutCompleted) billingEvent()   {}
func (SubscriptionUpdated) billingEvent() {}
func (SubscriptionDeleted) billingEvent() {}
func (PaymentFailed) billingEvent()       {}
func (PaymentSucceeded) billingEvent()    {}
