package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/domain"
	"github.com/vitrinehq/vitrine/internal/store"
)

// BillingService translates billing provider events into tenant lifecycle
// operations. Provisioning happens on checkout; everything else adjusts
// subscription records and flips tenants between active and suspended.
type BillingService struct {
	provisioner   *ProvisioningService
	tenants       domain.TenantStore
	subscriptions domain.SubscriptionStore
	cfg           *config.Config
	logger        *zap.Logger
}

func NewBillingService(
	provisioner *ProvisioningService,
	tenants domain.TenantStore,
	subscriptions domain.SubscriptionStore,
	cfg *config.Config,
	logger *zap.Logger,
) *BillingService {
	return &BillingService{
		provisioner:   provisioner,
		tenants:       tenants,
		subscriptions: subscriptions,
		cfg:           cfg,
		logger:        logger,
	}
}

// HandleEvent routes one billing event. Unknown subscriptions are logged and
// dropped rather than failed: the provider retries on error, and retrying an
// event for a subscription we never provisioned will not make it appear.
func (s *BillingService) HandleEvent(ctx context.Context, ev domain.BillingEvent) error {
	switch e := ev.(type) {
	case domain.CheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, e)
	case domain.SubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, e)
	case domain.SubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, e)
	case domain.PaymentFailed:
		s.logger.Warn("payment failed",
			zap.String("event_id", e.ID),
			zap.String("subscription_id", e.SubscriptionID))
		return nil
	case domain.PaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, e)
	default:
		return fmt.Errorf("unhandled billing event type %T", ev)
	}
}

func (s *BillingService) handleCheckoutCompleted(ctx context.Context, e domain.CheckoutCompleted) error {
	intent := ProvisionIntent{
		Email:          e.CustomerEmail,
		Plan:           s.cfg.PlanForPrice(e.PriceID),
		SubscriptionID: e.SubscriptionID,
		CustomerID:     e.CustomerID,
		PriceID:        e.PriceID,
		EventID:        e.ID,
	}
	if _, err := s.provisioner.Provision(ctx, intent); err != nil {
		return fmt.Errorf("provisioning for checkout %s: %w", e.ID, err)
	}
	return nil
}

func (s *BillingService) handleSubscriptionUpdated(ctx context.Context, e domain.SubscriptionUpdated) error {
	sub, err := s.subscriptions.GetByExternalID(ctx, e.SubscriptionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("update for unknown subscription, ignoring",
				zap.String("subscription_id", e.SubscriptionID))
			return nil
		}
		return err
	}

	if err := s.subscriptions.UpdateStatus(ctx, e.SubscriptionID, e.Status); err != nil {
		return fmt.Errorf("updating subscription status: %w", err)
	}
	if !e.PeriodStart.IsZero() && !e.PeriodEnd.IsZero() {
		if err := s.subscriptions.UpdatePeriod(ctx, e.SubscriptionID, e.PeriodStart, e.PeriodEnd); err != nil {
			return fmt.Errorf("updating subscription period: %w", err)
		}
	}

	switch e.Status {
	case domain.SubscriptionStatusPastDue, domain.SubscriptionStatusUnpaid:
		return s.suspendTenant(ctx, sub)
	case domain.SubscriptionStatusActive:
		return s.resumeTenant(ctx, sub)
	}
	return nil
}

func (s *BillingService) handleSubscriptionDeleted(ctx context.Context, e domain.SubscriptionDeleted) error {
	sub, err := s.subscriptions.GetByExternalID(ctx, e.SubscriptionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("deletion for unknown subscription, ignoring",
				zap.String("subscription_id", e.SubscriptionID))
			return nil
		}
		return err
	}
	if err := s.subscriptions.MarkCanceled(ctx, e.SubscriptionID, time.Now().UTC()); err != nil {
		return fmt.Errorf("marking subscription canceled: %w", err)
	}
	// Suspend only; actual teardown waits for the grace period.
	return s.suspendTenant(ctx, sub)
}

func (s *BillingService) handlePaymentSucceeded(ctx context.Context, e domain.PaymentSucceeded) error {
	sub, err := s.subscriptions.GetByExternalID(ctx, e.SubscriptionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.resumeTenant(ctx, sub)
}

// suspendTenant and resumeTenant tolerate transitions that do not apply,
// like resuming a tenant that never got suspended. Billing events arrive in
// whatever order the provider delivers them.

func (s *BillingService) suspendTenant(ctx context.Context, sub *domain.Subscription) error {
	if _, err := s.provisioner.Suspend(ctx, sub.TenantID); err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrTenantNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (s *BillingService) resumeTenant(ctx context.Context, sub *domain.Subscription) error {
	if _, err := s.provisioner.Resume(ctx, sub.TenantID); err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrTenantNotFound) {
			return nil
		}
		return err
	}
	return nil
}
