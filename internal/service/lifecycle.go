package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrinehq/vitrine/internal/domain"
	"github.com/vitrinehq/vitrine/internal/store"
)

// Suspend moves an active tenant to suspended. It is a pure record
// transition: the tenant's workloads keep running, only routing of new
// billing-driven work is affected.
func (s *ProvisioningService) Suspend(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	tenant, err := s.getTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant.Status != domain.TenantStatusActive {
		return nil, fmt.Errorf("%w: cannot suspend tenant in status %s", ErrInvalidTransition, tenant.Status)
	}
	if err := s.transition(ctx, tenant, domain.TenantStatusSuspended, domain.ActionSuspend); err != nil {
		return nil, err
	}
	return tenant, nil
}

// Resume moves a suspended tenant back to active.
func (s *ProvisioningService) Resume(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	tenant, err := s.getTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant.Status != domain.TenantStatusSuspended {
		return nil, fmt.Errorf("%w: cannot resume tenant in status %s", ErrInvalidTransition, tenant.Status)
	}
	if err := s.transition(ctx, tenant, domain.TenantStatusActive, domain.ActionResume); err != nil {
		return nil, err
	}
	return tenant, nil
}

// Delete uninstalls the tenant's release and marks the record deleted.
// A release that is already gone is not an error. The namespace and tenant
// database are left for out-of-band cleanup so the audit trail and any
// data-retention window survive the release teardown.
func (s *ProvisioningService) Delete(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	tenant, err := s.getTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tenant.Status.CanDelete() {
		return nil, fmt.Errorf("%w: cannot delete tenant in status %s", ErrInvalidTransition, tenant.Status)
	}

	plog := &domain.ProvisioningLog{
		TenantID: tenant.ID,
		Action:   domain.ActionDelete,
		Status:   domain.AttemptStarted,
		Message:  "deleting " + tenant.ReleaseName,
	}
	if err := s.logs.Create(ctx, plog); err != nil {
		return nil, fmt.Errorf("recording delete attempt: %w", err)
	}

	if err := s.releases.Uninstall(ctx, tenant.ReleaseName, tenant.Namespace); err != nil {
		if cerr := s.logs.Close(ctx, plog.ID, domain.AttemptFailed, "uninstall failed", err.Error()); cerr != nil {
			s.logger.Warn("failed to close provisioning log", zap.Error(cerr))
		}
		return nil, fmt.Errorf("uninstalling release %s: %w", tenant.ReleaseName, err)
	}

	if err := s.tenants.UpdateStatus(ctx, tenant.ID, domain.TenantStatusDeleted); err != nil {
		return nil, fmt.Errorf("marking tenant deleted: %w", err)
	}
	tenant.Status = domain.TenantStatusDeleted

	if err := s.logs.Close(ctx, plog.ID, domain.AttemptCompleted, "deleted "+tenant.ReleaseName, ""); err != nil {
		s.logger.Warn("failed to close provisioning log", zap.Error(err))
	}

	s.logger.Info("tenant deleted",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("namespace", tenant.Namespace))
	return tenant, nil
}

// transition applies a metadata-only status change with its audit row.
func (s *ProvisioningService) transition(ctx context.Context, tenant *domain.Tenant, to domain.TenantStatus, action domain.ProvisioningAction) error {
	plog := &domain.ProvisioningLog{
		TenantID: tenant.ID,
		Action:   action,
		Status:   domain.AttemptStarted,
		Message:  string(action) + " " + tenant.ReleaseName,
	}
	if err := s.logs.Create(ctx, plog); err != nil {
		return fmt.Errorf("recording %s attempt: %w", action, err)
	}
	if err := s.tenants.UpdateStatus(ctx, tenant.ID, to); err != nil {
		return fmt.Errorf("updating tenant status: %w", err)
	}
	tenant.Status = to
	if err := s.logs.Close(ctx, plog.ID, domain.AttemptCompleted, string(action)+" completed for "+tenant.ReleaseName, ""); err != nil {
		s.logger.Warn("failed to close provisioning log", zap.Error(err))
	}
	s.logger.Info("tenant status changed",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("status", string(to)))
	return nil
}

func (s *ProvisioningService) getTenant(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	tenant, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return tenant, nil
}
