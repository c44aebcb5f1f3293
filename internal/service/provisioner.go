package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/domain"
	"github.com/vitrinehq/vitrine/internal/store"
)

var (
	// ErrTenantNotFound is returned when a tenant lookup misses.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrInvalidTransition is returned when a lifecycle operation is not
	// allowed from the tenant's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

const (
	adminUsername = "administrator"

	// credentialPending is stored as the admin password when the in-pod
	// installer did not hand one back. The tenant is still usable; the
	// credential can be recovered manually from the pod.
	credentialPending = "installer not completed"
)

// ProvisionIntent carries everything Provision needs to build a tenant.
// EventID is the originating billing event, used for deduplication; it may
// be empty for direct API provisioning.
type ProvisionIntent struct {
	OwnerID        uuid.UUID
	Email          string
	Plan           string
	SubscriptionID string
	CustomerID     string
	PriceID        string
	EventID        string
}

// ProvisioningService orchestrates the full tenant lifecycle: namespace,
// database, release, installer, and the records that track them.
type ProvisioningService struct {
	tenants       domain.TenantStore
	subscriptions domain.SubscriptionStore
	logs          domain.ProvisioningLogStore
	cluster       domain.ClusterClient
	releases      domain.ReleaseClient
	databases     domain.DatabaseProvisioner
	setup         domain.SetupRunner
	cfg           *config.Config
	logger        *zap.Logger
}

func NewProvisioningService(
	tenants domain.TenantStore,
	subscriptions domain.SubscriptionStore,
	logs domain.ProvisioningLogStore,
	cluster domain.ClusterClient,
	releases domain.ReleaseClient,
	databases domain.DatabaseProvisioner,
	setup domain.SetupRunner,
	cfg *config.Config,
	logger *zap.Logger,
) *ProvisioningService {
	return &ProvisioningService{
		tenants:       tenants,
		subscriptions: subscriptions,
		logs:          logs,
		cluster:       cluster,
		releases:      releases,
		databases:     databases,
		setup:         setup,
		cfg:           cfg,
		logger:        logger,
	}
}

// Provision creates or resumes a tenant for the given subscription. The
// operation is idempotent: a duplicate event short-circuits, an existing
// active tenant is returned as-is, and a tenant stuck in a non-terminal
// state is resumed with every resource step re-checked before being redone.
func (s *ProvisioningService) Provision(ctx context.Context, intent ProvisionIntent) (*domain.Tenant, error) {
	if intent.EventID != "" {
		processed, err := s.logs.EventProcessed(ctx, intent.EventID)
		if err != nil {
			return nil, fmt.Errorf("checking event %s: %w", intent.EventID, err)
		}
		if processed {
			s.logger.Info("billing event already processed, skipping",
				zap.String("event_id", intent.EventID))
			tenant, err := s.tenants.GetBySubscriptionID(ctx, intent.SubscriptionID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, ErrTenantNotFound
				}
				return nil, err
			}
			return tenant, nil
		}
	}

	existing, err := s.tenants.GetBySubscriptionID(ctx, intent.SubscriptionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case domain.TenantStatusActive, domain.TenantStatusSuspended:
			return existing, nil
		case domain.TenantStatusDeleted:
			return nil, fmt.Errorf("tenant %s for subscription %s is deleted", existing.ID, intent.SubscriptionID)
		default:
			return s.resumeProvisioning(ctx, existing, intent.EventID)
		}
	}

	tenant := s.newTenant(intent)
	now := time.Now().UTC()
	sub := &domain.Subscription{
		ExternalID: intent.SubscriptionID,
		CustomerID: intent.CustomerID,
		PriceID:    intent.PriceID,
		Status:     domain.SubscriptionStatusActive,
		// Stamped provisionally; the billing provider's period events
		// overwrite these.
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now,
	}
	plog := &domain.ProvisioningLog{
		Action:  domain.ActionCreate,
		Status:  domain.AttemptStarted,
		Message: "provisioning " + tenant.ReleaseName,
		EventID: intent.EventID,
	}

	if err := s.tenants.CreateWithSubscription(ctx, tenant, sub, plog); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// A concurrent attempt for the same subscription won the
			// insert race. Hand back its tenant instead of failing.
			winner, rerr := s.tenants.GetBySubscriptionID(ctx, intent.SubscriptionID)
			if rerr != nil {
				return nil, fmt.Errorf("subscription %s already provisioned but tenant lookup failed: %w", intent.SubscriptionID, rerr)
			}
			return winner, nil
		}
		return nil, fmt.Errorf("recording tenant: %w", err)
	}

	s.logger.Info("tenant recorded, starting resource provisioning",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("namespace", tenant.Namespace),
		zap.String("plan", tenant.Plan))

	if err := s.tenants.UpdateStatus(ctx, tenant.ID, domain.TenantStatusProvisioning); err != nil {
		return nil, fmt.Errorf("updating tenant status: %w", err)
	}
	tenant.Status = domain.TenantStatusProvisioning

	if err := s.realizeResources(ctx, tenant); err != nil {
		s.recordFailure(ctx, tenant, plog.ID, err)
		return tenant, err
	}

	password, ok := s.setup.RunSetup(ctx, tenant.Namespace, tenant.ReleaseName, tenant.AppID)
	if !ok {
		s.logger.Warn("installer did not complete, tenant left usable without stored credential",
			zap.String("tenant_id", tenant.ID.String()))
		password = credentialPending
	}

	if err := s.tenants.MarkDeployed(ctx, tenant.ID, password); err != nil {
		s.recordFailure(ctx, tenant, plog.ID, err)
		return tenant, fmt.Errorf("marking tenant deployed: %w", err)
	}
	tenant.Status = domain.TenantStatusActive
	tenant.AdminPassword = password

	if err := s.logs.Close(ctx, plog.ID, domain.AttemptCompleted, "provisioned "+tenant.ReleaseName, ""); err != nil {
		s.logger.Warn("failed to close provisioning log", zap.Error(err))
	}

	s.logger.Info("tenant provisioned",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("domain", tenant.Domain))
	return tenant, nil
}

// resumeProvisioning picks up a tenant left in pending, provisioning, or
// failed. Each resource step checks for existence before acting, so partial
// prior progress is kept. The installer is not re-run; its credential, if
// any, was captured on the first attempt.
func (s *ProvisioningService) resumeProvisioning(ctx context.Context, tenant *domain.Tenant, eventID string) (*domain.Tenant, error) {
	s.logger.Warn("tenant already exists, resuming provisioning",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("status", string(tenant.Status)))

	plog := &domain.ProvisioningLog{
		TenantID: tenant.ID,
		Action:   domain.ActionUpdate,
		Status:   domain.AttemptStarted,
		Message:  "resuming provisioning for " + tenant.ReleaseName,
		EventID:  eventID,
	}
	if err := s.logs.Create(ctx, plog); err != nil {
		return nil, fmt.Errorf("recording resume attempt: %w", err)
	}

	if err := s.tenants.UpdateStatus(ctx, tenant.ID, domain.TenantStatusProvisioning); err != nil {
		return nil, fmt.Errorf("updating tenant status: %w", err)
	}
	tenant.Status = domain.TenantStatusProvisioning

	if err := s.realizeResources(ctx, tenant); err != nil {
		s.recordFailure(ctx, tenant, plog.ID, err)
		return tenant, err
	}

	password := tenant.AdminPassword
	if password == "" {
		password = credentialPending
	}
	if err := s.tenants.MarkDeployed(ctx, tenant.ID, password); err != nil {
		s.recordFailure(ctx, tenant, plog.ID, err)
		return tenant, fmt.Errorf("marking tenant deployed: %w", err)
	}
	tenant.Status = domain.TenantStatusActive

	if err := s.logs.Close(ctx, plog.ID, domain.AttemptCompleted, "resumed "+tenant.ReleaseName, ""); err != nil {
		s.logger.Warn("failed to close provisioning log", zap.Error(err))
	}
	return tenant, nil
}

// realizeResources brings the tenant's cluster resources to the desired
// state. Every step is check-then-create so a resumed attempt never trips
// over resources a prior attempt already made.
func (s *ProvisioningService) realizeResources(ctx context.Context, tenant *domain.Tenant) error {
	if err := s.cluster.EnsureNamespace(ctx, tenant.Namespace); err != nil {
		return fmt.Errorf("ensuring namespace %s: %w", tenant.Namespace, err)
	}

	dbExists, err := s.databases.Exists(ctx, tenant.DBName)
	if err != nil {
		return fmt.Errorf("checking database %s: %w", tenant.DBName, err)
	}
	if !dbExists {
		if err := s.databases.Create(ctx, tenant.DBName, tenant.DBUser, tenant.DBPassword); err != nil {
			return fmt.Errorf("creating database %s: %w", tenant.DBName, err)
		}
	}

	installed, err := s.releases.Exists(ctx, tenant.ReleaseName, tenant.Namespace)
	if err != nil {
		return fmt.Errorf("checking release %s: %w", tenant.ReleaseName, err)
	}
	if !installed {
		params := domain.ReleaseParams{
			Release:     tenant.ReleaseName,
			Namespace:   tenant.Namespace,
			Domain:      tenant.Domain,
			AppID:       tenant.AppID,
			DBName:      tenant.DBName,
			DBUser:      tenant.DBUser,
			DBPassword:  tenant.DBPassword,
			StorageSize: s.cfg.StorageSize(tenant.Plan),
		}
		if err := s.releases.Install(ctx, params); err != nil {
			return fmt.Errorf("installing release %s: %w", tenant.ReleaseName, err)
		}
	}
	return nil
}

// recordFailure marks the tenant failed and closes the attempt log. Errors
// here are logged, never returned; the original cause is what the caller
// needs to see.
func (s *ProvisioningService) recordFailure(ctx context.Context, tenant *domain.Tenant, logID uuid.UUID, cause error) {
	s.logger.Error("provisioning failed",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("namespace", tenant.Namespace),
		zap.Error(cause))
	if err := s.tenants.UpdateStatus(ctx, tenant.ID, domain.TenantStatusFailed); err != nil {
		s.logger.Error("failed to mark tenant failed", zap.Error(err))
	}
	tenant.Status = domain.TenantStatusFailed
	if err := s.logs.Close(ctx, logID, domain.AttemptFailed, "provisioning failed", cause.Error()); err != nil {
		s.logger.Error("failed to close provisioning log", zap.Error(err))
	}
}

func (s *ProvisioningService) newTenant(intent ProvisionIntent) *domain.Tenant {
	suffix := newSuffix()
	namespace := s.cfg.NamespacePrefix + "-" + suffix
	dbName := s.cfg.DBNamePrefix + "_" + suffix

	ownerID := intent.OwnerID
	if ownerID == uuid.Nil {
		ownerID = uuid.New()
	}

	return &domain.Tenant{
		OwnerID:       ownerID,
		Email:         intent.Email,
		Namespace:     namespace,
		ReleaseName:   namespace,
		AppID:         "tenant_" + suffix,
		Domain:        namespace + "." + s.cfg.BaseDomain,
		Plan:          intent.Plan,
		Status:        domain.TenantStatusPending,
		DBName:        dbName,
		DBUser:        dbName,
		DBPassword:    newCredential(),
		AdminUsername: adminUsername,
	}
}

// newSuffix yields 8 hex characters, valid in both DNS labels and MySQL
// identifiers.
func newSuffix() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}

func newCredential() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
