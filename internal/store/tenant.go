package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vitrinehq/vitrine/internal/domain"
)

const tenantColumns = `id, owner_id, email, namespace, release_name, app_id, domain, plan, status,
	 db_name, db_user, db_password, admin_username, admin_password,
	 created_at, updated_at, deployed_at`

type TenantStore struct {
	db *pgxpool.Pool
}

func NewTenantStore(db *pgxpool.Pool) *TenantStore {
	return &TenantStore{db: db}
}

func (s *TenantStore) CreateWithSubscription(ctx context.Context, t *domain.Tenant, sub *domain.Subscription, plog *domain.ProvisioningLog) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO tenants (owner_id, email, namespace, release_name, app_id, domain, plan, status,
		                      db_name, db_user, db_password, admin_username)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`,
		t.OwnerID, t.Email, t.Namespace, t.ReleaseName, t.AppID, t.Domain, t.Plan, t.Status,
		t.DBName, t.DBUser, t.DBPassword, t.AdminUsername,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}

	sub.TenantID = t.ID
	err = tx.QueryRow(ctx,
		`INSERT INTO subscriptions (tenant_id, external_id, customer_id, price_id, status,
		                            current_period_start, current_period_end)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		sub.TenantID, sub.ExternalID, sub.CustomerID, sub.PriceID, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}

	plog.TenantID = t.ID
	err = tx.QueryRow(ctx,
		`INSERT INTO provisioning_logs (tenant_id, action, status, message, event_id)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		 RETURNING id, created_at`,
		plog.TenantID, plog.Action, plog.Status, plog.Message, plog.EventID,
	).Scan(&plog.ID, &plog.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *TenantStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return s.get(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
}

func (s *TenantStore) GetByNamespace(ctx context.Context, namespace string) (*domain.Tenant, error) {
	return s.get(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE namespace = $1`, namespace)
}

func (s *TenantStore) GetBySubscriptionID(ctx context.Context, externalID string) (*domain.Tenant, error) {
	return s.get(ctx,
		`SELECT t.id, t.owner_id, t.email, t.namespace, t.release_name, t.app_id, t.domain, t.plan, t.status,
		        t.db_name, t.db_user, t.db_password, t.admin_username, t.admin_password,
		        t.created_at, t.updated_at, t.deployed_at
		 FROM tenants t
		 JOIN subscriptions s ON s.tenant_id = t.id
		 WHERE s.external_id = $1`,
		externalID)
}

func (s *TenantStore) get(ctx context.Context, query string, args ...any) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	err := s.db.QueryRow(ctx, query, args...).Scan(
		&t.ID, &t.OwnerID, &t.Email, &t.Namespace, &t.ReleaseName, &t.AppID, &t.Domain, &t.Plan, &t.Status,
		&t.DBName, &t.DBUser, &t.DBPassword, &t.AdminUsername, &t.AdminPassword,
		&t.CreatedAt, &t.UpdatedAt, &t.DeployedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *TenantStore) List(ctx context.Context, limit, offset int) ([]domain.Tenant, int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(
			&t.ID, &t.OwnerID, &t.Email, &t.Namespace, &t.ReleaseName, &t.AppID, &t.Domain, &t.Plan, &t.Status,
			&t.DBName, &t.DBUser, &t.DBPassword, &t.AdminUsername, &t.AdminPassword,
			&t.CreatedAt, &t.UpdatedAt, &t.DeployedAt,
		); err != nil {
			return nil, 0, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return tenants, total, nil
}

func (s *TenantStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TenantStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *TenantStore) MarkDeployed(ctx context.Context, id uuid.UUID, adminPassword string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants
		 SET status = $2, admin_password = $3, deployed_at = NOW(), updated_at = NOW()
		 WHERE id = $1`,
		id, domain.TenantStatusActive, adminPassword)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
