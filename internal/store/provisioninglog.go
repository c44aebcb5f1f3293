package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vitrinehq/vitrine/internal/domain"
)

type ProvisioningLogStore struct {
	db *pgxpool.Pool
}

func NewProvisioningLogStore(db *pgxpool.Pool) *ProvisioningLogStore {
	return &ProvisioningLogStore{db: db}
}

func (s *ProvisioningLogStore) Create(ctx context.Context, l *domain.ProvisioningLog) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO provisioning_logs (tenant_id, action, status, message, event_id)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		 RETURNING id, created_at`,
		l.TenantID, l.Action, l.Status, l.Message, l.EventID,
	).Scan(&l.ID, &l.CreatedAt)
}

func (s *ProvisioningLogStore) Close(ctx context.Context, id uuid.UUID, status, message, errorDetails string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE provisioning_logs
		 SET status = $2, message = $3, error_details = NULLIF($4, ''), completed_at = NOW()
		 WHERE id = $1 AND completed_at IS NULL`,
		id, status, message, errorDetails)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ProvisioningLogStore) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	var processed bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM provisioning_logs WHERE event_id = $1)`,
		eventID,
	).Scan(&processed)
	if err != nil {
		return false, err
	}
	return processed, nil
}
