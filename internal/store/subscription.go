package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vitrinehq/vitrine/internal/domain"
)

type SubscriptionStore struct {
	db *pgxpool.Pool
}

func NewSubscriptionStore(db *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) GetByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	sub := &domain.Subscription{}
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, external_id, customer_id, price_id, status,
		        current_period_start, current_period_end, canceled_at, created_at, updated_at
		 FROM subscriptions WHERE external_id = $1`,
		externalID,
	).Scan(&sub.ID, &sub.TenantID, &sub.ExternalID, &sub.CustomerID, &sub.PriceID, &sub.Status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CanceledAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionStore) UpdateStatus(ctx context.Context, externalID, status string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE subscriptions SET status = $2, updated_at = NOW() WHERE external_id = $1`,
		externalID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SubscriptionStore) UpdatePeriod(ctx context.Context, externalID string, start, end time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE subscriptions
		 SET current_period_start = $2, current_period_end = $3, updated_at = NOW()
		 WHERE external_id = $1`,
		externalID, start, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SubscriptionStore) MarkCanceled(ctx context.Context, externalID string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $2, canceled_at = $3, updated_at = NOW()
		 WHERE external_id = $1`,
		externalID, domain.SubscriptionStatusCanceled, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
