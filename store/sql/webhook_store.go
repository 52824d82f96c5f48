package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-registry/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type WebhookStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookRecord]
}

func NewWebhookStore(db *bun.DB) (*WebhookStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookRecord](db, webhookHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook repository wiring: %w", err)
		}
	}
	return &WebhookStore{db: db, repo: repo}, nil
}

func (s *WebhookStore) Get(ctx context.Context, id string) (core.Webhook, error) {
	if s == nil || s.db == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}

	record := &webhookRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Webhook{}, core.ErrWebhookNotFound
		}
		return core.Webhook{}, err
	}
	return record.toDomain(), nil
}

func (s *WebhookStore) List(ctx context.Context) ([]core.Webhook, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}

	out := make([]core.Webhook, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *WebhookStore) ListActive(ctx context.Context) ([]core.Webhook, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: webhook store is not configured")
	}

	records := []*webhookRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.active = ?", true).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]core.Webhook, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *WebhookStore) Create(ctx context.Context, webhook core.Webhook) (core.Webhook, error) {
	if s == nil || s.repo == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	if strings.TrimSpace(webhook.TargetURL) == "" {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook target url is required")
	}
	if strings.TrimSpace(webhook.Secret) == "" {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook secret is required")
	}

	record := newWebhookRecord(webhook, time.Now().UTC())
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.EventFilter == nil {
		record.EventFilter = []string{}
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Webhook{}, err
	}
	return created.toDomain(), nil
}

func (s *WebhookStore) Update(ctx context.Context, webhook core.Webhook) (core.Webhook, error) {
	if s == nil || s.repo == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	trimmedID := strings.TrimSpace(webhook.ID)
	if trimmedID == "" {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook id is required")
	}
	if _, err := s.Get(ctx, trimmedID); err != nil {
		return core.Webhook{}, err
	}

	record := newWebhookRecord(webhook, time.Now().UTC())
	record.UpdatedAt = time.Now().UTC()
	if record.EventFilter == nil {
		record.EventFilter = []string{}
	}

	updated, err := s.repo.Update(ctx, record, repository.UpdateByID(trimmedID))
	if err != nil {
		return core.Webhook{}, err
	}
	return updated.toDomain(), nil
}

func (s *WebhookStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook store is not configured")
	}

	result, err := s.db.NewDelete().
		Model((*webhookRecord)(nil)).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrWebhookNotFound
	}
	return nil
}

func (s *WebhookStore) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook store is not configured")
	}
	_, err := s.mutate(ctx, id, func(record *webhookRecord) {
		record.FailureCount = 0
		triggeredAt := at.UTC()
		record.LastTriggeredAt = &triggeredAt
	})
	return err
}

// RecordFailure increments the failure counter and deactivates the webhook
// once the counter reaches threshold. The read and write run in one
// transaction so concurrent deliveries never lose an increment.
func (s *WebhookStore) RecordFailure(ctx context.Context, id string, threshold int, at time.Time) (core.Webhook, error) {
	if s == nil || s.db == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	return s.mutate(ctx, id, func(record *webhookRecord) {
		record.FailureCount++
		if threshold > 0 && record.FailureCount >= threshold {
			record.Active = false
		}
		triggeredAt := at.UTC()
		record.LastTriggeredAt = &triggeredAt
	})
}

func (s *WebhookStore) Reactivate(ctx context.Context, id string) (core.Webhook, error) {
	if s == nil || s.db == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	return s.mutate(ctx, id, func(record *webhookRecord) {
		record.FailureCount = 0
		record.Active = true
	})
}

func (s *WebhookStore) mutate(ctx context.Context, id string, apply func(*webhookRecord)) (core.Webhook, error) {
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook id is required")
	}

	record := &webhookRecord{}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", trimmedID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return core.ErrWebhookNotFound
			}
			return err
		}

		apply(record)
		record.UpdatedAt = time.Now().UTC()

		_, err = tx.NewUpdate().
			Model(record).
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return core.Webhook{}, err
	}
	return record.toDomain(), nil
}
