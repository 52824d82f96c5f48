package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-registry/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// HealthResultStore is append-only; probe results are never updated or
// deleted once written.
type HealthResultStore struct {
	db   *bun.DB
	repo repository.Repository[*healthCheckRecord]
}

func NewHealthResultStore(db *bun.DB) (*HealthResultStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*healthCheckRecord](db, healthCheckHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid health check repository wiring: %w", err)
		}
	}
	return &HealthResultStore{db: db, repo: repo}, nil
}

func (s *HealthResultStore) Append(ctx context.Context, result core.HealthCheckResult) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: health result store is not configured")
	}
	if strings.TrimSpace(result.ListingID) == "" {
		return fmt.Errorf("sqlstore: health result listing id is required")
	}
	if err := result.Status.Validate(); err != nil {
		return err
	}

	record := newHealthCheckRecord(result)
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}

	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *HealthResultStore) RecentByListing(ctx context.Context, listingID string, limit int) ([]core.HealthCheckResult, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: health result store is not configured")
	}
	trimmedID := strings.TrimSpace(listingID)
	if trimmedID == "" {
		return nil, fmt.Errorf("sqlstore: listing id is required")
	}

	records := []*healthCheckRecord{}
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.listing_id = ?", trimmedID).
		OrderExpr("?TableAlias.checked_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}

	out := make([]core.HealthCheckResult, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *HealthResultStore) CountByListing(ctx context.Context, listingID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: health result store is not configured")
	}

	count, err := s.db.NewSelect().
		Model((*healthCheckRecord)(nil)).
		Where("?TableAlias.listing_id = ?", strings.TrimSpace(listingID)).
		Count(ctx)
	if err != nil {
		return 0, err
	}
	return count, nil
}
