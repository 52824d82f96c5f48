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

type ListingStore struct {
	db   *bun.DB
	repo repository.Repository[*listingRecord]
}

func NewListingStore(db *bun.DB) (*ListingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*listingRecord](db, listingHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid listing repository wiring: %w", err)
		}
	}
	return &ListingStore{db: db, repo: repo}, nil
}

// Create persists a listing projection. Listing lifecycle belongs to the
// directory service; this exists so deployments embedding both share one
// schema, and so tests can seed state.
func (s *ListingStore) Create(ctx context.Context, listing core.Listing) (core.Listing, error) {
	if s == nil || s.repo == nil {
		return core.Listing{}, fmt.Errorf("sqlstore: listing store is not configured")
	}
	if strings.TrimSpace(listing.Name) == "" {
		return core.Listing{}, fmt.Errorf("sqlstore: listing name is required")
	}
	if strings.TrimSpace(listing.Slug) == "" {
		return core.Listing{}, fmt.Errorf("sqlstore: listing slug is required")
	}

	now := time.Now().UTC()
	record := &listingRecord{
		ID:               strings.TrimSpace(listing.ID),
		Name:             strings.TrimSpace(listing.Name),
		Slug:             strings.TrimSpace(listing.Slug),
		Status:           string(listing.Status),
		APIURL:           strings.TrimSpace(listing.APIURL),
		HomepageURL:      strings.TrimSpace(listing.HomepageURL),
		EditTokenHash:    listing.EditTokenHash,
		SubmittedByKeyID: listing.SubmittedByKeyID,
		RateExempt:       listing.RateExempt,
		LastHealthStatus: string(listing.LastHealthStatus),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = string(core.ListingStatusPending)
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Listing{}, err
	}
	return created.toDomain(), nil
}

// Get resolves a listing by id or slug.
func (s *ListingStore) Get(ctx context.Context, idOrSlug string) (core.Listing, error) {
	if s == nil || s.db == nil {
		return core.Listing{}, fmt.Errorf("sqlstore: listing store is not configured")
	}
	trimmed := strings.TrimSpace(idOrSlug)
	if trimmed == "" {
		return core.Listing{}, core.ErrListingNotFound
	}

	record := &listingRecord{}
	err := s.db.NewSelect().
		Model(record).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.id = ?", trimmed).
				WhereOr("?TableAlias.slug = ?", trimmed)
		}).
		Where("?TableAlias.deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Listing{}, core.ErrListingNotFound
		}
		return core.Listing{}, err
	}
	return record.toDomain(), nil
}

func (s *ListingStore) ListEligibleForProbe(ctx context.Context) ([]core.Listing, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: listing store is not configured")
	}

	records := []*listingRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.ListingStatusApproved)).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.api_url <> ''").
				WhereOr("?TableAlias.homepage_url <> ''")
		}).
		Where("?TableAlias.deleted_at IS NULL").
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]core.Listing, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *ListingStore) UpdateHealth(ctx context.Context, listingID string, status core.HealthStatus, checkedAt time.Time) error {
	if err := status.Validate(); err != nil {
		return err
	}
	checkedAt = checkedAt.UTC()
	return s.updateByID(ctx, listingID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("last_health_status = ?", string(status)).
			Set("last_checked_at = ?", checkedAt)
	})
}

func (s *ListingStore) UpdateUptime(ctx context.Context, listingID string, uptimePct float64) error {
	return s.updateByID(ctx, listingID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("uptime_pct = ?", uptimePct)
	})
}

func (s *ListingStore) BindEditToken(ctx context.Context, listingID string, tokenHash string) error {
	trimmedHash := strings.TrimSpace(tokenHash)
	if trimmedHash == "" {
		return fmt.Errorf("sqlstore: edit token hash is required")
	}
	return s.updateByID(ctx, listingID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("edit_token_hash = ?", trimmedHash)
	})
}

func (s *ListingStore) VerifyEditToken(ctx context.Context, listingID string, tokenHash string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: listing store is not configured")
	}

	var storedHash string
	err := s.db.NewSelect().
		Model((*listingRecord)(nil)).
		Column("edit_token_hash").
		Where("?TableAlias.id = ?", strings.TrimSpace(listingID)).
		Where("?TableAlias.deleted_at IS NULL").
		Limit(1).
		Scan(ctx, &storedHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, core.ErrListingNotFound
		}
		return false, err
	}
	if storedHash == "" {
		return false, nil
	}
	return storedHash == strings.TrimSpace(tokenHash), nil
}

func (s *ListingStore) IsRateExempt(ctx context.Context, listingID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: listing store is not configured")
	}

	var exempt bool
	err := s.db.NewSelect().
		Model((*listingRecord)(nil)).
		Column("rate_exempt").
		Where("?TableAlias.id = ?", strings.TrimSpace(listingID)).
		Where("?TableAlias.deleted_at IS NULL").
		Limit(1).
		Scan(ctx, &exempt)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, core.ErrListingNotFound
		}
		return false, err
	}
	return exempt, nil
}

func (s *ListingStore) updateByID(ctx context.Context, listingID string, apply func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: listing store is not configured")
	}
	trimmedID := strings.TrimSpace(listingID)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: listing id is required")
	}

	query := s.db.NewUpdate().
		Model((*listingRecord)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("?TableAlias.id = ?", trimmedID).
		Where("?TableAlias.deleted_at IS NULL")
	result, err := apply(query).Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrListingNotFound
	}
	return nil
}
