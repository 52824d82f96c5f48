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

type APIKeyStore struct {
	db   *bun.DB
	repo repository.Repository[*apiKeyRecord]
}

func NewAPIKeyStore(db *bun.DB) (*APIKeyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*apiKeyRecord](db, apiKeyHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid api key repository wiring: %w", err)
		}
	}
	return &APIKeyStore{db: db, repo: repo}, nil
}

func (s *APIKeyStore) FindByHash(ctx context.Context, keyHash string) (core.Credential, error) {
	if s == nil || s.db == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: api key store is not configured")
	}
	trimmed := strings.TrimSpace(keyHash)
	if trimmed == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: key hash is required")
	}

	record := &apiKeyRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.key_hash = ?", trimmed).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Credential{}, core.ErrCredentialNotFound
		}
		return core.Credential{}, err
	}
	return record.toDomain(), nil
}

// Get looks a credential up by id. Not part of the core contract, but the
// cached wrapper needs it to invalidate by hash on revocation.
func (s *APIKeyStore) Get(ctx context.Context, id string) (core.Credential, error) {
	if s == nil || s.db == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: api key store is not configured")
	}
	record := &apiKeyRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Credential{}, core.ErrCredentialNotFound
		}
		return core.Credential{}, err
	}
	return record.toDomain(), nil
}

func (s *APIKeyStore) Create(ctx context.Context, cred core.Credential) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: api key store is not configured")
	}
	if strings.TrimSpace(cred.Name) == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: credential name is required")
	}
	if strings.TrimSpace(cred.KeyHash) == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: credential key hash is required")
	}

	record := &apiKeyRecord{
		ID:        strings.TrimSpace(cred.ID),
		Name:      strings.TrimSpace(cred.Name),
		KeyHash:   strings.TrimSpace(cred.KeyHash),
		Kind:      string(cred.Kind),
		RateLimit: cred.RateLimit,
		Revoked:   cred.Revoked,
		CreatedAt: cred.CreatedAt,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Credential{}, err
	}
	return created.toDomain(), nil
}

func (s *APIKeyStore) Revoke(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: api key store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: credential id is required")
	}

	result, err := s.db.NewUpdate().
		Model((*apiKeyRecord)(nil)).
		Set("revoked = ?", true).
		Where("?TableAlias.id = ?", trimmedID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrCredentialNotFound
	}
	return nil
}

func (s *APIKeyStore) List(ctx context.Context) ([]core.Credential, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: api key store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.OrderBy("created_at DESC"),
	)
	if err != nil {
		return nil, err
	}

	out := make([]core.Credential, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
