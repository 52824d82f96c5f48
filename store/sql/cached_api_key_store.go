package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-registry/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const apiKeyCacheKeyPrefix = "go-registry::api_key::v1"

// CachedAPIKeyStore fronts credential-hash lookups with a read-through
// cache. Every authenticated request resolves a key hash, so this is the
// hottest read path in the module; writes invalidate the affected entry.
type CachedAPIKeyStore struct {
	base  *APIKeyStore
	cache repositorycache.CacheService
}

func NewCachedAPIKeyStore(base *APIKeyStore, cacheService repositorycache.CacheService) (*CachedAPIKeyStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base api key store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: api key cache service is required")
	}
	return &CachedAPIKeyStore{base: base, cache: cacheService}, nil
}

// APIKeyCacheKey returns the deterministic cache key for a key-hash lookup:
// go-registry::api_key::v1::<key_hash> with the hash URL-path escaped.
func APIKeyCacheKey(keyHash string) (string, error) {
	trimmed := strings.TrimSpace(keyHash)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: key hash is required")
	}
	return apiKeyCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedAPIKeyStore) FindByHash(ctx context.Context, keyHash string) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: cached api key store is not configured")
	}
	cacheKey, err := APIKeyCacheKey(keyHash)
	if err != nil {
		return core.Credential{}, err
	}

	cred, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Credential, error) {
		return s.base.FindByHash(ctx, keyHash)
	})
	if err != nil {
		return core.Credential{}, err
	}
	return cred, nil
}

func (s *CachedAPIKeyStore) Create(ctx context.Context, cred core.Credential) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: cached api key store is not configured")
	}
	created, err := s.base.Create(ctx, cred)
	if err != nil {
		return core.Credential{}, err
	}
	if err := s.invalidate(ctx, created.KeyHash); err != nil {
		return core.Credential{}, err
	}
	return created, nil
}

// Revoke invalidates the cache entry after the write so the revocation
// takes effect on the next lookup rather than after TTL expiry.
func (s *CachedAPIKeyStore) Revoke(ctx context.Context, id string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached api key store is not configured")
	}
	cred, err := s.base.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.base.Revoke(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, cred.KeyHash)
}

func (s *CachedAPIKeyStore) List(ctx context.Context) ([]core.Credential, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached api key store is not configured")
	}
	return s.base.List(ctx)
}

func (s *CachedAPIKeyStore) invalidate(ctx context.Context, keyHash string) error {
	cacheKey, err := APIKeyCacheKey(keyHash)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.APIKeyStore = (*CachedAPIKeyStore)(nil)
