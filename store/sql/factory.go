package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-registry/core"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	apiKeyStore       *APIKeyStore
	listingStore      *ListingStore
	webhookStore      *WebhookStore
	healthResultStore *HealthResultStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.apiKeyStore != nil && f.listingStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) APIKeyStore() core.APIKeyStore {
	if f == nil || f.apiKeyStore == nil {
		return nil
	}
	return f.apiKeyStore
}

func (f *RepositoryFactory) ListingStore() core.ListingStore {
	if f == nil || f.listingStore == nil {
		return nil
	}
	return f.listingStore
}

func (f *RepositoryFactory) WebhookStore() core.WebhookStore {
	if f == nil || f.webhookStore == nil {
		return nil
	}
	return f.webhookStore
}

func (f *RepositoryFactory) HealthResultStore() core.HealthResultStore {
	if f == nil || f.healthResultStore == nil {
		return nil
	}
	return f.healthResultStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	if f.db == nil {
		return fmt.Errorf("sqlstore: bun db is required")
	}
	apiKeyStore, err := NewAPIKeyStore(f.db)
	if err != nil {
		return err
	}
	f.apiKeyStore = apiKeyStore
	listingStore, err := NewListingStore(f.db)
	if err != nil {
		return err
	}
	f.listingStore = listingStore
	webhookStore, err := NewWebhookStore(f.db)
	if err != nil {
		return err
	}
	f.webhookStore = webhookStore
	healthResultStore, err := NewHealthResultStore(f.db)
	if err != nil {
		return err
	}
	f.healthResultStore = healthResultStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
