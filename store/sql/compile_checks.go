package sqlstore

import "github.com/goliatone/go-registry/core"

var (
	_ core.APIKeyStore            = (*APIKeyStore)(nil)
	_ core.ListingStore           = (*ListingStore)(nil)
	_ core.WebhookStore           = (*WebhookStore)(nil)
	_ core.HealthResultStore      = (*HealthResultStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
