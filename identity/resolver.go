package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-registry/core"
)

var ErrStoresNotConfigured = errors.New("identity: stores are not configured")

// InvalidCredentialError reports a presented secret that failed to resolve.
// Resolution itself degrades to anonymous; this error type exists for
// callers that want to reject explicitly (admin surfaces do).
type InvalidCredentialError struct {
	Slot  string
	Cause error
}

func (e *InvalidCredentialError) Error() string {
	if e == nil {
		return "identity: invalid credential"
	}
	msg := "identity: invalid credential"
	if e.Slot != "" {
		msg += " in " + e.Slot + " slot"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *InvalidCredentialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *InvalidCredentialError) ToServiceError() *goerrors.Error {
	message := "identity: invalid credential"
	if e != nil {
		message = e.Error()
	}
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.RegistryErrorPermissionDenied)
}

type Config struct {
	Keys     core.APIKeyStore
	Listings core.ListingStore
}

// Resolver classifies presented secrets into exactly one identity. The
// dedicated edit-token slot outranks the API-key slot; an edit token that
// fails verification falls through to the API key, and an unknown or
// revoked API key degrades to anonymous.
type Resolver struct {
	keys     core.APIKeyStore
	listings core.ListingStore
}

func NewResolver(cfg Config) *Resolver {
	return &Resolver{
		keys:     cfg.Keys,
		listings: cfg.Listings,
	}
}

var _ core.IdentityResolver = (*Resolver)(nil)

func (r *Resolver) Resolve(ctx context.Context, secrets core.Secrets) (core.Identity, error) {
	if r == nil {
		return core.Identity{}, ErrStoresNotConfigured
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if token := strings.TrimSpace(secrets.EditToken); token != "" {
		identity, ok, err := r.resolveEditToken(ctx, token, secrets.ListingID)
		if err != nil {
			return core.Identity{}, err
		}
		if ok {
			return identity, nil
		}
	}

	if key := strings.TrimSpace(secrets.APIKey); key != "" {
		identity, ok, err := r.resolveAPIKey(ctx, key)
		if err != nil {
			return core.Identity{}, err
		}
		if ok {
			return identity, nil
		}
	}

	return core.Identity{Kind: core.IdentityAnonymous}, nil
}

func (r *Resolver) resolveEditToken(ctx context.Context, token string, listingID string) (core.Identity, bool, error) {
	if r.listings == nil {
		return core.Identity{}, false, ErrStoresNotConfigured
	}
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return core.Identity{}, false, nil
	}
	ok, err := r.listings.VerifyEditToken(ctx, listingID, core.HashSecret(token))
	if err != nil {
		if errors.Is(err, core.ErrListingNotFound) {
			return core.Identity{}, false, nil
		}
		return core.Identity{}, false, err
	}
	if !ok {
		return core.Identity{}, false, nil
	}
	return core.Identity{
		Kind:      core.IdentityEditToken,
		ListingID: listingID,
	}, true, nil
}

func (r *Resolver) resolveAPIKey(ctx context.Context, key string) (core.Identity, bool, error) {
	if r.keys == nil {
		return core.Identity{}, false, ErrStoresNotConfigured
	}
	cred, err := r.keys.FindByHash(ctx, core.HashSecret(key))
	if err != nil {
		if errors.Is(err, core.ErrCredentialNotFound) {
			return core.Identity{}, false, nil
		}
		return core.Identity{}, false, err
	}
	if cred.Revoked {
		return core.Identity{}, false, nil
	}

	kind := core.IdentityRegular
	if cred.Kind == core.CredentialAdmin {
		kind = core.IdentityAdmin
	}
	return core.Identity{
		Kind:      kind,
		KeyID:     cred.ID,
		KeyName:   cred.Name,
		RateLimit: cred.RateLimit,
	}, true, nil
}
