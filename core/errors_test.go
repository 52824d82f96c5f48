package core

import (
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestRegistryErrorMapperClassifiesMessages(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		textCode string
		code     int
	}{
		{
			name:     "not found",
			err:      fmt.Errorf("core: listing not found"),
			category: goerrors.CategoryNotFound,
			textCode: RegistryErrorNotFound,
			code:     http.StatusNotFound,
		},
		{
			name:     "rate limited",
			err:      fmt.Errorf("rate limit exceeded for bucket"),
			category: goerrors.CategoryRateLimit,
			textCode: RegistryErrorRateLimited,
			code:     http.StatusTooManyRequests,
		},
		{
			name:     "permission",
			err:      fmt.Errorf("admin key required"),
			category: goerrors.CategoryAuthz,
			textCode: RegistryErrorPermissionDenied,
			code:     http.StatusForbidden,
		},
		{
			name:     "bad input",
			err:      fmt.Errorf("core: key name is required"),
			category: goerrors.CategoryBadInput,
			textCode: RegistryErrorBadInput,
			code:     http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := registryErrorMapper(tc.err)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.Category != tc.category {
				t.Fatalf("expected category %q, got %q", tc.category, mapped.Category)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %q, got %q", tc.textCode, mapped.TextCode)
			}
			if mapped.Code != tc.code {
				t.Fatalf("expected code %d, got %d", tc.code, mapped.Code)
			}
		})
	}
}

func TestRegistryErrorMapperPreservesRichErrors(t *testing.T) {
	original := goerrors.New("webhook target rejected", goerrors.CategoryConflict).
		WithTextCode("REGISTRY_CONFLICT")
	mapped := registryErrorMapper(original)
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != "REGISTRY_CONFLICT" {
		t.Fatalf("expected text code to survive, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusConflict {
		t.Fatalf("expected conflict status fill-in, got %d", mapped.Code)
	}
}

func TestRegistryErrorMapperNil(t *testing.T) {
	if registryErrorMapper(nil) != nil {
		t.Fatalf("expected nil for nil input")
	}
}
