package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	apiKeyPrefix        = "reg_"
	editTokenPrefix     = "edt_"
	webhookSecretPrefix = "whsec_"
)

// HashSecret is the canonical credential digest. Raw secrets are never
// persisted; every lookup and comparison goes through this hash.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// NewAPIKey mints a raw API key. The raw value is returned exactly once, at
// issuance.
func NewAPIKey() (string, error) {
	return mintSecret(apiKeyPrefix)
}

// NewEditToken mints a raw edit token bound later to a single listing.
func NewEditToken() (string, error) {
	return mintSecret(editTokenPrefix)
}

// NewWebhookSecret mints a webhook signing secret.
func NewWebhookSecret() (string, error) {
	return mintSecret(webhookSecretPrefix)
}

func mintSecret(prefix string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("core: secret generation failed: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}
