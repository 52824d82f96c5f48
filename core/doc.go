// Package core contains the canonical registry domain contracts, entities,
// and orchestration logic for the operational backbone: credential
// resolution, admission control, event publishing, and health probing.
// Lower-level adapters must depend on this package; core must not depend on
// storage-specific or transport-specific adapters.
package core
