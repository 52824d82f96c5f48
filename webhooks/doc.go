// Package webhooks signs and delivers registry events to external targets
// and manages webhook registrations.
//
// Delivery is at-most-once and fire-and-forget: one POST per active,
// matching webhook, no retries. A webhook that fails ten consecutive
// deliveries is disabled until an operator reactivates it; one success
// resets the counter without touching the active flag.
package webhooks
