package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[IssueKeyMessage]          = (*IssueKeyCommand)(nil)
	_ gocmd.Commander[RevokeKeyMessage]         = (*RevokeKeyCommand)(nil)
	_ gocmd.Commander[MintEditTokenMessage]     = (*MintEditTokenCommand)(nil)
	_ gocmd.Commander[PublishEventMessage]      = (*PublishEventCommand)(nil)
	_ gocmd.Commander[ProbeListingMessage]      = (*ProbeListingCommand)(nil)
	_ gocmd.Commander[RunHealthScanMessage]     = (*RunHealthScanCommand)(nil)
	_ gocmd.Commander[RegisterWebhookMessage]   = (*RegisterWebhookCommand)(nil)
	_ gocmd.Commander[UpdateWebhookMessage]     = (*UpdateWebhookCommand)(nil)
	_ gocmd.Commander[DeleteWebhookMessage]     = (*DeleteWebhookCommand)(nil)
	_ gocmd.Commander[ReactivateWebhookMessage] = (*ReactivateWebhookCommand)(nil)
)
