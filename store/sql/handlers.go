package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func apiKeyHandlers() repository.ModelHandlers[*apiKeyRecord] {
	return repository.ModelHandlers[*apiKeyRecord]{
		NewRecord: func() *apiKeyRecord {
			return &apiKeyRecord{}
		},
		GetID: func(record *apiKeyRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *apiKeyRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *apiKeyRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func listingHandlers() repository.ModelHandlers[*listingRecord] {
	return repository.ModelHandlers[*listingRecord]{
		NewRecord: func() *listingRecord {
			return &listingRecord{}
		},
		GetID: func(record *listingRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *listingRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *listingRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func webhookHandlers() repository.ModelHandlers[*webhookRecord] {
	return repository.ModelHandlers[*webhookRecord]{
		NewRecord: func() *webhookRecord {
			return &webhookRecord{}
		},
		GetID: func(record *webhookRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *webhookRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *webhookRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func healthCheckHandlers() repository.ModelHandlers[*healthCheckRecord] {
	return repository.ModelHandlers[*healthCheckRecord]{
		NewRecord: func() *healthCheckRecord {
			return &healthCheckRecord{}
		},
		GetID: func(record *healthCheckRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *healthCheckRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *healthCheckRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
