package importjob

import "github.com/google/uuid"

type CreatedEvent struct {
	TenantID uuid.UUID
	Job      *DTO
}

type ValidatedEvent struct {
	TenantID uuid.UUID
	JobID    string
	Summary  *ValidationSummary
}

type ExecutedEvent struct {
	TenantID uuid.UUID
	JobID    string
	Summary  *ImportSummary
}
