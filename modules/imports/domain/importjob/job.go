package importjob

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/worklane/worklane/modules/imports/domain/sheet"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusValidated Status = "validated"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Error codes surfaced in validation and import summaries.
const (
	CodeRequiredFieldMissing = "REQUIRED_FIELD_MISSING"
	CodeInvalidDate          = "INVALID_DATE"
	CodeClientNotFound       = "CLIENT_NOT_FOUND"
	CodeProjectNotFound      = "PROJECT_NOT_FOUND"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeAssigneeNotFound     = "ASSIGNEE_NOT_FOUND"
	CodeDBError              = "DB_ERROR"

	WarnParentWillBeCreated = "PARENT_WILL_BE_CREATED"
	WarnEndBeforeStart      = "END_BEFORE_START"
)

// IsDependencyCode reports whether an error code names a missing natural-key
// reference that execution-time auto-create can resolve.
func IsDependencyCode(code string) bool {
	switch code {
	case CodeClientNotFound, CodeProjectNotFound, CodeUserNotFound, CodeAssigneeNotFound:
		return true
	}
	return false
}

type ValidationError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationWarning struct {
	Row     int    `json:"row"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MissingDependency groups every row that references one unresolved natural
// key, keyed by the lowercased name.
type MissingDependency struct {
	EntityType string `json:"entityType"`
	Name       string `json:"name"`
	Rows       []int  `json:"rows"`
}

type ValidationSummary struct {
	WouldCreate                int                 `json:"wouldCreate"`
	WouldUpdate                int                 `json:"wouldUpdate"`
	WouldSkip                  int                 `json:"wouldSkip"`
	WouldFail                  int                 `json:"wouldFail"`
	WouldFailWithoutAutoCreate int                 `json:"wouldFailWithoutAutoCreate"`
	Errors                     []ValidationError   `json:"errors"`
	Warnings                   []ValidationWarning `json:"warnings"`
	MissingDependencies        []MissingDependency `json:"missingDependencies"`
}

type ImportSummary struct {
	Created    int               `json:"created"`
	Updated    int               `json:"updated"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	DurationMs int64             `json:"durationMs"`
	Errors     []ValidationError `json:"errors"`
}

// ErrorRow feeds the flat CSV error export.
type ErrorRow struct {
	Row        int    `json:"row"`
	PrimaryKey string `json:"primaryKey"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

type Options struct {
	AutoCreateMissing bool `json:"autoCreateMissing"`
}

// Job is the transient state of one import wizard run. Slice and pointer
// fields are replaced wholesale, never mutated in place, so a value copy
// handed out by the store is safe to read while the worker advances the
// original.
type Job struct {
	ID         string
	TenantID   uuid.UUID
	EntityType sheet.EntityType
	Status     Status

	Columns    []string
	Rows       [][]string
	SampleRows [][]string
	Truncated  bool

	Mapping []sheet.ColumnMapping
	Options Options

	ValidationSummary *ValidationSummary
	ImportSummary     *ImportSummary
	Progress          Progress
	ErrorRows         []ErrorRow

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New starts a draft job. IDs are ULIDs: unique, URL-safe and
// lexicographically ordered by creation time.
func New(tenantID uuid.UUID, entityType sheet.EntityType) *Job {
	now := time.Now()
	return &Job{
		ID:         ulid.Make().String(),
		TenantID:   tenantID,
		EntityType: entityType,
		Status:     StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// DTO is the caller-visible projection of a job. Raw rows never leave the
// store; only the sample used by the mapping screen does.
type DTO struct {
	ID                string                `json:"id"`
	EntityType        sheet.EntityType      `json:"entityType"`
	Status            Status                `json:"status"`
	Columns           []string              `json:"columns"`
	SampleRows        [][]string            `json:"sampleRows"`
	RowCount          int                   `json:"rowCount"`
	Truncated         bool                  `json:"truncated,omitempty"`
	Mapping           []sheet.ColumnMapping `json:"mapping,omitempty"`
	Options           Options               `json:"options"`
	ValidationSummary *ValidationSummary    `json:"validationSummary,omitempty"`
	ImportSummary     *ImportSummary        `json:"importSummary,omitempty"`
	Progress          Progress              `json:"progress"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

func (j *Job) ToDTO() *DTO {
	return &DTO{
		ID:                j.ID,
		EntityType:        j.EntityType,
		Status:            j.Status,
		Columns:           j.Columns,
		SampleRows:        j.SampleRows,
		RowCount:          len(j.Rows),
		Truncated:         j.Truncated,
		Mapping:           j.Mapping,
		Options:           j.Options,
		ValidationSummary: j.ValidationSummary,
		ImportSummary:     j.ImportSummary,
		Progress:          j.Progress,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
	}
}
