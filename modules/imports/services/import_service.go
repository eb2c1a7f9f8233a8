package services

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/core/domain/entities/user"
	"github.com/worklane/worklane/modules/imports/domain/importjob"
	"github.com/worklane/worklane/modules/imports/domain/sheet"
	"github.com/worklane/worklane/modules/imports/infrastructure/jobstore"
	"github.com/worklane/worklane/modules/pm/domain/entities/client"
	"github.com/worklane/worklane/modules/pm/domain/entities/project"
	"github.com/worklane/worklane/modules/pm/domain/entities/section"
	"github.com/worklane/worklane/modules/pm/domain/entities/task"
	"github.com/worklane/worklane/modules/pm/domain/entities/timeentry"
	"github.com/worklane/worklane/pkg/composables"
	"github.com/worklane/worklane/pkg/configuration"
	"github.com/worklane/worklane/pkg/eventbus"
	"github.com/worklane/worklane/pkg/tabular"
)

var (
	ErrNoUpload            = errors.New("no file uploaded for this job")
	ErrNoMapping           = errors.New("no column mapping set for this job")
	ErrNotValidated        = errors.New("job must be validated before it can run")
	ErrJobRunning          = errors.New("job is already running")
	ErrUnknownTargetField  = errors.New("unknown target field")
	ErrUnknownSourceColumn = errors.New("unknown source column")
)

// sampleSize rows are kept for the mapping screen preview.
const sampleSize = 5

// Repos bundles the tenant stores the import pipeline reads and writes.
type Repos struct {
	Users       user.Repository
	Clients     client.Repository
	Projects    project.Repository
	Sections    section.Repository
	Tasks       task.Repository
	TimeEntries timeentry.Repository
}

// UploadResult is what the wizard needs to render the mapping screen.
type UploadResult struct {
	JobID            string                  `json:"jobId"`
	Columns          []string                `json:"columns"`
	SampleRows       [][]string              `json:"sampleRows"`
	RowCount         int                     `json:"rowCount"`
	Truncated        bool                    `json:"truncated,omitempty"`
	SuggestedMapping []sheet.ColumnMapping   `json:"suggestedMapping"`
	Fields           []sheet.FieldDefinition `json:"fields"`
	Warnings         []tabular.Warning       `json:"warnings,omitempty"`
}

// ImportService drives the CSV import wizard: create a job, upload a sheet,
// map columns, validate, execute. Jobs live in the transient job store; all
// reads and writes of tenant data go through the bundled repositories.
type ImportService struct {
	repos     Repos
	store     *jobstore.Store
	publisher eventbus.EventBus
	conf      configuration.ImportOptions
}

func NewImportService(repos Repos, store *jobstore.Store, publisher eventbus.EventBus, conf configuration.ImportOptions) *ImportService {
	return &ImportService{
		repos:     repos,
		store:     store,
		publisher: publisher,
		conf:      conf,
	}
}

func (s *ImportService) Create(ctx context.Context, entityType sheet.EntityType, opts importjob.Options) (*importjob.DTO, error) {
	if _, err := sheet.Catalog(entityType); err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	job := importjob.New(tenantID, entityType)
	job.Options = opts
	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}

	dto := job.ToDTO()
	s.publisher.Publish(importjob.CreatedEvent{TenantID: tenantID, Job: dto})
	return dto, nil
}

func (s *ImportService) Job(ctx context.Context, jobID string) (*importjob.DTO, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	job, err := s.store.Get(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	return job.ToDTO(), nil
}

func (s *ImportService) Delete(ctx context.Context, jobID string) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, tenantID, jobID)
}

func (s *ImportService) Fields(entityType sheet.EntityType) ([]sheet.FieldDefinition, error) {
	return sheet.Catalog(entityType)
}

// FieldSuggestions ranks catalog fields against one source column for the
// mapping screen's dropdown.
func (s *ImportService) FieldSuggestions(entityType sheet.EntityType, column string, limit int) ([]string, error) {
	fields, err := sheet.Catalog(entityType)
	if err != nil {
		return nil, err
	}
	return sheet.SuggestFields(column, fields, limit), nil
}

// Upload parses the raw file, stores its rows on the job and suggests a
// column mapping. Re-uploading resets any previous mapping and validation.
func (s *ImportService) Upload(ctx context.Context, jobID string, data []byte) (*UploadResult, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	table, warnings, err := tabular.Parse(data, s.conf.MaxUploadRows)
	if err != nil {
		return nil, err
	}

	var result *UploadResult
	err = s.store.Update(ctx, tenantID, jobID, func(j *importjob.Job) error {
		if j.Status == importjob.StatusRunning {
			return ErrJobRunning
		}
		fields, err := sheet.Catalog(j.EntityType)
		if err != nil {
			return err
		}

		j.Columns = table.Columns
		j.Rows = table.Rows
		j.SampleRows = sampleRows(table.Rows, sampleSize)
		j.Truncated = table.Truncated
		j.Mapping = sheet.SuggestMappings(table.Columns, fields)
		j.Status = importjob.StatusDraft
		j.ValidationSummary = nil
		j.ImportSummary = nil
		j.ErrorRows = nil
		j.Progress = importjob.Progress{}

		result = &UploadResult{
			JobID:            j.ID,
			Columns:          j.Columns,
			SampleRows:       j.SampleRows,
			RowCount:         len(j.Rows),
			Truncated:        j.Truncated,
			SuggestedMapping: j.Mapping,
			Fields:           fields,
			Warnings:         warnings,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetMapping replaces the job's column mapping and import options. Any
// earlier validation result is stale afterwards, so the job drops back to
// draft.
func (s *ImportService) SetMapping(ctx context.Context, jobID string, mappings []sheet.ColumnMapping, opts importjob.Options) (*importjob.DTO, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	var dto *importjob.DTO
	err = s.store.Update(ctx, tenantID, jobID, func(j *importjob.Job) error {
		if j.Status == importjob.StatusRunning {
			return ErrJobRunning
		}
		if len(j.Columns) == 0 {
			return ErrNoUpload
		}
		if err := validateMapping(j, mappings); err != nil {
			return err
		}

		j.Mapping = mappings
		j.Options = opts
		j.Status = importjob.StatusDraft
		j.ValidationSummary = nil
		dto = j.ToDTO()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func validateMapping(j *importjob.Job, mappings []sheet.ColumnMapping) error {
	fields, err := sheet.Catalog(j.EntityType)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Key] = true
	}
	cols := make(map[string]bool, len(j.Columns))
	for _, c := range j.Columns {
		cols[c] = true
	}
	for _, m := range mappings {
		if !known[m.TargetField] {
			return errors.Wrapf(ErrUnknownTargetField, "%q", m.TargetField)
		}
		if m.StaticValue == "" && !cols[m.SourceColumn] {
			return errors.Wrapf(ErrUnknownSourceColumn, "%q", m.SourceColumn)
		}
	}
	return nil
}

// Validate dry-runs the mapped sheet against current tenant data and stores
// the summary on the job.
func (s *ImportService) Validate(ctx context.Context, jobID string) (*importjob.ValidationSummary, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	job, err := s.store.Get(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if len(job.Columns) == 0 {
		return nil, ErrNoUpload
	}
	if len(job.Mapping) == 0 {
		return nil, ErrNoMapping
	}

	lookups, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*TenantLookups, error) {
		return BuildTenantLookups(txCtx, s.repos.Users, s.repos.Clients, s.repos.Projects, s.repos.Tasks)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build tenant lookups")
	}

	summary, err := validateRows(job.EntityType, job.Columns, job.Rows, job.Mapping, job.Options, lookups)
	if err != nil {
		return nil, err
	}

	err = s.store.Update(ctx, tenantID, jobID, func(j *importjob.Job) error {
		if j.Status == importjob.StatusRunning {
			return ErrJobRunning
		}
		j.ValidationSummary = summary
		j.Status = importjob.StatusValidated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(importjob.ValidatedEvent{TenantID: tenantID, JobID: jobID, Summary: summary})
	return summary, nil
}

// Execute runs a validated job to completion. onProgress, when non-nil, is
// called after every persisted batch; it is how the queue handler forwards
// live progress to pollers.
func (s *ImportService) Execute(ctx context.Context, jobID string, onProgress progressFunc) (*importjob.ImportSummary, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	var job importjob.Job
	err = s.store.Update(ctx, tenantID, jobID, func(j *importjob.Job) error {
		if j.Status == importjob.StatusRunning {
			return ErrJobRunning
		}
		if j.Status != importjob.StatusValidated {
			return ErrNotValidated
		}
		j.Status = importjob.StatusRunning
		j.Progress = importjob.Progress{Processed: 0, Total: len(j.Rows)}
		job = *j
		return nil
	})
	if err != nil {
		return nil, err
	}

	summary, errorRows, err := executeRows(
		ctx,
		s.repos,
		job.EntityType,
		job.Columns,
		job.Rows,
		job.Mapping,
		job.Options,
		s.conf.BatchSize,
		func(processed, total int) {
			s.persistProgress(ctx, tenantID, jobID, processed, total)
			if onProgress != nil {
				onProgress(processed, total)
			}
		},
	)
	if err != nil {
		s.markFailed(ctx, tenantID, jobID)
		return nil, err
	}

	status := importjob.StatusCompleted
	if summary.Created+summary.Updated == 0 && summary.Failed > 0 {
		status = importjob.StatusFailed
	}
	err = s.store.Update(ctx, tenantID, jobID, func(j *importjob.Job) error {
		j.Status = status
		j.ImportSummary = summary
		j.ErrorRows = errorRows
		j.Progress = importjob.Progress{Processed: len(j.Rows), Total: len(j.Rows)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(importjob.ExecutedEvent{TenantID: tenantID, JobID: jobID, Summary: summary})
	return summary, nil
}

// ErrorRowsCSV renders the failed rows of the last run as a flat CSV for
// download.
func (s *ImportService) ErrorRowsCSV(ctx context.Context, jobID string) ([]byte, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	job, err := s.store.Get(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	table := &tabular.Table{Columns: []string{"row", "primaryKey", "errorCode", "message"}}
	for _, er := range job.ErrorRows {
		table.Rows = append(table.Rows, []string{strconv.Itoa(er.Row), er.PrimaryKey, er.Code, er.Message})
	}
	return tabular.SerializeCSV(table)
}

func (s *ImportService) persistProgress(ctx context.Context, tenantID uuid.UUID, jobID string, processed, total int) {
	err := s.store.Update(ctx, tenantID, jobID, func(j *importjob.Job) error {
		j.Progress = importjob.Progress{Processed: processed, Total: total}
		return nil
	})
	if err != nil {
		composables.UseLogger(ctx).WithError(err).Warn("failed to persist import progress")
	}
}

func (s *ImportService) markFailed(ctx context.Context, tenantID uuid.UUID, jobID string) {
	err := s.store.Update(ctx, tenantID, jobID, func(j *importjob.Job) error {
		j.Status = importjob.StatusFailed
		return nil
	})
	if err != nil {
		composables.UseLogger(ctx).WithError(err).Warn("failed to mark import job failed")
	}
}

func sampleRows(rows [][]string, n int) [][]string {
	if len(rows) < n {
		n = len(rows)
	}
	out := make([][]string, n)
	copy(out, rows[:n])
	return out
}
