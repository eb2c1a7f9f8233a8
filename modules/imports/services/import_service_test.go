package services

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/worklane/worklane/modules/imports/domain/importjob"
	"github.com/worklane/worklane/modules/imports/domain/sheet"
	"github.com/worklane/worklane/modules/imports/infrastructure/jobstore"
	"github.com/worklane/worklane/pkg/configuration"
	"github.com/worklane/worklane/pkg/eventbus"
)

func newTestImportService(mem *memRepos) *ImportService {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewImportService(
		mem.bundle(),
		jobstore.New(jobstore.Options{}),
		eventbus.NewEventPublisher(logger),
		configuration.ImportOptions{
			MaxUploadRows: 50000,
			BatchSize:     200,
			JobTTL:        2 * time.Hour,
			TenantJobCap:  50,
		},
	)
}

func TestImportService_WizardFlow(t *testing.T) {
	t.Parallel()

	ctx := tenantCtx()
	mem := newMemRepos()
	svc := newTestImportService(mem)

	dto, err := svc.Create(ctx, sheet.EntityTypeClients, importjob.Options{})
	require.NoError(t, err)
	require.Equal(t, importjob.StatusDraft, dto.Status)

	csv := "Company Name,Contact,Email\nAcme,Jane,JANE@ACME.COM\nacme,Dup,dup@acme.com\n"
	up, err := svc.Upload(ctx, dto.ID, []byte(csv))
	require.NoError(t, err)
	require.Equal(t, 2, up.RowCount)
	require.Equal(t, []string{"Company Name", "Contact", "Email"}, up.Columns)
	require.Len(t, up.SampleRows, 2)
	require.NotEmpty(t, up.Fields)

	mapped := map[string]string{}
	for _, m := range up.SuggestedMapping {
		mapped[m.TargetField] = m.SourceColumn
	}
	require.Equal(t, "Company Name", mapped["companyName"])
	require.Equal(t, "Contact", mapped["contactName"])
	require.Equal(t, "Email", mapped["email"])

	summary, err := svc.Validate(ctx, dto.ID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.WouldCreate)
	require.Equal(t, 1, summary.WouldSkip)
	require.Empty(t, summary.Errors)

	got, err := svc.Job(ctx, dto.ID)
	require.NoError(t, err)
	require.Equal(t, importjob.StatusValidated, got.Status)

	result, err := svc.Execute(ctx, dto.ID, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, 0, result.Failed)

	got, err = svc.Job(ctx, dto.ID)
	require.NoError(t, err)
	require.Equal(t, importjob.StatusCompleted, got.Status)
	require.Equal(t, importjob.Progress{Processed: 2, Total: 2}, got.Progress)
	require.NotNil(t, got.ImportSummary)

	require.Len(t, mem.clients.items, 1)
	created := mem.clients.items[0]
	require.Equal(t, "Acme", created.CompanyName)
	require.Equal(t, "jane@acme.com", created.Email, "email transform lowercases on the way in")
}

func TestImportService_ValidateRequiresUpload(t *testing.T) {
	t.Parallel()

	ctx := tenantCtx()
	svc := newTestImportService(newMemRepos())

	dto, err := svc.Create(ctx, sheet.EntityTypeUsers, importjob.Options{})
	require.NoError(t, err)

	_, err = svc.Validate(ctx, dto.ID)
	require.ErrorIs(t, err, ErrNoUpload)
}

func TestImportService_ExecuteRequiresValidation(t *testing.T) {
	t.Parallel()

	ctx := tenantCtx()
	svc := newTestImportService(newMemRepos())

	dto, err := svc.Create(ctx, sheet.EntityTypeUsers, importjob.Options{})
	require.NoError(t, err)
	_, err = svc.Upload(ctx, dto.ID, []byte("email\na@x.com\n"))
	require.NoError(t, err)

	_, err = svc.Execute(ctx, dto.ID, nil)
	require.ErrorIs(t, err, ErrNotValidated)
}

func TestImportService_SetMappingValidatesAndResets(t *testing.T) {
	t.Parallel()

	ctx := tenantCtx()
	svc := newTestImportService(newMemRepos())

	dto, err := svc.Create(ctx, sheet.EntityTypeUsers, importjob.Options{})
	require.NoError(t, err)
	_, err = svc.Upload(ctx, dto.ID, []byte("email\na@x.com\n"))
	require.NoError(t, err)
	_, err = svc.Validate(ctx, dto.ID)
	require.NoError(t, err)

	_, err = svc.SetMapping(ctx, dto.ID, []sheet.ColumnMapping{{SourceColumn: "email", TargetField: "nope"}}, importjob.Options{})
	require.ErrorIs(t, err, ErrUnknownTargetField)

	_, err = svc.SetMapping(ctx, dto.ID, []sheet.ColumnMapping{{SourceColumn: "missing", TargetField: "email"}}, importjob.Options{})
	require.ErrorIs(t, err, ErrUnknownSourceColumn)

	got, err := svc.SetMapping(ctx, dto.ID, []sheet.ColumnMapping{
		{SourceColumn: "email", TargetField: "email", Transform: sheet.TransformLowercase},
	}, importjob.Options{AutoCreateMissing: true})
	require.NoError(t, err)
	require.Equal(t, importjob.StatusDraft, got.Status, "a new mapping invalidates the previous validation")
	require.Nil(t, got.ValidationSummary)
	require.True(t, got.Options.AutoCreateMissing)

	// Static values do not need a source column.
	_, err = svc.SetMapping(ctx, dto.ID, []sheet.ColumnMapping{
		{SourceColumn: "email", TargetField: "email"},
		{TargetField: "firstName", StaticValue: "Imported"},
	}, importjob.Options{})
	require.NoError(t, err)
}

func TestImportService_FailedRunExportsErrorRows(t *testing.T) {
	t.Parallel()

	ctx := tenantCtx()
	mem := newMemRepos()
	svc := newTestImportService(mem)

	dto, err := svc.Create(ctx, sheet.EntityTypeUsers, importjob.Options{})
	require.NoError(t, err)
	_, err = svc.Upload(ctx, dto.ID, []byte("email,firstName\n,NoEmail\n"))
	require.NoError(t, err)

	summary, err := svc.Validate(ctx, dto.ID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.WouldFail)

	result, err := svc.Execute(ctx, dto.ID, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 0, result.Created)

	got, err := svc.Job(ctx, dto.ID)
	require.NoError(t, err)
	require.Equal(t, importjob.StatusFailed, got.Status, "nothing imported and at least one failure")

	csv, err := svc.ErrorRowsCSV(ctx, dto.ID)
	require.NoError(t, err)
	require.Contains(t, string(csv), "row,primaryKey,errorCode,message")
	require.Contains(t, string(csv), importjob.CodeRequiredFieldMissing)
}

func TestImportService_PublishesLifecycleEvents(t *testing.T) {
	t.Parallel()

	ctx := tenantCtx()
	mem := newMemRepos()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	publisher := eventbus.NewEventPublisher(logger)
	svc := NewImportService(
		mem.bundle(),
		jobstore.New(jobstore.Options{}),
		publisher,
		configuration.ImportOptions{MaxUploadRows: 100, BatchSize: 10, JobTTL: time.Hour, TenantJobCap: 10},
	)

	var createdEvents, validatedEvents, executedEvents int
	publisher.Subscribe(func(importjob.CreatedEvent) { createdEvents++ })
	publisher.Subscribe(func(importjob.ValidatedEvent) { validatedEvents++ })
	publisher.Subscribe(func(importjob.ExecutedEvent) { executedEvents++ })

	dto, err := svc.Create(ctx, sheet.EntityTypeUsers, importjob.Options{})
	require.NoError(t, err)
	_, err = svc.Upload(ctx, dto.ID, []byte("email\na@x.com\n"))
	require.NoError(t, err)
	_, err = svc.Validate(ctx, dto.ID)
	require.NoError(t, err)
	_, err = svc.Execute(ctx, dto.ID, nil)
	require.NoError(t, err)

	require.Equal(t, 1, createdEvents)
	require.Equal(t, 1, validatedEvents)
	require.Equal(t, 1, executedEvents)
}

func TestImportService_UnknownEntityType(t *testing.T) {
	t.Parallel()

	ctx := tenantCtx()
	svc := newTestImportService(newMemRepos())

	_, err := svc.Create(ctx, sheet.EntityType("ducks"), importjob.Options{})
	require.ErrorIs(t, err, sheet.ErrUnknownEntityType)
}

func TestImportService_JobNotFound(t *testing.T) {
	t.Parallel()

	ctx := tenantCtx()
	svc := newTestImportService(newMemRepos())

	_, err := svc.Job(ctx, "01J00000000000000000000000")
	require.ErrorIs(t, err, jobstore.ErrNotFound)
}
