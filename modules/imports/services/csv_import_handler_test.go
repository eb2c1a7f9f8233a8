package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/worklane/worklane/modules/imports/domain/importjob"
	"github.com/worklane/worklane/modules/imports/domain/sheet"
	"github.com/worklane/worklane/pkg/jobqueue"
)

func TestCSVImportHandler_RunsValidatedJob(t *testing.T) {
	t.Parallel()

	ctx := tenantCtx()
	mem := newMemRepos()
	svc := newTestImportService(mem)

	dto, err := svc.Create(ctx, sheet.EntityTypeClients, importjob.Options{})
	require.NoError(t, err)
	_, err = svc.Upload(ctx, dto.ID, []byte("Company Name\nAcme\nGlobex\n"))
	require.NoError(t, err)
	_, err = svc.SetMapping(ctx, dto.ID, []sheet.ColumnMapping{
		{SourceColumn: "Company Name", TargetField: "companyName"},
	}, importjob.Options{})
	require.NoError(t, err)
	_, err = svc.Validate(ctx, dto.ID)
	require.NoError(t, err)

	handler := NewCSVImportHandler(svc)

	payload, err := json.Marshal(CSVImportPayload{ImportJobID: dto.ID})
	require.NoError(t, err)

	err = handler.Handle(ctx, &jobqueue.Context{Kind: KindCSVImport, Payload: payload})
	require.NoError(t, err)

	done, err := svc.Job(ctx, dto.ID)
	require.NoError(t, err)
	require.Equal(t, importjob.StatusCompleted, done.Status)
	require.NotNil(t, done.ImportSummary)
	require.Equal(t, 2, done.ImportSummary.Created)
	require.Len(t, mem.clients.items, 2)
}

func TestCSVImportHandler_BadPayloadIsTerminal(t *testing.T) {
	t.Parallel()

	svc := newTestImportService(newMemRepos())
	handler := NewCSVImportHandler(svc)

	err := handler.Handle(tenantCtx(), &jobqueue.Context{Payload: json.RawMessage(`not json`)})
	require.Error(t, err)
	require.True(t, jobqueue.IsTerminal(err))

	err = handler.Handle(tenantCtx(), &jobqueue.Context{Payload: json.RawMessage(`{}`)})
	require.Error(t, err)
	require.True(t, jobqueue.IsTerminal(err))
}

func TestCSVImportHandler_WrongStateIsTerminal(t *testing.T) {
	t.Parallel()

	ctx := tenantCtx()
	svc := newTestImportService(newMemRepos())

	dto, err := svc.Create(ctx, sheet.EntityTypeClients, importjob.Options{})
	require.NoError(t, err)

	handler := NewCSVImportHandler(svc)
	payload, err := json.Marshal(CSVImportPayload{ImportJobID: dto.ID})
	require.NoError(t, err)

	err = handler.Handle(ctx, &jobqueue.Context{Payload: payload})
	require.Error(t, err)
	require.True(t, jobqueue.IsTerminal(err), "a never-validated job cannot succeed on retry")

	err = handler.Handle(ctx, &jobqueue.Context{Payload: mustMarshal(t, CSVImportPayload{ImportJobID: "01JUNKJUNKJUNKJUNKJUNKJUNK"})})
	require.Error(t, err)
	require.True(t, jobqueue.IsTerminal(err), "a missing job cannot succeed on retry")
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
