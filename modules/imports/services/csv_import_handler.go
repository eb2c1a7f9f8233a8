package services

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/worklane/worklane/modules/imports/infrastructure/jobstore"
	"github.com/worklane/worklane/pkg/composables"
	"github.com/worklane/worklane/pkg/constants"
	"github.com/worklane/worklane/pkg/jobqueue"
)

// KindCSVImport is the queue kind the worker dispatches to the import
// wizard's execute step.
const KindCSVImport = "csv_import"

// CSVImportPayload is what callers enqueue to run a validated import job in
// the background.
type CSVImportPayload struct {
	ImportJobID string `json:"importJobId" validate:"required"`
}

// NewCSVImportHandler bridges the job queue to ImportService.Execute.
// Queue progress mirrors the wizard job's progress, the final summary lands
// in the queue row's result, and a user cancel stops the run between
// batches.
func NewCSVImportHandler(svc *ImportService) jobqueue.HandlerFunc {
	return func(ctx context.Context, job *jobqueue.Context) error {
		var payload CSVImportPayload
		if err := job.UnmarshalPayload(&payload); err != nil {
			return jobqueue.Terminal(errors.Wrap(err, "csv import payload"))
		}
		if err := constants.Validate.Struct(payload); err != nil {
			return jobqueue.Terminal(errors.Wrap(err, "csv import payload"))
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		summary, err := svc.Execute(runCtx, payload.ImportJobID, func(processed, total int) {
			if job.IsCancelled(ctx) {
				cancel()
				return
			}
			if err := job.UpdateProgress(ctx, processed, total, "importing"); err != nil {
				composables.UseLogger(ctx).WithError(err).Warn("csv import: progress write failed")
			}
		})
		if err != nil {
			if ctx.Err() == nil && runCtx.Err() != nil {
				return jobqueue.Terminal(errors.New("cancelled by user"))
			}
			// A job in the wrong state will still be in the wrong state on
			// retry.
			if errors.Is(err, jobstore.ErrNotFound) ||
				errors.Is(err, ErrNoUpload) ||
				errors.Is(err, ErrNoMapping) ||
				errors.Is(err, ErrNotValidated) ||
				errors.Is(err, ErrJobRunning) {
				return jobqueue.Terminal(err)
			}
			return err
		}

		if err := job.SetResult(ctx, summary); err != nil {
			composables.UseLogger(ctx).WithError(err).Warn("csv import: result write failed")
		}
		return nil
	}
}
