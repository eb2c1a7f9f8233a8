package services

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/integrations/asana"
	"github.com/worklane/worklane/pkg/composables"
	"github.com/worklane/worklane/pkg/constants"
	"github.com/worklane/worklane/pkg/jobqueue"
)

// KindAsanaImport is the queue kind the worker dispatches to the Asana sync
// pipeline.
const KindAsanaImport = "asana_import"

// AsanaImportPayload is what callers enqueue to sync a workspace slice.
// TenantID duplicates the queue row's tenant for older enqueuers and must
// agree with it when set; TargetWorkspaceID is carried for the same callers
// but writes are scoped by the tenant alone.
type AsanaImportPayload struct {
	TenantID          string                `json:"tenantId,omitempty"`
	AsanaWorkspaceGID string                `json:"asanaWorkspaceGid" validate:"required"`
	ProjectGIDs       []string              `json:"projectGids" validate:"required,min=1,dive,required"`
	TargetWorkspaceID string                `json:"targetWorkspaceId,omitempty"`
	Options           asana.PipelineOptions `json:"options"`
	AsanaRunID        string                `json:"asanaRunId,omitempty"`
}

// AsanaImportResult lands in the queue row's result column; AsanaRunID lets
// pollers correlate it with the run they started.
type AsanaImportResult struct {
	AsanaRunID string            `json:"asanaRunId,omitempty"`
	Summary    *asana.RunSummary `json:"summary"`
}

// NewAsanaImportHandler bridges the job queue to the Asana import pipeline.
// Phase checkpoints are forwarded as queue progress (which doubles as the
// claim heartbeat, so a long sync is never re-claimed as stale), the run
// summary lands in the queue row's result, and a user cancel stops the run
// between entity batches. Transient Asana failures surface as retryable
// errors; the entity map makes the re-run safe on partial state.
func NewAsanaImportHandler(api asana.API, repos asana.Repos) jobqueue.HandlerFunc {
	return func(ctx context.Context, job *jobqueue.Context) error {
		var payload AsanaImportPayload
		if err := job.UnmarshalPayload(&payload); err != nil {
			return jobqueue.Terminal(errors.Wrap(err, "asana import payload"))
		}
		if err := constants.Validate.Struct(payload); err != nil {
			return jobqueue.Terminal(errors.Wrap(err, "asana import payload"))
		}
		if payload.TenantID != "" {
			tid, err := uuid.Parse(payload.TenantID)
			if err != nil {
				return jobqueue.Terminal(errors.Wrap(err, "asana import payload tenantId"))
			}
			if tid != job.TenantID {
				return jobqueue.Terminal(errors.New("asana import payload tenantId does not match job tenant"))
			}
		}

		pipeline, err := asana.NewPipeline(asana.PipelineConfig{
			API:     api,
			Repos:   repos,
			Options: payload.Options,
			OnPhase: func(phase string) {
				if err := job.UpdateProgress(ctx, 0, 0, phase); err != nil {
					composables.UseLogger(ctx).WithError(err).Warn("asana import: progress write failed")
				}
			},
			IsCancelled: func() bool {
				return job.IsCancelled(ctx)
			},
		})
		if err != nil {
			return jobqueue.Terminal(err)
		}

		summary, err := pipeline.Run(ctx, asana.RunInput{
			WorkspaceGID: payload.AsanaWorkspaceGID,
			ProjectGIDs:  payload.ProjectGIDs,
		})
		if err != nil {
			if errors.Is(err, asana.ErrCancelled) {
				return jobqueue.Terminal(err)
			}
			var apiErr *asana.APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable() {
				return jobqueue.Terminal(err)
			}
			return err
		}

		result := AsanaImportResult{AsanaRunID: payload.AsanaRunID, Summary: summary}
		if err := job.SetResult(ctx, result); err != nil {
			composables.UseLogger(ctx).WithError(err).Warn("asana import: result write failed")
		}
		return nil
	}
}
