package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/worklane/worklane/modules/integrations/asana"
	integrationservices "github.com/worklane/worklane/modules/integrations/services"
	"github.com/worklane/worklane/pkg/configuration"
	"github.com/worklane/worklane/pkg/jobqueue"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue and inspect background jobs",
	}
	cmd.AddCommand(newJobsEnqueueAsanaCmd(), newJobsStatusCmd(), newJobsCancelCmd())
	return cmd
}

func newJobsEnqueueAsanaCmd() *cobra.Command {
	var tenant string
	var workspace string
	var projects []string
	var autoCreateClients bool
	var runID string

	cmd := &cobra.Command{
		Use:   "enqueue-asana",
		Short: "Enqueue an Asana import job and print its id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			return withQueue(cmd.Context(), func(ctx context.Context, q *jobqueue.Queue) error {
				id, err := q.Enqueue(ctx, jobqueue.NewJob{
					TenantID: tenantID,
					Kind:     integrationservices.KindAsanaImport,
					Payload: integrationservices.AsanaImportPayload{
						AsanaWorkspaceGID: workspace,
						ProjectGIDs:       projects,
						Options:           asana.PipelineOptions{AutoCreateClients: autoCreateClients},
						AsanaRunID:        runID,
					},
				})
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant UUID (required)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "Asana workspace GID (required)")
	cmd.Flags().StringArrayVar(&projects, "project", nil, "Asana project GID, repeatable (required)")
	cmd.Flags().BoolVar(&autoCreateClients, "auto-create-clients", false, "Create clients from Asana team names")
	cmd.Flags().StringVar(&runID, "run-id", "", "Correlation id echoed into the job result")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newJobsStatusCmd() *cobra.Command {
	var tenant string
	var id string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the status of a background job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, jobID, err := parseJobRef(tenant, id)
			if err != nil {
				return err
			}
			return withQueue(cmd.Context(), func(ctx context.Context, q *jobqueue.Queue) error {
				job, err := q.Get(ctx, tenantID, jobID)
				if err != nil {
					return err
				}
				fmt.Printf("id=%s kind=%s status=%s attempts=%d\n", job.ID, job.Kind, job.Status, job.Attempts)
				if len(job.Progress) > 0 {
					fmt.Printf("progress=%s\n", job.Progress)
				}
				if len(job.Result) > 0 {
					fmt.Printf("result=%s\n", job.Result)
				}
				if job.LastError != "" {
					fmt.Printf("last_error=%s\n", job.LastError)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant UUID (required)")
	cmd.Flags().StringVar(&id, "id", "", "Job UUID (required)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newJobsCancelCmd() *cobra.Command {
	var tenant string
	var id string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Request cancellation of a pending or running job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, jobID, err := parseJobRef(tenant, id)
			if err != nil {
				return err
			}
			return withQueue(cmd.Context(), func(ctx context.Context, q *jobqueue.Queue) error {
				if err := q.RequestCancel(ctx, tenantID, jobID); err != nil {
					return err
				}
				fmt.Println("cancel requested")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant UUID (required)")
	cmd.Flags().StringVar(&id, "id", "", "Job UUID (required)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func parseJobRef(tenant, id string) (uuid.UUID, uuid.UUID, error) {
	tenantID, err := uuid.Parse(tenant)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --tenant: %w", err)
	}
	jobID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --id: %w", err)
	}
	return tenantID, jobID, nil
}

func withQueue(ctx context.Context, fn func(context.Context, *jobqueue.Queue) error) error {
	pool, err := pgxpool.New(ctx, configuration.Use().Database.Opts)
	if err != nil {
		return err
	}
	defer pool.Close()

	q, err := jobqueue.NewQueue(pool)
	if err != nil {
		return err
	}
	return fn(ctx, q)
}
