package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/pm/domain/entities/timeentry"
	"github.com/worklane/worklane/modules/pm/infrastructure/persistence/models"
	"github.com/worklane/worklane/pkg/composables"
	"github.com/worklane/worklane/pkg/repo"
)

var ErrTimeEntryNotFound = fmt.Errorf("time entry not found")

const timeEntryFindQuery = `
	SELECT id, tenant_id, user_id, project_id, task_id, started_at, ended_at, hours, notes, billable, created_at
	FROM time_entries`

type TimeEntryRepository struct{}

func NewTimeEntryRepository() timeentry.Repository {
	return &TimeEntryRepository{}
}

func (r *TimeEntryRepository) GetByID(ctx context.Context, id uuid.UUID) (*timeentry.TimeEntry, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := r.queryTimeEntries(ctx, timeEntryFindQuery+" WHERE tenant_id = $1 AND id = $2", tenantID.String(), id.String())
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrTimeEntryNotFound
	}
	return entries[0], nil
}

func (r *TimeEntryRepository) GetPaginated(ctx context.Context, params *timeentry.FindParams) ([]*timeentry.TimeEntry, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	query := timeEntryFindQuery + " WHERE tenant_id = $1"
	args := []interface{}{tenantID.String()}
	if params != nil && params.UserID != uuid.Nil {
		query += " AND user_id = $2"
		args = append(args, params.UserID.String())
	}
	query += " ORDER BY started_at DESC"
	if params != nil {
		query += " " + repo.FormatLimitOffset(params.Limit, params.Offset)
	}
	return r.queryTimeEntries(ctx, query, args...)
}

func (r *TimeEntryRepository) Create(ctx context.Context, e *timeentry.TimeEntry) (*timeentry.TimeEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.TenantID == uuid.Nil {
		e.TenantID = tenantID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	dbRow := toDBTimeEntry(e)
	query := `
		INSERT INTO time_entries (id, tenant_id, user_id, project_id, task_id, started_at, ended_at, hours, notes, billable, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	var idStr string
	if err := tx.QueryRow(
		ctx,
		query,
		dbRow.ID,
		dbRow.TenantID,
		dbRow.UserID,
		dbRow.ProjectID,
		dbRow.TaskID,
		dbRow.StartedAt,
		dbRow.EndedAt,
		dbRow.Hours,
		dbRow.Notes,
		dbRow.Billable,
		dbRow.CreatedAt,
	).Scan(&idStr); err != nil {
		return nil, errors.Wrap(err, "failed to insert time entry")
	}
	return r.GetByID(ctx, uuid.MustParse(idStr))
}

func (r *TimeEntryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM time_entries WHERE tenant_id = $1 AND id = $2`, tenantID.String(), id.String())
	return err
}

func (r *TimeEntryRepository) queryTimeEntries(ctx context.Context, query string, args ...interface{}) ([]*timeentry.TimeEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var entries []*timeentry.TimeEntry
	for rows.Next() {
		var row models.TimeEntry
		if err := rows.Scan(
			&row.ID,
			&row.TenantID,
			&row.UserID,
			&row.ProjectID,
			&row.TaskID,
			&row.StartedAt,
			&row.EndedAt,
			&row.Hours,
			&row.Notes,
			&row.Billable,
			&row.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan time entry row")
		}
		e, err := toDomainTimeEntry(&row)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map time entry row")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return entries, nil
}
