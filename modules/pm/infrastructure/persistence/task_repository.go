package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/pm/domain/entities/task"
	"github.com/worklane/worklane/modules/pm/infrastructure/persistence/models"
	"github.com/worklane/worklane/pkg/composables"
)

var ErrTaskNotFound = fmt.Errorf("task not found")

const taskFindQuery = `
	SELECT id, tenant_id, project_id, section_id, parent_task_id, assignee_id, title, notes, due_at, completed, created_at, updated_at
	FROM tasks`

type TaskRepository struct{}

func NewTaskRepository() task.Repository {
	return &TaskRepository{}
}

func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := r.queryTasks(ctx, taskFindQuery+" WHERE tenant_id = $1 AND id = $2", tenantID.String(), id.String())
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrTaskNotFound
	}
	return tasks[0], nil
}

func (r *TaskRepository) GetByProjectAndTitle(ctx context.Context, projectID uuid.UUID, title string) (*task.Task, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := r.queryTasks(
		ctx,
		taskFindQuery+" WHERE tenant_id = $1 AND project_id = $2 AND LOWER(title) = LOWER($3)",
		tenantID.String(), projectID.String(), title,
	)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrTaskNotFound
	}
	return tasks[0], nil
}

func (r *TaskRepository) GetAll(ctx context.Context) ([]*task.Task, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryTasks(ctx, taskFindQuery+" WHERE tenant_id = $1 ORDER BY created_at", tenantID.String())
}

func (r *TaskRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*task.Task, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryTasks(
		ctx,
		taskFindQuery+" WHERE tenant_id = $1 AND project_id = $2 ORDER BY created_at",
		tenantID.String(), projectID.String(),
	)
}

func (r *TaskRepository) Create(ctx context.Context, t *task.Task) (*task.Task, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.TenantID == uuid.Nil {
		t.TenantID = tenantID
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	dbRow := toDBTask(t)
	query := `
		INSERT INTO tasks (id, tenant_id, project_id, section_id, parent_task_id, assignee_id, title, notes, due_at, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	var idStr string
	if err := tx.QueryRow(
		ctx,
		query,
		dbRow.ID,
		dbRow.TenantID,
		dbRow.ProjectID,
		dbRow.SectionID,
		dbRow.ParentTaskID,
		dbRow.AssigneeID,
		dbRow.Title,
		dbRow.Notes,
		dbRow.DueAt,
		dbRow.Completed,
		dbRow.CreatedAt,
		dbRow.UpdatedAt,
	).Scan(&idStr); err != nil {
		return nil, errors.Wrap(err, "failed to insert task")
	}
	return r.GetByID(ctx, uuid.MustParse(idStr))
}

func (r *TaskRepository) Update(ctx context.Context, t *task.Task) (*task.Task, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	t.UpdatedAt = time.Now()
	dbRow := toDBTask(t)
	query := `
		UPDATE tasks
		SET section_id = $1, parent_task_id = $2, assignee_id = $3, title = $4, notes = $5, due_at = $6, completed = $7, updated_at = $8
		WHERE tenant_id = $9 AND id = $10
	`
	tag, err := tx.Exec(
		ctx,
		query,
		dbRow.SectionID,
		dbRow.ParentTaskID,
		dbRow.AssigneeID,
		dbRow.Title,
		dbRow.Notes,
		dbRow.DueAt,
		dbRow.Completed,
		dbRow.UpdatedAt,
		tenantID.String(),
		dbRow.ID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update task")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrTaskNotFound
	}
	return r.GetByID(ctx, t.ID)
}

func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM tasks WHERE tenant_id = $1 AND id = $2`, tenantID.String(), id.String())
	return err
}

func (r *TaskRepository) queryTasks(ctx context.Context, query string, args ...interface{}) ([]*task.Task, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		var row models.Task
		if err := rows.Scan(
			&row.ID,
			&row.TenantID,
			&row.ProjectID,
			&row.SectionID,
			&row.ParentTaskID,
			&row.AssigneeID,
			&row.Title,
			&row.Notes,
			&row.DueAt,
			&row.Completed,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan task row")
		}
		t, err := toDomainTask(&row)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map task row")
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return tasks, nil
}
