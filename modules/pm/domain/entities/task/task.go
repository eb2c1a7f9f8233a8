package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task belongs to a project; the (project, title) pair is its natural key,
// title matched case-insensitively. Subtasks point at their parent task.
type Task struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	ProjectID    uuid.UUID
	SectionID    *uuid.UUID
	ParentTaskID *uuid.UUID
	AssigneeID   *uuid.UUID
	Title        string
	Notes        string
	DueAt        *time.Time
	Completed    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	GetByProjectAndTitle(ctx context.Context, projectID uuid.UUID, title string) (*Task, error)
	GetAll(ctx context.Context) ([]*Task, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*Task, error)
	Create(ctx context.Context, t *Task) (*Task, error)
	Update(ctx context.Context, t *Task) (*Task, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
