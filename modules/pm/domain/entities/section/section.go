package section

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Section groups tasks within a project, ordered by Position.
type Section struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	ProjectID uuid.UUID
	Name      string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Section, error)
	GetByProjectAndName(ctx context.Context, projectID uuid.UUID, name string) (*Section, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*Section, error)
	Create(ctx context.Context, s *Section) (*Section, error)
	Update(ctx context.Context, s *Section) (*Section, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
