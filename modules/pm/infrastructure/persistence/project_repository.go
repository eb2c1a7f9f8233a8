package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/pm/domain/entities/project"
	"github.com/worklane/worklane/modules/pm/infrastructure/persistence/models"
	"github.com/worklane/worklane/pkg/composables"
)

var ErrProjectNotFound = fmt.Errorf("project not found")

const projectFindQuery = `
	SELECT id, tenant_id, client_id, name, description, status, budget, created_at, updated_at
	FROM projects`

type ProjectRepository struct{}

func NewProjectRepository() project.Repository {
	return &ProjectRepository{}
}

func (r *ProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*project.Project, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := r.queryProjects(ctx, projectFindQuery+" WHERE tenant_id = $1 AND id = $2", tenantID.String(), id.String())
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, ErrProjectNotFound
	}
	return projects[0], nil
}

func (r *ProjectRepository) GetByName(ctx context.Context, name string) (*project.Project, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := r.queryProjects(
		ctx,
		projectFindQuery+" WHERE tenant_id = $1 AND LOWER(name) = LOWER($2)",
		tenantID.String(), name,
	)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, ErrProjectNotFound
	}
	return projects[0], nil
}

func (r *ProjectRepository) GetAll(ctx context.Context) ([]*project.Project, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryProjects(ctx, projectFindQuery+" WHERE tenant_id = $1 ORDER BY name", tenantID.String())
}

func (r *ProjectRepository) Create(ctx context.Context, p *project.Project) (*project.Project, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.TenantID == uuid.Nil {
		p.TenantID = tenantID
	}
	if p.Status == "" {
		p.Status = project.StatusActive
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	dbRow := toDBProject(p)
	query := `
		INSERT INTO projects (id, tenant_id, client_id, name, description, status, budget, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	var idStr string
	if err := tx.QueryRow(
		ctx,
		query,
		dbRow.ID,
		dbRow.TenantID,
		dbRow.ClientID,
		dbRow.Name,
		dbRow.Description,
		dbRow.Status,
		dbRow.Budget,
		dbRow.CreatedAt,
		dbRow.UpdatedAt,
	).Scan(&idStr); err != nil {
		return nil, errors.Wrap(err, "failed to insert project")
	}
	return r.GetByID(ctx, uuid.MustParse(idStr))
}

func (r *ProjectRepository) Update(ctx context.Context, p *project.Project) (*project.Project, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Now()
	dbRow := toDBProject(p)
	query := `
		UPDATE projects
		SET client_id = $1, name = $2, description = $3, status = $4, budget = $5, updated_at = $6
		WHERE tenant_id = $7 AND id = $8
	`
	tag, err := tx.Exec(
		ctx,
		query,
		dbRow.ClientID,
		dbRow.Name,
		dbRow.Description,
		dbRow.Status,
		dbRow.Budget,
		dbRow.UpdatedAt,
		tenantID.String(),
		dbRow.ID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update project")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrProjectNotFound
	}
	return r.GetByID(ctx, p.ID)
}

func (r *ProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM projects WHERE tenant_id = $1 AND id = $2`, tenantID.String(), id.String())
	return err
}

func (r *ProjectRepository) queryProjects(ctx context.Context, query string, args ...interface{}) ([]*project.Project, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var projects []*project.Project
	for rows.Next() {
		var row models.Project
		if err := rows.Scan(
			&row.ID,
			&row.TenantID,
			&row.ClientID,
			&row.Name,
			&row.Description,
			&row.Status,
			&row.Budget,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan project row")
		}
		p, err := toDomainProject(&row)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map project row")
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return projects, nil
}
