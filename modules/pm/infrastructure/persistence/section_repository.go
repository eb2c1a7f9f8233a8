package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/pm/domain/entities/section"
	"github.com/worklane/worklane/modules/pm/infrastructure/persistence/models"
	"github.com/worklane/worklane/pkg/composables"
)

var ErrSectionNotFound = fmt.Errorf("section not found")

const sectionFindQuery = `
	SELECT id, tenant_id, project_id, name, position, created_at, updated_at
	FROM sections`

type SectionRepository struct{}

func NewSectionRepository() section.Repository {
	return &SectionRepository{}
}

func (r *SectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*section.Section, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	sections, err := r.querySections(ctx, sectionFindQuery+" WHERE tenant_id = $1 AND id = $2", tenantID.String(), id.String())
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, ErrSectionNotFound
	}
	return sections[0], nil
}

func (r *SectionRepository) GetByProjectAndName(ctx context.Context, projectID uuid.UUID, name string) (*section.Section, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	sections, err := r.querySections(
		ctx,
		sectionFindQuery+" WHERE tenant_id = $1 AND project_id = $2 AND LOWER(name) = LOWER($3)",
		tenantID.String(), projectID.String(), name,
	)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, ErrSectionNotFound
	}
	return sections[0], nil
}

func (r *SectionRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*section.Section, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.querySections(
		ctx,
		sectionFindQuery+" WHERE tenant_id = $1 AND project_id = $2 ORDER BY position",
		tenantID.String(), projectID.String(),
	)
}

func (r *SectionRepository) Create(ctx context.Context, s *section.Section) (*section.Section, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.TenantID == uuid.Nil {
		s.TenantID = tenantID
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	dbRow := toDBSection(s)
	query := `
		INSERT INTO sections (id, tenant_id, project_id, name, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var idStr string
	if err := tx.QueryRow(
		ctx,
		query,
		dbRow.ID,
		dbRow.TenantID,
		dbRow.ProjectID,
		dbRow.Name,
		dbRow.Position,
		dbRow.CreatedAt,
		dbRow.UpdatedAt,
	).Scan(&idStr); err != nil {
		return nil, errors.Wrap(err, "failed to insert section")
	}
	return r.GetByID(ctx, uuid.MustParse(idStr))
}

func (r *SectionRepository) Update(ctx context.Context, s *section.Section) (*section.Section, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	s.UpdatedAt = time.Now()
	dbRow := toDBSection(s)
	query := `
		UPDATE sections
		SET name = $1, position = $2, updated_at = $3
		WHERE tenant_id = $4 AND id = $5
	`
	tag, err := tx.Exec(ctx, query, dbRow.Name, dbRow.Position, dbRow.UpdatedAt, tenantID.String(), dbRow.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update section")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrSectionNotFound
	}
	return r.GetByID(ctx, s.ID)
}

func (r *SectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM sections WHERE tenant_id = $1 AND id = $2`, tenantID.String(), id.String())
	return err
}

func (r *SectionRepository) querySections(ctx context.Context, query string, args ...interface{}) ([]*section.Section, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var sections []*section.Section
	for rows.Next() {
		var row models.Section
		if err := rows.Scan(
			&row.ID,
			&row.TenantID,
			&row.ProjectID,
			&row.Name,
			&row.Position,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan section row")
		}
		sections = append(sections, toDomainSection(&row))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return sections, nil
}
