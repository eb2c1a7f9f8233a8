package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/core/domain/entities/tenant"
	"github.com/worklane/worklane/modules/core/infrastructure/persistence/models"
	"github.com/worklane/worklane/pkg/composables"
)

var (
	ErrTenantNotFound = fmt.Errorf("tenant not found")
)

const (
	tenantFindQuery = `SELECT id, name, domain, is_active, created_at, updated_at FROM tenants`
)

type TenantRepository struct{}

func NewTenantRepository() tenant.Repository {
	return &TenantRepository{}
}

func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	query := tenantFindQuery + " WHERE id = $1"
	tenants, err := r.queryTenants(ctx, query, id.String())
	if err != nil {
		return nil, err
	}

	if len(tenants) == 0 {
		return nil, ErrTenantNotFound
	}

	return tenants[0], nil
}

func (r *TenantRepository) GetByDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	query := tenantFindQuery + " WHERE domain = $1"
	tenants, err := r.queryTenants(ctx, query, strings.ToLower(strings.TrimSpace(domain)))
	if err != nil {
		return nil, err
	}

	if len(tenants) == 0 {
		return nil, ErrTenantNotFound
	}

	return tenants[0], nil
}

func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	query := `
		INSERT INTO tenants (id, name, domain, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	dbRow := toDBTenant(t)
	dbRow.Domain.String = strings.ToLower(strings.TrimSpace(dbRow.Domain.String))
	if dbRow.CreatedAt.IsZero() {
		dbRow.CreatedAt = time.Now()
	}
	if dbRow.UpdatedAt.IsZero() {
		dbRow.UpdatedAt = dbRow.CreatedAt
	}

	var idStr string
	if err := tx.QueryRow(
		ctx,
		query,
		dbRow.ID,
		dbRow.Name,
		dbRow.Domain,
		dbRow.IsActive,
		dbRow.CreatedAt,
		dbRow.UpdatedAt,
	).Scan(&idStr); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	query := `
		UPDATE tenants
		SET name = $1, domain = $2, is_active = $3, updated_at = $4
		WHERE id = $5
		RETURNING id
	`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	dbRow := toDBTenant(t)
	dbRow.Domain.String = strings.ToLower(strings.TrimSpace(dbRow.Domain.String))

	var idStr string
	if err := tx.QueryRow(
		ctx,
		query,
		dbRow.Name,
		dbRow.Domain,
		dbRow.IsActive,
		time.Now(),
		dbRow.ID,
	).Scan(&idStr); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func (r *TenantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM tenants WHERE id = $1`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, query, id.String())
	return err
}

func (r *TenantRepository) List(ctx context.Context) ([]*tenant.Tenant, error) {
	return r.queryTenants(ctx, tenantFindQuery)
}

func (r *TenantRepository) queryTenants(ctx context.Context, query string, args ...interface{}) ([]*tenant.Tenant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		var row models.Tenant
		if err := rows.Scan(
			&row.ID,
			&row.Name,
			&row.Domain,
			&row.IsActive,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan tenant row")
		}
		t, err := toDomainTenant(&row)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map tenant row")
		}
		tenants = append(tenants, t)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	return tenants, nil
}
