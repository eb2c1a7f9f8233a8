package persistence

import (
	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/core/domain/entities/tenant"
	"github.com/worklane/worklane/modules/core/domain/entities/user"
	"github.com/worklane/worklane/modules/core/infrastructure/persistence/models"
	"github.com/worklane/worklane/pkg/mapping"
)

func toDBTenant(t *tenant.Tenant) *models.Tenant {
	return &models.Tenant{
		ID:        t.ID().String(),
		Name:      t.Name(),
		Domain:    mapping.ValueToSQLNullString(t.Domain()),
		IsActive:  t.IsActive(),
		CreatedAt: t.CreatedAt(),
		UpdatedAt: t.UpdatedAt(),
	}
}

func toDomainTenant(row *models.Tenant) (*tenant.Tenant, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid tenant id")
	}
	return tenant.New(
		row.Name,
		tenant.WithID(id),
		tenant.WithDomain(row.Domain.String),
		tenant.WithIsActive(row.IsActive),
		tenant.WithCreatedAt(row.CreatedAt),
		tenant.WithUpdatedAt(row.UpdatedAt),
	), nil
}

func toDBUser(u *user.User) *models.User {
	return &models.User{
		ID:        u.ID().String(),
		TenantID:  u.TenantID().String(),
		Email:     u.Email(),
		FirstName: u.FirstName(),
		LastName:  u.LastName(),
		Role:      string(u.Role()),
		CreatedAt: u.CreatedAt(),
		UpdatedAt: u.UpdatedAt(),
	}
}

func toDomainUser(row *models.User) (*user.User, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid user id")
	}
	tenantID, err := uuid.Parse(row.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid user tenant id")
	}
	return user.New(
		row.Email,
		user.WithID(id),
		user.WithTenantID(tenantID),
		user.WithName(row.FirstName, row.LastName),
		user.WithRole(user.Role(row.Role)),
		user.WithCreatedAt(row.CreatedAt),
		user.WithUpdatedAt(row.UpdatedAt),
	), nil
}
