package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/integrations/domain/entitymap"
	"github.com/worklane/worklane/modules/integrations/infrastructure/persistence/models"
	"github.com/worklane/worklane/pkg/composables"
)

const entityMapFindQuery = `
	SELECT tenant_id, provider, entity_type, provider_entity_id, local_entity_id, metadata, created_at, updated_at
	FROM integration_entity_map`

type EntityMapRepository struct{}

func NewEntityMapRepository() entitymap.Repository {
	return &EntityMapRepository{}
}

func (r *EntityMapRepository) Get(ctx context.Context, provider, entityType, providerEntityID string) (*entitymap.Mapping, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	mappings, err := r.queryMappings(
		ctx,
		entityMapFindQuery+" WHERE tenant_id = $1 AND provider = $2 AND entity_type = $3 AND provider_entity_id = $4",
		tenantID.String(), provider, entityType, providerEntityID,
	)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return nil, entitymap.ErrNotFound
	}
	return mappings[0], nil
}

func (r *EntityMapRepository) Upsert(ctx context.Context, m *entitymap.Mapping) (*entitymap.Mapping, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	if m.TenantID == uuid.Nil {
		m.TenantID = tenantID
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	dbRow, err := toDBEntityMap(m)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO integration_entity_map (tenant_id, provider, entity_type, provider_entity_id, local_entity_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, provider, entity_type, provider_entity_id)
		DO UPDATE SET local_entity_id = EXCLUDED.local_entity_id, metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at
	`
	if _, err := tx.Exec(
		ctx,
		query,
		dbRow.TenantID,
		dbRow.Provider,
		dbRow.EntityType,
		dbRow.ProviderEntityID,
		dbRow.LocalEntityID,
		dbRow.Metadata,
		dbRow.CreatedAt,
		dbRow.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert integration mapping")
	}
	return r.Get(ctx, m.Provider, m.EntityType, m.ProviderEntityID)
}

func (r *EntityMapRepository) Delete(ctx context.Context, provider, entityType, providerEntityID string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		ctx,
		`DELETE FROM integration_entity_map WHERE tenant_id = $1 AND provider = $2 AND entity_type = $3 AND provider_entity_id = $4`,
		tenantID.String(), provider, entityType, providerEntityID,
	)
	return err
}

func (r *EntityMapRepository) queryMappings(ctx context.Context, query string, args ...interface{}) ([]*entitymap.Mapping, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query integration mappings")
	}
	defer rows.Close()

	var mappings []*entitymap.Mapping
	for rows.Next() {
		var dbRow models.IntegrationEntityMap
		if err := rows.Scan(
			&dbRow.TenantID,
			&dbRow.Provider,
			&dbRow.EntityType,
			&dbRow.ProviderEntityID,
			&dbRow.LocalEntityID,
			&dbRow.Metadata,
			&dbRow.CreatedAt,
			&dbRow.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan integration mapping")
		}
		m, err := toDomainEntityMap(&dbRow)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read integration mappings")
	}
	return mappings, nil
}

func toDBEntityMap(m *entitymap.Mapping) (*models.IntegrationEntityMap, error) {
	var metadata []byte
	if len(m.Metadata) > 0 {
		raw, err := json.Marshal(m.Metadata)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal mapping metadata")
		}
		metadata = raw
	}
	return &models.IntegrationEntityMap{
		TenantID:         m.TenantID.String(),
		Provider:         m.Provider,
		EntityType:       m.EntityType,
		ProviderEntityID: m.ProviderEntityID,
		LocalEntityID:    m.LocalEntityID.String(),
		Metadata:         metadata,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}, nil
}

func toDomainEntityMap(dbRow *models.IntegrationEntityMap) (*entitymap.Mapping, error) {
	tenantID, err := uuid.Parse(dbRow.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mapping tenant id")
	}
	localID, err := uuid.Parse(dbRow.LocalEntityID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mapping local entity id")
	}
	var metadata map[string]string
	if len(dbRow.Metadata) > 0 {
		if err := json.Unmarshal(dbRow.Metadata, &metadata); err != nil {
			return nil, errors.Wrap(err, "invalid mapping metadata")
		}
	}
	return &entitymap.Mapping{
		TenantID:         tenantID,
		Provider:         dbRow.Provider,
		EntityType:       dbRow.EntityType,
		ProviderEntityID: dbRow.ProviderEntityID,
		LocalEntityID:    localID,
		Metadata:         metadata,
		CreatedAt:        dbRow.CreatedAt,
		UpdatedAt:        dbRow.UpdatedAt,
	}, nil
}
