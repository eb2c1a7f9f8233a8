// Package entitymap pairs external provider records with local records so
// repeated syncs update instead of duplicate.
package entitymap

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Repository.Get when no mapping exists for the
// composite key.
var ErrNotFound = errors.New("integration mapping not found")

// Well-known entity types stored in the map.
const (
	EntityUser    = "user"
	EntityClient  = "client"
	EntityProject = "project"
	EntitySection = "section"
	EntityTask    = "task"
)

// Mapping links one provider record to at most one local record. The
// composite key (tenant, provider, entityType, providerEntityID) is the
// identity; there is no surrogate id.
type Mapping struct {
	TenantID         uuid.UUID
	Provider         string
	EntityType       string
	ProviderEntityID string
	LocalEntityID    uuid.UUID
	Metadata         map[string]string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Repository interface {
	Get(ctx context.Context, provider, entityType, providerEntityID string) (*Mapping, error)
	// Upsert is conflict-safe on the composite key: re-mapping a provider
	// record points it at the new local record.
	Upsert(ctx context.Context, m *Mapping) (*Mapping, error)
	Delete(ctx context.Context, provider, entityType, providerEntityID string) error
}
