package project

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusArchived  Status = "archived"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusCompleted:
		return true
	}
	return false
}

// Project name is the natural key, matched case-insensitively within the
// tenant.
type Project struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ClientID    *uuid.UUID
	Name        string
	Description string
	Status      Status
	Budget      decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	GetByName(ctx context.Context, name string) (*Project, error)
	GetAll(ctx context.Context) ([]*Project, error)
	Create(ctx context.Context, p *Project) (*Project, error)
	Update(ctx context.Context, p *Project) (*Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
