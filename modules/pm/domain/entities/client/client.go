package client

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Client is a company the tenant does work for. CompanyName is the natural
// key, matched case-insensitively within the tenant.
type Client struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	CompanyName    string
	ContactName    string
	Email          string
	Phone          string
	Notes          string
	ParentClientID *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type FindParams struct {
	Limit  int
	Offset int
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Client, error)
	GetByCompanyName(ctx context.Context, name string) (*Client, error)
	GetAll(ctx context.Context) ([]*Client, error)
	GetPaginated(ctx context.Context, params *FindParams) ([]*Client, error)
	Create(ctx context.Context, c *Client) (*Client, error)
	Update(ctx context.Context, c *Client) (*Client, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
