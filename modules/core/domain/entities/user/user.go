package user

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByEmail matches case-insensitively within the tenant.
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetAll(ctx context.Context) ([]*User, error)
	Create(ctx context.Context, u *User) (*User, error)
	Update(ctx context.Context, u *User) (*User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type User struct {
	id        uuid.UUID
	tenantID  uuid.UUID
	email     string
	firstName string
	lastName  string
	role      Role
	createdAt time.Time
	updatedAt time.Time
}

type Option func(*User)

func WithID(id uuid.UUID) Option {
	return func(u *User) {
		u.id = id
	}
}

func WithTenantID(tenantID uuid.UUID) Option {
	return func(u *User) {
		u.tenantID = tenantID
	}
}

func WithName(firstName, lastName string) Option {
	return func(u *User) {
		u.firstName = firstName
		u.lastName = lastName
	}
}

func WithRole(role Role) Option {
	return func(u *User) {
		u.role = role
	}
}

func WithCreatedAt(createdAt time.Time) Option {
	return func(u *User) {
		u.createdAt = createdAt
	}
}

func WithUpdatedAt(updatedAt time.Time) Option {
	return func(u *User) {
		u.updatedAt = updatedAt
	}
}

// New builds a user. Emails are stored lowercased, they are the natural key
// for lookups within a tenant.
func New(email string, opts ...Option) *User {
	u := &User{
		id:        uuid.New(),
		email:     strings.ToLower(strings.TrimSpace(email)),
		role:      RoleMember,
		createdAt: time.Now(),
		updatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *User) ID() uuid.UUID {
	return u.id
}

func (u *User) TenantID() uuid.UUID {
	return u.tenantID
}

func (u *User) Email() string {
	return u.email
}

func (u *User) FirstName() string {
	return u.firstName
}

func (u *User) LastName() string {
	return u.lastName
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.firstName + " " + u.lastName)
}

func (u *User) Role() Role {
	return u.role
}

func (u *User) CreatedAt() time.Time {
	return u.createdAt
}

func (u *User) UpdatedAt() time.Time {
	return u.updatedAt
}

func (u *User) SetName(firstName, lastName string) {
	u.firstName = firstName
	u.lastName = lastName
	u.updatedAt = time.Now()
}

func (u *User) SetRole(role Role) {
	u.role = role
	u.updatedAt = time.Now()
}
