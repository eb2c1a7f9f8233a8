package models

import (
	"database/sql"
	"time"
)

type Tenant struct {
	ID        string
	Name      string
	Domain    sql.NullString
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID        string
	TenantID  string
	Email     string
	FirstName string
	LastName  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
