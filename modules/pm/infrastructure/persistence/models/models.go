package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Client struct {
	ID             string
	TenantID       string
	CompanyName    string
	ContactName    sql.NullString
	Email          sql.NullString
	Phone          sql.NullString
	Notes          sql.NullString
	ParentClientID sql.NullString
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Project struct {
	ID          string
	TenantID    string
	ClientID    sql.NullString
	Name        string
	Description sql.NullString
	Status      string
	Budget      decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Section struct {
	ID        string
	TenantID  string
	ProjectID string
	Name      string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Task struct {
	ID           string
	TenantID     string
	ProjectID    string
	SectionID    sql.NullString
	ParentTaskID sql.NullString
	AssigneeID   sql.NullString
	Title        string
	Notes        sql.NullString
	DueAt        sql.NullTime
	Completed    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type TimeEntry struct {
	ID        string
	TenantID  string
	UserID    string
	ProjectID sql.NullString
	TaskID    sql.NullString
	StartedAt time.Time
	EndedAt   sql.NullTime
	Hours     decimal.Decimal
	Notes     sql.NullString
	Billable  bool
	CreatedAt time.Time
}
