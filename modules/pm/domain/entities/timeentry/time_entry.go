package timeentry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TimeEntry struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	UserID    uuid.UUID
	ProjectID *uuid.UUID
	TaskID    *uuid.UUID
	StartedAt time.Time
	EndedAt   *time.Time
	// Hours is derived from the started/ended pair when both are known.
	Hours     decimal.Decimal
	Notes     string
	Billable  bool
	CreatedAt time.Time
}

type FindParams struct {
	UserID uuid.UUID
	Limit  int
	Offset int
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*TimeEntry, error)
	GetPaginated(ctx context.Context, params *FindParams) ([]*TimeEntry, error)
	Create(ctx context.Context, e *TimeEntry) (*TimeEntry, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// HoursBetween computes fractional hours for a completed entry.
func HoursBetween(start time.Time, end time.Time) decimal.Decimal {
	if !end.After(start) {
		return decimal.Zero
	}
	minutes := end.Sub(start).Minutes()
	return decimal.NewFromFloat(minutes).Div(decimal.NewFromInt(60)).Round(2)
}
