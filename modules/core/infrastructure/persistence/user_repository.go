package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/core/domain/entities/user"
	"github.com/worklane/worklane/modules/core/infrastructure/persistence/models"
	"github.com/worklane/worklane/pkg/composables"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

const (
	userFindQuery = `SELECT id, tenant_id, email, first_name, last_name, role, created_at, updated_at FROM users`
)

type UserRepository struct{}

func NewUserRepository() user.Repository {
	return &UserRepository{}
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	users, err := r.queryUsers(ctx, userFindQuery+" WHERE tenant_id = $1 AND id = $2", tenantID.String(), id.String())
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrUserNotFound
	}
	return users[0], nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	users, err := r.queryUsers(
		ctx,
		userFindQuery+" WHERE tenant_id = $1 AND LOWER(email) = LOWER($2)",
		tenantID.String(), email,
	)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrUserNotFound
	}
	return users[0], nil
}

func (r *UserRepository) GetAll(ctx context.Context) ([]*user.User, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryUsers(ctx, userFindQuery+" WHERE tenant_id = $1 ORDER BY email", tenantID.String())
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) (*user.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	dbRow := toDBUser(u)
	if dbRow.ID == uuid.Nil.String() {
		dbRow.ID = uuid.New().String()
	}
	if dbRow.TenantID == uuid.Nil.String() {
		dbRow.TenantID = tenantID.String()
	}
	now := time.Now()
	if dbRow.CreatedAt.IsZero() {
		dbRow.CreatedAt = now
	}
	dbRow.UpdatedAt = now

	query := `
		INSERT INTO users (id, tenant_id, email, first_name, last_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	var idStr string
	if err := tx.QueryRow(
		ctx,
		query,
		dbRow.ID,
		dbRow.TenantID,
		dbRow.Email,
		dbRow.FirstName,
		dbRow.LastName,
		dbRow.Role,
		dbRow.CreatedAt,
		dbRow.UpdatedAt,
	).Scan(&idStr); err != nil {
		return nil, errors.Wrap(err, "failed to insert user")
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) (*user.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	dbRow := toDBUser(u)
	query := `
		UPDATE users
		SET email = $1, first_name = $2, last_name = $3, role = $4, updated_at = $5
		WHERE tenant_id = $6 AND id = $7
	`
	tag, err := tx.Exec(
		ctx,
		query,
		dbRow.Email,
		dbRow.FirstName,
		dbRow.LastName,
		dbRow.Role,
		time.Now(),
		tenantID.String(),
		dbRow.ID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update user")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUserNotFound
	}
	return r.GetByID(ctx, u.ID())
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM users WHERE tenant_id = $1 AND id = $2`, tenantID.String(), id.String())
	return err
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*user.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		var row models.User
		if err := rows.Scan(
			&row.ID,
			&row.TenantID,
			&row.Email,
			&row.FirstName,
			&row.LastName,
			&row.Role,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan user row")
		}
		u, err := toDomainUser(&row)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map user row")
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	return users, nil
}
