package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/pm/domain/entities/client"
	"github.com/worklane/worklane/modules/pm/infrastructure/persistence/models"
	"github.com/worklane/worklane/pkg/composables"
	"github.com/worklane/worklane/pkg/repo"
)

var ErrClientNotFound = fmt.Errorf("client not found")

const clientFindQuery = `
	SELECT id, tenant_id, company_name, contact_name, email, phone, notes, parent_client_id, created_at, updated_at
	FROM clients`

type ClientRepository struct{}

func NewClientRepository() client.Repository {
	return &ClientRepository{}
}

func (r *ClientRepository) GetByID(ctx context.Context, id uuid.UUID) (*client.Client, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	clients, err := r.queryClients(ctx, clientFindQuery+" WHERE tenant_id = $1 AND id = $2", tenantID.String(), id.String())
	if err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return nil, ErrClientNotFound
	}
	return clients[0], nil
}

func (r *ClientRepository) GetByCompanyName(ctx context.Context, name string) (*client.Client, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	clients, err := r.queryClients(
		ctx,
		clientFindQuery+" WHERE tenant_id = $1 AND LOWER(company_name) = LOWER($2)",
		tenantID.String(), name,
	)
	if err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return nil, ErrClientNotFound
	}
	return clients[0], nil
}

func (r *ClientRepository) GetAll(ctx context.Context) ([]*client.Client, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryClients(ctx, clientFindQuery+" WHERE tenant_id = $1 ORDER BY company_name", tenantID.String())
}

func (r *ClientRepository) GetPaginated(ctx context.Context, params *client.FindParams) ([]*client.Client, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	query := clientFindQuery + " WHERE tenant_id = $1 ORDER BY created_at DESC"
	if params != nil {
		query += " " + repo.FormatLimitOffset(params.Limit, params.Offset)
	}
	return r.queryClients(ctx, query, tenantID.String())
}

func (r *ClientRepository) Create(ctx context.Context, c *client.Client) (*client.Client, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.TenantID == uuid.Nil {
		c.TenantID = tenantID
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	dbRow := toDBClient(c)
	query := `
		INSERT INTO clients (id, tenant_id, company_name, contact_name, email, phone, notes, parent_client_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	var idStr string
	if err := tx.QueryRow(
		ctx,
		query,
		dbRow.ID,
		dbRow.TenantID,
		dbRow.CompanyName,
		dbRow.ContactName,
		dbRow.Email,
		dbRow.Phone,
		dbRow.Notes,
		dbRow.ParentClientID,
		dbRow.CreatedAt,
		dbRow.UpdatedAt,
	).Scan(&idStr); err != nil {
		return nil, errors.Wrap(err, "failed to insert client")
	}
	return r.GetByID(ctx, uuid.MustParse(idStr))
}

func (r *ClientRepository) Update(ctx context.Context, c *client.Client) (*client.Client, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now()
	dbRow := toDBClient(c)
	query := `
		UPDATE clients
		SET company_name = $1, contact_name = $2, email = $3, phone = $4, notes = $5, parent_client_id = $6, updated_at = $7
		WHERE tenant_id = $8 AND id = $9
	`
	tag, err := tx.Exec(
		ctx,
		query,
		dbRow.CompanyName,
		dbRow.ContactName,
		dbRow.Email,
		dbRow.Phone,
		dbRow.Notes,
		dbRow.ParentClientID,
		dbRow.UpdatedAt,
		tenantID.String(),
		dbRow.ID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update client")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrClientNotFound
	}
	return r.GetByID(ctx, c.ID)
}

func (r *ClientRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM clients WHERE tenant_id = $1 AND id = $2`, tenantID.String(), id.String())
	return err
}

func (r *ClientRepository) queryClients(ctx context.Context, query string, args ...interface{}) ([]*client.Client, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var clients []*client.Client
	for rows.Next() {
		var row models.Client
		if err := rows.Scan(
			&row.ID,
			&row.TenantID,
			&row.CompanyName,
			&row.ContactName,
			&row.Email,
			&row.Phone,
			&row.Notes,
			&row.ParentClientID,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan client row")
		}
		c, err := toDomainClient(&row)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map client row")
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return clients, nil
}
