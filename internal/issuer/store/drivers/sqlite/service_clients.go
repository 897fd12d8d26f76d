package sqlite

import (
	"context"
	"strings"

	"github.com/aussiebroadwan/stamp/internal/issuer/domain"
)

type serviceClientsRepo struct {
	db dbtx
}

func (r *serviceClientsRepo) GetServiceClientByID(
	ctx context.Context,
	id string,
) (domain.ServiceClient, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, secret_hash, permissions, created_at, updated_at
		FROM service_clients
		WHERE id = ?`,
		id,
	)

	var c domain.ServiceClient
	var permissions string
	err := row.Scan(&c.ID, &c.Name, &c.SecretHash, &permissions, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.ServiceClient{}, mapNotFound(err)
	}
	c.Permissions = splitPermissions(permissions)
	return c, nil
}

func (r *serviceClientsRepo) CreateServiceClient(ctx context.Context, c domain.ServiceClient) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO service_clients (id, name, secret_hash, permissions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.SecretHash, strings.Join(c.Permissions, " "),
		c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	return err
}

func (r *serviceClientsRepo) ListServiceClients(ctx context.Context) ([]domain.ServiceClient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, secret_hash, permissions, created_at, updated_at
		FROM service_clients
		ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ServiceClient
	for rows.Next() {
		var c domain.ServiceClient
		var permissions string
		if err := rows.Scan(&c.ID, &c.Name, &c.SecretHash, &permissions, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Permissions = splitPermissions(permissions)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *serviceClientsRepo) DeleteServiceClient(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM service_clients WHERE id = ?`, id)
	return err
}

func splitPermissions(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Fields(s)
}
