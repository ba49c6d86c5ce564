// organization_repository.go implements OrganizationRepository, providing PostgreSQL queries
// for organization CRUD and paging.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/vivadrive/organization-api/internal/db/models"
)

const organizationColumns = "id, name, established_on, registration_code, address"

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db *sqlx.DB
}

var _ OrganizationStore = (*OrganizationRepository)(nil)

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create creates a new organization
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (name, established_on, registration_code, address)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.db.QueryRowxContext(ctx, query,
		org.Name, org.EstablishedOn, org.RegistrationCode, org.Address,
	).Scan(&org.ID)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	return nil
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`

	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// List retrieves one page of organizations ordered by ID
func (r *OrganizationRepository) List(ctx context.Context, offset, limit int) (*models.OrganizationPage, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("invalid page window: offset %d, limit %d", offset, limit)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM organizations`); err != nil {
		return nil, fmt.Errorf("failed to count organizations: %w", err)
	}

	page := &models.OrganizationPage{Total: total, Items: []*models.Organization{}}
	if offset >= total {
		return page, nil
	}

	query := `SELECT ` + organizationColumns + ` FROM organizations ORDER BY id LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &page.Items, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	return page, nil
}

// Update replaces the mutable fields of an organization
func (r *OrganizationRepository) Update(ctx context.Context, org *models.Organization) (*models.Organization, error) {
	query := `
		UPDATE organizations
		SET name = $2, established_on = $3, registration_code = $4, address = $5
		WHERE id = $1
		RETURNING ` + organizationColumns

	var updated models.Organization
	err := r.db.QueryRowxContext(ctx, query,
		org.ID, org.Name, org.EstablishedOn, org.RegistrationCode, org.Address,
	).StructScan(&updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}

	return &updated, nil
}

// Delete removes an organization by ID
func (r *OrganizationRepository) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete organization: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteAll removes every organization
func (r *OrganizationRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM organizations`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete organizations: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
