package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phonginreallife/enablement/db"
)

// ============================================================================
// PostgresOrganizationRepo
// ============================================================================

// PostgresOrganizationRepo implements OrganizationRepo using SQL
type PostgresOrganizationRepo struct {
	db *sql.DB
}

// NewPostgresOrganizationRepo creates a new PostgresOrganizationRepo
func NewPostgresOrganizationRepo(pg *sql.DB) *PostgresOrganizationRepo {
	return &PostgresOrganizationRepo{db: pg}
}

var _ OrganizationRepo = (*PostgresOrganizationRepo)(nil)

// Get retrieves an organization by ID
func (r *PostgresOrganizationRepo) Get(ctx context.Context, id string) (*db.Organization, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, parent_organization_id, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`, id)

	org, err := scanOrganization(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// Create inserts an organization
func (r *PostgresOrganizationRepo) Create(ctx context.Context, org *db.Organization) error {
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	now := time.Now()
	org.CreatedAt = now
	org.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, parent_organization_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, org.ID, org.Name, org.ParentOrganizationID, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// ListChildren returns the direct children of an organization
func (r *PostgresOrganizationRepo) ListChildren(ctx context.Context, parentID string) ([]db.Organization, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, parent_organization_id, created_at, updated_at
		FROM organizations
		WHERE parent_organization_id = $1
		ORDER BY name
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list child organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]db.Organization, 0)
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, *org)
	}
	return orgs, rows.Err()
}

// UpdateParent re-parents an organization
func (r *PostgresOrganizationRepo) UpdateParent(ctx context.Context, id string, parentID *string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE organizations
		SET parent_organization_id = $2, updated_at = $3
		WHERE id = $1
	`, id, parentID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update organization parent: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrganization(s scanner) (*db.Organization, error) {
	var org db.Organization
	var parent sql.NullString
	if err := s.Scan(&org.ID, &org.Name, &parent, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, err
	}
	org.ParentOrganizationID = nullString(parent)
	return &org, nil
}
