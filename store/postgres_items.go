package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phonginreallife/enablement/db"
)

// ============================================================================
// PostgresContextItemRepo
// ============================================================================

// PostgresContextItemRepo implements ContextItemRepo using SQL
type PostgresContextItemRepo struct {
	db *sql.DB
}

// NewPostgresContextItemRepo creates a new PostgresContextItemRepo
func NewPostgresContextItemRepo(pg *sql.DB) *PostgresContextItemRepo {
	return &PostgresContextItemRepo{db: pg}
}

var _ ContextItemRepo = (*PostgresContextItemRepo)(nil)

const contextItemColumns = `id, organization_id, rag_feature, item_type, title, content, confidence,
		metadata, source_item_id, source_organization_id, created_by, created_at, updated_at`

// Get retrieves a context item by ID
func (r *PostgresContextItemRepo) Get(ctx context.Context, id string) (*db.ContextItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+contextItemColumns+` FROM context_items WHERE id = $1`, id)
	item, err := scanContextItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get context item: %w", err)
	}
	return item, nil
}

// Create inserts a context item
func (r *PostgresContextItemRepo) Create(ctx context.Context, item *db.ContextItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now

	// JSONB column: store NULL rather than an empty document
	var metadata interface{}
	if len(item.Metadata) > 0 {
		b, err := json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = string(b)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO context_items (
			id, organization_id, rag_feature, item_type, title, content, confidence,
			metadata, source_item_id, source_organization_id, created_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, item.ID, item.OrganizationID, item.RAGFeature, item.ItemType, item.Title, item.Content, item.Confidence,
		metadata, item.SourceItemID, item.SourceOrganizationID, item.CreatedBy, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create context item: %w", err)
	}
	return nil
}

// ListByOrg lists an organization's items
func (r *PostgresContextItemRepo) ListByOrg(ctx context.Context, orgID, feature string) ([]db.ContextItem, error) {
	var rows *sql.Rows
	var err error
	if feature == "" {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+contextItemColumns+`
			FROM context_items
			WHERE organization_id = $1
			ORDER BY created_at DESC
		`, orgID)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+contextItemColumns+`
			FROM context_items
			WHERE organization_id = $1 AND rag_feature = $2
			ORDER BY created_at DESC
		`, orgID, feature)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list context items: %w", err)
	}
	defer rows.Close()

	items := make([]db.ContextItem, 0)
	for rows.Next() {
		item, err := scanContextItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan context item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// Delete removes an organization's item
func (r *PostgresContextItemRepo) Delete(ctx context.Context, orgID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM context_items WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete context item: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanContextItem(s scanner) (*db.ContextItem, error) {
	var item db.ContextItem
	var metadata, sourceItem, sourceOrg sql.NullString
	err := s.Scan(
		&item.ID, &item.OrganizationID, &item.RAGFeature, &item.ItemType, &item.Title, &item.Content, &item.Confidence,
		&metadata, &sourceItem, &sourceOrg, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &item.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	item.SourceItemID = nullString(sourceItem)
	item.SourceOrganizationID = nullString(sourceOrg)
	return &item, nil
}

// ============================================================================
// PostgresGlobalAccessRepo
// ============================================================================

// PostgresGlobalAccessRepo implements GlobalAccessRepo using SQL
type PostgresGlobalAccessRepo struct {
	db *sql.DB
}

// NewPostgresGlobalAccessRepo creates a new PostgresGlobalAccessRepo
func NewPostgresGlobalAccessRepo(pg *sql.DB) *PostgresGlobalAccessRepo {
	return &PostgresGlobalAccessRepo{db: pg}
}

var _ GlobalAccessRepo = (*PostgresGlobalAccessRepo)(nil)

// GetItem retrieves a global item
func (r *PostgresGlobalAccessRepo) GetItem(ctx context.Context, id string) (*db.GlobalContextItem, error) {
	var item db.GlobalContextItem
	err := r.db.QueryRowContext(ctx, `
		SELECT id, rag_feature, title, content, created_at
		FROM global_context_items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.RAGFeature, &item.Title, &item.Content, &item.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get global context item: %w", err)
	}
	return &item, nil
}

// Grant records an access grant
func (r *PostgresGlobalAccessRepo) Grant(ctx context.Context, grant *db.GlobalAccessGrant) error {
	grant.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO global_access_grants (organization_id, global_item_id, granted_by, created_at)
		VALUES ($1, $2, $3, $4)
	`, grant.OrganizationID, grant.GlobalItemID, grant.GrantedBy, grant.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to grant global access: %w", err)
	}
	return nil
}

// Revoke removes an access grant
func (r *PostgresGlobalAccessRepo) Revoke(ctx context.Context, orgID, globalItemID string) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM global_access_grants WHERE organization_id = $1 AND global_item_id = $2
	`, orgID, globalItemID)
	if err != nil {
		return fmt.Errorf("failed to revoke global access: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGrants lists an organization's grants
func (r *PostgresGlobalAccessRepo) ListGrants(ctx context.Context, orgID string) ([]db.GlobalAccessGrant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT organization_id, global_item_id, granted_by, created_at
		FROM global_access_grants
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list global access grants: %w", err)
	}
	defer rows.Close()

	grants := make([]db.GlobalAccessGrant, 0)
	for rows.Next() {
		var g db.GlobalAccessGrant
		if err := rows.Scan(&g.OrganizationID, &g.GlobalItemID, &g.GrantedBy, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan global access grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
