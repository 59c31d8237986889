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
// PostgresFeatureCatalogRepo
// ============================================================================

// PostgresFeatureCatalogRepo implements FeatureCatalogRepo using SQL
type PostgresFeatureCatalogRepo struct {
	db *sql.DB
}

// NewPostgresFeatureCatalogRepo creates a new PostgresFeatureCatalogRepo
func NewPostgresFeatureCatalogRepo(pg *sql.DB) *PostgresFeatureCatalogRepo {
	return &PostgresFeatureCatalogRepo{db: pg}
}

var _ FeatureCatalogRepo = (*PostgresFeatureCatalogRepo)(nil)

// List returns every catalog feature ordered by key
func (r *PostgresFeatureCatalogRepo) List(ctx context.Context) ([]db.RAGFeature, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, name, COALESCE(description, ''), COALESCE(category, ''), default_enabled
		FROM rag_features
		ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rag features: %w", err)
	}
	defer rows.Close()

	features := make([]db.RAGFeature, 0)
	for rows.Next() {
		var f db.RAGFeature
		if err := rows.Scan(&f.Key, &f.Name, &f.Description, &f.Category, &f.DefaultEnabled); err != nil {
			return nil, fmt.Errorf("failed to scan rag feature: %w", err)
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// Get returns one catalog feature
func (r *PostgresFeatureCatalogRepo) Get(ctx context.Context, key string) (*db.RAGFeature, error) {
	var f db.RAGFeature
	err := r.db.QueryRowContext(ctx, `
		SELECT key, name, COALESCE(description, ''), COALESCE(category, ''), default_enabled
		FROM rag_features
		WHERE key = $1
	`, key).Scan(&f.Key, &f.Name, &f.Description, &f.Category, &f.DefaultEnabled)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rag feature: %w", err)
	}
	return &f, nil
}

// ============================================================================
// PostgresFeatureToggleRepo
// ============================================================================

// PostgresFeatureToggleRepo implements FeatureToggleRepo using SQL
type PostgresFeatureToggleRepo struct {
	db *sql.DB
}

// NewPostgresFeatureToggleRepo creates a new PostgresFeatureToggleRepo
func NewPostgresFeatureToggleRepo(pg *sql.DB) *PostgresFeatureToggleRepo {
	return &PostgresFeatureToggleRepo{db: pg}
}

var _ FeatureToggleRepo = (*PostgresFeatureToggleRepo)(nil)

// ListByOrg returns the organization's explicit rows
func (r *PostgresFeatureToggleRepo) ListByOrg(ctx context.Context, orgID string) ([]db.FeatureToggle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, rag_feature, enabled, created_at, updated_at
		FROM organization_rag_toggles
		WHERE organization_id = $1
		ORDER BY rag_feature
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature toggles: %w", err)
	}
	defer rows.Close()

	toggles := make([]db.FeatureToggle, 0) // JSON: [] not null
	for rows.Next() {
		var t db.FeatureToggle
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.RAGFeature, &t.Enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feature toggle: %w", err)
		}
		toggles = append(toggles, t)
	}
	return toggles, rows.Err()
}

// Get returns one explicit row
func (r *PostgresFeatureToggleRepo) Get(ctx context.Context, orgID, feature string) (*db.FeatureToggle, error) {
	var t db.FeatureToggle
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, rag_feature, enabled, created_at, updated_at
		FROM organization_rag_toggles
		WHERE organization_id = $1 AND rag_feature = $2
	`, orgID, feature).Scan(&t.ID, &t.OrganizationID, &t.RAGFeature, &t.Enabled, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get feature toggle: %w", err)
	}
	return &t, nil
}

// Upsert creates or updates the (organization, feature) row
func (r *PostgresFeatureToggleRepo) Upsert(ctx context.Context, toggle *db.FeatureToggle) error {
	if toggle.ID == "" {
		toggle.ID = uuid.New().String()
	}
	now := time.Now()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO organization_rag_toggles (id, organization_id, rag_feature, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (organization_id, rag_feature)
		DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`, toggle.ID, toggle.OrganizationID, toggle.RAGFeature, toggle.Enabled, now).Scan(&toggle.ID, &toggle.CreatedAt, &toggle.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert feature toggle: %w", err)
	}
	return nil
}

// Delete removes an explicit row
func (r *PostgresFeatureToggleRepo) Delete(ctx context.Context, orgID, feature string) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM organization_rag_toggles WHERE organization_id = $1 AND rag_feature = $2
	`, orgID, feature)
	if err != nil {
		return fmt.Errorf("failed to delete feature toggle: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
