package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/phonginreallife/enablement/db"
)

// PostgresQuotaRepo implements QuotaRepo using SQL.
// Counter changes are single UPDATE statements so concurrent requests never
// read-modify-write the same row.
type PostgresQuotaRepo struct {
	db *sql.DB
}

// NewPostgresQuotaRepo creates a new PostgresQuotaRepo
func NewPostgresQuotaRepo(pg *sql.DB) *PostgresQuotaRepo {
	return &PostgresQuotaRepo{db: pg}
}

var _ QuotaRepo = (*PostgresQuotaRepo)(nil)

const quotaColumns = `organization_id,
		max_context_items, current_context_items,
		max_global_access, current_global_access,
		max_sharing_requests, current_sharing_requests,
		created_at, updated_at`

// quotaCounterColumns maps a quota type to its (current, max) columns.
// Column names only ever come from this table, never from input.
var quotaCounterColumns = map[db.QuotaType][2]string{
	db.QuotaContextItems:    {"current_context_items", "max_context_items"},
	db.QuotaGlobalAccess:    {"current_global_access", "max_global_access"},
	db.QuotaSharingRequests: {"current_sharing_requests", "max_sharing_requests"},
}

func counterColumns(t db.QuotaType) (current, max string, err error) {
	cols, ok := quotaCounterColumns[t]
	if !ok {
		return "", "", fmt.Errorf("unknown quota type %q", t)
	}
	return cols[0], cols[1], nil
}

// Get returns the quota row
func (r *PostgresQuotaRepo) Get(ctx context.Context, orgID string) (*db.OrganizationQuota, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+quotaColumns+` FROM organization_quotas WHERE organization_id = $1`, orgID)
	quota, err := scanQuota(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get quotas: %w", err)
	}
	return quota, nil
}

// Create inserts the row if absent and returns the stored row
func (r *PostgresQuotaRepo) Create(ctx context.Context, quota *db.OrganizationQuota) (*db.OrganizationQuota, error) {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO organization_quotas (
			organization_id, max_context_items, current_context_items,
			max_global_access, current_global_access,
			max_sharing_requests, current_sharing_requests,
			created_at, updated_at
		)
		VALUES ($1, $2, 0, $3, 0, $4, 0, $5, $5)
		ON CONFLICT (organization_id) DO NOTHING
	`, quota.OrganizationID, quota.MaxContextItems, quota.MaxGlobalAccess, quota.MaxSharingRequests, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create quotas: %w", err)
	}
	return r.Get(ctx, quota.OrganizationID)
}

// Adjust adds delta to one counter, clamping at zero
func (r *PostgresQuotaRepo) Adjust(ctx context.Context, orgID string, quotaType db.QuotaType, delta int) (*db.OrganizationQuota, error) {
	current, _, err := counterColumns(quotaType)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE organization_quotas
		SET %[1]s = GREATEST(%[1]s + $2, 0), updated_at = $3
		WHERE organization_id = $1
		RETURNING `+quotaColumns, current), orgID, delta, time.Now())

	quota, err := scanQuota(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update quota usage: %w", err)
	}
	return quota, nil
}

// Reserve adds qty only if the counter stays within its ceiling
func (r *PostgresQuotaRepo) Reserve(ctx context.Context, orgID string, quotaType db.QuotaType, qty int) (*db.OrganizationQuota, error) {
	current, max, err := counterColumns(quotaType)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE organization_quotas
		SET %[1]s = %[1]s + $2, updated_at = $3
		WHERE organization_id = $1 AND %[1]s + $2 <= %[2]s
		RETURNING `+quotaColumns, current, max), orgID, qty, time.Now())

	quota, err := scanQuota(row)
	if err == nil {
		return quota, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to reserve quota: %w", err)
	}

	// Nothing matched: either the row is missing or the ceiling would be crossed
	existing, getErr := r.Get(ctx, orgID)
	if getErr != nil {
		return nil, getErr
	}
	return existing, ErrLimitReached
}

// Reset zeroes the named counters
func (r *PostgresQuotaRepo) Reset(ctx context.Context, orgID string, quotaTypes []db.QuotaType) (*db.OrganizationQuota, error) {
	if len(quotaTypes) == 0 {
		quotaTypes = db.QuotaTypes
	}

	sets := make([]string, 0, len(quotaTypes)+1)
	for _, t := range quotaTypes {
		current, _, err := counterColumns(t)
		if err != nil {
			return nil, err
		}
		sets = append(sets, current+" = 0")
	}
	sets = append(sets, "updated_at = $2")

	row := r.db.QueryRowContext(ctx, `
		UPDATE organization_quotas
		SET `+strings.Join(sets, ", ")+`
		WHERE organization_id = $1
		RETURNING `+quotaColumns, orgID, time.Now())

	quota, err := scanQuota(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to reset quota usage: %w", err)
	}
	return quota, nil
}

// UpdateLimits changes ceilings; nil limits keep their stored value
func (r *PostgresQuotaRepo) UpdateLimits(ctx context.Context, orgID string, limits db.QuotaLimits) (*db.OrganizationQuota, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE organization_quotas
		SET max_context_items = COALESCE($2, max_context_items),
			max_global_access = COALESCE($3, max_global_access),
			max_sharing_requests = COALESCE($4, max_sharing_requests),
			updated_at = $5
		WHERE organization_id = $1
		RETURNING `+quotaColumns, orgID, limits.MaxContextItems, limits.MaxGlobalAccess, limits.MaxSharingRequests, time.Now())

	quota, err := scanQuota(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update quota limits: %w", err)
	}
	return quota, nil
}

func scanQuota(s scanner) (*db.OrganizationQuota, error) {
	var q db.OrganizationQuota
	err := s.Scan(
		&q.OrganizationID,
		&q.MaxContextItems, &q.CurrentContextItems,
		&q.MaxGlobalAccess, &q.CurrentGlobalAccess,
		&q.MaxSharingRequests, &q.CurrentSharingRequests,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &q, nil
}
