package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phonginreallife/enablement/db"
)

// PostgresSharingRequestRepo implements SharingRequestRepo using SQL.
// Duplicate pending requests are rejected by the uq_sharing_requests_pending
// partial unique index, so concurrent shares of one tuple cannot both insert.
type PostgresSharingRequestRepo struct {
	db *sql.DB
}

// NewPostgresSharingRequestRepo creates a new PostgresSharingRequestRepo
func NewPostgresSharingRequestRepo(pg *sql.DB) *PostgresSharingRequestRepo {
	return &PostgresSharingRequestRepo{db: pg}
}

var _ SharingRequestRepo = (*PostgresSharingRequestRepo)(nil)

const sharingColumns = `id, source_organization_id, target_organization_id, rag_feature, item_id,
		sharing_type, status, shared_by, approved_by, rejected_by, rejection_reason,
		copied_item_id, created_at, resolved_at`

const insertSharingRequest = `
		INSERT INTO sharing_requests (
			id, source_organization_id, target_organization_id, rag_feature, item_id,
			sharing_type, status, shared_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertRequest(ctx context.Context, ex execer, req *db.SharingRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = db.SharingPending
	}
	req.CreatedAt = time.Now()

	_, err := ex.ExecContext(ctx, insertSharingRequest,
		req.ID, req.SourceOrganizationID, req.TargetOrganizationID, req.RAGFeature, req.ItemID,
		req.SharingType, req.Status, req.SharedBy, req.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create sharing request: %w", err)
	}
	return nil
}

// Create inserts a pending request
func (r *PostgresSharingRequestRepo) Create(ctx context.Context, req *db.SharingRequest) error {
	return insertRequest(ctx, r.db, req)
}

// CreateBatch inserts all requests in one transaction
func (r *PostgresSharingRequestRepo) CreateBatch(ctx context.Context, reqs []*db.SharingRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, req := range reqs {
		if err := insertRequest(ctx, tx, req); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sharing requests: %w", err)
	}
	return nil
}

// Get retrieves a request by ID
func (r *PostgresSharingRequestRepo) Get(ctx context.Context, id string) (*db.SharingRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sharingColumns+` FROM sharing_requests WHERE id = $1`, id)
	req, err := scanSharingRequest(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sharing request: %w", err)
	}
	return req, nil
}

// FindPending returns the pending request for the tuple
func (r *PostgresSharingRequestRepo) FindPending(ctx context.Context, key db.SharingKey) (*db.SharingRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sharingColumns+`
		FROM sharing_requests
		WHERE source_organization_id = $1 AND target_organization_id = $2
			AND rag_feature = $3 AND item_id = $4 AND status = 'pending'
		LIMIT 1
	`, key.SourceOrganizationID, key.TargetOrganizationID, key.RAGFeature, key.ItemID)

	req, err := scanSharingRequest(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to check existing sharing request: %w", err)
	}
	return req, nil
}

// Resolve moves a pending request to approved or rejected
func (r *PostgresSharingRequestRepo) Resolve(ctx context.Context, id string, status db.SharingStatus, actor string, reason *string) (*db.SharingRequest, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("cannot resolve sharing request to %q", status)
	}

	actorColumn := "approved_by"
	if status == db.SharingRejected {
		actorColumn = "rejected_by"
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE sharing_requests
		SET status = $2, `+actorColumn+` = $3, rejection_reason = $4, resolved_at = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING `+sharingColumns, id, status, actor, reason, time.Now())

	req, err := scanSharingRequest(row)
	if err == nil {
		return req, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to resolve sharing request: %w", err)
	}

	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStaleState
}

// SetCopiedItem records the copy produced by approval
func (r *PostgresSharingRequestRepo) SetCopiedItem(ctx context.Context, id, itemID string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE sharing_requests SET copied_item_id = $2 WHERE id = $1`, id, itemID)
	if err != nil {
		return fmt.Errorf("failed to record copied item: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListIncoming returns requests targeting orgID
func (r *PostgresSharingRequestRepo) ListIncoming(ctx context.Context, orgID string, status db.SharingStatus) ([]db.SharingRequest, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+sharingColumns+`
			FROM sharing_requests
			WHERE target_organization_id = $1
			ORDER BY created_at DESC
		`, orgID)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+sharingColumns+`
			FROM sharing_requests
			WHERE target_organization_id = $1 AND status = $2
			ORDER BY created_at DESC
		`, orgID, status)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list incoming sharing requests: %w", err)
	}
	defer rows.Close()
	return scanSharingRequests(rows)
}

// ListOutgoing returns requests originating from orgID
func (r *PostgresSharingRequestRepo) ListOutgoing(ctx context.Context, orgID string) ([]db.SharingRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sharingColumns+`
		FROM sharing_requests
		WHERE source_organization_id = $1
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outgoing sharing requests: %w", err)
	}
	defer rows.Close()
	return scanSharingRequests(rows)
}

// CountOutgoing counts requests originating from orgID
func (r *PostgresSharingRequestRepo) CountOutgoing(ctx context.Context, orgID string) (int, error) {
	var count sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sharing_requests WHERE source_organization_id = $1`, orgID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count outgoing shares: %w", err)
	}
	return int(count.Int64), nil
}

// CountIncoming counts requests targeting orgID
func (r *PostgresSharingRequestRepo) CountIncoming(ctx context.Context, orgID string, status db.SharingStatus) (int, error) {
	var count sql.NullInt64
	var err error
	if status == "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sharing_requests WHERE target_organization_id = $1`, orgID).Scan(&count)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sharing_requests WHERE target_organization_id = $1 AND status = $2`, orgID, status).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count incoming shares: %w", err)
	}
	return int(count.Int64), nil
}

func scanSharingRequest(s scanner) (*db.SharingRequest, error) {
	var req db.SharingRequest
	var approvedBy, rejectedBy, reason, copied sql.NullString
	var resolvedAt sql.NullTime
	err := s.Scan(
		&req.ID, &req.SourceOrganizationID, &req.TargetOrganizationID, &req.RAGFeature, &req.ItemID,
		&req.SharingType, &req.Status, &req.SharedBy, &approvedBy, &rejectedBy, &reason,
		&copied, &req.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	req.ApprovedBy = nullString(approvedBy)
	req.RejectedBy = nullString(rejectedBy)
	req.RejectionReason = nullString(reason)
	req.CopiedItemID = nullString(copied)
	req.ResolvedAt = nullTimePtr(resolvedAt)
	return &req, nil
}

func scanSharingRequests(rows *sql.Rows) ([]db.SharingRequest, error) {
	reqs := make([]db.SharingRequest, 0)
	for rows.Next() {
		req, err := scanSharingRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sharing request: %w", err)
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}
