package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/phonginreallife/enablement/authz"
	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/internal/observability"
	"github.com/phonginreallife/enablement/store"
)

// SharingWorkflow moves context items between organizations through
// pending -> approved | rejected requests
type SharingWorkflow struct {
	checker *authz.PermissionChecker
	orgs    store.OrganizationRepo
	sharing store.SharingRequestRepo
	items   store.ContextItemRepo
	quotas  *QuotaEnforcer
	audit   AuditPublisher
	metrics *observability.Metrics
	logger  *logrus.Logger
}

// NewSharingWorkflow creates a new SharingWorkflow
func NewSharingWorkflow(
	checker *authz.PermissionChecker,
	repos *store.Store,
	quotas *QuotaEnforcer,
	audit AuditPublisher,
	metrics *observability.Metrics,
	logger *logrus.Logger,
) *SharingWorkflow {
	if audit == nil {
		audit = NopAuditPublisher{}
	}
	return &SharingWorkflow{
		checker: checker,
		orgs:    repos.Organizations,
		sharing: repos.Sharing,
		items:   repos.Items,
		quotas:  quotas,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
	}
}

// ShareInput describes one sharing request
type ShareInput struct {
	SourceOrganizationID string         `json:"source_organization_id"`
	TargetOrganizationID string         `json:"target_organization_id"`
	RAGFeature           string         `json:"rag_feature"`
	ItemID               string         `json:"item_id"`
	SharingType          db.SharingType `json:"sharing_type"`
}

// FanOutResult is returned by ShareToChildren
type FanOutResult struct {
	SharedCount int                 `json:"shared_count"`
	Requests    []db.SharingRequest `json:"requests"`
}

// ApprovalResult carries the resolved request and the copy made in the target
type ApprovalResult struct {
	Request    *db.SharingRequest `json:"request"`
	CopiedItem *db.ContextItem    `json:"copied_item"`
}

// Share creates a pending request from the source organization to the target
func (s *SharingWorkflow) Share(ctx context.Context, caller authz.Caller, input ShareInput) (*db.SharingRequest, error) {
	if input.SourceOrganizationID == "" || input.TargetOrganizationID == "" || input.RAGFeature == "" || input.ItemID == "" {
		return nil, invalid("source, target, rag_feature and item_id are required")
	}
	if input.SharingType == "" {
		input.SharingType = db.SharingReadOnly
	}
	if !input.SharingType.Valid() {
		return nil, invalid("unknown sharing type %q", input.SharingType)
	}
	if input.SourceOrganizationID == input.TargetOrganizationID {
		return nil, invalid("cannot share an item with its own organization")
	}
	if err := s.checker.Require(caller, authz.CapManageContent, input.SourceOrganizationID); err != nil {
		return nil, err
	}

	if _, err := s.orgs.Get(ctx, input.TargetOrganizationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: target organization %s", ErrNotFound, input.TargetOrganizationID)
		}
		return nil, fmt.Errorf("failed to get target organization: %w", err)
	}
	if err := s.requireSourceItem(ctx, input.SourceOrganizationID, input.ItemID); err != nil {
		return nil, err
	}

	req := &db.SharingRequest{
		ID:                   uuid.New().String(),
		SourceOrganizationID: input.SourceOrganizationID,
		TargetOrganizationID: input.TargetOrganizationID,
		RAGFeature:           input.RAGFeature,
		ItemID:               input.ItemID,
		SharingType:          input.SharingType,
		Status:               db.SharingPending,
		SharedBy:             caller.UserID,
	}

	_, err := s.sharing.FindPending(ctx, req.Key())
	if err == nil {
		return nil, fmt.Errorf("%w: a pending request for this item already exists", ErrAlreadyExists)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check pending requests: %w", err)
	}

	if _, err := s.quotas.Reserve(ctx, req.SourceOrganizationID, db.QuotaSharingRequests, 1); err != nil {
		return nil, err
	}

	if err := s.sharing.Create(ctx, req); err != nil {
		s.quotas.Release(ctx, req.SourceOrganizationID, db.QuotaSharingRequests, 1)
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: a pending request for this item already exists", ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create sharing request: %w", err)
	}

	s.requested(ctx, caller, req)
	return req, nil
}

// ShareToChildren offers an item to every direct child in one transaction.
// No children means nothing is shared; any failure shares nothing.
func (s *SharingWorkflow) ShareToChildren(ctx context.Context, caller authz.Caller, parentID, itemID, feature string) (*FanOutResult, error) {
	if parentID == "" || itemID == "" || feature == "" {
		return nil, invalid("organization id, item_id and rag_feature are required")
	}
	if err := s.checker.Require(caller, authz.CapManageContent, parentID); err != nil {
		return nil, err
	}
	if err := s.requireSourceItem(ctx, parentID, itemID); err != nil {
		return nil, err
	}

	children, err := s.orgs.ListChildren(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list child organizations: %w", err)
	}
	result := &FanOutResult{Requests: make([]db.SharingRequest, 0, len(children))}
	if len(children) == 0 {
		return result, nil
	}

	reqs := make([]*db.SharingRequest, 0, len(children))
	for _, child := range children {
		reqs = append(reqs, &db.SharingRequest{
			ID:                   uuid.New().String(),
			SourceOrganizationID: parentID,
			TargetOrganizationID: child.ID,
			RAGFeature:           feature,
			ItemID:               itemID,
			SharingType:          db.SharingHierarchyDown,
			Status:               db.SharingPending,
			SharedBy:             caller.UserID,
		})
	}

	if _, err := s.quotas.Reserve(ctx, parentID, db.QuotaSharingRequests, len(reqs)); err != nil {
		return nil, err
	}
	if err := s.sharing.CreateBatch(ctx, reqs); err != nil {
		s.quotas.Release(ctx, parentID, db.QuotaSharingRequests, len(reqs))
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: a child already has a pending request for this item", ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create sharing requests: %w", err)
	}

	for _, req := range reqs {
		s.requested(ctx, caller, req)
		result.Requests = append(result.Requests, *req)
	}
	result.SharedCount = len(reqs)
	return result, nil
}

// ShareToParent offers an item to the organization's parent
func (s *SharingWorkflow) ShareToParent(ctx context.Context, caller authz.Caller, childID, itemID, feature string) (*db.SharingRequest, error) {
	if childID == "" {
		return nil, invalid("organization id is required")
	}
	if err := s.checker.Require(caller, authz.CapManageContent, childID); err != nil {
		return nil, err
	}

	org, err := s.orgs.Get(ctx, childID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: organization %s not found", ErrNoParent, childID)
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	if !org.HasParent() {
		return nil, fmt.Errorf("%w: organization %s is a root", ErrNoParent, childID)
	}

	return s.Share(ctx, caller, ShareInput{
		SourceOrganizationID: childID,
		TargetOrganizationID: *org.ParentOrganizationID,
		RAGFeature:           feature,
		ItemID:               itemID,
		SharingType:          db.SharingHierarchyUp,
	})
}

// PendingApprovals lists requests waiting for the organization's decision
func (s *SharingWorkflow) PendingApprovals(ctx context.Context, orgID string) ([]db.SharingRequest, error) {
	reqs, err := s.sharing.ListIncoming(ctx, orgID, db.SharingPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	return reqs, nil
}

// Received lists approved requests targeting the organization
func (s *SharingWorkflow) Received(ctx context.Context, orgID string) ([]db.SharingRequest, error) {
	reqs, err := s.sharing.ListIncoming(ctx, orgID, db.SharingApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to list received shares: %w", err)
	}
	return reqs, nil
}

// Outgoing lists every request the organization created
func (s *SharingWorkflow) Outgoing(ctx context.Context, orgID string) ([]db.SharingRequest, error) {
	reqs, err := s.sharing.ListOutgoing(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outgoing shares: %w", err)
	}
	return reqs, nil
}

// Get returns one request
func (s *SharingWorkflow) Get(ctx context.Context, id string) (*db.SharingRequest, error) {
	req, err := s.sharing.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: sharing request %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get sharing request: %w", err)
	}
	return req, nil
}

// Approve copies the source item into the target organization and marks the
// request approved. The copy is removed again if the request was resolved
// concurrently.
func (s *SharingWorkflow) Approve(ctx context.Context, caller authz.Caller, id string) (*ApprovalResult, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Require(caller, authz.CapManageFeatures, req.TargetOrganizationID); err != nil {
		return nil, err
	}
	if req.Status != db.SharingPending {
		return nil, fmt.Errorf("%w: request is already %s", ErrInvalidTransition, req.Status)
	}

	original, err := s.items.Get(ctx, req.ItemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: original item not found", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get original item: %w", err)
	}

	if _, err := s.quotas.Reserve(ctx, req.TargetOrganizationID, db.QuotaContextItems, 1); err != nil {
		return nil, err
	}

	copied := copyItem(original, req, caller.UserID)
	if err := s.items.Create(ctx, copied); err != nil {
		s.quotas.Release(ctx, req.TargetOrganizationID, db.QuotaContextItems, 1)
		return nil, fmt.Errorf("failed to copy item: %w", err)
	}

	resolved, err := s.sharing.Resolve(ctx, id, db.SharingApproved, caller.UserID, nil)
	if err != nil {
		if delErr := s.items.Delete(ctx, copied.OrganizationID, copied.ID); delErr != nil {
			s.logger.WithError(delErr).WithField("item_id", copied.ID).Error("Failed to remove orphaned item copy")
		}
		s.quotas.Release(ctx, req.TargetOrganizationID, db.QuotaContextItems, 1)
		if errors.Is(err, store.ErrStaleState) {
			return nil, fmt.Errorf("%w: request was resolved concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("failed to approve sharing request: %w", err)
	}

	if err := s.sharing.SetCopiedItem(ctx, id, copied.ID); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": id,
			"item_id":    copied.ID,
		}).Warn("Failed to record copied item on sharing request")
	} else {
		copiedID := copied.ID
		resolved.CopiedItemID = &copiedID
	}

	s.quotas.Release(ctx, req.SourceOrganizationID, db.QuotaSharingRequests, 1)
	s.metrics.SharingTransition(string(db.SharingApproved))
	s.audit.Publish(ctx, AuditEvent{
		Type:           AuditSharingApproved,
		OrganizationID: req.TargetOrganizationID,
		ActorID:        caller.UserID,
		ResourceID:     id,
		Details: map[string]interface{}{
			"source_organization_id": req.SourceOrganizationID,
			"copied_item_id":         copied.ID,
		},
	})

	s.logger.WithFields(logrus.Fields{
		"request_id": id,
		"source":     req.SourceOrganizationID,
		"target":     req.TargetOrganizationID,
		"item_id":    copied.ID,
		"user_id":    caller.UserID,
	}).Info("Sharing request approved")
	return &ApprovalResult{Request: resolved, CopiedItem: copied}, nil
}

// Reject marks a pending request rejected. Nothing is copied.
func (s *SharingWorkflow) Reject(ctx context.Context, caller authz.Caller, id string, reason *string) (*db.SharingRequest, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Require(caller, authz.CapManageFeatures, req.TargetOrganizationID); err != nil {
		return nil, err
	}
	if req.Status != db.SharingPending {
		return nil, fmt.Errorf("%w: request is already %s", ErrInvalidTransition, req.Status)
	}

	resolved, err := s.sharing.Resolve(ctx, id, db.SharingRejected, caller.UserID, reason)
	if err != nil {
		if errors.Is(err, store.ErrStaleState) {
			return nil, fmt.Errorf("%w: request was resolved concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("failed to reject sharing request: %w", err)
	}

	s.quotas.Release(ctx, req.SourceOrganizationID, db.QuotaSharingRequests, 1)
	s.metrics.SharingTransition(string(db.SharingRejected))

	details := map[string]interface{}{"source_organization_id": req.SourceOrganizationID}
	if reason != nil {
		details["reason"] = *reason
	}
	s.audit.Publish(ctx, AuditEvent{
		Type:           AuditSharingRejected,
		OrganizationID: req.TargetOrganizationID,
		ActorID:        caller.UserID,
		ResourceID:     id,
		Details:        details,
	})
	return resolved, nil
}

// Stats counts outgoing, incoming and pending requests concurrently
func (s *SharingWorkflow) Stats(ctx context.Context, orgID string) (*db.SharingStats, error) {
	stats := &db.SharingStats{OrganizationID: orgID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.sharing.CountOutgoing(gctx, orgID)
		stats.OutgoingShares = n
		return err
	})
	g.Go(func() error {
		n, err := s.sharing.CountIncoming(gctx, orgID, "")
		stats.IncomingShares = n
		return err
	})
	g.Go(func() error {
		n, err := s.sharing.CountIncoming(gctx, orgID, db.SharingPending)
		stats.PendingApprovals = n
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute sharing stats: %w", err)
	}
	return stats, nil
}

func (s *SharingWorkflow) requireSourceItem(ctx context.Context, orgID, itemID string) error {
	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: context item %s", ErrNotFound, itemID)
		}
		return fmt.Errorf("failed to get context item: %w", err)
	}
	if item.OrganizationID != orgID {
		return fmt.Errorf("%w: context item %s does not belong to organization %s", ErrNotFound, itemID, orgID)
	}
	return nil
}

func (s *SharingWorkflow) requested(ctx context.Context, caller authz.Caller, req *db.SharingRequest) {
	s.metrics.SharingTransition(string(db.SharingPending))
	s.audit.Publish(ctx, AuditEvent{
		Type:           AuditSharingRequested,
		OrganizationID: req.SourceOrganizationID,
		ActorID:        caller.UserID,
		ResourceID:     req.ID,
		Details: map[string]interface{}{
			"target_organization_id": req.TargetOrganizationID,
			"item_id":                req.ItemID,
			"sharing_type":           req.SharingType,
		},
	})
	s.logger.WithFields(logrus.Fields{
		"request_id": req.ID,
		"source":     req.SourceOrganizationID,
		"target":     req.TargetOrganizationID,
		"type":       req.SharingType,
	}).Info("Sharing request created")
}

// copyItem builds an independent copy of original owned by the target organization
func copyItem(original *db.ContextItem, req *db.SharingRequest, approvedBy string) *db.ContextItem {
	metadata := make(map[string]interface{}, len(original.Metadata)+1)
	for k, v := range original.Metadata {
		metadata[k] = v
	}
	metadata["sharing_request_id"] = req.ID

	sourceItemID := original.ID
	sourceOrgID := original.OrganizationID
	return &db.ContextItem{
		ID:                   uuid.New().String(),
		OrganizationID:       req.TargetOrganizationID,
		RAGFeature:           original.RAGFeature,
		ItemType:             original.ItemType,
		Title:                original.Title,
		Content:              original.Content,
		Confidence:           original.Confidence,
		Metadata:             metadata,
		SourceItemID:         &sourceItemID,
		SourceOrganizationID: &sourceOrgID,
		CreatedBy:            approvedBy,
	}
}
