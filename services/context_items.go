package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/phonginreallife/enablement/authz"
	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/store"
)

// ContextItemService manages organization-owned context items under the context_items quota
type ContextItemService struct {
	checker *authz.PermissionChecker
	items   store.ContextItemRepo
	catalog store.FeatureCatalogRepo
	quotas  *QuotaEnforcer
	audit   AuditPublisher
	logger  *logrus.Logger
}

// NewContextItemService creates a new ContextItemService
func NewContextItemService(checker *authz.PermissionChecker, repos *store.Store, quotas *QuotaEnforcer, audit AuditPublisher, logger *logrus.Logger) *ContextItemService {
	if audit == nil {
		audit = NopAuditPublisher{}
	}
	return &ContextItemService{
		checker: checker,
		items:   repos.Items,
		catalog: repos.Catalog,
		quotas:  quotas,
		audit:   audit,
		logger:  logger,
	}
}

// CreateContextItemInput is the request body for Create
type CreateContextItemInput struct {
	RAGFeature string                 `json:"rag_feature"`
	ItemType   string                 `json:"item_type"`
	Title      string                 `json:"title"`
	Content    string                 `json:"content"`
	Confidence *float64               `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// Create validates and stores a new item, taking one context_items unit
func (s *ContextItemService) Create(ctx context.Context, caller authz.Caller, orgID string, input CreateContextItemInput) (*db.ContextItem, error) {
	if orgID == "" || input.RAGFeature == "" || input.Title == "" {
		return nil, invalid("organization id, rag_feature and title are required")
	}
	confidence := 1.0
	if input.Confidence != nil {
		confidence = *input.Confidence
	}
	if confidence < 0 || confidence > 1 {
		return nil, invalid("confidence must be between 0 and 1")
	}
	if input.ItemType == "" {
		input.ItemType = "document"
	}
	if err := s.checker.Require(caller, authz.CapManageContent, orgID); err != nil {
		return nil, err
	}

	if _, err := s.catalog.Get(ctx, input.RAGFeature); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: rag feature %s", ErrNotFound, input.RAGFeature)
		}
		return nil, fmt.Errorf("failed to get rag feature: %w", err)
	}

	if _, err := s.quotas.Reserve(ctx, orgID, db.QuotaContextItems, 1); err != nil {
		return nil, err
	}

	item := &db.ContextItem{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		RAGFeature:     input.RAGFeature,
		ItemType:       input.ItemType,
		Title:          input.Title,
		Content:        input.Content,
		Confidence:     confidence,
		Metadata:       input.Metadata,
		CreatedBy:      caller.UserID,
	}
	if err := s.items.Create(ctx, item); err != nil {
		s.quotas.Release(ctx, orgID, db.QuotaContextItems, 1)
		return nil, fmt.Errorf("failed to create context item: %w", err)
	}

	s.audit.Publish(ctx, AuditEvent{
		Type:           AuditItemCreated,
		OrganizationID: orgID,
		ActorID:        caller.UserID,
		ResourceID:     item.ID,
		Details:        map[string]interface{}{"rag_feature": item.RAGFeature},
	})
	return item, nil
}

// List returns the organization's items, optionally for one feature
func (s *ContextItemService) List(ctx context.Context, orgID, feature string) ([]db.ContextItem, error) {
	items, err := s.items.ListByOrg(ctx, orgID, feature)
	if err != nil {
		return nil, fmt.Errorf("failed to list context items: %w", err)
	}
	return items, nil
}

// Delete removes an item and returns its context_items unit
func (s *ContextItemService) Delete(ctx context.Context, caller authz.Caller, orgID, itemID string) error {
	if orgID == "" || itemID == "" {
		return invalid("organization id and item id are required")
	}
	if err := s.checker.Require(caller, authz.CapManageContent, orgID); err != nil {
		return err
	}

	if err := s.items.Delete(ctx, orgID, itemID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: context item %s", ErrNotFound, itemID)
		}
		return fmt.Errorf("failed to delete context item: %w", err)
	}

	s.quotas.Release(ctx, orgID, db.QuotaContextItems, 1)
	s.audit.Publish(ctx, AuditEvent{
		Type:           AuditItemDeleted,
		OrganizationID: orgID,
		ActorID:        caller.UserID,
		ResourceID:     itemID,
	})
	return nil
}
