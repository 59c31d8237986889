package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/phonginreallife/enablement/authz"
	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/internal/observability"
	"github.com/phonginreallife/enablement/store"
)

// FeatureToggleService owns every write to explicit feature toggles
type FeatureToggleService struct {
	checker  *authz.PermissionChecker
	orgs     store.OrganizationRepo
	toggles  store.FeatureToggleRepo
	catalog  store.FeatureCatalogRepo
	resolver *InheritanceResolver
	audit    AuditPublisher
	metrics  *observability.Metrics
	logger   *logrus.Logger
}

// NewFeatureToggleService creates a new FeatureToggleService
func NewFeatureToggleService(
	checker *authz.PermissionChecker,
	repos *store.Store,
	resolver *InheritanceResolver,
	audit AuditPublisher,
	metrics *observability.Metrics,
	logger *logrus.Logger,
) *FeatureToggleService {
	if audit == nil {
		audit = NopAuditPublisher{}
	}
	return &FeatureToggleService{
		checker:  checker,
		orgs:     repos.Organizations,
		toggles:  repos.Toggles,
		catalog:  repos.Catalog,
		resolver: resolver,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
	}
}

// ToggleResult is the per-feature outcome of BulkSet
type ToggleResult struct {
	RAGFeature string            `json:"rag_feature"`
	Success    bool              `json:"success"`
	Toggle     *db.FeatureToggle `json:"toggle,omitempty"`
	Error      string            `json:"error,omitempty"`
	Kind       Kind              `json:"kind,omitempty"`
}

// List returns the organization's explicit toggle rows
func (s *FeatureToggleService) List(ctx context.Context, orgID string) ([]db.FeatureToggle, error) {
	toggles, err := s.toggles.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature toggles: %w", err)
	}
	return toggles, nil
}

// Enabled returns the keys of every effectively enabled feature, sorted
func (s *FeatureToggleService) Enabled(ctx context.Context, orgID string) ([]string, error) {
	resolved, err := s.resolver.ResolveFeatures(ctx, orgID)
	if err != nil {
		return nil, err
	}

	enabled := make([]string, 0)
	for _, f := range resolved.Features {
		if f.Enabled {
			enabled = append(enabled, f.RAGFeature)
		}
	}
	return enabled, nil
}

// Set writes an explicit toggle after the ancestor rule check
func (s *FeatureToggleService) Set(ctx context.Context, caller authz.Caller, orgID, feature string, enabled bool) (*db.FeatureToggle, error) {
	if orgID == "" || feature == "" {
		return nil, invalid("organization id and feature are required")
	}
	if err := s.checker.Require(caller, authz.CapManageFeatures, orgID); err != nil {
		return nil, err
	}
	if err := requireOrganization(ctx, s.orgs, orgID); err != nil {
		return nil, err
	}

	if _, err := s.catalog.Get(ctx, feature); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: rag feature %s", ErrNotFound, feature)
		}
		return nil, fmt.Errorf("failed to get rag feature: %w", err)
	}

	rule, err := s.resolver.ValidateInheritanceRules(ctx, orgID, feature, enabled)
	if err != nil {
		return nil, err
	}
	if !rule.CanProceed {
		s.metrics.InheritanceBlocked()
		s.logger.WithFields(logrus.Fields{
			"org_id":     orgID,
			"feature":    feature,
			"blocked_by": *rule.BlockedBy,
			"user_id":    caller.UserID,
		}).Warn("FEATURE BLOCKED - ancestor disables feature")
		return nil, fmt.Errorf("%w: %s", ErrBlockedByAncestor, rule.Reason)
	}

	toggle := &db.FeatureToggle{OrganizationID: orgID, RAGFeature: feature, Enabled: enabled}
	if err := s.toggles.Upsert(ctx, toggle); err != nil {
		return nil, fmt.Errorf("failed to save feature toggle: %w", err)
	}

	s.resolver.InvalidateSubtree(ctx, orgID)
	s.metrics.ToggleWritten(enabled)
	s.audit.Publish(ctx, AuditEvent{
		Type:           AuditToggleSet,
		OrganizationID: orgID,
		ActorID:        caller.UserID,
		ResourceID:     feature,
		Details:        map[string]interface{}{"enabled": enabled},
	})

	s.logger.WithFields(logrus.Fields{
		"org_id":  orgID,
		"feature": feature,
		"enabled": enabled,
		"user_id": caller.UserID,
	}).Info("Feature toggle updated")
	return toggle, nil
}

// BulkSet applies each toggle independently; one failure does not stop the rest.
// Results are ordered by feature key.
func (s *FeatureToggleService) BulkSet(ctx context.Context, caller authz.Caller, orgID string, toggles map[string]bool) ([]ToggleResult, error) {
	if orgID == "" {
		return nil, invalid("organization id is required")
	}
	if len(toggles) == 0 {
		return nil, invalid("at least one feature toggle is required")
	}
	if err := s.checker.Require(caller, authz.CapManageFeatures, orgID); err != nil {
		return nil, err
	}
	if err := requireOrganization(ctx, s.orgs, orgID); err != nil {
		return nil, err
	}

	features := make([]string, 0, len(toggles))
	for feature := range toggles {
		features = append(features, feature)
	}
	sort.Strings(features)

	results := make([]ToggleResult, 0, len(features))
	for _, feature := range features {
		toggle, err := s.Set(ctx, caller, orgID, feature, toggles[feature])
		result := ToggleResult{RAGFeature: feature, Success: err == nil, Toggle: toggle}
		if err != nil {
			result.Error = err.Error()
			result.Kind = KindOf(err)
		}
		results = append(results, result)
	}
	return results, nil
}

// Delete drops the explicit row so the organization inherits again
func (s *FeatureToggleService) Delete(ctx context.Context, caller authz.Caller, orgID, feature string) error {
	if orgID == "" || feature == "" {
		return invalid("organization id and feature are required")
	}
	if err := s.checker.Require(caller, authz.CapManageFeatures, orgID); err != nil {
		return err
	}
	if err := requireOrganization(ctx, s.orgs, orgID); err != nil {
		return err
	}

	if err := s.toggles.Delete(ctx, orgID, feature); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: no explicit toggle for %s", ErrNotFound, feature)
		}
		return fmt.Errorf("failed to delete feature toggle: %w", err)
	}

	s.resolver.InvalidateSubtree(ctx, orgID)
	s.audit.Publish(ctx, AuditEvent{
		Type:           AuditToggleDeleted,
		OrganizationID: orgID,
		ActorID:        caller.UserID,
		ResourceID:     feature,
	})
	return nil
}

// MoveOrganization re-parents an organization; system admins only
func (s *FeatureToggleService) MoveOrganization(ctx context.Context, caller authz.Caller, orgID string, parentID *string) error {
	if err := s.checker.Require(caller, authz.CapManageHierarchy, orgID); err != nil {
		return err
	}
	if err := s.resolver.MoveOrganization(ctx, orgID, parentID); err != nil {
		return err
	}

	details := map[string]interface{}{"parent_organization_id": nil}
	if parentID != nil && *parentID != "" {
		details["parent_organization_id"] = *parentID
	}
	s.audit.Publish(ctx, AuditEvent{
		Type:           AuditHierarchyMoved,
		OrganizationID: orgID,
		ActorID:        caller.UserID,
		ResourceID:     orgID,
		Details:        details,
	})
	return nil
}
