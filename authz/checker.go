package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/phonginreallife/enablement/store"
)

// ErrForbidden is returned when a caller lacks a capability
var ErrForbidden = errors.New("forbidden: you don't have permission to perform this action")

// PermissionChecker answers capability questions for a caller.
// It never mutates state.
type PermissionChecker struct {
	toggles store.FeatureToggleRepo
	catalog store.FeatureCatalogRepo
}

// NewPermissionChecker creates a new PermissionChecker
func NewPermissionChecker(toggles store.FeatureToggleRepo, catalog store.FeatureCatalogRepo) *PermissionChecker {
	return &PermissionChecker{toggles: toggles, catalog: catalog}
}

// CanManageRAGFeatures: system_admin anywhere, org_admin in its own organization
func (p *PermissionChecker) CanManageRAGFeatures(caller Caller, orgID string) bool {
	return Allows(caller, CapManageFeatures, orgID)
}

// CanViewRAGFeatures: system_admin and org_admin anywhere, other roles in their own organization
func (p *PermissionChecker) CanViewRAGFeatures(caller Caller, orgID string) bool {
	return Allows(caller, CapViewFeatures, orgID)
}

// CanAccessOrganizationHierarchy: system_admin anywhere, org_admin in its own organization
func (p *PermissionChecker) CanAccessOrganizationHierarchy(caller Caller, orgID string) bool {
	return Allows(caller, CapAccessHierarchy, orgID)
}

// CanUseRAGFeature resolves whether the caller may use feature in orgID.
// Outside the caller's organization only system_admin passes the scope check.
// Inside, the organization's explicit toggle row wins, then the catalog
// default, then false.
func (p *PermissionChecker) CanUseRAGFeature(ctx context.Context, caller Caller, feature, orgID string) (bool, error) {
	if !Allows(caller, CapUseFeatures, orgID) {
		return false, nil
	}

	toggle, err := p.toggles.Get(ctx, orgID, feature)
	if err == nil {
		return toggle.Enabled, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("failed to check feature toggle: %w", err)
	}

	catalogFeature, err := p.catalog.Get(ctx, feature)
	if err == nil {
		return catalogFeature.DefaultEnabled, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check feature catalog: %w", err)
}

// Require returns ErrForbidden unless the caller holds capability on orgID
func (p *PermissionChecker) Require(caller Caller, capability Capability, orgID string) error {
	if Allows(caller, capability, orgID) {
		return nil
	}
	return fmt.Errorf("%w: %s on organization %s", ErrForbidden, capability, orgID)
}
