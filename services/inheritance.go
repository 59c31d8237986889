package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/internal/cache"
	"github.com/phonginreallife/enablement/internal/observability"
	"github.com/phonginreallife/enablement/store"
)

// InheritanceResolver computes effective feature state from explicit toggles
// and the ancestor chain. It never writes toggles.
type InheritanceResolver struct {
	hierarchy *HierarchyResolver
	orgs      store.OrganizationRepo
	toggles   store.FeatureToggleRepo
	catalog   store.FeatureCatalogRepo
	cache     cache.FeatureCache
	metrics   *observability.Metrics
	logger    *logrus.Logger

	// generation is bumped by every invalidation; a resolve that started
	// under an older generation does not write its result to the cache
	mu         sync.RWMutex
	generation uint64
}

// NewInheritanceResolver creates a new InheritanceResolver.
// A nil cache disables caching of resolved features.
func NewInheritanceResolver(
	hierarchy *HierarchyResolver,
	repos *store.Store,
	featureCache cache.FeatureCache,
	metrics *observability.Metrics,
	logger *logrus.Logger,
) *InheritanceResolver {
	if featureCache == nil {
		featureCache = cache.Nop{}
	}
	return &InheritanceResolver{
		hierarchy: hierarchy,
		orgs:      repos.Organizations,
		toggles:   repos.Toggles,
		catalog:   repos.Catalog,
		cache:     featureCache,
		metrics:   metrics,
		logger:    logger,
	}
}

// OverrideStatus is the resolved state of one feature for one organization
type OverrideStatus struct {
	OrganizationID   string           `json:"organization_id"`
	RAGFeature       string           `json:"rag_feature"`
	Status           db.FeatureStatus `json:"status"`
	IsInherited      bool             `json:"is_inherited"`
	InheritedFrom    *string          `json:"inherited_from,omitempty"`
	InheritanceLevel int              `json:"inheritance_level,omitempty"`
}

// OverrideCapability classifies where a feature's state comes from
type OverrideCapability struct {
	RAGFeature    string               `json:"rag_feature"`
	CurrentSource db.InheritanceSource `json:"current_source"`
	CurrentStatus db.FeatureStatus     `json:"current_status"`
	InheritedFrom *string              `json:"inherited_from,omitempty"`
	CanOverride   bool                 `json:"can_override"`
	Reason        string               `json:"reason"`
}

// EffectiveFeatureSet is an organization's own toggles merged over its parent's
type EffectiveFeatureSet struct {
	OrganizationID string                `json:"organization_id"`
	Features       []db.EffectiveFeature `json:"features"`
	OwnCount       int                   `json:"own_count"`
	InheritedCount int                   `json:"inherited_count"`
	TotalCount     int                   `json:"total_count"`
}

// ResolvedFeatures is the decorated effective set plus unconfigured catalog features
type ResolvedFeatures struct {
	OrganizationID string                `json:"organization_id"`
	Features       []db.EffectiveFeature `json:"features"`
	Cached         bool                  `json:"cached"`
}

// InheritanceSummary aggregates ResolvedFeatures
type InheritanceSummary struct {
	OrganizationID        string              `json:"organization_id"`
	TotalFeatures         int                 `json:"total_features"`
	ExplicitFeatures      int                 `json:"explicit_features"`
	InheritedFeatures     int                 `json:"inherited_features"`
	NotConfiguredFeatures int                 `json:"not_configured_features"`
	EnabledFeatures       int                 `json:"enabled_features"`
	InheritedBySource     map[string][]string `json:"inherited_by_source"`
}

// RuleValidation tells whether a desired toggle value may be written
type RuleValidation struct {
	OrganizationID string  `json:"organization_id"`
	RAGFeature     string  `json:"rag_feature"`
	DesiredEnabled bool    `json:"desired_enabled"`
	CanProceed     bool    `json:"can_proceed"`
	Reason         string  `json:"reason"`
	BlockedBy      *string `json:"blocked_by,omitempty"`
}

// InheritedFeatures returns the immediate parent's explicit toggles (one hop)
func (r *InheritanceResolver) InheritedFeatures(ctx context.Context, orgID string) ([]db.EffectiveFeature, error) {
	if orgID == "" {
		return nil, invalid("organization id is required")
	}

	org, err := r.orgs.Get(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: organization %s", ErrNotFound, orgID)
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	inherited := make([]db.EffectiveFeature, 0)
	if !org.HasParent() {
		return inherited, nil
	}

	parentID := *org.ParentOrganizationID
	rows, err := r.toggles.ListByOrg(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list parent feature toggles: %w", err)
	}

	for _, row := range rows {
		from := parentID
		inherited = append(inherited, db.EffectiveFeature{
			RAGFeature:        row.RAGFeature,
			Enabled:           row.Enabled,
			IsInherited:       true,
			InheritedFrom:     &from,
			InheritanceSource: db.SourceInherited,
			CanOverride:       true,
		})
	}
	return inherited, nil
}

// OverrideStatus resolves a feature: the organization's own row first, then
// the nearest ancestor with a row, else not_configured.
func (r *InheritanceResolver) OverrideStatus(ctx context.Context, orgID, feature string) (*OverrideStatus, error) {
	if orgID == "" || feature == "" {
		return nil, invalid("organization id and feature are required")
	}

	chain, err := r.hierarchy.Chain(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if len(chain.Chain) == 0 {
		return nil, fmt.Errorf("%w: organization %s", ErrNotFound, orgID)
	}

	status := &OverrideStatus{OrganizationID: orgID, RAGFeature: feature, Status: db.StatusNotConfigured}
	for level, entry := range chain.Chain {
		toggle, err := r.toggles.Get(ctx, entry.ID, feature)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get feature toggle: %w", err)
		}

		status.Status = db.StatusOf(toggle.Enabled)
		if level > 0 {
			from := entry.ID
			status.IsInherited = true
			status.InheritedFrom = &from
			status.InheritanceLevel = level
		}
		return status, nil
	}
	return status, nil
}

// CanOverrideFeature classifies the current source of a feature.
// A descendant may always write its own row, so CanOverride is always true.
func (r *InheritanceResolver) CanOverrideFeature(ctx context.Context, orgID, feature string) (*OverrideCapability, error) {
	status, err := r.OverrideStatus(ctx, orgID, feature)
	if err != nil {
		return nil, err
	}

	result := &OverrideCapability{
		RAGFeature:    feature,
		CurrentStatus: status.Status,
		InheritedFrom: status.InheritedFrom,
		CanOverride:   true,
	}
	switch {
	case status.IsInherited:
		result.CurrentSource = db.SourceInherited
		result.Reason = fmt.Sprintf("Inherited from %s; an explicit setting here takes precedence", *status.InheritedFrom)
	case status.Status == db.StatusNotConfigured:
		result.CurrentSource = db.SourceNotConfigured
		result.Reason = "Not configured anywhere in the hierarchy"
	default:
		result.CurrentSource = db.SourceExplicit
		result.Reason = "Explicitly configured for this organization"
	}
	return result, nil
}

// EffectiveFeatures merges the organization's own rows over its parent's rows.
// Features are sorted by key, so repeated calls return identical output.
func (r *InheritanceResolver) EffectiveFeatures(ctx context.Context, orgID string) (*EffectiveFeatureSet, error) {
	inherited, err := r.InheritedFeatures(ctx, orgID)
	if err != nil {
		return nil, err
	}

	own, err := r.toggles.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature toggles: %w", err)
	}

	byKey := make(map[string]db.EffectiveFeature, len(inherited)+len(own))
	for _, f := range inherited {
		byKey[f.RAGFeature] = f
	}
	for _, row := range own {
		byKey[row.RAGFeature] = db.EffectiveFeature{
			RAGFeature:        row.RAGFeature,
			Enabled:           row.Enabled,
			IsInherited:       false,
			InheritanceSource: db.SourceExplicit,
			CanOverride:       true,
		}
	}

	set := &EffectiveFeatureSet{
		OrganizationID: orgID,
		Features:       sortedFeatures(byKey),
		OwnCount:       len(own),
	}
	for _, f := range set.Features {
		if f.IsInherited {
			set.InheritedCount++
		}
	}
	set.TotalCount = len(set.Features)
	return set, nil
}

// ResolveFeatures decorates EffectiveFeatures with sources and reasons and adds
// catalog features nobody configures, using the catalog default.
func (r *InheritanceResolver) ResolveFeatures(ctx context.Context, orgID string) (*ResolvedFeatures, error) {
	if orgID == "" {
		return nil, invalid("organization id is required")
	}

	started := r.currentGeneration()
	cached, err := r.cache.Get(ctx, orgID)
	if err == nil {
		r.metrics.CacheLookup(r.cache.Backend(), true)
		return &ResolvedFeatures{OrganizationID: orgID, Features: cached, Cached: true}, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.WithError(err).WithField("org_id", orgID).Warn("Feature cache read failed")
	}
	r.metrics.CacheLookup(r.cache.Backend(), false)

	chain, err := r.hierarchy.Chain(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if len(chain.Chain) == 0 {
		return nil, fmt.Errorf("%w: organization %s", ErrNotFound, orgID)
	}

	effective, err := r.EffectiveFeatures(ctx, orgID)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]db.EffectiveFeature, len(effective.Features))
	for _, f := range effective.Features {
		f.CanOverride = true
		if f.IsInherited {
			f.InheritanceSource = db.SourceInherited
			name := "unknown"
			if f.InheritedFrom != nil {
				if n := chain.NameOf(*f.InheritedFrom); n != "" {
					name = n
				}
			}
			f.OverrideReason = "Inherited from " + name
		} else {
			f.InheritanceSource = db.SourceExplicit
			f.OverrideReason = "Explicitly configured"
		}
		byKey[f.RAGFeature] = f
	}

	catalog, err := r.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rag features: %w", err)
	}
	for _, feature := range catalog {
		if _, ok := byKey[feature.Key]; ok {
			continue
		}
		byKey[feature.Key] = db.EffectiveFeature{
			RAGFeature:        feature.Key,
			Enabled:           feature.DefaultEnabled,
			InheritanceSource: db.SourceNotConfigured,
			CanOverride:       true,
			OverrideReason:    "Not configured; catalog default applies",
		}
	}

	resolved := &ResolvedFeatures{OrganizationID: orgID, Features: sortedFeatures(byKey)}
	r.storeResolved(ctx, started, resolved)
	return resolved, nil
}

func (r *InheritanceResolver) currentGeneration() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// storeResolved caches resolved unless an invalidation ran since started.
// The read lock is held across the write so a concurrent InvalidateSubtree
// either sees this entry and deletes it, or this write sees its bump.
func (r *InheritanceResolver) storeResolved(ctx context.Context, started uint64, resolved *ResolvedFeatures) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.generation != started {
		r.logger.WithField("org_id", resolved.OrganizationID).Debug("Skipped caching features resolved before an invalidation")
		return
	}
	if err := r.cache.Set(ctx, resolved.OrganizationID, resolved.Features); err != nil {
		r.logger.WithError(err).WithField("org_id", resolved.OrganizationID).Warn("Feature cache write failed")
	}
}

// InheritanceSummary aggregates resolved features by source
func (r *InheritanceResolver) InheritanceSummary(ctx context.Context, orgID string) (*InheritanceSummary, error) {
	resolved, err := r.ResolveFeatures(ctx, orgID)
	if err != nil {
		return nil, err
	}

	summary := &InheritanceSummary{
		OrganizationID:    orgID,
		TotalFeatures:     len(resolved.Features),
		InheritedBySource: make(map[string][]string),
	}
	for _, f := range resolved.Features {
		switch f.InheritanceSource {
		case db.SourceExplicit:
			summary.ExplicitFeatures++
		case db.SourceInherited:
			summary.InheritedFeatures++
			if f.InheritedFrom != nil {
				summary.InheritedBySource[*f.InheritedFrom] = append(summary.InheritedBySource[*f.InheritedFrom], f.RAGFeature)
			}
		default:
			summary.NotConfiguredFeatures++
		}
		if f.Enabled {
			summary.EnabledFeatures++
		}
	}
	return summary, nil
}

// ValidateInheritanceRules: disabling always proceeds; enabling is blocked
// when any ancestor explicitly disables the feature. The reason names the
// nearest such ancestor.
func (r *InheritanceResolver) ValidateInheritanceRules(ctx context.Context, orgID, feature string, desired bool) (*RuleValidation, error) {
	if orgID == "" || feature == "" {
		return nil, invalid("organization id and feature are required")
	}

	result := &RuleValidation{
		OrganizationID: orgID,
		RAGFeature:     feature,
		DesiredEnabled: desired,
		CanProceed:     true,
	}
	if !desired {
		result.Reason = "Disabling a feature is always permitted"
		return result, nil
	}

	chain, err := r.hierarchy.Chain(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if len(chain.Chain) == 0 {
		return nil, fmt.Errorf("%w: organization %s", ErrNotFound, orgID)
	}

	for _, ancestor := range chain.Ancestors() {
		toggle, err := r.toggles.Get(ctx, ancestor.ID, feature)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get ancestor feature toggle: %w", err)
		}
		if !toggle.Enabled {
			blocker := ancestor.ID
			result.CanProceed = false
			result.BlockedBy = &blocker
			result.Reason = fmt.Sprintf("Feature %s is disabled by ancestor organization %s (%s)", feature, ancestor.Name, ancestor.ID)
			return result, nil
		}
	}

	result.Reason = "No ancestor disables this feature"
	return result, nil
}

// InvalidateSubtree drops cached features for orgID and every descendant
func (r *InheritanceResolver) InvalidateSubtree(ctx context.Context, orgID string) {
	r.mu.Lock()
	r.generation++
	r.mu.Unlock()

	ids := []string{orgID}
	descendants, err := r.hierarchy.Descendants(ctx, orgID)
	if err != nil {
		r.logger.WithError(err).WithField("org_id", orgID).Warn("Failed to list descendants for cache invalidation")
	}
	ids = append(ids, descendants...)

	if err := r.cache.Invalidate(ctx, ids...); err != nil {
		r.logger.WithError(err).WithField("org_id", orgID).Warn("Feature cache invalidation failed")
	}
}

// MoveOrganization re-parents orgID and drops the cached features of its subtree
func (r *InheritanceResolver) MoveOrganization(ctx context.Context, orgID string, parentID *string) error {
	if err := r.hierarchy.SetParent(ctx, orgID, parentID); err != nil {
		return err
	}
	r.InvalidateSubtree(ctx, orgID)
	return nil
}

func sortedFeatures(byKey map[string]db.EffectiveFeature) []db.EffectiveFeature {
	features := make([]db.EffectiveFeature, 0, len(byKey))
	for _, f := range byKey {
		features = append(features, f)
	}
	sort.Slice(features, func(i, j int) bool { return features[i].RAGFeature < features[j].RAGFeature })
	return features
}
