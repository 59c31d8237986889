package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/internal/config"
	"github.com/phonginreallife/enablement/internal/observability"
	"github.com/phonginreallife/enablement/store"
)

// QuotaEnforcer admits or refuses quota-tracked mutations
type QuotaEnforcer struct {
	orgs     store.OrganizationRepo
	quotas   store.QuotaRepo
	defaults config.QuotaDefaults
	metrics  *observability.Metrics
	logger   *logrus.Logger
}

// NewQuotaEnforcer creates a new QuotaEnforcer.
// defaults are the ceilings stored when an organization is first seen.
func NewQuotaEnforcer(repos *store.Store, defaults config.QuotaDefaults, metrics *observability.Metrics, logger *logrus.Logger) *QuotaEnforcer {
	return &QuotaEnforcer{
		orgs:     repos.Organizations,
		quotas:   repos.Quotas,
		defaults: defaults,
		metrics:  metrics,
		logger:   logger,
	}
}

// QuotaCheck is the answer to "may qty more units be used?"
type QuotaCheck struct {
	OrganizationID string       `json:"organization_id"`
	QuotaType      db.QuotaType `json:"quota_type"`
	Current        int          `json:"current"`
	Limit          int          `json:"limit"`
	Requested      int          `json:"requested"`
	Remaining      int          `json:"remaining"`
	QuotaExceeded  bool         `json:"quota_exceeded"`
}

// GetOrCreate returns the organization's quota row, inserting defaults on first use
func (q *QuotaEnforcer) GetOrCreate(ctx context.Context, orgID string) (*db.OrganizationQuota, error) {
	if orgID == "" {
		return nil, invalid("organization id is required")
	}

	quota, err := q.quotas.Get(ctx, orgID)
	if err == nil {
		return quota, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}
	if err := requireOrganization(ctx, q.orgs, orgID); err != nil {
		return nil, err
	}

	quota, err = q.quotas.Create(ctx, &db.OrganizationQuota{
		OrganizationID:     orgID,
		MaxContextItems:    q.defaults.ContextItems,
		MaxGlobalAccess:    q.defaults.GlobalAccess,
		MaxSharingRequests: q.defaults.SharingRequests,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create quota: %w", err)
	}

	q.logger.WithField("org_id", orgID).Info("Created default quota")
	return quota, nil
}

// Check reports whether qty more units fit. It does not reserve them.
func (q *QuotaEnforcer) Check(ctx context.Context, orgID string, quotaType db.QuotaType, qty int) (*QuotaCheck, error) {
	if qty <= 0 {
		return nil, invalid("quantity must be positive, got %d", qty)
	}
	if !quotaType.Valid() {
		return nil, invalid("unknown quota type %q", quotaType)
	}

	quota, err := q.GetOrCreate(ctx, orgID)
	if err != nil {
		return nil, err
	}

	current, limit := quota.Usage(quotaType)
	return &QuotaCheck{
		OrganizationID: orgID,
		QuotaType:      quotaType,
		Current:        current,
		Limit:          limit,
		Requested:      qty,
		Remaining:      limit - current,
		QuotaExceeded:  current+qty > limit,
	}, nil
}

// UpdateUsage moves a counter without checking the ceiling.
// Decrements clamp at zero. The row must already exist.
func (q *QuotaEnforcer) UpdateUsage(ctx context.Context, orgID string, quotaType db.QuotaType, direction db.QuotaDirection, qty int) (*db.OrganizationQuota, error) {
	if orgID == "" {
		return nil, invalid("organization id is required")
	}
	if qty <= 0 {
		return nil, invalid("quantity must be positive, got %d", qty)
	}
	if !quotaType.Valid() {
		return nil, invalid("unknown quota type %q", quotaType)
	}

	delta := qty
	switch direction {
	case db.QuotaIncrement:
	case db.QuotaDecrement:
		delta = -qty
	default:
		return nil, invalid("unknown direction %q", direction)
	}

	quota, err := q.quotas.Adjust(ctx, orgID, quotaType, delta)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: no quota for organization %s", ErrNotFound, orgID)
		}
		return nil, fmt.Errorf("failed to update quota usage: %w", err)
	}
	return quota, nil
}

// Reset zeroes one counter, or all three when quotaType is nil
func (q *QuotaEnforcer) Reset(ctx context.Context, orgID string, quotaType *db.QuotaType) (*db.OrganizationQuota, error) {
	types := db.QuotaTypes
	if quotaType != nil {
		if !quotaType.Valid() {
			return nil, invalid("unknown quota type %q", *quotaType)
		}
		types = []db.QuotaType{*quotaType}
	}

	if _, err := q.GetOrCreate(ctx, orgID); err != nil {
		return nil, err
	}

	quota, err := q.quotas.Reset(ctx, orgID, types)
	if err != nil {
		return nil, fmt.Errorf("failed to reset quota: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"org_id": orgID,
		"types":  types,
	}).Info("Quota usage reset")
	return quota, nil
}

// Reserve atomically takes qty units, or returns *QuotaExceededError
func (q *QuotaEnforcer) Reserve(ctx context.Context, orgID string, quotaType db.QuotaType, qty int) (*db.OrganizationQuota, error) {
	if qty <= 0 {
		return nil, invalid("quantity must be positive, got %d", qty)
	}
	if !quotaType.Valid() {
		return nil, invalid("unknown quota type %q", quotaType)
	}

	if _, err := q.GetOrCreate(ctx, orgID); err != nil {
		return nil, err
	}

	quota, err := q.quotas.Reserve(ctx, orgID, quotaType, qty)
	if errors.Is(err, store.ErrLimitReached) {
		current, limit := 0, 0
		if quota != nil {
			current, limit = quota.Usage(quotaType)
		}
		q.metrics.QuotaDenied(string(quotaType))
		q.logger.WithFields(logrus.Fields{
			"org_id":    orgID,
			"type":      quotaType,
			"current":   current,
			"limit":     limit,
			"requested": qty,
		}).Warn("QUOTA EXCEEDED - reservation refused")
		return nil, &QuotaExceededError{
			OrganizationID: orgID,
			Resource:       quotaType,
			Current:        current,
			Limit:          limit,
			Requested:      qty,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve quota: %w", err)
	}
	return quota, nil
}

// Release returns qty units taken by Reserve. Failures are logged, not returned.
func (q *QuotaEnforcer) Release(ctx context.Context, orgID string, quotaType db.QuotaType, qty int) {
	if _, err := q.UpdateUsage(ctx, orgID, quotaType, db.QuotaDecrement, qty); err != nil {
		q.logger.WithError(err).WithFields(logrus.Fields{
			"org_id": orgID,
			"type":   quotaType,
			"qty":    qty,
		}).Error("Failed to release quota")
	}
}

// SetLimits changes ceilings; nil limits are left unchanged
func (q *QuotaEnforcer) SetLimits(ctx context.Context, orgID string, limits db.QuotaLimits) (*db.OrganizationQuota, error) {
	for name, limit := range map[string]*int{
		"max_context_items":    limits.MaxContextItems,
		"max_global_access":    limits.MaxGlobalAccess,
		"max_sharing_requests": limits.MaxSharingRequests,
	} {
		if limit != nil && *limit < 0 {
			return nil, invalid("%s cannot be negative", name)
		}
	}

	if _, err := q.GetOrCreate(ctx, orgID); err != nil {
		return nil, err
	}

	quota, err := q.quotas.UpdateLimits(ctx, orgID, limits)
	if err != nil {
		return nil, fmt.Errorf("failed to update quota limits: %w", err)
	}
	return quota, nil
}
