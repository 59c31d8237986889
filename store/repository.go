// Package store holds the typed repositories behind the enablement core.
// Repositories are pure data access: no authorization, no business rules.
package store

import (
	"context"
	"errors"

	"github.com/phonginreallife/enablement/db"
)

// Common errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("resource already exists")
	ErrStaleState   = errors.New("resource is no longer in the expected state")
	ErrLimitReached = errors.New("quota limit reached")
)

// OrganizationRepo reads and re-parents organizations.
// Organizations are provisioned elsewhere; Create exists for provisioning tools and tests.
type OrganizationRepo interface {
	// Get retrieves an organization by ID
	Get(ctx context.Context, id string) (*db.Organization, error)

	// Create inserts an organization
	Create(ctx context.Context, org *db.Organization) error

	// ListChildren returns organizations whose parent is parentID
	ListChildren(ctx context.Context, parentID string) ([]db.Organization, error)

	// UpdateParent re-parents an organization (nil parent makes it a root)
	UpdateParent(ctx context.Context, id string, parentID *string) error
}

// FeatureCatalogRepo reads the RAG feature catalog
type FeatureCatalogRepo interface {
	List(ctx context.Context) ([]db.RAGFeature, error)
	Get(ctx context.Context, key string) (*db.RAGFeature, error)
}

// FeatureToggleRepo holds explicit per-organization toggle rows
type FeatureToggleRepo interface {
	// ListByOrg returns the organization's explicit rows ordered by feature
	ListByOrg(ctx context.Context, orgID string) ([]db.FeatureToggle, error)

	// Get returns one explicit row, ErrNotFound when not configured
	Get(ctx context.Context, orgID, feature string) (*db.FeatureToggle, error)

	// Upsert creates or updates the (organization, feature) row
	Upsert(ctx context.Context, toggle *db.FeatureToggle) error

	// Delete removes an explicit row
	Delete(ctx context.Context, orgID, feature string) error
}

// QuotaRepo holds per-organization quota counters
type QuotaRepo interface {
	// Get returns the quota row, ErrNotFound when none exists yet
	Get(ctx context.Context, orgID string) (*db.OrganizationQuota, error)

	// Create inserts the row if absent and returns whichever row is stored
	Create(ctx context.Context, quota *db.OrganizationQuota) (*db.OrganizationQuota, error)

	// Adjust adds delta to one counter, never going below zero
	Adjust(ctx context.Context, orgID string, quotaType db.QuotaType, delta int) (*db.OrganizationQuota, error)

	// Reserve atomically adds qty to one counter only if the result stays within max.
	// It returns ErrLimitReached (with the current row) when the ceiling would be crossed.
	Reserve(ctx context.Context, orgID string, quotaType db.QuotaType, qty int) (*db.OrganizationQuota, error)

	// Reset zeroes the named counters
	Reset(ctx context.Context, orgID string, quotaTypes []db.QuotaType) (*db.OrganizationQuota, error)

	// UpdateLimits changes ceilings; nil limits are left unchanged
	UpdateLimits(ctx context.Context, orgID string, limits db.QuotaLimits) (*db.OrganizationQuota, error)
}

// SharingRequestRepo holds cross-tenant sharing requests
type SharingRequestRepo interface {
	// Create inserts a request; ErrDuplicate when an identical pending request exists
	Create(ctx context.Context, req *db.SharingRequest) error

	// CreateBatch inserts all requests in one transaction, or none
	CreateBatch(ctx context.Context, reqs []*db.SharingRequest) error

	Get(ctx context.Context, id string) (*db.SharingRequest, error)

	// FindPending returns the pending request for the tuple, ErrNotFound if none
	FindPending(ctx context.Context, key db.SharingKey) (*db.SharingRequest, error)

	// Resolve moves a pending request to a terminal status.
	// ErrStaleState when the request is no longer pending.
	Resolve(ctx context.Context, id string, status db.SharingStatus, actor string, reason *string) (*db.SharingRequest, error)

	// SetCopiedItem records the id of the copy produced by approval
	SetCopiedItem(ctx context.Context, id, itemID string) error

	// ListIncoming returns requests targeting orgID; empty status means any
	ListIncoming(ctx context.Context, orgID string, status db.SharingStatus) ([]db.SharingRequest, error)

	ListOutgoing(ctx context.Context, orgID string) ([]db.SharingRequest, error)

	CountOutgoing(ctx context.Context, orgID string) (int, error)

	// CountIncoming counts requests targeting orgID; empty status means any
	CountIncoming(ctx context.Context, orgID string, status db.SharingStatus) (int, error)
}

// ContextItemRepo holds organization-owned context items
type ContextItemRepo interface {
	Get(ctx context.Context, id string) (*db.ContextItem, error)
	Create(ctx context.Context, item *db.ContextItem) error

	// ListByOrg lists an organization's items, optionally filtered by feature
	ListByOrg(ctx context.Context, orgID, feature string) ([]db.ContextItem, error)

	Delete(ctx context.Context, orgID, id string) error
}

// GlobalAccessRepo holds global items and per-organization access grants
type GlobalAccessRepo interface {
	GetItem(ctx context.Context, id string) (*db.GlobalContextItem, error)
	Grant(ctx context.Context, grant *db.GlobalAccessGrant) error
	Revoke(ctx context.Context, orgID, globalItemID string) error
	ListGrants(ctx context.Context, orgID string) ([]db.GlobalAccessGrant, error)
}

// Store bundles every repository
type Store struct {
	Organizations OrganizationRepo
	Catalog       FeatureCatalogRepo
	Toggles       FeatureToggleRepo
	Quotas        QuotaRepo
	Sharing       SharingRequestRepo
	Items         ContextItemRepo
	Global        GlobalAccessRepo
}
