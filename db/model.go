package db

import "time"

// ===========================
// ORGANIZATION MODELS
// ===========================

// Organization is a tenant. Organizations form a tree through ParentOrganizationID.
type Organization struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	ParentOrganizationID *string   `json:"parent_organization_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// HasParent reports whether the organization has a parent link
func (o *Organization) HasParent() bool {
	return o.ParentOrganizationID != nil && *o.ParentOrganizationID != ""
}

// ChainEntry is one element of an ancestor chain
type ChainEntry struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	ParentOrganizationID *string `json:"parent_organization_id,omitempty"`
}

// Hierarchy is an organization's ancestor chain, nearest first: [org, parent, ..., root]
type Hierarchy struct {
	OrganizationID string       `json:"organization_id"`
	Chain          []ChainEntry `json:"chain"`
	Depth          int          `json:"depth"`
}

// Ancestors returns the chain without the organization itself
func (h *Hierarchy) Ancestors() []ChainEntry {
	if len(h.Chain) <= 1 {
		return nil
	}
	return h.Chain[1:]
}

// NameOf returns the name of an organization in the chain, or "" when absent
func (h *Hierarchy) NameOf(orgID string) string {
	for _, entry := range h.Chain {
		if entry.ID == orgID {
			return entry.Name
		}
	}
	return ""
}

// ===========================
// FEATURE MODELS
// ===========================

// RAGFeature is a catalog entry for a toggleable AI feature
type RAGFeature struct {
	Key            string `json:"key"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Category       string `json:"category,omitempty"`
	DefaultEnabled bool   `json:"default_enabled"`
}

// FeatureToggle is an explicit per-organization override.
// Absence of a row means the feature is not configured at that level.
type FeatureToggle struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	RAGFeature     string    `json:"rag_feature"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// InheritanceSource tells where an effective feature state comes from
type InheritanceSource string

const (
	SourceExplicit      InheritanceSource = "explicit"
	SourceInherited     InheritanceSource = "inherited"
	SourceNotConfigured InheritanceSource = "not_configured"
)

// FeatureStatus is the resolved state reported by override lookups
type FeatureStatus string

const (
	StatusEnabled       FeatureStatus = "enabled"
	StatusDisabled      FeatureStatus = "disabled"
	StatusNotConfigured FeatureStatus = "not_configured"
)

// StatusOf maps a toggle value to a FeatureStatus
func StatusOf(enabled bool) FeatureStatus {
	if enabled {
		return StatusEnabled
	}
	return StatusDisabled
}

// EffectiveFeature is a computed (never persisted) feature state
type EffectiveFeature struct {
	RAGFeature        string            `json:"rag_feature"`
	Enabled           bool              `json:"enabled"`
	IsInherited       bool              `json:"is_inherited"`
	InheritedFrom     *string           `json:"inherited_from,omitempty"`
	InheritanceSource InheritanceSource `json:"inheritance_source,omitempty"`
	CanOverride       bool              `json:"can_override"`
	OverrideReason    string            `json:"override_reason,omitempty"`
}

// ===========================
// QUOTA MODELS
// ===========================

// QuotaType names a tracked per-organization resource
type QuotaType string

const (
	QuotaContextItems    QuotaType = "context_items"
	QuotaGlobalAccess    QuotaType = "global_access"
	QuotaSharingRequests QuotaType = "sharing_requests"
)

// QuotaTypes lists every tracked resource
var QuotaTypes = []QuotaType{QuotaContextItems, QuotaGlobalAccess, QuotaSharingRequests}

// Valid reports whether the quota type is known
func (q QuotaType) Valid() bool {
	switch q {
	case QuotaContextItems, QuotaGlobalAccess, QuotaSharingRequests:
		return true
	}
	return false
}

// QuotaDirection is the direction of a usage update
type QuotaDirection string

const (
	QuotaIncrement QuotaDirection = "increment"
	QuotaDecrement QuotaDirection = "decrement"
)

// OrganizationQuota holds the max/current counter pairs for an organization.
// current <= max is a soft invariant kept by conditional updates.
type OrganizationQuota struct {
	OrganizationID         string    `json:"organization_id"`
	MaxContextItems        int       `json:"max_context_items"`
	CurrentContextItems    int       `json:"current_context_items"`
	MaxGlobalAccess        int       `json:"max_global_access"`
	CurrentGlobalAccess    int       `json:"current_global_access"`
	MaxSharingRequests     int       `json:"max_sharing_requests"`
	CurrentSharingRequests int       `json:"current_sharing_requests"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Usage returns the (current, max) pair for a quota type
func (q *OrganizationQuota) Usage(t QuotaType) (current, max int) {
	switch t {
	case QuotaContextItems:
		return q.CurrentContextItems, q.MaxContextItems
	case QuotaGlobalAccess:
		return q.CurrentGlobalAccess, q.MaxGlobalAccess
	case QuotaSharingRequests:
		return q.CurrentSharingRequests, q.MaxSharingRequests
	}
	return 0, 0
}

// SetCurrent overwrites the current counter for a quota type
func (q *OrganizationQuota) SetCurrent(t QuotaType, value int) {
	switch t {
	case QuotaContextItems:
		q.CurrentContextItems = value
	case QuotaGlobalAccess:
		q.CurrentGlobalAccess = value
	case QuotaSharingRequests:
		q.CurrentSharingRequests = value
	}
}

// QuotaLimits carries ceilings for SetLimits; nil fields are left unchanged
type QuotaLimits struct {
	MaxContextItems    *int `json:"max_context_items,omitempty"`
	MaxGlobalAccess    *int `json:"max_global_access,omitempty"`
	MaxSharingRequests *int `json:"max_sharing_requests,omitempty"`
}

// ===========================
// SHARING MODELS
// ===========================

// SharingType describes how an item is offered across tenants
type SharingType string

const (
	SharingReadOnly      SharingType = "read_only"
	SharingCollaborative SharingType = "collaborative"
	SharingHierarchyDown SharingType = "hierarchy_down"
	SharingHierarchyUp   SharingType = "hierarchy_up"
)

// Valid reports whether the sharing type is known
func (t SharingType) Valid() bool {
	switch t {
	case SharingReadOnly, SharingCollaborative, SharingHierarchyDown, SharingHierarchyUp:
		return true
	}
	return false
}

// SharingStatus is the state of a sharing request.
// pending is initial; approved and rejected are terminal.
type SharingStatus string

const (
	SharingPending  SharingStatus = "pending"
	SharingApproved SharingStatus = "approved"
	SharingRejected SharingStatus = "rejected"
)

// Terminal reports whether no further transition is allowed
func (s SharingStatus) Terminal() bool {
	return s == SharingApproved || s == SharingRejected
}

// SharingRequest is a proposed copy of a context item into another organization
type SharingRequest struct {
	ID                   string        `json:"id"`
	SourceOrganizationID string        `json:"source_organization_id"`
	TargetOrganizationID string        `json:"target_organization_id"`
	RAGFeature           string        `json:"rag_feature"`
	ItemID               string        `json:"item_id"`
	SharingType          SharingType   `json:"sharing_type"`
	Status               SharingStatus `json:"status"`
	SharedBy             string        `json:"shared_by"`
	ApprovedBy           *string       `json:"approved_by,omitempty"`
	RejectedBy           *string       `json:"rejected_by,omitempty"`
	RejectionReason      *string       `json:"rejection_reason,omitempty"`
	CopiedItemID         *string       `json:"copied_item_id,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	ResolvedAt           *time.Time    `json:"resolved_at,omitempty"`
}

// SharingKey is the duplicate-detection tuple of a pending request
type SharingKey struct {
	SourceOrganizationID string
	TargetOrganizationID string
	RAGFeature           string
	ItemID               string
}

// Key returns the duplicate-detection tuple of the request
func (r *SharingRequest) Key() SharingKey {
	return SharingKey{
		SourceOrganizationID: r.SourceOrganizationID,
		TargetOrganizationID: r.TargetOrganizationID,
		RAGFeature:           r.RAGFeature,
		ItemID:               r.ItemID,
	}
}

// SharingStats are per-organization sharing counters
type SharingStats struct {
	OrganizationID   string `json:"organization_id"`
	OutgoingShares   int    `json:"outgoing_shares"`
	IncomingShares   int    `json:"incoming_shares"`
	PendingApprovals int    `json:"pending_approvals"`
}

// ===========================
// CONTEXT ITEM MODELS
// ===========================

// ContextItem is organization-owned knowledge-base content.
// Approved shares produce an independent copy with SourceItemID set.
type ContextItem struct {
	ID                   string                 `json:"id"`
	OrganizationID       string                 `json:"organization_id"`
	RAGFeature           string                 `json:"rag_feature"`
	ItemType             string                 `json:"item_type"`
	Title                string                 `json:"title"`
	Content              string                 `json:"content"`
	Confidence           float64                `json:"confidence"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	SourceItemID         *string                `json:"source_item_id,omitempty"`
	SourceOrganizationID *string                `json:"source_organization_id,omitempty"`
	CreatedBy            string                 `json:"created_by"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

// GlobalContextItem is content visible to organizations holding a grant
type GlobalContextItem struct {
	ID         string    `json:"id"`
	RAGFeature string    `json:"rag_feature"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// GlobalAccessGrant gives an organization access to one global item
type GlobalAccessGrant struct {
	OrganizationID string    `json:"organization_id"`
	GlobalItemID   string    `json:"global_item_id"`
	GrantedBy      string    `json:"granted_by"`
	CreatedAt      time.Time `json:"created_at"`
}
