// Package authz provides role- and organization-scoped capability checks.
// This package follows the same split as the rest of the service:
// - Caller: request-scoped identity, passed explicitly to every mutation
// - Capability matrix: which role may do what, and in which organizations
// - PermissionChecker: matrix checks plus feature-usage resolution
// - Middleware: gin glue that authenticates and gates routes
package authz

// Role represents a user's platform role
type Role string

const (
	RoleSystemAdmin Role = "system_admin" // Any organization
	RoleOrgAdmin    Role = "org_admin"    // Manages its own organization
	RoleMember      Role = "member"       // Works inside its own organization
	RoleViewer      Role = "viewer"       // Read-only inside its own organization
)

// Capability is an operation class gated by the matrix
type Capability string

const (
	CapManageFeatures  Capability = "manage_rag_features"
	CapViewFeatures    Capability = "view_rag_features"
	CapUseFeatures     Capability = "use_rag_features"
	CapAccessHierarchy Capability = "access_organization_hierarchy"
	CapManageContent   Capability = "manage_context_items"
	CapViewContent     Capability = "view_context_items"
	CapViewQuotas      Capability = "view_quotas"
	CapManageQuotas    Capability = "manage_quotas"
	CapManageHierarchy Capability = "manage_organization_hierarchy"
)

// Scope tells in which organizations a capability applies
type Scope int

const (
	ScopeNone   Scope = iota // never
	ScopeOwnOrg              // only the caller's own organization
	ScopeAny                 // every organization
)

// Caller is the authenticated identity behind a request
type Caller struct {
	UserID         string `json:"user_id"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organization_id"`
}

// IsSystemAdmin reports whether the caller holds the platform-wide role
func (c Caller) IsSystemAdmin() bool {
	return c.Role == RoleSystemAdmin
}

// Capabilities defines each role's scope per capability
var Capabilities = map[Role]map[Capability]Scope{
	RoleSystemAdmin: {
		CapManageFeatures:  ScopeAny,
		CapViewFeatures:    ScopeAny,
		CapUseFeatures:     ScopeAny,
		CapAccessHierarchy: ScopeAny,
		CapManageContent:   ScopeAny,
		CapViewContent:     ScopeAny,
		CapViewQuotas:      ScopeAny,
		CapManageQuotas:    ScopeAny,
		CapManageHierarchy: ScopeAny,
	},
	RoleOrgAdmin: {
		CapManageFeatures:  ScopeOwnOrg,
		CapViewFeatures:    ScopeAny,
		CapUseFeatures:     ScopeOwnOrg,
		CapAccessHierarchy: ScopeOwnOrg,
		CapManageContent:   ScopeOwnOrg,
		CapViewContent:     ScopeOwnOrg,
		CapViewQuotas:      ScopeOwnOrg,
		CapManageQuotas:    ScopeNone,
	},
	RoleMember: {
		CapManageFeatures:  ScopeNone,
		CapViewFeatures:    ScopeOwnOrg,
		CapUseFeatures:     ScopeOwnOrg,
		CapAccessHierarchy: ScopeNone,
		CapManageContent:   ScopeOwnOrg,
		CapViewContent:     ScopeOwnOrg,
		CapViewQuotas:      ScopeOwnOrg,
		CapManageQuotas:    ScopeNone,
	},
	RoleViewer: {
		CapManageFeatures:  ScopeNone,
		CapViewFeatures:    ScopeOwnOrg,
		CapUseFeatures:     ScopeOwnOrg,
		CapAccessHierarchy: ScopeNone,
		CapManageContent:   ScopeNone,
		CapViewContent:     ScopeOwnOrg,
		CapViewQuotas:      ScopeOwnOrg,
		CapManageQuotas:    ScopeNone,
	},
}

// unknownRoleScopes applies to roles missing from the matrix
var unknownRoleScopes = map[Capability]Scope{
	CapViewFeatures: ScopeOwnOrg,
	CapUseFeatures:  ScopeOwnOrg,
}

// ScopeOf returns the role's scope for a capability
func ScopeOf(role Role, capability Capability) Scope {
	if roleScopes, ok := Capabilities[role]; ok {
		return roleScopes[capability]
	}
	return unknownRoleScopes[capability]
}

// Allows checks if the caller may exercise capability on orgID
func Allows(caller Caller, capability Capability, orgID string) bool {
	switch ScopeOf(caller.Role, capability) {
	case ScopeAny:
		return true
	case ScopeOwnOrg:
		return orgID != "" && caller.OrganizationID == orgID
	default:
		return false
	}
}
