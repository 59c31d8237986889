package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phonginreallife/enablement/authz"
	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/internal/cache"
	"github.com/phonginreallife/enablement/internal/config"
	"github.com/phonginreallife/enablement/internal/observability"
	"github.com/phonginreallife/enablement/store/storetest"
)

var (
	systemAdmin = authz.Caller{UserID: "root-user", Role: authz.RoleSystemAdmin}
	testQuotas  = config.QuotaDefaults{ContextItems: 1000, GlobalAccess: 10, SharingRequests: 100}
)

func orgAdmin(orgID string) authz.Caller {
	return authz.Caller{UserID: "admin-" + orgID, Role: authz.RoleOrgAdmin, OrganizationID: orgID}
}

func member(orgID string) authz.Caller {
	return authz.Caller{UserID: "member-" + orgID, Role: authz.RoleMember, OrganizationID: orgID}
}

// recordingAudit keeps published events in memory
type recordingAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *recordingAudit) Publish(_ context.Context, event AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAudit) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	mem       *storetest.Memory
	audit     *recordingAudit
	cache     *cache.MemoryCache
	hierarchy *HierarchyResolver
	resolver  *InheritanceResolver
	toggles   *FeatureToggleService
	quotas    *QuotaEnforcer
	sharing   *SharingWorkflow
	items     *ContextItemService
	global    *GlobalAccessService
}

// newFixture seeds this tree:
//
//	parent (Parent Org)
//	├── child (Child Org)
//	│   └── grandchild (Grandchild Org)
//	└── sibling (Sibling Org)
//
// and the catalog kb (off by default), search (on by default), summarize (off).
func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := storetest.New()
	mem.AddOrganization("parent", "Parent Org", "")
	mem.AddOrganization("child", "Child Org", "parent")
	mem.AddOrganization("grandchild", "Grandchild Org", "child")
	mem.AddOrganization("sibling", "Sibling Org", "parent")
	mem.AddFeature("kb", false)
	mem.AddFeature("search", true)
	mem.AddFeature("summarize", false)

	repos := mem.Store()
	logger := observability.NewNopLogger()
	audit := &recordingAudit{}
	featureCache := cache.NewMemoryCache(64, time.Minute)

	checker := authz.NewPermissionChecker(repos.Toggles, repos.Catalog)
	hierarchy := NewHierarchyResolver(repos.Organizations, DefaultMaxDepth)
	resolver := NewInheritanceResolver(hierarchy, repos, featureCache, nil, logger)
	quotas := NewQuotaEnforcer(repos, testQuotas, nil, logger)

	return &fixture{
		mem:       mem,
		audit:     audit,
		cache:     featureCache,
		hierarchy: hierarchy,
		resolver:  resolver,
		toggles:   NewFeatureToggleService(checker, repos, resolver, audit, nil, logger),
		quotas:    quotas,
		sharing:   NewSharingWorkflow(checker, repos, quotas, audit, nil, logger),
		items:     NewContextItemService(checker, repos, quotas, audit, logger),
		global:    NewGlobalAccessService(checker, repos, quotas, audit, logger),
	}
}

func (f *fixture) usage(t *testing.T, orgID string, quotaType db.QuotaType) int {
	t.Helper()
	quota, err := f.quotas.GetOrCreate(context.Background(), orgID)
	if err != nil {
		t.Fatalf("get quota: %v", err)
	}
	current, _ := quota.Usage(quotaType)
	return current
}
