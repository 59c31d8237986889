package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phonginreallife/enablement/authz"
	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/internal/cache"
	"github.com/phonginreallife/enablement/internal/config"
	"github.com/phonginreallife/enablement/internal/observability"
	"github.com/phonginreallife/enablement/store/storetest"
)

const testSecret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
}

type apiFixture struct {
	mem    *storetest.Memory
	engine *gin.Engine
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := storetest.New()
	mem.AddOrganization("parent", "Parent Org", "")
	mem.AddOrganization("child", "Child Org", "parent")
	mem.AddOrganization("sibling", "Sibling Org", "parent")
	mem.AddFeature("kb", false)
	mem.AddFeature("search", true)
	mem.AddFeature("summarize", false)

	registry := prometheus.NewRegistry()
	engine := NewGinRouter(Deps{
		Store:     mem.Store(),
		Cache:     cache.NewMemoryCache(64, 0),
		Health:    observability.NewHealthChecker(nil, nil),
		Registry:  registry,
		Metrics:   observability.NewMetrics(registry),
		Logger:    observability.NewNopLogger(),
		JWTSecret: testSecret,
		Quotas:    config.QuotaDefaults{ContextItems: 100, GlobalAccess: 5, SharingRequests: 10},
		MaxDepth:  8,
	})
	return &apiFixture{mem: mem, engine: engine}
}

func token(t *testing.T, role authz.Role, orgID string) string {
	t.Helper()
	claims := authz.Claims{
		Role:           string(role),
		OrganizationID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: string(role) + "-" + orgID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path, bearer string, body interface{}) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func TestRouter_PublicEndpoints(t *testing.T) {
	f := newAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		f.engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouter_Authentication(t *testing.T) {
	f := newAPI(t)

	code, env := f.do(t, http.MethodGet, "/orgs/child/features/effective", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)

	code, _ = f.do(t, http.MethodGet, "/orgs/child/features/effective", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRouter_ReadCapabilities(t *testing.T) {
	tests := []struct {
		name   string
		role   authz.Role
		org    string
		path   string
		status int
	}{
		{"member reads own features", authz.RoleMember, "child", "/orgs/child/features/resolved", http.StatusOK},
		{"member cannot read other org", authz.RoleMember, "sibling", "/orgs/child/features/resolved", http.StatusForbidden},
		{"org admin reads any org features", authz.RoleOrgAdmin, "sibling", "/orgs/child/features/effective", http.StatusOK},
		{"member cannot see hierarchy", authz.RoleMember, "child", "/orgs/child/hierarchy", http.StatusForbidden},
		{"org admin sees own hierarchy", authz.RoleOrgAdmin, "child", "/orgs/child/hierarchy", http.StatusOK},
		{"org admin cannot reset quotas", authz.RoleOrgAdmin, "child", "/orgs/child/quotas/reset", http.StatusForbidden},
		{"system admin gets unknown chain", authz.RoleSystemAdmin, "", "/orgs/ghost/hierarchy", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPI(t)
			method := http.MethodGet
			if tt.path == "/orgs/child/quotas/reset" {
				method = http.MethodPost
			}
			code, _ := f.do(t, method, tt.path, token(t, tt.role, tt.org), nil)
			assert.Equal(t, tt.status, code)
		})
	}
}

func TestRouter_ContentReadsStayInsideTenant(t *testing.T) {
	tests := []struct {
		name   string
		role   authz.Role
		org    string
		path   string
		status int
	}{
		{"org admin lists own items", authz.RoleOrgAdmin, "parent", "/orgs/parent/context-items", http.StatusOK},
		{"org admin cannot list other org items", authz.RoleOrgAdmin, "sibling", "/orgs/parent/context-items", http.StatusForbidden},
		{"viewer lists own items", authz.RoleViewer, "parent", "/orgs/parent/context-items", http.StatusOK},
		{"system admin lists any items", authz.RoleSystemAdmin, "", "/orgs/parent/context-items", http.StatusOK},
		{"org admin cannot list other org grants", authz.RoleOrgAdmin, "sibling", "/orgs/parent/global-access", http.StatusForbidden},
		{"org admin cannot read other org received", authz.RoleOrgAdmin, "sibling", "/orgs/parent/sharing/received", http.StatusForbidden},
		{"org admin cannot read other org pending", authz.RoleOrgAdmin, "sibling", "/orgs/parent/sharing/pending-approvals", http.StatusForbidden},
		{"org admin cannot read other org outgoing", authz.RoleOrgAdmin, "sibling", "/orgs/parent/sharing/outgoing", http.StatusForbidden},
		{"org admin cannot read other org stats", authz.RoleOrgAdmin, "sibling", "/orgs/parent/sharing/stats", http.StatusForbidden},
		{"member reads own stats", authz.RoleMember, "parent", "/orgs/parent/sharing/stats", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPI(t)
			f.mem.AddItem("runbook-1", "parent", "kb", "Parent runbook")

			code, env := f.do(t, http.MethodGet, tt.path, token(t, tt.role, tt.org), nil)
			assert.Equal(t, tt.status, code, env.Error)
			if code == http.StatusForbidden {
				assert.False(t, env.Success)
				assert.NotContains(t, string(env.Data), "Parent runbook")
			}
		})
	}
}

func TestRouter_FeatureToggles(t *testing.T) {
	f := newAPI(t)
	f.mem.SetToggle("parent", "kb", false)
	admin := token(t, authz.RoleOrgAdmin, "child")

	t.Run("blocked by ancestor", func(t *testing.T) {
		code, env := f.do(t, http.MethodPatch, "/orgs/child/features/kb", admin, gin.H{"enabled": true})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "conflict", env.Kind)
		assert.Contains(t, env.Error, "Parent Org")
	})

	t.Run("missing enabled", func(t *testing.T) {
		code, _ := f.do(t, http.MethodPatch, "/orgs/child/features/kb", admin, gin.H{})
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("unknown feature", func(t *testing.T) {
		code, env := f.do(t, http.MethodPatch, "/orgs/child/features/ghost", admin, gin.H{"enabled": true})
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "not_found", env.Kind)
	})

	t.Run("other organization", func(t *testing.T) {
		code, env := f.do(t, http.MethodPatch, "/orgs/sibling/features/summarize", admin, gin.H{"enabled": true})
		assert.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, "permission_denied", env.Kind)
	})

	t.Run("enable then resolve", func(t *testing.T) {
		code, env := f.do(t, http.MethodPatch, "/orgs/child/features/summarize", admin, gin.H{"enabled": true})
		require.Equal(t, http.StatusOK, code, env.Error)

		code, env = f.do(t, http.MethodGet, "/orgs/child/features/enabled", admin, nil)
		require.Equal(t, http.StatusOK, code)
		var enabled struct {
			Features []string `json:"features"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &enabled))
		assert.Equal(t, []string{"search", "summarize"}, enabled.Features)
	})

	t.Run("bulk reports each feature", func(t *testing.T) {
		code, env := f.do(t, http.MethodPost, "/orgs/child/features/bulk", admin, gin.H{
			"toggles": map[string]bool{"kb": true, "search": false},
		})
		require.Equal(t, http.StatusOK, code)

		var results []struct {
			RAGFeature string `json:"rag_feature"`
			Success    bool   `json:"success"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &results))
		require.Len(t, results, 2)
		assert.Equal(t, "kb", results[0].RAGFeature)
		assert.False(t, results[0].Success)
		assert.Equal(t, "search", results[1].RAGFeature)
		assert.True(t, results[1].Success)
	})
}

func TestRouter_WritesToUnknownOrganization(t *testing.T) {
	f := newAPI(t)
	root := token(t, authz.RoleSystemAdmin, "")

	code, env := f.do(t, http.MethodPatch, "/orgs/ghost/features/kb", root, gin.H{"enabled": false})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Kind)

	code, env = f.do(t, http.MethodGet, "/orgs/ghost/features", root, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.JSONEq(t, `[]`, string(env.Data))

	code, env = f.do(t, http.MethodGet, "/orgs/ghost/quotas", root, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Kind)
}

func TestRouter_FeatureAccess(t *testing.T) {
	f := newAPI(t)
	f.mem.SetToggle("child", "kb", true)

	tests := []struct {
		name    string
		role    authz.Role
		org     string
		feature string
		allowed bool
	}{
		{"explicit toggle", authz.RoleMember, "child", "kb", true},
		{"catalog default", authz.RoleMember, "child", "search", true},
		{"default off", authz.RoleMember, "child", "summarize", false},
		{"outside own org", authz.RoleMember, "sibling", "kb", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := f.do(t, http.MethodGet, "/orgs/child/features/"+tt.feature+"/access", token(t, tt.role, tt.org), nil)
			require.Equal(t, http.StatusOK, code)

			var access struct {
				Allowed bool `json:"allowed"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &access))
			assert.Equal(t, tt.allowed, access.Allowed)
		})
	}
}

func TestRouter_SharingFlow(t *testing.T) {
	f := newAPI(t)
	f.mem.AddItem("item-1", "parent", "kb", "Runbook")
	parentAdmin := token(t, authz.RoleOrgAdmin, "parent")
	childAdmin := token(t, authz.RoleOrgAdmin, "child")

	code, env := f.do(t, http.MethodPost, "/orgs/parent/sharing/share", parentAdmin, gin.H{
		"target_organization_id": "child",
		"rag_feature":            "kb",
		"item_id":                "item-1",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)

	var created db.SharingRequest
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, db.SharingPending, created.Status)

	code, env = f.do(t, http.MethodPost, "/orgs/parent/sharing/share", parentAdmin, gin.H{
		"target_organization_id": "child",
		"rag_feature":            "kb",
		"item_id":                "item-1",
	})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = f.do(t, http.MethodPost, "/sharing/"+created.ID+"/approve", parentAdmin, nil)
	assert.Equal(t, http.StatusForbidden, code, "only the target may approve")

	code, env = f.do(t, http.MethodGet, "/orgs/child/sharing/pending-approvals", childAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	var pending []db.SharingRequest
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.Len(t, pending, 1)

	code, env = f.do(t, http.MethodPost, "/sharing/"+created.ID+"/approve", childAdmin, nil)
	require.Equal(t, http.StatusOK, code, env.Error)

	var approved struct {
		Request    db.SharingRequest `json:"request"`
		CopiedItem db.ContextItem    `json:"copied_item"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &approved))
	assert.Equal(t, db.SharingApproved, approved.Request.Status)
	assert.Equal(t, "child", approved.CopiedItem.OrganizationID)
	assert.Equal(t, "Runbook", approved.CopiedItem.Title)

	code, env = f.do(t, http.MethodPost, "/sharing/"+created.ID+"/reject", childAdmin, gin.H{"reason": "late"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", env.Kind)

	code, env = f.do(t, http.MethodPost, "/sharing/missing/approve", childAdmin, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRouter_ShareToChildren(t *testing.T) {
	f := newAPI(t)
	f.mem.AddItem("item-1", "parent", "kb", "Runbook")

	code, env := f.do(t, http.MethodPost, "/orgs/parent/sharing/children", token(t, authz.RoleOrgAdmin, "parent"), gin.H{
		"rag_feature": "kb",
		"item_id":     "item-1",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)

	var result struct {
		SharedCount int `json:"shared_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 2, result.SharedCount)
}

func TestRouter_MoveOrganization(t *testing.T) {
	f := newAPI(t)
	sibling := "sibling"
	child := "child"

	code, _ := f.do(t, http.MethodPut, "/orgs/child/parent", token(t, authz.RoleOrgAdmin, "child"), gin.H{
		"parent_organization_id": sibling,
	})
	assert.Equal(t, http.StatusForbidden, code)

	root := token(t, authz.RoleSystemAdmin, "")
	code, env := f.do(t, http.MethodPut, "/orgs/parent/parent", root, gin.H{"parent_organization_id": child})
	assert.Equal(t, http.StatusBadRequest, code, "moving under a descendant is a cycle")
	assert.Equal(t, "validation", env.Kind)

	code, env = f.do(t, http.MethodPut, "/orgs/child/parent", root, gin.H{"parent_organization_id": sibling})
	require.Equal(t, http.StatusOK, code, env.Error)

	var chain db.Hierarchy
	require.NoError(t, json.Unmarshal(env.Data, &chain))
	assert.Equal(t, 2, chain.Depth)
	assert.Equal(t, "sibling", chain.Chain[1].ID)
}

func TestRouter_Quotas(t *testing.T) {
	f := newAPI(t)
	admin := token(t, authz.RoleOrgAdmin, "child")

	code, env := f.do(t, http.MethodPost, "/orgs/child/quotas/check", admin, gin.H{
		"quota_type": "global_access",
		"quantity":   6,
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	var check struct {
		Limit         int  `json:"limit"`
		QuotaExceeded bool `json:"quota_exceeded"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.Equal(t, 5, check.Limit)
	assert.True(t, check.QuotaExceeded)

	code, _ = f.do(t, http.MethodPost, "/orgs/child/quotas/check", admin, gin.H{
		"quota_type": "global_access",
		"quantity":   0,
	})
	assert.Equal(t, http.StatusBadRequest, code)

	root := token(t, authz.RoleSystemAdmin, "")
	code, env = f.do(t, http.MethodPut, "/orgs/child/quotas/limits", root, gin.H{"max_context_items": -1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation", env.Kind)
}

func TestRouter_ContextItemQuota(t *testing.T) {
	f := newAPI(t)
	f.mem.SetQuota(db.OrganizationQuota{
		OrganizationID:     "child",
		MaxContextItems:    1,
		MaxGlobalAccess:    5,
		MaxSharingRequests: 10,
	})
	writer := token(t, authz.RoleMember, "child")

	code, env := f.do(t, http.MethodPost, "/orgs/child/context-items", writer, gin.H{
		"rag_feature": "kb",
		"title":       "First",
		"content":     "body",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, env = f.do(t, http.MethodPost, "/orgs/child/context-items", writer, gin.H{
		"rag_feature": "kb",
		"title":       "Second",
		"content":     "body",
	})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "quota_exceeded", env.Kind)
}
