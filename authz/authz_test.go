package authz

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phonginreallife/enablement/store/storetest"
)

// ============================================================================
// Capability matrix Tests
// ============================================================================

func TestPermissionChecker_Matrix(t *testing.T) {
	checker := NewPermissionChecker(nil, nil)

	tests := []struct {
		name      string
		caller    Caller
		orgID     string
		manage    bool
		view      bool
		hierarchy bool
	}{
		{"system admin other org", Caller{"u1", RoleSystemAdmin, "org-a"}, "org-b", true, true, true},
		{"org admin own org", Caller{"u2", RoleOrgAdmin, "org-a"}, "org-a", true, true, true},
		{"org admin other org", Caller{"u2", RoleOrgAdmin, "org-a"}, "org-b", false, true, false},
		{"member own org", Caller{"u3", RoleMember, "org-a"}, "org-a", false, true, false},
		{"member other org", Caller{"u3", RoleMember, "org-a"}, "org-b", false, false, false},
		{"viewer own org", Caller{"u4", RoleViewer, "org-a"}, "org-a", false, true, false},
		{"unknown role own org", Caller{"u5", Role("auditor"), "org-a"}, "org-a", false, true, false},
		{"unknown role other org", Caller{"u5", Role("auditor"), "org-a"}, "org-b", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.manage, checker.CanManageRAGFeatures(tt.caller, tt.orgID), "manage")
			assert.Equal(t, tt.view, checker.CanViewRAGFeatures(tt.caller, tt.orgID), "view")
			assert.Equal(t, tt.hierarchy, checker.CanAccessOrganizationHierarchy(tt.caller, tt.orgID), "hierarchy")
		})
	}
}

func TestAllows_ViewContent(t *testing.T) {
	tests := []struct {
		name   string
		caller Caller
		orgID  string
		want   bool
	}{
		{"system admin other org", Caller{"u1", RoleSystemAdmin, ""}, "org-b", true},
		{"org admin own org", Caller{"u2", RoleOrgAdmin, "org-a"}, "org-a", true},
		{"org admin other org", Caller{"u2", RoleOrgAdmin, "org-a"}, "org-b", false},
		{"member own org", Caller{"u3", RoleMember, "org-a"}, "org-a", true},
		{"viewer own org", Caller{"u4", RoleViewer, "org-a"}, "org-a", true},
		{"viewer other org", Caller{"u4", RoleViewer, "org-a"}, "org-b", false},
		{"unknown role own org", Caller{"u5", Role("auditor"), "org-a"}, "org-a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allows(tt.caller, CapViewContent, tt.orgID))
		})
	}
}

func TestPermissionChecker_Require(t *testing.T) {
	checker := NewPermissionChecker(nil, nil)

	err := checker.Require(Caller{"u", RoleMember, "org-a"}, CapManageQuotas, "org-a")
	assert.True(t, errors.Is(err, ErrForbidden))

	assert.NoError(t, checker.Require(Caller{"u", RoleSystemAdmin, ""}, CapManageQuotas, "org-a"))

	// Re-parenting is reserved to system admins, even inside the caller's own organization
	assert.ErrorIs(t, checker.Require(Caller{"u", RoleOrgAdmin, "org-a"}, CapManageHierarchy, "org-a"), ErrForbidden)
	assert.NoError(t, checker.Require(Caller{"u", RoleSystemAdmin, "org-a"}, CapManageHierarchy, "org-b"))
}

func TestPermissionChecker_CanUseRAGFeature(t *testing.T) {
	mem := storetest.New()
	mem.AddFeature("kb", true)
	mem.AddFeature("coach", false)
	mem.SetToggle("org-a", "kb", false)
	repos := mem.Store()
	checker := NewPermissionChecker(repos.Toggles, repos.Catalog)
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  Caller
		feature string
		orgID   string
		want    bool
	}{
		{"explicit row wins over default", Caller{"u", RoleMember, "org-a"}, "kb", "org-a", false},
		{"catalog default enabled", Caller{"u", RoleMember, "org-b"}, "kb", "org-b", true},
		{"catalog default disabled", Caller{"u", RoleMember, "org-b"}, "coach", "org-b", false},
		{"unknown feature", Caller{"u", RoleMember, "org-b"}, "ghost", "org-b", false},
		{"other organization", Caller{"u", RoleOrgAdmin, "org-b"}, "kb", "org-c", false},
		{"system admin other organization", Caller{"u", RoleSystemAdmin, "org-b"}, "kb", "org-c", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checker.CanUseRAGFeature(ctx, tt.caller, tt.feature, tt.orgID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPermissionChecker_CanUseRAGFeature_StoreFailure(t *testing.T) {
	mem := storetest.New()
	repos := mem.Store()
	mem.Fail = errors.New("connection refused")
	checker := NewPermissionChecker(repos.Toggles, repos.Catalog)

	_, err := checker.CanUseRAGFeature(context.Background(), Caller{"u", RoleMember, "org-a"}, "kb", "org-a")
	assert.Error(t, err)
}

// ============================================================================
// Middleware Tests
// ============================================================================

const testSecret = "test-secret"

func signToken(t *testing.T, claims Claims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func newTestRouter() (*gin.Engine, *Middleware) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	mw := NewMiddleware(testSecret, logger)

	r := gin.New()
	api := r.Group("/api", mw.Authenticate())
	api.GET("/orgs/:org_id/features", mw.RequireCapability(CapViewFeatures), func(c *gin.Context) {
		caller, _ := CallerFrom(c)
		c.JSON(http.StatusOK, gin.H{"success": true, "data": caller.UserID})
	})
	api.PATCH("/orgs/:org_id/features", mw.RequireCapability(CapManageFeatures), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return r, mw
}

func TestMiddleware_Authenticate(t *testing.T) {
	router, _ := newTestRouter()
	valid := signToken(t, Claims{
		Role:           string(RoleMember),
		OrganizationID: "org-a",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, jwt.SigningMethodHS256, []byte(testSecret))
	expired := signToken(t, Claims{
		Role:           string(RoleMember),
		OrganizationID: "org-a",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}, jwt.SigningMethodHS256, []byte(testSecret))
	wrongKey := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}, jwt.SigningMethodHS256, []byte("other-secret"))

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"missing header", http.MethodGet, "/api/orgs/org-a/features", "", http.StatusUnauthorized},
		{"malformed header", http.MethodGet, "/api/orgs/org-a/features", "Token abc", http.StatusUnauthorized},
		{"expired token", http.MethodGet, "/api/orgs/org-a/features", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong signing key", http.MethodGet, "/api/orgs/org-a/features", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"view own org", http.MethodGet, "/api/orgs/org-a/features", "Bearer " + valid, http.StatusOK},
		{"view other org", http.MethodGet, "/api/orgs/org-b/features", "Bearer " + valid, http.StatusForbidden},
		{"member cannot manage", http.MethodPatch, "/api/orgs/org-a/features", "Bearer " + valid, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestMiddleware_ParseToken(t *testing.T) {
	_, mw := newTestRouter()
	token := signToken(t, Claims{
		Role:             string(RoleOrgAdmin),
		OrganizationID:   "org-a",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-9"},
	}, jwt.SigningMethodHS256, []byte(testSecret))

	caller, err := mw.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, Caller{UserID: "user-9", Role: RoleOrgAdmin, OrganizationID: "org-a"}, caller)

	noSubject := signToken(t, Claims{Role: string(RoleOrgAdmin)}, jwt.SigningMethodHS256, []byte(testSecret))
	_, err = mw.ParseToken(noSubject)
	assert.Error(t, err)
}
