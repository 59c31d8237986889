package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/phonginreallife/enablement/authz"
	"github.com/phonginreallife/enablement/handlers"
	"github.com/phonginreallife/enablement/internal/cache"
	"github.com/phonginreallife/enablement/internal/config"
	"github.com/phonginreallife/enablement/internal/observability"
	"github.com/phonginreallife/enablement/services"
	"github.com/phonginreallife/enablement/store"
)

// Deps are the collaborators the API is built from
type Deps struct {
	Store     *store.Store
	Cache     cache.FeatureCache
	Audit     services.AuditPublisher
	Health    *observability.HealthChecker
	Registry  *prometheus.Registry
	Metrics   *observability.Metrics
	Logger    *logrus.Logger
	JWTSecret string
	Quotas    config.QuotaDefaults
	MaxDepth  int
}

func NewGinRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(deps.Metrics.GinMiddleware())

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Initialize services
	checker := authz.NewPermissionChecker(deps.Store.Toggles, deps.Store.Catalog)
	hierarchy := services.NewHierarchyResolver(deps.Store.Organizations, deps.MaxDepth)
	resolver := services.NewInheritanceResolver(hierarchy, deps.Store, deps.Cache, deps.Metrics, deps.Logger)
	toggles := services.NewFeatureToggleService(checker, deps.Store, resolver, deps.Audit, deps.Metrics, deps.Logger)
	quotas := services.NewQuotaEnforcer(deps.Store, deps.Quotas, deps.Metrics, deps.Logger)
	sharing := services.NewSharingWorkflow(checker, deps.Store, quotas, deps.Audit, deps.Metrics, deps.Logger)
	items := services.NewContextItemService(checker, deps.Store, quotas, deps.Audit, deps.Logger)
	global := services.NewGlobalAccessService(checker, deps.Store, quotas, deps.Audit, deps.Logger)

	// Initialize handlers
	featureHandler := handlers.NewFeatureHandler(toggles, resolver, checker)
	hierarchyHandler := handlers.NewHierarchyHandler(hierarchy, toggles)
	quotaHandler := handlers.NewQuotaHandler(quotas)
	sharingHandler := handlers.NewSharingHandler(sharing)
	contentHandler := handlers.NewContentHandler(items, global)

	mw := authz.NewMiddleware(deps.JWTSecret, deps.Logger)

	// PUBLIC ENDPOINTS
	if deps.Health != nil {
		r.GET("/healthz", deps.Health.Liveness)
		r.GET("/readyz", deps.Health.Readiness)
	}
	if deps.Registry != nil {
		r.GET("/metrics", observability.Handler(deps.Registry))
	}

	// PROTECTED ENDPOINTS
	// Reads are gated here; mutations are checked by the services
	protected := r.Group("/")
	protected.Use(mw.Authenticate())
	{
		orgRoutes := protected.Group("/orgs/:org_id")
		{
			features := orgRoutes.Group("/features")
			{
				view := mw.RequireCapability(authz.CapViewFeatures)
				features.GET("", view, featureHandler.List)
				features.GET("/enabled", view, featureHandler.Enabled)
				features.GET("/inherited", view, featureHandler.Inherited)
				features.GET("/effective", view, featureHandler.Effective)
				features.GET("/resolved", view, featureHandler.Resolved)
				features.GET("/summary", view, featureHandler.Summary)
				features.GET("/:feature/status", view, featureHandler.Status)
				features.GET("/:feature/override", view, featureHandler.Override)
				features.POST("/:feature/validate", view, featureHandler.Validate)

				// Answers allowed=false instead of 403
				features.GET("/:feature/access", featureHandler.Access)

				features.PATCH("/:feature", featureHandler.Set)
				features.DELETE("/:feature", featureHandler.Delete)
				features.POST("/bulk", featureHandler.BulkSet)
			}

			hierarchyView := mw.RequireCapability(authz.CapAccessHierarchy)
			orgRoutes.GET("/hierarchy", hierarchyView, hierarchyHandler.Chain)
			orgRoutes.GET("/children", hierarchyView, hierarchyHandler.Children)
			orgRoutes.PUT("/parent", hierarchyHandler.SetParent)

			quotaRoutes := orgRoutes.Group("/quotas")
			{
				quotaRoutes.GET("", mw.RequireCapability(authz.CapViewQuotas), quotaHandler.Get)
				quotaRoutes.POST("/check", mw.RequireCapability(authz.CapViewQuotas), quotaHandler.Check)
				quotaRoutes.POST("/reset", mw.RequireCapability(authz.CapManageQuotas), quotaHandler.Reset)
				quotaRoutes.PUT("/limits", mw.RequireCapability(authz.CapManageQuotas), quotaHandler.SetLimits)
			}

			sharingRoutes := orgRoutes.Group("/sharing")
			{
				view := mw.RequireCapability(authz.CapViewContent)
				sharingRoutes.POST("/share", sharingHandler.Share)
				sharingRoutes.POST("/children", sharingHandler.ShareToChildren)
				sharingRoutes.POST("/parent", sharingHandler.ShareToParent)
				sharingRoutes.GET("/received", view, sharingHandler.Received)
				sharingRoutes.GET("/pending-approvals", view, sharingHandler.PendingApprovals)
				sharingRoutes.GET("/outgoing", view, sharingHandler.Outgoing)
				sharingRoutes.GET("/stats", view, sharingHandler.Stats)
			}

			viewContent := mw.RequireCapability(authz.CapViewContent)
			orgRoutes.GET("/context-items", viewContent, contentHandler.ListItems)
			orgRoutes.POST("/context-items", contentHandler.CreateItem)
			orgRoutes.DELETE("/context-items/:item_id", contentHandler.DeleteItem)

			orgRoutes.GET("/global-access", viewContent, contentHandler.ListGrants)
			orgRoutes.POST("/global-access/:global_item_id", contentHandler.Grant)
			orgRoutes.DELETE("/global-access/:global_item_id", contentHandler.Revoke)
		}

		// Requests are addressed by id; the target organization is checked in the service
		protected.POST("/sharing/:id/approve", sharingHandler.Approve)
		protected.POST("/sharing/:id/reject", sharingHandler.Reject)
	}

	return r
}
