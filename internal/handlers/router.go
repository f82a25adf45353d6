package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/ratelimit"
)

// Router groups the handlers mounted by NewRouter. Admin and RateLimiter may be nil.
type Router struct {
	Public         *PublicHandler
	Jobs           *JobsHandler
	Admin          *AdminHandler
	RateLimiter    *ratelimit.RateLimiter
	AllowedOrigins []string
}

// NewRouter builds the gin engine
func NewRouter(rt Router) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	origins := rt.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "apikey", "x-client-info"},
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", rt.Public.Health)
	r.GET("/api/properties/search", rt.Public.SearchProperties)
	r.GET("/api/schedules/next-run", rt.Public.NextRun)

	functions := r.Group("/functions")
	if rt.RateLimiter != nil {
		functions.Use(rt.RateLimiter.Middleware())
	}
	{
		functions.POST("/bayut-sync", rt.Jobs.BayutSync)
		functions.POST("/scheduled-bayut-sync", rt.Jobs.ScheduledSync)
		functions.POST("/process-commissions", rt.Jobs.ProcessCommissions)
		functions.POST("/process-affiliate-payouts", rt.Jobs.ProcessPayouts)
	}

	if rt.Admin != nil {
		admin := r.Group("/api/admin")
		{
			admin.GET("/stats", rt.Admin.GetStats)
			admin.GET("/area-stats", rt.Admin.GetAreaStats)
			admin.GET("/price-distribution", rt.Admin.GetPriceDistribution)

			admin.GET("/sync-runs", rt.Admin.GetSyncRuns)
			admin.GET("/sync-runs/stale", rt.Admin.GetStaleRuns)

			admin.GET("/jobs", rt.Admin.GetJobs)
			admin.POST("/jobs/:name/run", rt.Admin.TriggerJob)

			admin.POST("/cleanup/run", rt.Admin.RunCleanup)
			admin.GET("/cleanup/logs", rt.Admin.GetDeleteLogs)

			admin.GET("/properties/:id/history", rt.Admin.GetPropertyHistory)
			admin.GET("/changes/recent", rt.Admin.GetRecentChanges)

			admin.GET("/users/:id/notifications", rt.Admin.GetUserNotifications)
		}
	}

	return r
}
