package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartmonitor/internal/handlers"
	"smartmonitor/internal/middleware"
)

// Options configures SetupRouter.
type Options struct {
	AllowedOrigins []string
	RateLimit      middleware.RateLimiterConfig
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// SetupRouter initializes the Gin router with all routes configured. The
// returned limiter must be closed by the caller.
func SetupRouter(h *handlers.Handler, opts Options) (*gin.Engine, *middleware.RateLimiter) {
	r := gin.Default()

	r.Use(middleware.CORS(opts.AllowedOrigins))

	r.GET("/health", h.Health)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	var limiter *middleware.RateLimiter
	api := r.Group("/api/v1")
	if opts.RateLimit.RequestsPerSecond > 0 {
		limiter = middleware.NewRateLimiter(opts.RateLimit)
		api.Use(limiter.Middleware())
	}
	SetupMonitorRoutes(api, h)

	return r, limiter
}

// SetupMonitorRoutes registers the rule, tracked mint and account routes.
func SetupMonitorRoutes(api *gin.RouterGroup, h *handlers.Handler) {
	api.GET("/rules", h.ListRules)

	mints := api.Group("/tracked-mints")
	{
		mints.GET("", h.ListTrackedMints)
		mints.DELETE("/:mint", h.DeactivateMint)
	}

	api.GET("/add_account", h.AddAccount)
	api.POST("/add_account", h.AddAccount)

	accounts := api.Group("/accounts")
	{
		accounts.GET("", h.ListAccounts)
		accounts.POST("", h.AddAccount)
		accounts.DELETE("/:address", h.DeleteAccount)
	}
}
