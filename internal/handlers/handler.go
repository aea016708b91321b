package handlers

import (
	"time"

	"labelguard/internal/logger"
	"labelguard/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Options tunes the HTTP layer. Zero values fall back to defaults.
type Options struct {
	AuthRequests int
	AuthWindow   time.Duration
}

const (
	defaultAuthRequests = 5
	defaultAuthWindow   = time.Minute
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	limiter  *RateLimiter
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger, opts ...Options) *Handler {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.AuthRequests <= 0 {
		o.AuthRequests = defaultAuthRequests
	}
	if o.AuthWindow <= 0 {
		o.AuthWindow = defaultAuthWindow
	}
	return &Handler{
		services: services,
		log:      log,
		limiter:  NewRateLimiter(o.AuthRequests, o.AuthWindow),
	}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth", h.limiter.Middleware())
	{
		auth.POST("/sign-up", h.signUpGate, h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

// Operator routes are open to the station; supervisor routes need a token.
func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		h.registerValidationRoutes(api)
		h.registerHistoryRoutes(api)
		api.GET("/config", h.getConfig)
	}

	supervisor := api.Group("", h.supervisorMiddleware)
	{
		supervisor.PUT("/config", h.updateConfig)
		supervisor.DELETE("/history", h.clearHistory)
		supervisor.GET("/audit", h.getAudit)
	}
}

func (h *Handler) registerValidationRoutes(api *gin.RouterGroup) {
	// Body example: {"code":"ABC12345"}
	api.POST("/scan", h.scan)
	api.POST("/confirm", h.confirm)
	api.POST("/reset", h.reset)
	api.GET("/state", h.getState)
}

func (h *Handler) registerHistoryRoutes(api *gin.RouterGroup) {
	history := api.Group("/history")
	{
		history.GET("", h.getHistory)
		history.GET("/stats", h.getHistoryStats)
		history.GET("/export", h.exportHistory)
	}
}
