package handlers

import (
	"timebased_cover/internal/logger"
	"timebased_cover/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// Live cover updates over WebSocket, same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.identityMiddleware)
	{
		api.GET("/me", h.whoAmI)
		h.registerCoverRoutes(api)
		h.registerActuatorRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerCoverRoutes(api *gin.RouterGroup) {
	covers := api.Group("/covers")
	{
		covers.GET("", h.listCovers)
		covers.GET("/:id", h.getCover)
		covers.POST("/:id/open", h.openCover)
		covers.POST("/:id/close", h.closeCover)
		covers.POST("/:id/stop", h.stopCover)
		covers.POST("/:id/calibrate", h.requireInstaller, h.calibrateCover)
		// Body example: {"position":40}
		covers.POST("/:id/position", h.setCoverPosition)
	}
}

func (h *Handler) registerActuatorRoutes(api *gin.RouterGroup) {
	actuators := api.Group("/actuators")
	{
		// Body example: {"state":"on"}
		actuators.POST("/:id/toggle", h.requireInstaller, h.toggleActuator)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
