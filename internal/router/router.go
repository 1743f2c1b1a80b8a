package router

import (
	"client/internal/app/capture"
	"client/internal/app/delivery"
	"client/internal/app/health"
	"client/internal/app/session"
	"client/internal/app/timeline"
	"client/internal/gateways/websocket"
	"client/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(logger *zap.Logger, origins []string) *Router {
	engine := gin.New()
	engine.Use(middleware.CORSMiddleware(origins))
	engine.Use(middleware.OriginGuard(origins))
	engine.Use(middleware.LoggerMiddleware(logger, "/api/health", "/api/timeline", "/api/capture"))
	engine.Use(gin.Recovery())
	return &Router{Engine: engine}
}

func (r *Router) api() *gin.RouterGroup {
	return r.Engine.Group("/api")
}

func (r *Router) RegisterHealthRoutes(handler health.Handler) {
	health.RegisterRoutes(r.api(), handler)
}

func (r *Router) RegisterWebSocketRoutes(hub *websocket.Hub) {
	websocket.RegisterRoutes(r.api(), hub)
}

func (r *Router) RegisterSessionRoutes(handler session.Handler) {
	session.RegisterRoutes(r.api(), handler)
}

func (r *Router) RegisterTimelineRoutes(handler timeline.Handler) {
	timeline.RegisterRoutes(r.api(), handler)
}

func (r *Router) RegisterCaptureRoutes(handler capture.Handler) {
	capture.RegisterRoutes(r.api(), handler)
}

func (r *Router) RegisterDeliveryRoutes(handler delivery.Handler) {
	delivery.RegisterRoutes(r.api(), handler)
}
