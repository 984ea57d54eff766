package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"anonchat/internal/bootstrap"
	"anonchat/internal/identity"
	"anonchat/internal/observability"
	"anonchat/internal/transport/http/handler"
	"anonchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(observability.Component(app.Logger, "http")),
		middleware.Metrics(),
	)

	webDir := app.Config.App.WebDir
	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, app.HealthChecks())
	router.StaticFile("/", webDir+"/index.html")
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	secureCookie := app.Config.App.Env == "production"
	chatHandler := handler.NewChatHandler(app.Chat)
	wsHandler := handler.NewWSHandler(app.Chat, observability.Component(app.Logger, "ws"))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Identity(identity.NewProvider(), secureCookie))
	v1.GET("/identity", handler.Identity)
	v1.GET("/messages", chatHandler.ListMessages)
	v1.POST("/messages", chatHandler.SendMessage)
	v1.POST("/emoji/expand", handler.ExpandEmoji)
	v1.GET("/ws", wsHandler.Serve)

	return router
}
