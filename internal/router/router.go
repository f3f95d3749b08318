package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskplanner/internal/handler"
	"taskplanner/internal/mcp"
	"taskplanner/internal/middleware"
	"taskplanner/internal/realtime"
	"taskplanner/internal/service"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	Planner *handler.PlannerHandler
	Task    *handler.TaskHandler
	APIKey  *handler.APIKeyHandler
	Socket  *handler.SocketHandler
}

// Build wires handlers for services and returns the engine.
func Build(services *service.Services, hub *realtime.Hub, corsOrigins []string) *gin.Engine {
	handlers := Handlers{
		Auth:    handler.NewAuthHandler(services.Auth),
		Planner: handler.NewPlannerHandler(services.Tasks),
		Task:    handler.NewTaskHandler(services.Tasks),
		APIKey:  handler.NewAPIKeyHandler(services.APIKeys),
		Socket:  handler.NewSocketHandler(hub),
	}
	mcpServer := mcp.NewServer(services.Tasks, services.APIKeys)
	return New(services.Auth, hub, handlers, mcpServer, corsOrigins)
}

func New(
	authService *service.AuthService,
	hub *realtime.Hub,
	handlers Handlers,
	mcpServer *mcp.Server,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "realtime": hub.Stats()})
	})

	engine.GET("/ws", middleware.SocketAuth(authService), handlers.Socket.Connect)

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", handlers.Auth.Register)
	auth.POST("/login", handlers.Auth.Login)
	auth.GET("/me", middleware.Auth(authService), handlers.Auth.Me)

	planner := api.Group("/planner")
	planner.Use(middleware.Auth(authService))
	planner.GET("", handlers.Planner.GetPlanner)
	planner.GET("/markdown", handlers.Planner.GetMarkdown)
	planner.PUT("/markdown", handlers.Planner.SaveMarkdown)

	tasks := api.Group("/tasks")
	tasks.Use(middleware.Auth(authService))
	tasks.GET("", handlers.Task.List)
	tasks.POST("", handlers.Task.Create)
	tasks.PUT("/reorder", handlers.Task.Reorder)
	tasks.PUT("/:id", handlers.Task.Update)
	tasks.DELETE("/:id", handlers.Task.Delete)

	apiKeys := api.Group("/api-keys")
	apiKeys.Use(middleware.Auth(authService))
	apiKeys.GET("", handlers.APIKey.List)
	apiKeys.POST("", handlers.APIKey.Create)
	apiKeys.DELETE("/:id", handlers.APIKey.Revoke)
	apiKeys.PUT("/:id/permissions", handlers.APIKey.UpdatePermissions)

	tools := api.Group("/mcp")
	tools.Use(mcpServer.Authenticate())
	tools.POST("", mcpServer.HandlePost)
	tools.GET("", mcpServer.HandleStream)

	return engine
}
