package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/planhive/backend/api/handler"
)

type Handlers struct {
	Events    *apiHandler.EventsHandler
	Templates *apiHandler.TemplatesHandler
	Health    *apiHandler.HealthHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Read path (cached live view)
	r.GET("/api/v1/events", authMiddleware(handlers.Events.GetMonth))
	r.GET("/api/v1/events/day", authMiddleware(handlers.Events.GetDay))
	r.GET("/api/v1/activities", authMiddleware(handlers.Events.GetActivities))

	// Write path (shard mutators)
	r.POST("/api/v1/events", authMiddleware(handlers.Events.Create))
	r.PUT("/api/v1/events/{id}", authMiddleware(handlers.Events.Update))
	r.PUT("/api/v1/events/{id}/activities", authMiddleware(handlers.Events.UpdateActivities))
	r.DELETE("/api/v1/events/{id}", authMiddleware(handlers.Events.Delete))

	// Activity templates
	r.GET("/api/v1/templates", authMiddleware(handlers.Templates.List))
	r.POST("/api/v1/templates", authMiddleware(handlers.Templates.Save))
	r.GET("/api/v1/templates/{id}", authMiddleware(handlers.Templates.Get))
	r.PUT("/api/v1/templates/{id}", authMiddleware(handlers.Templates.Save))
	r.DELETE("/api/v1/templates/{id}", authMiddleware(handlers.Templates.Delete))
	r.POST("/api/v1/templates/{id}/apply", authMiddleware(handlers.Templates.Apply))

	return r
}
