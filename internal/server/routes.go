package server

import (
	"github.com/polisight/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Document routes
	apiRoutes.POST("/documents", routes.ProcessDocumentHandler)
	apiRoutes.POST("/documents/batch", routes.ProcessBatchHandler)

	// Conversation routes
	apiRoutes.POST("/conversations/:id/messages", routes.PostMessageHandler)
	apiRoutes.GET("/conversations/:id", routes.GetConversationHandler)
	apiRoutes.DELETE("/conversations/:id", routes.DeleteConversationHandler)
}
