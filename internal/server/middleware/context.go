package middleware

import (
	"github.com/polisight/backend/internal/app"
	"github.com/polisight/backend/internal/queue"

	"github.com/labstack/echo/v4"
)

// App holds the dependencies shared by all handlers. Queue is nil when no
// broker is configured.
type App struct {
	Service *app.Service
	Queue   queue.Publisher
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(a *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{c, a})
		}
	}
}
