// Package server is the HTTP front of the analysis service.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/polisight/backend/internal/app"
	"github.com/polisight/backend/internal/queue"
	mid "github.com/polisight/backend/internal/server/middleware"
	"github.com/polisight/backend/internal/util"
	"github.com/polisight/backend/pkg/logger"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New creates the echo instance with middleware and routes registered.
func New(a *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(a))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(util.GetEnvString("BODY_LIMIT", "32M")))

	RegisterRoutes(e)
	return e
}

// Init builds the service from the environment and serves until SIGINT or
// SIGTERM.
func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.Build(ctx, app.ConfigFromEnv())
	if err != nil {
		logger.Fatal("[Server] Failed to build service", "err", err)
	}
	defer func() {
		if err := svc.Close(context.Background()); err != nil {
			logger.Error("[Server] Failed to close service", "err", err)
		}
	}()

	a := &mid.App{Service: svc}
	if util.GetEnv("RABBITMQ_HOST") != "" {
		conn, err := queue.Init()
		if err != nil {
			logger.Fatal("[Server] Failed to connect to queue", "err", err)
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("[Server] Failed to open channel", "err", err)
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, []string{queue.IndexQueue}); err != nil {
			logger.Fatal("[Server] Failed to declare queues", "err", err)
		}
		a.Queue = ch
	}

	e := New(a)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("[Server] Starting server", "port", port, "queue", a.Queue != nil)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("[Server] Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("[Server] Failed to shutdown server", "err", err)
	}
}
