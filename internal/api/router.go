package api

import (
	"strings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/classroll/records-api/docs"
	"github.com/classroll/records-api/internal/api/apierr"
	"github.com/classroll/records-api/internal/api/handler"
	"github.com/classroll/records-api/internal/api/middleware"
	"github.com/classroll/records-api/internal/core/domain"
	"github.com/classroll/records-api/internal/core/ports"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Gate   *middleware.Gate
	Auth   ports.AuthService
	Users  ports.UserService
	Checks map[string]handler.CheckFunc
	Log    zerolog.Logger

	// Registerer and Gatherer default to the global Prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	if d.Registerer == nil {
		d.Registerer = prometheus.DefaultRegisterer
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierr.NewHTTPErrorHandler(d.Log)
	e.Validator = handler.NewValidator()

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "records_api",
		Subsystem:  "http",
		Registerer: d.Registerer,
		Skipper:    skipOperational,
	}))

	// --- Operational endpoints (no auth required) ---
	health := handler.NewHealthHandler(d.Checks)
	e.GET("/health", health.Liveness)
	e.GET("/health/ready", health.Readiness)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: d.Gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	authHandler := handler.NewAuthHandler(d.Auth)
	userHandler := handler.NewUserHandler(d.Users)
	gate := d.Gate

	api := e.Group("/api")

	// --- Auth ---
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/register", gate.Protect(domain.PermAdmin, authHandler.Register))
	api.GET("/auth/me", gate.Protect("", authHandler.Me))

	// --- User administration ---
	api.GET("/users", gate.Protect(domain.PermAdmin, userHandler.List))
	api.PUT("/users/:id", gate.Protect(domain.PermAdmin, userHandler.Update))
	api.DELETE("/users/:id", gate.Protect(domain.PermAdmin, userHandler.Delete))
	api.GET("/roles", gate.Protect(domain.PermAdmin, userHandler.Roles))

	return e
}

func skipOperational(c echo.Context) bool {
	p := c.Request().URL.Path
	return p == "/metrics" || strings.HasPrefix(p, "/health") || strings.HasPrefix(p, "/swagger")
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		Skipper:      skipOperational,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
